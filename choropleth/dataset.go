package choropleth

import (
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// metadataMember is the top-level FeatureCollection member that carries
// embedded column metadata.
const metadataMember = "metadata"

// Dataset is a parsed feature collection plus any metadata embedded in it.
type Dataset struct {
	Features *geojson.FeatureCollection
	Meta     Metadata
}

// ParseDataset decodes a GeoJSON FeatureCollection. Embedded metadata, when
// present, is read from its "metadata" member. Only Polygon and
// MultiPolygon features are accepted.
func ParseDataset(data []byte) (*Dataset, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("parsing feature collection: %w", err)
	}

	for i, f := range fc.Features {
		switch f.Geometry.(type) {
		case orb.Polygon, orb.MultiPolygon:
		default:
			return nil, fmt.Errorf("feature %d: unsupported geometry %T", i, f.Geometry)
		}
		if f.Properties == nil {
			f.Properties = geojson.Properties{}
		}
	}

	ds := &Dataset{Features: fc}
	if raw, ok := fc.ExtraMembers[metadataMember]; ok {
		b, err := json.Marshal(raw)
		if err != nil {
			return nil, fmt.Errorf("encoding metadata: %w", err)
		}
		if err := json.Unmarshal(b, &ds.Meta); err != nil {
			return nil, fmt.Errorf("parsing metadata: %w", err)
		}
	}
	return ds, nil
}

// LoadDatasetFile reads and parses a GeoJSON file from disk.
func LoadDatasetFile(path string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading dataset %s: %w", path, err)
	}
	return ParseDataset(data)
}

// Resolve merges explicit call parameters over the embedded metadata.
// The index column defaults to the first listed column; the column list
// defaults to the index column followed by every numeric property name in
// sorted order; the default column is the first non-index column.
func (d *Dataset) Resolve(override DataConfig) (Metadata, error) {
	meta := Metadata{
		IndexColumn:   d.Meta.IndexColumn,
		Columns:       slices.Clone(d.Meta.Columns),
		DefaultColumn: d.Meta.DefaultColumn,
	}
	if override.IndexColumn != "" {
		meta.IndexColumn = override.IndexColumn
	}
	if len(override.Columns) > 0 {
		meta.Columns = slices.Clone(override.Columns)
	}
	if override.DefaultColumn != "" {
		meta.DefaultColumn = override.DefaultColumn
	}

	if meta.IndexColumn == "" && len(meta.Columns) > 0 {
		meta.IndexColumn = meta.Columns[0]
	}
	if meta.IndexColumn == "" {
		return Metadata{}, fmt.Errorf("%w: no index column given", ErrMissingIndex)
	}

	if len(meta.Columns) == 0 {
		meta.Columns = append([]string{meta.IndexColumn}, d.numericProperties(meta.IndexColumn)...)
	} else if meta.Columns[0] != meta.IndexColumn {
		meta.Columns = slices.DeleteFunc(meta.Columns, func(c string) bool { return c == meta.IndexColumn })
		meta.Columns = append([]string{meta.IndexColumn}, meta.Columns...)
	}

	if meta.DefaultColumn == "" {
		for _, c := range meta.Columns {
			if c != meta.IndexColumn {
				meta.DefaultColumn = c
				break
			}
		}
	}
	if meta.DefaultColumn != "" && !slices.Contains(meta.Columns, meta.DefaultColumn) {
		return Metadata{}, fmt.Errorf("%w: default column %q is not listed", ErrUnknownColumn, meta.DefaultColumn)
	}
	return meta, nil
}

func (d *Dataset) numericProperties(indexColumn string) []string {
	seen := make(map[string]bool)
	for _, f := range d.Features.Features {
		for key, prop := range f.Properties {
			if key == indexColumn || seen[key] {
				continue
			}
			if v, ok := propertyValue(prop); ok && v.Valid {
				seen[key] = true
			}
		}
	}
	names := make([]string, 0, len(seen))
	for k := range seen {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
