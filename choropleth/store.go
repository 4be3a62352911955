package choropleth

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Region is one map region: immutable geometry plus a mutable column->value
// mapping. Index is the region's value for the index column.
type Region struct {
	Index      string
	Geometry   orb.Geometry
	Values     map[string]Value
	Properties geojson.Properties // Raw feature properties as loaded
}

// Value returns the region's value for column, absent when unset.
func (r *Region) Value(column string) Value {
	return r.Values[column]
}

// Store holds the regions in load order together with the registered column
// names. It is not safe for concurrent use; a Widget owns exactly one.
type Store struct {
	indexColumn string
	columns     []string
	regions     []*Region
	byIndex     map[string]int
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{byIndex: make(map[string]int)}
}

// Load replaces the store's contents with the features of fc. Every feature
// must carry a unique value for indexColumn. Numeric properties (numbers or
// numeric strings) become column values; null properties become absent.
func (s *Store) Load(fc *geojson.FeatureCollection, indexColumn string, columns []string) error {
	if indexColumn == "" {
		return fmt.Errorf("%w: index column not set", ErrMissingIndex)
	}
	regions := make([]*Region, 0, len(fc.Features))
	byIndex := make(map[string]int, len(fc.Features))

	for i, f := range fc.Features {
		raw, ok := f.Properties[indexColumn]
		if !ok || raw == nil {
			return fmt.Errorf("%w: feature %d has no %q", ErrMissingIndex, i, indexColumn)
		}
		index := indexString(raw)
		if prev, dup := byIndex[index]; dup {
			return fmt.Errorf("%w: %q used by features %d and %d", ErrDuplicateIndex, index, prev, i)
		}
		byIndex[index] = i

		values := make(map[string]Value, len(f.Properties))
		for key, prop := range f.Properties {
			if key == indexColumn {
				continue
			}
			if v, ok := propertyValue(prop); ok {
				values[key] = v
			}
		}
		regions = append(regions, &Region{
			Index:      index,
			Geometry:   f.Geometry,
			Values:     values,
			Properties: maps.Clone(f.Properties),
		})
	}

	s.indexColumn = indexColumn
	s.regions = regions
	s.byIndex = byIndex
	s.columns = s.columns[:0]
	for _, c := range columns {
		s.RegisterColumn(c)
	}
	return nil
}

func indexString(raw any) string {
	switch v := raw.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return fmt.Sprint(raw)
}

func propertyValue(raw any) (Value, bool) {
	switch v := raw.(type) {
	case nil:
		return Absent, true
	case float64:
		return Num(v), true
	case int:
		return Num(float64(v)), true
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return Absent, false
		}
		return Num(n), true
	}
	return Absent, false
}

// IndexColumn returns the name of the identifying column.
func (s *Store) IndexColumn() string {
	return s.indexColumn
}

// Columns returns the registered column names in registration order.
func (s *Store) Columns() []string {
	return slices.Clone(s.columns)
}

// HasColumn reports whether name is registered.
func (s *Store) HasColumn(name string) bool {
	return slices.Contains(s.columns, name)
}

// RegisterColumn appends name to the column list. It reports whether the
// column was new.
func (s *Store) RegisterColumn(name string) bool {
	if name == "" || s.HasColumn(name) {
		return false
	}
	s.columns = append(s.columns, name)
	return true
}

// UnregisterColumn drops name from the column list but keeps region values.
func (s *Store) UnregisterColumn(name string) bool {
	i := slices.Index(s.columns, name)
	if i < 0 {
		return false
	}
	s.columns = slices.Delete(s.columns, i, i+1)
	return true
}

// SetValues writes column for every region: the mapped value when the
// region's index is a key of values, otherwise fill() evaluated for that
// region. A nil fill leaves uncovered regions absent.
func (s *Store) SetValues(column string, values map[string]Value, fill Filler) error {
	if column == "" || column == s.indexColumn {
		return fmt.Errorf("%w: cannot set values of %q", ErrUnknownColumn, column)
	}
	for _, r := range s.regions {
		v, ok := values[r.Index]
		if !ok {
			v = Absent
			if fill != nil {
				v = fill()
			}
		}
		r.Values[column] = v
	}
	return nil
}

// AddColumn registers column and sets its values. It reports whether the
// column was new.
func (s *Store) AddColumn(column string, values map[string]Value, fill Filler) (bool, error) {
	if err := s.SetValues(column, values, fill); err != nil {
		return false, err
	}
	return s.RegisterColumn(column), nil
}

// RemoveColumn unregisters column and deletes it from every region.
func (s *Store) RemoveColumn(column string) error {
	if column == s.indexColumn {
		return fmt.Errorf("%w: index column %q cannot be removed", ErrUnknownColumn, column)
	}
	found := s.UnregisterColumn(column)
	for _, r := range s.regions {
		if _, ok := r.Values[column]; ok {
			found = true
			delete(r.Values, column)
		}
	}
	if !found {
		return fmt.Errorf("%w: %q", ErrUnknownColumn, column)
	}
	return nil
}

// Values returns column's values in load order.
func (s *Store) Values(column string) []Value {
	out := make([]Value, len(s.regions))
	for i, r := range s.regions {
		out[i] = r.Values[column]
	}
	return out
}

// Region looks a region up by index value.
func (s *Store) Region(index string) (*Region, bool) {
	i, ok := s.byIndex[index]
	if !ok {
		return nil, false
	}
	return s.regions[i], true
}

// Position returns the load-order position of the region with index.
func (s *Store) Position(index string) (int, bool) {
	i, ok := s.byIndex[index]
	return i, ok
}

// Regions returns the regions in load order.
func (s *Store) Regions() []*Region {
	return s.regions
}

// Len returns the number of regions.
func (s *Store) Len() int {
	return len(s.regions)
}
