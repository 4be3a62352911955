package choropleth

import (
	"encoding/json"
	"time"
)

// Config represents the full widget configuration file
type Config struct {
	Canvas             CanvasConfig    `yaml:"canvas" json:"canvas"`
	Region             RegionConfig    `yaml:"region" json:"region"`
	MapScalingConstant float64         `yaml:"mapScalingConstant" json:"mapScalingConstant"` // Divides the auto-fit scale; larger values zoom out
	Legend             LegendConfig    `yaml:"legend" json:"legend"`
	Zoom               ZoomConfig      `yaml:"zoom" json:"zoom"`
	SimplifyTolerance  float64         `yaml:"simplifyTolerance,omitempty" json:"simplifyTolerance,omitempty"` // Douglas-Peucker threshold in canvas pixels; 0 disables
	Selector           SelectorConfig  `yaml:"selector" json:"selector"`
	Data               DataConfig      `yaml:"data" json:"data"`
	Animation          AnimationConfig `yaml:"animation" json:"animation"`
	MQTT               MQTTConfig      `yaml:"mqtt" json:"mqtt"`
	Sources            []SourceConfig  `yaml:"sources,omitempty" json:"sources,omitempty"`
	Redis              RedisConfig     `yaml:"redis,omitempty" json:"redis,omitempty"`
	Postgres           PostgresConfig  `yaml:"postgres,omitempty" json:"postgres,omitempty"`
	HTTP               HTTPConfig      `yaml:"http" json:"http"`
}

// CanvasConfig is the SVG viewBox size in pixels
type CanvasConfig struct {
	Width  float64 `yaml:"width" json:"width"`
	Height float64 `yaml:"height" json:"height"`
}

// StrokePair holds a value for the normal and the highlighted region state
type StrokePair[T any] struct {
	Normal    T `yaml:"normal" json:"normal"`
	Highlight T `yaml:"highlight" json:"highlight"`
}

// RegionConfig styles the region shapes
type RegionConfig struct {
	StrokeWidth StrokePair[float64] `yaml:"strokeWidth" json:"strokeWidth"`
	StrokeColor StrokePair[string]  `yaml:"strokeColor" json:"strokeColor"`
	FillOpacity float64             `yaml:"fillOpacity" json:"fillOpacity"`
	NoDataFill  string              `yaml:"noDataFill" json:"noDataFill"` // Fill for regions without a value for the shown column
}

// LegendConfig holds legend geometry, rounding and colors
type LegendConfig struct {
	X           float64      `yaml:"x" json:"x"` // Lower-left corner offset from the canvas' left edge
	Y           float64      `yaml:"y" json:"y"` // Lower-left corner offset from the canvas' bottom edge
	StrokeWidth float64      `yaml:"strokeWidth" json:"strokeWidth"`
	FontSize    float64      `yaml:"fontSize" json:"fontSize"`
	Decimals    int          `yaml:"decimals" json:"decimals"`
	BinCount    int          `yaml:"binCount" json:"binCount"`
	NoDataLabel string       `yaml:"noDataLabel" json:"noDataLabel"`
	Swatch      SwatchConfig `yaml:"swatch" json:"swatch"`
	Colors      LegendColors `yaml:"colors" json:"colors"`
}

// SwatchConfig is the size and spacing of legend color swatches
type SwatchConfig struct {
	Width   float64 `yaml:"width" json:"width"`
	Height  float64 `yaml:"height" json:"height"`
	MarginX float64 `yaml:"marginX" json:"marginX"`
	MarginY float64 `yaml:"marginY" json:"marginY"`
}

// LegendColors holds the legend panel colors and the color scale endpoints
type LegendColors struct {
	Background string `yaml:"background" json:"background"`
	Border     string `yaml:"border" json:"border"`
	ScaleStart string `yaml:"scaleStart" json:"scaleStart"`
	ScaleEnd   string `yaml:"scaleEnd" json:"scaleEnd"`
	Font       string `yaml:"font" json:"font"`
}

// ZoomConfig bounds the view transform scale factor
type ZoomConfig struct {
	Min float64 `yaml:"min" json:"min"`
	Max float64 `yaml:"max" json:"max"`
}

// SelectorConfig controls which columns the selector lists
type SelectorConfig struct {
	IncludeIndex bool `yaml:"includeIndex,omitempty" json:"includeIndex,omitempty"`
}

// DataConfig describes where the feature collection comes from. Columns,
// IndexColumn and DefaultColumn override metadata embedded in the payload.
type DataConfig struct {
	Source        string   `yaml:"source" json:"source"` // File path or http(s) URL
	IndexColumn   string   `yaml:"indexColumn,omitempty" json:"indexColumn,omitempty"`
	Columns       []string `yaml:"columns,omitempty" json:"columns,omitempty"`
	DefaultColumn string   `yaml:"defaultColumn,omitempty" json:"defaultColumn,omitempty"`
}

// AnimationConfig configures the frame-by-frame column animation
type AnimationConfig struct {
	Interval  time.Duration `yaml:"interval,omitempty" json:"interval,omitempty"`
	Columns   []string      `yaml:"columns,omitempty" json:"columns,omitempty"`
	Loop      bool          `yaml:"loop,omitempty" json:"loop,omitempty"`
	Autostart bool          `yaml:"autostart,omitempty" json:"autostart,omitempty"`
}

// MQTTConfig holds MQTT connection settings for the live value feed
type MQTTConfig struct {
	Broker        string `yaml:"broker,omitempty" json:"broker,omitempty"`
	ClientID      string `yaml:"clientId,omitempty" json:"clientId,omitempty"`
	Username      string `yaml:"username,omitempty" json:"username,omitempty"`
	Password      string `yaml:"password,omitempty" json:"password,omitempty"`
	FeedTopic     string `yaml:"feedTopic,omitempty" json:"feedTopic,omitempty"`         // Column updates are read from here
	PublishPrefix string `yaml:"publishPrefix,omitempty" json:"publishPrefix,omitempty"` // Widget state is published under <prefix>/state
}

// SourceKind names a ValueSource backend
type SourceKind string

const (
	SourceRedis    SourceKind = "redis"
	SourcePostgres SourceKind = "postgres"
)

// SourceConfig binds one column to an external value source
type SourceConfig struct {
	Kind    SourceKind `yaml:"kind" json:"kind"`
	Column  string     `yaml:"column" json:"column"`
	Key     string     `yaml:"key,omitempty" json:"key,omitempty"`     // Redis hash key
	Query   string     `yaml:"query,omitempty" json:"query,omitempty"` // Postgres query returning (index, value) rows
	Default *float64   `yaml:"default,omitempty" json:"default,omitempty"`
	Show    bool       `yaml:"show,omitempty" json:"show,omitempty"`
}

// RedisConfig holds the connection settings shared by redis sources
type RedisConfig struct {
	Addr     string `yaml:"addr,omitempty" json:"addr,omitempty"`
	Password string `yaml:"password,omitempty" json:"-"`
	DB       int    `yaml:"db,omitempty" json:"db,omitempty"`
}

// PostgresConfig holds the connection string shared by postgres sources
type PostgresConfig struct {
	URL string `yaml:"url,omitempty" json:"-"`
}

// HTTPConfig holds HTTP server settings
type HTTPConfig struct {
	Port int `yaml:"port" json:"port"`
}

// Metadata is the companion metadata of a feature collection
type Metadata struct {
	IndexColumn   string   `json:"indexColumn,omitempty"`
	Columns       []string `json:"columns,omitempty"`
	DefaultColumn string   `json:"defaultColumn,omitempty"`
}

// ViewTransform is the pan offset and zoom scale applied to the map layer:
// screen = (X, Y) + K * canvas
type ViewTransform struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	K float64 `json:"k"`
}

// IdentityTransform returns the untransformed view
func IdentityTransform() ViewTransform {
	return ViewTransform{K: 1}
}

// State is a JSON-friendly snapshot of what the widget currently shows
type State struct {
	ID          string        `json:"id"`
	Ready       bool          `json:"ready"`
	Column      string        `json:"column"`
	Columns     []string      `json:"columns"`
	Selector    *Selector     `json:"selector,omitempty"`
	Highlighted string        `json:"highlighted,omitempty"`
	Info        string        `json:"info"`
	Transform   ViewTransform `json:"transform"`
	Legend      []string      `json:"legend"`
}

// Value is a region's value for one column: a number or explicitly absent.
type Value struct {
	Num   float64
	Valid bool
}

// Num returns a present value.
func Num(v float64) Value {
	return Value{Num: v, Valid: true}
}

// Absent is the missing value.
var Absent = Value{}

// Filler produces the value for a region that a mapping does not cover.
// It is evaluated once per uncovered region.
type Filler func() Value

// ConstFiller returns a Filler that always yields v.
func ConstFiller(v Value) Filler {
	return func() Value { return v }
}

// MarshalJSON encodes an absent value as null.
func (v Value) MarshalJSON() ([]byte, error) {
	if !v.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(v.Num)
}

// UnmarshalJSON decodes null as an absent value.
func (v *Value) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*v = Absent
		return nil
	}
	var n float64
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*v = Num(n)
	return nil
}
