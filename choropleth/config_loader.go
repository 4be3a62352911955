package choropleth

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfig returns the configuration used when no file is given, or as
// the base that a config file is decoded onto.
func DefaultConfig() *Config {
	return &Config{
		Canvas: CanvasConfig{Width: 800, Height: 600},
		Region: RegionConfig{
			StrokeWidth: StrokePair[float64]{Normal: 0.5, Highlight: 2},
			StrokeColor: StrokePair[string]{Normal: "#fff", Highlight: "#000"},
			FillOpacity: 1.0,
			NoDataFill:  "#ccc",
		},
		MapScalingConstant: 1.8,
		Legend: LegendConfig{
			X:           10,
			Y:           10,
			StrokeWidth: 2,
			FontSize:    16,
			Decimals:    2,
			BinCount:    5,
			NoDataLabel: "no data",
			Swatch:      SwatchConfig{Width: 50, Height: 10, MarginX: 10, MarginY: 10},
			Colors: LegendColors{
				Background: "#fff",
				Border:     "#000",
				ScaleStart: "rgb(201,223,138)",
				ScaleEnd:   "rgb(54,128,45)",
				Font:       "#000",
			},
		},
		Zoom: ZoomConfig{Min: 1, Max: 18},
		Animation: AnimationConfig{
			Interval: time.Second,
		},
		MQTT: MQTTConfig{
			ClientID:      "choromap",
			FeedTopic:     "choromap/values",
			PublishPrefix: "choromap",
		},
		HTTP: HTTPConfig{Port: 8080},
	}
}

// LoadConfig loads the widget configuration from a YAML file. Keys missing
// from the file keep their DefaultConfig value.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(path string, config *Config) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshaling config YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// Validate checks geometry, scale and color settings. All failures wrap
// ErrInvalidConfig.
func (c *Config) Validate() error {
	if c.Canvas.Width <= 0 || c.Canvas.Height <= 0 {
		return fmt.Errorf("%w: canvas width and height must be positive", ErrInvalidConfig)
	}
	if c.MapScalingConstant <= 0 {
		return fmt.Errorf("%w: mapScalingConstant must be positive", ErrInvalidConfig)
	}
	if c.Legend.BinCount < 1 {
		return fmt.Errorf("%w: legend.binCount must be at least 1", ErrInvalidConfig)
	}
	if c.Legend.Decimals < 0 {
		return fmt.Errorf("%w: legend.decimals must not be negative", ErrInvalidConfig)
	}
	if c.Zoom.Min <= 0 || c.Zoom.Max < c.Zoom.Min {
		return fmt.Errorf("%w: zoom range [%g,%g] is invalid", ErrInvalidConfig, c.Zoom.Min, c.Zoom.Max)
	}
	if c.Region.FillOpacity < 0 || c.Region.FillOpacity > 1 {
		return fmt.Errorf("%w: region.fillOpacity must be within [0,1]", ErrInvalidConfig)
	}

	colors := []struct{ key, value string }{
		{"region.strokeColor.normal", c.Region.StrokeColor.Normal},
		{"region.strokeColor.highlight", c.Region.StrokeColor.Highlight},
		{"region.noDataFill", c.Region.NoDataFill},
		{"legend.colors.background", c.Legend.Colors.Background},
		{"legend.colors.border", c.Legend.Colors.Border},
		{"legend.colors.scaleStart", c.Legend.Colors.ScaleStart},
		{"legend.colors.scaleEnd", c.Legend.Colors.ScaleEnd},
		{"legend.colors.font", c.Legend.Colors.Font},
	}
	for _, col := range colors {
		if _, err := ParseColor(col.value); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, col.key, err)
		}
	}

	for i, src := range c.Sources {
		if src.Column == "" {
			return fmt.Errorf("%w: sources[%d].column is required", ErrInvalidConfig, i)
		}
		switch src.Kind {
		case SourceRedis:
			if src.Key == "" {
				return fmt.Errorf("%w: sources[%d].key is required for %s", ErrInvalidConfig, i, src.Column)
			}
		case SourcePostgres:
			if src.Query == "" {
				return fmt.Errorf("%w: sources[%d].query is required for %s", ErrInvalidConfig, i, src.Column)
			}
		default:
			return fmt.Errorf("%w: sources[%d].kind %q is not supported", ErrInvalidConfig, i, src.Kind)
		}
	}

	if c.Animation.Interval < 0 {
		return fmt.Errorf("%w: animation.interval must not be negative", ErrInvalidConfig)
	}
	return nil
}
