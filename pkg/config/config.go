// Package config loads fightscope settings from defaults, an optional config
// file, a .env file and FIGHTSCOPE_* environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the complete application configuration.
type Config struct {
	Viewer  ViewerConfig  `mapstructure:"viewer"`
	Bitmaps BitmapsConfig `mapstructure:"bitmaps"`
	Layout  LayoutConfig  `mapstructure:"layout"`
	Stream  StreamConfig  `mapstructure:"stream"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ViewerConfig holds window and scatter rendering settings.
type ViewerConfig struct {
	Width           int     `mapstructure:"width"`
	Height          int     `mapstructure:"height"`
	TPS             int     `mapstructure:"tps"`
	ZoomMin         float64 `mapstructure:"zoom_min"`
	ZoomMax         float64 `mapstructure:"zoom_max"`
	MarkerRadius    float64 `mapstructure:"marker_radius"`
	TrendWindow     int     `mapstructure:"trend_window"`
	TrendSpan       float64 `mapstructure:"trend_span"`
	HeatmapMaxAlpha float64 `mapstructure:"heatmap_max_alpha"`
	HeatmapCols     int     `mapstructure:"heatmap_cols"`
	HeatmapRows     int     `mapstructure:"heatmap_rows"`
	DurationUp      bool    `mapstructure:"duration_up"`
	DurationMin     float64 `mapstructure:"duration_min"` // seconds, both zero = from data
	DurationMax     float64 `mapstructure:"duration_max"`
	CaptureDir      string  `mapstructure:"capture_dir"`
}

// BitmapsConfig controls the opponent headshot cache and its prefetcher.
type BitmapsConfig struct {
	StoreDir      string        `mapstructure:"store_dir"`
	FetchTimeout  time.Duration `mapstructure:"fetch_timeout"`
	PrefetchRate  float64       `mapstructure:"prefetch_rate"` // fetches per second
	PrefetchBurst int           `mapstructure:"prefetch_burst"`
	IdleAfter     time.Duration `mapstructure:"idle_after"`
	Size          int           `mapstructure:"size"`
}

// LayoutConfig holds force simulation parameters.
type LayoutConfig struct {
	LinkDistance    float64       `mapstructure:"link_distance"`
	Repulsion       float64       `mapstructure:"repulsion"`
	MinLinkStrength float64       `mapstructure:"min_link_strength"`
	CenterStrength  float64       `mapstructure:"center_strength"`
	VelocityDecay   float64       `mapstructure:"velocity_decay"`
	AlphaDecay      float64       `mapstructure:"alpha_decay"`
	AlphaMin        float64       `mapstructure:"alpha_min"`
	StableThreshold float64       `mapstructure:"stable_threshold"`
	EmitInterval    time.Duration `mapstructure:"emit_interval"`
	Dimensions      int           `mapstructure:"dimensions"`
	Theta           float64       `mapstructure:"theta"`
}

// StreamConfig configures the layout snapshot websocket server.
type StreamConfig struct {
	ListenAddr   string `mapstructure:"listen_addr"`
	Path         string `mapstructure:"path"`
	ClientBuffer int    `mapstructure:"client_buffer"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// Load reads configuration. An empty path skips the config file and uses
// defaults plus environment overrides only.
func Load(path string) (*Config, error) {
	// A missing .env is the normal case outside development.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("FIGHTSCOPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("viewer.width", 1280)
	v.SetDefault("viewer.height", 720)
	v.SetDefault("viewer.tps", 60)
	v.SetDefault("viewer.zoom_min", 0.5)
	v.SetDefault("viewer.zoom_max", 12.0)
	v.SetDefault("viewer.marker_radius", 14.0)
	v.SetDefault("viewer.trend_window", 0) // 0 = derive from trend_span
	v.SetDefault("viewer.trend_span", 0.15)
	v.SetDefault("viewer.heatmap_max_alpha", 0.35)
	v.SetDefault("viewer.heatmap_cols", 24)
	v.SetDefault("viewer.heatmap_rows", 12)
	v.SetDefault("viewer.duration_up", true)
	v.SetDefault("viewer.duration_min", 0.0)
	v.SetDefault("viewer.duration_max", 0.0)
	v.SetDefault("viewer.capture_dir", "captures")

	v.SetDefault("bitmaps.store_dir", "data/bitmaps")
	v.SetDefault("bitmaps.fetch_timeout", "10s")
	v.SetDefault("bitmaps.prefetch_rate", 8.0)
	v.SetDefault("bitmaps.prefetch_burst", 2)
	v.SetDefault("bitmaps.idle_after", "150ms")
	v.SetDefault("bitmaps.size", 64)

	v.SetDefault("layout.link_distance", 60.0)
	v.SetDefault("layout.repulsion", 120.0)
	v.SetDefault("layout.min_link_strength", 0.1)
	v.SetDefault("layout.center_strength", 1.0)
	v.SetDefault("layout.velocity_decay", 0.4)
	v.SetDefault("layout.alpha_decay", 0.0228)
	v.SetDefault("layout.alpha_min", 0.001)
	v.SetDefault("layout.stable_threshold", 0.08)
	v.SetDefault("layout.emit_interval", "32ms")
	v.SetDefault("layout.dimensions", 3)
	v.SetDefault("layout.theta", 0.9)

	v.SetDefault("stream.listen_addr", ":8088")
	v.SetDefault("stream.path", "/snapshots")
	v.SetDefault("stream.client_buffer", 16)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.pretty", false)
}

// Validate checks that all configuration values are usable.
func (c *Config) Validate() error {
	if c.Viewer.Width < 1 || c.Viewer.Height < 1 {
		return fmt.Errorf("viewer.width and viewer.height must be positive")
	}
	if c.Viewer.TPS < 1 {
		return fmt.Errorf("viewer.tps must be at least 1")
	}
	if c.Viewer.ZoomMin <= 0 {
		return fmt.Errorf("viewer.zoom_min must be positive")
	}
	if c.Viewer.ZoomMin > c.Viewer.ZoomMax {
		return fmt.Errorf("viewer.zoom_min must not exceed viewer.zoom_max")
	}
	if c.Viewer.MarkerRadius <= 0 {
		return fmt.Errorf("viewer.marker_radius must be positive")
	}
	if c.Viewer.TrendWindow < 0 {
		return fmt.Errorf("viewer.trend_window must not be negative")
	}
	if c.Viewer.TrendSpan <= 0 || c.Viewer.TrendSpan > 1 {
		return fmt.Errorf("viewer.trend_span must be in (0, 1]")
	}
	if c.Viewer.HeatmapMaxAlpha < 0 || c.Viewer.HeatmapMaxAlpha > 1 {
		return fmt.Errorf("viewer.heatmap_max_alpha must be between 0 and 1")
	}
	if c.Viewer.HeatmapCols < 1 || c.Viewer.HeatmapRows < 1 {
		return fmt.Errorf("viewer.heatmap_cols and viewer.heatmap_rows must be at least 1")
	}
	if c.Viewer.DurationMin != 0 || c.Viewer.DurationMax != 0 {
		if c.Viewer.DurationMin < 0 || c.Viewer.DurationMax <= c.Viewer.DurationMin {
			return fmt.Errorf("viewer.duration_max must exceed a non-negative viewer.duration_min")
		}
	}

	if c.Bitmaps.FetchTimeout <= 0 {
		return fmt.Errorf("bitmaps.fetch_timeout must be positive")
	}
	if c.Bitmaps.PrefetchRate <= 0 {
		return fmt.Errorf("bitmaps.prefetch_rate must be positive")
	}
	if c.Bitmaps.PrefetchBurst < 1 {
		return fmt.Errorf("bitmaps.prefetch_burst must be at least 1")
	}
	if c.Bitmaps.Size < 8 {
		return fmt.Errorf("bitmaps.size must be at least 8")
	}

	if c.Layout.LinkDistance <= 0 {
		return fmt.Errorf("layout.link_distance must be positive")
	}
	if c.Layout.MinLinkStrength < 0 || c.Layout.MinLinkStrength > 1 {
		return fmt.Errorf("layout.min_link_strength must be between 0 and 1")
	}
	if c.Layout.VelocityDecay <= 0 || c.Layout.VelocityDecay >= 1 {
		return fmt.Errorf("layout.velocity_decay must be in (0, 1)")
	}
	if c.Layout.AlphaDecay <= 0 || c.Layout.AlphaDecay >= 1 {
		return fmt.Errorf("layout.alpha_decay must be in (0, 1)")
	}
	if c.Layout.StableThreshold <= c.Layout.AlphaMin {
		return fmt.Errorf("layout.stable_threshold must exceed layout.alpha_min")
	}
	if c.Layout.EmitInterval <= 0 {
		return fmt.Errorf("layout.emit_interval must be positive")
	}
	if c.Layout.Dimensions != 2 && c.Layout.Dimensions != 3 {
		return fmt.Errorf("layout.dimensions must be 2 or 3")
	}

	if c.Stream.Path == "" || !strings.HasPrefix(c.Stream.Path, "/") {
		return fmt.Errorf("stream.path must start with /")
	}
	if c.Stream.ClientBuffer < 1 {
		return fmt.Errorf("stream.client_buffer must be at least 1")
	}

	validLogLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: trace, debug, info, warn, error")
	}
	return nil
}
