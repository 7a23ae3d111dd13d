package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sudorandom/fightscope/pkg/layout"
	"github.com/sudorandom/fightscope/pkg/scatter"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	if cfg.Viewer.ZoomMin != 0.5 || cfg.Viewer.ZoomMax != 12 {
		t.Errorf("unexpected zoom bounds: [%v, %v]", cfg.Viewer.ZoomMin, cfg.Viewer.ZoomMax)
	}
	if cfg.Layout.EmitInterval != 32*time.Millisecond {
		t.Errorf("unexpected emit interval: %v", cfg.Layout.EmitInterval)
	}
	if cfg.Layout.StableThreshold != 0.08 {
		t.Errorf("unexpected stable threshold: %v", cfg.Layout.StableThreshold)
	}
}

func TestLoadFile(t *testing.T) {
	content := `
viewer:
  width: 1920
  zoom_max: 8
layout:
  dimensions: 2
  emit_interval: 50ms
logging:
  level: debug
`
	dir, err := os.MkdirTemp("", "fightscope-config-*")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.RemoveAll(dir) }()

	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Viewer.Width != 1920 {
		t.Errorf("Unexpected width: %d", cfg.Viewer.Width)
	}
	if cfg.Viewer.Height != 720 {
		t.Errorf("Expected default height 720, got %d", cfg.Viewer.Height)
	}
	if cfg.Viewer.ZoomMax != 8 {
		t.Errorf("Unexpected zoom max: %v", cfg.Viewer.ZoomMax)
	}
	if cfg.Layout.Dimensions != 2 || cfg.Layout.EmitInterval != 50*time.Millisecond {
		t.Errorf("Unexpected layout config: %+v", cfg.Layout)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate failed: %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(os.TempDir(), "does-not-exist-fightscope.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("FIGHTSCOPE_VIEWER_ZOOM_MAX", "6")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Viewer.ZoomMax != 6 {
		t.Errorf("expected env override zoom_max=6, got %v", cfg.Viewer.ZoomMax)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"zero zoom min", func(c *Config) { c.Viewer.ZoomMin = 0 }},
		{"inverted zoom", func(c *Config) { c.Viewer.ZoomMin = 5; c.Viewer.ZoomMax = 2 }},
		{"bad span", func(c *Config) { c.Viewer.TrendSpan = 1.5 }},
		{"bad heatmap alpha", func(c *Config) { c.Viewer.HeatmapMaxAlpha = 2 }},
		{"inverted duration domain", func(c *Config) { c.Viewer.DurationMin = 600; c.Viewer.DurationMax = 60 }},
		{"negative duration min", func(c *Config) { c.Viewer.DurationMin = -5; c.Viewer.DurationMax = 60 }},
		{"bad dimensions", func(c *Config) { c.Layout.Dimensions = 4 }},
		{"threshold below alpha min", func(c *Config) { c.Layout.StableThreshold = 0.0001 }},
		{"zero emit interval", func(c *Config) { c.Layout.EmitInterval = 0 }},
		{"bad stream path", func(c *Config) { c.Stream.Path = "snapshots" }},
		{"bad log level", func(c *Config) { c.Logging.Level = "chatty" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load("")
			if err != nil {
				t.Fatal(err)
			}
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestDurationDomain(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if d := cfg.Viewer.DurationDomain(); d != nil {
		t.Errorf("default duration domain = %v, want nil", *d)
	}

	t.Setenv("FIGHTSCOPE_VIEWER_DURATION_MAX", "1500")
	cfg, err = Load("")
	if err != nil {
		t.Fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	d := cfg.Viewer.DurationDomain()
	if d == nil || d[0] != 0 || d[1] != 1500 {
		t.Errorf("duration domain = %v, want [0 1500]", d)
	}
}

func TestDefaultsMatchComponentDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if got, want := cfg.Layout.Options(), layout.DefaultOptions(); got != want {
		t.Errorf("layout options = %+v, want %+v", got, want)
	}
	if err := cfg.Layout.Options().Validate(); err != nil {
		t.Errorf("default layout options invalid: %v", err)
	}
	if got, want := cfg.Viewer.PlotConfig(), scatter.DefaultConfig(); got != want {
		t.Errorf("plot config = %+v, want %+v", got, want)
	}
	if z := cfg.Viewer.Zoom(); z != [2]float64{0.5, 12} {
		t.Errorf("zoom = %v", z)
	}
	if l := cfg.Bitmaps.Limiter(); l.Burst() != 2 || float64(l.Limit()) != 8 {
		t.Errorf("limiter = %v/%d", l.Limit(), l.Burst())
	}

	cfg.Viewer.DurationUp = false
	if cfg.Viewer.PlotConfig().Direction != scatter.DurationDown {
		t.Error("duration_up=false should flip the axis")
	}
}
