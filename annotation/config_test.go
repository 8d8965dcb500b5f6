package annotation

import (
	"os"
	"path/filepath"
	"testing"
)

func TestConfig(t *testing.T) {
	t.Run("written defaults load back", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		if err := WriteConfig(path, DefaultConfig()); err != nil {
			t.Fatal(err)
		}
		cfg, err := LoadConfig(path)
		if err != nil {
			t.Fatal(err)
		}
		if cfg.User != "annotator" || cfg.Server.Addr != ":8080" {
			t.Errorf("Got %+v", cfg)
		}
		seeds := cfg.SeedCategories()
		if len(seeds) != 3 || seeds[0].ID != "Defect" || seeds[2].Order != 3 {
			t.Errorf("Got %+v", seeds)
		}
	})

	t.Run("drawing thresholds fall back to defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		os.WriteFile(path, []byte("drawing:\n  min_size: 4\n"), 0o644)
		cfg, err := LoadConfig(path)
		if err != nil {
			t.Fatal(err)
		}
		d := cfg.DrawingConfig()
		if d.MinSize != 4 || d.HandleRadius != 8 {
			t.Errorf("Got %+v", d)
		}
	})

	t.Run("invalid configs", func(t *testing.T) {
		cases := map[string]string{
			"duplicate category": "categories:\n  - name: a\n  - name: a\n",
			"unnamed category":   "categories:\n  - color: '#fff'\n",
			"negative threshold": "drawing:\n  min_size: -1\n",
			"not yaml":           "categories: [",
		}
		for name, content := range cases {
			t.Run(name, func(t *testing.T) {
				path := filepath.Join(t.TempDir(), "config.yaml")
				os.WriteFile(path, []byte(content), 0o644)
				if _, err := LoadConfig(path); err == nil {
					t.Error("Got no error")
				}
			})
		}
	})

	t.Run("logging", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.LogFormat = "json"
		if err := cfg.ConfigureLogging(); err != nil {
			t.Error(err)
		}
		cfg.LogLevel = "loud"
		if err := cfg.ConfigureLogging(); err == nil {
			t.Error("Got no error for an unknown level")
		}
		cfg.LogLevel, cfg.LogFormat = "info", "text"
		if err := cfg.ConfigureLogging(); err != nil {
			t.Error(err)
		}
	})
}
