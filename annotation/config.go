package annotation

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/lewtec/demarcador/internal/domain"
	"github.com/lewtec/demarcador/internal/drawing"
	"github.com/lewtec/demarcador/internal/geometry"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Meta struct {
		Description string `yaml:"description"`
	} `yaml:"meta"`
	User       string            `yaml:"user"`
	Categories []*ConfigCategory `yaml:"categories"`
	Drawing    ConfigDrawing     `yaml:"drawing"`
	Export     ConfigExport      `yaml:"export"`
	Server     ConfigServer      `yaml:"server"`
	I18n       ConfigI18n        `yaml:"i18n"`
	LogLevel   string            `yaml:"log_level"`
	LogFormat  string            `yaml:"log_format"`
}

// ConfigCategory seeds the registry of a fresh database
type ConfigCategory struct {
	Name        string `yaml:"name"`
	Color       string `yaml:"color"`
	Description string `yaml:"description"`
}

type ConfigDrawing struct {
	MinSize      float64 `yaml:"min_size"`
	HandleRadius float64 `yaml:"handle_radius"`
}

type ConfigExport struct {
	// CategoryOrder fixes the YOLO class indices, by category id or name
	CategoryOrder []string `yaml:"category_order"`
}

type ConfigServer struct {
	Addr string `yaml:"addr"`
}

type ConfigI18n struct {
	Language string `yaml:"language"`
}

// DefaultConfig is what init writes for a new project
func DefaultConfig() *Config {
	cfg := &Config{
		User:      "annotator",
		Drawing:   ConfigDrawing{MinSize: geometry.DefaultMinSize, HandleRadius: geometry.DefaultHandleRadius},
		Server:    ConfigServer{Addr: ":8080"},
		I18n:      ConfigI18n{Language: "en"},
		LogLevel:  "info",
		LogFormat: "text",
	}
	cfg.Meta.Description = "Draw a box around every object and pick its category."
	for _, c := range domain.DefaultCategories() {
		cfg.Categories = append(cfg.Categories, &ConfigCategory{Name: c.Name, Color: c.Color})
	}
	return cfg
}

func LoadConfig(filename string) (*Config, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	var ret Config
	if err := yaml.Unmarshal(data, &ret); err != nil {
		return nil, fmt.Errorf("while parsing %s: %w", filename, err)
	}
	if err := ret.validate(); err != nil {
		return nil, fmt.Errorf("while validating %s: %w", filename, err)
	}
	return &ret, nil
}

// WriteConfig stores cfg as YAML at filename
func WriteConfig(filename string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0o644)
}

func (c *Config) validate() error {
	seen := map[string]bool{}
	for i, cat := range c.Categories {
		if cat == nil || strings.TrimSpace(cat.Name) == "" {
			return fmt.Errorf("category %d has no name", i+1)
		}
		if seen[cat.Name] {
			return fmt.Errorf("category %s is listed twice", cat.Name)
		}
		seen[cat.Name] = true
	}
	if c.Drawing.MinSize < 0 || c.Drawing.HandleRadius < 0 {
		return fmt.Errorf("drawing thresholds must not be negative")
	}
	return nil
}

// SeedCategories turns the configured categories into registry records.
// Ids equal names, like the built-in defaults.
func (c *Config) SeedCategories() []domain.Category {
	out := make([]domain.Category, 0, len(c.Categories))
	for i, cat := range c.Categories {
		out = append(out, domain.Category{
			ID:          cat.Name,
			Name:        cat.Name,
			Color:       stringOr(cat.Color, "#9ca3af"),
			Description: cat.Description,
			Order:       i + 1,
		})
	}
	return out
}

// DrawingConfig returns the gesture thresholds, defaults filled in
func (c *Config) DrawingConfig() drawing.Config {
	cfg := drawing.DefaultConfig()
	if c.Drawing.MinSize > 0 {
		cfg.MinSize = c.Drawing.MinSize
	}
	if c.Drawing.HandleRadius > 0 {
		cfg.HandleRadius = c.Drawing.HandleRadius
	}
	return cfg
}

// ConfigureLogging applies log_level and log_format to the global logger
func (c *Config) ConfigureLogging() error {
	if c.LogLevel != "" {
		level, err := log.ParseLevel(c.LogLevel)
		if err != nil {
			return fmt.Errorf("while parsing log_level: %w", err)
		}
		log.SetLevel(level)
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "text":
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	default:
		return fmt.Errorf("unknown log_format %q", c.LogFormat)
	}
	return nil
}

func stringOr(str, or string) string {
	if str != "" {
		return str
	}
	return or
}
