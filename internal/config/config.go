package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/menta2k/read-segments/pkg/viewport"
)

// Config holds the application configuration
type Config struct {
	Service ServiceConfig `json:"service"`
	Viewer  ViewerConfig  `json:"viewer"`
	Crop    CropConfig    `json:"crop"`
	Vision  VisionConfig  `json:"vision"`
	Log     LogConfig     `json:"log"`
}

// ServiceConfig locates the READ CRUD services
type ServiceConfig struct {
	BaseURL   string   `json:"base_url"`
	DB        string   `json:"db"`
	Timeout   Duration `json:"timeout"`
	UserAgent string   `json:"user_agent"`
}

// ViewerConfig holds the image pane settings
type ViewerConfig struct {
	viewport.Config
	CrossSize       int     `json:"cross_size"`
	CloseTolerance  float64 `json:"close_tolerance"`
	DefaultRectSize int     `json:"default_rect_size"`
	SyncScroll      bool    `json:"sync_scroll"`
}

// CropConfig holds configuration for the crop service
type CropConfig struct {
	ServicePath string `json:"service_path"`
	Listen      string `json:"listen"`
	ImageRoot   string `json:"image_root"`
	Format      string `json:"format"`
	Quality     int    `json:"quality"`
	Lossless    bool   `json:"lossless"`
	ThumbWidth  int    `json:"thumb_width"`
}

// VisionConfig holds configuration for segment proposals
type VisionConfig struct {
	Backend       string  `json:"backend"`
	URL           string  `json:"url"`
	Model         string  `json:"model"`
	MaxDim        int     `json:"max_dim"`
	Quality       int     `json:"quality"`
	MinConfidence float64 `json:"min_confidence"`
}

// LogConfig holds configuration for console and file logging
type LogConfig struct {
	File         string `json:"file"`
	MaxSizeMB    int    `json:"max_size_mb"`
	MaxBackups   int    `json:"max_backups"`
	MaxAgeDays   int    `json:"max_age_days"`
	ConsoleLevel string `json:"console_level"`
	FileLevel    string `json:"file_level"`
}

// Duration is a time.Duration written as "30s" in JSON
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		var n int64
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("invalid duration %s", data)
		}
		*d = Duration(time.Duration(n) * time.Second)
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Service: ServiceConfig{
			BaseURL:   "http://localhost/readSVN",
			DB:        "",
			Timeout:   Duration(30 * time.Second),
			UserAgent: "read-segments/1.0",
		},
		Viewer: ViewerConfig{
			Config:          viewport.DefaultConfig(),
			CrossSize:       10,
			CloseTolerance:  3,
			DefaultRectSize: 20,
			SyncScroll:      true,
		},
		Crop: CropConfig{
			ServicePath: "/services/cropImage.php",
			Listen:      ":8090",
			Format:      "jpg",
			Quality:     90,
			ThumbWidth:  150,
		},
		Vision: VisionConfig{
			Backend: "ollama",
			URL:     "http://localhost:11434",
			Model:   "minicpm-v4",
			MaxDim:  1024,
			Quality: 85,
		},
		Log: LogConfig{
			File:         "logs/read-segments.log",
			MaxSizeMB:    10,
			MaxBackups:   3,
			MaxAgeDays:   28,
			ConsoleLevel: "error",
			FileLevel:    "debug",
		},
	}
}

// LoadFromFile loads configuration from a JSON file. Keys missing from the
// file keep their default values.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a JSON file
func (c *Config) SaveToFile(filename string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Service.BaseURL == "" {
		return fmt.Errorf("service.base_url cannot be empty")
	}

	if c.Service.Timeout < 0 {
		return fmt.Errorf("service.timeout must not be negative")
	}

	v := c.Viewer
	if v.MinPercent < 1 || v.MaxPercent < v.MinPercent {
		return fmt.Errorf("viewer.min_percent must be positive and not above viewer.max_percent")
	}

	if v.InitViewPercent < v.MinPercent || v.InitViewPercent > v.MaxPercent {
		return fmt.Errorf("viewer.init_view_percent must be between min_percent and max_percent")
	}

	if v.StepPercent < 1 {
		return fmt.Errorf("viewer.step_percent must be positive")
	}

	if v.NavSizePercent < 1 || v.NavSizePercent > 100 {
		return fmt.Errorf("viewer.nav_size_percent must be between 1 and 100")
	}

	if v.NavOpacity < 0 || v.NavOpacity > 1 {
		return fmt.Errorf("viewer.nav_opacity must be between 0 and 1")
	}

	if v.CloseTolerance < 0 {
		return fmt.Errorf("viewer.close_tolerance must not be negative")
	}

	switch strings.ToLower(c.Crop.Format) {
	case "jpg", "jpeg", "png", "webp":
	default:
		return fmt.Errorf("crop.format must be jpg, png or webp")
	}

	if c.Crop.Quality < 1 || c.Crop.Quality > 100 {
		return fmt.Errorf("crop.quality must be between 1 and 100")
	}

	if c.Crop.ThumbWidth < 0 {
		return fmt.Errorf("crop.thumb_width must not be negative")
	}

	switch c.Vision.Backend {
	case "ollama", "llamacpp", "local":
	default:
		return fmt.Errorf("vision.backend must be ollama, llamacpp or local")
	}

	if c.Vision.Quality < 1 || c.Vision.Quality > 100 {
		return fmt.Errorf("vision.quality must be between 1 and 100")
	}

	if c.Vision.MinConfidence < 0 || c.Vision.MinConfidence > 1 {
		return fmt.Errorf("vision.min_confidence must be between 0 and 1")
	}

	for key, lvl := range map[string]string{"log.console_level": c.Log.ConsoleLevel, "log.file_level": c.Log.FileLevel} {
		switch strings.ToLower(lvl) {
		case "", "debug", "info", "warn", "error":
		default:
			return fmt.Errorf("%s must be one of debug, info, warn, error", key)
		}
	}

	return nil
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}
	return filepath.Join(home, ".config", "read-segments", "config.json")
}
