// Package config provides configuration loading and management for videoslicer.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"videoslicer/internal/models"
)

// Input sources
const (
	SourceVideo  = "video"
	SourceImages = "images"
)

// AxisSlice configures one axis-aligned slice
type AxisSlice struct {
	// Index is the voxel index along the axis, -1 centers it after loading
	Index   int  `yaml:"index"`
	Visible bool `yaml:"visible"`
}

// ObliqueSlice configures one arbitrary plane through the volume
type ObliqueSlice struct {
	// Origin is a world-space point on the plane; it must lie inside the volume
	Origin [3]float64 `yaml:"origin"`
	Normal [3]float64 `yaml:"normal"`

	// Color is RGBA in [0, 1]; omitted uses the default slice color
	Color *[4]float64 `yaml:"color,omitempty"`
}

// SliceColor returns the configured color or the default one
func (o ObliqueSlice) SliceColor() models.Color {
	if o.Color == nil {
		return models.DefaultSliceColor
	}
	c := *o.Color
	return models.Color{R: c[0], G: c[1], B: c[2], A: c[3]}
}

// Config represents the application configuration loaded from YAML
type Config struct {
	// Input describes where frames come from and how they are decoded
	Input struct {
		// Path is a video file or a directory of numbered images
		Path string `yaml:"path"`

		// Source is "video" or "images"
		Source string `yaml:"source"`

		// PixelFormat is "gray", "rgb" or "rgba"
		PixelFormat string `yaml:"pixelFormat"`

		FrameOffset int `yaml:"frameOffset"`

		// FrameCount of -1 reads every remaining frame
		FrameCount int `yaml:"frameCount"`

		// FlipVertical stores image rows bottom-up
		FlipVertical bool `yaml:"flipVertical"`

		// CacheDir keeps decoded volumes between runs; empty disables caching
		CacheDir string `yaml:"cacheDir"`
	} `yaml:"input"`

	Slices struct {
		Axis    [3]AxisSlice   `yaml:"axis"`
		Oblique []ObliqueSlice `yaml:"oblique"`
	} `yaml:"slices"`

	// Output parameters; empty paths are skipped
	Output struct {
		GLTF      string `yaml:"gltf"`
		STL       string `yaml:"stl"`
		ImagesDir string `yaml:"imagesDir"`

		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Input.Source = SourceVideo
	cfg.Input.PixelFormat = models.RGB.String()
	cfg.Input.FrameOffset = 0
	cfg.Input.FrameCount = -1
	cfg.Input.FlipVertical = true

	cfg.Slices.Axis = [3]AxisSlice{
		{Index: -1, Visible: false},
		{Index: -1, Visible: false},
		{Index: -1, Visible: true},
	}

	cfg.Output.GLTF = "slices.glb"
	cfg.Output.Verbose = true

	return cfg
}

// Validate checks the values that cannot be caught by the YAML decoder
func (c *Config) Validate() error {
	switch c.Input.Source {
	case SourceVideo, SourceImages:
	default:
		return fmt.Errorf("invalid input source %q (must be %s or %s)", c.Input.Source, SourceVideo, SourceImages)
	}
	if _, err := models.ParsePixelFormat(c.Input.PixelFormat); err != nil {
		return err
	}
	if c.Input.FrameOffset < 0 {
		return fmt.Errorf("frameOffset must be non-negative, got %d", c.Input.FrameOffset)
	}
	if c.Input.FrameCount == 0 || c.Input.FrameCount < -1 {
		return fmt.Errorf("frameCount must be positive or -1, got %d", c.Input.FrameCount)
	}
	for i, a := range c.Slices.Axis {
		if a.Index < -1 {
			return fmt.Errorf("axis slice %d: index must be -1 or non-negative, got %d", i, a.Index)
		}
	}
	for i, o := range c.Slices.Oblique {
		if o.Normal == [3]float64{} {
			return fmt.Errorf("oblique slice %d: normal must be non-zero", i)
		}
		if o.Color != nil {
			for _, v := range o.Color {
				if v < 0 || v > 1 {
					return fmt.Errorf("oblique slice %d: color components must be in [0, 1]", i)
				}
			}
		}
	}
	return nil
}

// Format returns the parsed pixel format
func (c *Config) Format() models.PixelFormat {
	f, err := models.ParsePixelFormat(c.Input.PixelFormat)
	if err != nil {
		return models.RGB
	}
	return f
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
	}
	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile writes a default configuration file to configPath
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
