// Package config loads padosd's startup configuration from YAML, the
// same library family the rest of the domain stack favors over
// hand-rolled flag parsing for anything with nested structure.
package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kavionic/padosd/internal/geom"
	"github.com/kavionic/padosd/internal/logx"
)

// Config is padosd's top-level startup configuration.
type Config struct {
	Screen struct {
		Width      int    `yaml:"width"`
		Height     int    `yaml:"height"`
		ColorSpace string `yaml:"color_space"`
	} `yaml:"screen"`
	LogLevel string `yaml:"log_level"`
	Sink     string `yaml:"sink"` // "terminal" or "ebiten"; cmd/padosd always presents through TerminalSink
}

// Default returns the configuration used when no file is given: a
// 640x480 RGB32 screen, info logging, terminal output.
func Default() Config {
	var c Config
	c.Screen.Width = 640
	c.Screen.Height = 480
	c.Screen.ColorSpace = "rgb32"
	c.LogLevel = "info"
	c.Sink = "terminal"
	return c
}

// Load reads and parses a YAML config file, falling back to Default()
// field-by-field for anything the file leaves zero-valued.
func Load(path string) (Config, error) {
	c := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Config{}, err
	}
	if c.Screen.Width == 0 {
		c.Screen.Width = 640
	}
	if c.Screen.Height == 0 {
		c.Screen.Height = 480
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Sink == "" {
		c.Sink = "terminal"
	}
	return c, nil
}

// ColorSpace resolves the configured color space name, defaulting to
// RGB32 for an empty or unrecognized value.
func (c Config) ColorSpace() geom.ColorSpace {
	switch c.Screen.ColorSpace {
	case "cmap8":
		return geom.CMAP8
	case "rgb15":
		return geom.RGB15
	case "rgb16":
		return geom.RGB16
	case "rgb24":
		return geom.RGB24
	default:
		return geom.RGB32
	}
}

// LogLevelValue resolves the configured log level name, defaulting to Info.
func (c Config) LogLevelValue() logx.Level {
	switch c.LogLevel {
	case "debug":
		return logx.Debug
	case "warn":
		return logx.Warn
	case "error":
		return logx.Error
	case "critical":
		return logx.Critical
	default:
		return logx.Info
	}
}
