// Package config carries the render configuration: documented defaults,
// overridable from an optional YAML file.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds every recognised render option.
type Config struct {
	MaxBounceCount       int     `yaml:"maxBounceCount"`
	IntegrationSeconds   float64 `yaml:"integrationSeconds"`
	VcmRadiusFactor      float64 `yaml:"vcmRadiusFactor"`
	VcmRadiusAlpha       float64 `yaml:"vcmRadiusAlpha"`
	RaysPerPixel         int     `yaml:"raysPerPixel"`
	EnableMultiThreading bool    `yaml:"enableMultiThreading"`
}

// Default returns the documented default configuration.
func Default() Config {
	return Config{
		MaxBounceCount:       10,
		IntegrationSeconds:   30.0,
		VcmRadiusFactor:      0.005,
		VcmRadiusAlpha:       0.75,
		RaysPerPixel:         256,
		EnableMultiThreading: true,
	}
}

// WorkerCount maps the threading flag to a worker count.
func (c Config) WorkerCount() int {
	if c.EnableMultiThreading {
		return 8
	}
	return 1
}

// Load overlays the YAML file at path onto the defaults. An empty path or
// a missing file yields the defaults: a missing optional override is not
// an error, unlike a missing required scene asset.
func Load(path string) (Config, error) {
	c := Default()
	if path == "" {
		return c, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return c, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return c, nil
}
