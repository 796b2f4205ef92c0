package msentropy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/2bereal-me/MSEntropy/shard"
)

// CleanConfig is the cleaning section of a repository config file.
// Pointer fields distinguish "absent" from an explicit zero.
type CleanConfig struct {
	Enabled          *bool    `yaml:"enabled"`
	PrecursorRemoval *float32 `yaml:"precursor_removal_da"`
	NoiseThreshold   *float32 `yaml:"noise_threshold"`
	MinPeakGap       *float32 `yaml:"min_peak_gap_da"`
	MaxPeaks         *int     `yaml:"max_peaks"`
}

// Config mirrors the repository's options for file-based configuration.
//
//	build_threshold: 5000
//	insert_mode: fast_search
//	neutral_loss: true
//	clean:
//	  enabled: true
//	  precursor_removal_da: 1.6
//	  noise_threshold: 0.01
//	  min_peak_gap_da: 0.05
//	  max_peaks: 0
type Config struct {
	BuildThreshold int         `yaml:"build_threshold"`
	InsertMode     string      `yaml:"insert_mode"`
	NeutralLoss    *bool       `yaml:"neutral_loss"`
	Clean          CleanConfig `yaml:"clean"`
}

// LoadConfig reads a YAML config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &cfg, nil
}

// Options converts the config into repository options. Absent fields keep
// their defaults.
func (c *Config) Options() ([]Option, error) {
	var opts []Option

	if c.BuildThreshold > 0 {
		opts = append(opts, WithBuildThreshold(c.BuildThreshold))
	}

	switch c.InsertMode {
	case "":
	case "fast_update":
		opts = append(opts, WithInsertMode(shard.FastUpdate))
	case "fast_search":
		opts = append(opts, WithInsertMode(shard.FastSearch))
	default:
		return nil, fmt.Errorf("unknown insert_mode %q", c.InsertMode)
	}

	if c.NeutralLoss != nil {
		opts = append(opts, WithNeutralLoss(*c.NeutralLoss))
	}
	if c.Clean.Enabled != nil {
		opts = append(opts, WithCleaning(*c.Clean.Enabled))
	}
	if c.Clean.PrecursorRemoval != nil {
		opts = append(opts, WithPrecursorRemoval(*c.Clean.PrecursorRemoval))
	}
	if c.Clean.NoiseThreshold != nil {
		opts = append(opts, WithNoiseThreshold(*c.Clean.NoiseThreshold))
	}
	if c.Clean.MinPeakGap != nil {
		opts = append(opts, WithMinPeakGap(*c.Clean.MinPeakGap))
	}
	if c.Clean.MaxPeaks != nil {
		opts = append(opts, WithMaxPeaks(*c.Clean.MaxPeaks))
	}

	return opts, nil
}
