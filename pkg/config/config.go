// Package config provides configuration loading and management for voxelseg.
// It handles loading configuration from YAML files, provides default values and
// validates the result.
package config

import (
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Propagation criteria.
const (
	PropagationAlways    = "always"
	PropagationMonotonic = "monotonic"
	PropagationThreshold = "threshold"
)

// Fusion criteria.
const (
	FusionNever      = "never"
	FusionSize       = "size"
	FusionNumber     = "number"
	FusionSizeNumber = "size+number"
)

// Merge strategies.
const (
	MergeNone    = "none"
	MergeHessian = "hessian"
	MergeContact = "contact"
	MergeEdge    = "edge"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Processing parameters
	Processing struct {
		// NumCores specifies how many frames are segmented concurrently
		NumCores int `yaml:"numCores" validate:"gte=1"`

		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`

		// Debug logs every fusion and merge
		Debug bool `yaml:"debug"`
	} `yaml:"processing"`

	// Watershed parameters
	Watershed struct {
		// Decreasing floods from intensity maxima instead of minima
		Decreasing bool `yaml:"decreasing"`

		// Radius is the in-plane neighbourhood radius in voxels
		Radius float64 `yaml:"radius" validate:"gt=0"`

		// ZRadius is the inter-plane neighbourhood radius in planes
		ZRadius float64 `yaml:"zRadius" validate:"gt=0"`

		// Scales lists the Gaussian sigmas of the score maps, 0 meaning raw intensity
		Scales []float64 `yaml:"scales" validate:"min=1,dive,gte=0"`

		Propagation          string  `yaml:"propagation" validate:"oneof=always monotonic threshold"`
		PropagationThreshold float64 `yaml:"propagationThreshold"`

		Fusion            string `yaml:"fusion" validate:"oneof=never size number size+number"`
		MinRegionSize     int    `yaml:"minRegionSize" validate:"gte=0"`
		TargetRegionCount int    `yaml:"targetRegionCount" validate:"gte=0"`
	} `yaml:"watershed"`

	// Seed extraction parameters
	Seeds struct {
		// ForegroundThreshold is the intensity at or above which voxels may be segmented
		ForegroundThreshold float64 `yaml:"foregroundThreshold"`

		// Extrema selects intensity maxima or minima as seeds
		Extrema string `yaml:"extrema" validate:"oneof=min max"`

		// MinSeedValue discards weaker extrema: maxima below it, minima above it
		MinSeedValue float64 `yaml:"minSeedValue"`
	} `yaml:"seeds"`

	// Region merging parameters
	Merge struct {
		Strategy         string  `yaml:"strategy" validate:"oneof=none hessian contact edge"`
		SplitThreshold   float64 `yaml:"splitThreshold"`
		MinContact       int     `yaml:"minContact" validate:"gte=0"`
		HighConnectivity bool    `yaml:"highConnectivity"`
		HessianScale     float64 `yaml:"hessianScale" validate:"gte=0"`
		MinRegions       int     `yaml:"minRegions" validate:"gte=0"`
		FillHoles        bool    `yaml:"fillHoles"`
	} `yaml:"merge"`

	// Output parameters
	Output struct {
		// SaveLabels writes one colour PNG per plane and frame
		SaveLabels bool   `yaml:"saveLabels"`
		LabelsDir  string `yaml:"labelsDir"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	// Set default processing parameters
	cfg.Processing.NumCores = runtime.NumCPU() // Use all available cores by default
	cfg.Processing.Verbose = true

	// Set default watershed parameters
	cfg.Watershed.Decreasing = true
	cfg.Watershed.Radius = 1.5
	cfg.Watershed.ZRadius = 1.5
	cfg.Watershed.Scales = []float64{1}
	cfg.Watershed.Propagation = PropagationAlways
	cfg.Watershed.Fusion = FusionNever

	// Set default seed parameters
	cfg.Seeds.ForegroundThreshold = 20
	cfg.Seeds.Extrema = "max"
	cfg.Seeds.MinSeedValue = 40

	// Set default merge parameters
	cfg.Merge.Strategy = MergeHessian
	cfg.Merge.SplitThreshold = 0.3
	cfg.Merge.MinContact = 1
	cfg.Merge.HessianScale = 1
	cfg.Merge.FillHoles = true

	// Set default output parameters
	cfg.Output.LabelsDir = "labels"

	return cfg
}

func newValidator() *validator.Validate {
	v := validator.New()
	// Report fields by their YAML keys.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks field ranges and cross-field requirements. All failures are
// reported together; the result wraps ErrInvalidConfig.
func (c *Config) Validate() error {
	var err error

	if verr := newValidator().Struct(c); verr != nil {
		var fields validator.ValidationErrors
		if errors.As(verr, &fields) {
			for _, f := range fields {
				err = multierr.Append(err, errors.Errorf("%s: failed %s%s (got %v)",
					f.Namespace(), f.Tag(), param(f.Param()), f.Value()))
			}
		} else {
			err = multierr.Append(err, verr)
		}
	}

	w := c.Watershed
	if (w.Fusion == FusionSize || w.Fusion == FusionSizeNumber) && w.MinRegionSize < 1 {
		err = multierr.Append(err, errors.Errorf("watershed.minRegionSize must be positive for fusion %q", w.Fusion))
	}
	if (w.Fusion == FusionNumber || w.Fusion == FusionSizeNumber) && w.TargetRegionCount < 1 {
		err = multierr.Append(err, errors.Errorf("watershed.targetRegionCount must be positive for fusion %q", w.Fusion))
	}
	if c.Merge.Strategy == MergeContact && c.Merge.MinContact < 1 {
		err = multierr.Append(err, errors.New("merge.minContact must be positive for the contact strategy"))
	}
	if c.Output.SaveLabels && c.Output.LabelsDir == "" {
		err = multierr.Append(err, errors.New("output.labelsDir is required when saving labels"))
	}

	if err != nil {
		return errors.Wrap(ErrInvalidConfig, err.Error())
	}
	return nil
}

func param(p string) string {
	if p == "" {
		return ""
	}
	return "=" + p
}

// LoadConfig loads configuration from a YAML file and validates it.
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, errors.Wrap(err, "error reading config file")
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "error parsing config file")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrapf(err, "config file %s", configPath)
	}
	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(err, "error creating config directory")
	}

	// Marshal config to YAML
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, "error marshaling config")
	}

	// Write to file
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return errors.Wrap(err, "error writing config file")
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
