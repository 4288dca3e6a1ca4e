// Package config loads blockwalk settings from a config file and BLOCKWALK_*
// environment variables.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chazu/blockwalk/pkg/blockdb"
	"github.com/chazu/blockwalk/pkg/engine"
	"github.com/chazu/blockwalk/pkg/geom"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. BLOCKWALK_TRAVERSE_FLAT.
const EnvPrefix = "BLOCKWALK"

// Config is the complete blockwalk configuration.
type Config struct {
	Traverse TraverseConfig `mapstructure:"traverse"`
	Explode  ExplodeConfig  `mapstructure:"explode"`
	Mesh     MeshConfig     `mapstructure:"mesh"`
	Script   ScriptConfig   `mapstructure:"script"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Output   OutputConfig   `mapstructure:"output"`
}

// TraverseConfig holds the defaults for every traversal the CLI runs.
type TraverseConfig struct {
	// Resolution is "instantiated" or "canonical".
	Resolution string `mapstructure:"resolution"`
	Flat       bool   `mapstructure:"flat"`
	Nested     bool   `mapstructure:"nested"`
	// RetainCache keeps the flat-mode visit cache between runs.
	RetainCache bool `mapstructure:"retain_cache"`
}

// ExplodeConfig configures the deep explode command.
type ExplodeConfig struct {
	// Tolerance for the uniform scale check.
	Tolerance float64 `mapstructure:"tolerance"`
	// Target names the definition receiving the copies; empty means the root.
	Target string `mapstructure:"target"`
}

// MeshConfig configures tessellation.
type MeshConfig struct {
	Cells int  `mapstructure:"cells"`
	Merge bool `mapstructure:"merge"`
}

// ScriptConfig configures .bwl evaluation.
type ScriptConfig struct {
	// Timeout accepts Go durations such as "2s" or "500ms".
	Timeout time.Duration `mapstructure:"timeout"`
}

// LoggingConfig configures logrus.
type LoggingConfig struct {
	Level        string `mapstructure:"level"`
	DisableColor bool   `mapstructure:"disable_color"`
}

// OutputConfig configures command output.
type OutputConfig struct {
	// Format is "table" or "json".
	Format string `mapstructure:"format"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Traverse: TraverseConfig{
			Resolution: blockdb.ResolveInstantiated.String(),
			Nested:     true,
		},
		Explode: ExplodeConfig{Tolerance: geom.DefaultTolerance},
		Mesh:    MeshConfig{Cells: 200},
		Script:  ScriptConfig{Timeout: engine.DefaultTimeout},
		Logging: LoggingConfig{Level: "info"},
		Output:  OutputConfig{Format: "table"},
	}
}

func setDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("traverse.resolution", d.Traverse.Resolution)
	v.SetDefault("traverse.flat", d.Traverse.Flat)
	v.SetDefault("traverse.nested", d.Traverse.Nested)
	v.SetDefault("traverse.retain_cache", d.Traverse.RetainCache)
	v.SetDefault("explode.tolerance", d.Explode.Tolerance)
	v.SetDefault("explode.target", d.Explode.Target)
	v.SetDefault("mesh.cells", d.Mesh.Cells)
	v.SetDefault("mesh.merge", d.Mesh.Merge)
	v.SetDefault("script.timeout", d.Script.Timeout)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.disable_color", d.Logging.DisableColor)
	v.SetDefault("output.format", d.Output.Format)
}

// Load reads the config file at path, or searches for blockwalk.{yaml,toml,json}
// in the working directory and the user config directory when path is
// empty. A missing searched file is not an error. Environment variables
// override both.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("blockwalk")
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "blockwalk"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "read config")
		}
	} else {
		logrus.WithField("file", v.ConfigFileUsed()).Debug("config loaded")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for values no command can use.
func (c *Config) Validate() error {
	if _, err := blockdb.ParseResolution(c.Traverse.Resolution); err != nil {
		return &ConfigError{Field: "traverse.resolution", Message: "must be instantiated or canonical"}
	}
	if c.Explode.Tolerance <= 0 {
		return &ConfigError{Field: "explode.tolerance", Message: "must be positive"}
	}
	if c.Mesh.Cells < 8 {
		return &ConfigError{Field: "mesh.cells", Message: "must be at least 8"}
	}
	if c.Script.Timeout <= 0 {
		return &ConfigError{Field: "script.timeout", Message: "must be positive"}
	}
	if _, err := logrus.ParseLevel(c.Logging.Level); err != nil {
		return &ConfigError{Field: "logging.level", Message: err.Error()}
	}
	switch c.Output.Format {
	case "table", "json":
	default:
		return &ConfigError{Field: "output.format", Message: "must be table or json"}
	}
	return nil
}

// Resolution returns the parsed traversal resolution. Call after Validate.
func (c *Config) Resolution() blockdb.Resolution {
	r, _ := blockdb.ParseResolution(c.Traverse.Resolution)
	return r
}

// ConfigError represents a configuration error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error in field '" + e.Field + "': " + e.Message
}
