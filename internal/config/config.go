package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the in-memory representation of ~/.greyhound/config.yaml.
// Zero fields mean "use the built-in default".
type Config struct {
	KSize       uint32 `yaml:"ksize,omitempty"`
	Scaled      uint64 `yaml:"scaled,omitempty"`
	ThresholdBP uint64 `yaml:"threshold_bp,omitempty"`
	Output      string `yaml:"output,omitempty"`
	Workers     int    `yaml:"workers,omitempty"`
	Listen      string `yaml:"listen,omitempty"`
}

// Environment variables consulted by ApplyEnv.
const (
	EnvKSize       = "GREYHOUND_KSIZE"
	EnvScaled      = "GREYHOUND_SCALED"
	EnvThresholdBP = "GREYHOUND_THRESHOLD_BP"
	EnvOutput      = "GREYHOUND_OUTPUT"
	EnvWorkers     = "GREYHOUND_WORKERS"
	EnvListen      = "GREYHOUND_LISTEN"
)

// GreyhoundDir returns the absolute path to ~/.greyhound/.
func GreyhoundDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".greyhound"), nil
}

// ConfigPath returns the absolute path to ~/.greyhound/config.yaml.
func ConfigPath() (string, error) {
	dir, err := GreyhoundDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(p string) (string, error) {
	if !strings.HasPrefix(p, "~") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot expand ~: %w", err)
	}
	return filepath.Join(home, p[1:]), nil
}

// DefaultConfig returns the values used when neither the config file, the
// environment nor a flag sets them.
func DefaultConfig() *Config {
	return &Config{
		KSize:       31,
		Scaled:      1000,
		ThresholdBP: 50000,
		Output:      "outputs",
		Listen:      "127.0.0.1:8081",
	}
}

// Load reads path, or ~/.greyhound/config.yaml when path is empty. A missing
// default file is not an error; a missing explicit path is.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		var err error
		if path, err = ConfigPath(); err != nil {
			return nil, err
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("cannot read config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid YAML in %s: %w", path, err)
	}
	cfg.Output, err = ExpandPath(cfg.Output)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save marshals cfg and writes it to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("cannot create %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("cannot write config %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides fields from GREYHOUND_* values, taken from the process
// environment first and ~/.greyhound/.env second.
func (c *Config) ApplyEnv() error {
	if v, err := GetConfigValue(EnvKSize); err != nil {
		return err
	} else if v != "" {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvKSize, v, err)
		}
		c.KSize = uint32(n)
	}
	for _, u := range []struct {
		key string
		dst *uint64
	}{{EnvScaled, &c.Scaled}, {EnvThresholdBP, &c.ThresholdBP}} {
		v, err := GetConfigValue(u.key)
		if err != nil {
			return err
		}
		if v == "" {
			continue
		}
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", u.key, v, err)
		}
		*u.dst = n
	}
	if v, err := GetConfigValue(EnvWorkers); err != nil {
		return err
	} else if v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvWorkers, v, err)
		}
		c.Workers = n
	}
	if v, err := GetConfigValue(EnvOutput); err != nil {
		return err
	} else if v != "" {
		c.Output = v
	}
	if v, err := GetConfigValue(EnvListen); err != nil {
		return err
	} else if v != "" {
		c.Listen = v
	}
	return nil
}

// WithDefaults fills zero fields from DefaultConfig. Workers stays zero,
// meaning one worker per CPU.
func (c *Config) WithDefaults() *Config {
	d := DefaultConfig()
	out := *c
	if out.KSize == 0 {
		out.KSize = d.KSize
	}
	if out.Scaled == 0 {
		out.Scaled = d.Scaled
	}
	if out.ThresholdBP == 0 {
		out.ThresholdBP = d.ThresholdBP
	}
	if out.Output == "" {
		out.Output = d.Output
	}
	if out.Listen == "" {
		out.Listen = d.Listen
	}
	return &out
}

// Resolve loads path, applies the environment and fills defaults.
func Resolve(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg.WithDefaults(), nil
}
