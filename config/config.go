// Package config loads the wallet's YAML configuration: this device's
// identity, curve selection, threshold parameters, and peer addresses.
// The loader mirrors the teacher corpus's config.Load shape: read,
// unmarshal, apply defaults, validate.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration for YAML "2s"/"500ms" strings.
type Duration struct{ time.Duration }

// UnmarshalYAML parses a Go duration string into d.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("duration must be a string (e.g. \"2s\"): %w", err)
	}
	if s == "" {
		d.Duration = 0
		return nil
	}
	dd, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = dd
	return nil
}

// Config is the wallet process's full configuration.
type Config struct {
	LogLevel string `yaml:"logLevel"` // debug | info | warn | error

	Device struct {
		Name   string `yaml:"name"`
		Listen string `yaml:"listen"` // e.g. ":9443"
	} `yaml:"device"`

	Curve string `yaml:"curve"` // secp256k1 | ed25519

	Threshold struct {
		T int `yaml:"t"`
		N int `yaml:"n"`
	} `yaml:"threshold"`

	Peers []PeerConfig `yaml:"peers"`

	Chain struct {
		ID uint64 `yaml:"id"` // EVM chain id; 0 means legacy v in {27,28}
	} `yaml:"chain"`

	KeyStore struct {
		Dir string `yaml:"dir"`
	} `yaml:"keystore"`

	CeremonyTimeout Duration `yaml:"ceremonyTimeout"`
}

// PeerConfig names one other device in the signing group.
type PeerConfig struct {
	ID   int    `yaml:"id"`
	Addr string `yaml:"addr"`
}

// Load reads path, parses YAML, applies defaults, and validates the
// result.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(c *Config) {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Device.Listen == "" {
		c.Device.Listen = ":9443"
	}
	if c.KeyStore.Dir == "" {
		c.KeyStore.Dir = "./keys"
	}
	if c.CeremonyTimeout.Duration == 0 {
		c.CeremonyTimeout = Duration{Duration: 30 * time.Second}
	}
}

func validate(c *Config) error {
	if c.Device.Name == "" {
		return errors.New("config: device.name is required")
	}
	if c.Curve != "secp256k1" && c.Curve != "ed25519" {
		return fmt.Errorf("config: curve must be secp256k1 or ed25519, got %q", c.Curve)
	}
	if c.Threshold.T < 2 {
		return errors.New("config: threshold.t must be at least 2")
	}
	if c.Threshold.N < c.Threshold.T {
		return errors.New("config: threshold.n must be >= threshold.t")
	}
	if len(c.Peers) != c.Threshold.N-1 {
		return fmt.Errorf("config: expected %d peers (n-1), got %d", c.Threshold.N-1, len(c.Peers))
	}
	seen := make(map[int]bool, len(c.Peers))
	for _, p := range c.Peers {
		if p.ID < 1 || p.ID > c.Threshold.N {
			return fmt.Errorf("config: peer id %d out of range [1,%d]", p.ID, c.Threshold.N)
		}
		if seen[p.ID] {
			return fmt.Errorf("config: duplicate peer id %d", p.ID)
		}
		seen[p.ID] = true
		if p.Addr == "" {
			return fmt.Errorf("config: peer %d missing addr", p.ID)
		}
	}
	return nil
}
