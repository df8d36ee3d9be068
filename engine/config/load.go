package config

import (
	"bytes"
	"fmt"
	"os"

	"github.com/Carmen-Shannon/oxy-rt/engine/gpu"
	"github.com/pelletier/go-toml/v2"
)

// Load reads a TOML file over the defaults. Keys missing from the file keep their default value;
// unknown keys are rejected.
//
// Parameters:
//   - path: the TOML file
//
// Returns:
//   - Config: the validated configuration
//   - error: on read, parse or validation failure
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes TOML over the defaults and validates the result.
//
// Parameters:
//   - data: TOML document
//
// Returns:
//   - Config: the validated configuration
//   - error: on parse or validation failure
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Marshal encodes the configuration as TOML.
func (c Config) Marshal() ([]byte, error) {
	return toml.Marshal(c)
}

// SuppressedWarnings resolves the suppressed category names.
//
// Returns:
//   - []gpu.WarningCategory: the categories
//   - error: if a name is unknown
func (c Config) SuppressedWarnings() ([]gpu.WarningCategory, error) {
	out := make([]gpu.WarningCategory, 0, len(c.Validation.Suppress))
	for _, name := range c.Validation.Suppress {
		cat, err := gpu.ParseWarningCategory(name)
		if err != nil {
			return nil, err
		}
		out = append(out, cat)
	}
	return out, nil
}

// WarningFilter returns a predicate reporting whether a category should be reported.
// Uncategorized warnings are always reported.
func (c Config) WarningFilter() func(gpu.WarningCategory) bool {
	cats, _ := c.SuppressedWarnings()
	suppressed := make(map[gpu.WarningCategory]bool, len(cats))
	for _, cat := range cats {
		suppressed[cat] = true
	}
	return func(cat gpu.WarningCategory) bool {
		return cat == gpu.WarningUncategorized || !suppressed[cat]
	}
}
