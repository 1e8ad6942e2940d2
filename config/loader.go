package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads a YAML config document from path, applies WithDefaults, and
// returns it unvalidated (callers run Validate themselves, since a fatal
// Report is a legitimate result the caller must decide how to surface, not
// an error Load should return). Grounded on the teacher's
// config.Loader.loadFromFile: YAML is the one source of truth here rather
// than the teacher's defaults-then-file-then-env precedence chain, because
// Claudette's schema already has a narrower env-var surface
// (ApplyEnvCredentials) layered on by the caller after Load returns.
//
// A missing file is not an error: Load returns WithDefaults(Config{}),
// mirroring loadFromFile's tolerate-absence behavior so a host can point
// Load at an optional override file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return WithDefaults(Config{}), nil
		}
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}

	return WithDefaults(cfg), nil
}

// MustLoad is Load for callers that treat a malformed config file as fatal
// (e.g. a main package wiring up the runtime at startup), matching the
// teacher's MustLoad convenience wrapper.
func MustLoad(path string) Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}
	return cfg
}
