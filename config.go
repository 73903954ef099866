package rescue

import (
	"fmt"
	"path/filepath"
	"strings"

	kjson "github.com/knadh/koanf/parsers/json"
	kyaml "github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// LoadConfig reads a driver configuration from a JSON or YAML file on top of
// the defaults, with RESCUE_-prefixed environment overrides.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	k := koanf.New(".")

	if path != "" {
		ext := strings.ToLower(filepath.Ext(path))
		var parser koanf.Parser
		switch ext {
		case ".yaml", ".yml":
			parser = kyaml.Parser()
		case ".json":
			parser = kjson.Parser()
		default:
			return cfg, fmt.Errorf("unsupported config format: %s", ext)
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return cfg, fmt.Errorf("loading config %s: %w", path, err)
		}
	}
	if err := k.Load(env.Provider("RESCUE_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "rescue_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return cfg, fmt.Errorf("loading config environment: %w", err)
	}
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return cfg, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects configurations that would void the termination
// guarantees.
func (cfg Config) Validate() error {
	if cfg.MaxIterations < 1 {
		return fmt.Errorf("max_iterations must be at least 1, got %d", cfg.MaxIterations)
	}
	if cfg.MaxNodes < 1 {
		return fmt.Errorf("max_nodes must be at least 1, got %d", cfg.MaxNodes)
	}
	if cfg.Gap <= 0 {
		return fmt.Errorf("gap must be positive, got %f", cfg.Gap)
	}
	if cfg.StagnationWindow < 1 {
		return fmt.Errorf("stagnation_window must be at least 1, got %d", cfg.StagnationWindow)
	}
	if cfg.AllocBounds != AllocBoundsBin && cfg.AllocBounds != AllocBoundsCont {
		return fmt.Errorf("alloc_bounds must be %s or %s, got %q", AllocBoundsBin, AllocBoundsCont, cfg.AllocBounds)
	}
	return nil
}
