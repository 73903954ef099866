package rescue

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"max_iterations": 7, "gap": 0.5}`), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.MaxIterations)
	assert.Equal(t, 0.5, cfg.Gap)
	// untouched keys keep their defaults
	assert.Equal(t, DefaultConfig().StagnationWindow, cfg.StagnationWindow)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("RESCUE_MAX_NODES", "42")
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, 42, cfg.MaxNodes)
}

func TestLoadConfigUnsupportedFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.toml")
	require.NoError(t, os.WriteFile(path, []byte(""), 0644))
	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero iterations", func(c *Config) { c.MaxIterations = 0 }},
		{"zero nodes", func(c *Config) { c.MaxNodes = 0 }},
		{"negative gap", func(c *Config) { c.Gap = -1 }},
		{"zero window", func(c *Config) { c.StagnationWindow = 0 }},
		{"bad bounds", func(c *Config) { c.AllocBounds = "MAYBE" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
	assert.NoError(t, DefaultConfig().Validate())
}
