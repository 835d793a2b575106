package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 82, cfg.TokenAPIPort)
	assert.Equal(t, "/24", cfg.IncrementOctet)
	assert.Equal(t, 10, cfg.IPIncrement)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "labfleet.yaml")
	content := `
portal_base_url: https://training.example.com
ip_increment: 20
increment_octet: /16
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://training.example.com", cfg.PortalBaseURL)
	assert.Equal(t, 20, cfg.IPIncrement)
	assert.Equal(t, "/16", cfg.IncrementOctet)
	// Untouched values keep defaults.
	assert.Equal(t, 10, cfg.PollIntervalSeconds)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "labfleet.yaml")
	require.NoError(t, os.WriteFile(path, []byte("ip_increment: 20\n"), 0o644))
	t.Setenv("LABFLEET_IP_INCREMENT", "30")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.IPIncrement)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad octet", func(c *Config) { c.IncrementOctet = "/28" }},
		{"zero increment", func(c *Config) { c.IPIncrement = 0 }},
		{"oversized increment", func(c *Config) { c.IPIncrement = 300 }},
		{"bad port", func(c *Config) { c.TokenAPIPort = 70000 }},
		{"zero poll interval", func(c *Config) { c.PollIntervalSeconds = 0 }},
		{"zero max wait", func(c *Config) { c.MaxWaitMinutes = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/does/not/exist.yaml")
	assert.Error(t, err)
}
