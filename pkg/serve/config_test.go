package serve

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tapgate/plugins-sdk-go/pkg/plugin"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "tcp", cfg.Network)
	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultCallTimeout, cfg.CallTimeout)
	assert.Equal(t, DefaultDrainTimeout, cfg.DrainTimeout)
	assert.Equal(t, ":50051", cfg.ListenAddress())
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	t.Setenv("PLUGIN_NETWORK", "unix")
	t.Setenv("PLUGIN_ADDRESS", "/tmp/auth-plugin.sock")
	t.Setenv("PLUGIN_CALL_TIMEOUT", "2s")
	t.Setenv("PLUGIN_DRAIN_TIMEOUT", "500ms")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "unix", cfg.Network)
	assert.Equal(t, "/tmp/auth-plugin.sock", cfg.ListenAddress())
	assert.Equal(t, 2*time.Second, cfg.CallTimeout)
	assert.Equal(t, 500*time.Millisecond, cfg.DrainTimeout)
}

func TestLoadConfigPortOverride(t *testing.T) {
	t.Setenv("PLUGIN_PORT", "9090")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, ":9090", cfg.ListenAddress())
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	t.Setenv("PLUGIN_NETWORK", "udp")

	_, err := LoadConfig()
	assert.ErrorIs(t, err, plugin.ErrConfiguration)
}

func TestConfigValidate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "Defaults", mutate: func(c *Config) {}},
		{name: "TCPPortZero", mutate: func(c *Config) { c.Port = 0 }, wantErr: true},
		{name: "TCPPortTooHigh", mutate: func(c *Config) { c.Port = 70000 }, wantErr: true},
		{name: "TCPExplicitAddress", mutate: func(c *Config) { c.Port = 0; c.Address = "127.0.0.1:0" }},
		{name: "UnixWithoutAddress", mutate: func(c *Config) { c.Network = "unix" }, wantErr: true},
		{name: "UnixWithSocket", mutate: func(c *Config) { c.Network = "unix"; c.Address = "/tmp/p.sock" }},
		{name: "NegativeCallTimeout", mutate: func(c *Config) { c.CallTimeout = -time.Second }, wantErr: true},
		{name: "ZeroTimeoutsAllowed", mutate: func(c *Config) { c.CallTimeout = 0; c.DrainTimeout = 0 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantErr {
				assert.ErrorIs(t, err, plugin.ErrConfiguration)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
