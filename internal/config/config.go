package config

import (
	"strings"
	"time"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config is the demo host's configuration, read once at startup from
// TAPGATE_* environment variables.
type Config struct {
	Server  ServerConfig  `koanf:"server"`
	Plugins PluginsConfig `koanf:"plugins"`
}

type ServerConfig struct {
	Port            int           `koanf:"port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

type PluginsConfig struct {
	// Dir is scanned for executable plugin binaries at startup.
	Dir string `koanf:"dir"`
}

func Load() (*Config, error) {
	k := koanf.New(".")

	// TAPGATE_SERVER_PORT -> server.port, etc.
	if err := k.Load(env.Provider("TAPGATE_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "TAPGATE_")), "_", ".", 1)
	}), nil); err != nil {
		return nil, err
	}

	// Default values. Set only fails for nil keys, which these are not.
	if !k.Exists("server.port") {
		_ = k.Set("server.port", 8080)
	}
	if !k.Exists("server.shutdown_timeout") {
		_ = k.Set("server.shutdown_timeout", "10s")
	}
	if !k.Exists("plugins.dir") {
		_ = k.Set("plugins.dir", "bin/plugins")
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
