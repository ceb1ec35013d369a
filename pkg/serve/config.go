package serve

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"

	"github.com/tapgate/plugins-sdk-go/pkg/plugin"
)

// Defaults applied when the corresponding PLUGIN_* variable is unset.
const (
	DefaultPort         = 50051
	DefaultNetwork      = "tcp"
	DefaultCallTimeout  = 30 * time.Second
	DefaultDrainTimeout = 5 * time.Second
)

// Config is the runtime server's process configuration. It is read once at
// startup and treated as read-only for the process lifetime.
type Config struct {
	// Network is "tcp" or "unix".
	Network string `koanf:"network"`

	// Address overrides the listen address. For unix it is the socket path
	// and is required; for tcp it defaults to ":<port>".
	Address string `koanf:"address"`

	// Port is the tcp listen port, used when Address is unset.
	Port int `koanf:"port"`

	// CallTimeout bounds a single exchange dispatch. On expiry the stage's
	// failure policy decides the returned decision. Zero disables the bound.
	CallTimeout time.Duration `koanf:"call_timeout"`

	// DrainTimeout bounds how long in-flight calls may run after a shutdown
	// is requested before the listener is closed forcefully.
	DrainTimeout time.Duration `koanf:"drain_timeout"`
}

// DefaultConfig returns the standalone defaults: tcp on the well-known
// plugin port.
func DefaultConfig() Config {
	return Config{
		Network:      DefaultNetwork,
		Port:         DefaultPort,
		CallTimeout:  DefaultCallTimeout,
		DrainTimeout: DefaultDrainTimeout,
	}
}

// LoadConfig reads the configuration from PLUGIN_* environment variables,
// falling back to the defaults. Recognized variables: PLUGIN_NETWORK,
// PLUGIN_ADDRESS, PLUGIN_PORT, PLUGIN_CALL_TIMEOUT, PLUGIN_DRAIN_TIMEOUT.
func LoadConfig() (Config, error) {
	k := koanf.New(".")

	if err := k.Load(env.Provider("PLUGIN_", ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, "PLUGIN_"))
	}), nil); err != nil {
		return Config{}, fmt.Errorf("loading environment: %w", err)
	}

	cfg := DefaultConfig()
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %v", plugin.ErrConfiguration, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the runtime cannot serve with.
func (c Config) Validate() error {
	switch c.Network {
	case "tcp":
		if c.Address == "" && (c.Port < 1 || c.Port > 65535) {
			return fmt.Errorf("%w: tcp port %d outside [1,65535]", plugin.ErrConfiguration, c.Port)
		}
	case "unix":
		if c.Address == "" {
			return fmt.Errorf("%w: unix network requires an address", plugin.ErrConfiguration)
		}
	default:
		return fmt.Errorf("%w: unknown network %q (want tcp or unix)", plugin.ErrConfiguration, c.Network)
	}
	if c.CallTimeout < 0 || c.DrainTimeout < 0 {
		return fmt.Errorf("%w: timeouts must not be negative", plugin.ErrConfiguration)
	}
	return nil
}

// ListenAddress resolves the address passed to net.Listen.
func (c Config) ListenAddress() string {
	if c.Address != "" {
		return c.Address
	}
	return fmt.Sprintf(":%d", c.Port)
}
