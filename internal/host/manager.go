package host

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/tapgate/plugins-sdk-go/pkg/wire"
)

// Manager manages plugin processes. It starts plugins, maintains process
// control, and can force-kill them at any time. Plugins are untrusted
// third-party code.
type Manager struct {
	logger       hclog.Logger
	mu           sync.Mutex
	plugins      map[string]*runningPlugin
	startTimeout time.Duration
	callTimeout  time.Duration
}

// runningPlugin tracks a plugin process and its gRPC connection.
type runningPlugin struct {
	cmd      *exec.Cmd
	conn     *grpc.ClientConn
	client   wire.PluginClient
	instance *PluginInstance
	address  string
	network  string
}

// NewManager creates a new plugin manager.
func NewManager(logger hclog.Logger) *Manager {
	return &Manager{
		logger:       logger.Named("plugin-manager"),
		plugins:      make(map[string]*runningPlugin),
		startTimeout: 10 * time.Second,
		callTimeout:  5 * time.Second,
	}
}

// Start launches a plugin binary, connects to it, registers it via its
// capability descriptor, and returns a PluginInstance. The manager keeps
// control of the process and can kill it at any time.
func (m *Manager) Start(ctx context.Context, binaryPath string) (*PluginInstance, error) {
	m.logger.Info("starting plugin", "path", binaryPath)

	address, network := m.generateAddress(filepath.Base(binaryPath))
	m.logger.Debug("transport selected", "network", network, "address", address)

	cmd := exec.CommandContext(ctx, binaryPath, "--address", address, "--network", network)
	cmd.Stdout = m.logger.StandardWriter(&hclog.StandardLoggerOptions{InferLevels: true})
	cmd.Stderr = m.logger.StandardWriter(&hclog.StandardLoggerOptions{InferLevels: true})

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start process: %w", err)
	}

	m.logger.Debug("plugin process started", "pid", cmd.Process.Pid, "address", address)

	dialCtx, cancel := context.WithTimeout(ctx, m.startTimeout)
	defer cancel()

	if err := m.waitForSocket(dialCtx, network, address); err != nil {
		m.kill(cmd)
		return nil, fmt.Errorf("plugin didn't start in time: %w", err)
	}

	var dialAddr string
	if network == "unix" {
		dialAddr = "unix://" + address
	} else {
		dialAddr = address
	}

	conn, err := grpc.NewClient(dialAddr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		wire.DialOption(),
	)
	if err != nil {
		m.kill(cmd)
		return nil, fmt.Errorf("failed to connect to plugin: %w", err)
	}

	client := wire.NewPluginClient(conn)

	regCtx, regCancel := context.WithTimeout(ctx, m.callTimeout)
	defer regCancel()

	adapter, err := NewGRPCPluginAdapter(regCtx, client)
	if err != nil {
		if closeErr := conn.Close(); closeErr != nil {
			m.logger.Warn("failed to close connection", "error", closeErr)
		}
		m.kill(cmd)
		return nil, err
	}

	meta := adapter.Metadata()
	m.logger.Info("plugin registered",
		"name", meta.Name,
		"version", meta.Version,
		"stages", len(adapter.Capabilities()),
		"pid", cmd.Process.Pid)

	instance := &PluginInstance{
		Plugin: adapter,
		id:     meta.Name,
	}

	rp := &runningPlugin{
		cmd:      cmd,
		conn:     conn,
		client:   client,
		instance: instance,
		address:  address,
		network:  network,
	}

	m.mu.Lock()
	m.plugins[meta.Name] = rp
	m.mu.Unlock()

	return instance, nil
}

// Plugins returns all started plugin instances.
func (m *Manager) Plugins() []*PluginInstance {
	m.mu.Lock()
	defer m.mu.Unlock()

	instances := make([]*PluginInstance, 0, len(m.plugins))
	for _, rp := range m.plugins {
		instances = append(instances, rp.instance)
	}
	return instances
}

// StopAll stops all running plugins. Force-kills any that don't stop gracefully.
func (m *Manager) StopAll(ctx context.Context) error {
	m.mu.Lock()
	plugins := make([]*runningPlugin, 0, len(m.plugins))
	for _, rp := range m.plugins {
		plugins = append(plugins, rp)
	}
	m.plugins = make(map[string]*runningPlugin)
	m.mu.Unlock()

	for _, rp := range plugins {
		if err := m.stopPlugin(ctx, rp); err != nil {
			m.logger.Error("error stopping plugin", "error", err)
		}
	}

	return nil
}

func (m *Manager) stopPlugin(ctx context.Context, rp *runningPlugin) error {
	m.logger.Info("stopping plugin", "instance", rp.instance.ID())

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rp.instance.Stop(stopCtx); err != nil {
		m.logger.Warn("graceful stop failed, force killing", "error", err)
	}

	if err := rp.conn.Close(); err != nil {
		m.logger.Warn("error closing connection", "error", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- rp.cmd.Wait()
	}()

	select {
	case <-time.After(2 * time.Second):
		m.logger.Warn("plugin didn't exit, force killing", "instance", rp.instance.ID())
		if err := rp.cmd.Process.Kill(); err != nil {
			return fmt.Errorf("failed to kill process: %w", err)
		}
		<-done
	case err := <-done:
		if err != nil {
			m.logger.Debug("plugin process exited with error", "error", err)
		}
	}

	if rp.network == "unix" {
		if err := os.Remove(rp.address); err != nil && !os.IsNotExist(err) {
			m.logger.Warn("failed to remove socket file", "path", rp.address, "error", err)
		}
	}

	m.logger.Info("plugin stopped", "instance", rp.instance.ID())
	return nil
}

func (m *Manager) kill(cmd *exec.Cmd) {
	if err := cmd.Process.Kill(); err != nil {
		m.logger.Warn("failed to kill plugin process", "error", err)
	}
}

func (m *Manager) generateAddress(pluginName string) (address string, network string) {
	switch runtime.GOOS {
	case "windows":
		port := 50000 + (time.Now().UnixNano() % 10000)
		return fmt.Sprintf("localhost:%d", port), "tcp"
	default:
		sockPath := filepath.Join(os.TempDir(), fmt.Sprintf("plugin-%s-%d.sock",
			strings.ReplaceAll(pluginName, " ", "-"),
			time.Now().UnixNano()%1000000))
		return sockPath, "unix"
	}
}

func (m *Manager) waitForSocket(ctx context.Context, network, address string) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			conn, err := net.DialTimeout(network, address, 100*time.Millisecond)
			if err == nil {
				_ = conn.Close()
				return nil
			}
		}
	}
}
