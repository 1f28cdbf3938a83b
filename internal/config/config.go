package config

import (
	"fmt"
	"time"

	"github.com/netherd/inetproxy/pkg/types"
)

// ND worker identity modes. The shared mode keeps one neighbour-discovery
// socket in the hub; the interface mode spawns one worker per interface
// index instead (the Solaris-style layout of the proxy).
const (
	NDWorkerShared    = "shared"
	NDWorkerInterface = "interface"
)

// Config represents the complete configuration for the network proxy
type Config struct {
	Proxy   ProxyConfig   `json:"proxy" yaml:"proxy"`
	ND      NDConfig      `json:"nd" yaml:"nd"`
	Channel ChannelConfig `json:"channel" yaml:"channel"`
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// ProxyConfig selects which protocol families the hub serves and whether
// it runs in master (all-interface) mode. The BOOTP and DHCPv6 default
// sockets are only opened in master mode; a single-interface run relies
// on per-address workers for those.
type ProxyConfig struct {
	Master    bool   `json:"master" yaml:"master"`
	Interface string `json:"interface,omitempty" yaml:"interface,omitempty"`
	IPv4      bool   `json:"ipv4" yaml:"ipv4"`
	IPv6      bool   `json:"ipv6" yaml:"ipv6"`
	DHCP6     bool   `json:"dhcp6" yaml:"dhcp6"`
}

// NDConfig contains neighbour-discovery specific configuration
type NDConfig struct {
	WorkerMode string `json:"worker_mode" yaml:"worker_mode"` // shared, interface
}

// ChannelConfig contains IPC channel configuration
type ChannelConfig struct {
	BufferFrames    int           `json:"buffer_frames" yaml:"buffer_frames"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`   // debug, info, warn, error
	Format string `json:"format" yaml:"format"` // json, text
	Output string `json:"output" yaml:"output"` // stdout, stderr, file path
}

// Validate checks the configuration for consistency
func (c *Config) Validate() error {
	if !c.Proxy.IPv4 && !c.Proxy.IPv6 && !c.Proxy.DHCP6 {
		return types.NewError(types.ErrCodeInvalidArgument,
			"at least one protocol family must be enabled")
	}

	if !c.Proxy.Master && c.Proxy.Interface == "" {
		return types.NewError(types.ErrCodeInvalidArgument,
			"an interface name is required outside master mode")
	}

	switch c.ND.WorkerMode {
	case NDWorkerShared, NDWorkerInterface:
	default:
		return types.NewError(types.ErrCodeInvalidArgument,
			fmt.Sprintf("invalid nd worker mode: %s (must be %s or %s)",
				c.ND.WorkerMode, NDWorkerShared, NDWorkerInterface))
	}

	if c.Channel.BufferFrames <= 0 {
		return types.NewError(types.ErrCodeInvalidArgument,
			"channel buffer must hold at least one frame")
	}
	if c.Channel.ShutdownTimeout <= 0 {
		return types.NewError(types.ErrCodeInvalidArgument,
			"shutdown timeout must be positive")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return types.NewError(types.ErrCodeInvalidArgument,
			"invalid log level: "+c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return types.NewError(types.ErrCodeInvalidArgument,
			"invalid log format: "+c.Logging.Format)
	}

	return nil
}

// String returns a short description of the enabled protocol set
func (c *Config) String() string {
	return fmt.Sprintf("Config{Master: %t, IPv4: %t, IPv6: %t, DHCP6: %t, ND: %s}",
		c.Proxy.Master, c.Proxy.IPv4, c.Proxy.IPv6, c.Proxy.DHCP6, c.ND.WorkerMode)
}
