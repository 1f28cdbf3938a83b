package config

import (
	"os"
	"strconv"
	"time"
)

const (
	// Environment variable names
	EnvMaster          = "INETPROXY_MASTER"
	EnvInterface       = "INETPROXY_INTERFACE"
	EnvIPv4            = "INETPROXY_IPV4"
	EnvIPv6            = "INETPROXY_IPV6"
	EnvDHCP6           = "INETPROXY_DHCP6"
	EnvNDWorkerMode    = "INETPROXY_ND_WORKER_MODE"
	EnvChannelBuffer   = "INETPROXY_CHANNEL_BUFFER"
	EnvShutdownTimeout = "INETPROXY_SHUTDOWN_TIMEOUT"
	EnvLogLevel        = "INETPROXY_LOG_LEVEL"
	EnvLogFormat       = "INETPROXY_LOG_FORMAT"
	EnvLogOutput       = "INETPROXY_LOG_OUTPUT"
)

const (
	// Default proxy settings
	DefaultMaster = true
	DefaultIPv4   = true
	DefaultIPv6   = true
	DefaultDHCP6  = true

	// Default ND settings
	DefaultNDWorkerMode = NDWorkerShared

	// Default channel settings
	DefaultChannelBuffer   = 64
	DefaultShutdownTimeout = 5 * time.Second

	// Default logging settings
	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"
	DefaultLogOutput = "stderr"
)

// DefaultProxyConfig returns the default proxy configuration
func DefaultProxyConfig() ProxyConfig {
	return ProxyConfig{
		Master: DefaultMaster,
		IPv4:   DefaultIPv4,
		IPv6:   DefaultIPv6,
		DHCP6:  DefaultDHCP6,
	}
}

// DefaultNDConfig returns the default neighbour-discovery configuration
func DefaultNDConfig() NDConfig {
	return NDConfig{
		WorkerMode: DefaultNDWorkerMode,
	}
}

// DefaultChannelConfig returns the default channel configuration
func DefaultChannelConfig() ChannelConfig {
	return ChannelConfig{
		BufferFrames:    DefaultChannelBuffer,
		ShutdownTimeout: DefaultShutdownTimeout,
	}
}

// DefaultLoggingConfig returns the default logging configuration
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		Level:  DefaultLogLevel,
		Format: DefaultLogFormat,
		Output: DefaultLogOutput,
	}
}

// Default returns a configuration populated with defaults only
func Default() *Config {
	return &Config{
		Proxy:   DefaultProxyConfig(),
		ND:      DefaultNDConfig(),
		Channel: DefaultChannelConfig(),
		Logging: DefaultLoggingConfig(),
	}
}

// Load builds a configuration from defaults overlaid with environment
// variables. It does not validate; callers run Validate after applying
// their own overrides.
func Load() (*Config, error) {
	cfg := Default()

	if v, ok := lookupBool(EnvMaster); ok {
		cfg.Proxy.Master = v
	}
	if v := os.Getenv(EnvInterface); v != "" {
		cfg.Proxy.Interface = v
	}
	if v, ok := lookupBool(EnvIPv4); ok {
		cfg.Proxy.IPv4 = v
	}
	if v, ok := lookupBool(EnvIPv6); ok {
		cfg.Proxy.IPv6 = v
	}
	if v, ok := lookupBool(EnvDHCP6); ok {
		cfg.Proxy.DHCP6 = v
	}
	if v := os.Getenv(EnvNDWorkerMode); v != "" {
		cfg.ND.WorkerMode = v
	}
	if v := os.Getenv(EnvChannelBuffer); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Channel.BufferFrames = n
		}
	}
	if v := os.Getenv(EnvShutdownTimeout); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Channel.ShutdownTimeout = d
		}
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv(EnvLogFormat); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv(EnvLogOutput); v != "" {
		cfg.Logging.Output = v
	}

	return cfg, nil
}

// lookupBool reads a boolean environment variable
func lookupBool(name string) (bool, bool) {
	v := os.Getenv(name)
	if v == "" {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, false
	}
	return b, true
}
