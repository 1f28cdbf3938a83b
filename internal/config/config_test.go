package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/netherd/inetproxy/pkg/types"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}
	if !cfg.Proxy.Master {
		t.Error("default config must run as master")
	}
	if cfg.ND.WorkerMode != NDWorkerShared {
		t.Errorf("default nd mode must be shared, got %s", cfg.ND.WorkerMode)
	}
	if cfg.Channel.BufferFrames != DefaultChannelBuffer {
		t.Errorf("unexpected channel buffer %d", cfg.Channel.BufferFrames)
	}
}

func TestValidateErrors(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no protocols", func(c *Config) {
			c.Proxy.IPv4, c.Proxy.IPv6, c.Proxy.DHCP6 = false, false, false
		}},
		{"non-master without interface", func(c *Config) {
			c.Proxy.Master = false
			c.Proxy.Interface = ""
		}},
		{"bad nd mode", func(c *Config) { c.ND.WorkerMode = "hybrid" }},
		{"zero buffer", func(c *Config) { c.Channel.BufferFrames = 0 }},
		{"zero timeout", func(c *Config) { c.Channel.ShutdownTimeout = 0 }},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			if !types.IsErrCode(err, types.ErrCodeInvalidArgument) {
				t.Errorf("expected InvalidArgument, got %v", err)
			}
		})
	}
}

func TestNonMasterWithInterfaceIsValid(t *testing.T) {
	cfg := Default()
	cfg.Proxy.Master = false
	cfg.Proxy.Interface = "eth0"
	if err := cfg.Validate(); err != nil {
		t.Errorf("per-interface config must validate: %v", err)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv(EnvMaster, "false")
	t.Setenv(EnvInterface, "wlan0")
	t.Setenv(EnvDHCP6, "false")
	t.Setenv(EnvNDWorkerMode, NDWorkerInterface)
	t.Setenv(EnvChannelBuffer, "16")
	t.Setenv(EnvShutdownTimeout, "2s")
	t.Setenv(EnvLogLevel, "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Proxy.Master {
		t.Error("expected master disabled")
	}
	if cfg.Proxy.Interface != "wlan0" {
		t.Errorf("expected interface wlan0, got %s", cfg.Proxy.Interface)
	}
	if cfg.Proxy.DHCP6 {
		t.Error("expected dhcp6 disabled")
	}
	if cfg.ND.WorkerMode != NDWorkerInterface {
		t.Errorf("expected interface nd mode, got %s", cfg.ND.WorkerMode)
	}
	if cfg.Channel.BufferFrames != 16 {
		t.Errorf("expected buffer 16, got %d", cfg.Channel.BufferFrames)
	}
	if cfg.Channel.ShutdownTimeout != 2*time.Second {
		t.Errorf("expected 2s timeout, got %s", cfg.Channel.ShutdownTimeout)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected debug level, got %s", cfg.Logging.Level)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("loaded config must validate: %v", err)
	}
}

func TestLoadIgnoresMalformedEnv(t *testing.T) {
	t.Setenv(EnvMaster, "definitely")
	t.Setenv(EnvChannelBuffer, "lots")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !cfg.Proxy.Master {
		t.Error("malformed bool must keep the default")
	}
	if cfg.Channel.BufferFrames != DefaultChannelBuffer {
		t.Error("malformed int must keep the default")
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "inetproxy.yaml")

	content := `
proxy:
  master: false
  interface: ${INETPROXY_TEST_IFACE:-eth1}
  ipv4: true
  ipv6: true
  dhcp6: false
nd:
  worker_mode: interface
channel:
  buffer_frames: 8
  shutdown_timeout: 1s
logging:
  level: debug
  format: json
  output: stderr
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	if cfg.Proxy.Master {
		t.Error("expected master disabled")
	}
	if cfg.Proxy.Interface != "eth1" {
		t.Errorf("expected env default interpolation, got %s", cfg.Proxy.Interface)
	}
	if cfg.Proxy.DHCP6 {
		t.Error("expected dhcp6 disabled")
	}
	if cfg.ND.WorkerMode != NDWorkerInterface {
		t.Errorf("expected interface nd mode, got %s", cfg.ND.WorkerMode)
	}
	if cfg.Channel.BufferFrames != 8 {
		t.Errorf("expected buffer 8, got %d", cfg.Channel.BufferFrames)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("expected json format, got %s", cfg.Logging.Format)
	}
}

func TestLoadFromFileEnvInterpolation(t *testing.T) {
	t.Setenv("INETPROXY_TEST_IFACE", "bond0")

	dir := t.TempDir()
	path := filepath.Join(dir, "inetproxy.yaml")
	content := "proxy:\n  master: false\n  interface: ${INETPROXY_TEST_IFACE:-eth1}\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if cfg.Proxy.Interface != "bond0" {
		t.Errorf("expected bond0 from the environment, got %s", cfg.Proxy.Interface)
	}
}

func TestLoadFromFileMissing(t *testing.T) {
	if _, err := LoadFromFile("/nonexistent/inetproxy.yaml"); err == nil {
		t.Error("missing file must fail")
	}
}
