package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/netherd/inetproxy/internal/config"
	"github.com/netherd/inetproxy/internal/logger"
	"github.com/netherd/inetproxy/pkg/engine"
	"github.com/netherd/inetproxy/pkg/privdrop"
	"github.com/netherd/inetproxy/pkg/psproto"
	"github.com/netherd/inetproxy/pkg/reactor"
	"github.com/netherd/inetproxy/pkg/sockets"
	"github.com/netherd/inetproxy/pkg/supervise"
)

// Version is the inetproxy release version
const Version = "0.3.0"

var (
	// CLI flags
	cfgFile      string
	logLevel     string
	logFormat    string
	logOutput    string
	masterFlag   bool
	noMasterFlag bool
	ifaceFlag    string
	ndModeFlag   string

	rootLog *logger.Logger
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "inetproxy",
	Short: "inetproxy - privilege-separated network proxy for DHCP and IPv6 ND",
	Long: `inetproxy owns the privileged BOOTP, neighbor discovery and DHCPv6
sockets on behalf of an unprivileged client engine. The proxy process
opens its sockets, sheds privilege, and from then on only receives,
forwards and transmits on behalf of the engine.`,
	Version: Version,
	RunE:    runProxy,
}

// runProxy executes the main proxy logic
func runProxy(cmd *cobra.Command, args []string) error {
	if err := initLogger(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	rootLog.Info("Starting inetproxy", "version", Version)

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	sup := supervise.NewLocal(rootLog, cfg.Channel.BufferFrames, cfg.Channel.ShutdownTimeout)
	open := sockets.NewPlatformOpener(rootLog)
	priv := privdrop.Platform(rootLog)
	eng := engine.New(cfg, sup, open, priv, rootLog)

	registerTraceParsers(eng, cfg)

	loop := reactor.NewSerial(rootLog)
	if err := eng.Start(loop); err != nil {
		rootLog.Error("Failed to start network proxy", "error", err)
		return err
	}

	// The engine loop runs until the proxy dies or a signal arrives.
	sigc := make(chan os.Signal, 2)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigc
		rootLog.Info("Shutting down", "signal", sig.String())
		loop.Exit(0)
	}()

	status := loop.Run()
	signal.Stop(sigc)

	if err := eng.Stop(); err != nil {
		rootLog.Warn("Proxy did not stop cleanly", "error", err)
	}

	rootLog.Info("inetproxy shutdown complete", "status", status)
	if status != 0 {
		return fmt.Errorf("proxy exited with status %d", status)
	}
	return nil
}

// registerTraceParsers installs logging consumers for every enabled
// protocol so a bare inetproxy run shows the traffic it forwards
func registerTraceParsers(eng *engine.Engine, cfg *config.Config) {
	trace := func(proto psproto.Protocol) engine.Parser {
		return engine.ParserFunc(func(m *psproto.Message) error {
			rootLog.Info("Forwarded datagram",
				"proto", proto.String(),
				"src", m.Src.String(),
				"ifindex", m.IfIndex,
				"len", len(m.Data))
			return nil
		})
	}
	if cfg.Proxy.IPv4 {
		eng.RegisterParser(psproto.ProtocolBootp, trace(psproto.ProtocolBootp))
	}
	if cfg.Proxy.IPv6 {
		eng.RegisterParser(psproto.ProtocolND, trace(psproto.ProtocolND))
		if cfg.Proxy.DHCP6 {
			eng.RegisterParser(psproto.ProtocolDHCP6, trace(psproto.ProtocolDHCP6))
		}
	}
}

// initLogger initializes the global logger based on CLI flags and config
func initLogger() error {
	cfg := config.DefaultLoggingConfig()

	if logLevel != "" {
		cfg.Level = logLevel
	}
	if logFormat != "" {
		cfg.Format = logFormat
	}
	if logOutput != "" {
		cfg.Output = logOutput
	}

	log, err := logger.New(cfg)
	if err != nil {
		return err
	}

	rootLog = log
	logger.SetGlobal(log)
	return nil
}

// loadConfig loads the configuration from file or environment variables
// and applies CLI overrides
func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error

	if cfgFile != "" {
		cfg, err = config.LoadFromFile(cfgFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	if masterFlag {
		cfg.Proxy.Master = true
	}
	if noMasterFlag {
		cfg.Proxy.Master = false
	}
	if ifaceFlag != "" {
		cfg.Proxy.Interface = ifaceFlag
	}
	if ndModeFlag != "" {
		cfg.ND.WorkerMode = ndModeFlag
	}

	return cfg, nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if rootLog != nil {
			rootLog.Error("Command execution failed", "error", err)
		}
		os.Exit(1)
	}
}

func init() {
	// Config file flag
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"Config file path (default: use environment variables)")

	// Logging flags
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Log level: debug, info, warn, error (default: from config or env)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "",
		"Log format: json, text (default: from config or env)")
	rootCmd.PersistentFlags().StringVar(&logOutput, "log-output", "",
		"Log output: stdout, stderr, or file path (default: from config or env)")

	// Proxy flags
	rootCmd.Flags().BoolVar(&masterFlag, "master", false,
		"Run as the master instance owning the shared sockets")
	rootCmd.Flags().BoolVar(&noMasterFlag, "no-master", false,
		"Run as a per-interface instance without the shared sockets")
	rootCmd.Flags().StringVar(&ifaceFlag, "interface", "",
		"Interface to serve when not running as master")
	rootCmd.Flags().StringVar(&ndModeFlag, "nd-worker-mode", "",
		"Neighbor discovery socket mode: shared or interface")
}
