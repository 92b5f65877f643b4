package main

import (
	"fmt"
	"os"

	"github.com/codefionn/netserver/internal/config"
	"github.com/codefionn/netserver/internal/logger"
	"github.com/spf13/cobra"
)

var (
	configFile string
	logLevel   string
	logPath    string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "netserver",
	Short: "Single-threaded TCP message server",
	Long: `netserver is a TCP server speaking newline-delimited JSON messages.

- serve:        run the base protocol server (ping, echo, text, disconnect)
- chat-server:  run the chat room server on top of the base protocol
- client:       talk to a server interactively or run a quick check
- chat-client:  join a chat room

Use 'netserver help <command>' for more information on a specific command.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Configuration file (JSON or YAML)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error, fatal, none")
	rootCmd.PersistentFlags().StringVar(&logPath, "log-path", "", "Write logs to this file instead of stderr")
}

// loadConfig reads the configuration file on top of defaults and applies
// environment and logging flag overrides
func loadConfig(defaults *config.Config) (*config.Config, error) {
	path := configFile
	if path == "" {
		path = config.GetConfigPath()
	}

	cfg, err := config.LoadWithDefaults(path, defaults)
	if err != nil {
		return nil, err
	}
	applyOverrides(cfg)
	return cfg, nil
}

// applyOverrides layers the environment and then the logging flags over a
// loaded configuration
func applyOverrides(cfg *config.Config) {
	cfg.ApplyEnv()

	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if logPath != "" {
		cfg.LogPath = logPath
	}
}

// setupLogging installs the global logger described by cfg
func setupLogging(cfg *config.Config) (*logger.Logger, error) {
	level := logger.ParseLevel(cfg.LogLevel)

	var l *logger.Logger
	if cfg.LogPath != "" {
		var err error
		l, err = logger.New(level, cfg.LogPath, "")
		if err != nil {
			return nil, fmt.Errorf("failed to initialize logger: %w", err)
		}
	} else {
		l = logger.NewWriter(level, os.Stderr, "")
	}

	logger.SetGlobal(l)
	return l, nil
}
