package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/codefionn/netserver/internal/admin"
	"github.com/codefionn/netserver/internal/chat"
	"github.com/codefionn/netserver/internal/config"
	"github.com/codefionn/netserver/internal/logger"
	"github.com/codefionn/netserver/internal/metrics"
	"github.com/codefionn/netserver/internal/pidfile"
	"github.com/codefionn/netserver/internal/socketserver"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// serverFlags are the overrides shared by serve and chat-server
type serverFlags struct {
	host           string
	port           int
	maxConnections int
	timeout        int
	bufferSize     int
	metricsAddr    string
	pprof          bool
	pidFile        string
	historyPath    string
	historyReplay  int
}

var (
	serveFlags     serverFlags
	chatServeFlags serverFlags
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the base protocol server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer(cmd, &serveFlags, config.DefaultConfig(), false)
	},
}

var chatServerCmd = &cobra.Command{
	Use:   "chat-server",
	Short: "Run the chat room server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer(cmd, &chatServeFlags, config.DefaultChatConfig(), true)
	},
}

func init() {
	registerServerFlags(serveCmd, &serveFlags, false)
	registerServerFlags(chatServerCmd, &chatServeFlags, true)
	rootCmd.AddCommand(serveCmd, chatServerCmd)
}

func registerServerFlags(cmd *cobra.Command, f *serverFlags, chatRoom bool) {
	flags := cmd.Flags()
	flags.StringVar(&f.host, "host", "", "Address to bind")
	flags.IntVar(&f.port, "port", 0, "Port to bind")
	flags.IntVar(&f.maxConnections, "max-connections", 0, "Maximum simultaneous connections")
	flags.IntVar(&f.timeout, "timeout", 0, "Send timeout in seconds")
	flags.IntVar(&f.bufferSize, "buffer-size", 0, "Bytes read per connection per pass")
	flags.StringVar(&f.metricsAddr, "metrics-addr", "", "Serve /healthz and /metrics on this address")
	flags.BoolVar(&f.pprof, "pprof", false, "Also serve /debug/pprof/ on the metrics address")
	flags.StringVar(&f.pidFile, "pid-file", "", "Write the process id to this file")
	if chatRoom {
		flags.StringVar(&f.historyPath, "history", "", "SQLite file for chat history")
		flags.IntVar(&f.historyReplay, "history-replay", 0, "Number of history lines sent to new members")
	}
}

// apply copies the flags that were set on the command line into cfg
func (f *serverFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Host = f.host
	}
	if flags.Changed("port") {
		cfg.Port = f.port
	}
	if flags.Changed("max-connections") {
		cfg.MaxConnections = f.maxConnections
	}
	if flags.Changed("timeout") {
		cfg.TimeoutSeconds = f.timeout
	}
	if flags.Changed("buffer-size") {
		cfg.BufferSize = f.bufferSize
	}
	if flags.Changed("metrics-addr") {
		cfg.MetricsAddr = f.metricsAddr
	}
	if flags.Changed("history") {
		cfg.ChatHistoryPath = f.historyPath
	}
	if flags.Changed("history-replay") {
		cfg.ChatHistoryReplay = f.historyReplay
	}
}

func runServer(cmd *cobra.Command, f *serverFlags, defaults *config.Config, chatRoom bool) (err error) {
	cfg, err := loadConfig(defaults)
	if err != nil {
		return err
	}
	f.apply(cmd, cfg)

	log, err := setupLogging(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			log.Error("Fatal error: %v", err)
		}
		if closeErr := log.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	if err := cfg.Validate(); err != nil {
		log.Fatal("Invalid configuration: %v", err)
		return err
	}
	log.Info("Starting server with configuration: %s", cfg)

	if f.pidFile != "" {
		pf := pidfile.New(f.pidFile)
		if err := pf.Acquire(); err != nil {
			return err
		}
		defer func() {
			if rmErr := pf.Remove(); rmErr != nil {
				log.Warn("Failed to remove pid file: %v", rmErr)
			}
		}()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.New(metrics.WithRegistry(registry))

	srv := socketserver.NewServer(cfg, log.WithPrefix("server"), socketserver.WithMetrics(collector))

	var room *chat.Protocol
	if chatRoom {
		room, err = newChatRoom(cfg, srv, log)
		if err != nil {
			return err
		}
		srv.SetHandler(room)
	}

	if err := srv.Listen(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		// once the reactor is done the other tasks have nothing to serve
		defer stop()
		return srv.Serve(gctx)
	})

	if cfg.MetricsAddr != "" {
		adm := admin.NewServer(cfg.MetricsAddr, statusOf(srv, room),
			admin.WithGatherer(registry),
			admin.WithPprof(f.pprof),
			admin.WithLogger(log.WithPrefix("admin")),
		)
		g.Go(func() error {
			return adm.Run(gctx)
		})
	}

	if path := watchedConfigPath(); path != "" {
		g.Go(func() error {
			return config.Watch(gctx, path, defaults, reloadLogLevel(cmd, f, log))
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// reloadLogLevel returns the config watch callback. The reloaded file goes
// through the same override chain as at startup, so environment and flag
// levels keep winning over file edits.
func reloadLogLevel(cmd *cobra.Command, f *serverFlags, log *logger.Logger) func(*config.Config) {
	return func(updated *config.Config) {
		applyOverrides(updated)
		f.apply(cmd, updated)

		level := logger.ParseLevel(updated.LogLevel)
		if level == log.GetLevel() {
			return
		}
		log.SetLevel(level)
		log.Info("Configuration reloaded, log level is now %s", level)
	}
}

func newChatRoom(cfg *config.Config, srv *socketserver.Server, log *logger.Logger) (*chat.Protocol, error) {
	var opts []chat.Option
	if cfg.ChatHistoryPath != "" {
		history, err := chat.OpenHistory(cfg.ChatHistoryPath)
		if err != nil {
			return nil, err
		}
		go func() {
			<-srv.Done()
			history.Close()
		}()
		opts = append(opts, chat.WithHistory(history, cfg.ChatHistoryReplay))
		log.Info("Chat history stored in %s", history.Path())
	}

	base := socketserver.NewBaseProtocol(log.WithPrefix("base"))
	return chat.NewProtocol(base, srv, log.WithPrefix("chat"), opts...), nil
}

// statusOf reports the reactor state for the admin endpoint
func statusOf(srv *socketserver.Server, room *chat.Protocol) admin.StatusFunc {
	return func() admin.Status {
		status := admin.Status{
			State:          srv.State().String(),
			Connections:    srv.ConnectionCount(),
			MaxConnections: srv.Config().MaxConnections,
		}
		if addr := srv.Addr(); addr != nil {
			status.Address = addr.String()
		}
		if room != nil {
			status.Members = room.Members()
		}
		return status
	}
}

// watchedConfigPath returns the configuration file to watch, if it exists
func watchedConfigPath() string {
	path := configFile
	if path == "" {
		path = config.GetConfigPath()
	}
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}
