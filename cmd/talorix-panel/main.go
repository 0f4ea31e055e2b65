package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Talorix/panel/internal/core/service"
	"github.com/Talorix/panel/internal/infra/buildinfo"
	"github.com/Talorix/panel/internal/infra/certreload"
	"github.com/Talorix/panel/internal/infra/confloader"
	"github.com/Talorix/panel/internal/infra/shutdown"
	"github.com/Talorix/panel/internal/relay"
	"github.com/Talorix/panel/internal/server/config"
	"github.com/Talorix/panel/internal/server/httpserver"
	"github.com/Talorix/panel/internal/server/httpserver/handler"
	"github.com/Talorix/panel/internal/storage"
	"github.com/Talorix/panel/internal/telemetry/logger"
	"github.com/Talorix/panel/internal/telemetry/metric"
	"github.com/Talorix/panel/pkg/token"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configFile  = flag.String("config", "", "Path to configuration file")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("talorix-panel %s\n", buildinfo.String())
		return nil
	}

	cfg, err := loadConfig(*configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := initLogger(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	log.Info("starting talorix-panel",
		"version", buildinfo.Get().Version,
		"commit", buildinfo.Get().Commit,
		"config", *configFile)
	log.Debug("effective configuration", "config", config.Sanitize(cfg))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		reg         = metric.NewRegistry()
		registerer  = metricsRegisterer(cfg, reg)
		relayMetric = metric.NewRelay(registerer)
	)

	repo, err := storage.Open(ctx, storage.Config{
		Backend:    cfg.Storage.Backend,
		DataDir:    cfg.Storage.DataDir,
		SQLiteDSN:  cfg.Storage.SQLiteDSN,
		GCInterval: cfg.Storage.GCInterval,
	}, logger.Slog(log).With("component", "storage"), registerer)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	log.Info("storage opened", "backend", cfg.Storage.Backend)

	shutdownHandler := shutdown.NewHandler(cfg.Server.HTTP.ShutdownTimeout, log)
	shutdownHandler.OnShutdown("storage", func(context.Context) error {
		return repo.Close()
	})
	shutdownHandler.OnShutdown("background", func(context.Context) error {
		cancel()
		return nil
	})
	go storage.RunSessionPurge(ctx, repo, cfg.Storage.GCInterval, logger.Slog(log).With("component", "storage"))

	engine := relay.NewEngine(
		relay.NewConnector(relay.ConnectorConfig{
			ConnectTimeout: cfg.Relay.ConnectTimeout,
			AckTimeout:     cfg.Relay.AckTimeout,
			WriteWait:      cfg.Relay.WriteWait,
		}),
		relay.EngineConfig{
			WriteWait:      cfg.Relay.WriteWait,
			PingPeriod:     cfg.Relay.PingPeriod,
			MaxMessageSize: cfg.Relay.MaxMessageSize,
		},
		log,
		relayMetric,
	)
	shutdownHandler.OnShutdown("relays", func(context.Context) error {
		log.Info("closing live relays", "active", engine.Active())
		engine.CloseAll()
		return nil
	})

	router, err := buildRouter(cfg, repo, engine, relayMetric, reg, log)
	if err != nil {
		return fmt.Errorf("build router: %w", err)
	}

	ln, err := net.Listen("tcp", cfg.Server.HTTP.Address)
	if err != nil {
		_ = shutdownHandler.Shutdown()
		return fmt.Errorf("listen: %w", err)
	}
	httpServer := httpserver.New(&cfg.Server.HTTP, router)
	scheme := "http"
	if cfg.Server.HTTP.TLSEnabled() {
		certs, err := certreload.New(cfg.Server.HTTP.TLSCertFile, cfg.Server.HTTP.TLSKeyFile,
			certreload.WithLogger(log.With("component", "tls")))
		if err != nil {
			_ = ln.Close()
			_ = shutdownHandler.Shutdown()
			return fmt.Errorf("load tls certificate: %w", err)
		}
		httpServer.UseTLS(certs.TLSConfig())
		go func() {
			if err := certs.Run(ctx); err != nil {
				log.Warn("TLS certificate hot reload disabled", "error", err)
			}
		}()
		scheme = "https"
	}
	shutdownHandler.OnShutdown("http", httpServer.Shutdown)

	go func() {
		log.Info("HTTP server listening", "addr", ln.Addr().String(), "scheme", scheme)
		if err := httpServer.Serve(ln); err != nil {
			shutdownHandler.Trigger(fmt.Errorf("http server: %w", err))
		}
	}()

	if *configFile != "" {
		stop, err := watchConfig(*configFile, log)
		if err != nil {
			log.Warn("config hot reload disabled", "error", err)
		} else {
			shutdownHandler.OnShutdown("config-watcher", func(context.Context) error { return stop() })
		}
	}

	log.Info("panel started, press Ctrl+C to stop")
	if err := shutdownHandler.Wait(context.Background()); err != nil {
		log.Error("shutdown error", "error", err)
		return err
	}

	log.Info("panel stopped gracefully")
	return nil
}

// loadConfig loads configuration from defaults, file and environment.
func loadConfig(configFile string) (*config.PanelConfig, error) {
	cfg := config.Default()

	var opts []confloader.Option
	if configFile != "" {
		opts = append(opts, confloader.WithConfigFile(configFile))
	}
	if err := confloader.NewLoader(opts...).Load(cfg); err != nil {
		return nil, err
	}

	if err := config.Verify(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// initLogger initializes the structured logger and makes it the default.
func initLogger(cfg *config.PanelConfig) (logger.Logger, error) {
	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: os.Stdout,
	})
	if err != nil {
		return nil, err
	}
	logger.SetDefault(log)
	return log, nil
}

// metricsRegisterer returns reg when metrics are enabled and nil otherwise;
// every metric constructor accepts a nil registerer.
func metricsRegisterer(cfg *config.PanelConfig, reg *prometheus.Registry) prometheus.Registerer {
	if !cfg.Telemetry.MetricsEnabled {
		return nil
	}
	return reg
}

func buildRouter(cfg *config.PanelConfig, repo service.Repository, engine *relay.Engine, relayMetric *metric.Relay, reg *prometheus.Registry, log logger.Logger) (http.Handler, error) {
	signer := token.NewSigner(cfg.Session.Secret)

	accounts := service.NewAccountService(repo, repo, signer, &service.AccountConfig{
		SessionTTL:    cfg.Session.TTL,
		LoginAttempts: cfg.Session.LoginAttempts,
	})

	h := handler.New(accounts,
		handler.CookieConfig{
			Name:   cfg.Session.CookieName,
			TTL:    cfg.Session.TTL,
			Secure: cfg.Session.Secure,
		},
		handler.WithLogger(log),
		handler.WithActiveRelays(engine.Active),
		handler.WithReadyCheck(func(ctx context.Context) error {
			_, err := repo.ListNodes(ctx)
			return err
		}),
	)

	var metricsHandler http.Handler
	if cfg.Telemetry.MetricsEnabled {
		metricsHandler = metric.Handler(reg)
	}

	return httpserver.NewRouter(httpserver.RouterConfig{
		HTTP:    &cfg.Server.HTTP,
		Handler: h,
		Relay: handler.RelayDeps{
			Resolver:  service.NewAccessResolver(repo),
			Engine:    engine,
			Upgrader:  handler.NewUpgrader(cfg.Server.HTTP.AllowedOrigins),
			Metrics:   relayMetric,
			WriteWait: cfg.Relay.WriteWait,
		},
		SessionAuth: service.NewSessionAuthenticator(repo, repo, signer, cfg.Session.CookieName),
		APIKeyAuth:  service.NewAPIKeyAuthenticator(repo, cfg.Security.APIKeyRateLimit, cfg.Security.APIKeyBurst),
		Users:       repo,
		Metrics:     metricsHandler,
		Logger:      log,
	})
}

// watchConfig reloads the config file on change and applies the log level.
// Other settings take effect on restart.
func watchConfig(path string, log logger.Logger) (func() error, error) {
	w, err := confloader.NewWatcher(confloader.WithWatcherLogger(logger.Slog(log).With("component", "config")))
	if err != nil {
		return nil, err
	}
	if err := w.Watch(path); err != nil {
		_ = w.Stop()
		return nil, err
	}
	w.OnChange(func(string) {
		cfg, err := loadConfig(path)
		if err != nil {
			log.Warn("config reload rejected", "error", err)
			return
		}
		if cfg.Log.Level != logger.GetLevel() {
			logger.SetLevel(cfg.Log.Level)
			log.Info("log level changed", "level", cfg.Log.Level)
		}
	})
	w.StartAsync()
	return w.Stop, nil
}
