// Seatscope Backend Server
// Entry point for the dashboard service

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/saltfish/seatscope/go-backend/internal/api/grpc"
	httpapi "github.com/saltfish/seatscope/go-backend/internal/api/http"
	"github.com/saltfish/seatscope/go-backend/internal/config"
	"github.com/saltfish/seatscope/go-backend/internal/dashboard"
	"github.com/saltfish/seatscope/go-backend/internal/domain"
	"github.com/saltfish/seatscope/go-backend/internal/events"
	"github.com/saltfish/seatscope/go-backend/internal/loader"
	"github.com/saltfish/seatscope/go-backend/internal/metrics"
	"github.com/saltfish/seatscope/go-backend/internal/scheduler"
	"github.com/saltfish/seatscope/go-backend/internal/telemetry"
	"github.com/saltfish/seatscope/go-backend/web"
)

// Build-time variables (set via ldflags)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file (YAML)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := initLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting Seatscope Backend",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("environment", cfg.Env),
		zap.String("data_source", cfg.Data.Source),
		zap.String("log_level", cfg.Logging.Level),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Application error", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("Seatscope Backend stopped")
}

// run initializes and runs all application components.
func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	httpapi.Version = Version

	// 1. Tracing
	shutdownTracing, err := telemetry.Setup(ctx, &cfg.Tracing, logger)
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn("Error flushing traces", zap.Error(err))
		}
	}()

	m := metrics.New()

	// 2. Data source
	source, closeSource, err := loader.FromConfig(ctx, cfg, logger.Named("loader"))
	if err != nil {
		return fmt.Errorf("failed to create data source: %w", err)
	}
	defer closeSource()
	logger.Info("Data source ready", zap.String("source", source.Name()))

	// 3. Dashboard controller
	controller := dashboard.NewController(
		loader.NewLoader(source, cfg.Data.FetchTimeoutDuration(), m, logger.Named("loader")),
		dashboard.Options{
			InitialView:      initialView(&cfg.Dashboard),
			PlaybackInterval: cfg.Dashboard.PlaybackIntervalDuration(),
			Metrics:          m,
		},
		logger.Named("dashboard"),
	)

	controllerCtx, cancelController := context.WithCancel(context.Background())
	controllerDone := make(chan struct{})
	go func() {
		controller.Run(controllerCtx)
		close(controllerDone)
	}()
	defer func() {
		cancelController()
		<-controllerDone
	}()

	// 4. Event publisher and subscriber (RabbitMQ)
	var (
		eventPublisher  events.Publisher  = events.NewNoOpPublisher()
		eventSubscriber events.Subscriber = events.NewNoOpSubscriber()
	)
	if cfg.RabbitMQ.Enabled {
		logger.Info("Connecting to RabbitMQ...")
		publisher, err := events.NewRabbitMQPublisher(&cfg.RabbitMQ, logger.Named("publisher"))
		if err != nil {
			logger.Warn("Failed to connect to RabbitMQ, using no-op publisher", zap.Error(err))
		} else {
			eventPublisher = publisher
			logger.Info("Connected to RabbitMQ")
		}

		subscriber, err := events.NewRabbitMQSubscriber(&cfg.RabbitMQ, logger.Named("subscriber"))
		if err != nil {
			logger.Warn("Failed to create RabbitMQ subscriber, dataset updates will not trigger reloads", zap.Error(err))
		} else {
			eventSubscriber = subscriber
		}
	} else {
		logger.Info("RabbitMQ not enabled, using no-op publisher")
	}
	defer eventPublisher.Close()
	defer eventSubscriber.Close()

	bridge := events.NewBridge(eventPublisher, m, logger.Named("events"), 0)
	bridgeCtx, cancelBridge := context.WithCancel(context.Background())
	bridgeDone := make(chan struct{})
	go func() {
		bridge.Run(bridgeCtx)
		close(bridgeDone)
	}()
	defer func() {
		cancelBridge()
		<-bridgeDone
	}()
	controller.Subscribe(bridge.Listen)

	reloadTimeout := 2 * cfg.Data.FetchTimeoutDuration()
	handler := events.ReloadHandler(ctx, controller, reloadTimeout, logger.Named("events"))
	if err := eventSubscriber.Subscribe(ctx, []string{events.RoutingKeyDatasetUpdated}, handler); err != nil {
		logger.Warn("Failed to subscribe to dataset updates", zap.Error(err))
	}

	// 5. Websocket hub and servers
	hub := httpapi.NewHub(cfg.Server.AllowedOrigins, m, logger.Named("websocket"))
	go hub.Run()
	controller.Subscribe(hub.Listen)

	grpcServer := grpc.NewServer(logger.Named("grpc"))
	controller.Subscribe(grpcServer.Listen)

	checks := make(map[string]func(context.Context) error)
	if hc, ok := source.(interface{ HealthCheck(context.Context) error }); ok {
		checks[cfg.Data.Source] = hc.HealthCheck
	}

	assets, err := web.GetFileSystem()
	if err != nil {
		return fmt.Errorf("failed to open dashboard assets: %w", err)
	}

	httpAddr := fmt.Sprintf(":%d", cfg.Server.HTTPPort)
	httpServer := httpapi.NewServer(httpapi.Options{
		Address:        httpAddr,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Metrics:        m,
		Assets:         assets,
		Checks:         checks,
	}, controller, hub, logger.Named("http"))

	go func() {
		if err := httpServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	grpcAddr := fmt.Sprintf(":%d", cfg.Server.GRPCPort)
	go func() {
		if err := grpcServer.Start(grpcAddr); err != nil {
			logger.Error("gRPC server error", zap.Error(err))
		}
	}()

	// 6. Initial load. Failures are reported through the snapshot and the
	// service keeps running so that a later reload can recover.
	go func() {
		loadCtx, cancel := context.WithTimeout(ctx, reloadTimeout)
		defer cancel()
		if err := controller.Reload(loadCtx); err != nil {
			logger.Error("Initial dataset load failed", zap.Error(err))
		}
	}()

	// 7. Scheduled reloads
	if cfg.Dashboard.ReloadCron != "" {
		reloadSched, err := scheduler.NewReloadScheduler(
			cfg.Dashboard.ReloadCron,
			cfg.Dashboard.ReloadPollIntervalDuration(),
			controller,
			nil,
			logger.Named("reload"),
		)
		if err != nil {
			return fmt.Errorf("failed to create reload scheduler: %w", err)
		}
		reloadSched.Start(ctx)
		defer reloadSched.Stop()
	}

	logger.Info("Seatscope Backend initialized and running",
		zap.String("grpc_address", grpcAddr),
		zap.String("http_address", httpAddr),
	)

	<-ctx.Done()

	logger.Info("Shutting down Seatscope Backend...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeoutDuration())
	defer shutdownCancel()

	grpcServer.Stop()
	logger.Info("gRPC server stopped")

	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Error("Error stopping HTTP server", zap.Error(err))
	}
	logger.Info("HTTP server stopped")

	return nil
}

// initialView converts the configured starting state. Invalid entries were
// rejected by config validation.
func initialView(cfg *config.DashboardConfig) domain.ViewState {
	view := domain.ViewState{
		SelectedDay:       cfg.InitialDay,
		CompareWithMarket: cfg.CompareWithMarket,
	}
	if zone, ok := domain.ZoneIDFromString(cfg.InitialZone); ok {
		view.SelectedZone = zone
	}
	for _, raw := range cfg.InitialProfiles {
		if p, ok := domain.ProfileIDFromString(raw); ok {
			view.SelectedProfiles = append(view.SelectedProfiles, p)
		}
	}
	return view
}

// initLogger initializes the zap logger based on configuration.
func initLogger(cfg *config.Config) (*zap.Logger, error) {
	var zapCfg zap.Config

	if cfg.Logging.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}

	switch cfg.Logging.Level {
	case "debug":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		zapCfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	if cfg.Logging.OutputPath != "" {
		zapCfg.OutputPaths = []string{cfg.Logging.OutputPath}
	}

	return zapCfg.Build()
}
