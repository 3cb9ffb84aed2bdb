// Command apiserver serves the descriptor catalog and batch calculation
// over HTTP and, when enabled, gRPC.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/turtacn/moldesc/internal/application/calculation"
	"github.com/turtacn/moldesc/internal/bootstrap"
	"github.com/turtacn/moldesc/internal/config"
	"github.com/turtacn/moldesc/internal/infrastructure/monitoring/logging"
	grpcserver "github.com/turtacn/moldesc/internal/interfaces/grpc"
	httpserver "github.com/turtacn/moldesc/internal/interfaces/http"
	"github.com/turtacn/moldesc/internal/interfaces/http/handlers"
	"github.com/turtacn/moldesc/internal/interfaces/http/middleware"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to configuration file (default: environment only)")
	port := flag.Int("port", 0, "HTTP port (overrides config)")
	flag.Parse()

	if err := run(*configPath, *port); err != nil {
		fmt.Fprintf(os.Stderr, "apiserver: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, port int) error {
	cfg, err := config.LoadOptional(configPath)
	if err != nil {
		return err
	}
	if port > 0 {
		cfg.Server.Port = port
	}

	logger, err := logging.NewLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	infra, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := infra.Close(); err != nil {
			logger.Error("Failed to close backends", logging.Err(err))
		}
	}()

	svc := calculation.NewService(cfg.Calculator, logger.Named("calculation"), infra.ServiceOptions(cfg)...)
	if configPath != "" {
		config.Watch(configPath, func(c *config.Config) { svc.Reconfigure(c.Calculator) })
	}

	var checks []handlers.HealthChecker
	for name, fn := range infra.Checks() {
		checks = append(checks, handlers.CheckFunc{Label: name, Fn: fn})
	}

	var calcLimit *middleware.RateLimitConfig
	if rl := cfg.Server.RateLimit; rl.Enabled {
		calcLimit = &middleware.RateLimitConfig{
			RequestsPerSecond: rl.RequestsPerSecond,
			Burst:             rl.Burst,
			KeyFunc:           middleware.ClientIP,
			IdleTTL:           10 * time.Minute,
		}
	}

	router := httpserver.NewRouter(httpserver.RouterConfig{
		DescriptorHandler:  handlers.NewDescriptorHandler(cfg.Server.MaxBodySize, logger),
		CalculationHandler: handlers.NewCalculationHandler(svc, cfg.Server.MaxBodySize, logger),
		HealthHandler:      handlers.NewHealthHandler(version, checks...),
		Logger:             logger,
		Metrics:            infra.Metrics,
		MetricsCollector:   infra.Collector,
		MetricsPath:        cfg.Metrics.Path,
		CalculateRateLimit: calcLimit,
		CORSOrigins:        cfg.Server.CORSOrigins,
	})
	srv := httpserver.NewServer(cfg.Server, router, logger)

	errCh := make(chan error, 2)
	go func() { errCh <- srv.Start() }()

	var rpc *grpcserver.Server
	if cfg.GRPC.Enabled {
		rpc = grpcserver.NewServer(cfg.GRPC,
			grpcserver.WithLogger(logger.Named("grpc")),
			grpcserver.WithMetrics(infra.Metrics))
		rpc.RegisterService(&grpcserver.ServiceDesc, grpcserver.NewCalculations(svc, logger.Named("grpc")))
		go func() { errCh <- rpc.Start() }()
	}

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout+time.Second)
	defer cancel()
	if rpc != nil {
		rpc.Stop(shutdownCtx)
	}
	return srv.Shutdown(shutdownCtx)
}
