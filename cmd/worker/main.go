// Command worker consumes calculation requests from Kafka and publishes the
// results.
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
	"github.com/turtacn/moldesc/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/moldesc/internal/infrastructure/monitoring/logging"
	httpserver "github.com/turtacn/moldesc/internal/interfaces/http"
	"github.com/turtacn/moldesc/internal/interfaces/http/handlers"
	"github.com/turtacn/moldesc/internal/interfaces/worker"
)

var version = "dev"

const defaultHealthPort = 8081

func main() {
	configPath := flag.String("config", "", "path to configuration file (default: environment only)")
	healthPort := flag.Int("health-port", defaultHealthPort, "port for /healthz, /readyz and /metrics")
	timeout := flag.Duration("timeout", 5*time.Minute, "per-request calculation timeout")
	flag.Parse()

	if err := run(*configPath, *healthPort, *timeout); err != nil {
		fmt.Fprintf(os.Stderr, "worker: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, healthPort int, timeout time.Duration) error {
	cfg, err := config.LoadOptional(configPath)
	if err != nil {
		return err
	}
	if !cfg.Kafka.Enabled {
		return fmt.Errorf("kafka is disabled in configuration")
	}

	logger, err := logging.NewLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := ensureTopics(ctx, cfg.Kafka, logger); err != nil {
		logger.Warn("Could not ensure topics", logging.Err(err))
	}

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

	opts := []worker.Option{worker.WithTimeout(timeout), worker.WithMetrics(infra.Metrics)}
	if infra.Cache != nil {
		opts = append(opts, worker.WithClaims(infra.Cache, 0))
	}
	h := worker.NewHandler(svc, logger.Named("worker"), opts...)

	consumer, err := kafka.NewConsumer(kafka.ConsumerConfigFrom(cfg.Kafka), logger.Named("consumer"))
	if err != nil {
		return err
	}
	defer consumer.Close()
	h.Register(consumer, cfg.Kafka.RequestTopic)

	if err := consumer.Start(ctx); err != nil {
		return err
	}
	logger.Info("Worker started",
		logging.String("topic", cfg.Kafka.RequestTopic),
		logging.String("group", cfg.Kafka.GroupID))

	var checks []handlers.HealthChecker
	for name, fn := range infra.Checks() {
		checks = append(checks, handlers.CheckFunc{Label: name, Fn: fn})
	}
	health := httpserver.NewServer(config.ServerConfig{
		Port:            healthPort,
		ReadTimeout:     5 * time.Second,
		WriteTimeout:    5 * time.Second,
		ShutdownTimeout: 5 * time.Second,
	}, httpserver.NewRouter(httpserver.RouterConfig{
		HealthHandler:    handlers.NewHealthHandler(version, checks...),
		MetricsCollector: infra.Collector,
		MetricsPath:      cfg.Metrics.Path,
	}), logger.Named("health"))
	go func() {
		if err := health.Start(); err != nil {
			logger.Error("Health server failed", logging.Err(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down", logging.Any("stats", consumer.Stats()))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return health.Shutdown(shutdownCtx)
}

func ensureTopics(ctx context.Context, cfg config.KafkaConfig, log logging.Logger) error {
	tm, err := kafka.NewTopicManager(cfg.Brokers, log.Named("topics"))
	if err != nil {
		return err
	}
	defer tm.Close()
	return tm.EnsureTopics(ctx, kafka.DefaultTopics(cfg))
}
