// Package bootstrap builds the optional sinks shared by the API server and
// the worker from configuration.
package bootstrap

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/turtacn/moldesc/internal/application/calculation"
	"github.com/turtacn/moldesc/internal/config"
	"github.com/turtacn/moldesc/internal/infrastructure/database/postgres"
	"github.com/turtacn/moldesc/internal/infrastructure/database/postgres/repositories"
	"github.com/turtacn/moldesc/internal/infrastructure/database/redis"
	"github.com/turtacn/moldesc/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/moldesc/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/moldesc/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/moldesc/internal/infrastructure/storage/minio"
)

// Infra holds the connected backends. A nil field means the backend is
// disabled in configuration.
type Infra struct {
	Collector prometheus.MetricsCollector
	Metrics   *prometheus.AppMetrics

	Redis *redis.Client
	Cache redis.Cache

	DB   *postgres.Connection
	Runs *repositories.RunRepository

	MinIO    *minio.Client
	Exporter *minio.Exporter

	Producer *kafka.Producer
	Results  *kafka.ResultPublisher

	logger  logging.Logger
	closers []func() error
}

// New connects every enabled backend. On error the backends connected so
// far are closed.
func New(ctx context.Context, cfg *config.Config, log logging.Logger) (*Infra, error) {
	if log == nil {
		log = logging.NewNopLogger()
	}
	in := &Infra{logger: log}

	if err := in.initMetrics(cfg.Metrics); err != nil {
		return nil, err
	}

	steps := []struct {
		name    string
		enabled bool
		init    func() error
	}{
		{"redis", cfg.Redis.Enabled, func() error { return in.initRedis(cfg.Redis) }},
		{"postgres", cfg.Database.Enabled, func() error { return in.initPostgres(cfg.Database) }},
		{"minio", cfg.MinIO.Enabled, func() error { return in.initMinIO(ctx, cfg.MinIO) }},
		{"kafka", cfg.Kafka.Enabled, func() error { return in.initKafka(cfg.Kafka) }},
	}
	for _, s := range steps {
		if !s.enabled {
			log.Info("Backend disabled", logging.String("backend", s.name))
			continue
		}
		if err := s.init(); err != nil {
			_ = in.Close()
			return nil, fmt.Errorf("%s: %w", s.name, err)
		}
	}
	return in, nil
}

func (in *Infra) initMetrics(cfg config.MetricsConfig) error {
	if !cfg.Enabled {
		in.Collector = prometheus.NewNoopCollector()
		in.Metrics = prometheus.NewAppMetrics(in.Collector)
		return nil
	}
	c, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{
		Namespace:            cfg.Namespace,
		EnableGoMetrics:      true,
		EnableProcessMetrics: true,
	}, in.logger)
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	in.Collector = c
	in.Metrics = prometheus.NewAppMetrics(c)
	return nil
}

func (in *Infra) initRedis(cfg config.RedisConfig) error {
	c, err := redis.NewClient(cfg, in.logger.Named("redis"))
	if err != nil {
		return err
	}
	in.Redis = c
	in.closers = append(in.closers, c.Close)

	opts := []redis.CacheOption{redis.WithDefaultTTL(cfg.DefaultTTL)}
	if cfg.NullTTL > 0 {
		opts = append(opts, redis.WithNullCacheTTL(cfg.NullTTL))
	}
	if cfg.KeyPrefix != "" {
		opts = append(opts, redis.WithPrefix(cfg.KeyPrefix))
	}
	in.Cache = redis.NewRedisCache(c, in.logger.Named("cache"), opts...)
	return nil
}

func (in *Infra) initPostgres(cfg config.DatabaseConfig) error {
	conn, err := postgres.NewConnection(cfg, in.logger.Named("postgres"))
	if err != nil {
		return err
	}
	in.DB = conn
	in.closers = append(in.closers, conn.Close)

	if cfg.MigrateOnStart {
		m, err := postgres.NewMigrator(conn.DB(), in.logger.Named("migrate"))
		if err != nil {
			return err
		}
		// Closing the migrator would close the shared *sql.DB.
		if err := m.Up(); err != nil {
			return err
		}
	}
	in.Runs = repositories.NewRunRepository(conn, in.logger.Named("runs"))
	return nil
}

func (in *Infra) initMinIO(ctx context.Context, cfg config.MinIOConfig) error {
	c, err := minio.NewClient(ctx, cfg, in.logger.Named("minio"))
	if err != nil {
		return err
	}
	if err := c.EnsureBucket(ctx); err != nil {
		return err
	}
	in.MinIO = c
	in.Exporter = minio.NewExporter(c, in.logger.Named("exporter"), minio.WithPresignExpiry(cfg.PresignExpiry))
	return nil
}

func (in *Infra) initKafka(cfg config.KafkaConfig) error {
	p, err := kafka.NewProducer(kafka.ProducerConfigFrom(cfg), in.logger.Named("producer"))
	if err != nil {
		return err
	}
	in.Producer = p
	in.closers = append(in.closers, p.Close)
	in.Results = kafka.NewResultPublisher(p, cfg.ResultTopic, in.logger.Named("results"))
	return nil
}

// ServiceOptions wires the connected backends into a calculation.Service.
func (in *Infra) ServiceOptions(cfg *config.Config) []calculation.Option {
	opts := []calculation.Option{
		calculation.WithMetrics(in.Metrics),
		calculation.WithMaxMolecules(cfg.Server.MaxMolecules),
	}
	if in.Cache != nil {
		opts = append(opts, calculation.WithCache(in.Cache, cfg.Redis.DefaultTTL))
	}
	if in.Runs != nil {
		opts = append(opts, calculation.WithStore(in.Runs))
	}
	if in.Exporter != nil {
		opts = append(opts, calculation.WithExporter(in.Exporter))
	}
	if in.Results != nil {
		opts = append(opts, calculation.WithPublisher(in.Results))
	}
	return opts
}

// Checks lists a readiness probe per connected backend.
func (in *Infra) Checks() map[string]func(context.Context) error {
	checks := map[string]func(context.Context) error{}
	if in.Redis != nil {
		checks["redis"] = in.Redis.Ping
	}
	if in.DB != nil {
		checks["postgres"] = in.DB.HealthCheck
	}
	if in.MinIO != nil {
		checks["minio"] = in.MinIO.HealthCheck
	}
	return checks
}

// Close releases the backends in reverse order of connection.
func (in *Infra) Close() error {
	var errs []error
	for i := len(in.closers) - 1; i >= 0; i-- {
		if err := in.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	in.closers = nil
	return stderrors.Join(errs...)
}
