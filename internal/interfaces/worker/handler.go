// Package worker turns calculation requests read from Kafka into runs.
package worker

import (
	"context"
	"time"

	"github.com/turtacn/moldesc/internal/application/calculation"
	"github.com/turtacn/moldesc/internal/domain/run"
	"github.com/turtacn/moldesc/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/moldesc/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/moldesc/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/moldesc/pkg/errors"
)

const (
	defaultTimeout  = 5 * time.Minute
	defaultClaimTTL = time.Hour
)

// Calculator is satisfied by *calculation.Service.
type Calculator interface {
	Calculate(ctx context.Context, req calculation.Request) (*run.Run, error)
}

// Claims deduplicates redelivered requests. The redis Cache satisfies it.
type Claims interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, keys ...string) error
}

// Handler processes calculation.requested envelopes. Results leave through
// the service's publisher, so a successful Handle has nothing to return.
type Handler struct {
	calc     Calculator
	claims   Claims
	claimTTL time.Duration
	timeout  time.Duration
	metrics  *prometheus.AppMetrics
	logger   logging.Logger
}

type Option func(*Handler)

func WithClaims(c Claims, ttl time.Duration) Option {
	return func(h *Handler) {
		h.claims = c
		if ttl > 0 {
			h.claimTTL = ttl
		}
	}
}

// WithTimeout bounds one request's calculation.
func WithTimeout(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.timeout = d
		}
	}
}

func WithMetrics(m *prometheus.AppMetrics) Option {
	return func(h *Handler) { h.metrics = m }
}

func NewHandler(calc Calculator, log logging.Logger, opts ...Option) *Handler {
	if log == nil {
		log = logging.NewNopLogger()
	}
	h := &Handler{
		calc:     calc,
		claimTTL: defaultClaimTTL,
		timeout:  defaultTimeout,
		logger:   log,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Handle is a kafka.MessageHandler. Errors are returned for the consumer's
// retry and dead-letter policy; duplicates and foreign event types are
// acknowledged without work.
func (h *Handler) Handle(ctx context.Context, msg *kafka.Message) (err error) {
	if h.metrics != nil {
		timer := prometheus.NewTimer(h.metrics.MessageDuration.WithLabelValues(msg.Topic))
		defer func() {
			timer.ObserveDuration()
			prometheus.RecordMessage(h.metrics, msg.Topic, err)
		}()
	}

	env, err := kafka.EnvelopeFromMessage(msg)
	if err != nil {
		return err
	}
	if env.EventType != kafka.EventCalculationRequested {
		h.logger.Warn("Skipping unexpected event",
			logging.String("event_type", env.EventType),
			logging.String("event_id", env.EventID))
		return nil
	}

	var req calculation.Request
	if err := env.DecodePayload(&req); err != nil {
		return err
	}
	if req.RequestID == "" {
		req.RequestID = env.EventID
	}
	log := h.logger.With(logging.String("request_id", req.RequestID))

	claimKey := "request:" + req.RequestID
	if h.claims != nil {
		ok, cErr := h.claims.Claim(ctx, claimKey, h.claimTTL)
		switch {
		case cErr != nil:
			log.Warn("Claim failed, processing anyway", logging.Err(cErr))
		case !ok:
			log.Info("Skipping duplicate request")
			return nil
		}
	}

	cctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	r, err := h.calc.Calculate(cctx, req)
	if err != nil {
		if h.claims != nil {
			// Let the retry claim it again.
			if dErr := h.claims.Delete(context.Background(), claimKey); dErr != nil {
				log.Warn("Failed to release claim", logging.Err(dErr))
			}
		}
		log.Error("Calculation request failed", logging.Err(err))
		return errors.Wrap(err, errors.GetCode(err), "calculation request failed").WithDetail(req.RequestID)
	}

	log.Info("Calculation request done",
		logging.String("run_id", r.ID.String()),
		logging.Int("molecules", len(r.Rows)),
		logging.Duration("duration", r.Duration))
	return nil
}

// Register subscribes h to topic.
func (h *Handler) Register(c *kafka.Consumer, topic string) {
	c.Subscribe(topic, h.Handle)
}
