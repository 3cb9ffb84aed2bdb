package kafka

import (
	"context"
	"time"

	"github.com/turtacn/moldesc/internal/domain/run"
	"github.com/turtacn/moldesc/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/moldesc/pkg/errors"
)

// RowEvent is the payload of EventRowCalculated.
type RowEvent struct {
	RunID       string   `json:"run_id"`
	Descriptors []string `json:"descriptors"`
	Row         run.Row  `json:"row"`
}

// CompletedEvent is the payload of EventRunCompleted, published after every
// row of the run.
type CompletedEvent struct {
	RunID       string        `json:"run_id"`
	RequestID   string        `json:"request_id,omitempty"`
	Descriptors []string      `json:"descriptors"`
	Stats       run.Stats     `json:"stats"`
	Duration    time.Duration `json:"duration"`
	Export      *run.Export   `json:"export,omitempty"`
}

// BatchPublisher is satisfied by *Producer.
type BatchPublisher interface {
	PublishBatch(ctx context.Context, msgs []*ProducerMessage) (*BatchPublishResult, error)
}

// ResultPublisher streams finished runs to the result topic, one message
// per row followed by a completion message, all keyed by run id so they
// share a partition.
type ResultPublisher struct {
	producer BatchPublisher
	topic    string
	source   string
	logger   logging.Logger
}

func NewResultPublisher(p BatchPublisher, topic string, log logging.Logger) *ResultPublisher {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &ResultPublisher{producer: p, topic: topic, source: "moldesc", logger: log}
}

// PublishRun publishes r. Any failed message fails the call.
func (p *ResultPublisher) PublishRun(ctx context.Context, r *run.Run) error {
	return p.publish(ctx, r, "")
}

// PublishRunFor is PublishRun with the id of the request that asked for r.
func (p *ResultPublisher) PublishRunFor(ctx context.Context, r *run.Run, requestID string) error {
	return p.publish(ctx, r, requestID)
}

func (p *ResultPublisher) publish(ctx context.Context, r *run.Run, requestID string) error {
	id := r.ID.String()
	key := []byte(id)
	msgs := make([]*ProducerMessage, 0, len(r.Rows)+1)

	for _, row := range r.Rows {
		msg, err := p.message(EventRowCalculated, key, RowEvent{RunID: id, Descriptors: r.Descriptors, Row: row})
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
	}
	done, err := p.message(EventRunCompleted, key, CompletedEvent{
		RunID:       id,
		RequestID:   requestID,
		Descriptors: r.Descriptors,
		Stats:       r.Stats(),
		Duration:    r.Duration,
		Export:      r.Export,
	})
	if err != nil {
		return err
	}
	msgs = append(msgs, done)

	res, err := p.producer.PublishBatch(ctx, msgs)
	if err != nil {
		return err
	}
	if res.Failed > 0 {
		first := res.Errors[0].Error
		p.logger.Error("Failed to publish run",
			logging.String("run_id", id),
			logging.Int("failed", res.Failed),
			logging.Err(first))
		return ErrPublishFailed.WithCause(first).WithDetail(id)
	}
	p.logger.Debug("Published run", logging.String("run_id", id), logging.Int("messages", len(msgs)))
	return nil
}

func (p *ResultPublisher) message(eventType string, key []byte, payload interface{}) (*ProducerMessage, error) {
	env, err := NewEnvelope(eventType, p.source, payload)
	if err != nil {
		return nil, err
	}
	msg, err := env.ToMessage(p.topic, key)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to build result message")
	}
	return msg, nil
}
