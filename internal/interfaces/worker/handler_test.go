package worker

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/moldesc/internal/application/calculation"
	"github.com/turtacn/moldesc/internal/domain/run"
	"github.com/turtacn/moldesc/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/moldesc/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/moldesc/internal/testutil"
	pkgerrors "github.com/turtacn/moldesc/pkg/errors"
)

type mockCalculator struct{ mock.Mock }

func (m *mockCalculator) Calculate(ctx context.Context, req calculation.Request) (*run.Run, error) {
	args := m.Called(ctx, req)
	if v := args.Get(0); v != nil {
		return v.(*run.Run), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockClaims struct{ mock.Mock }

func (m *mockClaims) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, key, ttl)
	return args.Bool(0), args.Error(1)
}

func (m *mockClaims) Delete(ctx context.Context, keys ...string) error {
	return m.Called(ctx, keys).Error(0)
}

func requestMessage(t *testing.T, eventType string, req calculation.Request) *kafka.Message {
	t.Helper()
	env, err := kafka.NewEnvelope(eventType, "test", req)
	require.NoError(t, err)
	pm, err := env.ToMessage("moldesc.requests", nil)
	require.NoError(t, err)
	return &kafka.Message{Topic: pm.Topic, Value: pm.Value, Headers: pm.Headers}
}

func TestHandle_Calculates(t *testing.T) {
	calc, claims := &mockCalculator{}, &mockClaims{}
	h := NewHandler(calc, nil, WithClaims(claims, time.Minute))
	req := calculation.Request{Inputs: []string{"CCO"}, RequestID: "r-1"}

	claims.On("Claim", mock.Anything, "request:r-1", time.Minute).Return(true, nil)
	calc.On("Calculate", mock.Anything, mock.MatchedBy(func(got calculation.Request) bool {
		return got.RequestID == "r-1" && len(got.Inputs) == 1
	})).Return(&run.Run{ID: uuid.New(), Rows: []run.Row{{}}}, nil)

	require.NoError(t, h.Handle(context.Background(), requestMessage(t, kafka.EventCalculationRequested, req)))
	calc.AssertExpectations(t)
	claims.AssertExpectations(t)
}

func TestHandle_RequestIDDefaultsToEventID(t *testing.T) {
	calc := &mockCalculator{}
	h := NewHandler(calc, nil)
	msg := requestMessage(t, kafka.EventCalculationRequested, calculation.Request{Inputs: []string{"C"}})
	env, err := kafka.EnvelopeFromMessage(msg)
	require.NoError(t, err)

	calc.On("Calculate", mock.Anything, mock.MatchedBy(func(got calculation.Request) bool {
		return got.RequestID == env.EventID
	})).Return(&run.Run{ID: uuid.New()}, nil)

	require.NoError(t, h.Handle(context.Background(), msg))
	calc.AssertExpectations(t)
}

func TestHandle_DuplicateIsSkipped(t *testing.T) {
	calc, claims := &mockCalculator{}, &mockClaims{}
	log := testutil.NewMockLogger()
	h := NewHandler(calc, log, WithClaims(claims, 0))
	claims.On("Claim", mock.Anything, "request:r-2", defaultClaimTTL).Return(false, nil)

	msg := requestMessage(t, kafka.EventCalculationRequested, calculation.Request{Inputs: []string{"C"}, RequestID: "r-2"})
	require.NoError(t, h.Handle(context.Background(), msg))
	calc.AssertNotCalled(t, "Calculate", mock.Anything, mock.Anything)
	assert.True(t, log.HasMessage("Skipping duplicate request"))
}

func TestHandle_FailureReleasesClaim(t *testing.T) {
	calc, claims := &mockCalculator{}, &mockClaims{}
	h := NewHandler(calc, nil, WithClaims(claims, time.Minute))
	claims.On("Claim", mock.Anything, "request:r-3", time.Minute).Return(true, nil)
	claims.On("Delete", mock.Anything, []string{"request:r-3"}).Return(nil).Once()
	calc.On("Calculate", mock.Anything, mock.Anything).
		Return(nil, pkgerrors.New(pkgerrors.ErrCodeDatabaseError, "store down"))

	msg := requestMessage(t, kafka.EventCalculationRequested, calculation.Request{Inputs: []string{"C"}, RequestID: "r-3"})
	err := h.Handle(context.Background(), msg)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeDatabaseError))
	claims.AssertExpectations(t)
}

func TestHandle_ClaimErrorStillProcesses(t *testing.T) {
	calc, claims := &mockCalculator{}, &mockClaims{}
	h := NewHandler(calc, nil, WithClaims(claims, time.Minute))
	claims.On("Claim", mock.Anything, mock.Anything, mock.Anything).Return(false, errors.New("redis down"))
	calc.On("Calculate", mock.Anything, mock.Anything).Return(&run.Run{ID: uuid.New()}, nil).Once()

	msg := requestMessage(t, kafka.EventCalculationRequested, calculation.Request{Inputs: []string{"C"}, RequestID: "r-4"})
	require.NoError(t, h.Handle(context.Background(), msg))
	calc.AssertExpectations(t)
}

func TestHandle_BadMessages(t *testing.T) {
	calc := &mockCalculator{}
	h := NewHandler(calc, nil)

	assert.Error(t, h.Handle(context.Background(), &kafka.Message{Value: []byte("{not json")}))

	other := requestMessage(t, kafka.EventRunCompleted, calculation.Request{})
	assert.NoError(t, h.Handle(context.Background(), other))

	env := &kafka.Envelope{EventType: kafka.EventCalculationRequested}
	pm, err := env.ToMessage("moldesc.requests", nil)
	require.NoError(t, err)
	assert.True(t, pkgerrors.IsCode(h.Handle(context.Background(), &kafka.Message{Value: pm.Value}), pkgerrors.ErrCodeValidation))

	calc.AssertNotCalled(t, "Calculate", mock.Anything, mock.Anything)
}

func TestHandle_Timeout(t *testing.T) {
	calc := &mockCalculator{}
	h := NewHandler(calc, nil, WithTimeout(time.Millisecond))
	calc.On("Calculate", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		ctx := args.Get(0).(context.Context)
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline)
	}).Return(&run.Run{ID: uuid.New()}, nil)

	msg := requestMessage(t, kafka.EventCalculationRequested, calculation.Request{Inputs: []string{"C"}})
	require.NoError(t, h.Handle(context.Background(), msg))
}

func TestHandle_RecordsMetrics(t *testing.T) {
	collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{Namespace: "wrk"}, nil)
	require.NoError(t, err)
	calc := &mockCalculator{}
	h := NewHandler(calc, nil, WithMetrics(prometheus.NewAppMetrics(collector)))
	calc.On("Calculate", mock.Anything, mock.Anything).Return(&run.Run{ID: uuid.New()}, nil)

	require.NoError(t, h.Handle(context.Background(), requestMessage(t, kafka.EventCalculationRequested, calculation.Request{Inputs: []string{"C"}})))

	w := httptest.NewRecorder()
	collector.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := w.Body.String()
	assert.Contains(t, body, `wrk_messages_total{result="processed",topic="moldesc.requests"} 1`)
	assert.Contains(t, body, `wrk_message_duration_seconds_count{topic="moldesc.requests"} 1`)
}
