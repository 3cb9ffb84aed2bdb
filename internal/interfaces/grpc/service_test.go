package grpc

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/turtacn/moldesc/internal/application/calculation"
	"github.com/turtacn/moldesc/internal/domain/run"
	"github.com/turtacn/moldesc/pkg/errors"
)

func mustStruct(t *testing.T, m map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(m)
	require.NoError(t, err)
	return s
}

func TestCalculations_Calculate(t *testing.T) {
	svc := &mockService{}
	_, conn := startServer(t, svc)
	want := &run.Run{ID: uuid.New(), Descriptors: []string{"nC"}, Rows: []run.Row{{Input: "CCO", Values: []any{2.0}}}}
	svc.On("Calculate", mock.Anything, mock.MatchedBy(func(req calculation.Request) bool {
		return req.Format == calculation.FormatSMILES && len(req.Inputs) == 1 && req.Inputs[0] == "CCO"
	})).Return(want, nil)

	out, err := NewCalculationsClient(conn).Calculate(context.Background(),
		mustStruct(t, map[string]any{"inputs": []any{"CCO"}, "format": "smiles"}))
	require.NoError(t, err)

	got := out.AsMap()
	assert.Equal(t, want.ID.String(), got["id"])
	assert.Equal(t, []any{"nC"}, got["descriptors"])
	rows := got["rows"].([]any)
	require.Len(t, rows, 1)
	assert.Equal(t, []any{2.0}, rows[0].(map[string]any)["values"])
	svc.AssertExpectations(t)
}

func TestCalculations_InvalidRequest(t *testing.T) {
	svc := &mockService{}
	_, conn := startServer(t, svc)

	_, err := NewCalculationsClient(conn).Calculate(context.Background(),
		mustStruct(t, map[string]any{"inputs": "CCO"}))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = NewCalculationsClient(conn).GetRun(context.Background(),
		mustStruct(t, map[string]any{"id": "not-a-uuid"}))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	svc.AssertNotCalled(t, "Calculate", mock.Anything, mock.Anything)
}

func TestCalculations_GetAndDeleteRun(t *testing.T) {
	svc := &mockService{}
	_, conn := startServer(t, svc)
	client := NewCalculationsClient(conn)
	known, unknown := uuid.New(), uuid.New()
	svc.On("GetRun", mock.Anything, known).Return(&run.Run{ID: known}, nil)
	svc.On("GetRun", mock.Anything, unknown).Return(nil, run.ErrNotFound.WithDetail(unknown.String()))
	svc.On("DeleteRun", mock.Anything, known).Return(nil)
	svc.On("DeleteRun", mock.Anything, unknown).Return(run.ErrNotFound)

	out, err := client.GetRun(context.Background(), mustStruct(t, map[string]any{"id": known.String()}))
	require.NoError(t, err)
	assert.Equal(t, known.String(), out.AsMap()["id"])

	_, err = client.GetRun(context.Background(), mustStruct(t, map[string]any{"id": unknown.String()}))
	assert.Equal(t, codes.NotFound, status.Code(err))
	assert.Contains(t, status.Convert(err).Message(), unknown.String())

	out, err = client.DeleteRun(context.Background(), mustStruct(t, map[string]any{"id": known.String()}))
	require.NoError(t, err)
	assert.Empty(t, out.GetFields())

	_, err = client.DeleteRun(context.Background(), mustStruct(t, map[string]any{"id": unknown.String()}))
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestCalculations_ListDescriptors(t *testing.T) {
	_, conn := startServer(t, &mockService{})
	client := NewCalculationsClient(conn)

	out, err := client.ListDescriptors(context.Background(), mustStruct(t, map[string]any{"modules": []any{"ringcount"}}))
	require.NoError(t, err)
	got := out.AsMap()
	assert.Greater(t, got["total"], 0.0)
	assert.Len(t, got["descriptors"], int(got["total"].(float64)))

	_, err = client.ListDescriptors(context.Background(), mustStruct(t, map[string]any{"modules": []any{"nope"}}))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestCalculations_DecodeDescriptors(t *testing.T) {
	_, conn := startServer(t, &mockService{})
	client := NewCalculationsClient(conn)

	out, err := client.DecodeDescriptors(context.Background(), mustStruct(t, map[string]any{
		"descriptors": []any{
			map[string]any{"name": "RingCount"},
			map[string]any{"name": "RingCount"},
		},
	}))
	require.NoError(t, err)
	decoded := out.AsMap()["descriptors"].([]any)
	require.Len(t, decoded, 1)
	assert.Equal(t, map[string]any{"name": "RingCount"}, decoded[0].(map[string]any)["json"])

	_, err = client.DecodeDescriptors(context.Background(), mustStruct(t, map[string]any{
		"descriptors": []any{map[string]any{"name": "NoSuchDescriptor"}},
	}))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestToStatus(t *testing.T) {
	cases := []struct {
		err  error
		want codes.Code
	}{
		{errors.New(errors.ErrCodeValidation, "bad"), codes.InvalidArgument},
		{errors.New(errors.ErrCodeRunNotFound, "gone"), codes.NotFound},
		{errors.New(errors.ErrCodeServiceUnavailable, "down"), codes.Unavailable},
		{errors.New(errors.ErrCodeTooManyRequests, "slow down"), codes.ResourceExhausted},
		{errors.New(errors.ErrCodeInternal, "secret"), codes.Internal},
		{stderrors.New("plain"), codes.Internal},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, status.Code(toStatus(tc.err)), tc.err.Error())
	}
	assert.Equal(t, "internal server error", status.Convert(toStatus(errors.New(errors.ErrCodeInternal, "secret"))).Message())
}
