package minio

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/moldesc/internal/domain/run"
	"github.com/turtacn/moldesc/internal/testutil"
	pkgerrors "github.com/turtacn/moldesc/pkg/errors"
)

func exportRun() *run.Run {
	return &run.Run{
		ID:          uuid.MustParse("0b9f4c55-6d1e-4c5e-9c53-2a3a7c1e9f01"),
		Descriptors: []string{"nC", "MW"},
		StartedAt:   time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Rows: []run.Row{
			{Index: 0, Input: "CCO", Name: "ethanol", Values: []any{2, 46.041864812}},
			{Index: 1, Input: "C,C", Values: []any{nil, nil}, ParseError: "bad"},
		},
	}
}

func TestEncodeCSV(t *testing.T) {
	data, err := EncodeCSV(exportRun())
	require.NoError(t, err)
	assert.Equal(t, "input,name,nC,MW\nCCO,ethanol,2,46.041864812\n\"C,C\",,,\n", string(data))
}

func TestFormatCell(t *testing.T) {
	assert.Equal(t, "", formatCell(nil))
	assert.Equal(t, "0.5", formatCell(0.5))
	assert.Equal(t, "true", formatCell(true))
	assert.Equal(t, "[1,2]", formatCell([]int{1, 2}))
}

func TestExporter_Export(t *testing.T) {
	api := newFakeObjectAPI()
	e := NewExporter(NewClientWithAPI(api, testMinIOConfig(), nil), nil)
	r := exportRun()

	out, err := e.Export(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, "prod/runs/0b9f4c55-6d1e-4c5e-9c53-2a3a7c1e9f01/result.csv", out.CSVKey)
	assert.Equal(t, "prod/runs/0b9f4c55-6d1e-4c5e-9c53-2a3a7c1e9f01/run.json", out.JSONKey)

	assert.Equal(t, "text/csv", api.types["moldesc-runs/"+out.CSVKey])
	var back run.Run
	require.NoError(t, json.Unmarshal(api.objects["moldesc-runs/"+out.JSONKey], &back))
	assert.Equal(t, r.ID, back.ID)
	assert.Len(t, back.Rows, 2)
	assert.Empty(t, out.CSVURL)
}

func TestExporter_PresignedURLs(t *testing.T) {
	api := newFakeObjectAPI()
	e := NewExporter(NewClientWithAPI(api, testMinIOConfig(), nil), nil, WithPresignExpiry(time.Hour))

	out, err := e.Export(context.Background(), exportRun())
	require.NoError(t, err)
	assert.Equal(t, "https://minio.local/moldesc-runs/"+out.CSVKey+"?X-Amz-Signature=x", out.CSVURL)
	assert.Contains(t, out.JSONURL, out.JSONKey)

	api.presignErr = errors.New("no credentials")
	log := testutil.NewMockLogger()
	e = NewExporter(NewClientWithAPI(api, testMinIOConfig(), nil), log, WithPresignExpiry(time.Hour))
	out, err = e.Export(context.Background(), exportRun())
	require.NoError(t, err)
	assert.Empty(t, out.CSVURL)
	assert.Empty(t, out.JSONURL)
	assert.True(t, log.HasMessage("Failed to presign export"))
}

func TestExporter_Remove(t *testing.T) {
	api := newFakeObjectAPI()
	e := NewExporter(NewClientWithAPI(api, testMinIOConfig(), nil), nil)
	r := exportRun()
	other := exportRun()
	other.ID = uuid.New()

	_, err := e.Export(context.Background(), r)
	require.NoError(t, err)
	_, err = e.Export(context.Background(), other)
	require.NoError(t, err)
	require.Len(t, api.objects, 4)

	n, err := e.Remove(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, api.objects, 2)

	n, err = e.Remove(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestExporter_UploadFailure(t *testing.T) {
	api := newFakeObjectAPI()
	api.putErr = errors.New("quota exceeded")
	e := NewExporter(NewClientWithAPI(api, testMinIOConfig(), nil), nil)

	_, err := e.Export(context.Background(), exportRun())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeExportFailed))
}
