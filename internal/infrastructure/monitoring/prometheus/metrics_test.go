package prometheus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/moldesc/internal/domain/descriptor"
	"github.com/turtacn/moldesc/internal/domain/descriptor/catalog"
	"github.com/turtacn/moldesc/internal/domain/molecule"
)

func TestEngineMetrics_ObservesCalculator(t *testing.T) {
	c := newTestCollector(t)
	m := NewAppMetrics(c)

	nC, ok := catalog.Lookup("nC")
	require.True(t, ok)
	calc, err := descriptor.NewCalculator(
		nC,
		catalog.RadiusOfGyration(),
		descriptor.WithObserver(NewEngineMetrics(m)),
	)
	require.NoError(t, err)

	mols := []molecule.Molecule{molecule.MustSMILES("CCO"), molecule.MustSMILES("c1ccccc1")}
	_, err = calc.MapAll(context.Background(), mols, descriptor.WithNProc(2), descriptor.Quiet(true))
	require.NoError(t, err)

	out := scrapeMetrics(t, c)
	assert.Contains(t, out, `test_unit_molecules_evaluated_total{outcome="partial"} 2`)
	assert.Contains(t, out, `test_unit_descriptor_failures_total{descriptor="RadiusOfGyration",kind="missing"} 2`)
	assert.Contains(t, out, "test_unit_molecule_duration_seconds_count 2")
	// Every worker that started has finished.
	assert.Contains(t, out, "test_unit_map_workers_in_flight 0")
}

func TestRecordHelpers(t *testing.T) {
	c := newTestCollector(t)
	m := NewAppMetrics(c)

	RecordHTTPRequest(m, "POST", "/api/v1/calculate", 200, 20*time.Millisecond)
	RecordCacheAccess(m, "redis", 3, 1)
	RecordCacheAccess(m, "redis", 0, 0)
	RecordRun(m, nil, time.Second)
	RecordRun(m, errors.New("boom"), time.Second)
	RecordMessage(m, "moldesc.requests", nil)
	RecordGRPCRequest(m, "moldesc.v1.Calculations", "Calculate", "OK", 5*time.Millisecond)

	out := scrapeMetrics(t, c)
	assert.Contains(t, out, `test_unit_http_requests_total{method="POST",path="/api/v1/calculate",status_code="200"} 1`)
	assert.Contains(t, out, `test_unit_cache_hits_total{cache="redis"} 3`)
	assert.Contains(t, out, `test_unit_cache_misses_total{cache="redis"} 1`)
	assert.Contains(t, out, `test_unit_runs_total{status="success"} 1`)
	assert.Contains(t, out, `test_unit_runs_total{status="failure"} 1`)
	assert.Contains(t, out, `test_unit_messages_total{result="processed",topic="moldesc.requests"} 1`)
	assert.Contains(t, out, `test_unit_grpc_requests_total{code="OK",method="Calculate",service="moldesc.v1.Calculations"} 1`)
}

func TestNewAppMetrics_Noop(t *testing.T) {
	m := NewAppMetrics(NewNoopCollector())
	e := NewEngineMetrics(m)
	assert.NotPanics(t, func() {
		e.MoleculeEvaluated(time.Millisecond, 1)
		e.DescriptorFailed("x", descriptor.KindError)
		e.WorkersInFlight(1)
	})
}
