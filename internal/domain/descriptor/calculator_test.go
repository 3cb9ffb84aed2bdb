package descriptor

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/turtacn/moldesc/internal/domain/molecule"
	"github.com/turtacn/moldesc/internal/infrastructure/monitoring/logging"
	pkgerrors "github.com/turtacn/moldesc/pkg/errors"
)

func TestCalculator_CatchesNonCriticalError(t *testing.T) {
	calc, err := NewCalculator(newRaise(errors.New("test exception"), false))
	require.NoError(t, err)

	res := calc.Calculate(benzene(), -1)
	m, ok := AsMissing(res.At(0))
	require.True(t, ok)
	assert.Equal(t, KindError, m.Kind)
	assert.Equal(t, "test exception", m.Err.Error())
	assert.Equal(t, []string{"RaiseDescriptor"}, m.Stack)
}

func TestCalculator_CriticalErrorAbortsMolecule(t *testing.T) {
	atoms := newAtomCounter()
	calc, err := NewCalculator(atoms, newRaise(errors.New("fatal"), true), newBondCounter())
	require.NoError(t, err)

	res := calc.Calculate(benzene(), -1)
	require.Equal(t, 3, res.Len())
	for i := 0; i < res.Len(); i++ {
		m, ok := AsMissing(res.At(i))
		require.True(t, ok, "slot %d", i)
		assert.Equal(t, KindError, m.Kind)
		assert.Equal(t, "fatal", m.Err.Error())
		assert.True(t, IsCritical(m.Err))
	}
	// Nodes ordered before the critical one ran; the rest did not.
	assert.EqualValues(t, 1, atoms.calls.Load())
}

func TestCalculator_FailureIsolation(t *testing.T) {
	calc, err := NewCalculator(
		newAtomCounter(),
		&panicDescriptor{Base: NewBase("Panic", "panicky")},
		&notApplicable{Base: NewBase("NA", "na")},
		newBondCounter(),
	)
	require.NoError(t, err)

	res := calc.Calculate(benzene(), -1)
	assert.Equal(t, 6, res.At(0))
	assert.Equal(t, 6, res.At(3))

	p, ok := AsMissing(res.At(1))
	require.True(t, ok)
	assert.Equal(t, KindError, p.Kind)
	assert.Contains(t, p.Err.Error(), "boom")

	na, ok := AsMissing(res.At(2))
	require.True(t, ok)
	assert.Equal(t, KindMissingValue, na.Kind)
	assert.Contains(t, na.Err.Error(), "not applicable")
}

func TestCalculator_Deterministic(t *testing.T) {
	build := func() *Calculator {
		atoms := newAtomCounter()
		return MustCalculator(
			newScaled(atoms, 2),
			newRaise(errors.New("test exception"), false),
			&notApplicable{Base: NewBase("NA", "na")},
			&panicDescriptor{Base: NewBase("Panic", "panicky")},
			Add(newBondCounter(), atoms),
			atoms,
		)
	}
	keys := func(c *Calculator) []Key {
		var out []Key
		for _, d := range c.Nodes() {
			out = append(out, d.Key())
		}
		return out
	}

	first, second := build(), build()
	require.Equal(t, keys(first), keys(second))

	for _, mol := range []molecule.Molecule{benzene(), molecule.MustSMILES("CCO.N")} {
		want := first.Calculate(mol, -1)
		for i := 0; i < 5; i++ {
			assert.True(t, want.Equal(first.Calculate(mol, -1)), "repeat %d", i)
		}
		assert.True(t, want.Equal(second.Calculate(mol, -1)))
	}
}

func TestCalculator_MemoizesSharedDependency(t *testing.T) {
	shared := newAtomCounter()
	calc, err := NewCalculator(newScaled(shared, 2), newScaled(shared, 3), shared)
	require.NoError(t, err)

	mols := []molecule.Molecule{benzene(), molecule.MustSMILES("CCO")}
	for _, m := range mols {
		res := calc.Calculate(m, -1)
		n := len(m.Atoms())
		assert.Equal(t, []Value{2 * n, 3 * n, n}, res.Values())
	}
	assert.EqualValues(t, len(mols), shared.calls.Load())
	assert.Len(t, calc.Nodes(), 3)
}

func TestCalculator_DeduplicatesByKey(t *testing.T) {
	first := newAtomCounter()
	calc, err := NewCalculator(first, newAtomCounter(), []Descriptor{newBondCounter(), newAtomCounter()})
	require.NoError(t, err)

	require.Equal(t, 2, calc.Len())
	assert.Same(t, first, calc.Descriptors()[0])
	assert.Equal(t, []string{"nAtomTest", "nBondTest"}, calc.Calculate(benzene(), -1).Names())
}

func TestCalculator_RejectsCycles(t *testing.T) {
	_, err := NewCalculator(newCyclic("a", "b"))
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeCyclicDependency))
	assert.Contains(t, err.Error(), "a -> b -> a")
}

func TestCalculator_RegisterErrors(t *testing.T) {
	c := MustCalculator()
	assert.True(t, pkgerrors.IsCode(c.Register(nil), pkgerrors.ErrCodeInvalidDescriptorArgs))
	assert.True(t, pkgerrors.IsCode(c.Register(42), pkgerrors.ErrCodeInvalidDescriptorArgs))
	assert.True(t, pkgerrors.IsCode(c.Register(&Module{Name: "empty"}), pkgerrors.ErrCodeEmptyModule))
	assert.Zero(t, c.Len())

	assert.Panics(t, func() { MustCalculator("nope") })
}

func TestCalculator_RegisterModules(t *testing.T) {
	mod := &Module{
		Name: "root",
		Classes: []*Class{{
			Name:    "AtomCounter",
			Presets: func() []Descriptor { return []Descriptor{newAtomCounter()} },
		}},
		Submodules: []*Module{{
			Name: "child",
			Classes: []*Class{{
				Name:    "BondCounter",
				Presets: func() []Descriptor { return []Descriptor{newBondCounter()} },
			}},
		}},
	}
	calc, err := NewCalculator([]*Module{mod, mod})
	require.NoError(t, err)
	assert.Equal(t, 2, calc.Len())
}

func TestCalculator_ObserverAndLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	obs := &recordingObserver{}
	calc, err := NewCalculator(
		newAtomCounter(),
		newRaise(errors.New("x"), false),
		WithLogger(logging.NewLoggerFromCore(core)),
		WithObserver(obs),
	)
	require.NoError(t, err)

	calc.Calculate(benzene(), -1)
	assert.EqualValues(t, 1, obs.molecules.Load())
	assert.EqualValues(t, 1, obs.failures.Load())

	entries := logs.FilterMessage("molecule evaluated").All()
	require.Len(t, entries, 1)
	assert.EqualValues(t, 1, entries[0].ContextMap()["failures"])
}

func TestCalculator_PropagatesMissingThroughStack(t *testing.T) {
	na := &notApplicable{Base: NewBase("NA", "na")}
	calc := MustCalculator(newScaled(na, 2))

	m, ok := AsMissing(calc.Calculate(benzene(), -1).At(0))
	require.True(t, ok)
	assert.Equal(t, KindMissingValue, m.Kind)
	assert.Equal(t, []string{"na", "scaled"}, m.Stack)
}

func TestCalculator_ToJSON(t *testing.T) {
	calc := MustCalculator(Const(1), Add(Const(1), Const(2)))
	js := calc.ToJSON()
	require.Len(t, js, 2)
	assert.Equal(t, ConstClass, js[0]["name"])
	assert.Equal(t, BinaryClass, js[1]["name"])
}

func TestEvaluate(t *testing.T) {
	v, err := Evaluate(newAtomCounter(), benzene(), -1)
	require.NoError(t, err)
	assert.Equal(t, 6, v)

	cause := errors.New("test exception")
	_, err = Evaluate(newRaise(cause, false), benzene(), -1)
	assert.Same(t, cause, err)

	_, err = Evaluate(nil, benzene(), -1)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeInvalidDescriptorArgs))
}

func TestContext_ConformerMissing(t *testing.T) {
	ctx := NewContext(benzene(), -1)
	_, err := ctx.Conformer()
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeMissingValue))
}
