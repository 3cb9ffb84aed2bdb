package descriptor

import (
	"sync/atomic"
	"time"

	"github.com/turtacn/moldesc/internal/domain/molecule"
)

// atomCounter counts atoms and records how often it ran.
type atomCounter struct {
	Base
	calls *atomic.Int64
}

func newAtomCounter() *atomCounter {
	return &atomCounter{Base: NewBase("AtomCounter", "nAtomTest"), calls: &atomic.Int64{}}
}

func (d *atomCounter) Dependencies() []Descriptor { return nil }

func (d *atomCounter) Calculate(ctx *Context, _ []Value) (Value, error) {
	d.calls.Add(1)
	return len(ctx.Mol().Atoms()), nil
}

// bondCounter counts bonds.
type bondCounter struct{ Base }

func newBondCounter() *bondCounter {
	return &bondCounter{Base: NewBase("BondCounter", "nBondTest")}
}

func (d *bondCounter) Dependencies() []Descriptor { return nil }

func (d *bondCounter) Calculate(ctx *Context, _ []Value) (Value, error) {
	return len(ctx.Mol().Bonds()), nil
}

// scaled depends on a shared node and multiplies it.
type scaled struct {
	Base
	dep    Descriptor
	factor int
}

func newScaled(dep Descriptor, factor int) *scaled {
	return &scaled{
		Base:   NewBase("Scaled", "scaled", Arg{"factor", factor}, Arg{"dep", dep}),
		dep:    dep,
		factor: factor,
	}
}

func (d *scaled) Dependencies() []Descriptor { return []Descriptor{d.dep} }

func (d *scaled) Calculate(_ *Context, deps []Value) (Value, error) {
	if m := FirstMissing(deps); m != nil {
		return m, nil
	}
	return deps[0].(int) * d.factor, nil
}

// raiseDescriptor always fails with e.
type raiseDescriptor struct {
	Base
	e        error
	critical bool
}

func newRaise(e error, critical bool) *raiseDescriptor {
	return &raiseDescriptor{Base: NewBase("RaiseDescriptor", "RaiseDescriptor"), e: e, critical: critical}
}

func (d *raiseDescriptor) Dependencies() []Descriptor { return nil }

func (d *raiseDescriptor) Calculate(_ *Context, _ []Value) (Value, error) {
	if d.critical {
		return nil, Critical(d.e)
	}
	return nil, d.e
}

// panicDescriptor panics.
type panicDescriptor struct{ Base }

func (d *panicDescriptor) Dependencies() []Descriptor { return nil }

func (d *panicDescriptor) Calculate(_ *Context, _ []Value) (Value, error) {
	panic("boom")
}

// notApplicable reports a missing value.
type notApplicable struct{ Base }

func (d *notApplicable) Dependencies() []Descriptor { return nil }

func (d *notApplicable) Calculate(_ *Context, _ []Value) (Value, error) {
	return nil, MissingValueError("not applicable")
}

// cyclic depends on a node whose dependency is itself.
type cyclic struct {
	Base
	next string
}

func newCyclic(name, next string) *cyclic {
	return &cyclic{Base: NewBase("Cyclic", name, Arg{"name", name}), next: next}
}

func (d *cyclic) Dependencies() []Descriptor {
	return []Descriptor{newCyclic(d.next, d.String())}
}

func (d *cyclic) Calculate(_ *Context, _ []Value) (Value, error) { return 0, nil }

// recordingObserver captures Observer calls.
type recordingObserver struct {
	molecules atomic.Int64
	failures  atomic.Int64
	inFlight  atomic.Int64
	peak      atomic.Int64
}

func (o *recordingObserver) MoleculeEvaluated(_ time.Duration, _ int) { o.molecules.Add(1) }
func (o *recordingObserver) DescriptorFailed(_ string, _ Kind)        { o.failures.Add(1) }
func (o *recordingObserver) WorkersInFlight(delta int) {
	n := o.inFlight.Add(int64(delta))
	for {
		p := o.peak.Load()
		if n <= p || o.peak.CompareAndSwap(p, n) {
			return
		}
	}
}

func benzene() molecule.Molecule { return molecule.MustSMILES("c1ccccc1") }
