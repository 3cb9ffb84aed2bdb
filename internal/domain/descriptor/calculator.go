package descriptor

import (
	"fmt"
	"strings"
	"time"

	"github.com/turtacn/moldesc/internal/domain/molecule"
	"github.com/turtacn/moldesc/internal/infrastructure/monitoring/logging"
	pkgerrors "github.com/turtacn/moldesc/pkg/errors"
)

// Observer receives engine measurements. The Prometheus EngineMetrics type
// implements it.
type Observer interface {
	MoleculeEvaluated(elapsed time.Duration, failures int)
	DescriptorFailed(descriptor string, kind Kind)
	WorkersInFlight(delta int)
}

type nopObserver struct{}

func (nopObserver) MoleculeEvaluated(time.Duration, int) {}
func (nopObserver) DescriptorFailed(string, Kind)        {}
func (nopObserver) WorkersInFlight(int)                  {}

// Config holds the Calculator's hooks.
type Config struct {
	Logger  logging.Logger
	Metrics Observer
}

// Option configures a Calculator. Options may be passed to NewCalculator
// alongside descriptors.
type Option func(*Config)

// WithLogger sets the logger used for per-molecule debug and Map progress.
func WithLogger(l logging.Logger) Option {
	return func(c *Config) {
		if l != nil {
			c.Logger = l
		}
	}
}

// WithObserver sets the metrics sink.
func WithObserver(o Observer) Option {
	return func(c *Config) {
		if o != nil {
			c.Metrics = o
		}
	}
}

// Calculator evaluates a fixed set of descriptors on molecules. Registration
// is not safe for concurrent use; once registration is done the Calculator
// is read-only and may be shared by any number of goroutines.
type Calculator struct {
	Config Config

	requested []Descriptor
	reqKeys   map[Key]struct{}
	nodes     map[Key]Descriptor
	// order lists every node so that dependencies precede dependants.
	order []Descriptor
}

// NewCalculator builds a Calculator and registers items. Besides the item
// kinds Register accepts, Option values configure the Calculator.
func NewCalculator(items ...any) (*Calculator, error) {
	c := &Calculator{
		Config:  Config{Logger: logging.NewNopLogger(), Metrics: nopObserver{}},
		reqKeys: map[Key]struct{}{},
		nodes:   map[Key]Descriptor{},
	}
	rest := make([]any, 0, len(items))
	for _, it := range items {
		if opt, ok := it.(Option); ok {
			opt(&c.Config)
			continue
		}
		rest = append(rest, it)
	}
	if err := c.Register(rest...); err != nil {
		return nil, err
	}
	return c, nil
}

// MustCalculator is NewCalculator that panics on error.
func MustCalculator(items ...any) *Calculator {
	c, err := NewCalculator(items...)
	if err != nil {
		panic(err)
	}
	return c
}

// Register adds descriptors. Accepted items: Descriptor, []Descriptor,
// *Module and []*Module; modules contribute the presets of all their
// submodules. A descriptor whose key is already registered is skipped, so
// the first occurrence wins and keeps its position.
func (c *Calculator) Register(items ...any) error {
	for _, it := range items {
		switch x := it.(type) {
		case nil:
			return pkgerrors.New(pkgerrors.ErrCodeInvalidDescriptorArgs, "cannot register nil")
		case Descriptor:
			if err := c.add(x); err != nil {
				return err
			}
		case []Descriptor:
			for _, d := range x {
				if err := c.add(d); err != nil {
					return err
				}
			}
		case *Module:
			descs, err := DescriptorsFromModule(x, true)
			if err != nil {
				return err
			}
			for _, d := range descs {
				if err := c.add(d); err != nil {
					return err
				}
			}
		case []*Module:
			for _, m := range x {
				if err := c.Register(m); err != nil {
					return err
				}
			}
		default:
			return pkgerrors.Newf(pkgerrors.ErrCodeInvalidDescriptorArgs, "cannot register %T", it)
		}
	}
	return nil
}

const (
	visiting = 1
	visited  = 2
)

func (c *Calculator) add(d Descriptor) error {
	if d == nil {
		return pkgerrors.New(pkgerrors.ErrCodeInvalidDescriptorArgs, "cannot register nil descriptor")
	}
	k := d.Key()
	if _, ok := c.reqKeys[k]; ok {
		return nil
	}
	var fresh []Descriptor
	if err := c.visit(d, map[Key]int{}, nil, &fresh); err != nil {
		return err
	}
	for _, n := range fresh {
		c.nodes[n.Key()] = n
		c.order = append(c.order, n)
	}
	c.requested = append(c.requested, d)
	c.reqKeys[k] = struct{}{}
	return nil
}

// visit is a DFS post-order over unregistered nodes. Nodes already in the
// Calculator were validated when they were added.
func (c *Calculator) visit(d Descriptor, state map[Key]int, path []string, out *[]Descriptor) error {
	k := d.Key()
	if _, ok := c.nodes[k]; ok {
		return nil
	}
	switch state[k] {
	case visited:
		return nil
	case visiting:
		return cycleError(path, d.String())
	}
	state[k] = visiting
	path = append(path, d.String())
	for _, dep := range d.Dependencies() {
		if dep == nil {
			return pkgerrors.New(pkgerrors.ErrCodeInvalidDescriptorArgs, "nil dependency").WithDetail(d.String())
		}
		if err := c.visit(dep, state, path, out); err != nil {
			return err
		}
	}
	state[k] = visited
	*out = append(*out, d)
	return nil
}

func cycleError(path []string, name string) error {
	start := 0
	for i, p := range path {
		if p == name {
			start = i
			break
		}
	}
	cycle := append(append([]string(nil), path[start:]...), name)
	return pkgerrors.New(pkgerrors.ErrCodeCyclicDependency, "cyclic descriptor dependency").
		WithDetail(strings.Join(cycle, " -> "))
}

// Descriptors returns the requested descriptors in registration order.
func (c *Calculator) Descriptors() []Descriptor {
	return append([]Descriptor(nil), c.requested...)
}

// Len is the number of requested descriptors.
func (c *Calculator) Len() int { return len(c.requested) }

// Nodes returns every node, intermediates included, in evaluation order.
func (c *Calculator) Nodes() []Descriptor {
	return append([]Descriptor(nil), c.order...)
}

// ToJSON serializes the requested descriptors.
func (c *Calculator) ToJSON() []map[string]any {
	out := make([]map[string]any, len(c.requested))
	for i, d := range c.requested {
		out[i] = ToJSON(d)
	}
	return out
}

// Calculate evaluates every requested descriptor on mol using conformer
// confID (-1 for the default). Each node runs at most once; failures become
// sentinels in their slots.
func (c *Calculator) Calculate(mol molecule.Molecule, confID int) Result {
	start := time.Now()
	ctx := NewContext(mol, confID)
	memo := make(map[Key]Value, len(c.order))

	var critical *Missing
	for _, n := range c.order {
		deps := n.Dependencies()
		vals := make([]Value, len(deps))
		for i, d := range deps {
			vals[i] = memo[d.Key()]
		}
		v := c.evalNode(ctx, n, vals)
		if m, ok := v.(*Missing); ok && m.critical {
			critical = m
			break
		}
		memo[n.Key()] = v
	}

	values := make([]Value, len(c.requested))
	failures := 0
	for i, d := range c.requested {
		if critical != nil {
			values[i] = &Missing{Kind: KindError, Err: critical.Err, Stack: append([]string(nil), critical.Stack...)}
		} else {
			values[i] = memo[d.Key()]
		}
		if m, ok := AsMissing(values[i]); ok {
			failures++
			c.Config.Metrics.DescriptorFailed(d.String(), m.Kind)
		}
	}

	elapsed := time.Since(start)
	c.Config.Metrics.MoleculeEvaluated(elapsed, failures)
	if critical != nil {
		c.Config.Logger.Warn("critical descriptor failure",
			logging.String("molecule", mol.Name()),
			logging.Strings("stack", critical.Stack),
			logging.Err(critical.Err))
	}
	c.Config.Logger.Debug("molecule evaluated",
		logging.String("molecule", mol.Name()),
		logging.Int("descriptors", len(c.requested)),
		logging.Int("failures", failures),
		logging.Duration("elapsed", elapsed))

	return Result{mol: mol, descriptors: c.requested, values: values}
}

func (c *Calculator) evalNode(ctx *Context, n Descriptor, deps []Value) (v Value) {
	defer func() {
		if r := recover(); r != nil {
			err, ok := r.(error)
			if !ok {
				err = fmt.Errorf("%v", r)
			}
			v = newMissing(n.String(), fmt.Errorf("panic in %s: %w", n.String(), err))
		}
	}()
	val, err := n.Calculate(ctx, deps)
	if err != nil {
		return newMissing(n.String(), err)
	}
	if m, ok := val.(*Missing); ok && m != nil {
		return m.extend(n.String())
	}
	return val
}

// Evaluate computes a single descriptor. Unlike Calculate, a failure is
// returned as the underlying error rather than as a sentinel.
func Evaluate(d Descriptor, mol molecule.Molecule, confID int) (Value, error) {
	c, err := NewCalculator(d)
	if err != nil {
		return nil, err
	}
	v := c.Calculate(mol, confID).values[0]
	if m, ok := AsMissing(v); ok {
		return nil, m.Err
	}
	return v, nil
}
