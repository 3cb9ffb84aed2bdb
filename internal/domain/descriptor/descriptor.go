// Package descriptor implements the descriptor evaluation engine: the
// descriptor graph, structural keys, operator descriptors, the Calculator
// with memoized per-molecule evaluation, the order-preserving parallel Map,
// descriptor modules and the JSON codec.
//
// A descriptor is an immutable node declaring its dependencies. The
// Calculator deduplicates nodes by Key, orders them topologically once at
// registration and then, per molecule, evaluates every node exactly once.
// Failures never escape a slot: they become *Missing sentinels.
package descriptor

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/turtacn/moldesc/internal/domain/molecule"
)

// Value is the result of one descriptor evaluation: float64, int, bool,
// string, an intermediate structure, or a *Missing sentinel.
type Value = any

// Key is the structural identity of a descriptor. Two descriptors with equal
// keys are the same node.
type Key struct {
	Class string
	Args  string
}

func (k Key) String() string {
	return k.Class + "(" + k.Args + ")"
}

// Arg is one named constructor argument.
type Arg struct {
	Name  string
	Value any
}

// Descriptor is a node of the descriptor graph.
type Descriptor interface {
	// Key identifies the node for deduplication and memoization.
	Key() Key
	// Dependencies lists the nodes whose values Calculate receives, in order.
	Dependencies() []Descriptor
	// Calculate computes the value from the resolved dependency values.
	// Returning an error, or panicking, turns the slot into a sentinel.
	Calculate(ctx *Context, deps []Value) (Value, error)
	// String is the name used for result columns.
	String() string
	// Args returns the constructor arguments in declaration order.
	Args() []Arg
}

// Context is the per-evaluation view handed to Calculate.
type Context struct {
	mol    molecule.Molecule
	confID int
}

// NewContext builds a Context for mol and conformer id.
func NewContext(mol molecule.Molecule, confID int) *Context {
	return &Context{mol: mol, confID: confID}
}

func (c *Context) Mol() molecule.Molecule { return c.mol }
func (c *Context) ConfID() int            { return c.confID }

// Conformer returns the selected conformer. A molecule without coordinates
// yields a missing-value error.
func (c *Context) Conformer() (molecule.Conformer, error) {
	conf, err := c.mol.Conformer(c.confID)
	if err != nil {
		return molecule.Conformer{}, MissingValueError("missing 3D coordinate: %v", err)
	}
	return conf, nil
}

// KeyOf builds a Key whose Args is the canonical rendering of args.
func KeyOf(class string, args ...Arg) Key {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = a.Name + "=" + Canonical(a.Value)
	}
	return Key{Class: class, Args: strings.Join(parts, ",")}
}

// Canonical renders an argument value so that equal values render equally
// regardless of their Go numeric or container type, and identically before
// and after a JSON round trip. Nested descriptors render as their Key.
func Canonical(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case Descriptor:
		return x.Key().String()
	case string:
		return strconv.Quote(x)
	case bool:
		return strconv.FormatBool(x)
	case json.Number:
		return canonicalNumber(x)
	case float32:
		f := float64(x)
		if f == math.Trunc(f) && !math.IsInf(f, 0) {
			return canonicalFloat(f)
		}
		return strconv.FormatFloat(f, 'g', -1, 32)
	case float64:
		return canonicalFloat(x)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(rv.Uint(), 10)
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return "null"
		}
		parts := make([]string, rv.Len())
		for i := range parts {
			parts[i] = Canonical(rv.Index(i).Interface())
		}
		return "[" + strings.Join(parts, ",") + "]"
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			break
		}
		if rv.IsNil() {
			return "null"
		}
		keys := make([]string, 0, rv.Len())
		vals := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			k := iter.Key().String()
			keys = append(keys, k)
			vals[k] = iter.Value().Interface()
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = strconv.Quote(k) + ":" + Canonical(vals[k])
		}
		return "{" + strings.Join(parts, ",") + "}"
	}
	return fmt.Sprintf("%v", v)
}

// canonicalFloat renders integral values inside the int64 or uint64 range as
// integers, since encoding/json writes them without a fraction or exponent.
func canonicalFloat(f float64) string {
	if f == math.Trunc(f) && !math.IsInf(f, 0) {
		switch {
		case f >= -(1<<63) && f < 1<<63:
			return strconv.FormatInt(int64(f), 10)
		case f >= 0 && f < 1<<64:
			return strconv.FormatUint(uint64(f), 10)
		}
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func canonicalNumber(n json.Number) string {
	s := n.String()
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return strconv.FormatInt(i, 10)
	}
	if u, err := strconv.ParseUint(s, 10, 64); err == nil {
		return strconv.FormatUint(u, 10)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return canonicalFloat(f)
	}
	return s
}

// Base carries the identity shared by most descriptors. Embedding it gives
// Key, Args and a default String; the embedder adds Dependencies and
// Calculate.
type Base struct {
	key  Key
	name string
	args []Arg
}

// NewBase precomputes the key of a descriptor of class with args. name is
// the column name.
func NewBase(class, name string, args ...Arg) Base {
	return Base{key: KeyOf(class, args...), name: name, args: args}
}

func (b Base) Key() Key       { return b.key }
func (b Base) String() string { return b.name }

// Args returns a copy of the constructor arguments.
func (b Base) Args() []Arg {
	return append([]Arg(nil), b.args...)
}

// FirstMissing returns the first sentinel among deps, or nil. Descriptors
// use it to propagate a failed input instead of computing on it.
func FirstMissing(deps []Value) *Missing {
	for _, d := range deps {
		if m, ok := d.(*Missing); ok && m != nil {
			return m
		}
	}
	return nil
}

// ToFloat converts a numeric Value to float64. Booleans count as 0 and 1.
func ToFloat(v Value) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case int:
		return float64(x), nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case json.Number:
		return x.Float64()
	}
	if f, ok := numeric(v); ok {
		return f, nil
	}
	return 0, fmt.Errorf("value %v of type %T is not numeric", v, v)
}

// numeric converts values of the integer and floating-point kinds. Unlike
// ToFloat it rejects booleans.
func numeric(v Value) (float64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	default:
		return 0, false
	}
}
