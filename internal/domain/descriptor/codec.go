package descriptor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	pkgerrors "github.com/turtacn/moldesc/pkg/errors"
)

// ToJSON renders d as {"name": <class>, "args": {...}}. Descriptor-valued
// arguments nest in the same shape; "args" is omitted when empty.
func ToJSON(d Descriptor) map[string]any {
	out := map[string]any{"name": d.Key().Class}
	args := d.Args()
	if len(args) == 0 {
		return out
	}
	m := make(map[string]any, len(args))
	for _, a := range args {
		if sub, ok := a.Value.(Descriptor); ok {
			m[a.Name] = ToJSON(sub)
			continue
		}
		m[a.Name] = a.Value
	}
	out["args"] = m
	return out
}

// MarshalDescriptor encodes d as JSON.
func MarshalDescriptor(d Descriptor) ([]byte, error) {
	b, err := json.Marshal(ToJSON(d))
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrCodeSerialization, "marshal descriptor").WithDetail(d.String())
	}
	return b, nil
}

// Registry maps serialized class names to classes.
type Registry struct {
	classes map[string]*Class
}

// NewRegistry indexes classes by name; a later class with the same name
// replaces an earlier one.
func NewRegistry(classes ...*Class) *Registry {
	r := &Registry{classes: make(map[string]*Class, len(classes))}
	for _, c := range classes {
		if c != nil {
			r.classes[c.Name] = c
		}
	}
	return r
}

// ConstClassInfo is the class record for Const, registered alongside module
// classes so that constants round-trip.
var ConstClassInfo = &Class{
	Name: ConstClass,
	Doc:  "constant value",
	New: func(args ArgMap) (Descriptor, error) {
		if err := args.Only("value"); err != nil {
			return nil, err
		}
		v, ok := args.values["value"]
		if !ok {
			return nil, pkgerrors.New(pkgerrors.ErrCodeInvalidDescriptorArgs, "ConstDescriptor requires value")
		}
		return NewConst(v)
	},
}

// NewRegistryFromModule indexes every class reachable from m plus Const.
func NewRegistryFromModule(m *Module) (*Registry, error) {
	if _, err := DescriptorsFromModule(m, true); err != nil {
		return nil, err
	}
	classes := append(ClassesFromModule(m, true), ConstClassInfo)
	return NewRegistry(classes...), nil
}

// Lookup returns the class registered under name.
func (r *Registry) Lookup(name string) (*Class, bool) {
	c, ok := r.classes[name]
	return c, ok
}

// Names returns the registered class names, sorted.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.classes))
	for n := range r.classes {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func invalidJSON(obj any) error {
	return pkgerrors.New(pkgerrors.ErrCodeInvalidDescriptorJSON, "invalid json").WithDetail(fmt.Sprintf("%v", obj))
}

// FromJSON rebuilds a descriptor from its {name, args} form. A missing name
// fails with "invalid json", an unregistered one with "unknown class".
func (r *Registry) FromJSON(obj map[string]any) (Descriptor, error) {
	if obj == nil {
		return nil, invalidJSON(obj)
	}
	name, ok := obj["name"].(string)
	if !ok || name == "" {
		return nil, invalidJSON(obj)
	}
	var args map[string]any
	switch a := obj["args"].(type) {
	case nil:
	case map[string]any:
		args = normalizeNumbers(a).(map[string]any)
	default:
		return nil, invalidJSON(obj)
	}
	am := ArgMap{values: args, reg: r, class: name}

	switch name {
	case UnaryClass:
		label, op, err := am.operatorHeader()
		if err != nil {
			return nil, err
		}
		value, err := am.Descriptor("value")
		if err != nil {
			return nil, err
		}
		return Unary(label, op, value)

	case BinaryClass:
		label, op, err := am.operatorHeader()
		if err != nil {
			return nil, err
		}
		left, err := am.Descriptor("left")
		if err != nil {
			return nil, err
		}
		right, err := am.Descriptor("right")
		if err != nil {
			return nil, err
		}
		return Binary(label, op, left, right)
	}

	cls, ok := r.classes[name]
	if !ok || cls.New == nil {
		return nil, pkgerrors.New(pkgerrors.ErrCodeUnknownDescriptor, "unknown class").WithDetail(name)
	}
	return cls.New(am)
}

// UnmarshalDescriptor decodes a descriptor from JSON bytes. Numbers are
// decoded exactly, so integer constants beyond 2^53 keep their value.
func (r *Registry) UnmarshalDescriptor(data []byte) (Descriptor, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrCodeInvalidDescriptorJSON, "invalid json")
	}
	if dec.More() {
		return nil, pkgerrors.New(pkgerrors.ErrCodeInvalidDescriptorJSON, "invalid json").WithDetail("trailing data")
	}
	return r.FromJSON(obj)
}

// normalizeNumbers replaces json.Number values, as produced by a decoder with
// UseNumber, with int64, uint64 or float64 in that order of preference.
func normalizeNumbers(v any) any {
	switch x := v.(type) {
	case json.Number:
		s := x.String()
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i
		}
		if u, err := strconv.ParseUint(s, 10, 64); err == nil {
			return u
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
		return x
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = normalizeNumbers(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = normalizeNumbers(e)
		}
		return out
	default:
		return v
	}
}

// CalculatorFromJSON decodes a list of descriptors and registers them on a
// new Calculator.
func (r *Registry) CalculatorFromJSON(objs []map[string]any, opts ...Option) (*Calculator, error) {
	descs := make([]Descriptor, 0, len(objs))
	for _, o := range objs {
		d, err := r.FromJSON(o)
		if err != nil {
			return nil, err
		}
		descs = append(descs, d)
	}
	items := make([]any, 0, len(opts)+1)
	items = append(items, descs)
	for _, o := range opts {
		items = append(items, o)
	}
	return NewCalculator(items...)
}

// ArgMap gives typed access to decoded constructor arguments.
type ArgMap struct {
	values map[string]any
	reg    *Registry
	class  string
}

// NewArgMap wraps plain values, e.g. for calling a Class constructor
// directly. Descriptor-valued arguments cannot be decoded without a registry.
func NewArgMap(class string, values map[string]any) ArgMap {
	return ArgMap{values: values, class: class}
}

func (a ArgMap) argError(name, format string, args ...interface{}) error {
	return pkgerrors.Newf(pkgerrors.ErrCodeInvalidDescriptorArgs, format, args...).
		WithDetail(a.class + "." + name)
}

// Has reports whether name was supplied.
func (a ArgMap) Has(name string) bool {
	_, ok := a.values[name]
	return ok
}

// Only fails when an argument outside allowed was supplied.
func (a ArgMap) Only(allowed ...string) error {
	var unknown []string
	for k := range a.values {
		found := false
		for _, n := range allowed {
			if k == n {
				found = true
				break
			}
		}
		if !found {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return pkgerrors.Newf(pkgerrors.ErrCodeInvalidDescriptorArgs, "unexpected arguments: %s", strings.Join(unknown, ", ")).
			WithDetail(a.class)
	}
	return nil
}

// String returns the string argument name, or def when absent.
func (a ArgMap) String(name, def string) (string, error) {
	v, ok := a.values[name]
	if !ok || v == nil {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", a.argError(name, "argument %s must be a string, got %T", name, v)
	}
	return s, nil
}

// operatorHeader reads the column name and operator that every serialized
// operator descriptor carries.
func (a ArgMap) operatorHeader() (string, string, error) {
	name, ok := a.values["name"].(string)
	if !ok {
		return "", "", invalidJSON(a.values)
	}
	op, ok := a.values["operator"].(string)
	if !ok || op == "" {
		return "", "", invalidJSON(a.values)
	}
	return name, op, nil
}

// Bool returns the boolean argument name, or def when absent.
func (a ArgMap) Bool(name string, def bool) (bool, error) {
	v, ok := a.values[name]
	if !ok || v == nil {
		return def, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, a.argError(name, "argument %s must be a bool, got %T", name, v)
	}
	return b, nil
}

// Int returns the integer argument name, or def when absent. Integral
// float64 values, as produced by encoding/json, are accepted.
func (a ArgMap) Int(name string, def int) (int, error) {
	v, ok := a.values[name]
	if !ok || v == nil {
		return def, nil
	}
	switch x := v.(type) {
	case int:
		return x, nil
	case int64:
		return int(x), nil
	case uint64:
		if x > math.MaxInt64 {
			return 0, a.argError(name, "argument %s is out of range", name)
		}
		return int(x), nil
	case float64:
		if x != math.Trunc(x) {
			return 0, a.argError(name, "argument %s must be an integer, got %g", name, x)
		}
		return int(x), nil
	default:
		return 0, a.argError(name, "argument %s must be an integer, got %T", name, v)
	}
}

// Float returns the numeric argument name, or def when absent.
func (a ArgMap) Float(name string, def float64) (float64, error) {
	v, ok := a.values[name]
	if !ok || v == nil {
		return def, nil
	}
	f, err := ToFloat(v)
	if err != nil {
		return 0, a.argError(name, "argument %s must be a number, got %T", name, v)
	}
	return f, nil
}

// Descriptor decodes the nested descriptor argument name.
func (a ArgMap) Descriptor(name string) (Descriptor, error) {
	v, ok := a.values[name]
	if !ok {
		return nil, invalidJSON(a.values)
	}
	switch x := v.(type) {
	case Descriptor:
		return x, nil
	case map[string]any:
		if a.reg == nil {
			return nil, a.argError(name, "argument %s cannot be decoded without a registry", name)
		}
		return a.reg.FromJSON(x)
	default:
		return nil, invalidJSON(a.values)
	}
}
