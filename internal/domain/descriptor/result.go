package descriptor

import (
	"bytes"
	"encoding/json"
	"math"

	"github.com/turtacn/moldesc/internal/domain/molecule"
)

// Result holds the slots computed for one molecule, in the order of the
// Calculator's requested descriptors.
type Result struct {
	mol         molecule.Molecule
	descriptors []Descriptor
	values      []Value
}

// NewResult assembles a Result; values must align with descriptors.
func NewResult(mol molecule.Molecule, descriptors []Descriptor, values []Value) Result {
	return Result{mol: mol, descriptors: descriptors, values: values}
}

func (r Result) Mol() molecule.Molecule { return r.mol }
func (r Result) Len() int               { return len(r.values) }

// At returns the i-th slot.
func (r Result) At(i int) Value { return r.values[i] }

// Values returns a copy of the slots.
func (r Result) Values() []Value {
	return append([]Value(nil), r.values...)
}

// Descriptors returns the descriptors aligned with Values.
func (r Result) Descriptors() []Descriptor {
	return append([]Descriptor(nil), r.descriptors...)
}

// Names returns the column names aligned with Values.
func (r Result) Names() []string {
	out := make([]string, len(r.descriptors))
	for i, d := range r.descriptors {
		out[i] = d.String()
	}
	return out
}

// Get returns the slot of the descriptor named name.
func (r Result) Get(name string) (Value, bool) {
	for i, d := range r.descriptors {
		if d.String() == name {
			return r.values[i], true
		}
	}
	return nil, false
}

// AsMap returns name → value.
func (r Result) AsMap() map[string]Value {
	out := make(map[string]Value, len(r.values))
	for i, d := range r.descriptors {
		out[d.String()] = r.values[i]
	}
	return out
}

// Missing returns the sentinels keyed by descriptor name.
func (r Result) Missing() map[string]*Missing {
	out := map[string]*Missing{}
	for i, d := range r.descriptors {
		if m, ok := AsMissing(r.values[i]); ok {
			out[d.String()] = m
		}
	}
	return out
}

// FillMissing returns a copy with every sentinel replaced by v.
func (r Result) FillMissing(v Value) Result {
	values := make([]Value, len(r.values))
	for i, x := range r.values {
		if IsMissing(x) {
			values[i] = v
		} else {
			values[i] = x
		}
	}
	return Result{mol: r.mol, descriptors: r.descriptors, values: values}
}

// DropMissing returns a copy without the failed slots.
func (r Result) DropMissing() Result {
	descs := make([]Descriptor, 0, len(r.descriptors))
	values := make([]Value, 0, len(r.values))
	for i, x := range r.values {
		if IsMissing(x) {
			continue
		}
		descs = append(descs, r.descriptors[i])
		values = append(values, x)
	}
	return Result{mol: r.mol, descriptors: descs, values: values}
}

// Equal compares two results slot by slot with ValueEqual.
func (r Result) Equal(other Result) bool {
	if len(r.values) != len(other.values) {
		return false
	}
	for i := range r.values {
		if r.descriptors[i].Key() != other.descriptors[i].Key() || !ValueEqual(r.values[i], other.values[i]) {
			return false
		}
	}
	return true
}

// JSONValue converts a slot for JSON output: sentinels and non-finite
// numbers become nil.
func JSONValue(v Value) any {
	if IsMissing(v) {
		return nil
	}
	if f, ok := v.(float64); ok && (math.IsNaN(f) || math.IsInf(f, 0)) {
		return nil
	}
	return v
}

// MarshalJSON renders the result as an object keyed by descriptor name in
// slot order, with sentinels as null.
func (r Result) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, d := range r.descriptors {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(d.String())
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(JSONValue(r.values[i]))
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
