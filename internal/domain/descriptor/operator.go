package descriptor

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"

	pkgerrors "github.com/turtacn/moldesc/pkg/errors"
)

// Class names of the built-in composition descriptors. They match the names
// used in serialized descriptor files.
const (
	ConstClass  = "ConstDescriptor"
	UnaryClass  = "UnaryOperatingDescriptor"
	BinaryClass = "BinaryOperatingDescriptor"
)

// ---------------------------------------------------------------------------
// Const
// ---------------------------------------------------------------------------

type constDescriptor struct {
	Base
	value Value
}

// NewConst returns a descriptor without dependencies that yields value.
// value must be representable in JSON: nil, a bool, a string, a finite
// number, or slices and string-keyed maps of those.
func NewConst(value Value) (Descriptor, error) {
	if err := checkJSONValue(value); err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrCodeInvalidDescriptorArgs, "invalid constant").
			WithDetail(fmt.Sprintf("%T", value))
	}
	return &constDescriptor{
		Base:  NewBase(ConstClass, Canonical(value), Arg{Name: "value", Value: value}),
		value: value,
	}, nil
}

// Const is like NewConst but panics when value is not representable in JSON.
func Const(value Value) Descriptor {
	d, err := NewConst(value)
	if err != nil {
		panic(err)
	}
	return d
}

func checkJSONValue(v any) error {
	switch x := v.(type) {
	case nil, bool, string:
		return nil
	case json.Number:
		if _, err := strconv.ParseFloat(x.String(), 64); err != nil {
			return fmt.Errorf("invalid number literal %q", x.String())
		}
		return nil
	case Descriptor:
		return fmt.Errorf("descriptor %s is not a constant", x)
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return nil
	case reflect.Float32, reflect.Float64:
		if f := rv.Float(); math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("non-finite number %v", f)
		}
		return nil
	case reflect.Slice, reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return fmt.Errorf("byte sequences are not supported")
		}
		for i := 0; i < rv.Len(); i++ {
			if err := checkJSONValue(rv.Index(i).Interface()); err != nil {
				return err
			}
		}
		return nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return fmt.Errorf("map keys must be strings, got %s", rv.Type().Key())
		}
		iter := rv.MapRange()
		for iter.Next() {
			if err := checkJSONValue(iter.Value().Interface()); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("type %T is not representable in JSON", v)
	}
}

func (d *constDescriptor) Dependencies() []Descriptor { return nil }

func (d *constDescriptor) Calculate(_ *Context, _ []Value) (Value, error) {
	return d.value, nil
}

// ---------------------------------------------------------------------------
// Unary
// ---------------------------------------------------------------------------

var unaryOps = map[string]func(float64) (float64, error){
	"-":     func(x float64) (float64, error) { return -x, nil },
	"+":     func(x float64) (float64, error) { return x, nil },
	"abs":   func(x float64) (float64, error) { return math.Abs(x), nil },
	"ceil":  func(x float64) (float64, error) { return math.Ceil(x), nil },
	"floor": func(x float64) (float64, error) { return math.Floor(x), nil },
	"trunc": func(x float64) (float64, error) { return math.Trunc(x), nil },
	"sqrt": func(x float64) (float64, error) {
		if x < 0 {
			return 0, fmt.Errorf("math domain error: sqrt(%g)", x)
		}
		return math.Sqrt(x), nil
	},
	"log": func(x float64) (float64, error) {
		if x <= 0 {
			return 0, fmt.Errorf("math domain error: log(%g)", x)
		}
		return math.Log(x), nil
	},
	"exp": func(x float64) (float64, error) { return math.Exp(x), nil },
}

type unaryDescriptor struct {
	Base
	operator string
	value    Descriptor
	fn       func(float64) (float64, error)
}

// Unary applies operator to the value of a child descriptor. name is the
// column name of the result.
func Unary(name, operator string, value Descriptor) (Descriptor, error) {
	fn, ok := unaryOps[operator]
	if !ok {
		return nil, pkgerrors.Newf(pkgerrors.ErrCodeInvalidDescriptorArgs, "unknown unary operator %q", operator)
	}
	if value == nil {
		return nil, pkgerrors.New(pkgerrors.ErrCodeInvalidDescriptorArgs, "unary operand is nil")
	}
	d := &unaryDescriptor{operator: operator, value: value, fn: fn}
	d.Base = Base{
		key:  KeyOf(UnaryClass, Arg{"operator", operator}, Arg{"value", value}),
		name: name,
		args: []Arg{{"name", name}, {"operator", operator}, {"value", value}},
	}
	return d, nil
}

func (d *unaryDescriptor) Dependencies() []Descriptor { return []Descriptor{d.value} }

func (d *unaryDescriptor) Calculate(_ *Context, deps []Value) (Value, error) {
	if m := FirstMissing(deps); m != nil {
		return m, nil
	}
	x, err := ToFloat(deps[0])
	if err != nil {
		return nil, err
	}
	return d.fn(x)
}

// ---------------------------------------------------------------------------
// Binary
// ---------------------------------------------------------------------------

var binaryOps = map[string]func(a, b float64) (float64, error){
	"+": func(a, b float64) (float64, error) { return a + b, nil },
	"-": func(a, b float64) (float64, error) { return a - b, nil },
	"*": func(a, b float64) (float64, error) { return a * b, nil },
	"/": func(a, b float64) (float64, error) {
		if b == 0 {
			return 0, fmt.Errorf("division by zero")
		}
		return a / b, nil
	},
	"//": func(a, b float64) (float64, error) {
		if b == 0 {
			return 0, fmt.Errorf("integer division or modulo by zero")
		}
		return math.Floor(a / b), nil
	},
	// Result takes the sign of the divisor.
	"%": func(a, b float64) (float64, error) {
		if b == 0 {
			return 0, fmt.Errorf("integer division or modulo by zero")
		}
		return a - b*math.Floor(a/b), nil
	},
	"**": func(a, b float64) (float64, error) {
		if a == 0 && b < 0 {
			return 0, fmt.Errorf("zero cannot be raised to a negative power")
		}
		r := math.Pow(a, b)
		if math.IsNaN(r) {
			return 0, fmt.Errorf("math domain error: %g ** %g", a, b)
		}
		return r, nil
	},
}

type binaryDescriptor struct {
	Base
	operator    string
	left, right Descriptor
	fn          func(a, b float64) (float64, error)
}

// Binary combines the values of two child descriptors with operator.
func Binary(name, operator string, left, right Descriptor) (Descriptor, error) {
	fn, ok := binaryOps[operator]
	if !ok {
		return nil, pkgerrors.Newf(pkgerrors.ErrCodeInvalidDescriptorArgs, "unknown binary operator %q", operator)
	}
	if left == nil || right == nil {
		return nil, pkgerrors.New(pkgerrors.ErrCodeInvalidDescriptorArgs, "binary operand is nil")
	}
	d := &binaryDescriptor{operator: operator, left: left, right: right, fn: fn}
	d.Base = Base{
		key:  KeyOf(BinaryClass, Arg{"operator", operator}, Arg{"left", left}, Arg{"right", right}),
		name: name,
		args: []Arg{{"name", name}, {"operator", operator}, {"left", left}, {"right", right}},
	}
	return d, nil
}

func (d *binaryDescriptor) Dependencies() []Descriptor { return []Descriptor{d.left, d.right} }

func (d *binaryDescriptor) Calculate(_ *Context, deps []Value) (Value, error) {
	if m := FirstMissing(deps); m != nil {
		return m, nil
	}
	a, err := ToFloat(deps[0])
	if err != nil {
		return nil, err
	}
	b, err := ToFloat(deps[1])
	if err != nil {
		return nil, err
	}
	return d.fn(a, b)
}

// ---------------------------------------------------------------------------
// Composition helpers
// ---------------------------------------------------------------------------

// operand converts a Descriptor or a number into a Descriptor. It panics on
// anything else, like template.Must, since it only guards programmer errors.
func operand(v any) Descriptor {
	switch x := v.(type) {
	case Descriptor:
		return x
	case int, int32, int64, float32, float64:
		return Const(x)
	default:
		panic(fmt.Sprintf("descriptor: unsupported operand type %T", v))
	}
}

func mustUnary(name, op string, v Descriptor) Descriptor {
	d, err := Unary(name, op, v)
	if err != nil {
		panic(err)
	}
	return d
}

func mustBinary(op string, a, b any) Descriptor {
	l, r := operand(a), operand(b)
	d, err := Binary("("+l.String()+op+r.String()+")", op, l, r)
	if err != nil {
		panic(err)
	}
	return d
}

// Neg returns -d.
func Neg(d Descriptor) Descriptor { return mustUnary("-"+d.String(), "-", d) }

// Pos returns +d.
func Pos(d Descriptor) Descriptor { return mustUnary("+"+d.String(), "+", d) }

// Abs returns |d|.
func Abs(d Descriptor) Descriptor { return mustUnary("|"+d.String()+"|", "abs", d) }

// Ceil, Floor, Trunc, Sqrt, Log and Exp apply the math function of the same
// name.
func Ceil(d Descriptor) Descriptor  { return mustUnary("ceil("+d.String()+")", "ceil", d) }
func Floor(d Descriptor) Descriptor { return mustUnary("floor("+d.String()+")", "floor", d) }
func Trunc(d Descriptor) Descriptor { return mustUnary("trunc("+d.String()+")", "trunc", d) }
func Sqrt(d Descriptor) Descriptor  { return mustUnary("sqrt("+d.String()+")", "sqrt", d) }
func Log(d Descriptor) Descriptor   { return mustUnary("log("+d.String()+")", "log", d) }
func Exp(d Descriptor) Descriptor   { return mustUnary("exp("+d.String()+")", "exp", d) }

// Add, Sub, Mul, Div, FloorDiv, Mod and Pow combine two operands, each a
// Descriptor or a number, and name the result like "(nAtom+nBonds)".
func Add(a, b any) Descriptor      { return mustBinary("+", a, b) }
func Sub(a, b any) Descriptor      { return mustBinary("-", a, b) }
func Mul(a, b any) Descriptor      { return mustBinary("*", a, b) }
func Div(a, b any) Descriptor      { return mustBinary("/", a, b) }
func FloorDiv(a, b any) Descriptor { return mustBinary("//", a, b) }
func Mod(a, b any) Descriptor      { return mustBinary("%", a, b) }
func Pow(a, b any) Descriptor      { return mustBinary("**", a, b) }
