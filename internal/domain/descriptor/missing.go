package descriptor

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	pkgerrors "github.com/turtacn/moldesc/pkg/errors"
)

// Kind classifies a failed slot.
type Kind int

const (
	// KindError is an unexpected computation failure.
	KindError Kind = iota
	// KindMissingValue is an expected non-applicability, e.g. a 3D descriptor
	// on a molecule without coordinates.
	KindMissingValue
)

func (k Kind) String() string {
	switch k {
	case KindError:
		return "error"
	case KindMissingValue:
		return "missing"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Missing is the sentinel stored in a slot whose value could not be
// computed. It implements error so descriptors can also return it from
// Calculate.
type Missing struct {
	Kind Kind
	// Err is the original error raised by the failing node.
	Err error
	// Stack lists descriptor names from the failing node up to the slot.
	Stack []string

	critical bool
}

func (m *Missing) Error() string {
	return fmt.Sprintf("%v (%s)", m.Err, strings.Join(m.Stack, "/"))
}

func (m *Missing) Unwrap() error { return m.Err }

// Equal reports whether two sentinels describe the same failure: same kind,
// same error message and same stack.
func (m *Missing) Equal(other *Missing) bool {
	if m == nil || other == nil {
		return m == other
	}
	if m.Kind != other.Kind || len(m.Stack) != len(other.Stack) {
		return false
	}
	if errMessage(m.Err) != errMessage(other.Err) {
		return false
	}
	for i := range m.Stack {
		if m.Stack[i] != other.Stack[i] {
			return false
		}
	}
	return true
}

func errMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// extend returns a copy of m with name appended to its stack.
func (m *Missing) extend(name string) *Missing {
	stack := make([]string, len(m.Stack), len(m.Stack)+1)
	copy(stack, m.Stack)
	if len(stack) == 0 || stack[len(stack)-1] != name {
		stack = append(stack, name)
	}
	return &Missing{Kind: m.Kind, Err: m.Err, Stack: stack, critical: m.critical}
}

// IsMissing reports whether v is a failure sentinel.
func IsMissing(v Value) bool {
	m, ok := v.(*Missing)
	return ok && m != nil
}

// AsMissing returns v as a sentinel when it is one.
func AsMissing(v Value) (*Missing, bool) {
	m, ok := v.(*Missing)
	if !ok || m == nil {
		return nil, false
	}
	return m, true
}

// MissingValueError builds the error a descriptor returns to signal that it
// does not apply to the current molecule.
func MissingValueError(format string, args ...interface{}) error {
	return pkgerrors.Newf(pkgerrors.ErrCodeMissingValue, format, args...)
}

// ErrCritical marks an error that aborts the whole molecule.
var ErrCritical = errors.New("critical descriptor failure")

type criticalError struct {
	err error
}

func (e *criticalError) Error() string        { return e.err.Error() }
func (e *criticalError) Unwrap() error        { return e.err }
func (e *criticalError) Is(target error) bool { return target == ErrCritical }

// Critical wraps err so that returning it from Calculate aborts the
// calculation of the current molecule: every requested slot then carries a
// KindError sentinel with this cause.
func Critical(err error) error {
	if err == nil {
		return nil
	}
	return &criticalError{err: err}
}

// IsCritical reports whether err was built by Critical.
func IsCritical(err error) bool {
	return errors.Is(err, ErrCritical)
}

// newMissing classifies err raised by the node named name.
func newMissing(name string, err error) *Missing {
	var m *Missing
	if errors.As(err, &m) && m != nil {
		return m.extend(name)
	}
	if IsCritical(err) {
		return &Missing{Kind: KindError, Err: err, Stack: []string{name}, critical: true}
	}
	kind := KindError
	if pkgerrors.IsCode(err, pkgerrors.ErrCodeMissingValue) {
		kind = KindMissingValue
	}
	return &Missing{Kind: kind, Err: err, Stack: []string{name}}
}

// ValueEqual compares two slot values. Sentinels compare with Equal. Numbers
// of any Go numeric type compare by value and NaN equals NaN; every other
// value, booleans included, must have the same type and be deeply equal.
func ValueEqual(a, b Value) bool {
	ma, aok := AsMissing(a)
	mb, bok := AsMissing(b)
	if aok || bok {
		return aok && bok && ma.Equal(mb)
	}
	fa, aNum := numeric(a)
	fb, bNum := numeric(b)
	if aNum || bNum {
		return aNum && bNum && (fa == fb || (fa != fa && fb != fb))
	}
	return reflect.DeepEqual(a, b)
}
