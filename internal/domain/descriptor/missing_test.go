package descriptor

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	pkgerrors "github.com/turtacn/moldesc/pkg/errors"
)

func TestMissing_Equal(t *testing.T) {
	a := &Missing{Kind: KindError, Err: errors.New("x"), Stack: []string{"A", "B"}}
	b := &Missing{Kind: KindError, Err: errors.New("x"), Stack: []string{"A", "B"}}
	assert.True(t, a.Equal(b))

	assert.False(t, a.Equal(&Missing{Kind: KindMissingValue, Err: errors.New("x"), Stack: []string{"A", "B"}}))
	assert.False(t, a.Equal(&Missing{Kind: KindError, Err: errors.New("y"), Stack: []string{"A", "B"}}))
	assert.False(t, a.Equal(&Missing{Kind: KindError, Err: errors.New("x"), Stack: []string{"A"}}))
	assert.False(t, a.Equal(nil))
	assert.True(t, (*Missing)(nil).Equal(nil))
}

func TestMissing_ErrorAndUnwrap(t *testing.T) {
	cause := errors.New("cause")
	m := &Missing{Kind: KindError, Err: cause, Stack: []string{"A", "B"}}
	assert.Equal(t, "cause (A/B)", m.Error())
	assert.ErrorIs(t, m, cause)
	assert.Equal(t, "error", KindError.String())
	assert.Equal(t, "missing", KindMissingValue.String())
}

func TestIsMissing(t *testing.T) {
	assert.True(t, IsMissing(&Missing{}))
	assert.False(t, IsMissing((*Missing)(nil)))
	assert.False(t, IsMissing(1.0))
	assert.False(t, IsMissing(nil))
}

func TestNewMissing_Classification(t *testing.T) {
	assert.Equal(t, KindMissingValue, newMissing("a", MissingValueError("no 3D")).Kind)
	assert.Equal(t, KindMissingValue, newMissing("a", fmt.Errorf("wrapped: %w", MissingValueError("no 3D"))).Kind)
	assert.Equal(t, KindError, newMissing("a", errors.New("boom")).Kind)

	crit := newMissing("a", Critical(errors.New("fatal")))
	assert.True(t, crit.critical)
	assert.Equal(t, "fatal", crit.Err.Error())

	inner := &Missing{Kind: KindMissingValue, Err: errors.New("inner"), Stack: []string{"dep"}}
	outer := newMissing("a", inner)
	assert.Equal(t, []string{"dep", "a"}, outer.Stack)
	assert.Equal(t, []string{"dep"}, inner.Stack, "original stack untouched")
}

func TestCritical(t *testing.T) {
	assert.Nil(t, Critical(nil))
	err := Critical(pkgerrors.New(pkgerrors.ErrCodeInternal, "x"))
	assert.True(t, IsCritical(err))
	assert.ErrorIs(t, err, ErrCritical)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeInternal))
	assert.False(t, IsCritical(errors.New("plain")))
}

func TestValueEqual(t *testing.T) {
	assert.True(t, ValueEqual(1, 1.0))
	assert.True(t, ValueEqual(int64(3), uint8(3)))
	assert.False(t, ValueEqual(true, 1))
	assert.False(t, ValueEqual(1.0, true))
	assert.False(t, ValueEqual("1", 1))
	assert.True(t, ValueEqual(false, false))
	assert.True(t, ValueEqual(math.NaN(), math.NaN()))
	assert.False(t, ValueEqual(1.0, 2.0))
	assert.True(t, ValueEqual("a", "a"))
	assert.True(t, ValueEqual([]int{1}, []int{1}))
	assert.False(t, ValueEqual(&Missing{Err: errors.New("x")}, 1.0))
}

func TestCanonicalAndKeyOf(t *testing.T) {
	assert.Equal(t, `"C"`, Canonical("C"))
	assert.Equal(t, "3", Canonical(3))
	assert.Equal(t, "3", Canonical(3.0))
	assert.Equal(t, "true", Canonical(true))
	assert.Equal(t, "null", Canonical(nil))
	assert.Equal(t, `{"a":1,"b":[1,"x"]}`, Canonical(map[string]any{"b": []any{1, "x"}, "a": 1}))

	k := KeyOf("AtomCount", Arg{"type", "C"})
	assert.Equal(t, Key{Class: "AtomCount", Args: `type="C"`}, k)
	assert.Equal(t, `AtomCount(type="C")`, k.String())

	nested := KeyOf("Scaled", Arg{"dep", newAtomCounter()})
	assert.Equal(t, "dep=AtomCounter()", nested.Args)
}

func TestToFloat(t *testing.T) {
	for _, v := range []Value{1, int64(1), int32(1), float32(1), 1.0, true} {
		f, err := ToFloat(v)
		assert.NoError(t, err)
		assert.Equal(t, 1.0, f)
	}
	_, err := ToFloat("1")
	assert.Error(t, err)
}
