package hdl

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOperatorShapeInference(t *testing.T) {
	u4 := NewSignal("u4", 4)
	u6 := NewSignal("u6", 6)
	s4 := NewSignalSigned("s4", 4)

	assert.Equal(t, Unsigned(7), Add(u4, u6).Shape())
	assert.Equal(t, Signed(7), Sub(u4, u6).Shape())
	assert.Equal(t, Signed(5), Add(u4, s4).Shape())
	assert.Equal(t, Unsigned(10), Mul(u4, u6).Shape())
	assert.Equal(t, Unsigned(4), Div(u4, u6).Shape())
	assert.Equal(t, Unsigned(6), Mod(u4, u6).Shape())
	assert.Equal(t, Unsigned(6), And(u4, u6).Shape())
	assert.Equal(t, Unsigned(1), Eq(u4, u6).Shape())
	assert.Equal(t, Unsigned(1), ReduceXor(u6).Shape())
	assert.Equal(t, Signed(5), Neg(u4).Shape())
	assert.Equal(t, Signed(4), AsSigned(u4).Shape())
	assert.Equal(t, Unsigned(4), AsUnsigned(s4).Shape())
}

func TestShiftShapeSaturates(t *testing.T) {
	u60 := NewSignal("u60", 60)
	amount := NewSignal("amount", 6)

	assert.Equal(t, Unsigned(64), Shl(u60, amount).Shape())
}

func TestCompositeShapes(t *testing.T) {
	a := NewSignal("a", 4)
	b := NewSignal("b", 3)

	assert.Equal(t, Unsigned(2), NewSlice(a, 1, 3).Shape())
	assert.Equal(t, Unsigned(1), Bit(a, 0).Shape())
	assert.Equal(t, Unsigned(7), (&Cat{Parts: []Value{a, b}}).Shape())
	assert.Equal(t, Unsigned(12), (&Repl{Val: a, Count: 3}).Shape())
	assert.Equal(t, Unsigned(4),
		(&ArrayProxy{Elems: []Value{a, b}, Index: b}).Shape())
}

func TestSliceRejectsBadRange(t *testing.T) {
	a := NewSignal("a", 4)

	assert.Panics(t, func() { NewSlice(a, 3, 3) })
	assert.Panics(t, func() { NewSlice(a, -1, 2) })
	assert.Panics(t, func() { NewSlice(a, 0, 5) })
}

func TestDrivenSignals(t *testing.T) {
	a := NewSignal("a", 4)
	b := NewSignal("b", 4)
	c := NewSignal("c", 1)

	stmt := &Switch{
		Test: c,
		Cases: []SwitchCase{
			{Patterns: []string{"1"}, Body: []Statement{a.Eq(b)}},
			{Body: []Statement{
				&Assign{
					LHS: &Cat{Parts: []Value{NewSlice(a, 0, 2), b}},
					RHS: C(0, 6),
				},
			}},
		},
	}

	set := NewSignalSet()
	stmt.DrivenSignals(set)
	assert.True(t, set.Contains(a))
	assert.True(t, set.Contains(b))
	assert.False(t, set.Contains(c))
}

func TestSignalSetKeepsInsertionOrder(t *testing.T) {
	a := NewSignal("a", 1)
	b := NewSignal("b", 1)

	set := NewSignalSet()
	set.Add(b)
	set.Add(a)
	set.Add(b)

	assert.Equal(t, []*Signal{b, a}, set.Signals())
	assert.Equal(t, 2, set.Len())
}
