package hdl

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShapeMask(t *testing.T) {
	assert.Equal(t, int64(0b1), Unsigned(1).Mask())
	assert.Equal(t, int64(0b1111), Unsigned(4).Mask())
	assert.Equal(t, int64(-1), Unsigned(64).Mask())
}

func TestShapeSignBit(t *testing.T) {
	assert.Equal(t, int64(0), Unsigned(4).SignBit())
	assert.Equal(t, int64(-8), Signed(4).SignBit())
	assert.Equal(t, int64(-1), Signed(1).SignBit())
}

func TestShapeRejectsBadWidth(t *testing.T) {
	assert.Panics(t, func() { Unsigned(0) })
	assert.Panics(t, func() { Signed(65) })
	assert.NotPanics(t, func() { Unsigned(64) })
}

func TestNormalizeUnsignedTruncates(t *testing.T) {
	assert.Equal(t, int64(0), Normalize(16, Unsigned(4)))
	assert.Equal(t, int64(15), Normalize(-1, Unsigned(4)))
	assert.Equal(t, int64(5), Normalize(5, Unsigned(4)))
}

func TestNormalizeSignedExtends(t *testing.T) {
	assert.Equal(t, int64(-1), Normalize(15, Signed(4)))
	assert.Equal(t, int64(-8), Normalize(8, Signed(4)))
	assert.Equal(t, int64(7), Normalize(7, Signed(4)))
	assert.Equal(t, int64(-1), Normalize(-1, Signed(64)))
}

func TestSignalReset(t *testing.T) {
	s := NewSignal("a", 4).WithReset(-1)
	assert.Equal(t, int64(15), s.Reset)

	r := NewSignalSigned("b", 4).WithReset(15)
	assert.Equal(t, int64(-1), r.Reset)
}
