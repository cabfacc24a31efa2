package hdl

import (
	"fmt"
	"log"
)

// MaxWidth is the widest signal the engine can compute on. Values are held
// in 64-bit integers, so wider shapes are rejected at construction.
const MaxWidth = 64

// A Shape describes the bit width and the sign interpretation of a value.
type Shape struct {
	Width  int
	Signed bool
}

// Unsigned returns an unsigned shape of the given width.
func Unsigned(width int) Shape {
	return shapeOf(width, false)
}

// Signed returns a signed shape of the given width.
func Signed(width int) Shape {
	return shapeOf(width, true)
}

func shapeOf(width int, signed bool) Shape {
	if width < 1 || width > MaxWidth {
		log.Panicf("hdl: shape width must be between 1 and %d, got %d",
			MaxWidth, width)
	}
	return Shape{Width: width, Signed: signed}
}

func (s Shape) String() string {
	if s.Signed {
		return fmt.Sprintf("signed(%d)", s.Width)
	}
	return fmt.Sprintf("unsigned(%d)", s.Width)
}

// Mask returns the bit mask covering every position of the shape.
func (s Shape) Mask() int64 {
	return int64(^uint64(0) >> (64 - uint(s.Width)))
}

// SignBit returns the value of the sign position as a negative number, or 0
// for unsigned shapes. It matches the two's complement weight of the top bit.
func (s Shape) SignBit() int64 {
	if !s.Signed {
		return 0
	}
	return -1 << (uint(s.Width) - 1)
}

// Normalize truncates value to the shape's width and reinterprets the result
// according to the shape's signedness. Unsigned results are non-negative;
// signed results are sign-extended.
func Normalize(value int64, shape Shape) int64 {
	value &= shape.Mask()
	if shape.Signed && value&shape.SignBit() != 0 {
		value |= shape.SignBit()
	}
	return value
}
