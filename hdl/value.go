package hdl

import (
	"fmt"
	"log"
	"strings"
)

// A Value is a node of a combinational expression tree. The simulator lowers
// values into executable closures; this package only describes them.
//
// The variants are: *Const, *Signal, *Operator, *Slice, *Part, *Cat, *Repl
// and *ArrayProxy.
type Value interface {
	fmt.Stringer

	// Shape returns the width and signedness of the value.
	Shape() Shape
}

// A Const is a constant value of a fixed shape.
type Const struct {
	Value int64
	shape Shape
}

// C creates an unsigned constant of the given width.
func C(value int64, width int) *Const {
	shape := Unsigned(width)
	return &Const{Value: Normalize(value, shape), shape: shape}
}

// CSigned creates a signed constant of the given width.
func CSigned(value int64, width int) *Const {
	shape := Signed(width)
	return &Const{Value: Normalize(value, shape), shape: shape}
}

// Shape returns the declared shape of the constant.
func (c *Const) Shape() Shape {
	return c.shape
}

func (c *Const) String() string {
	return fmt.Sprintf("(const %d'%d)", c.shape.Width, c.Value)
}

// Operator applies a unary, binary or ternary operator to its operands.
//
// The operator vocabulary follows the circuit representation:
//
//	unary:   -  ~  b  r|  r&  r^  u  s
//	binary:  +  -  *  //  %  &  |  ^  <<  >>  ==  !=  <  <=  >  >=
//	ternary: m (multiplex: sel, on-true, on-false)
type Operator struct {
	Op       string
	Operands []Value
}

// Shape returns the result shape of the operator, following the usual
// width-inference rules of the circuit representation.
func (o *Operator) Shape() Shape {
	switch len(o.Operands) {
	case 1:
		a := o.Operands[0].Shape()
		switch o.Op {
		case "-":
			return shapeCap(a.Width+1, true)
		case "~":
			return a
		case "b", "r|", "r&", "r^":
			return Unsigned(1)
		case "u":
			return Unsigned(a.Width)
		case "s":
			return Signed(a.Width)
		}
	case 2:
		a, b := o.Operands[0].Shape(), o.Operands[1].Shape()
		signed := a.Signed || b.Signed
		switch o.Op {
		case "+", "-":
			return shapeCap(max(a.Width, b.Width)+1, signed || o.Op == "-")
		case "*":
			return shapeCap(a.Width+b.Width, signed)
		case "//":
			return shapeCap(a.Width, signed)
		case "%":
			return shapeCap(b.Width, signed)
		case "&", "|", "^":
			return shapeCap(max(a.Width, b.Width), signed)
		case "<<":
			return shapeCap(a.Width+(1<<uint(min(b.Width, 6)))-1, a.Signed)
		case ">>":
			return shapeCap(a.Width, a.Signed)
		case "==", "!=", "<", "<=", ">", ">=":
			return Unsigned(1)
		}
	case 3:
		if o.Op == "m" {
			t, f := o.Operands[1].Shape(), o.Operands[2].Shape()
			return shapeCap(max(t.Width, f.Width), t.Signed || f.Signed)
		}
	}
	log.Panicf("hdl: unknown operator %q with %d operands",
		o.Op, len(o.Operands))
	return Shape{}
}

// shapeCap builds a shape, saturating inferred widths at MaxWidth. Inference
// for addition, multiplication and shifting can exceed the representable
// width; the engine computes modulo 2^64 in that case.
func shapeCap(width int, signed bool) Shape {
	if width > MaxWidth {
		width = MaxWidth
	}
	return Shape{Width: width, Signed: signed}
}

func (o *Operator) String() string {
	parts := make([]string, 0, len(o.Operands))
	for _, v := range o.Operands {
		parts = append(parts, v.String())
	}
	return fmt.Sprintf("(%s %s)", o.Op, strings.Join(parts, " "))
}

// A Slice extracts the bit range [Start, Stop) of a value.
type Slice struct {
	Val   Value
	Start int
	Stop  int
}

// NewSlice builds a bit slice, validating the range against the value width.
func NewSlice(val Value, start, stop int) *Slice {
	if start < 0 || stop > val.Shape().Width || start >= stop {
		log.Panicf("hdl: invalid slice [%d:%d) of %s", start, stop, val)
	}
	return &Slice{Val: val, Start: start, Stop: stop}
}

// Shape of a slice is unsigned with the width of the extracted range.
func (s *Slice) Shape() Shape {
	return Unsigned(s.Stop - s.Start)
}

func (s *Slice) String() string {
	return fmt.Sprintf("(slice %s %d:%d)", s.Val, s.Start, s.Stop)
}

// A Part is an indexed part-select: a field of Width bits located at a
// dynamic offset Offset*Stride within Val.
type Part struct {
	Val    Value
	Offset Value
	Width  int
	Stride int
}

// Shape of a part-select is unsigned with the static field width.
func (p *Part) Shape() Shape {
	return Unsigned(p.Width)
}

func (p *Part) String() string {
	return fmt.Sprintf("(part %s %s %d %d)", p.Val, p.Offset, p.Width, p.Stride)
}

// A Cat concatenates parts, first part at bit offset 0.
type Cat struct {
	Parts []Value
}

// Shape of a concatenation is unsigned with the summed width of the parts.
func (c *Cat) Shape() Shape {
	width := 0
	for _, p := range c.Parts {
		width += p.Shape().Width
	}
	return shapeCap(width, false)
}

func (c *Cat) String() string {
	parts := make([]string, 0, len(c.Parts))
	for _, v := range c.Parts {
		parts = append(parts, v.String())
	}
	return fmt.Sprintf("(cat %s)", strings.Join(parts, " "))
}

// A Repl replicates a value Count times.
type Repl struct {
	Val   Value
	Count int
}

// Shape of a replication is unsigned with Count copies of the value width.
func (r *Repl) Shape() Shape {
	return shapeCap(r.Val.Shape().Width*r.Count, false)
}

func (r *Repl) String() string {
	return fmt.Sprintf("(repl %s %d)", r.Val, r.Count)
}

// An ArrayProxy selects one element of a static list by a dynamic index.
// An out-of-range index selects the last element.
type ArrayProxy struct {
	Elems []Value
	Index Value
}

// Shape of an array selection covers every element: the widest width, signed
// if any element is signed.
func (a *ArrayProxy) Shape() Shape {
	width, signed := 1, false
	for _, e := range a.Elems {
		es := e.Shape()
		if es.Width > width {
			width = es.Width
		}
		signed = signed || es.Signed
	}
	return Shape{Width: width, Signed: signed}
}

func (a *ArrayProxy) String() string {
	elems := make([]string, 0, len(a.Elems))
	for _, e := range a.Elems {
		elems = append(elems, e.String())
	}
	return fmt.Sprintf("(proxy (%s) %s)", strings.Join(elems, " "), a.Index)
}

func unary(op string, a Value) *Operator {
	return &Operator{Op: op, Operands: []Value{a}}
}

func binary(op string, a, b Value) *Operator {
	return &Operator{Op: op, Operands: []Value{a, b}}
}

// Neg negates a value arithmetically.
func Neg(a Value) *Operator { return unary("-", a) }

// Inv inverts every bit of a value.
func Inv(a Value) *Operator { return unary("~", a) }

// Bool reduces a value to 1 if any bit is set, 0 otherwise.
func Bool(a Value) *Operator { return unary("b", a) }

// ReduceOr is the OR reduction of all bits.
func ReduceOr(a Value) *Operator { return unary("r|", a) }

// ReduceAnd is the AND reduction of all bits.
func ReduceAnd(a Value) *Operator { return unary("r&", a) }

// ReduceXor is the XOR reduction (parity) of all bits.
func ReduceXor(a Value) *Operator { return unary("r^", a) }

// AsUnsigned reinterprets the bit pattern as unsigned.
func AsUnsigned(a Value) *Operator { return unary("u", a) }

// AsSigned reinterprets the bit pattern as signed.
func AsSigned(a Value) *Operator { return unary("s", a) }

// Add adds two values.
func Add(a, b Value) *Operator { return binary("+", a, b) }

// Sub subtracts b from a.
func Sub(a, b Value) *Operator { return binary("-", a, b) }

// Mul multiplies two values.
func Mul(a, b Value) *Operator { return binary("*", a, b) }

// Div divides a by b, flooring; division by zero yields 0.
func Div(a, b Value) *Operator { return binary("//", a, b) }

// Mod is the flooring remainder of a by b; a zero divisor yields 0.
func Mod(a, b Value) *Operator { return binary("%", a, b) }

// And is the bitwise AND of two values.
func And(a, b Value) *Operator { return binary("&", a, b) }

// Or is the bitwise OR of two values.
func Or(a, b Value) *Operator { return binary("|", a, b) }

// Xor is the bitwise XOR of two values.
func Xor(a, b Value) *Operator { return binary("^", a, b) }

// Shl shifts a left by b bits.
func Shl(a, b Value) *Operator { return binary("<<", a, b) }

// Shr shifts a right by b bits.
func Shr(a, b Value) *Operator { return binary(">>", a, b) }

// Eq compares two values for equality.
func Eq(a, b Value) *Operator { return binary("==", a, b) }

// Ne compares two values for inequality.
func Ne(a, b Value) *Operator { return binary("!=", a, b) }

// Lt compares a < b.
func Lt(a, b Value) *Operator { return binary("<", a, b) }

// Le compares a <= b.
func Le(a, b Value) *Operator { return binary("<=", a, b) }

// Gt compares a > b.
func Gt(a, b Value) *Operator { return binary(">", a, b) }

// Ge compares a >= b.
func Ge(a, b Value) *Operator { return binary(">=", a, b) }

// Mux selects t when sel is non-zero, f otherwise.
func Mux(sel, t, f Value) *Operator {
	return &Operator{Op: "m", Operands: []Value{sel, t, f}}
}

// Bit extracts a single bit of a value.
func Bit(val Value, index int) *Slice {
	return NewSlice(val, index, index+1)
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
