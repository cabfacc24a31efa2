package sim

import (
	"log"
	"math/bits"

	"github.com/pkg/errors"

	"github.com/modwizcode/amaranth/hdl"
)

// The compiler lowers circuit-logic expression and statement trees into
// trees of closures, built once per compiled process and invoked repeatedly.
//
// Values are held in int64, normalized per shape: unsigned values are
// non-negative and masked, signed values are sign-extended. Statement
// routines mutate staged "next" values held in a scratch map keyed by slot
// index; the map is seeded for every output of the routine before the body
// runs and flushed through slot.set afterwards.

// nextValues is the scratch next-value frame of one statement routine.
type nextValues map[int]int64

// evalFn computes the value of a compiled expression.
type evalFn func(nx nextValues) int64

// setFn drives a compiled assignment target with a value.
type setFn func(nx nextValues, value int64)

// stmtFn executes a compiled statement.
type stmtFn func(nx nextValues)

// accessMode selects which value of a signal an expression reads.
type accessMode int

const (
	// readCurr reads the committed value of the signal.
	readCurr accessMode = iota
	// readNext reads the staged value, used to compose partial writes.
	readNext
)

// floorDiv is flooring integer division; a zero divisor yields 0.
func floorDiv(lhs, rhs int64) int64 {
	if rhs == 0 {
		return 0
	}
	q := lhs / rhs
	if lhs%rhs != 0 && (lhs < 0) != (rhs < 0) {
		q--
	}
	return q
}

// floorMod is the flooring remainder; a zero divisor yields 0. The result
// takes the sign of the divisor.
func floorMod(lhs, rhs int64) int64 {
	if rhs == 0 {
		return 0
	}
	r := lhs % rhs
	if r != 0 && (r < 0) != (rhs < 0) {
		r += rhs
	}
	return r
}

func b2i(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// shiftAmount validates a dynamic shift count. Counts at or above 64 are
// fine: Go defines over-wide shifts as 0 or sign fill.
func shiftAmount(n int64) uint {
	if n < 0 {
		log.Panicf("sim: negative shift count %d", n)
	}
	if n > 64 {
		n = 64
	}
	return uint(n)
}

// rhsCompiler lowers expressions read for their value. With inputs set, it
// records every signal the expression reads, which the design walker uses to
// wire combinational dependency waiters.
type rhsCompiler struct {
	state  *State
	mode   accessMode
	inputs *hdl.SignalSet
}

// masked wraps fn to truncate its result to the shape's width.
func masked(fn evalFn, shape hdl.Shape) evalFn {
	mask := shape.Mask()
	return func(nx nextValues) int64 {
		return fn(nx) & mask
	}
}

// signed wraps fn to truncate and then sign-extend or zero-mask its result
// per the shape's signedness.
func signed(fn evalFn, shape hdl.Shape) evalFn {
	if !shape.Signed {
		return masked(fn, shape)
	}
	mask := shape.Mask()
	sign := shape.SignBit()
	return func(nx nextValues) int64 {
		v := fn(nx) & mask
		if v&sign != 0 {
			v |= sign
		}
		return v
	}
}

func (c *rhsCompiler) compile(value hdl.Value) (evalFn, error) {
	switch v := value.(type) {
	case *hdl.Const:
		return c.compileConst(v)
	case *hdl.Signal:
		return c.compileSignal(v)
	case *hdl.Operator:
		return c.compileOperator(v)
	case *hdl.Slice:
		return c.compileSlice(v)
	case *hdl.Part:
		return c.compilePart(v)
	case *hdl.Cat:
		return c.compileCat(v)
	case *hdl.Repl:
		return c.compileRepl(v)
	case *hdl.ArrayProxy:
		return c.compileArrayProxy(v)
	default:
		return nil, errors.Wrapf(ErrUnimplemented, "expression %T", value)
	}
}

// compileMasked compiles value truncated to its own width.
func (c *rhsCompiler) compileMasked(value hdl.Value) (evalFn, error) {
	fn, err := c.compile(value)
	if err != nil {
		return nil, err
	}
	return masked(fn, value.Shape()), nil
}

// compileSigned compiles value truncated and reinterpreted per its own
// signedness, the reading required by arithmetic and comparison operands.
func (c *rhsCompiler) compileSigned(value hdl.Value) (evalFn, error) {
	fn, err := c.compile(value)
	if err != nil {
		return nil, err
	}
	return signed(fn, value.Shape()), nil
}

func (c *rhsCompiler) compileConst(v *hdl.Const) (evalFn, error) {
	value := v.Value
	return func(nextValues) int64 { return value }, nil
}

func (c *rhsCompiler) compileSignal(v *hdl.Signal) (evalFn, error) {
	if c.inputs != nil {
		c.inputs.Add(v)
	}
	state := c.state
	index := state.getSignal(v)
	if c.mode == readCurr {
		return func(nextValues) int64 {
			return state.slots[index].curr
		}, nil
	}
	return func(nx nextValues) int64 {
		return nx[index]
	}, nil
}

func (c *rhsCompiler) compileOperator(v *hdl.Operator) (evalFn, error) {
	switch len(v.Operands) {
	case 1:
		return c.compileUnary(v)
	case 2:
		return c.compileBinary(v)
	case 3:
		if v.Op == "m" {
			sel, err := c.compile(v.Operands[0])
			if err != nil {
				return nil, err
			}
			onTrue, err := c.compile(v.Operands[1])
			if err != nil {
				return nil, err
			}
			onFalse, err := c.compile(v.Operands[2])
			if err != nil {
				return nil, err
			}
			return func(nx nextValues) int64 {
				if sel(nx) != 0 {
					return onTrue(nx)
				}
				return onFalse(nx)
			}, nil
		}
	}
	return nil, errors.Wrapf(ErrUnimplemented, "operator %q/%d", v.Op, len(v.Operands))
}

func (c *rhsCompiler) compileUnary(v *hdl.Operator) (evalFn, error) {
	arg := v.Operands[0]
	switch v.Op {
	case "~":
		fn, err := c.compile(arg)
		if err != nil {
			return nil, err
		}
		return func(nx nextValues) int64 { return ^fn(nx) }, nil
	case "-":
		fn, err := c.compile(arg)
		if err != nil {
			return nil, err
		}
		return func(nx nextValues) int64 { return -fn(nx) }, nil
	case "b", "r|":
		fn, err := c.compileMasked(arg)
		if err != nil {
			return nil, err
		}
		return func(nx nextValues) int64 { return b2i(fn(nx) != 0) }, nil
	case "r&":
		fn, err := c.compileMasked(arg)
		if err != nil {
			return nil, err
		}
		all := arg.Shape().Mask()
		return func(nx nextValues) int64 { return b2i(fn(nx) == all) }, nil
	case "r^":
		fn, err := c.compileMasked(arg)
		if err != nil {
			return nil, err
		}
		return func(nx nextValues) int64 {
			return int64(bits.OnesCount64(uint64(fn(nx))) % 2)
		}, nil
	case "u", "s":
		// Sign reinterpretation does not change the bit pattern.
		return c.compile(arg)
	}
	return nil, errors.Wrapf(ErrUnimplemented, "operator %q/1", v.Op)
}

func (c *rhsCompiler) compileBinary(v *hdl.Operator) (evalFn, error) {
	op := v.Op
	lhsRaw, rhsRaw := v.Operands[0], v.Operands[1]

	// Bitwise operators work on values as stored; everything else reads its
	// operands sign-extended or zero-masked per operand signedness.
	switch op {
	case "&", "|", "^":
		lhs, err := c.compile(lhsRaw)
		if err != nil {
			return nil, err
		}
		rhs, err := c.compile(rhsRaw)
		if err != nil {
			return nil, err
		}
		switch op {
		case "&":
			return func(nx nextValues) int64 { return lhs(nx) & rhs(nx) }, nil
		case "|":
			return func(nx nextValues) int64 { return lhs(nx) | rhs(nx) }, nil
		default:
			return func(nx nextValues) int64 { return lhs(nx) ^ rhs(nx) }, nil
		}
	}

	lhs, err := c.compileSigned(lhsRaw)
	if err != nil {
		return nil, err
	}
	rhs, err := c.compileSigned(rhsRaw)
	if err != nil {
		return nil, err
	}

	switch op {
	case "+":
		return func(nx nextValues) int64 { return lhs(nx) + rhs(nx) }, nil
	case "-":
		return func(nx nextValues) int64 { return lhs(nx) - rhs(nx) }, nil
	case "*":
		return func(nx nextValues) int64 { return lhs(nx) * rhs(nx) }, nil
	case "//":
		return func(nx nextValues) int64 { return floorDiv(lhs(nx), rhs(nx)) }, nil
	case "%":
		return func(nx nextValues) int64 { return floorMod(lhs(nx), rhs(nx)) }, nil
	case "<<":
		return func(nx nextValues) int64 { return lhs(nx) << shiftAmount(rhs(nx)) }, nil
	case ">>":
		return func(nx nextValues) int64 { return lhs(nx) >> shiftAmount(rhs(nx)) }, nil
	case "==":
		return func(nx nextValues) int64 { return b2i(lhs(nx) == rhs(nx)) }, nil
	case "!=":
		return func(nx nextValues) int64 { return b2i(lhs(nx) != rhs(nx)) }, nil
	case "<":
		return func(nx nextValues) int64 { return b2i(lhs(nx) < rhs(nx)) }, nil
	case "<=":
		return func(nx nextValues) int64 { return b2i(lhs(nx) <= rhs(nx)) }, nil
	case ">":
		return func(nx nextValues) int64 { return b2i(lhs(nx) > rhs(nx)) }, nil
	case ">=":
		return func(nx nextValues) int64 { return b2i(lhs(nx) >= rhs(nx)) }, nil
	}
	return nil, errors.Wrapf(ErrUnimplemented, "operator %q/2", op)
}

func (c *rhsCompiler) compileSlice(v *hdl.Slice) (evalFn, error) {
	inner, err := c.compile(v.Val)
	if err != nil {
		return nil, err
	}
	start := uint(v.Start)
	mask := v.Shape().Mask()
	return func(nx nextValues) int64 {
		return (inner(nx) >> start) & mask
	}, nil
}

func (c *rhsCompiler) compilePart(v *hdl.Part) (evalFn, error) {
	inner, err := c.compile(v.Val)
	if err != nil {
		return nil, err
	}
	offset, err := c.compileMasked(v.Offset)
	if err != nil {
		return nil, err
	}
	stride := int64(v.Stride)
	mask := v.Shape().Mask()
	return func(nx nextValues) int64 {
		return inner(nx) >> shiftAmount(offset(nx)*stride) & mask
	}, nil
}

func (c *rhsCompiler) compileCat(v *hdl.Cat) (evalFn, error) {
	type catPart struct {
		fn     evalFn
		offset uint
	}
	parts := make([]catPart, 0, len(v.Parts))
	offset := uint(0)
	for _, part := range v.Parts {
		fn, err := c.compileMasked(part)
		if err != nil {
			return nil, err
		}
		parts = append(parts, catPart{fn: fn, offset: offset})
		offset += uint(part.Shape().Width)
	}
	return func(nx nextValues) int64 {
		var result int64
		for _, p := range parts {
			result |= p.fn(nx) << p.offset
		}
		return result
	}, nil
}

func (c *rhsCompiler) compileRepl(v *hdl.Repl) (evalFn, error) {
	part, err := c.compileMasked(v.Val)
	if err != nil {
		return nil, err
	}
	width := uint(v.Val.Shape().Width)
	count := v.Count
	return func(nx nextValues) int64 {
		// Evaluate the replicated part once, then OR copies together.
		var result int64
		p := part(nx)
		for i, offset := 0, uint(0); i < count; i, offset = i+1, offset+width {
			result |= p << offset
		}
		return result
	}, nil
}

func (c *rhsCompiler) compileArrayProxy(v *hdl.ArrayProxy) (evalFn, error) {
	index, err := c.compileMasked(v.Index)
	if err != nil {
		return nil, err
	}
	elems := make([]evalFn, 0, len(v.Elems))
	for _, elem := range v.Elems {
		fn, err := c.compile(elem)
		if err != nil {
			return nil, err
		}
		elems = append(elems, fn)
	}
	if len(elems) == 0 {
		return func(nextValues) int64 { return 0 }, nil
	}
	return func(nx nextValues) int64 {
		i := index(nx)
		// An out-of-range index selects the last element.
		if i < 0 || i >= int64(len(elems)) {
			i = int64(len(elems)) - 1
		}
		return elems[i](nx)
	}, nil
}

// lhsCompiler lowers assignment targets into setters. Composite targets
// read-modify-write the staged value of the underlying signals through a
// next-mode RHS compiler, so that later partial writes within one statement
// body observe earlier ones.
type lhsCompiler struct {
	state *State

	// rrhs translates rvalues that are syntactically part of an lvalue,
	// such as the offset of a part-select.
	rrhs *rhsCompiler

	// lrhs translates the read half of a read-modify-write update.
	lrhs *rhsCompiler

	outputs *hdl.SignalSet
}

func newLHSCompiler(state *State, rrhs *rhsCompiler, outputs *hdl.SignalSet) *lhsCompiler {
	return &lhsCompiler{
		state:   state,
		rrhs:    rrhs,
		lrhs:    &rhsCompiler{state: state, mode: readNext},
		outputs: outputs,
	}
}

func (c *lhsCompiler) compile(value hdl.Value) (setFn, error) {
	switch v := value.(type) {
	case *hdl.Signal:
		return c.compileSignal(v)
	case *hdl.Slice:
		return c.compileSlice(v)
	case *hdl.Part:
		return c.compilePart(v)
	case *hdl.Cat:
		return c.compileCat(v)
	case *hdl.ArrayProxy:
		return c.compileArrayProxy(v)
	default:
		return nil, errors.Wrapf(ErrUnimplemented, "assignment target %T", value)
	}
}

func (c *lhsCompiler) compileSignal(v *hdl.Signal) (setFn, error) {
	if c.outputs != nil {
		c.outputs.Add(v)
	}
	index := c.state.getSignal(v)
	shape := v.Shape()
	return func(nx nextValues, value int64) {
		nx[index] = hdl.Normalize(value, shape)
	}, nil
}

func (c *lhsCompiler) compileSlice(v *hdl.Slice) (setFn, error) {
	inner, err := c.compile(v.Val)
	if err != nil {
		return nil, err
	}
	read, err := c.lrhs.compile(v.Val)
	if err != nil {
		return nil, err
	}
	widthMask := v.Shape().Mask()
	start := uint(v.Start)
	return func(nx nextValues, value int64) {
		inner(nx, read(nx)&^(widthMask<<start)|(value&widthMask)<<start)
	}, nil
}

func (c *lhsCompiler) compilePart(v *hdl.Part) (setFn, error) {
	inner, err := c.compile(v.Val)
	if err != nil {
		return nil, err
	}
	read, err := c.lrhs.compile(v.Val)
	if err != nil {
		return nil, err
	}
	offset, err := c.rrhs.compileMasked(v.Offset)
	if err != nil {
		return nil, err
	}
	widthMask := v.Shape().Mask()
	stride := int64(v.Stride)
	return func(nx nextValues, value int64) {
		shift := shiftAmount(offset(nx) * stride)
		inner(nx, read(nx)&^(widthMask<<shift)|(value&widthMask)<<shift)
	}, nil
}

func (c *lhsCompiler) compileCat(v *hdl.Cat) (setFn, error) {
	type catTarget struct {
		set    setFn
		offset uint
		mask   int64
	}
	targets := make([]catTarget, 0, len(v.Parts))
	offset := uint(0)
	for _, part := range v.Parts {
		set, err := c.compile(part)
		if err != nil {
			return nil, err
		}
		targets = append(targets, catTarget{
			set:    set,
			offset: offset,
			mask:   part.Shape().Mask(),
		})
		offset += uint(part.Shape().Width)
	}
	return func(nx nextValues, value int64) {
		for _, t := range targets {
			t.set(nx, value>>t.offset&t.mask)
		}
	}, nil
}

func (c *lhsCompiler) compileArrayProxy(v *hdl.ArrayProxy) (setFn, error) {
	index, err := c.rrhs.compileMasked(v.Index)
	if err != nil {
		return nil, err
	}
	elems := make([]setFn, 0, len(v.Elems))
	for _, elem := range v.Elems {
		set, err := c.compile(elem)
		if err != nil {
			return nil, err
		}
		elems = append(elems, set)
	}
	if len(elems) == 0 {
		return func(nextValues, int64) {}, nil
	}
	return func(nx nextValues, value int64) {
		i := index(nx)
		if i < 0 || i >= int64(len(elems)) {
			i = int64(len(elems)) - 1
		}
		elems[i](nx, value)
	}, nil
}

// patternCheck is one compiled switch-case pattern. Patterns without
// don't-care positions compare the whole test value; patterns with them
// mask the don't-care positions off first.
type patternCheck struct {
	exact bool
	mask  int64
	value int64
}

func compilePattern(pattern string) (patternCheck, error) {
	check := patternCheck{exact: true}
	for _, ch := range pattern {
		check.mask <<= 1
		check.value <<= 1
		switch ch {
		case '0':
			check.mask |= 1
		case '1':
			check.mask |= 1
			check.value |= 1
		case '-':
			check.exact = false
		default:
			return patternCheck{}, errors.Errorf(
				"invalid switch pattern %q: bit %q", pattern, ch)
		}
	}
	return check, nil
}

func (p patternCheck) matches(test int64) bool {
	if p.exact {
		return test == p.value
	}
	return test&p.mask == p.value
}

// stmtCompiler lowers statements into mutation routines against staged
// values.
type stmtCompiler struct {
	state *State
	rhs   *rhsCompiler
	lhs   *lhsCompiler
}

func newStmtCompiler(state *State, inputs, outputs *hdl.SignalSet) *stmtCompiler {
	rhs := &rhsCompiler{state: state, mode: readCurr, inputs: inputs}
	return &stmtCompiler{
		state: state,
		rhs:   rhs,
		lhs:   newLHSCompiler(state, rhs, outputs),
	}
}

func (c *stmtCompiler) compile(stmts []hdl.Statement) (stmtFn, error) {
	fns := make([]stmtFn, 0, len(stmts))
	for _, stmt := range stmts {
		fn, err := c.compileOne(stmt)
		if err != nil {
			return nil, err
		}
		fns = append(fns, fn)
	}
	return func(nx nextValues) {
		for _, fn := range fns {
			fn(nx)
		}
	}, nil
}

func (c *stmtCompiler) compileOne(stmt hdl.Statement) (stmtFn, error) {
	switch s := stmt.(type) {
	case *hdl.Assign:
		set, err := c.lhs.compile(s.LHS)
		if err != nil {
			return nil, err
		}
		get, err := c.rhs.compile(s.RHS)
		if err != nil {
			return nil, err
		}
		return func(nx nextValues) {
			set(nx, get(nx))
		}, nil

	case *hdl.Switch:
		return c.compileSwitch(s)

	case *hdl.Assert:
		return nil, errors.Wrap(ErrUnimplemented, "assert directive")
	case *hdl.Assume:
		return nil, errors.Wrap(ErrUnimplemented, "assume directive")
	case *hdl.Cover:
		return nil, errors.Wrap(ErrUnimplemented, "cover directive")

	default:
		return nil, errors.Wrapf(ErrUnimplemented, "statement %T", stmt)
	}
}

type switchCase struct {
	// isDefault marks the empty-pattern case, matched unconditionally.
	isDefault bool
	patterns  []patternCheck
	body      stmtFn
}

func (c *stmtCompiler) compileSwitch(s *hdl.Switch) (stmtFn, error) {
	test, err := c.rhs.compileMasked(s.Test)
	if err != nil {
		return nil, err
	}

	cases := make([]switchCase, 0, len(s.Cases))
	for _, sc := range s.Cases {
		compiled := switchCase{isDefault: len(sc.Patterns) == 0}
		for _, pattern := range sc.Patterns {
			check, err := compilePattern(pattern)
			if err != nil {
				return nil, err
			}
			compiled.patterns = append(compiled.patterns, check)
		}
		compiled.body, err = c.compile(sc.Body)
		if err != nil {
			return nil, err
		}
		cases = append(cases, compiled)
	}

	return func(nx nextValues) {
		// Cases test in declared order; the first match runs exclusively.
		value := test(nx)
		for _, sc := range cases {
			if sc.isDefault {
				sc.body(nx)
				return
			}
			for _, p := range sc.patterns {
				if p.matches(value) {
					sc.body(nx)
					return
				}
			}
		}
	}, nil
}

// compileStatements lowers a statement group into a routine against the
// store: staged values are seeded from the current next value of each
// output signal, the body runs, and the results are stored through set.
// This is the routine coroutine statement commands execute.
func compileStatements(state *State, stmts []hdl.Statement) (func(), error) {
	outputs := hdl.NewSignalSet()
	for _, stmt := range stmts {
		stmt.DrivenSignals(outputs)
	}
	outIndexes := make([]int, 0, outputs.Len())
	for _, sig := range outputs.Signals() {
		outIndexes = append(outIndexes, state.getSignal(sig))
	}

	body, err := newStmtCompiler(state, nil, nil).compile(stmts)
	if err != nil {
		return nil, err
	}

	return func() {
		nx := make(nextValues, len(outIndexes))
		for _, index := range outIndexes {
			nx[index] = state.slots[index].next
		}
		body(nx)
		for _, index := range outIndexes {
			state.slots[index].set(nx[index])
		}
	}, nil
}
