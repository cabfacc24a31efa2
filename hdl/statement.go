package hdl

import (
	"fmt"
	"strings"
)

// A Statement describes an update of one or more signals. The variants are
// *Assign, *Switch, and the formal directives *Assert, *Assume and *Cover
// (which the simulator refuses to compile).
type Statement interface {
	fmt.Stringer

	// DrivenSignals adds every signal written by the statement to set.
	DrivenSignals(set *SignalSet)
}

// An Assign drives LHS with the value of RHS. LHS may be a signal or a
// composite target (slice, part, concatenation, array selection), in which
// case only the addressed bits are updated.
type Assign struct {
	LHS Value
	RHS Value
}

// DrivenSignals adds the signals written through the assignment target.
func (a *Assign) DrivenSignals(set *SignalSet) {
	lhsSignals(a.LHS, set)
}

func (a *Assign) String() string {
	return fmt.Sprintf("(eq %s %s)", a.LHS, a.RHS)
}

// A SwitchCase pairs bit patterns with a statement body. Patterns are
// fixed-width binary strings that may contain '-' for don't-care positions.
// A case without patterns is an unconditional default.
type SwitchCase struct {
	Patterns []string
	Body     []Statement
}

// A Switch tests a value against its cases in declared order and executes
// the body of the first match exclusively.
type Switch struct {
	Test  Value
	Cases []SwitchCase
}

// DrivenSignals adds the signals written by any case body.
func (s *Switch) DrivenSignals(set *SignalSet) {
	for _, c := range s.Cases {
		for _, stmt := range c.Body {
			stmt.DrivenSignals(set)
		}
	}
}

func (s *Switch) String() string {
	cases := make([]string, 0, len(s.Cases))
	for _, c := range s.Cases {
		cases = append(cases, fmt.Sprintf("(%s)", strings.Join(c.Patterns, " ")))
	}
	return fmt.Sprintf("(switch %s %s)", s.Test, strings.Join(cases, " "))
}

// An Assert is a formal verification directive. The simulator does not
// implement it and fails loudly when one reaches the compiler.
type Assert struct {
	Cond Value
}

// DrivenSignals adds nothing: directives drive no signals.
func (a *Assert) DrivenSignals(*SignalSet) {}

func (a *Assert) String() string {
	return fmt.Sprintf("(assert %s)", a.Cond)
}

// An Assume is a formal verification directive, unimplemented like Assert.
type Assume struct {
	Cond Value
}

// DrivenSignals adds nothing: directives drive no signals.
func (a *Assume) DrivenSignals(*SignalSet) {}

func (a *Assume) String() string {
	return fmt.Sprintf("(assume %s)", a.Cond)
}

// A Cover is a formal verification directive, unimplemented like Assert.
type Cover struct {
	Cond Value
}

// DrivenSignals adds nothing: directives drive no signals.
func (c *Cover) DrivenSignals(*SignalSet) {}

func (c *Cover) String() string {
	return fmt.Sprintf("(cover %s)", c.Cond)
}

// lhsSignals collects the signals underlying an assignment target.
func lhsSignals(v Value, set *SignalSet) {
	switch lhs := v.(type) {
	case *Signal:
		set.Add(lhs)
	case *Slice:
		lhsSignals(lhs.Val, set)
	case *Part:
		lhsSignals(lhs.Val, set)
	case *Cat:
		for _, p := range lhs.Parts {
			lhsSignals(p, set)
		}
	case *ArrayProxy:
		for _, e := range lhs.Elems {
			lhsSignals(e, set)
		}
	}
}
