package sim

import "fmt"

// Testbench processes communicate with the scheduler by yielding commands.
// Besides the types in this file, a process may yield an hdl.Value (read the
// signals it mentions and resume with the result) or an hdl.Statement
// (execute it against the store immediately). Yielding any other value is a
// protocol violation.

// Settle suspends the process until the next delta round, without advancing
// simulated time. It is used to wait for combinational logic to re-evaluate.
type Settle struct{}

func (Settle) String() string { return "(settle)" }

// Delay suspends the process until Interval has elapsed. The zero Delay
// (or one with Eps set) behaves like Settle: wake on the next delta round.
type Delay struct {
	Interval VTimeInSec
	Eps      bool
}

func (d Delay) String() string {
	if d.Eps || d.Interval == 0 {
		return "(delay ε)"
	}
	return fmt.Sprintf("(delay %.3gus)", float64(d.Interval)*1e6)
}

// Tick suspends the process until the next active clock edge of the named
// domain, or the reset edge for domains with an asynchronous reset. An empty
// Domain means "sync".
type Tick struct {
	Domain string
}

func (t Tick) String() string { return "(tick " + t.domainName() + ")" }

func (t Tick) domainName() string {
	if t.Domain == "" {
		return "sync"
	}
	return t.Domain
}

// Passive marks the process as not keeping the simulation alive. It takes
// effect immediately, without suspending the process.
type Passive struct{}

func (Passive) String() string { return "(passive)" }

// Active marks the process as keeping the simulation alive. It takes effect
// immediately, without suspending the process.
type Active struct{}

func (Active) String() string { return "(active)" }
