package hdl

import "fmt"

// A Signal is a named wire or register in the design. Signals are compared
// by identity: two signals with the same name are still distinct nets.
//
// Signals are immutable from the simulator's point of view. The simulator
// keeps its own per-signal state and only reads the declaration here.
type Signal struct {
	// Name is the local name of the signal. Hierarchical display names are
	// derived by the design walker from the fragment tree.
	Name string

	shape Shape

	// Reset is the value the signal assumes on simulation reset, and the
	// value combinational defaults fall back to.
	Reset int64

	// Decoder, if set, renders values of this signal for display. Waveform
	// sinks may use it to emit symbolic traces.
	Decoder func(int64) string
}

// NewSignal creates an unsigned signal of the given width.
func NewSignal(name string, width int) *Signal {
	return &Signal{Name: name, shape: Unsigned(width)}
}

// NewSignalSigned creates a signed signal of the given width.
func NewSignalSigned(name string, width int) *Signal {
	return &Signal{Name: name, shape: Signed(width)}
}

// WithReset sets the reset value and returns the signal for chaining during
// design construction.
func (s *Signal) WithReset(reset int64) *Signal {
	s.Reset = Normalize(reset, s.shape)
	return s
}

// WithDecoder sets the display decoder and returns the signal.
func (s *Signal) WithDecoder(dec func(int64) string) *Signal {
	s.Decoder = dec
	return s
}

// Shape returns the declared shape of the signal.
func (s *Signal) Shape() Shape {
	return s.shape
}

// Width returns the declared bit width of the signal.
func (s *Signal) Width() int {
	return s.shape.Width
}

func (s *Signal) String() string {
	return fmt.Sprintf("(sig %s)", s.Name)
}

// Eq builds an assignment of value to this signal.
func (s *Signal) Eq(value Value) *Assign {
	return &Assign{LHS: s, RHS: value}
}

// A SignalSet is an identity set of signals that preserves insertion order.
// Deterministic iteration keeps compiled processes, waveform declarations
// and traces reproducible from run to run.
type SignalSet struct {
	index map[*Signal]int
	list  []*Signal
}

// NewSignalSet creates an empty signal set.
func NewSignalSet() *SignalSet {
	return &SignalSet{index: make(map[*Signal]int)}
}

// Add inserts the signal unless it is already present.
func (ss *SignalSet) Add(sig *Signal) {
	if _, ok := ss.index[sig]; ok {
		return
	}
	ss.index[sig] = len(ss.list)
	ss.list = append(ss.list, sig)
}

// Contains reports whether the signal is in the set.
func (ss *SignalSet) Contains(sig *Signal) bool {
	_, ok := ss.index[sig]
	return ok
}

// Signals returns the members in insertion order. The returned slice is
// shared; callers must not modify it.
func (ss *SignalSet) Signals() []*Signal {
	return ss.list
}

// Len returns the number of members.
func (ss *SignalSet) Len() int {
	return len(ss.list)
}
