package sim

import (
	"log"

	"github.com/pkg/errors"

	"github.com/modwizcode/amaranth/hdl"
)

// A WaveformWriter consumes the committed value changes of a simulation, in
// commit order. The reference implementation lives in the vcd package.
type WaveformWriter interface {
	// Update records that signal changed to value at the given time.
	Update(timestamp VTimeInSec, signal *hdl.Signal, value int64)

	// Close finalizes the trace. It is called once, at session end.
	Close(timestamp VTimeInSec)
}

// waitTrigger gates the wakeup of a waiter. The zero value wakes on any
// change; with match set, only a change to value wakes the waiter.
type waitTrigger struct {
	value int64
	match bool
}

func anyChange() waitTrigger { return waitTrigger{} }

func onValue(v int64) waitTrigger { return waitTrigger{value: v, match: true} }

// A slot is the simulation-local state of one signal: the committed value,
// the staged next value, pending-set membership and waiter registrations.
type slot struct {
	state  *State
	signal *hdl.Signal

	curr int64
	next int64

	inPending bool
	waiters   map[process]waitTrigger
}

func newSlot(state *State, signal *hdl.Signal) *slot {
	s := &slot{
		state:   state,
		signal:  signal,
		waiters: make(map[process]waitTrigger),
	}
	s.curr = signal.Reset
	s.next = signal.Reset
	return s
}

// set stages a new value. The slot joins the pending set only if the staged
// value actually differs from the previously staged one.
func (s *slot) set(value int64) {
	if s.next == value {
		return
	}
	s.next = value
	if !s.inPending {
		s.inPending = true
		s.state.pending = append(s.state.pending, s)
	}
}

// wait registers p to be woken when the committed value changes (or changes
// to the trigger value). A process may wait on a slot at most once.
func (s *slot) wait(p process, trigger waitTrigger) {
	if _, ok := s.waiters[p]; ok {
		log.Panicf("sim: process %s already waits on signal %s",
			p.name(), s.signal.Name)
	}
	s.waiters[p] = trigger
}

// commit publishes the staged value. It reports whether the committed value
// changed.
func (s *slot) commit() bool {
	if s.curr == s.next {
		return false
	}
	s.curr = s.next
	return true
}

// wakeup marks matching waiters runnable and reports whether any woke.
func (s *slot) wakeup() bool {
	awokenAny := false
	for p, trigger := range s.waiters {
		if !trigger.match || trigger.value == s.curr {
			p.setRunnable(true)
			awokenAny = true
		}
	}
	return awokenAny
}

// A deadline is a scheduled wakeup for a suspended process. An immediate
// deadline is due on the next delta round without advancing time.
type deadline struct {
	at        VTimeInSec
	immediate bool
}

// State is the shared mutable state of a simulation: the signal store, the
// pending-change list, the logical timestamp, the process deadlines and the
// active waveform writer.
type State struct {
	signals map[*hdl.Signal]int
	slots   []*slot

	// pending keeps insertion order so that commits, and therefore waveform
	// traces, are reproducible between runs.
	pending []*slot

	timestamp VTimeInSec
	deadlines map[process]deadline

	writer WaveformWriter
}

// NewState creates an empty simulation state.
func NewState() *State {
	return &State{
		signals:   make(map[*hdl.Signal]int),
		deadlines: make(map[process]deadline),
	}
}

// reset restores every slot to its signal's reset value and clears the
// pending list, the deadlines and the timestamp. Waiter registrations are
// kept: they are construction-time state.
func (st *State) reset() {
	for _, s := range st.slots {
		s.curr = s.signal.Reset
		s.next = s.signal.Reset
		s.inPending = false
	}
	st.pending = st.pending[:0]
	st.timestamp = 0
	for p := range st.deadlines {
		delete(st.deadlines, p)
	}
}

// getSignal returns the slot index of signal, creating the slot on first
// reference. Indexes are assigned in first-reference order and are stable
// for the lifetime of the simulation.
func (st *State) getSignal(signal *hdl.Signal) int {
	if index, ok := st.signals[signal]; ok {
		return index
	}
	index := len(st.slots)
	st.slots = append(st.slots, newSlot(st, signal))
	st.signals[signal] = index
	return index
}

// forSignal returns the slot of signal, creating it on first reference.
func (st *State) forSignal(signal *hdl.Signal) *slot {
	return st.slots[st.getSignal(signal)]
}

// commit publishes every staged change, wakes matching waiters and feeds the
// waveform writer. All pending slots of a round are processed before any
// woken process runs, so no process observes a half-committed round.
func (st *State) commit() bool {
	awokenAny := false
	for _, s := range st.pending {
		s.inPending = false
		if !s.commit() {
			continue
		}
		if s.wakeup() {
			awokenAny = true
		}
		if st.writer != nil {
			st.writer.Update(st.timestamp, s.signal, s.curr)
		}
	}
	st.pending = st.pending[:0]
	return awokenAny
}

// advance wakes the processes scheduled for the nearest deadline and moves
// the timestamp there. Immediate deadlines are due now: when any exist, all
// of them wake and time does not advance. advance reports false when the
// deadline map is empty.
func (st *State) advance() bool {
	var nearest []process
	var nearestAt VTimeInSec
	haveImmediate := false

	for p, d := range st.deadlines {
		switch {
		case d.immediate:
			if !haveImmediate {
				nearest = nearest[:0]
				haveImmediate = true
				nearestAt = st.timestamp
			}
			nearest = append(nearest, p)
		case haveImmediate:
			// timed deadlines lose to immediate ones
		default:
			if d.at < st.timestamp {
				log.Panicf("sim: deadline %.10f is in the past (now %.10f)",
					d.at, st.timestamp)
			}
			if len(nearest) == 0 || d.at < nearestAt {
				nearest = nearest[:0]
				nearestAt = d.at
			}
			if d.at == nearestAt {
				nearest = append(nearest, p)
			}
		}
	}

	if len(nearest) == 0 {
		return false
	}

	for _, p := range nearest {
		p.setRunnable(true)
		delete(st.deadlines, p)
	}
	st.timestamp = nearestAt

	return true
}

// startWaveform begins feeding value changes to w. Sessions can only start
// before simulated time has advanced, and only one can be active at a time.
func (st *State) startWaveform(w WaveformWriter) error {
	if st.timestamp != 0 {
		return errors.New("cannot start writing waveforms after advancing simulation time")
	}
	if st.writer != nil {
		return errors.Errorf("already writing waveforms to %v", st.writer)
	}
	st.writer = w
	return nil
}

// finishWaveform closes the active session, if any.
func (st *State) finishWaveform() {
	if st.writer == nil {
		return
	}
	st.writer.Close(st.timestamp)
	st.writer = nil
}
