package sim

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/modwizcode/amaranth/hdl"
)

// A Simulator owns the signal store and every process of one simulation and
// drives them through logical time: delta rounds until a combinational
// fixpoint, then a jump to the nearest deadline.
//
// A Simulator is not safe for concurrent use, with one exception: Pause and
// Continue may be called from other goroutines (the monitoring server uses
// them) and gate the run loop between delta rounds.
type Simulator struct {
	HookableBase

	state     *State
	fragment  *hdl.Fragment
	domains   map[string]*hdl.ClockDomain
	names     SignalNames
	processes []process
	clocked   map[*hdl.ClockDomain]bool

	isPaused     bool
	isPausedLock sync.Mutex
	pauseLock    sync.Mutex
}

// NewSimulator compiles the fragment and creates a simulator for it. It
// fails if the fragment contains constructs the compiler does not lower or
// drives a clock domain that is not registered anywhere in the tree.
func NewSimulator(fragment *hdl.Fragment) (*Simulator, error) {
	s := &Simulator{
		state:    NewState(),
		fragment: fragment,
		domains:  fragment.Domains(),
		names:    make(SignalNames),
		clocked:  make(map[*hdl.ClockDomain]bool),
	}

	fc := &fragmentCompiler{state: s.state, domains: s.domains, names: s.names}
	compiled, err := fc.compile(fragment, []string{"top"})
	if err != nil {
		return nil, err
	}
	for _, p := range compiled {
		s.processes = append(s.processes, p)
	}

	return s, nil
}

// CurrentTime returns the current simulated time.
func (s *Simulator) CurrentTime() VTimeInSec {
	return s.state.timestamp
}

// Peek reads the committed value of a signal without scheduling anything.
func (s *Simulator) Peek(signal *hdl.Signal) int64 {
	return s.state.forSignal(signal).curr
}

// SignalNames returns the hierarchical display names collected by the
// design walker, for use by waveform sinks.
func (s *Simulator) SignalNames() SignalNames {
	return s.names
}

// Reset restores the simulation to its initial state: every signal assumes
// its reset value, time returns to zero and every process restarts.
func (s *Simulator) Reset() {
	s.state.reset()
	for _, p := range s.processes {
		p.reset()
	}
}

// delta performs one delta cycle: run every currently-runnable process
// exactly once, then commit the staged signal changes. The runnable flag is
// cleared before the process runs so a process writing its own inputs
// cannot spin within one round. delta reports whether the commit changed
// anything.
func (s *Simulator) delta() (bool, error) {
	s.InvokeHook(HookCtx{Domain: s, Pos: HookPosBeforeDelta})

	for _, p := range s.processes {
		if !p.isRunnable() {
			continue
		}
		p.setRunnable(false)
		if err := p.run(); err != nil {
			return false, err
		}
	}

	changed := s.state.commit()
	s.InvokeHook(HookCtx{Domain: s, Pos: HookPosAfterCommit, Detail: changed})
	return changed, nil
}

// settle repeats delta cycles until a fixpoint: no process changed any
// signal. If the design contains an unstable combinational loop, settle
// never returns; the engine does not try to detect that.
func (s *Simulator) settle() error {
	for {
		changed, err := s.delta()
		if err != nil {
			return err
		}
		if !changed {
			return nil
		}
	}
}

// Step settles the simulation, then advances time to the nearest deadline.
// It reports whether any active (non-passive) process remains.
func (s *Simulator) Step() (bool, error) {
	s.pauseLock.Lock()
	defer s.pauseLock.Unlock()

	if err := s.settle(); err != nil {
		return false, err
	}
	s.state.advance()

	for _, p := range s.processes {
		if !p.isPassive() {
			return true, nil
		}
	}
	return false, nil
}

// Run steps the simulation until no active process remains.
func (s *Simulator) Run() error {
	for {
		active, err := s.Step()
		if err != nil {
			return err
		}
		if !active {
			return nil
		}
	}
}

// RunUntil steps the simulation until time reaches deadline. With
// runPassive set it keeps going even when no active process remains. If the
// design stops advancing time before the deadline, RunUntil never returns;
// that is a documented limitation, not a fault the engine detects.
func (s *Simulator) RunUntil(deadline VTimeInSec, runPassive bool) error {
	if s.state.timestamp > deadline {
		return errors.Errorf(
			"deadline %.10f is before the current time %.10f",
			deadline, s.state.timestamp)
	}
	for s.state.timestamp < deadline {
		active, err := s.Step()
		if err != nil {
			return err
		}
		if !active && !runPassive {
			return nil
		}
	}
	return nil
}

// Pause prevents the simulator from starting further steps until Continue
// is called. A step already underway completes first.
func (s *Simulator) Pause() {
	s.isPausedLock.Lock()
	defer s.isPausedLock.Unlock()

	if s.isPaused {
		return
	}

	s.pauseLock.Lock()
	s.isPaused = true
}

// Continue lets a paused simulator proceed.
func (s *Simulator) Continue() {
	s.isPausedLock.Lock()
	defer s.isPausedLock.Unlock()

	if !s.isPaused {
		return
	}

	s.pauseLock.Unlock()
	s.isPaused = false
}

func (s *Simulator) addCoroutine(body ProcessFunc, defaultCmd interface{}, name string) {
	s.processes = append(s.processes,
		newCoroutineProcess(s.state, s.domains, body, defaultCmd, name))
}

// AddProcess registers a generic testbench process. The body is started
// after an initial settle, so the first values it observes are the settled
// post-reset values.
func (s *Simulator) AddProcess(body ProcessFunc) {
	name := funcName(body)
	s.addCoroutine(func(p *Proc) error {
		p.Settle()
		return body(p)
	}, nil, name)
}

// AddSyncProcess registers a testbench process bound to a clock domain (""
// means "sync"). The body is started after the domain's first active edge,
// matching the behavior of synchronous registers, and yielding without an
// explicit command ticks the same domain again.
func (s *Simulator) AddSyncProcess(body ProcessFunc, domain string) {
	tick := Tick{Domain: domain}
	name := funcName(body)
	s.addCoroutine(func(p *Proc) error {
		p.Tick(domain)
		return body(p)
	}, tick, name)
}

// A ClockOption adjusts AddClock.
type ClockOption func(*clockConfig)

type clockConfig struct {
	phase    VTimeInSec
	hasPhase bool
	domain   string
	ifExists bool
}

// WithPhase delays the first clock transition by phase. The default phase
// is half the period, so the first edge lands at period/2 and synchronous
// activity is distinguishable from reset values in a waveform viewer.
func WithPhase(phase VTimeInSec) ClockOption {
	return func(c *clockConfig) {
		c.phase = phase
		c.hasPhase = true
	}
}

// WithClockDomain selects the driven domain. The default is "sync".
func WithClockDomain(domain string) ClockOption {
	return func(c *clockConfig) { c.domain = domain }
}

// IfExists makes AddClock a no-op instead of an error when the domain is
// not present in the simulation.
func IfExists() ClockOption {
	return func(c *clockConfig) { c.ifExists = true }
}

// AddClock registers a passive process driving the domain clock at a 50%
// duty cycle: one toggle every period/2. Requesting a clock for an unknown
// domain is an error unless suppressed with IfExists; a domain can have at
// most one clock driver.
func (s *Simulator) AddClock(period VTimeInSec, opts ...ClockOption) error {
	cfg := clockConfig{domain: "sync"}
	for _, opt := range opts {
		opt(&cfg)
	}

	domain, ok := s.domains[cfg.domain]
	if !ok {
		if cfg.ifExists {
			return nil
		}
		return errors.Errorf("domain %q is not present in simulation", cfg.domain)
	}
	if s.clocked[domain] {
		return errors.Errorf("domain %q already has a clock driving it", domain.Name)
	}

	halfPeriod := period / 2
	phase := cfg.phase
	if !cfg.hasPhase {
		phase = halfPeriod
	}

	s.addCoroutine(clockBody(domain, halfPeriod, phase), nil, "clk."+domain.Name)
	s.clocked[domain] = true
	return nil
}

// BeginWaveform starts recording committed value changes to w. Sessions
// must begin before simulated time advances past zero, and only one session
// can be active at a time. On failure the writer is closed immediately.
func (s *Simulator) BeginWaveform(w WaveformWriter) error {
	if err := s.state.startWaveform(w); err != nil {
		w.Close(0)
		return err
	}
	return nil
}

// EndWaveform finishes the active recording session, if any, closing the
// writer at the current time.
func (s *Simulator) EndWaveform() {
	s.state.finishWaveform()
}

// A ProcessStatus is a diagnostic snapshot of one process.
type ProcessStatus struct {
	Name     string `json:"name"`
	Runnable bool   `json:"runnable"`
	Passive  bool   `json:"passive"`
}

// ProcessStatuses snapshots every process for diagnostics and monitoring.
func (s *Simulator) ProcessStatuses() []ProcessStatus {
	statuses := make([]ProcessStatus, 0, len(s.processes))
	for _, p := range s.processes {
		statuses = append(statuses, ProcessStatus{
			Name:     p.name(),
			Runnable: p.isRunnable(),
			Passive:  p.isPassive(),
		})
	}
	return statuses
}

// ProcessState returns the process with the given name for state
// inspection, or false if no such process exists.
func (s *Simulator) ProcessState(name string) (interface{}, bool) {
	for _, p := range s.processes {
		if p.name() == name {
			return p, true
		}
	}
	return nil, false
}
