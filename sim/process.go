package sim

// A process is a unit of work the scheduler interleaves: either an update
// routine compiled from hardware logic or a cooperative testbench
// coroutine.
type process interface {
	// name identifies the process in diagnostics.
	name() string

	// reset restores the process to its initial state.
	reset()

	// run executes the process until it suspends or finishes its round.
	run() error

	// isRunnable reports whether the process wants to run this round.
	isRunnable() bool

	// setRunnable marks the process runnable (used by slot wakeups and
	// deadline expiry) or clears the mark.
	setRunnable(bool)

	// isPassive reports whether the process counts toward "the simulation
	// still has active work".
	isPassive() bool
}

// A compiledProcess wraps the update routine of one clock-domain group.
// Compiled logic never keeps the simulation alive on its own: it is always
// passive. Combinational routines start runnable so that reset values
// propagate; clocked routines start waiting for their edge.
type compiledProcess struct {
	procName string
	comb     bool
	runFn    func()

	runnable bool
	passive  bool
}

func newCompiledProcess(name string, comb bool) *compiledProcess {
	p := &compiledProcess{procName: name, comb: comb}
	p.reset()
	return p
}

func (p *compiledProcess) name() string { return p.procName }

func (p *compiledProcess) reset() {
	p.runnable = p.comb
	p.passive = true
}

func (p *compiledProcess) run() error {
	p.runFn()
	return nil
}

func (p *compiledProcess) isRunnable() bool   { return p.runnable }
func (p *compiledProcess) setRunnable(r bool) { p.runnable = r }
func (p *compiledProcess) isPassive() bool    { return p.passive }
