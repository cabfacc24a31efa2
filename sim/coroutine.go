package sim

import (
	"reflect"
	"runtime"

	"github.com/pkg/errors"

	"github.com/modwizcode/amaranth/hdl"
)

// A ProcessFunc is the body of a testbench process. It runs on its own
// goroutine, cooperatively: every interaction with simulated time or with
// signals goes through the Proc handle, and those calls are the only points
// at which the body suspends. A body that returns nil terminates normally;
// the process then becomes permanently passive and non-runnable.
type ProcessFunc func(p *Proc) error

// procMessage travels from the body to the scheduler: a yielded command, or
// completion of the body.
type procMessage struct {
	cmd  interface{}
	done bool
	err  error
}

// yieldReply travels from the scheduler to the body: the response to the
// last yielded command, or the error to deliver at the suspension point.
type yieldReply struct {
	value int64
	err   error
}

// procAborted unwinds a body goroutine whose process was reset.
type procAborted struct{}

// shuttle is the rendezvous state of one incarnation of a coroutine body.
// Reset replaces the whole shuttle so a stale goroutine can never touch the
// channels of its successor.
type shuttle struct {
	cmdCh   chan procMessage
	replyCh chan yieldReply
	quit    chan struct{}
	started bool
}

func newShuttle() *shuttle {
	return &shuttle{
		cmdCh:   make(chan procMessage),
		replyCh: make(chan yieldReply),
		quit:    make(chan struct{}),
	}
}

// A Proc is the handle a testbench body uses to exchange commands with the
// scheduler. Yield is the primitive; the other methods are conveniences
// that abort the body when the scheduler reports a protocol error.
type Proc struct {
	sh *shuttle
}

// Yield hands a command to the scheduler and suspends the body until the
// scheduler responds. cmd may be an hdl.Value (the reply carries its
// current, sign-normalized value), an hdl.Statement (executed against the
// store immediately), one of Tick, Settle, Delay, Passive and Active, or
// nil to request the process's default command. Protocol errors come back
// as the returned error, so a body can in principle react to them.
func (p *Proc) Yield(cmd interface{}) (int64, error) {
	select {
	case p.sh.cmdCh <- procMessage{cmd: cmd}:
	case <-p.sh.quit:
		panic(procAborted{})
	}
	select {
	case reply := <-p.sh.replyCh:
		return reply.value, reply.err
	case <-p.sh.quit:
		panic(procAborted{})
	}
}

func (p *Proc) mustYield(cmd interface{}) int64 {
	value, err := p.Yield(cmd)
	if err != nil {
		panic(err)
	}
	return value
}

// Get reads the current value of an expression, sign-normalized to the
// expression's shape.
func (p *Proc) Get(value hdl.Value) int64 {
	return p.mustYield(value)
}

// Exec executes a statement against the store. The write lands in the
// pending set like any other and takes effect at the next commit.
func (p *Proc) Exec(stmt hdl.Statement) {
	p.mustYield(stmt)
}

// Set assigns a constant value to a signal.
func (p *Proc) Set(signal *hdl.Signal, value int64) {
	shape := signal.Shape()
	var c *hdl.Const
	if shape.Signed {
		c = hdl.CSigned(value, shape.Width)
	} else {
		c = hdl.C(value, shape.Width)
	}
	p.Exec(signal.Eq(c))
}

// Tick suspends until the next active clock edge of the named domain. An
// empty name means "sync".
func (p *Proc) Tick(domain string) {
	p.mustYield(Tick{Domain: domain})
}

// Settle suspends until the next delta round, after combinational logic has
// re-evaluated, without advancing time.
func (p *Proc) Settle() {
	p.mustYield(Settle{})
}

// Delay suspends for the given simulated interval.
func (p *Proc) Delay(interval VTimeInSec) {
	p.mustYield(Delay{Interval: interval})
}

// Passive marks the process as not keeping the simulation alive.
func (p *Proc) Passive() {
	p.mustYield(Passive{})
}

// Active marks the process as keeping the simulation alive.
func (p *Proc) Active() {
	p.mustYield(Active{})
}

// A coroutineProcess adapts a testbench body to the process contract. The
// body runs on its own goroutine; the scheduler resumes it, collects the
// command it yields, and either answers immediately (reads, writes, flag
// toggles) or registers a wakeup and suspends it (tick, settle, delay).
type coroutineProcess struct {
	state      *State
	domains    map[string]*hdl.ClockDomain
	body       ProcessFunc
	defaultCmd interface{}
	procName   string

	runnable bool
	passive  bool
	finished bool

	waitsOn []*slot

	sh           *shuttle
	pendingReply yieldReply
}

func newCoroutineProcess(
	state *State,
	domains map[string]*hdl.ClockDomain,
	body ProcessFunc,
	defaultCmd interface{},
	name string,
) *coroutineProcess {
	if name == "" {
		name = funcName(body)
	}
	p := &coroutineProcess{
		state:      state,
		domains:    domains,
		body:       body,
		defaultCmd: defaultCmd,
		procName:   name,
	}
	p.reset()
	return p
}

// funcName names a process after its body for diagnostics.
func funcName(body ProcessFunc) string {
	fn := runtime.FuncForPC(reflect.ValueOf(body).Pointer())
	if fn == nil {
		return "process"
	}
	return fn.Name()
}

func (p *coroutineProcess) name() string { return p.procName }

func (p *coroutineProcess) isRunnable() bool   { return p.runnable }
func (p *coroutineProcess) setRunnable(r bool) { p.runnable = r }
func (p *coroutineProcess) isPassive() bool    { return p.passive }

// reset restarts the body from its beginning: the previous incarnation is
// aborted, waits are dropped, and the process becomes runnable and active.
func (p *coroutineProcess) reset() {
	p.detachWaits()
	if p.sh != nil && p.sh.started && !p.finished {
		close(p.sh.quit)
	}
	p.sh = newShuttle()
	p.runnable = true
	p.passive = false
	p.finished = false
	p.pendingReply = yieldReply{}
}

func (p *coroutineProcess) detachWaits() {
	for _, s := range p.waitsOn {
		delete(s.waiters, p)
	}
	p.waitsOn = p.waitsOn[:0]
}

// waitOn registers this process as a waiter on signal, gated to value.
func (p *coroutineProcess) waitOn(signal *hdl.Signal, value int64) {
	s := p.state.forSignal(signal)
	s.wait(p, onValue(value))
	p.waitsOn = append(p.waitsOn, s)
}

// main hosts the body goroutine of one incarnation.
func (p *coroutineProcess) main(sh *shuttle) {
	var err error
	aborted := false

	func() {
		defer func() {
			switch r := recover().(type) {
			case nil:
			case procAborted:
				aborted = true
			case error:
				err = r
			default:
				err = errors.Errorf("testbench process panicked: %v", r)
			}
		}()
		err = p.body(&Proc{sh: sh})
	}()

	if aborted {
		return
	}
	select {
	case sh.cmdCh <- procMessage{done: true, err: err}:
	case <-sh.quit:
	}
}

// run resumes the body and services the commands it yields until it either
// suspends on a scheduling command or finishes. Any error it reports (a
// protocol violation it did not handle, or its own failure) propagates to
// the caller of the current step.
func (p *coroutineProcess) run() error {
	if p.finished {
		return nil
	}

	// Drop waiter registrations from the suspension that woke us.
	p.detachWaits()

	reply := p.pendingReply
	p.pendingReply = yieldReply{}

	for {
		if p.sh.started {
			p.sh.replyCh <- reply
		} else {
			p.sh.started = true
			go p.main(p.sh)
		}

		msg := <-p.sh.cmdCh
		if msg.done {
			// Normal termination is not an error: the process just stops
			// counting as active work.
			p.passive = true
			p.finished = true
			return msg.err
		}

		cmd := msg.cmd
		if cmd == nil {
			cmd = p.defaultCmd
		}
		reply = yieldReply{}

		switch c := cmd.(type) {
		case hdl.Value:
			fn, err := (&rhsCompiler{state: p.state, mode: readCurr}).compile(c)
			if err != nil {
				reply.err = err
				continue
			}
			reply.value = hdl.Normalize(fn(nil), c.Shape())

		case hdl.Statement:
			run, err := compileStatements(p.state, []hdl.Statement{c})
			if err != nil {
				reply.err = err
				continue
			}
			run()

		case Tick:
			domain, ok := p.domains[c.domainName()]
			if !ok {
				reply.err = errors.Errorf(
					"command %v from process %s refers to a nonexistent domain %q",
					c, p.procName, c.domainName())
				continue
			}
			p.waitOn(domain.Clk, domain.ClkTrigger())
			if domain.Rst != nil && domain.AsyncReset {
				p.waitOn(domain.Rst, 1)
			}
			return nil

		case Settle:
			p.state.deadlines[p] = deadline{immediate: true}
			return nil

		case Delay:
			if c.Eps || c.Interval == 0 {
				p.state.deadlines[p] = deadline{immediate: true}
			} else {
				p.state.deadlines[p] = deadline{at: p.state.timestamp + c.Interval}
			}
			return nil

		case Passive:
			p.passive = true

		case Active:
			p.passive = false

		case nil:
			// Only reachable when the default command is unset too.
			reply.err = errors.Errorf(
				"process %s yielded no command and has no default; "+
					"did you mean to add it with AddSyncProcess?", p.procName)

		default:
			reply.err = errors.Wrapf(ErrUnsupportedCommand,
				"%v yielded by process %s", cmd, p.procName)
		}
	}
}
