package sim

import (
	"log"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/modwizcode/amaranth/hdl"
)

// SignalNames maps every signal that passes through a compiled routine to
// its hierarchical display names. A signal reachable through several paths
// of the design tree carries one name per path. The slice order follows the
// walk order, keeping waveform declarations stable.
type SignalNames map[*hdl.Signal][][]string

func (sn SignalNames) add(hierarchy []string, signal *hdl.Signal) {
	name := make([]string, len(hierarchy)+1)
	copy(name, hierarchy)
	name[len(hierarchy)] = signal.Name
	for _, existing := range sn[signal] {
		if equalName(existing, name) {
			return
		}
	}
	sn[signal] = append(sn[signal], name)
}

func equalName(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// fragmentCompiler walks the hierarchical design and emits one compiled
// process per clock-domain group of driven signals.
type fragmentCompiler struct {
	state   *State
	domains map[string]*hdl.ClockDomain
	names   SignalNames
}

// compile visits fragment and its children, appending the resulting
// processes in walk order.
func (fc *fragmentCompiler) compile(
	fragment *hdl.Fragment,
	hierarchy []string,
) ([]*compiledProcess, error) {
	var processes []*compiledProcess

	for _, group := range fragment.Groups() {
		proc, err := fc.compileGroup(fragment, group, hierarchy)
		if err != nil {
			return nil, err
		}
		processes = append(processes, proc)
	}

	for i, sub := range fragment.Subfragments() {
		name := sub.Name
		if name == "" {
			name = "U$" + strconv.Itoa(i)
		}
		children, err := fc.compile(sub.Fragment, append(hierarchy[:len(hierarchy):len(hierarchy)], name))
		if err != nil {
			return nil, err
		}
		processes = append(processes, children...)
	}

	return processes, nil
}

func (fc *fragmentCompiler) compileGroup(
	fragment *hdl.Fragment,
	group *hdl.StatementGroup,
	hierarchy []string,
) (*compiledProcess, error) {
	domainLabel := group.Domain
	if domainLabel == "" {
		domainLabel = "comb"
	}
	procName := strings.Join(hierarchy, ".") + ".<" + domainLabel + ">"
	proc := newCompiledProcess(procName, group.Domain == "")

	state := fc.state
	outputs := group.Signals()
	outIndexes := make([]int, 0, outputs.Len())
	for _, sig := range outputs.Signals() {
		outIndexes = append(outIndexes, state.getSignal(sig))
	}

	inputs := hdl.NewSignalSet()
	body, err := newStmtCompiler(state, inputs, nil).compile(group.Statements)
	if err != nil {
		return nil, errors.Wrapf(err, "compiling %s", procName)
	}

	flush := func(nx nextValues) {
		for _, index := range outIndexes {
			state.slots[index].set(nx[index])
		}
	}

	if group.Domain == "" {
		// Combinational group: outputs default to their reset value, and
		// the routine re-runs whenever any signal it reads changes.
		resets := make([]int64, 0, len(outIndexes))
		for _, sig := range outputs.Signals() {
			resets = append(resets, sig.Reset)
		}
		proc.runFn = func() {
			nx := make(nextValues, len(outIndexes))
			for i, index := range outIndexes {
				nx[index] = resets[i]
			}
			body(nx)
			flush(nx)
		}

		for _, input := range inputs.Signals() {
			state.forSignal(input).wait(proc, anyChange())
		}
	} else {
		domain, ok := fc.domains[group.Domain]
		if !ok {
			return nil, errors.Errorf(
				"fragment %s drives unknown clock domain %q",
				strings.Join(hierarchy, "."), group.Domain)
		}
		fc.names.add(hierarchy, domain.Clk)
		if domain.Rst != nil {
			fc.names.add(hierarchy, domain.Rst)
		}

		clkSlot := state.forSignal(domain.Clk)
		clkTrigger := domain.ClkTrigger()
		clkSlot.wait(proc, onValue(clkTrigger))

		var rstSlot *slot
		if domain.Rst != nil && domain.AsyncReset {
			rstSlot = state.forSignal(domain.Rst)
			rstSlot.wait(proc, onValue(1))
		}

		proc.runFn = func() {
			// The scheduler only wakes this routine on its trigger edge;
			// anything else is a compiler or integration bug.
			if clkSlot.curr != clkTrigger && (rstSlot == nil || rstSlot.curr != 1) {
				log.Panicf("sim: %s woke without a trigger edge", procName)
			}
			nx := make(nextValues, len(outIndexes))
			for _, index := range outIndexes {
				nx[index] = state.slots[index].next
			}
			body(nx)
			flush(nx)
		}
	}

	// Record display names for every signal the routine touches.
	for _, sig := range inputs.Signals() {
		fc.names.add(hierarchy, sig)
	}
	for _, sig := range outputs.Signals() {
		fc.names.add(hierarchy, sig)
	}

	return proc, nil
}
