package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modwizcode/amaranth/hdl"
)

type fakeProcess struct {
	procName string
	runnable bool
	passive  bool
}

func (f *fakeProcess) name() string       { return f.procName }
func (f *fakeProcess) reset()             { f.runnable = false }
func (f *fakeProcess) run() error         { return nil }
func (f *fakeProcess) isRunnable() bool   { return f.runnable }
func (f *fakeProcess) setRunnable(r bool) { f.runnable = r }
func (f *fakeProcess) isPassive() bool    { return f.passive }

func TestSlotCommitPublishesStagedValue(t *testing.T) {
	st := NewState()
	sig := hdl.NewSignal("sig", 4)
	slot := st.forSignal(sig)

	slot.set(5)
	assert.Equal(t, int64(0), slot.curr, "staging must not publish")

	st.commit()
	assert.Equal(t, int64(5), slot.curr)
}

func TestCommitIgnoresWritesOfTheSameValue(t *testing.T) {
	st := NewState()
	sig := hdl.NewSignal("sig", 4)
	slot := st.forSignal(sig)

	waiter := &fakeProcess{procName: "w"}
	slot.wait(waiter, anyChange())

	slot.set(5)
	slot.set(0)
	awoke := st.commit()

	assert.False(t, awoke)
	assert.False(t, waiter.isRunnable())
	assert.Equal(t, int64(0), slot.curr)
}

func TestWakeupTriggers(t *testing.T) {
	st := NewState()
	sig := hdl.NewSignal("sig", 4)
	slot := st.forSignal(sig)

	onAny := &fakeProcess{procName: "any"}
	onThree := &fakeProcess{procName: "three"}
	slot.wait(onAny, anyChange())
	slot.wait(onThree, onValue(3))

	slot.set(2)
	st.commit()
	assert.True(t, onAny.isRunnable())
	assert.False(t, onThree.isRunnable())

	onAny.setRunnable(false)
	slot.set(3)
	st.commit()
	assert.True(t, onAny.isRunnable())
	assert.True(t, onThree.isRunnable())
}

func TestDuplicateWaitPanics(t *testing.T) {
	st := NewState()
	slot := st.forSignal(hdl.NewSignal("sig", 1))
	p := &fakeProcess{procName: "p"}

	slot.wait(p, anyChange())
	assert.Panics(t, func() { slot.wait(p, anyChange()) })
}

func TestAdvanceWakesNearestDeadlineGroup(t *testing.T) {
	st := NewState()
	early1 := &fakeProcess{procName: "early1"}
	early2 := &fakeProcess{procName: "early2"}
	late := &fakeProcess{procName: "late"}

	st.deadlines[early1] = deadline{at: 3e-6}
	st.deadlines[early2] = deadline{at: 3e-6}
	st.deadlines[late] = deadline{at: 5e-6}

	require.True(t, st.advance())

	assert.Equal(t, VTimeInSec(3e-6), st.timestamp)
	assert.True(t, early1.isRunnable())
	assert.True(t, early2.isRunnable())
	assert.False(t, late.isRunnable())
	assert.Len(t, st.deadlines, 1)
}

func TestAdvancePrefersImmediateDeadlines(t *testing.T) {
	st := NewState()
	settling := &fakeProcess{procName: "settling"}
	timed := &fakeProcess{procName: "timed"}

	st.deadlines[settling] = deadline{immediate: true}
	st.deadlines[timed] = deadline{at: 5e-6}

	require.True(t, st.advance())

	assert.Equal(t, VTimeInSec(0), st.timestamp, "immediate wakeups keep time")
	assert.True(t, settling.isRunnable())
	assert.False(t, timed.isRunnable())
}

func TestAdvanceWithoutDeadlines(t *testing.T) {
	st := NewState()
	assert.False(t, st.advance())
}

func TestAdvancePanicsOnPastDeadline(t *testing.T) {
	st := NewState()
	st.timestamp = 5e-6
	st.deadlines[&fakeProcess{procName: "p"}] = deadline{at: 3e-6}

	assert.Panics(t, func() { st.advance() })
}

func TestResetRestoresSlotsAndTime(t *testing.T) {
	st := NewState()
	sig := hdl.NewSignal("sig", 4).WithReset(7)
	slot := st.forSignal(sig)

	slot.set(12)
	st.commit()
	st.timestamp = 1e-6
	st.deadlines[&fakeProcess{procName: "p"}] = deadline{at: 2e-6}

	st.reset()

	assert.Equal(t, int64(7), slot.curr)
	assert.Equal(t, VTimeInSec(0), st.timestamp)
	assert.Empty(t, st.deadlines)
	assert.Empty(t, st.pending)
}

type recordingWriter struct {
	updates []string
	closed  bool
}

func (w *recordingWriter) Update(ts VTimeInSec, signal *hdl.Signal, value int64) {
	w.updates = append(w.updates, signal.Name)
}

func (w *recordingWriter) Close(VTimeInSec) { w.closed = true }

func TestWaveformSessionRules(t *testing.T) {
	st := NewState()
	w := &recordingWriter{}

	require.NoError(t, st.startWaveform(w))
	assert.Error(t, st.startWaveform(&recordingWriter{}),
		"only one session at a time")

	slot := st.forSignal(hdl.NewSignal("sig", 1))
	slot.set(1)
	st.commit()
	assert.Equal(t, []string{"sig"}, w.updates)

	st.finishWaveform()
	assert.True(t, w.closed)

	st.timestamp = 1e-6
	assert.Error(t, st.startWaveform(&recordingWriter{}),
		"cannot start after time advanced")
}
