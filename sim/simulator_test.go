package sim

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/pkg/errors"

	"github.com/modwizcode/amaranth/hdl"
)

// buildCounter elaborates the test design: a 4-bit counter in the sync
// domain and a combinational parity output.
func buildCounter() (*hdl.Fragment, *hdl.Signal, *hdl.Signal) {
	count := hdl.NewSignal("count", 4)
	parity := hdl.NewSignal("parity", 1)
	fragment := hdl.NewFragment().
		AddDomain(hdl.NewClockDomain("sync")).
		AddStatements("sync", count.Eq(hdl.Add(count, hdl.C(1, 1)))).
		AddStatements("", parity.Eq(hdl.ReduceXor(count)))
	return fragment, count, parity
}

var _ = Describe("Simulator", func() {
	var (
		s      *Simulator
		count  *hdl.Signal
		parity *hdl.Signal
	)

	BeforeEach(func() {
		var fragment *hdl.Fragment
		fragment, count, parity = buildCounter()

		var err error
		s, err = NewSimulator(fragment)
		Expect(err).ToNot(HaveOccurred())
	})

	It("should compile one process per statement group", func() {
		var names []string
		for _, status := range s.ProcessStatuses() {
			names = append(names, status.Name)
		}

		Expect(names).To(ContainElements("top.<sync>", "top.<comb>"))
	})

	It("should name signals hierarchically", func() {
		Expect(s.SignalNames()[count]).To(ContainElement([]string{"top", "count"}))
	})

	It("should settle combinational logic without advancing time", func() {
		_, err := s.Step()
		Expect(err).ToNot(HaveOccurred())

		Expect(s.Peek(parity)).To(Equal(int64(0)))
		Expect(s.CurrentTime()).To(Equal(VTimeInSec(0)))
	})

	It("should settle to an idempotent fixpoint", func() {
		rec := &commitRecorder{}
		s.AcceptHook(rec)

		Expect(s.settle()).To(Succeed())
		Expect(rec.changes[len(rec.changes)-1]).To(BeFalse(),
			"settle ends on a quiet round")
		settled := s.Peek(parity)

		rec.changes = nil
		Expect(s.settle()).To(Succeed())
		Expect(rec.changes).To(Equal([]bool{false}),
			"re-settling at the same instant commits no changes")
		Expect(s.Peek(parity)).To(Equal(settled))
	})

	It("should generate the first clock edge at half the period", func() {
		Expect(s.AddClock(1e-6)).To(Succeed())
		clk := s.domains["sync"].Clk

		_, err := s.Step()
		Expect(err).ToNot(HaveOccurred())
		Expect(s.Peek(clk)).To(Equal(int64(0)))
		Expect(s.CurrentTime()).To(BeNumerically("~", 0.5e-6, 1e-15))

		_, err = s.Step()
		Expect(err).ToNot(HaveOccurred())
		Expect(s.Peek(clk)).To(Equal(int64(1)))
		Expect(s.Peek(count)).To(Equal(int64(1)))
		Expect(s.Peek(parity)).To(Equal(int64(1)))
	})

	It("should deliver ticks to sync testbenches", func() {
		Expect(s.AddClock(1e-6)).To(Succeed())

		var observed []int64
		s.AddSyncProcess(func(p *Proc) error {
			for i := 0; i < 10; i++ {
				observed = append(observed, p.Get(count))
				p.Tick("sync")
			}
			return nil
		}, "sync")

		Expect(s.Run()).To(Succeed())

		Expect(observed).To(Equal(
			[]int64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}))
	})

	It("should tick the domain when a sync testbench yields no command", func() {
		Expect(s.AddClock(1e-6)).To(Succeed())

		var observed []int64
		s.AddSyncProcess(func(p *Proc) error {
			for i := 0; i < 3; i++ {
				observed = append(observed, p.Get(count))
				_, err := p.Yield(nil)
				Expect(err).ToNot(HaveOccurred())
			}
			return nil
		}, "sync")

		Expect(s.Run()).To(Succeed())
		Expect(observed).To(Equal([]int64{0, 1, 2}))
	})

	It("should count modulo the register width", func() {
		Expect(s.AddClock(1e-6)).To(Succeed())

		Expect(s.RunUntil(20.25e-6, true)).To(Succeed())

		Expect(s.Peek(count)).To(Equal(int64(4)), "20 edges wrap to 20 mod 16")
	})

	It("should restart cleanly on reset", func() {
		Expect(s.AddClock(1e-6)).To(Succeed())

		runSteps := func(n int) {
			for i := 0; i < n; i++ {
				_, err := s.Step()
				Expect(err).ToNot(HaveOccurred())
			}
		}

		runSteps(4)
		firstRun := s.Peek(count)
		Expect(firstRun).To(Equal(int64(2)))

		s.Reset()
		Expect(s.Peek(count)).To(Equal(int64(0)))
		Expect(s.CurrentTime()).To(Equal(VTimeInSec(0)))

		runSteps(4)
		Expect(s.Peek(count)).To(Equal(firstRun))
	})

	It("should refuse deadlines in the past", func() {
		Expect(s.AddClock(1e-6)).To(Succeed())
		Expect(s.RunUntil(1e-6, true)).To(Succeed())

		err := s.RunUntil(0.1e-6, true)
		Expect(err).To(HaveOccurred())
	})

	It("should reject clocks for unknown domains", func() {
		err := s.AddClock(1e-6, WithClockDomain("pixel"))
		Expect(err).To(HaveOccurred())

		err = s.AddClock(1e-6, WithClockDomain("pixel"), IfExists())
		Expect(err).ToNot(HaveOccurred())
	})

	It("should reject a second clock on the same domain", func() {
		Expect(s.AddClock(1e-6)).To(Succeed())
		Expect(s.AddClock(2e-6)).To(HaveOccurred())
	})

	It("should fail the run when a testbench ticks an unknown domain", func() {
		Expect(s.AddClock(1e-6)).To(Succeed())

		s.AddSyncProcess(func(p *Proc) error {
			return nil
		}, "pixel")

		err := s.Run()
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("nonexistent domain"))
	})

	It("should report unsupported commands into the body", func() {
		var yieldErr error
		s.AddProcess(func(p *Proc) error {
			_, yieldErr = p.Yield(42)
			return nil
		})

		Expect(s.Run()).To(Succeed())
		Expect(errors.Cause(yieldErr)).To(Equal(ErrUnsupportedCommand))
	})

	It("should invoke hooks around delta rounds", func() {
		hook := &countingHook{}
		s.AcceptHook(hook)

		_, err := s.Step()
		Expect(err).ToNot(HaveOccurred())

		Expect(hook.before).To(BeNumerically(">", 0))
		Expect(hook.after).To(Equal(hook.before))
	})

	It("should refuse waveform sessions after time advanced", func() {
		Expect(s.AddClock(1e-6)).To(Succeed())
		_, err := s.Step()
		Expect(err).ToNot(HaveOccurred())

		w := &recordingWriter{}
		Expect(s.BeginWaveform(w)).ToNot(Succeed())
		Expect(w.closed).To(BeTrue())
	})
})

var _ = Describe("Simulator with generic testbenches", func() {
	var (
		s      *Simulator
		a, b   *hdl.Signal
		xorOut *hdl.Signal
	)

	BeforeEach(func() {
		a = hdl.NewSignal("a", 1)
		b = hdl.NewSignal("b", 1)
		xorOut = hdl.NewSignal("xor_out", 1)
		fragment := hdl.NewFragment().
			AddStatements("", xorOut.Eq(hdl.Xor(a, b)))

		var err error
		s, err = NewSimulator(fragment)
		Expect(err).ToNot(HaveOccurred())
	})

	It("should re-settle combinational logic after writes", func() {
		var observed []int64
		s.AddProcess(func(p *Proc) error {
			p.Set(a, 1)
			p.Settle()
			observed = append(observed, p.Get(xorOut))

			p.Set(b, 1)
			p.Settle()
			observed = append(observed, p.Get(xorOut))
			return nil
		})

		Expect(s.Run()).To(Succeed())
		Expect(observed).To(Equal([]int64{1, 0}))
	})

	It("should keep running for active processes only", func() {
		s.AddProcess(func(p *Proc) error {
			p.Passive()
			for {
				p.Settle()
			}
		})

		// The passive looper alone must not keep the run alive.
		Expect(s.Run()).To(Succeed())
	})

	It("should propagate testbench failures", func() {
		boom := errors.New("boom")
		s.AddProcess(func(p *Proc) error {
			p.Settle()
			return boom
		})

		Expect(s.Run()).To(MatchError(boom))
	})
})

type commitRecorder struct {
	changes []bool
}

func (h *commitRecorder) Func(ctx HookCtx) {
	if ctx.Pos == HookPosAfterCommit {
		h.changes = append(h.changes, ctx.Detail.(bool))
	}
}

type countingHook struct {
	before int
	after  int
}

func (h *countingHook) Func(ctx HookCtx) {
	switch ctx.Pos {
	case HookPosBeforeDelta:
		h.before++
	case HookPosAfterCommit:
		h.after++
	}
}
