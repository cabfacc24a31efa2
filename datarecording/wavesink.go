package datarecording

import (
	"sort"
	"strings"

	"github.com/modwizcode/amaranth/hdl"
	"github.com/modwizcode/amaranth/sim"
)

// SignalEntry describes one design signal in the signals table.
type SignalEntry struct {
	SignalID int
	Name     string
	Width    int
	Signed   bool
	Reset    int64
}

// ValueChangeEntry is one committed value change in the value_changes table.
type ValueChangeEntry struct {
	TimeInSec float64
	SignalID  int
	Value     int64
}

// A WaveSink records committed value changes through a DataRecorder. It
// implements sim.WaveformWriter.
type WaveSink struct {
	recorder  DataRecorder
	signalIDs map[*hdl.Signal]int
}

// NewWaveSink creates a WaveSink, declaring every named signal in the
// signals table under its first hierarchical name.
func NewWaveSink(recorder DataRecorder, names sim.SignalNames) *WaveSink {
	s := &WaveSink{
		recorder:  recorder,
		signalIDs: make(map[*hdl.Signal]int),
	}

	type namedSignal struct {
		name   string
		signal *hdl.Signal
	}

	ordered := make([]namedSignal, 0, len(names))
	for signal, signalNames := range names {
		name := strings.Join(signalNames[0], ".")
		for _, n := range signalNames[1:] {
			if joined := strings.Join(n, "."); joined < name {
				name = joined
			}
		}
		ordered = append(ordered, namedSignal{name: name, signal: signal})
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].name < ordered[j].name
	})

	recorder.CreateTable("signals", SignalEntry{})
	recorder.CreateTable("value_changes", ValueChangeEntry{})

	for i, ns := range ordered {
		s.signalIDs[ns.signal] = i
		recorder.InsertData("signals", SignalEntry{
			SignalID: i,
			Name:     ns.name,
			Width:    ns.signal.Shape().Width,
			Signed:   ns.signal.Shape().Signed,
			Reset:    ns.signal.Reset,
		})
	}

	return s
}

// Update records a committed value change. Changes of signals the design
// walker never named are ignored.
func (s *WaveSink) Update(timestamp sim.VTimeInSec, signal *hdl.Signal, value int64) {
	id, ok := s.signalIDs[signal]
	if !ok {
		return
	}

	s.recorder.InsertData("value_changes", ValueChangeEntry{
		TimeInSec: float64(timestamp),
		SignalID:  id,
		Value:     value,
	})
}

// Close flushes buffered changes.
func (s *WaveSink) Close(timestamp sim.VTimeInSec) {
	s.recorder.Flush()
}
