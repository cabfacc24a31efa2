// Package simulation assembles a simulator with its recording and
// monitoring services so that a program can set up a run in a few lines.
package simulation

import (
	"os"

	"github.com/modwizcode/amaranth/datarecording"
	"github.com/modwizcode/amaranth/monitoring"
	"github.com/modwizcode/amaranth/sim"
)

// A Simulation provides the services required to run a design.
type Simulation struct {
	id        string
	simulator *sim.Simulator

	dataRecorder datarecording.DataRecorder
	runLogger    *datarecording.RunLogger
	monitor      *monitoring.Monitor

	waveformFile *os.File
	gtkwFile     *os.File
}

// ID returns the unique identifier of this simulation run.
func (s *Simulation) ID() string {
	return s.id
}

// Simulator returns the simulator driving the design.
func (s *Simulation) Simulator() *sim.Simulator {
	return s.simulator
}

// DataRecorder returns the data recorder used in the simulation. It is nil
// unless the simulation was built with data recording.
func (s *Simulation) DataRecorder() datarecording.DataRecorder {
	return s.dataRecorder
}

// Monitor returns the monitor used in the simulation. It is nil unless the
// simulation was built with monitoring.
func (s *Simulation) Monitor() *monitoring.Monitor {
	return s.monitor
}

// Terminate finalizes the waveform output and closes the data recorder.
// It must be called after the run completes.
func (s *Simulation) Terminate() {
	s.simulator.EndWaveform()

	if s.waveformFile != nil {
		s.waveformFile.Close()
	}
	if s.gtkwFile != nil {
		s.gtkwFile.Close()
	}

	if s.runLogger != nil {
		s.runLogger.End()
	}
	if s.dataRecorder != nil {
		s.dataRecorder.Close()
	}
}
