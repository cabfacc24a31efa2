package simulation

import (
	"os"

	"github.com/pkg/errors"
	"github.com/rs/xid"

	"github.com/modwizcode/amaranth/datarecording"
	"github.com/modwizcode/amaranth/hdl"
	"github.com/modwizcode/amaranth/monitoring"
	"github.com/modwizcode/amaranth/sim"
	"github.com/modwizcode/amaranth/vcd"
)

// Builder can be used to build a simulation.
type Builder struct {
	fragment *hdl.Fragment

	monitorOn   bool
	monitorPort int
	browserOpen bool

	recordingOn    bool
	outputFileName string

	waveformFileName string
	gtkwOn           bool
	traces           []*hdl.Signal
}

// MakeBuilder creates a new builder.
func MakeBuilder() Builder {
	return Builder{}
}

// WithFragment sets the design to simulate.
func (b Builder) WithFragment(f *hdl.Fragment) Builder {
	b.fragment = f
	return b
}

// WithMonitoring enables the monitoring server.
func (b Builder) WithMonitoring() Builder {
	b.monitorOn = true
	return b
}

// WithMonitorPort sets the port number for the monitoring server.
func (b Builder) WithMonitorPort(port int) Builder {
	b.monitorPort = port
	return b
}

// WithBrowserOpen makes the monitoring server open its URL in the default
// browser.
func (b Builder) WithBrowserOpen() Builder {
	b.browserOpen = true
	return b
}

// WithDataRecording records committed value changes into a SQLite database.
func (b Builder) WithDataRecording() Builder {
	b.recordingOn = true
	return b
}

// WithOutputFileName sets the custom output file name for the data
// recorder.
func (b Builder) WithOutputFileName(filename string) Builder {
	b.outputFileName = filename
	return b
}

// WithWaveformFileName writes a value change dump to the named file.
func (b Builder) WithWaveformFileName(filename string) Builder {
	b.waveformFileName = filename
	return b
}

// WithGTKWaveSaveFile also writes a GTKWave save file next to the dump.
func (b Builder) WithGTKWaveSaveFile() Builder {
	b.gtkwOn = true
	return b
}

// WithTraces lists signals in the GTKWave save file.
func (b Builder) WithTraces(signals ...*hdl.Signal) Builder {
	b.traces = append(b.traces, signals...)
	return b
}

func (b Builder) parametersMustBeValid() {
	if b.fragment == nil {
		panic("a fragment must be set before building a simulation")
	}

	if !b.monitorOn && (b.monitorPort != 0 || b.browserOpen) {
		panic("monitor options cannot be set when monitoring is disabled")
	}

	if !b.recordingOn && b.outputFileName != "" {
		panic("output file name cannot be set when recording is disabled")
	}

	if b.gtkwOn && b.waveformFileName == "" {
		panic("a GTKWave save file requires a waveform file name")
	}
}

// Build builds the simulation.
func (b Builder) Build() (*Simulation, error) {
	b.parametersMustBeValid()

	s := &Simulation{}
	s.id = xid.New().String()

	simulator, err := sim.NewSimulator(b.fragment)
	if err != nil {
		return nil, err
	}
	s.simulator = simulator

	var sinks []sim.WaveformWriter

	if b.recordingOn {
		outputPath := b.outputFileName
		if outputPath == "" {
			outputPath = "amaranth_sim_" + s.id
		}
		s.dataRecorder = datarecording.New(outputPath)

		s.runLogger = datarecording.NewRunLogger(s.dataRecorder)
		s.runLogger.Start()

		sinks = append(sinks,
			datarecording.NewWaveSink(s.dataRecorder, simulator.SignalNames()))
	}

	if b.waveformFileName != "" {
		writer, err := b.buildVCDWriter(s, simulator)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, writer)
	}

	if len(sinks) > 0 {
		if err := simulator.BeginWaveform(tee(sinks)); err != nil {
			return nil, err
		}
	}

	if b.monitorOn {
		s.monitor = monitoring.NewMonitor()
		if b.monitorPort > 0 {
			s.monitor.WithPortNumber(b.monitorPort)
		}
		if b.browserOpen {
			s.monitor.WithBrowserOpen()
		}
		s.monitor.RegisterSimulator(simulator)
		s.monitor.StartServer()
	}

	return s, nil
}

func (b Builder) buildVCDWriter(
	s *Simulation,
	simulator *sim.Simulator,
) (*vcd.Writer, error) {
	vcdFile, err := os.Create(b.waveformFileName)
	if err != nil {
		return nil, errors.Wrap(err, "creating waveform file")
	}
	s.waveformFile = vcdFile

	opts := []vcd.Option{vcd.WithTraces(b.traces...)}
	if b.gtkwOn {
		gtkwFile, err := os.Create(b.waveformFileName + ".gtkw")
		if err != nil {
			return nil, errors.Wrap(err, "creating GTKWave save file")
		}
		s.gtkwFile = gtkwFile
		opts = append(opts, vcd.WithGTKW(gtkwFile, b.waveformFileName))
	}

	return vcd.NewWriter(vcdFile, simulator.SignalNames(), opts...)
}

// tee fans committed value changes out to several sinks.
type tee []sim.WaveformWriter

func (t tee) Update(timestamp sim.VTimeInSec, signal *hdl.Signal, value int64) {
	for _, w := range t {
		w.Update(timestamp, signal, value)
	}
}

func (t tee) Close(timestamp sim.VTimeInSec) {
	for _, w := range t {
		w.Close(timestamp)
	}
}
