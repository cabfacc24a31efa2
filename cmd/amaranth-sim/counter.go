package main

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/modwizcode/amaranth/hdl"
	"github.com/modwizcode/amaranth/sim"
	"github.com/modwizcode/amaranth/simulation"
)

var counterFlags = struct {
	cycles      uint64
	vcdFileName string
	gtkw        bool
	dbFileName  string
	record      bool
	monitor     bool
	monitorPort int
	openBrowser bool
	logDelta    bool
}{}

var counterCmd = &cobra.Command{
	Use:   "counter",
	Short: "Simulate a 4-bit counter with a parity output.",
	Long: `Simulate a 4-bit counter clocked at 1 MHz. The counter increments ` +
		`every rising clock edge and a combinational output carries the ` +
		`parity of the count.`,
	RunE: runCounter,
}

func init() {
	counterCmd.Flags().Uint64Var(&counterFlags.cycles, "cycles", 32,
		"number of clock cycles to simulate")
	counterCmd.Flags().StringVar(&counterFlags.vcdFileName, "vcd", "",
		"write a value change dump to this file")
	counterCmd.Flags().BoolVar(&counterFlags.gtkw, "gtkw", false,
		"also write a GTKWave save file next to the dump")
	counterCmd.Flags().BoolVar(&counterFlags.record, "record", false,
		"record value changes into a SQLite database")
	counterCmd.Flags().StringVar(&counterFlags.dbFileName, "db", "",
		"database file name for recording")
	counterCmd.Flags().BoolVar(&counterFlags.monitor, "monitor", false,
		"start the monitoring server")
	counterCmd.Flags().IntVar(&counterFlags.monitorPort, "monitor-port", 0,
		"port number for the monitoring server")
	counterCmd.Flags().BoolVar(&counterFlags.openBrowser, "open-browser", false,
		"open the monitor URL in the default browser")
	counterCmd.Flags().BoolVar(&counterFlags.logDelta, "log-delta", false,
		"log every delta round to stderr")

	rootCmd.AddCommand(counterCmd)
}

// counterDesign builds the demonstration design: a 4-bit counter in the
// sync domain and a combinational parity output.
func counterDesign() (*hdl.Fragment, *hdl.Signal, *hdl.Signal) {
	count := hdl.NewSignal("count", 4)
	parity := hdl.NewSignal("parity", 1)

	fragment := hdl.NewFragment().
		AddDomain(hdl.NewClockDomain("sync")).
		AddStatements("sync", count.Eq(hdl.Add(count, hdl.C(1, 1)))).
		AddStatements("", parity.Eq(hdl.ReduceXor(count)))

	return fragment, count, parity
}

func runCounter(cmd *cobra.Command, args []string) error {
	fragment, count, parity := counterDesign()

	builder := simulation.MakeBuilder().
		WithFragment(fragment)

	if counterFlags.vcdFileName != "" {
		builder = builder.
			WithWaveformFileName(counterFlags.vcdFileName).
			WithTraces(count, parity)
		if counterFlags.gtkw {
			builder = builder.WithGTKWaveSaveFile()
		}
	}

	if counterFlags.record {
		builder = builder.WithDataRecording()
		if counterFlags.dbFileName != "" {
			builder = builder.WithOutputFileName(counterFlags.dbFileName)
		}
	}

	if counterFlags.monitor {
		builder = builder.WithMonitoring()
		port := counterFlags.monitorPort
		if port == 0 {
			port = monitorPortFromEnv()
		}
		if port > 0 {
			builder = builder.WithMonitorPort(port)
		}
		if counterFlags.openBrowser {
			builder = builder.WithBrowserOpen()
		}
	}

	s, err := builder.Build()
	if err != nil {
		return err
	}
	defer s.Terminate()

	simulator := s.Simulator()

	if counterFlags.logDelta {
		logger := log.New(cmd.ErrOrStderr(), "delta ", 0)
		simulator.AcceptHook(sim.NewDeltaLogger(logger, simulator))
	}

	period := (1 * sim.MHz).Period()
	if err := simulator.AddClock(period); err != nil {
		return err
	}

	simulator.AddSyncProcess(func(p *sim.Proc) error {
		for cycle := uint64(0); cycle < counterFlags.cycles; cycle++ {
			fmt.Fprintf(cmd.OutOrStdout(), "cycle %3d: count=%2d parity=%d\n",
				cycle, p.Get(count), p.Get(parity))
			p.Tick("sync")
		}
		return nil
	}, "sync")

	deadline := sim.VTimeInSec(float64(counterFlags.cycles)+1) * period
	return simulator.RunUntil(deadline, false)
}

func monitorPortFromEnv() int {
	portStr := os.Getenv("AMARANTH_MONITOR_PORT")
	if portStr == "" {
		return 0
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		fmt.Fprintf(os.Stderr,
			"Ignoring invalid AMARANTH_MONITOR_PORT %q\n", portStr)
		return 0
	}

	return port
}
