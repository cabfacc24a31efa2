package simulation

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modwizcode/amaranth/datarecording"
	"github.com/modwizcode/amaranth/hdl"
	"github.com/modwizcode/amaranth/sim"
)

func counterFragment() (*hdl.Fragment, *hdl.Signal) {
	count := hdl.NewSignal("count", 4)
	fragment := hdl.NewFragment().
		AddDomain(hdl.NewClockDomain("sync")).
		AddStatements("sync", count.Eq(hdl.Add(count, hdl.C(1, 1))))

	return fragment, count
}

func TestBuildBareSimulation(t *testing.T) {
	fragment, count := counterFragment()

	s, err := MakeBuilder().WithFragment(fragment).Build()
	require.NoError(t, err)
	defer s.Terminate()

	assert.NotEmpty(t, s.ID())
	assert.Nil(t, s.DataRecorder())
	assert.Nil(t, s.Monitor())

	simulator := s.Simulator()
	period := (1 * sim.MHz).Period()
	require.NoError(t, simulator.AddClock(period))
	require.NoError(t, simulator.RunUntil(4*period+period/4, true))

	assert.Equal(t, int64(4), simulator.Peek(count))
}

func TestBuildWritesWaveformFile(t *testing.T) {
	fragment, count := counterFragment()

	vcdPath := filepath.Join(t.TempDir(), "counter.vcd")

	s, err := MakeBuilder().
		WithFragment(fragment).
		WithWaveformFileName(vcdPath).
		WithGTKWaveSaveFile().
		WithTraces(count).
		Build()
	require.NoError(t, err)

	simulator := s.Simulator()
	period := (1 * sim.MHz).Period()
	require.NoError(t, simulator.AddClock(period))
	require.NoError(t, simulator.RunUntil(2*period+period/4, true))

	s.Terminate()

	dump, err := os.ReadFile(vcdPath)
	require.NoError(t, err)
	assert.Contains(t, string(dump), "$timescale 100 ps $end")
	assert.Contains(t, string(dump), "$var wire 4")
	assert.Contains(t, string(dump), "$dumpvars")
	assert.Contains(t, string(dump), "#5000", "first clock edge at half period")
	assert.Contains(t, string(dump), "#15000", "second clock edge")
	assert.Contains(t, string(dump), "b10 ", "count reaches 2")

	save, err := os.ReadFile(vcdPath + ".gtkw")
	require.NoError(t, err)
	assert.Contains(t, string(save), "[dumpfile]")
	assert.Contains(t, string(save), "top.count[3:0]")
}

func TestBuildRecordsValueChanges(t *testing.T) {
	fragment, _ := counterFragment()

	dbPath := filepath.Join(t.TempDir(), "counter")

	s, err := MakeBuilder().
		WithFragment(fragment).
		WithDataRecording().
		WithOutputFileName(dbPath).
		Build()
	require.NoError(t, err)

	simulator := s.Simulator()
	period := (1 * sim.MHz).Period()
	require.NoError(t, simulator.AddClock(period))
	require.NoError(t, simulator.RunUntil(2*period+period/4, true))

	s.Terminate()

	reader := datarecording.NewReader(dbPath + ".sqlite3")
	defer reader.Close()

	reader.MapTable("value_changes", datarecording.ValueChangeEntry{})
	_, total, err := reader.Query(context.Background(), "value_changes",
		datarecording.QueryParams{})
	require.NoError(t, err)
	assert.Greater(t, total, 0)
}

func TestBuildRejectsInconsistentOptions(t *testing.T) {
	fragment, _ := counterFragment()

	assert.Panics(t, func() {
		_, _ = MakeBuilder().Build()
	})
	assert.Panics(t, func() {
		_, _ = MakeBuilder().
			WithFragment(fragment).
			WithMonitorPort(8080).
			Build()
	})
	assert.Panics(t, func() {
		_, _ = MakeBuilder().
			WithFragment(fragment).
			WithGTKWaveSaveFile().
			Build()
	})
	assert.Panics(t, func() {
		_, _ = MakeBuilder().
			WithFragment(fragment).
			WithOutputFileName("out").
			Build()
	})
}
