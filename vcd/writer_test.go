package vcd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modwizcode/amaranth/hdl"
	"github.com/modwizcode/amaranth/sim"
)

func TestWriterEmitsHeaderAndChanges(t *testing.T) {
	count := hdl.NewSignal("count", 4)
	clk := hdl.NewSignal("clk", 1)

	names := sim.SignalNames{
		count: {{"top", "count"}},
		clk:   {{"top", "clk"}},
	}

	var buf bytes.Buffer
	w, err := NewWriter(&buf, names)
	require.NoError(t, err)

	w.Update(0.5e-6, clk, 1)
	w.Update(0.5e-6, count, 9)
	w.Update(1e-6, clk, 0)
	w.Close(1.5e-6)
	require.NoError(t, w.Err())

	out := buf.String()
	assert.Contains(t, out, "$timescale 100 ps $end")
	assert.Contains(t, out, "$scope module top $end")
	assert.Contains(t, out, "$var wire 4")
	assert.Contains(t, out, "$var wire 1")
	assert.Contains(t, out, "$enddefinitions $end")
	assert.Contains(t, out, "$dumpvars")

	// 100 ps resolution: 0.5 us is 5000 units.
	assert.Contains(t, out, "#5000\n")
	assert.Contains(t, out, "b1001 ")
	assert.Contains(t, out, "#10000\n")
	assert.Contains(t, out, "#15000\n")
}

func TestWriterSharesTimestampMarkers(t *testing.T) {
	a := hdl.NewSignal("a", 1)
	b := hdl.NewSignal("b", 1)
	names := sim.SignalNames{a: {{"top", "a"}}, b: {{"top", "b"}}}

	var buf bytes.Buffer
	w, err := NewWriter(&buf, names)
	require.NoError(t, err)

	w.Update(1e-6, a, 1)
	w.Update(1e-6, b, 1)
	w.Close(1e-6)

	assert.Equal(t, 1, strings.Count(buf.String(), "#10000\n"))
}

func TestWriterDisambiguatesCollidingNames(t *testing.T) {
	first := hdl.NewSignal("sig", 1)
	second := hdl.NewSignal("sig", 1)
	names := sim.SignalNames{
		first:  {{"top", "sig"}},
		second: {{"top", "sig"}},
	}

	var buf bytes.Buffer
	_, err := NewWriter(&buf, names)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, " sig $end")
	assert.Contains(t, out, " sig$1 $end")
}

func TestWriterIgnoresUnknownSignals(t *testing.T) {
	known := hdl.NewSignal("known", 1)
	stray := hdl.NewSignal("stray", 1)
	names := sim.SignalNames{known: {{"top", "known"}}}

	var buf bytes.Buffer
	w, err := NewWriter(&buf, names)
	require.NoError(t, err)
	headerLen := buf.Len()

	w.Update(1e-6, stray, 1)
	require.NoError(t, w.Err())

	assert.Equal(t, headerLen, buf.Len())
}

func TestWriterRendersDecodedSignals(t *testing.T) {
	stateNames := []string{"idle state", "busy state"}
	fsm := hdl.NewSignal("fsm", 1).WithDecoder(func(v int64) string {
		return stateNames[v]
	})
	names := sim.SignalNames{fsm: {{"top", "fsm"}}}

	var buf bytes.Buffer
	w, err := NewWriter(&buf, names)
	require.NoError(t, err)

	w.Update(1e-6, fsm, 1)
	w.Close(1e-6)

	out := buf.String()
	assert.Contains(t, out, "$var string 1")
	assert.Contains(t, out, "sidle_state ")
	assert.Contains(t, out, "sbusy_state ")
}

func TestGTKWSaveFile(t *testing.T) {
	count := hdl.NewSignal("count", 4)
	clk := hdl.NewSignal("clk", 1)
	names := sim.SignalNames{
		count: {{"top", "count"}},
		clk:   {{"top", "clk"}},
	}

	var vcdBuf, gtkwBuf bytes.Buffer
	w, err := NewWriter(&vcdBuf, names,
		WithGTKW(&gtkwBuf, "dump.vcd"),
		WithTraces(count, clk))
	require.NoError(t, err)

	w.Close(0)
	require.NoError(t, w.Err())

	out := gtkwBuf.String()
	assert.Contains(t, out, "[dumpfile] \"dump.vcd\"")
	assert.Contains(t, out, "[treeopen] top")
	assert.Contains(t, out, "top.count[3:0]")
	assert.Contains(t, out, "top.clk\n")
}
