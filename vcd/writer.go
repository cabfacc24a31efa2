// Package vcd implements the reference waveform sink: a value-change-dump
// writer with a fixed resolution of 100 ps per timestamp unit, optionally
// paired with a GTKWave save file listing traced signals.
package vcd

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/modwizcode/amaranth/hdl"
	"github.com/modwizcode/amaranth/sim"
)

// timestampToVCD converts an engine timestamp in seconds to VCD time units
// of 100 ps.
func timestampToVCD(t sim.VTimeInSec) uint64 {
	return uint64(math.Round(float64(t) * 1e10))
}

// decodeToVCD renders a decoder-backed signal value as a VCD string token.
func decodeToVCD(signal *hdl.Signal, value int64) string {
	return strings.ReplaceAll(signal.Decoder(value), " ", "_")
}

// A variable is one declared VCD var. A signal may appear as several
// variables, one per hierarchical display name.
type variable struct {
	id     string
	signal *hdl.Signal
}

// A Writer emits a value change dump. It implements sim.WaveformWriter.
type Writer struct {
	out *bufio.Writer
	err error

	vars     map[*hdl.Signal][]variable
	gtkw     *saveFile
	lastTime uint64
	headered bool
}

// An Option adjusts NewWriter.
type Option func(*options)

type options struct {
	gtkwOut      io.Writer
	dumpfileName string
	traces       []*hdl.Signal
}

// WithGTKW also produces a GTKWave save file referring to the dump by
// dumpfileName.
func WithGTKW(out io.Writer, dumpfileName string) Option {
	return func(o *options) {
		o.gtkwOut = out
		o.dumpfileName = dumpfileName
	}
}

// WithTraces lists signals in the GTKWave save file. A trace signal the
// design walker never named is displayed under the root scope.
func WithTraces(signals ...*hdl.Signal) Option {
	return func(o *options) {
		o.traces = append(o.traces, signals...)
	}
}

// NewWriter creates a Writer declaring one variable per hierarchical name
// in names, and writes the dump header and initial values.
func NewWriter(out io.Writer, names sim.SignalNames, opts ...Option) (*Writer, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	w := &Writer{
		out:  bufio.NewWriter(out),
		vars: make(map[*hdl.Signal][]variable),
	}

	scope := newScope("")
	for signal, signalNames := range names {
		for _, name := range signalNames {
			scope.insert(name, signal)
		}
	}
	for _, trace := range o.traces {
		if _, ok := names[trace]; !ok {
			scope.insert([]string{"top", trace.Name}, trace)
		}
	}

	ids := &idAllocator{}
	firstNames := make(map[*hdl.Signal]string)
	scope.assign(ids, nil, w.vars, firstNames)

	if err := w.writeHeader(scope); err != nil {
		return nil, err
	}

	if o.gtkwOut != nil {
		w.gtkw = &saveFile{
			out:          o.gtkwOut,
			dumpfileName: o.dumpfileName,
			traces:       o.traces,
			names:        firstNames,
		}
	}

	return w, nil
}

func (w *Writer) writeHeader(root *scope) error {
	fmt.Fprintln(w.out, "$comment Generated by amaranth sim $end")
	fmt.Fprintln(w.out, "$timescale 100 ps $end")
	root.declare(w.out)
	fmt.Fprintln(w.out, "$enddefinitions $end")

	fmt.Fprintln(w.out, "$dumpvars")
	root.walk(func(v variable) {
		w.emitChange(v, v.signal.Reset)
	})
	fmt.Fprintln(w.out, "$end")

	return w.flushErr()
}

func (w *Writer) flushErr() error {
	if err := w.out.Flush(); err != nil && w.err == nil {
		w.err = errors.Wrap(err, "writing vcd")
	}
	return w.err
}

func (w *Writer) emitChange(v variable, value int64) {
	if v.signal.Decoder != nil {
		fmt.Fprintf(w.out, "s%s %s\n", decodeToVCD(v.signal, value), v.id)
		return
	}
	bits := uint64(value) & uint64(v.signal.Shape().Mask())
	fmt.Fprintf(w.out, "b%s %s\n", strconv.FormatUint(bits, 2), v.id)
}

// Update records a committed value change. Changes of signals that were
// never declared are ignored.
func (w *Writer) Update(timestamp sim.VTimeInSec, signal *hdl.Signal, value int64) {
	vars, ok := w.vars[signal]
	if !ok {
		return
	}

	t := timestampToVCD(timestamp)
	if !w.headered || t != w.lastTime {
		fmt.Fprintf(w.out, "#%d\n", t)
		w.lastTime = t
		w.headered = true
	}
	for _, v := range vars {
		w.emitChange(v, value)
	}
}

// Close finalizes the dump at the given time and writes the companion save
// file, if any.
func (w *Writer) Close(timestamp sim.VTimeInSec) {
	t := timestampToVCD(timestamp)
	if !w.headered || t > w.lastTime {
		fmt.Fprintf(w.out, "#%d\n", t)
	}
	if w.flushErr() != nil {
		return
	}
	if w.gtkw != nil {
		if err := w.gtkw.write(); err != nil && w.err == nil {
			w.err = err
		}
	}
}

// Err returns the first error encountered while writing, if any. The
// sim.WaveformWriter contract carries no error returns, so failures are
// collected here.
func (w *Writer) Err() error {
	return w.err
}

// idAllocator hands out compact VCD identifier codes.
type idAllocator struct {
	next int
}

const idFirst, idLast = '!', '~'

func (a *idAllocator) allocate() string {
	n := a.next
	a.next++
	var b []byte
	for {
		b = append(b, byte(idFirst+n%(idLast-idFirst+1)))
		n = n/(idLast-idFirst+1) - 1
		if n < 0 {
			break
		}
	}
	return string(b)
}

// A scope is one level of the VCD hierarchy.
type scope struct {
	name     string
	children map[string]*scope
	vars     map[string]*hdl.Signal
	varIDs   map[string]string
	used     map[string]bool
}

func newScope(name string) *scope {
	return &scope{
		name:     name,
		children: make(map[string]*scope),
		vars:     make(map[string]*hdl.Signal),
		varIDs:   make(map[string]string),
		used:     make(map[string]bool),
	}
}

// insert places a signal at the given hierarchical name, disambiguating
// colliding leaf names with a $n suffix.
func (s *scope) insert(name []string, signal *hdl.Signal) {
	if len(name) > 1 {
		child, ok := s.children[name[0]]
		if !ok {
			child = newScope(name[0])
			s.children[name[0]] = child
		}
		child.insert(name[1:], signal)
		return
	}

	leaf := name[0]
	for suffix := 1; s.used[leaf]; suffix++ {
		leaf = fmt.Sprintf("%s$%d", name[0], suffix)
	}
	s.used[leaf] = true
	s.vars[leaf] = signal
}

func (s *scope) sortedChildren() []*scope {
	children := make([]*scope, 0, len(s.children))
	for _, c := range s.children {
		children = append(children, c)
	}
	sort.Slice(children, func(i, j int) bool {
		return children[i].name < children[j].name
	})
	return children
}

func (s *scope) sortedVarNames() []string {
	varNames := make([]string, 0, len(s.vars))
	for n := range s.vars {
		varNames = append(varNames, n)
	}
	sort.Strings(varNames)
	return varNames
}

// assign allocates identifier codes in a deterministic order and fills the
// per-signal variable lists. firstNames keeps the first dotted display name
// of each signal for the save file.
func (s *scope) assign(
	ids *idAllocator,
	path []string,
	vars map[*hdl.Signal][]variable,
	firstNames map[*hdl.Signal]string,
) {
	for _, leaf := range s.sortedVarNames() {
		signal := s.vars[leaf]
		v := variable{id: ids.allocate(), signal: signal}
		s.varIDs[leaf] = v.id
		vars[signal] = append(vars[signal], v)
		if _, ok := firstNames[signal]; !ok {
			firstNames[signal] = strings.Join(append(append([]string{}, path...), leaf), ".")
		}
	}
	for _, child := range s.sortedChildren() {
		child.assign(ids, append(path, child.name), vars, firstNames)
	}
}

// declare writes the scope tree declarations. Must run after assign so
// identifier codes are available.
func (s *scope) declare(out io.Writer) {
	for _, leaf := range s.sortedVarNames() {
		signal := s.vars[leaf]
		if signal.Decoder != nil {
			fmt.Fprintf(out, "$var string 1 %s %s $end\n", s.varIDs[leaf], leaf)
		} else {
			fmt.Fprintf(out, "$var wire %d %s %s $end\n",
				signal.Shape().Width, s.varIDs[leaf], leaf)
		}
	}
	for _, child := range s.sortedChildren() {
		fmt.Fprintf(out, "$scope module %s $end\n", child.name)
		child.declare(out)
		fmt.Fprintln(out, "$upscope $end")
	}
}

// walk visits every declared variable in declaration order.
func (s *scope) walk(fn func(variable)) {
	for _, leaf := range s.sortedVarNames() {
		fn(variable{id: s.varIDs[leaf], signal: s.vars[leaf]})
	}
	for _, child := range s.sortedChildren() {
		child.walk(fn)
	}
}
