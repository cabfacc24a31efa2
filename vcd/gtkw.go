package vcd

import (
	"fmt"
	"io"

	"github.com/pkg/errors"

	"github.com/modwizcode/amaranth/hdl"
)

// A saveFile accumulates what is needed to emit a GTKWave save file once
// the dump is complete.
type saveFile struct {
	out          io.Writer
	dumpfileName string
	traces       []*hdl.Signal
	names        map[*hdl.Signal]string
}

func (s *saveFile) write() error {
	if _, err := fmt.Fprintf(s.out, "[dumpfile] \"%s\"\n", s.dumpfileName); err != nil {
		return errors.Wrap(err, "writing gtkw save file")
	}
	fmt.Fprintln(s.out, "[treeopen] top")

	for _, trace := range s.traces {
		name, ok := s.names[trace]
		if !ok {
			continue
		}
		if trace.Decoder != nil || trace.Shape().Width == 1 {
			fmt.Fprintln(s.out, name)
		} else {
			fmt.Fprintf(s.out, "%s[%d:0]\n", name, trace.Shape().Width-1)
		}
	}
	return nil
}
