package sim

import "github.com/pkg/errors"

// ErrUnimplemented reports a circuit construct the compiler does not lower:
// an unknown operator or statement kind, or a formal verification directive
// (assert, assume, cover). It is never ignored silently.
var ErrUnimplemented = errors.New("unimplemented construct")

// ErrUnsupportedCommand reports a value yielded by a testbench process that
// is not part of the command vocabulary.
var ErrUnsupportedCommand = errors.New("unsupported command")
