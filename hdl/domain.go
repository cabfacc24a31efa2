package hdl

// An Edge is a clock transition polarity.
type Edge int

// Clock edge polarities.
const (
	PosEdge Edge = iota
	NegEdge
)

func (e Edge) String() string {
	if e == NegEdge {
		return "neg"
	}
	return "pos"
}

// A ClockDomain groups synchronous logic driven by one clock and, except
// for reset-less domains, one reset signal.
type ClockDomain struct {
	Name string

	// Clk is toggled by a clock driver; registers in the domain update on
	// its active edge.
	Clk *Signal

	// Rst is nil for reset-less domains.
	Rst *Signal

	// ClkEdge selects the active clock edge.
	ClkEdge Edge

	// AsyncReset makes the domain react to the reset edge independently of
	// the clock.
	AsyncReset bool
}

// A DomainOption adjusts a clock domain at construction.
type DomainOption func(*ClockDomain)

// WithAsyncReset makes the domain reset asynchronously.
func WithAsyncReset() DomainOption {
	return func(cd *ClockDomain) { cd.AsyncReset = true }
}

// WithNegEdge clocks the domain on the falling edge.
func WithNegEdge() DomainOption {
	return func(cd *ClockDomain) { cd.ClkEdge = NegEdge }
}

// WithoutReset makes the domain reset-less.
func WithoutReset() DomainOption {
	return func(cd *ClockDomain) { cd.Rst = nil }
}

// NewClockDomain creates a clock domain with freshly allocated clock and
// reset signals. The domain named "sync" keeps the bare signal names "clk"
// and "rst"; other domains prefix them with the domain name.
func NewClockDomain(name string, opts ...DomainOption) *ClockDomain {
	prefix := ""
	if name != "sync" {
		prefix = name + "_"
	}
	cd := &ClockDomain{
		Name: name,
		Clk:  NewSignal(prefix+"clk", 1),
		Rst:  NewSignal(prefix+"rst", 1),
	}
	for _, opt := range opts {
		opt(cd)
	}
	return cd
}

// ClkTrigger returns the clock level that marks the active edge.
func (cd *ClockDomain) ClkTrigger() int64 {
	if cd.ClkEdge == NegEdge {
		return 0
	}
	return 1
}
