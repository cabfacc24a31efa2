package sim

import "github.com/modwizcode/amaranth/hdl"

// clockBody builds the driver process for a domain clock: wait out the
// phase, sample the clock's live value, then toggle forever at half-period
// intervals. Sampling first keeps the driver correct if it is added after
// the clock signal was manipulated, or if the clock resets high.
func clockBody(domain *hdl.ClockDomain, halfPeriod, phase VTimeInSec) ProcessFunc {
	return func(p *Proc) error {
		p.Passive()
		p.Delay(phase)

		initial := p.Get(domain.Clk)
		toggled := ^initial & 1

		for {
			p.Set(domain.Clk, toggled)
			p.Delay(halfPeriod)
			p.Set(domain.Clk, initial)
			p.Delay(halfPeriod)
		}
	}
}
