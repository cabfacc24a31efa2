package hdl

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSyncDomainUsesBareNames(t *testing.T) {
	cd := NewClockDomain("sync")

	assert.Equal(t, "clk", cd.Clk.Name)
	assert.Equal(t, "rst", cd.Rst.Name)
	assert.Equal(t, int64(1), cd.ClkTrigger())
}

func TestNamedDomainPrefixesSignals(t *testing.T) {
	cd := NewClockDomain("pixel", WithNegEdge(), WithAsyncReset())

	assert.Equal(t, "pixel_clk", cd.Clk.Name)
	assert.Equal(t, "pixel_rst", cd.Rst.Name)
	assert.Equal(t, int64(0), cd.ClkTrigger())
	assert.True(t, cd.AsyncReset)
}

func TestEdgePolarities(t *testing.T) {
	assert.Equal(t, PosEdge, NewClockDomain("sync").ClkEdge)
	assert.Equal(t, NegEdge, NewClockDomain("sync", WithNegEdge()).ClkEdge)
	assert.Equal(t, "pos", PosEdge.String())
	assert.Equal(t, "neg", NegEdge.String())

	// The arithmetic negation helper shares the package namespace with the
	// edge constants.
	assert.Equal(t, Signed(2), Neg(C(1, 1)).Shape())
}

func TestResetlessDomain(t *testing.T) {
	cd := NewClockDomain("sync", WithoutReset())

	assert.Nil(t, cd.Rst)
}

func TestFragmentDomainRegistry(t *testing.T) {
	sync := NewClockDomain("sync")
	pixel := NewClockDomain("pixel")

	child := NewFragment().AddDomain(pixel)
	parent := NewFragment().
		AddDomain(sync).
		AddSubfragment("child", child)

	all := parent.Domains()
	assert.Equal(t, sync, all["sync"])
	assert.Equal(t, pixel, all["pixel"])

	assert.Panics(t, func() { parent.AddDomain(NewClockDomain("sync")) })
}

func TestConflictingDomainRegistrations(t *testing.T) {
	child := NewFragment().AddDomain(NewClockDomain("sync"))
	parent := NewFragment().
		AddDomain(NewClockDomain("sync")).
		AddSubfragment("child", child)

	assert.Panics(t, func() { parent.Domains() })
}
