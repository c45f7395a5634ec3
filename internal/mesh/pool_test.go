package mesh

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddrPoolSkipsNetworkAndBroadcast(t *testing.T) {
	pool := newAddrPoolOfHosts(netip.MustParsePrefix("10.0.0.0/30"))
	// /30 has 4 addresses; network (.0) and broadcast (.3) excluded, 2 usable hosts.
	assert.Equal(t, 2, pool.free.Len())

	first, ok := pool.allocate()
	require.True(t, ok)
	assert.Equal(t, "10.0.0.1", first.String())

	second, ok := pool.allocate()
	require.True(t, ok)
	assert.Equal(t, "10.0.0.2", second.String())

	_, ok = pool.allocate()
	assert.False(t, ok, "pool should be exhausted")
}

func TestAddrPoolAllocatesInAscendingOrder(t *testing.T) {
	pool := newAddrPoolOfHosts(netip.MustParsePrefix("10.0.0.0/28"))
	var last netip.Addr
	for i := 0; i < 14; i++ {
		addr, ok := pool.allocate()
		require.True(t, ok)
		if last.IsValid() {
			assert.True(t, addrUint32(last) < addrUint32(addr))
		}
		last = addr
	}
}

func TestAddrPoolReleaseMakesAddressAllocatableAgain(t *testing.T) {
	pool := newAddrPoolOfHosts(netip.MustParsePrefix("10.0.0.0/29"))
	a, _ := pool.allocate()
	b, _ := pool.allocate()
	pool.release(a)

	next, ok := pool.allocate()
	require.True(t, ok)
	assert.Equal(t, a, next, "released address should be reallocated before untouched higher addresses")
	assert.NotEqual(t, b, next)
}

func TestSubnetPoolCarvesDisjointChildren(t *testing.T) {
	sp := newSubnetPool(netip.MustParsePrefix("10.200.0.0/22"), 24)
	assert.Equal(t, 4, sp.free.Len())

	seen := make(map[string]bool)
	for i := 0; i < 4; i++ {
		sub, ok := sp.allocate()
		require.True(t, ok)
		assert.False(t, seen[sub.String()], "subnet allocated twice: %s", sub)
		seen[sub.String()] = true
	}
	_, ok := sp.allocate()
	assert.False(t, ok)
}

func TestSubnetPoolReleaseAndReallocate(t *testing.T) {
	sp := newSubnetPool(netip.MustParsePrefix("10.200.0.0/23"), 24)
	first, _ := sp.allocate()
	second, _ := sp.allocate()
	sp.release(first)

	reallocated, ok := sp.allocate()
	require.True(t, ok)
	assert.Equal(t, first, reallocated)
	assert.NotEqual(t, second, reallocated)
}
