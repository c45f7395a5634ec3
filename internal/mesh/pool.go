package mesh

import (
	"container/heap"
	"net/netip"
)

// addrHeap is a min-heap of netip.Addr ordered by their 32-bit big-endian
// value, giving O(log n) allocation and release of individual addresses
// from a pool.
type addrHeap []netip.Addr

func (h addrHeap) Len() int { return len(h) }
func (h addrHeap) Less(i, j int) bool {
	return addrUint32(h[i]) < addrUint32(h[j])
}
func (h addrHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *addrHeap) Push(x any) {
	*h = append(*h, x.(netip.Addr))
}

func (h *addrHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

func addrUint32(a netip.Addr) uint32 {
	b := a.As4()
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

// addrPool is a self-contained set of free IPv4 addresses drawn from a
// single prefix, supporting O(log n) allocation and release.
type addrPool struct {
	prefix netip.Prefix
	free   addrHeap
}

// newAddrPoolOfHosts seeds a pool with every usable host address in
// prefix (network and broadcast addresses excluded for prefixes shorter
// than /31).
func newAddrPoolOfHosts(prefix netip.Prefix) *addrPool {
	p := &addrPool{prefix: prefix}
	base := prefix.Masked().Addr()
	bits := prefix.Bits()
	hostBits := 32 - bits
	total := uint32(1) << uint(hostBits)

	var start, end uint32 = 0, total
	if hostBits > 1 {
		start, end = 1, total-1 // skip network and broadcast addresses
	}
	baseVal := addrUint32(base)
	for i := start; i < end; i++ {
		p.free = append(p.free, addrFromUint32(baseVal+i))
	}
	heap.Init(&p.free)
	return p
}

func addrFromUint32(v uint32) netip.Addr {
	return netip.AddrFrom4([4]byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)})
}

// allocate pops and returns the lowest free address, or false if the
// pool is exhausted.
func (p *addrPool) allocate() (netip.Addr, bool) {
	if p.free.Len() == 0 {
		return netip.Addr{}, false
	}
	return heap.Pop(&p.free).(netip.Addr), true
}

// release returns an address to the pool.
func (p *addrPool) release(a netip.Addr) {
	heap.Push(&p.free, a)
}

// subnetPool carves fixed-size subnets (e.g. /24s) out of a larger
// prefix (e.g. a region's /18 workload pool), tracking free subnets by
// their base address for O(log n) allocation.
type subnetPool struct {
	parent    netip.Prefix
	childBits int
	free      addrHeap // base addresses of free child subnets
}

func newSubnetPool(parent netip.Prefix, childBits int) *subnetPool {
	sp := &subnetPool{parent: parent, childBits: childBits}
	base := parent.Masked().Addr()
	parentBits := parent.Bits()
	childCount := uint32(1) << uint(childBits-parentBits)
	childSize := uint32(1) << uint(32-childBits)
	baseVal := addrUint32(base)
	for i := uint32(0); i < childCount; i++ {
		sp.free = append(sp.free, addrFromUint32(baseVal+i*childSize))
	}
	heap.Init(&sp.free)
	return sp
}

func (sp *subnetPool) allocate() (netip.Prefix, bool) {
	if sp.free.Len() == 0 {
		return netip.Prefix{}, false
	}
	base := heap.Pop(&sp.free).(netip.Addr)
	return netip.PrefixFrom(base, sp.childBits), true
}

func (sp *subnetPool) release(p netip.Prefix) {
	heap.Push(&sp.free, p.Masked().Addr())
}
