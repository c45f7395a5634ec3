package attestation

// NonceCache is a bounded set of observed nonces with FIFO eviction,
// giving O(1) membership via the set and O(1) amortized eviction via the
// order slice.
type NonceCache struct {
	set     map[[32]byte]struct{}
	order   []([32]byte)
	maxSize int
}

// NewNonceCache constructs an empty cache bounded to maxSize entries.
func NewNonceCache(maxSize int) *NonceCache {
	return &NonceCache{
		set:     make(map[[32]byte]struct{}),
		maxSize: maxSize,
	}
}

// Contains reports whether the nonce has already been observed.
func (c *NonceCache) Contains(nonce [32]byte) bool {
	_, ok := c.set[nonce]
	return ok
}

// Insert records a nonce as observed, evicting the oldest entry if the
// cache is at capacity. It reports whether the nonce was newly inserted
// (false if it was already present).
func (c *NonceCache) Insert(nonce [32]byte) bool {
	if c.Contains(nonce) {
		return false
	}
	for len(c.order) >= c.maxSize && c.maxSize > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.set, oldest)
	}
	c.set[nonce] = struct{}{}
	c.order = append(c.order, nonce)
	return true
}

func (c *NonceCache) Len() int      { return len(c.order) }
func (c *NonceCache) IsEmpty() bool { return len(c.order) == 0 }

func (c *NonceCache) Clear() {
	c.set = make(map[[32]byte]struct{})
	c.order = nil
}
