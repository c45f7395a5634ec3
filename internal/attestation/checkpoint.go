package attestation

import (
	"bytes"

	"lukechampine.com/blake3"
)

// Checkpoint is one link in an execution attestation's hash chain.
type Checkpoint struct {
	Sequence uint64
	Hash     [32]byte
	PrevHash *[32]byte
}

func blake3Sum(data []byte) [32]byte {
	return blake3.Sum256(data)
}

// CheckpointChain incrementally builds a checkpoint chain as payloads
// are appended: checkpoint 0 hashes BLAKE3(payload0) with no prev_hash;
// checkpoint i>0 hashes BLAKE3(payload_i || checkpoints[i-1].hash) and
// carries prev_hash = checkpoints[i-1].hash.
type CheckpointChain struct {
	checkpoints []Checkpoint
}

// NewCheckpointChain starts a chain with an initial payload as
// checkpoint 0.
func NewCheckpointChain(payload []byte) *CheckpointChain {
	c := &CheckpointChain{}
	hash := blake3Sum(payload)
	c.checkpoints = append(c.checkpoints, Checkpoint{Sequence: 0, Hash: hash})
	return c
}

// AddCheckpoint appends the next payload to the chain.
func (c *CheckpointChain) AddCheckpoint(payload []byte) {
	prev := c.checkpoints[len(c.checkpoints)-1]
	prevHash := prev.Hash
	buf := make([]byte, 0, len(payload)+32)
	buf = append(buf, payload...)
	buf = append(buf, prevHash[:]...)
	hash := blake3Sum(buf)
	c.checkpoints = append(c.checkpoints, Checkpoint{
		Sequence: uint64(len(c.checkpoints)),
		Hash:     hash,
		PrevHash: &prevHash,
	})
}

// IntoCheckpoints returns the accumulated checkpoint sequence.
func (c *CheckpointChain) IntoCheckpoints() []Checkpoint {
	out := make([]Checkpoint, len(c.checkpoints))
	copy(out, c.checkpoints)
	return out
}

// VerifyChain recomputes a single checkpoint's hash from its payload and
// the preceding checkpoint's hash, comparing bytewise against the
// checkpoint's stored hash — used to detect tampering in a presented
// chain plus original payload data.
func VerifyChain(checkpoint Checkpoint, previous Checkpoint, payload []byte) bool {
	prevHash := previous.Hash
	buf := make([]byte, 0, len(payload)+32)
	buf = append(buf, payload...)
	buf = append(buf, prevHash[:]...)
	recomputed := blake3Sum(buf)
	return bytes.Equal(recomputed[:], checkpoint.Hash[:])
}

// VerifyFirstCheckpoint recomputes checkpoint 0's hash directly from its
// payload.
func VerifyFirstCheckpoint(checkpoint Checkpoint, payload []byte) bool {
	recomputed := blake3Sum(payload)
	return bytes.Equal(recomputed[:], checkpoint.Hash[:])
}

// SequenceIsContiguous reports whether checkpoints carry sequence
// numbers 0..n contiguously in order.
func SequenceIsContiguous(checkpoints []Checkpoint) bool {
	for i, cp := range checkpoints {
		if cp.Sequence != uint64(i) {
			return false
		}
	}
	return true
}
