package attestation

import (
	"crypto/ed25519"
	"encoding/binary"
	"fmt"
	"sort"
	"time"

	"github.com/clawbernetes/clawgatewayd/internal/clawid"
)

// GpuInfo describes one GPU as carried in a hardware attestation's
// signed pre-image.
type GpuInfo struct {
	Model             string
	VRAMMiB           uint64
	ComputeCapability string
}

// HardwareAttestation is a node's signed claim about its GPU inventory.
type HardwareAttestation struct {
	NodeID    clawid.NodeId
	GPUs      []GpuInfo
	IssuedAt  time.Time
	ExpiresAt time.Time
	Challenge *Challenge
	Signature []byte
}

func hardwareSigningBytes(nodeID clawid.NodeId, gpus []GpuInfo, issuedAt, expiresAt time.Time, challenge *Challenge) []byte {
	var buf []byte
	idBytes := [16]byte(nodeID)
	buf = append(buf, idBytes[:]...)
	for _, g := range gpus {
		buf = append(buf, []byte(g.Model)...)
		var vram [8]byte
		binary.LittleEndian.PutUint64(vram[:], g.VRAMMiB)
		buf = append(buf, vram[:]...)
		buf = append(buf, []byte(g.ComputeCapability)...)
	}
	var issued, expires [8]byte
	binary.LittleEndian.PutUint64(issued[:], uint64(issuedAt.Unix()))
	binary.LittleEndian.PutUint64(expires[:], uint64(expiresAt.Unix()))
	buf = append(buf, issued[:]...)
	buf = append(buf, expires[:]...)
	if challenge != nil {
		buf = append(buf, challenge.ToSigningBytes()...)
	}
	return buf
}

// CreateAndSignHardwareAttestation builds and signs a hardware
// attestation, optionally binding a challenge into the signed pre-image.
func CreateAndSignHardwareAttestation(nodeID clawid.NodeId, gpus []GpuInfo, validity time.Duration, now time.Time, challenge *Challenge, key KeyPair) HardwareAttestation {
	att := HardwareAttestation{
		NodeID:    nodeID,
		GPUs:      gpus,
		IssuedAt:  now,
		ExpiresAt: now.Add(validity),
		Challenge: challenge,
	}
	att.Signature = key.Sign(hardwareSigningBytes(nodeID, gpus, att.IssuedAt, att.ExpiresAt, challenge))
	return att
}

// VerificationDetails reports what a successful verification observed.
type VerificationDetails struct {
	Kind             string // "hardware" or "execution"
	GPUCount         int
	NotExpired       bool
	CheckpointCount  int
	FinalHash        *[32]byte
}

// VerifyHardwareAttestation checks expiry before signature: an expired
// attestation is rejected even under a wrong verification key.
func VerifyHardwareAttestation(att HardwareAttestation, pub ed25519.PublicKey, now time.Time) (VerificationDetails, error) {
	if now.After(att.ExpiresAt) {
		return VerificationDetails{}, &ExpiredError{NodeID: att.NodeID.String()}
	}
	msg := hardwareSigningBytes(att.NodeID, att.GPUs, att.IssuedAt, att.ExpiresAt, att.Challenge)
	if !Verify(pub, msg, att.Signature) {
		return VerificationDetails{}, &SignatureInvalidError{}
	}
	return VerificationDetails{Kind: "hardware", GPUCount: len(att.GPUs), NotExpired: true}, nil
}

// ExecutionAttestation is a node's signed claim about a workload
// execution's checkpoint chain.
type ExecutionAttestation struct {
	WorkloadID  clawid.WorkloadId
	Checkpoints []Checkpoint
	Metrics     map[string]float64
	Signature   []byte
}

func executionSigningBytes(workloadID clawid.WorkloadId, checkpoints []Checkpoint, metrics map[string]float64) []byte {
	var buf []byte
	idBytes := [16]byte(workloadID)
	buf = append(buf, idBytes[:]...)
	for _, cp := range checkpoints {
		var seq [8]byte
		binary.LittleEndian.PutUint64(seq[:], cp.Sequence)
		buf = append(buf, seq[:]...)
		buf = append(buf, cp.Hash[:]...)
	}
	keys := make([]string, 0, len(metrics))
	for k := range metrics {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		buf = append(buf, []byte(k)...)
		buf = append(buf, []byte(fmt.Sprintf("%v", metrics[k]))...)
	}
	return buf
}

// CreateAndSignExecutionAttestation builds and signs an execution
// attestation over an already-built checkpoint chain.
func CreateAndSignExecutionAttestation(workloadID clawid.WorkloadId, checkpoints []Checkpoint, metrics map[string]float64, key KeyPair) ExecutionAttestation {
	att := ExecutionAttestation{WorkloadID: workloadID, Checkpoints: checkpoints, Metrics: metrics}
	att.Signature = key.Sign(executionSigningBytes(workloadID, checkpoints, metrics))
	return att
}

// VerifyExecutionAttestation checks checkpoint sequence contiguity
// before signature.
func VerifyExecutionAttestation(att ExecutionAttestation, pub ed25519.PublicKey) (VerificationDetails, error) {
	if !SequenceIsContiguous(att.Checkpoints) {
		return VerificationDetails{}, &CheckpointChainBrokenError{Detail: "non-contiguous sequence numbers"}
	}
	msg := executionSigningBytes(att.WorkloadID, att.Checkpoints, att.Metrics)
	if !Verify(pub, msg, att.Signature) {
		return VerificationDetails{}, &SignatureInvalidError{}
	}
	var final *[32]byte
	if len(att.Checkpoints) > 0 {
		h := att.Checkpoints[len(att.Checkpoints)-1].Hash
		final = &h
	}
	return VerificationDetails{Kind: "execution", CheckpointCount: len(att.Checkpoints), FinalHash: final}, nil
}

// VerifyExecutionWithData verifies the attestation's signature and
// sequencing, then recomputes the full hash chain from the original
// checkpoint payloads and compares bytewise, detecting any tamper
// regardless of whether the signature alone would catch it.
func VerifyExecutionWithData(att ExecutionAttestation, pub ed25519.PublicKey, checkpointData [][]byte) (VerificationDetails, error) {
	details, err := VerifyExecutionAttestation(att, pub)
	if err != nil {
		return details, err
	}
	if len(checkpointData) != len(att.Checkpoints) {
		return VerificationDetails{}, &CheckpointChainBrokenError{Detail: "payload count mismatch"}
	}
	if len(att.Checkpoints) == 0 {
		return details, nil
	}
	if !VerifyFirstCheckpoint(att.Checkpoints[0], checkpointData[0]) {
		return VerificationDetails{}, &CheckpointChainBrokenError{Detail: "checkpoint 0 hash mismatch"}
	}
	for i := 1; i < len(att.Checkpoints); i++ {
		if !VerifyChain(att.Checkpoints[i], att.Checkpoints[i-1], checkpointData[i]) {
			return VerificationDetails{}, &CheckpointChainBrokenError{Detail: fmt.Sprintf("checkpoint %d hash mismatch", i)}
		}
	}
	return details, nil
}

// VerifyChallenge validates a challenge in the mandated order —
// verifier id, then freshness, then nonce replay — mutating the nonce
// cache only on full success. A verifier-id mismatch must never touch
// the cache.
func VerifyChallenge(challenge Challenge, expectedVerifierID string, cfg Config, cache *NonceCache, now time.Time) error {
	if challenge.VerifierID != expectedVerifierID {
		return &VerifierMismatchError{Expected: expectedVerifierID, Actual: challenge.VerifierID}
	}
	age := challenge.AgeSecs(now)
	if age > cfg.MaxAgeSecs {
		return &ChallengeExpiredError{AgeSecs: age, MaxAgeSecs: cfg.MaxAgeSecs}
	}
	if cache.Contains(challenge.Nonce) {
		return &NonceReplayError{}
	}
	cache.Insert(challenge.Nonce)
	return nil
}

// BatchVerifyHardware verifies each attestation independently,
// continuing past individual failures and returning one result per
// input in order.
func BatchVerifyHardware(atts []HardwareAttestation, pub ed25519.PublicKey, now time.Time) []error {
	out := make([]error, len(atts))
	for i, att := range atts {
		_, err := VerifyHardwareAttestation(att, pub, now)
		out[i] = err
	}
	return out
}

// BatchVerifyExecution verifies each attestation independently,
// continuing past individual failures and returning one result per
// input in order.
func BatchVerifyExecution(atts []ExecutionAttestation, pub ed25519.PublicKey) []error {
	out := make([]error, len(atts))
	for i, att := range atts {
		_, err := VerifyExecutionAttestation(att, pub)
		out[i] = err
	}
	return out
}
