package attestation

import (
	"fmt"

	"github.com/clawbernetes/clawgatewayd/internal/clawproto"
)

// ExpiredError reports a hardware attestation past its expires_at.
type ExpiredError struct{ NodeID string }

func (e *ExpiredError) Error() string                      { return "attestation expired for node " + e.NodeID }
func (e *ExpiredError) Category() clawproto.ErrorCategory { return clawproto.CategoryAttestation }
func (e *ExpiredError) Code() string                       { return "expired" }

// SignatureInvalidError reports a failed Ed25519 verification.
type SignatureInvalidError struct{}

func (e *SignatureInvalidError) Error() string                      { return "signature invalid" }
func (e *SignatureInvalidError) Category() clawproto.ErrorCategory { return clawproto.CategoryAttestation }
func (e *SignatureInvalidError) Code() string                       { return "signature_invalid" }

// VerifierMismatchError reports a challenge presented to the wrong
// verifier.
type VerifierMismatchError struct {
	Expected string
	Actual   string
}

func (e *VerifierMismatchError) Error() string {
	return fmt.Sprintf("verifier mismatch: expected %q, got %q", e.Expected, e.Actual)
}
func (e *VerifierMismatchError) Category() clawproto.ErrorCategory { return clawproto.CategoryAttestation }
func (e *VerifierMismatchError) Code() string                       { return "verifier_mismatch" }

// ChallengeExpiredError reports a challenge older than max_age_secs.
type ChallengeExpiredError struct {
	AgeSecs    int64
	MaxAgeSecs int64
}

func (e *ChallengeExpiredError) Error() string {
	return fmt.Sprintf("challenge expired: age %ds exceeds max %ds", e.AgeSecs, e.MaxAgeSecs)
}
func (e *ChallengeExpiredError) Category() clawproto.ErrorCategory { return clawproto.CategoryAttestation }
func (e *ChallengeExpiredError) Code() string                       { return "challenge_expired" }

// NonceReplayError reports a previously-seen nonce.
type NonceReplayError struct{}

func (e *NonceReplayError) Error() string                      { return "nonce replay detected" }
func (e *NonceReplayError) Category() clawproto.ErrorCategory { return clawproto.CategoryAttestation }
func (e *NonceReplayError) Code() string                       { return "nonce_replay" }

// CheckpointChainBrokenError reports a tampered or discontiguous
// checkpoint chain.
type CheckpointChainBrokenError struct {
	Detail string
}

func (e *CheckpointChainBrokenError) Error() string { return "checkpoint chain broken: " + e.Detail }
func (e *CheckpointChainBrokenError) Category() clawproto.ErrorCategory {
	return clawproto.CategoryAttestation
}
func (e *CheckpointChainBrokenError) Code() string { return "checkpoint_chain_broken" }
