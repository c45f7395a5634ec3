// Package gpudetect defines the external collaborator boundary between
// the gateway and whatever actually enumerates GPU hardware on a node
// (nvidia-smi, ROCm-SMI, a vendor SDK): an interface, a static inventory,
// an nvidia-smi backed detector, and an in-memory fake, so
// hardware-facing collaborators stay trait-dispatched and testable
// without real hardware.
package gpudetect

import (
	"fmt"
	"sync"

	"github.com/clawbernetes/clawgatewayd/internal/attestation"
)

// Detector enumerates the GPUs visible to the current node. This package
// provides StaticDetector, NvidiaSMIDetector (which shells out to
// nvidia-smi) and FakeDetector for tests.
type Detector interface {
	Detect() ([]attestation.GpuInfo, error)
}

// StaticDetector returns a fixed GPU inventory, for nodes whose hardware
// is known ahead of time (e.g. pinned via configuration rather than
// runtime detection).
type StaticDetector struct {
	GPUs []attestation.GpuInfo
}

// Detect returns the configured inventory.
func (d StaticDetector) Detect() ([]attestation.GpuInfo, error) {
	out := make([]attestation.GpuInfo, len(d.GPUs))
	copy(out, d.GPUs)
	return out, nil
}

// FakeDetector is an in-memory collaborator for tests: it returns a
// scripted inventory, or a scripted error, and counts how many times it
// was invoked.
type FakeDetector struct {
	mu        sync.Mutex
	gpus      []attestation.GpuInfo
	err       error
	callCount int
}

// NewFakeDetector constructs a FakeDetector that returns gpus on every
// call until SetError or SetGPUs is used to reprogram it.
func NewFakeDetector(gpus []attestation.GpuInfo) *FakeDetector {
	return &FakeDetector{gpus: gpus}
}

// SetGPUs reprograms the fake's returned inventory and clears any
// scripted error.
func (f *FakeDetector) SetGPUs(gpus []attestation.GpuInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gpus = gpus
	f.err = nil
}

// SetError makes every subsequent Detect call fail with err.
func (f *FakeDetector) SetError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// Detect returns the scripted inventory or error, and records the call.
func (f *FakeDetector) Detect() ([]attestation.GpuInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callCount++
	if f.err != nil {
		return nil, f.err
	}
	out := make([]attestation.GpuInfo, len(f.gpus))
	copy(out, f.gpus)
	return out, nil
}

// CallCount reports how many times Detect has been invoked.
func (f *FakeDetector) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.callCount
}

// ErrNoDetector is returned by callers that require a Detector but were
// not configured with one.
var ErrNoDetector = fmt.Errorf("gpudetect: no detector configured")
