package clawproto

import (
	"testing"
	"time"
)

func TestNewWorkloadSpecAppliesDefaults(t *testing.T) {
	spec := NewWorkloadSpec("img:latest")
	if spec.MemoryMB != defaultMemoryMB {
		t.Fatalf("expected default memory_mb of %d, got %d", defaultMemoryMB, spec.MemoryMB)
	}
	if spec.CPUCores != defaultCPUCores {
		t.Fatalf("expected default cpu_cores of %d, got %d", defaultCPUCores, spec.CPUCores)
	}
}

func TestValidateRejectsEmptyImage(t *testing.T) {
	spec := NewWorkloadSpec("")
	if err := spec.Validate(MaxWorkloadGPUs); err == nil {
		t.Fatalf("expected empty image to be rejected")
	}
}

func TestValidateRejectsWhitespaceInImage(t *testing.T) {
	spec := NewWorkloadSpec("repo/img: latest")
	if err := spec.Validate(MaxWorkloadGPUs); err == nil {
		t.Fatalf("expected whitespace image to be rejected")
	}
}

func TestValidateRejectsMalformedEnvKey(t *testing.T) {
	spec := NewWorkloadSpec("img:latest").WithEnv(map[string]string{"1BAD": "x"})
	err := spec.Validate(MaxWorkloadGPUs)
	if err == nil {
		t.Fatalf("expected leading-digit env key to be rejected")
	}
}

func TestValidateAcceptsUnderscorePrefixedEnvKey(t *testing.T) {
	spec := NewWorkloadSpec("img:latest").WithEnv(map[string]string{"_OK_1": "x"})
	if err := spec.Validate(MaxWorkloadGPUs); err != nil {
		t.Fatalf("expected underscore-prefixed env key to be valid, got %v", err)
	}
}

func TestValidateRejectsGPUCountAboveMax(t *testing.T) {
	spec := NewWorkloadSpec("img:latest").WithGPUCount(10)
	if err := spec.Validate(8); err == nil {
		t.Fatalf("expected gpu_count above max to be rejected")
	}
}

func TestValidateRejectsZeroCPUCores(t *testing.T) {
	spec := NewWorkloadSpec("img:latest").WithCPUCores(0)
	if err := spec.Validate(MaxWorkloadGPUs); err == nil {
		t.Fatalf("expected zero cpu_cores to be rejected")
	}
}

func TestIsValidTransitionMatchesLegalTable(t *testing.T) {
	cases := []struct {
		from, to WorkloadState
		want     bool
	}{
		{StatePending, StateStarting, true},
		{StatePending, StateRunning, false},
		{StateStarting, StateRunning, true},
		{StateRunning, StateStopping, true},
		{StateRunning, StateStarting, false},
		{StateStopping, StateStopped, true},
		{StateStopped, StateRunning, false},
	}
	for _, c := range cases {
		if got := IsValidTransition(c.from, c.to); got != c.want {
			t.Errorf("IsValidTransition(%s, %s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestIsValidTransitionRejectsSelfLoops(t *testing.T) {
	if IsValidTransition(StatePending, StatePending) {
		t.Fatalf("Pending->Pending must not be a legal transition")
	}
	if IsValidTransition(StateRunning, StateRunning) {
		t.Fatalf("Running->Running must not be a legal transition")
	}
}

func TestIsValidTransitionRejectsEdgesOutOfTerminalStates(t *testing.T) {
	for _, terminal := range []WorkloadState{StateCompleted, StateFailed, StateStopped} {
		if IsValidTransition(terminal, StateRunning) {
			t.Errorf("terminal state %s must have no outgoing transitions", terminal)
		}
	}
}

func TestTransitionToSetsStartedAtOnlyOnFirstEntryToRunning(t *testing.T) {
	st := PendingStatus()
	t0 := time.Now()
	if err := st.TransitionTo(StateStarting, t0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t1 := t0.Add(time.Second)
	if err := st.TransitionTo(StateRunning, t1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.StartedAt == nil || !st.StartedAt.Equal(t1) {
		t.Fatalf("expected StartedAt to be set to %v, got %v", t1, st.StartedAt)
	}
}

func TestTransitionToSetsFinishedAtOnTerminalEntry(t *testing.T) {
	st := PendingStatus()
	now := time.Now()
	if err := st.TransitionTo(StateStarting, now); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := st.TransitionTo(StateFailed, now.Add(time.Minute)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.FinishedAt == nil {
		t.Fatalf("expected FinishedAt to be set on terminal entry")
	}
}

func TestTransitionToRejectsIllegalEdge(t *testing.T) {
	st := PendingStatus()
	err := st.TransitionTo(StateRunning, time.Now())
	if err == nil {
		t.Fatalf("expected Pending->Running to be rejected")
	}
	if st.State != StatePending {
		t.Fatalf("state must not change on a rejected transition")
	}
}

func TestDurationRequiresBothTimestamps(t *testing.T) {
	st := PendingStatus()
	if _, ok := st.Duration(); ok {
		t.Fatalf("expected no duration before StartedAt/FinishedAt are set")
	}

	start := time.Now()
	st.TransitionTo(StateStarting, start)
	st.TransitionTo(StateRunning, start)
	if _, ok := st.Duration(); ok {
		t.Fatalf("expected no duration before FinishedAt is set")
	}

	end := start.Add(5 * time.Second)
	st.TransitionTo(StateStopping, end)
	st.TransitionTo(StateStopped, end.Add(time.Second))
	d, ok := st.Duration()
	if !ok {
		t.Fatalf("expected a duration once both timestamps are set")
	}
	if d != 6*time.Second {
		t.Fatalf("expected duration of 6s, got %v", d)
	}
}

func TestNewWorkloadStartsPendingWithFreshID(t *testing.T) {
	spec := NewWorkloadSpec("img:latest")
	now := time.Now()
	a := NewWorkload(spec, now)
	b := NewWorkload(spec, now)

	if a.Status.State != StatePending {
		t.Fatalf("expected new workload to start Pending")
	}
	if a.ID == b.ID {
		t.Fatalf("expected distinct workload ids")
	}
}

func TestWorkloadIsTerminalDelegatesToStatus(t *testing.T) {
	spec := NewWorkloadSpec("img:latest")
	w := NewWorkload(spec, time.Now())
	if w.IsTerminal() {
		t.Fatalf("a freshly submitted workload must not be terminal")
	}
	w.Status.State = StateCompleted
	if !w.IsTerminal() {
		t.Fatalf("expected Completed workload to be terminal")
	}
}
