package clawproto

import "testing"

func TestSniffFrameKindIdentifiesEventByPresenceOfEventKey(t *testing.T) {
	kind, err := SniffFrameKind([]byte(`{"event":"heartbeat","payload":{}}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if kind != FrameEvent {
		t.Fatalf("expected FrameEvent, got %v", kind)
	}
}

func TestSniffFrameKindIdentifiesRequestByPresenceOfMethodKey(t *testing.T) {
	kind, err := SniffFrameKind([]byte(`{"id":"1","method":"connect","params":{}}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if kind != FrameRequest {
		t.Fatalf("expected FrameRequest, got %v", kind)
	}
}

func TestSniffFrameKindIdentifiesResponseByIDWithoutMethod(t *testing.T) {
	kind, err := SniffFrameKind([]byte(`{"id":"1","result":{}}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if kind != FrameResponse {
		t.Fatalf("expected FrameResponse, got %v", kind)
	}
}

func TestSniffFrameKindReportsUnknownForAnEmptyObject(t *testing.T) {
	kind, err := SniffFrameKind([]byte(`{}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if kind != FrameUnknown {
		t.Fatalf("expected FrameUnknown, got %v", kind)
	}
}

func TestSniffFrameKindPropagatesMalformedJSON(t *testing.T) {
	if _, err := SniffFrameKind([]byte(`not json`)); err == nil {
		t.Fatalf("expected an error for malformed JSON")
	}
}

func TestCodeForCategoryMapsToReservedRanges(t *testing.T) {
	cases := map[ErrorCategory]int32{
		CategoryTransport:    ErrCodeTransportBase,
		CategoryAttestation:  ErrCodeAuthBase,
		CategoryScheduling:   ErrCodeSchedulingBase,
		CategoryStateMachine: ErrCodeWorkloadBase,
		CategoryValidation:   ErrCodeWorkloadBase,
		CategoryMesh:         ErrCodeWorkloadBase,
	}
	for cat, want := range cases {
		if got := CodeForCategory(cat); got != want {
			t.Errorf("CodeForCategory(%s) = %d, want %d", cat, got, want)
		}
	}
}
