package session

import (
	"errors"
	"testing"
)

func TestRegistryBeginRejectsSecondRun(t *testing.T) {
	r := NewRegistry()
	s, err := r.Begin(7, 100)
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if s.Phase != PhaseAwaitingCode {
		t.Fatalf("phase = %s, want awaiting_code", s.Phase)
	}
	if s.ID == "" {
		t.Fatal("expected a session ID")
	}
	if _, err := r.Begin(7, 100); !errors.Is(err, ErrSessionActive) {
		t.Fatalf("second Begin() error = %v, want ErrSessionActive", err)
	}
	// A different user is unaffected.
	if _, err := r.Begin(8, 100); err != nil {
		t.Fatalf("Begin() for other user error = %v", err)
	}
}

func TestAttachSourceKnownCount(t *testing.T) {
	s := &Session{Phase: PhaseAwaitingCode}
	if got := s.AttachSource("a = input()\nb = input()", 2, false); got != PhaseCollectingInputs {
		t.Fatalf("phase = %s, want collecting_inputs", got)
	}
	if s.Mode != CountModeKnown || s.Expected != 2 {
		t.Fatalf("mode=%s expected=%d, want known-count/2", s.Mode, s.Expected)
	}
}

func TestAttachSourceZeroCountIsImmediatelyReady(t *testing.T) {
	s := &Session{Phase: PhaseAwaitingCode}
	if got := s.AttachSource("print(1)", 0, false); got != PhaseReadyToExecute {
		t.Fatalf("phase = %s, want ready_to_execute", got)
	}
	if len(s.Inputs) != 0 {
		t.Fatalf("inputs = %v, want empty", s.Inputs)
	}
}

func TestAttachSourceIndeterminate(t *testing.T) {
	s := &Session{Phase: PhaseAwaitingCode}
	if got := s.AttachSource("for i in range(3):\n    input()", 0, true); got != PhaseAwaitingDeclaredCount {
		t.Fatalf("phase = %s, want awaiting_declared_count", got)
	}
	if s.Mode != CountModeDeclared {
		t.Fatalf("mode = %s, want user-declared", s.Mode)
	}
}

func TestDeclareCount(t *testing.T) {
	s := &Session{Phase: PhaseAwaitingDeclaredCount}
	for _, n := range []int{0, -3} {
		if err := s.DeclareCount(n); !errors.Is(err, ErrInvalidCount) {
			t.Fatalf("DeclareCount(%d) error = %v, want ErrInvalidCount", n, err)
		}
		if s.Phase != PhaseAwaitingDeclaredCount {
			t.Fatalf("phase changed on invalid count: %s", s.Phase)
		}
	}
	if err := s.DeclareCount(3); err != nil {
		t.Fatalf("DeclareCount(3) error = %v", err)
	}
	if s.Phase != PhaseCollectingInputs || s.Expected != 3 {
		t.Fatalf("phase=%s expected=%d, want collecting_inputs/3", s.Phase, s.Expected)
	}
}

func TestDeclareCountWrongPhase(t *testing.T) {
	s := &Session{Phase: PhaseCollectingInputs, Expected: 1}
	if err := s.DeclareCount(2); err == nil {
		t.Fatal("expected error declaring count while collecting")
	}
}

func TestAddInputReadyExactlyAtExpected(t *testing.T) {
	s := &Session{Phase: PhaseCollectingInputs, Expected: 3}
	for i, in := range []string{"a", "b"} {
		ready, err := s.AddInput(in)
		if err != nil {
			t.Fatalf("AddInput(%d) error = %v", i, err)
		}
		if ready {
			t.Fatalf("ready after %d of 3 inputs", i+1)
		}
	}
	ready, err := s.AddInput("c")
	if err != nil {
		t.Fatalf("AddInput error = %v", err)
	}
	if !ready {
		t.Fatal("not ready after collecting all 3 inputs")
	}
	if s.Phase != PhaseReadyToExecute {
		t.Fatalf("phase = %s, want ready_to_execute", s.Phase)
	}
	if _, err := s.AddInput("d"); err == nil {
		t.Fatal("expected error adding input past expected count")
	}
}

func TestAddInputOutsideCollecting(t *testing.T) {
	s := &Session{Phase: PhaseAwaitingCode}
	if _, err := s.AddInput("x"); !errors.Is(err, ErrNotCollecting) {
		t.Fatalf("AddInput error = %v, want ErrNotCollecting", err)
	}
}

func TestCancelClearsSession(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Begin(7, 100); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	s, ok := r.Cancel(7)
	if !ok {
		t.Fatal("Cancel() found no session")
	}
	if s.Phase != PhaseCancelled {
		t.Fatalf("phase = %s, want cancelled", s.Phase)
	}
	if _, ok := r.Cancel(7); ok {
		t.Fatal("second Cancel() still found a session")
	}
	// A fresh /run starts over rather than resuming.
	s2, err := r.Begin(7, 100)
	if err != nil {
		t.Fatalf("Begin() after cancel error = %v", err)
	}
	if s2.Phase != PhaseAwaitingCode || s2.ID == s.ID {
		t.Fatalf("expected a fresh session, got phase=%s id=%s", s2.Phase, s2.ID)
	}
}

func TestGetReportsPhase(t *testing.T) {
	r := NewRegistry()
	s, err := r.Begin(7, 100)
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if _, phase, ok := r.Get(7); !ok || phase != PhaseAwaitingCode {
		t.Fatalf("Get() = phase %s, ok %v", phase, ok)
	}
	s.Phase = PhaseExecuting
	if _, phase, _ := r.Get(7); phase != PhaseExecuting {
		t.Fatalf("Get() phase = %s, want executing", phase)
	}
	if _, _, ok := r.Get(8); ok {
		t.Fatal("Get() found a session for an unknown user")
	}
}

func TestReleaseMarksDone(t *testing.T) {
	r := NewRegistry()
	s, err := r.Begin(7, 100)
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	r.Release(7)
	if s.Phase != PhaseDone {
		t.Fatalf("phase = %s, want done", s.Phase)
	}
	if r.Len() != 0 {
		t.Fatalf("registry length = %d, want 0", r.Len())
	}
}

func TestPhaseStrings(t *testing.T) {
	phases := map[Phase]string{
		PhaseAwaitingCode:          "awaiting_code",
		PhaseAwaitingDeclaredCount: "awaiting_declared_count",
		PhaseCollectingInputs:      "collecting_inputs",
		PhaseReadyToExecute:        "ready_to_execute",
		PhaseExecuting:             "executing",
		PhaseDone:                  "done",
		PhaseCancelled:             "cancelled",
	}
	for p, want := range phases {
		if p.String() != want {
			t.Fatalf("Phase(%d).String() = %q, want %q", p, p.String(), want)
		}
	}
	if PhaseExecuting.Terminal() {
		t.Fatal("executing must not be terminal")
	}
	if !PhaseDone.Terminal() || !PhaseCancelled.Terminal() {
		t.Fatal("done and cancelled must be terminal")
	}
}
