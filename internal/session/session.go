// Package session holds the per-user conversational state for one
// code-execution request. A session moves strictly forward through its
// phases; /cancel is the only edge that jumps to a terminal state.
package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Phase int

const (
	PhaseAwaitingCode Phase = iota
	PhaseAwaitingDeclaredCount
	PhaseCollectingInputs
	PhaseReadyToExecute
	PhaseExecuting
	PhaseDone
	PhaseCancelled
)

func (p Phase) String() string {
	switch p {
	case PhaseAwaitingCode:
		return "awaiting_code"
	case PhaseAwaitingDeclaredCount:
		return "awaiting_declared_count"
	case PhaseCollectingInputs:
		return "collecting_inputs"
	case PhaseReadyToExecute:
		return "ready_to_execute"
	case PhaseExecuting:
		return "executing"
	case PhaseDone:
		return "done"
	case PhaseCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

func (p Phase) Terminal() bool {
	return p == PhaseDone || p == PhaseCancelled
}

// CountMode records where the expected input count came from.
type CountMode string

const (
	CountModeKnown    CountMode = "known-count"
	CountModeDeclared CountMode = "user-declared"
)

var (
	ErrInvalidCount  = errors.New("declared count must be a positive integer")
	ErrNotCollecting = errors.New("session is not collecting inputs")
)

type Session struct {
	ID        string
	UserID    int64
	ChatID    int64
	Source    string
	Mode      CountMode
	Expected  int
	Inputs    []string
	Phase     Phase
	CreatedAt time.Time
}

// AttachSource records the submitted code plus the static scan verdict and
// advances out of AwaitingCode. With an indeterminate count the session
// waits for the user to declare one; a zero count goes straight to
// ReadyToExecute with an empty input sequence.
func (s *Session) AttachSource(source string, count int, indeterminate bool) Phase {
	s.Source = source
	switch {
	case indeterminate:
		s.Mode = CountModeDeclared
		s.Phase = PhaseAwaitingDeclaredCount
	case count == 0:
		s.Mode = CountModeKnown
		s.Expected = 0
		s.Phase = PhaseReadyToExecute
	default:
		s.Mode = CountModeKnown
		s.Expected = count
		s.Phase = PhaseCollectingInputs
	}
	return s.Phase
}

// DeclareCount accepts the user's declared total. A non-positive value is
// rejected without a phase change so the caller can re-prompt.
func (s *Session) DeclareCount(n int) error {
	if s.Phase != PhaseAwaitingDeclaredCount {
		return fmt.Errorf("declare count in phase %s", s.Phase)
	}
	if n <= 0 {
		return ErrInvalidCount
	}
	s.Expected = n
	s.Phase = PhaseCollectingInputs
	return nil
}

// AddInput appends one collected answer. It reports whether the session is
// now ready to execute; collected inputs never exceed the expected count.
func (s *Session) AddInput(text string) (ready bool, err error) {
	if s.Phase != PhaseCollectingInputs {
		return false, ErrNotCollecting
	}
	if len(s.Inputs) >= s.Expected {
		return false, fmt.Errorf("already collected %d of %d inputs", len(s.Inputs), s.Expected)
	}
	s.Inputs = append(s.Inputs, text)
	if len(s.Inputs) == s.Expected {
		s.Phase = PhaseReadyToExecute
		return true, nil
	}
	return false, nil
}

// Registry is the explicit session map keyed by user ID. Insertion happens
// on /run and removal on completion, cancellation, or a finished execution;
// at most one active session per user exists at a time.
type Registry struct {
	mu       sync.Mutex
	sessions map[int64]*Session
	now      func() time.Time
}

var ErrSessionActive = errors.New("a session is already active")

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[int64]*Session),
		now:      time.Now,
	}
}

// Begin creates a fresh session in AwaitingCode. It rejects the request
// when the user already has an active session; the caller tells the user to
// /cancel first.
func (r *Registry) Begin(userID, chatID int64) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[userID]; ok {
		return nil, ErrSessionActive
	}
	s := &Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		ChatID:    chatID,
		Phase:     PhaseAwaitingCode,
		CreatedAt: r.now(),
	}
	r.sessions[userID] = s
	return s, nil
}

// Get returns the user's session together with its phase, both read under
// the registry lock. A worker goroutine moves a finished session to done
// concurrently, so callers branch on the returned phase, never on s.Phase.
func (r *Registry) Get(userID int64) (*Session, Phase, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[userID]
	if !ok {
		return nil, PhaseAwaitingCode, false
	}
	return s, s.Phase, true
}

// Cancel removes the user's session and marks it cancelled. It reports
// whether there was a session to cancel.
func (r *Registry) Cancel(userID int64) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[userID]
	if !ok {
		return nil, false
	}
	s.Phase = PhaseCancelled
	delete(r.sessions, userID)
	return s, true
}

// Release removes the user's session after a finished run (or an internal
// failure) and marks it done.
func (r *Registry) Release(userID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[userID]; ok {
		s.Phase = PhaseDone
	}
	delete(r.sessions, userID)
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
