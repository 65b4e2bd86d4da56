package transfer

import (
	"errors"
	"time"
)

// State represents where a transfer is in its lifecycle.
//
//	Idle -> Validating -> Streaming -> Completed
//	             |             |
//	             +-> Failed <--+
type State int

const (
	// StateIdle indicates the transfer has been created but not started
	StateIdle State = iota
	// StateValidating indicates local checks are running; nothing has been sent
	StateValidating
	// StateStreaming indicates the remote call is in progress
	StateStreaming
	// StateCompleted indicates the output was fully reconstructed
	StateCompleted
	// StateFailed indicates the transfer stopped; any partial output was discarded
	StateFailed
)

// ErrInvalidStateTransition is returned when an invalid state transition is attempted
var ErrInvalidStateTransition = errors.New("invalid state transition")

// String returns a human-readable string representation of the transfer state
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateValidating:
		return "validating"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// IsTerminal returns true if the transfer state is final
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed
}

// CanTransitionTo checks if a state transition is valid
func (s State) CanTransitionTo(next State) bool {
	if s.IsTerminal() {
		return false
	}

	switch s {
	case StateIdle:
		return next == StateValidating
	case StateValidating:
		return next == StateStreaming || next == StateFailed
	case StateStreaming:
		return next == StateCompleted || next == StateFailed
	default:
		return false
	}
}

// Status tracks one transfer through its states.
type Status struct {
	State          State
	StartTime      time.Time
	LastUpdateTime time.Time
	CompletionTime *time.Time
	LastError      error
}

func NewStatus() *Status {
	now := time.Now()
	return &Status{State: StateIdle, StartTime: now, LastUpdateTime: now}
}

// TransitionTo moves to next, or returns ErrInvalidStateTransition.
func (s *Status) TransitionTo(next State) error {
	if !s.State.CanTransitionTo(next) {
		return ErrInvalidStateTransition
	}
	now := time.Now()
	s.State = next
	s.LastUpdateTime = now
	if next.IsTerminal() {
		s.CompletionTime = &now
	}
	return nil
}

// Fail records err and moves to StateFailed.
func (s *Status) Fail(err error) error {
	s.LastError = err
	return s.TransitionTo(StateFailed)
}

// Duration returns the time from creation to completion, or to now while running.
func (s *Status) Duration() time.Duration {
	if s.CompletionTime != nil {
		return s.CompletionTime.Sub(s.StartTime)
	}
	return time.Since(s.StartTime)
}
