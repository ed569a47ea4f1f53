package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionNotFound is returned when no session exists for the given ID.
	ErrSessionNotFound = errors.New("quiz session not found")
	// ErrInvalidTransition is returned when an operation is not allowed in the current phase.
	ErrInvalidTransition = errors.New("invalid session transition")
	// ErrAlreadySubmitted is returned when a session already wrote its leaderboard entry.
	ErrAlreadySubmitted = errors.New("score already submitted")
	// ErrNotEligible is returned when a score does not qualify for the leaderboard.
	ErrNotEligible = errors.New("score does not qualify for the leaderboard")
)

// PersistenceError wraps a failure of the leaderboard store.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("leaderboard %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
