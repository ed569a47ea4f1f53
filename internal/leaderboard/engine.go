// Package leaderboard decides admission to the bounded top-N board and
// writes at most one entry per finished session.
package leaderboard

import (
	"context"
	"errors"
	"sort"

	"timestable-quiz/internal/domain"
	"timestable-quiz/internal/session"
)

// DefaultSize is the number of ranked entries the board keeps visible.
const DefaultSize = 100

// Store is an append-only collection of entries. TopK must order by score
// descending and keep insertion order among equal scores.
type Store interface {
	Insert(ctx context.Context, entry domain.LeaderboardEntry) error
	TopK(ctx context.Context, k int) ([]domain.LeaderboardEntry, error)
}

// Engine applies admission rules on top of a Store.
type Engine struct {
	store Store
	size  int
}

func NewEngine(store Store, size int) *Engine {
	if size <= 0 {
		size = DefaultSize
	}
	return &Engine{store: store, size: size}
}

// Size returns N.
func (e *Engine) Size() int {
	return e.size
}

// IsEligible reports whether score earns a place on board, which must be
// ranked best first. A score equal to the current cutoff does not qualify.
func IsEligible(score float64, board []domain.LeaderboardEntry, n int) bool {
	if n <= 0 {
		return false
	}
	if len(board) < n {
		return true
	}
	return score > board[n-1].Score
}

// TopN ranks entries given in insertion order and keeps the first n.
func TopN(entries []domain.LeaderboardEntry, n int) []domain.LeaderboardEntry {
	ranked := make([]domain.LeaderboardEntry, len(entries))
	copy(ranked, entries)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	if n >= 0 && len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

// Board returns up to n ranked entries, never more than the board size.
func (e *Engine) Board(ctx context.Context, n int) ([]domain.LeaderboardEntry, error) {
	if n <= 0 || n > e.size {
		n = e.size
	}
	entries, err := e.store.TopK(ctx, n)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "read", Err: err}
	}
	return entries, nil
}

// Eligible checks score against the current board.
func (e *Engine) Eligible(ctx context.Context, score float64) (bool, error) {
	board, err := e.Board(ctx, e.size)
	if err != nil {
		return false, err
	}
	return IsEligible(score, board, e.size), nil
}

// Submit appends entry for a finished, not yet submitted session and marks
// it submitted. Admission is re-checked against a fresh read of the board.
// On a store failure the session stays unsubmitted so the call can be retried.
func (e *Engine) Submit(ctx context.Context, entry domain.LeaderboardEntry, state *session.State) error {
	return e.SubmitWithCheckpoint(ctx, entry, state, nil)
}

// SubmitWithCheckpoint is Submit for sessions that live outside the caller's
// memory. checkpoint persists state; it runs with Submitted already set and
// before the insert, so a failure at any point can lose the entry but never
// write it twice. If the insert fails the flag is cleared and checkpointed
// again so the submit stays retryable.
func (e *Engine) SubmitWithCheckpoint(ctx context.Context, entry domain.LeaderboardEntry, state *session.State, checkpoint func() error) error {
	if state.Phase != domain.PhaseFinished {
		return domain.ErrInvalidTransition
	}
	if state.Submitted {
		return domain.ErrAlreadySubmitted
	}

	ok, err := e.Eligible(ctx, entry.Score)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrNotEligible
	}

	state.MarkSubmitted()
	if checkpoint != nil {
		if err := checkpoint(); err != nil {
			state.Submitted = false
			return err
		}
	}

	if err := e.store.Insert(ctx, entry); err != nil {
		state.Submitted = false
		perr := &domain.PersistenceError{Op: "insert", Err: err}
		if checkpoint != nil {
			if cerr := checkpoint(); cerr != nil {
				return errors.Join(perr, cerr)
			}
		}
		return perr
	}
	return nil
}
