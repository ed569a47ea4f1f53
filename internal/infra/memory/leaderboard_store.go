package memory

import (
	"context"
	"sync"

	"timestable-quiz/internal/domain"
	"timestable-quiz/internal/leaderboard"
)

// LeaderboardStore keeps entries in insertion order. Useful for tests and
// demos; entries are lost on restart.
type LeaderboardStore struct {
	mu      sync.RWMutex
	entries []domain.LeaderboardEntry
}

func NewLeaderboardStore() *LeaderboardStore {
	return &LeaderboardStore{}
}

func (s *LeaderboardStore) Insert(_ context.Context, entry domain.LeaderboardEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

func (s *LeaderboardStore) TopK(_ context.Context, k int) ([]domain.LeaderboardEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return leaderboard.TopN(s.entries, k), nil
}

// Len reports the number of stored entries.
func (s *LeaderboardStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
