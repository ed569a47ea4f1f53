package postgres

import (
	"context"
	"fmt"

	"timestable-quiz/internal/domain"
	"github.com/jackc/pgx/v4/pgxpool"
)

// LeaderboardStore persists entries in the rankings table. The id column
// is a sequence, so ordering by it reproduces insertion order among ties.
type LeaderboardStore struct {
	pool *pgxpool.Pool
}

func NewLeaderboardStore(pool *pgxpool.Pool) *LeaderboardStore {
	return &LeaderboardStore{pool: pool}
}

func (s *LeaderboardStore) Insert(ctx context.Context, entry domain.LeaderboardEntry) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO rankings (name, score, elapsed_seconds, correct_count) VALUES ($1, $2, $3, $4)`,
		entry.Name, entry.Score, entry.ElapsedSeconds, entry.CorrectCount,
	)
	if err != nil {
		return fmt.Errorf("insert ranking: %w", err)
	}
	return nil
}

func (s *LeaderboardStore) TopK(ctx context.Context, k int) ([]domain.LeaderboardEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT name, score, elapsed_seconds, correct_count
		   FROM rankings
		  ORDER BY score DESC, id ASC
		  LIMIT $1`, k)
	if err != nil {
		return nil, fmt.Errorf("query rankings: %w", err)
	}
	defer rows.Close()

	entries := make([]domain.LeaderboardEntry, 0, k)
	for rows.Next() {
		var e domain.LeaderboardEntry
		if err := rows.Scan(&e.Name, &e.Score, &e.ElapsedSeconds, &e.CorrectCount); err != nil {
			return nil, fmt.Errorf("scan ranking: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read rankings: %w", err)
	}
	return entries, nil
}
