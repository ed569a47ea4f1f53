package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"timestable-quiz/internal/domain"
	"timestable-quiz/internal/session"
	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestSessionStoreRoundTrip(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	store := NewSessionStore(newClient(mr), time.Minute)

	started := time.Date(2024, 11, 22, 9, 0, 0, 0, time.UTC)
	state := session.New()
	_ = state.Start([]domain.QuizItem{
		{Prompt: "3 x 4 = ?", CorrectAnswer: 12, Candidates: []int{40, 12, 7, 63}},
		{Prompt: "9 x 9 = ?", CorrectAnswer: 81, Candidates: []int{81, 2, 18, 30}},
	}, started)
	_, _ = state.Answer(7, started.Add(2*time.Second))

	if err := store.Save(ctx, "s1", state); err != nil {
		t.Fatalf("save: %v", err)
	}
	if !mr.Exists("quiz:session:s1") {
		t.Fatalf("expected redis key to be set")
	}
	if ttl := mr.TTL("quiz:session:s1"); ttl != time.Minute {
		t.Fatalf("expected ttl of one minute, got %v", ttl)
	}

	got, err := store.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Phase != domain.PhaseInProgress || got.CurrentIndex != 1 || len(got.Mistakes) != 1 {
		t.Fatalf("unexpected state %+v", got)
	}
	if got.Items[0].Candidates[1] != 12 || !got.StartedAt.Equal(started) || got.FinishedAt != nil {
		t.Fatalf("state not preserved: %+v", got)
	}

	if err := store.Delete(ctx, "s1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if mr.Exists("quiz:session:s1") {
		t.Fatalf("expected redis key to be removed")
	}
	if _, err := store.Get(ctx, "s1"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSessionStoreExpires(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	store := NewSessionStore(newClient(mr), time.Minute)
	_ = store.Save(ctx, "s1", session.New())

	mr.FastForward(2 * time.Minute)
	if _, err := store.Get(ctx, "s1"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected expired session, got %v", err)
	}
}

func newClient(mr *miniredis.Miniredis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
}
