package app_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"timestable-quiz/internal/app"
	"timestable-quiz/internal/domain"
	"timestable-quiz/internal/infra/memory"
	"timestable-quiz/internal/leaderboard"
	"timestable-quiz/internal/session"
)

func TestFullRunAndSubmission(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2024, 11, 22, 12, 0, 0, 0, time.UTC)}
	service, store := newTestService(clock, 10)

	state, err := service.Start(ctx, "s1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if len(state.Items) != 10 || state.Phase != domain.PhaseInProgress {
		t.Fatalf("unexpected state after start: %+v", state)
	}

	for i := 0; i < 10; i++ {
		clock.advance(500 * time.Millisecond)
		res, _, err := service.Answer(ctx, "s1", fixedItem.CorrectAnswer)
		if err != nil {
			t.Fatalf("answer %d: %v", i, err)
		}
		if !res.Correct {
			t.Fatalf("answer %d should be correct", i)
		}
	}

	result, err := service.Result(ctx, "s1")
	if err != nil {
		t.Fatalf("result: %v", err)
	}
	if result.Summary.Score != 95 || result.Summary.ElapsedSeconds != 5 || !result.Eligible {
		t.Fatalf("unexpected result %+v", result)
	}

	submitted, err := service.Submit(ctx, "s1", "  Alice  ")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !submitted.Submitted || len(submitted.Board) != 1 || submitted.Board[0].Name != "Alice" {
		t.Fatalf("unexpected submitted result %+v", submitted)
	}

	if _, err := service.Submit(ctx, "s1", "Alice"); !errors.Is(err, domain.ErrAlreadySubmitted) {
		t.Fatalf("expected already submitted, got %v", err)
	}
	if store.Len() != 1 {
		t.Fatalf("expected one stored entry, got %d", store.Len())
	}
}

func TestAnswerRecordsMistakes(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2024, 11, 22, 12, 0, 0, 0, time.UTC)}
	service, _ := newTestService(clock, 2)

	_, _ = service.Start(ctx, "s1")
	res, _, err := service.Answer(ctx, "s1", 1)
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	if res.Correct || res.CorrectAnswer != fixedItem.CorrectAnswer || res.Phase != domain.PhaseInProgress {
		t.Fatalf("unexpected answer result %+v", res)
	}
	_, _, _ = service.Answer(ctx, "s1", fixedItem.CorrectAnswer)

	clock.advance(50 * time.Second)
	result, err := service.Result(ctx, "s1")
	if err != nil {
		t.Fatalf("result: %v", err)
	}
	if len(result.Mistakes) != 1 || result.Mistakes[0].ChosenAnswer != 1 {
		t.Fatalf("expected one mistake, got %+v", result.Mistakes)
	}
	if result.Summary.CorrectCount != 1 {
		t.Fatalf("expected one correct, got %+v", result.Summary)
	}
}

func TestAnswerOutsideRunIsRejected(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(&fakeClock{now: time.Now()}, 10)

	if _, _, err := service.Answer(ctx, "missing", 4); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected session not found, got %v", err)
	}

	_, _ = service.Open(ctx, "s1")
	if _, _, err := service.Answer(ctx, "s1", 4); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition while idle, got %v", err)
	}
	if _, err := service.Result(ctx, "s1"); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition for result while idle, got %v", err)
	}
	if _, err := service.Submit(ctx, "s1", "Eve"); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition for submit while idle, got %v", err)
	}
}

func TestZeroQuestionRunFinishesImmediately(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(&fakeClock{now: time.Now()}, 0)

	state, err := service.Start(ctx, "s1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if state.Phase != domain.PhaseFinished {
		t.Fatalf("expected finished, got %s", state.Phase)
	}
	result, err := service.Result(ctx, "s1")
	if err != nil {
		t.Fatalf("result: %v", err)
	}
	if result.Summary.Score != 0 || result.Summary.ElapsedSeconds != 0 {
		t.Fatalf("expected zero summary, got %+v", result.Summary)
	}
}

func TestRestartClearsSubmission(t *testing.T) {
	ctx := context.Background()
	service, store := newTestService(&fakeClock{now: time.Now()}, 1)

	_, _ = service.Start(ctx, "s1")
	_, _, _ = service.Answer(ctx, "s1", fixedItem.CorrectAnswer)
	if _, err := service.Submit(ctx, "s1", "Ann"); err != nil {
		t.Fatalf("submit: %v", err)
	}

	state, err := service.Restart(ctx, "s1")
	if err != nil {
		t.Fatalf("restart: %v", err)
	}
	if state.Phase != domain.PhaseIdle || state.Submitted || len(state.Items) != 0 {
		t.Fatalf("unexpected state after restart %+v", state)
	}

	_, _ = service.Start(ctx, "s1")
	_, _, _ = service.Answer(ctx, "s1", fixedItem.CorrectAnswer)
	if _, err := service.Submit(ctx, "s1", "Ann"); err != nil {
		t.Fatalf("second run submit: %v", err)
	}
	if store.Len() != 2 {
		t.Fatalf("expected one entry per run, got %d", store.Len())
	}
}

func TestLeaderboardNotEligible(t *testing.T) {
	ctx := context.Background()
	store := memory.NewLeaderboardStore()
	for i := 0; i < 3; i++ {
		_ = store.Insert(ctx, domain.LeaderboardEntry{Name: fmt.Sprintf("p%d", i), Score: 50})
	}
	service := app.NewQuizService(
		memory.NewSessionStore(time.Minute),
		staticGenerator{},
		leaderboard.NewEngine(store, 3),
		app.WithClock(func() time.Time { return time.Unix(0, 0) }),
		app.WithQuestionCount(1),
	)

	_, _ = service.Start(ctx, "s1")
	_, _, _ = service.Answer(ctx, "s1", 0)
	result, err := service.Result(ctx, "s1")
	if err != nil {
		t.Fatalf("result: %v", err)
	}
	if result.Eligible {
		t.Fatalf("score 0 must not qualify for a full board of 50s")
	}
	if _, err := service.Submit(ctx, "s1", "Zed"); !errors.Is(err, domain.ErrNotEligible) {
		t.Fatalf("expected not eligible, got %v", err)
	}
}

func TestSubmitDoesNotInsertWhenSessionSaveFails(t *testing.T) {
	ctx := context.Background()
	sessions := &flakySessions{SessionStore: memory.NewSessionStore(time.Minute)}
	store := memory.NewLeaderboardStore()
	service := app.NewQuizService(sessions, staticGenerator{}, leaderboard.NewEngine(store, leaderboard.DefaultSize),
		app.WithQuestionCount(1),
	)

	_, _ = service.Start(ctx, "s1")
	_, _, _ = service.Answer(ctx, "s1", fixedItem.CorrectAnswer)

	sessions.failSaves = true
	if _, err := service.Submit(ctx, "s1", "Ann"); err == nil {
		t.Fatalf("expected submit to fail while sessions cannot be saved")
	}
	if store.Len() != 0 {
		t.Fatalf("entry written without a saved submission flag: %d entries", store.Len())
	}

	sessions.failSaves = false
	if _, err := service.Submit(ctx, "s1", "Ann"); err != nil {
		t.Fatalf("retry submit: %v", err)
	}
	if _, err := service.Submit(ctx, "s1", "Ann"); !errors.Is(err, domain.ErrAlreadySubmitted) {
		t.Fatalf("expected already submitted, got %v", err)
	}
	if store.Len() != 1 {
		t.Fatalf("expected exactly one entry, got %d", store.Len())
	}
}

func TestSubmitInsertFailureLeavesSessionRetryable(t *testing.T) {
	ctx := context.Background()
	sessions := memory.NewSessionStore(time.Minute)
	service := app.NewQuizService(sessions, staticGenerator{},
		leaderboard.NewEngine(failingInserts{memory.NewLeaderboardStore()}, leaderboard.DefaultSize),
		app.WithQuestionCount(1),
	)

	_, _ = service.Start(ctx, "s1")
	_, _, _ = service.Answer(ctx, "s1", fixedItem.CorrectAnswer)

	_, err := service.Submit(ctx, "s1", "Ann")
	var perr *domain.PersistenceError
	if !errors.As(err, &perr) {
		t.Fatalf("expected persistence error, got %v", err)
	}
	state, err := sessions.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if state.Submitted {
		t.Fatalf("stored session must stay unsubmitted after a failed insert")
	}
}

func TestAnswerAtRejectsStaleIndex(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(&fakeClock{now: time.Now()}, 3)

	_, _ = service.Start(ctx, "s1")
	if _, _, err := service.AnswerAt(ctx, "s1", 0, fixedItem.CorrectAnswer); err != nil {
		t.Fatalf("answer at 0: %v", err)
	}
	_, state, err := service.AnswerAt(ctx, "s1", 0, fixedItem.CorrectAnswer)
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition for a repeated index, got %v", err)
	}
	if state.CurrentIndex != 1 || state.CorrectCount != 1 {
		t.Fatalf("stale answer mutated the session: %+v", state)
	}
}

func TestStartUsesConfiguredQuestionCount(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(&fakeClock{now: time.Now()}, 4)

	state, err := service.Start(ctx, "s1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if len(state.Items) != 4 || service.QuestionCount() != 4 {
		t.Fatalf("expected 4 items, got %d", len(state.Items))
	}
}

var fixedItem = domain.QuizItem{Prompt: "7 x 8 = ?", CorrectAnswer: 56, Candidates: []int{12, 56, 81, 40}}

type staticGenerator struct{}

func (staticGenerator) Generate(count int) []domain.QuizItem {
	items := make([]domain.QuizItem, 0)
	for i := 0; i < count; i++ {
		items = append(items, fixedItem)
	}
	return items
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestService(clock *fakeClock, questions int) (*app.QuizService, *memory.LeaderboardStore) {
	store := memory.NewLeaderboardStore()
	service := app.NewQuizService(
		memory.NewSessionStore(time.Minute),
		staticGenerator{},
		leaderboard.NewEngine(store, leaderboard.DefaultSize),
		app.WithClock(clock.Now),
		app.WithQuestionCount(questions),
	)
	return service, store
}

// flakySessions fails Save calls once armed; saves made while failing are dropped.
type flakySessions struct {
	*memory.SessionStore
	failSaves bool
}

func (f *flakySessions) Save(ctx context.Context, sessionID string, state *session.State) error {
	if f.failSaves {
		return errors.New("session store unavailable")
	}
	return f.SessionStore.Save(ctx, sessionID, state)
}

type failingInserts struct {
	*memory.LeaderboardStore
}

func (failingInserts) Insert(context.Context, domain.LeaderboardEntry) error {
	return errors.New("insert failed")
}
