package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"timestable-quiz/internal/domain"
	"timestable-quiz/internal/leaderboard"
	"timestable-quiz/internal/logger"
	"timestable-quiz/internal/metrics"
	"timestable-quiz/internal/session"
)

// SessionRepository abstracts how session state is kept between requests (in-memory, Redis, etc).
type SessionRepository interface {
	Get(ctx context.Context, sessionID string) (*session.State, error)
	Save(ctx context.Context, sessionID string, state *session.State) error
	Delete(ctx context.Context, sessionID string) error
}

// QuestionGenerator produces the items of a new run.
type QuestionGenerator interface {
	Generate(count int) []domain.QuizItem
}

// QuizService contains the quiz use cases. Every call loads the session,
// applies one transition and saves it back.
type QuizService struct {
	sessions  SessionRepository
	questions QuestionGenerator
	board     *leaderboard.Engine
	itemCount int
	now       func() time.Time
	log       logger.Logger
	metrics   *metrics.Recorder
}

// Option customizes a QuizService.
type Option func(*QuizService)

// WithClock is test-only for deterministic timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *QuizService) { s.now = now }
}

func WithLogger(log logger.Logger) Option {
	return func(s *QuizService) { s.log = log }
}

func WithMetrics(m *metrics.Recorder) Option {
	return func(s *QuizService) { s.metrics = m }
}

// WithQuestionCount sets the number of items per run (default 10).
func WithQuestionCount(n int) Option {
	return func(s *QuizService) { s.itemCount = n }
}

func NewQuizService(sessions SessionRepository, questions QuestionGenerator, board *leaderboard.Engine, opts ...Option) *QuizService {
	s := &QuizService{
		sessions:  sessions,
		questions: questions,
		board:     board,
		itemCount: 10,
		now:       time.Now,
		log:       logger.Nop(),
		metrics:   metrics.NewRecorder(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// QuestionCount is the number of items every run gets.
func (s *QuizService) QuestionCount() int {
	return s.itemCount
}

// Open returns the session for sessionID, creating an idle one if needed.
func (s *QuizService) Open(ctx context.Context, sessionID string) (*session.State, error) {
	state, err := s.sessions.Get(ctx, sessionID)
	if err == nil {
		return state, nil
	}
	if !errors.Is(err, domain.ErrSessionNotFound) {
		return nil, err
	}
	state = session.New()
	if err := s.sessions.Save(ctx, sessionID, state); err != nil {
		return nil, err
	}
	return state, nil
}

// Start generates the configured number of items and begins a run.
func (s *QuizService) Start(ctx context.Context, sessionID string) (*session.State, error) {
	state, err := s.Open(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := state.Start(s.questions.Generate(s.itemCount), s.now()); err != nil {
		return state, err
	}
	if err := s.sessions.Save(ctx, sessionID, state); err != nil {
		return nil, err
	}

	s.metrics.SessionStarted()
	s.log.Debug(ctx, "session started", logger.String("session_id", sessionID), logger.Int("items", len(state.Items)))
	if state.Phase == domain.PhaseFinished {
		s.recordFinished(ctx, sessionID, state)
	}
	return state, nil
}

// Answer applies choice to the current item.
func (s *QuizService) Answer(ctx context.Context, sessionID string, choice int) (domain.AnswerResult, *session.State, error) {
	return s.answer(ctx, sessionID, nil, choice)
}

// AnswerAt applies choice only if index is still the current item, so a
// resent or stale answer cannot land on the next question.
func (s *QuizService) AnswerAt(ctx context.Context, sessionID string, index, choice int) (domain.AnswerResult, *session.State, error) {
	return s.answer(ctx, sessionID, &index, choice)
}

func (s *QuizService) answer(ctx context.Context, sessionID string, index *int, choice int) (domain.AnswerResult, *session.State, error) {
	state, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return domain.AnswerResult{}, nil, err
	}

	item, ok := state.Current()
	if !ok {
		return domain.AnswerResult{Phase: state.Phase}, state, domain.ErrInvalidTransition
	}
	var phase domain.Phase
	if index != nil {
		phase, err = state.AnswerAt(*index, choice, s.now())
	} else {
		phase, err = state.Answer(choice, s.now())
	}
	if err != nil {
		return domain.AnswerResult{Phase: phase}, state, err
	}
	if err := s.sessions.Save(ctx, sessionID, state); err != nil {
		return domain.AnswerResult{}, nil, err
	}

	correct := choice == item.CorrectAnswer
	s.metrics.Answer(correct)
	if phase == domain.PhaseFinished {
		s.recordFinished(ctx, sessionID, state)
	}
	return domain.AnswerResult{
		Correct:       correct,
		CorrectAnswer: item.CorrectAnswer,
		Phase:         phase,
	}, state, nil
}

// Result reports the summary, mistakes, eligibility and current board of a
// finished session.
func (s *QuizService) Result(ctx context.Context, sessionID string) (domain.Result, error) {
	state, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return domain.Result{}, err
	}
	return s.result(ctx, state)
}

// Submit writes the finished session's score under name. It succeeds at most
// once per run.
func (s *QuizService) Submit(ctx context.Context, sessionID, name string) (domain.Result, error) {
	state, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return domain.Result{}, err
	}
	summary, err := state.Summary()
	if err != nil {
		return domain.Result{}, err
	}

	entry := domain.LeaderboardEntry{
		Name:           strings.TrimSpace(name),
		Score:          summary.Score,
		ElapsedSeconds: summary.ElapsedSeconds,
		CorrectCount:   summary.CorrectCount,
	}
	checkpoint := func() error {
		return s.sessions.Save(ctx, sessionID, state)
	}
	if err := s.board.SubmitWithCheckpoint(ctx, entry, state, checkpoint); err != nil {
		outcome := submissionOutcome(err)
		s.metrics.Submission(outcome)
		if outcome == metrics.OutcomeError {
			s.log.Error(ctx, "leaderboard submit failed", logger.String("session_id", sessionID), logger.Error(err))
		}
		return domain.Result{}, err
	}
	s.metrics.Submission(metrics.OutcomeAdmitted)
	s.log.Info(ctx, "leaderboard entry added",
		logger.String("session_id", sessionID),
		logger.String("name", entry.Name),
		logger.Float64("score", entry.Score),
	)
	return s.result(ctx, state)
}

// Restart discards the session's run and returns it to Idle.
func (s *QuizService) Restart(ctx context.Context, sessionID string) (*session.State, error) {
	state, err := s.Open(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	state.Restart()
	if err := s.sessions.Save(ctx, sessionID, state); err != nil {
		return nil, err
	}
	return state, nil
}

// Leaderboard returns up to limit ranked entries.
func (s *QuizService) Leaderboard(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	return s.board.Board(ctx, limit)
}

func (s *QuizService) result(ctx context.Context, state *session.State) (domain.Result, error) {
	summary, err := state.Summary()
	if err != nil {
		return domain.Result{}, err
	}
	board, err := s.board.Board(ctx, s.board.Size())
	if err != nil {
		return domain.Result{}, err
	}

	// A submitted score was admitted; it may now sit exactly at the cutoff.
	eligible := state.Submitted || leaderboard.IsEligible(summary.Score, board, s.board.Size())
	return domain.Result{
		Summary:   summary,
		Mistakes:  state.Mistakes,
		Eligible:  eligible,
		Submitted: state.Submitted,
		Board:     board,
	}, nil
}

func (s *QuizService) recordFinished(ctx context.Context, sessionID string, state *session.State) {
	summary, err := state.Summary()
	if err != nil {
		return
	}
	s.metrics.SessionFinished(summary.Score)
	s.log.Debug(ctx, "session finished",
		logger.String("session_id", sessionID),
		logger.Int("correct", summary.CorrectCount),
		logger.Float64("score", summary.Score),
	)
}

func submissionOutcome(err error) string {
	switch {
	case errors.Is(err, domain.ErrAlreadySubmitted):
		return metrics.OutcomeDuplicate
	case errors.Is(err, domain.ErrNotEligible):
		return metrics.OutcomeNotEligible
	default:
		return metrics.OutcomeError
	}
}
