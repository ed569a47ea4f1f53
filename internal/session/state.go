// Package session holds the per-player quiz state machine.
//
// A State is owned by exactly one connection or request context and is not
// safe for concurrent use. Transitions take the current time as an argument
// so callers decide which clock applies.
package session

import (
	"math"
	"time"

	"timestable-quiz/internal/domain"
)

const pointsPerCorrect = 10

// State is the mutable progress of a single quiz run.
type State struct {
	Items        []domain.QuizItem `json:"items"`
	CurrentIndex int               `json:"currentIndex"`
	CorrectCount int               `json:"correctCount"`
	Mistakes     []domain.Mistake  `json:"mistakes"`
	StartedAt    time.Time         `json:"startedAt"`
	FinishedAt   *time.Time        `json:"finishedAt,omitempty"`
	Phase        domain.Phase      `json:"phase"`
	Submitted    bool              `json:"submitted"`
}

// New returns an idle session.
func New() *State {
	s := &State{}
	s.Restart()
	return s
}

// Start begins a new run over items. It is allowed from Idle and Finished;
// any unsubmitted result of a previous run is discarded.
func (s *State) Start(items []domain.QuizItem, now time.Time) error {
	if s.Phase == domain.PhaseInProgress {
		return domain.ErrInvalidTransition
	}
	if items == nil {
		items = []domain.QuizItem{}
	}

	s.Items = items
	s.CurrentIndex = 0
	s.CorrectCount = 0
	s.Mistakes = []domain.Mistake{}
	s.StartedAt = now
	s.FinishedAt = nil
	s.Phase = domain.PhaseInProgress
	s.Submitted = false

	if len(items) == 0 {
		s.finish(now)
	}
	return nil
}

// Answer records choice for the current item and returns the resulting phase.
// Outside InProgress it leaves the state untouched.
func (s *State) Answer(choice int, now time.Time) (domain.Phase, error) {
	if s.Phase != domain.PhaseInProgress || s.CurrentIndex >= len(s.Items) {
		return s.Phase, domain.ErrInvalidTransition
	}

	item := s.Items[s.CurrentIndex]
	if choice == item.CorrectAnswer {
		s.CorrectCount++
	} else {
		s.Mistakes = append(s.Mistakes, domain.Mistake{
			Prompt:        item.Prompt,
			ChosenAnswer:  choice,
			CorrectAnswer: item.CorrectAnswer,
		})
	}
	s.CurrentIndex++

	if s.CurrentIndex == len(s.Items) {
		s.finish(now)
	}
	return s.Phase, nil
}

// AnswerAt is Answer guarded by the index the client was shown. A stale or
// repeated answer for another item is rejected without touching the state.
func (s *State) AnswerAt(index, choice int, now time.Time) (domain.Phase, error) {
	if index != s.CurrentIndex {
		return s.Phase, domain.ErrInvalidTransition
	}
	return s.Answer(choice, now)
}

// Current returns the item awaiting an answer.
func (s *State) Current() (domain.QuizItem, bool) {
	if s.Phase != domain.PhaseInProgress || s.CurrentIndex >= len(s.Items) {
		return domain.QuizItem{}, false
	}
	return s.Items[s.CurrentIndex], true
}

// Summary scores a finished run: max(correct*10 - elapsed, 0).
func (s *State) Summary() (domain.Summary, error) {
	if s.Phase != domain.PhaseFinished || s.FinishedAt == nil {
		return domain.Summary{}, domain.ErrInvalidTransition
	}

	elapsed := s.FinishedAt.Sub(s.StartedAt).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}
	score := math.Max(float64(s.CorrectCount*pointsPerCorrect)-elapsed, 0)

	return domain.Summary{
		CorrectCount:   s.CorrectCount,
		Total:          len(s.Items),
		ElapsedSeconds: Round2(elapsed),
		Score:          Round2(score),
	}, nil
}

// MarkSubmitted flags the run as written to the leaderboard.
func (s *State) MarkSubmitted() {
	s.Submitted = true
}

// Restart returns the session to Idle and clears every field.
func (s *State) Restart() {
	*s = State{
		Items:    []domain.QuizItem{},
		Mistakes: []domain.Mistake{},
		Phase:    domain.PhaseIdle,
	}
}

// Clone returns a deep copy that shares no slices with s.
func (s *State) Clone() *State {
	c := *s
	c.Items = make([]domain.QuizItem, len(s.Items))
	for i, item := range s.Items {
		item.Candidates = append([]int(nil), item.Candidates...)
		c.Items[i] = item
	}
	c.Mistakes = append([]domain.Mistake{}, s.Mistakes...)
	if s.FinishedAt != nil {
		finishedAt := *s.FinishedAt
		c.FinishedAt = &finishedAt
	}
	return &c
}

func (s *State) finish(now time.Time) {
	finishedAt := now
	s.FinishedAt = &finishedAt
	s.Phase = domain.PhaseFinished
}

// Round2 rounds v to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
