package domain

// Phase is the lifecycle stage of a quiz session.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseInProgress Phase = "in_progress"
	PhaseFinished   Phase = "finished"
)

// QuizItem is a single multiplication question with its shuffled candidates.
type QuizItem struct {
	Prompt        string `json:"prompt"`
	CorrectAnswer int    `json:"correctAnswer"`
	Candidates    []int  `json:"candidates"`
}

// Mistake records a wrong answer given during a session.
type Mistake struct {
	Prompt        string `json:"prompt"`
	ChosenAnswer  int    `json:"chosenAnswer"`
	CorrectAnswer int    `json:"correctAnswer"`
}

// Summary is the scored outcome of a finished session.
// Score and ElapsedSeconds are rounded to two decimals.
type Summary struct {
	CorrectCount   int     `json:"correctCount"`
	Total          int     `json:"total"`
	ElapsedSeconds float64 `json:"elapsedSeconds"`
	Score          float64 `json:"score"`
}

// LeaderboardEntry is an immutable row of the persistent board.
type LeaderboardEntry struct {
	Name           string  `json:"name"`
	Score          float64 `json:"score"`
	ElapsedSeconds float64 `json:"elapsedSeconds"`
	CorrectCount   int     `json:"correctCount"`
}

// Result is everything a client needs to render the end of a session.
type Result struct {
	Summary   Summary            `json:"summary"`
	Mistakes  []Mistake          `json:"mistakes"`
	Eligible  bool               `json:"eligible"`
	Submitted bool               `json:"submitted"`
	Board     []LeaderboardEntry `json:"board"`
}

// AnswerResult summarizes the outcome of a single answer.
type AnswerResult struct {
	Correct       bool  `json:"correct"`
	CorrectAnswer int   `json:"correctAnswer"`
	Phase         Phase `json:"phase"`
}
