// Package quiz generates multiplication questions.
package quiz

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"timestable-quiz/internal/domain"
)

const (
	candidateCount = 4
	minAnswer      = 2
	maxAnswer      = 81 // 9 x 9
)

// Generator produces quiz items from a shared random source.
type Generator struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func NewGenerator() *Generator {
	return NewGeneratorWithRand(rand.New(rand.NewSource(time.Now().UnixNano())))
}

// NewGeneratorWithRand allows deterministic sequences in tests.
func NewGeneratorWithRand(rnd *rand.Rand) *Generator {
	return &Generator{rnd: rnd}
}

// Generate returns count items. A non-positive count yields an empty slice.
func (g *Generator) Generate(count int) []domain.QuizItem {
	if count <= 0 {
		return []domain.QuizItem{}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	items := make([]domain.QuizItem, 0, count)
	for i := 0; i < count; i++ {
		items = append(items, g.item())
	}
	return items
}

func (g *Generator) item() domain.QuizItem {
	x := g.between(2, 9)
	y := g.between(1, 9)
	answer := x * y

	seen := map[int]struct{}{answer: {}}
	candidates := []int{answer}
	for len(candidates) < candidateCount {
		wrong := g.between(minAnswer, maxAnswer)
		if _, dup := seen[wrong]; dup {
			continue
		}
		seen[wrong] = struct{}{}
		candidates = append(candidates, wrong)
	}
	g.rnd.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})

	return domain.QuizItem{
		Prompt:        fmt.Sprintf("%d x %d = ?", x, y),
		CorrectAnswer: answer,
		Candidates:    candidates,
	}
}

// between returns a uniform integer in [lo, hi].
func (g *Generator) between(lo, hi int) int {
	return lo + g.rnd.Intn(hi-lo+1)
}
