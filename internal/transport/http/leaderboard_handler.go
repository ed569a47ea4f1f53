package http

import (
	"encoding/json"
	"net/http"
	"strconv"

	"timestable-quiz/internal/app"
	"timestable-quiz/internal/domain"
	"timestable-quiz/internal/logger"
)

type rankedEntry struct {
	Rank int `json:"rank"`
	domain.LeaderboardEntry
}

type boardResponse struct {
	Entries []rankedEntry `json:"entries"`
}

// LeaderboardHandler serves GET /leaderboard?limit=N.
type LeaderboardHandler struct {
	service *app.QuizService
	log     logger.Logger
}

func NewLeaderboardHandler(service *app.QuizService, log logger.Logger) *LeaderboardHandler {
	return &LeaderboardHandler{service: service, log: log}
}

func (h *LeaderboardHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	entries, err := h.service.Leaderboard(r.Context(), limit)
	if err != nil {
		h.log.Error(r.Context(), "read leaderboard failed", logger.Error(err))
		http.Error(w, "leaderboard unavailable", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(boardResponse{Entries: ranked(entries)})
}

func ranked(entries []domain.LeaderboardEntry) []rankedEntry {
	out := make([]rankedEntry, 0, len(entries))
	for i, e := range entries {
		out = append(out, rankedEntry{Rank: i + 1, LeaderboardEntry: e})
	}
	return out
}
