// Package metrics exposes Prometheus counters for quiz and leaderboard activity.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "quiz"

// Submission outcomes.
const (
	OutcomeAdmitted    = "admitted"
	OutcomeNotEligible = "not_eligible"
	OutcomeDuplicate   = "duplicate"
	OutcomeError       = "error"
)

// Recorder owns the service metrics and the registry they live in.
type Recorder struct {
	registry *prometheus.Registry

	sessionsStarted  prometheus.Counter
	sessionsFinished prometheus.Counter
	answers          *prometheus.CounterVec
	submissions      *prometheus.CounterVec
	scores           prometheus.Histogram
}

// NewRecorder registers all metrics in a fresh registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		sessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_started_total",
			Help:      "Number of quiz sessions started.",
		}),
		sessionsFinished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_finished_total",
			Help:      "Number of quiz sessions that answered every question.",
		}),
		answers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "answers_total",
			Help:      "Answers received, by correctness.",
		}, []string{"result"}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "leaderboard",
			Name:      "submissions_total",
			Help:      "Leaderboard submissions, by outcome.",
		}, []string{"outcome"}),
		scores: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_score",
			Help:      "Final score of finished sessions.",
			Buckets:   prometheus.LinearBuckets(0, 10, 11),
		}),
	}
	r.registry.MustRegister(r.sessionsStarted, r.sessionsFinished, r.answers, r.submissions, r.scores)
	return r
}

func (r *Recorder) SessionStarted() { r.sessionsStarted.Inc() }

// SessionFinished counts a completed run and observes its score.
func (r *Recorder) SessionFinished(score float64) {
	r.sessionsFinished.Inc()
	r.scores.Observe(score)
}

func (r *Recorder) Answer(correct bool) {
	result := "wrong"
	if correct {
		result = "correct"
	}
	r.answers.WithLabelValues(result).Inc()
}

func (r *Recorder) Submission(outcome string) {
	r.submissions.WithLabelValues(outcome).Inc()
}

// Registry returns the underlying registry, mainly for tests.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
