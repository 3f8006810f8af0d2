package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// QuestionsServed counts questions emitted to clients, by source.
	QuestionsServed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "speedtrivia",
		Name:      "questions_served_total",
		Help:      "Questions emitted to clients, labelled by source.",
	}, []string{"source"})

	// GenerationFailures counts attempts lost to the question service.
	GenerationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "speedtrivia",
		Name:      "generation_failures_total",
		Help:      "Generation attempts that failed or returned a malformed question.",
	})

	// DuplicatesRejected counts attempts rejected by the dedup ledger.
	DuplicatesRejected = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "speedtrivia",
		Name:      "duplicates_rejected_total",
		Help:      "Generated questions rejected as duplicates of the live window.",
	})

	// ScoreSubmissions counts finished games submitted to the leaderboard.
	ScoreSubmissions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "speedtrivia",
		Name:      "score_submissions_total",
		Help:      "Finished games submitted to the leaderboard.",
	})
)

const (
	SourceGenerated = "generated"
	SourceFallback  = "fallback"
)
