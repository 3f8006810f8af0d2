// Package session implements the per-connection trivia session engine:
// topic and score tracking plus the generate-validate-dedup-retry loop.
package session

import (
	"context"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/khainl1110/speedtrivia/internal/dedup"
	"github.com/khainl1110/speedtrivia/internal/domain"
	"github.com/khainl1110/speedtrivia/internal/telemetry"
)

const (
	// DefaultTopic is substituted when a session has no qualifying topic.
	DefaultTopic = "general knowledge"

	// minTopicLen is the shortest trimmed topic that counts as a selection.
	minTopicLen = 3

	defaultMaxAttempts    = 4
	defaultAttemptTimeout = 10 * time.Second
	defaultBlockedTerms   = 8
)

// Generator produces one question per call. One outbound network call per
// invocation, no internal retries.
type Generator interface {
	Generate(ctx context.Context, topic string, blocked []string) (domain.Question, error)
}

// Bank supplies pre-authored questions once the retry budget is spent.
type Bank interface {
	Pick() domain.Question
}

type State int

const (
	StateAwaitingName State = iota
	StateInProgress
	StateEnded
)

type Config struct {
	Generator Generator
	Bank      Bank

	// Ledger is the session's dedup window. Each engine owns its own
	// ledger; passing one in is for tests.
	Ledger *dedup.Ledger

	// MaxAttempts bounds the shared retry budget for generation failures,
	// malformed questions and duplicates.
	MaxAttempts int

	// AttemptTimeout bounds a single generation call.
	AttemptTimeout time.Duration

	// BlockedTerms is how many recent answers are sent as the exclusion
	// hint on each generation call.
	BlockedTerms int
}

// Engine drives one connection's game. All fields are touched only by that
// connection's events, handled sequentially, so there is no locking here.
type Engine struct {
	id  string
	cfg Config

	ledger *dedup.Ledger

	name  string
	topic string
	score int
	state State
}

func NewEngine(c Config) *Engine {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = defaultAttemptTimeout
	}
	if c.BlockedTerms <= 0 {
		c.BlockedTerms = defaultBlockedTerms
	}

	l := c.Ledger
	if l == nil {
		l = dedup.NewLedger()
	}

	return &Engine{
		id:     uuid.NewString(),
		cfg:    c,
		ledger: l,
	}
}

// GameEnd is the end-of-game summary emitted once the client has submitted
// its final score.
type GameEnd struct {
	End   bool   `json:"end"`
	Score int    `json:"score"`
	Name  string `json:"name"`
}

// Reply is the engine's answer to one chat message: exactly one of
// Question or End is set.
type Reply struct {
	Question *domain.Question
	End      *GameEnd
}

// HandleChat applies one decoded chat message to the session and produces
// the next question, or the end summary if the game is already over. The
// client always receives some question; generation failures degrade to the
// fallback bank, never to an error.
func (e *Engine) HandleChat(ctx context.Context, msg Message) Reply {
	switch m := msg.(type) {
	case NameSet:
		e.setName(m.Name)
	case TopicSelect:
		e.setTopic(m.Topic)
	case ScoreDelta:
		e.addScore(m.Delta)
	case Combined:
		e.setName(m.Name)
		e.setTopic(m.Topic)
	}

	if e.state == StateEnded {
		return Reply{End: &GameEnd{End: true, Score: e.score, Name: e.name}}
	}

	if e.state == StateAwaitingName && e.name != "" {
		e.state = StateInProgress
	}

	q := e.nextQuestion(ctx)
	return Reply{Question: &q}
}

// End marks the game over with the client's final word on name and score.
// The engine never decides the game is over on its own; the lives
// countdown lives in the presentation layer.
func (e *Engine) End(name string, score int) {
	if n := strings.TrimSpace(name); n != "" {
		e.name = n
	}
	if score >= 0 {
		e.score = score
	}
	e.state = StateEnded
}

// Reset zeroes the score and clears name and topic stickiness. The dedup
// ledger is left alone: a restarted game on this connection still avoids
// its own recent questions.
func (e *Engine) Reset() {
	e.name = ""
	e.topic = ""
	e.score = 0
	e.state = StateAwaitingName
}

// Close zeroes the session state on disconnect.
func (e *Engine) Close() {
	e.score = 0
	e.state = StateEnded
}

func (e *Engine) ID() string    { return e.id }
func (e *Engine) Name() string  { return e.name }
func (e *Engine) Score() int    { return e.score }
func (e *Engine) Topic() string { return e.topic }
func (e *Engine) State() State  { return e.state }

// setName locks in the first non-empty name.
func (e *Engine) setName(name string) {
	if e.name != "" {
		return
	}
	if n := strings.TrimSpace(name); n != "" {
		e.name = n
	}
}

// setTopic applies the first qualifying topic selection; the topic then
// sticks for the rest of the game.
func (e *Engine) setTopic(topic string) {
	if e.topic != "" {
		return
	}

	t := strings.TrimSpace(topic)
	if utf8.RuneCountInString(t) < minTopicLen {
		return
	}
	e.topic = t
}

// addScore applies a trusted client-reported delta. The cumulative score
// never goes below zero.
func (e *Engine) addScore(d int) {
	e.score += d
	if e.score < 0 {
		e.score = 0
	}
}

func (e *Engine) effectiveTopic() string {
	if e.topic == "" {
		return DefaultTopic
	}
	return e.topic
}

// nextQuestion runs the generate-validate-dedup-retry protocol. Failures,
// malformed questions and duplicates all draw from the same attempt
// budget; exhaustion falls back to the static bank, whose questions bypass
// the ledger entirely.
func (e *Engine) nextQuestion(ctx context.Context) domain.Question {
	for attempt := 0; attempt < e.cfg.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			break
		}

		q, err := e.generateOnce(ctx)
		if err != nil {
			telemetry.GenerationFailures.Inc()
			slog.WarnContext(ctx, "engine: generation attempt failed",
				"session", e.id,
				"attempt", attempt,
				"error", err,
			)
			continue
		}

		if err := q.Validate(); err != nil {
			telemetry.GenerationFailures.Inc()
			slog.WarnContext(ctx, "engine: generated question rejected",
				"session", e.id,
				"attempt", attempt,
				"error", err,
			)
			continue
		}

		answer := dedup.NormalizeAnswer(q.Answer())
		body := dedup.NormalizeQuestion(q.Text)
		if e.ledger.IsDuplicate(answer, body) {
			telemetry.DuplicatesRejected.Inc()
			continue
		}

		e.ledger.Record(answer, body)
		telemetry.QuestionsServed.WithLabelValues(telemetry.SourceGenerated).Inc()
		return q
	}

	telemetry.QuestionsServed.WithLabelValues(telemetry.SourceFallback).Inc()
	slog.InfoContext(ctx, "engine: serving fallback question",
		"session", e.id,
		"topic", e.effectiveTopic(),
	)
	return e.cfg.Bank.Pick()
}

func (e *Engine) generateOnce(ctx context.Context) (domain.Question, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.AttemptTimeout)
	defer cancel()

	return e.cfg.Generator.Generate(ctx, e.effectiveTopic(), e.ledger.RecentAnswers(e.cfg.BlockedTerms))
}
