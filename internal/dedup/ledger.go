// Package dedup suppresses repeated trivia questions within a sliding
// window of recently accepted ones.
package dedup

import (
	"regexp"
	"strings"
	"sync"
)

const defaultWindowSize = 12

var (
	nonAlnum   = regexp.MustCompile(`[^a-z0-9]+`)
	nonWordish = regexp.MustCompile(`[^\w\s]+`)
)

// NormalizeAnswer lowercases an answer and strips everything outside the
// alphanumeric set, so "The Moon!" and "the moon" collide.
func NormalizeAnswer(s string) string {
	return nonAlnum.ReplaceAllString(strings.ToLower(s), "")
}

// NormalizeQuestion lowercases a question body and strips everything
// outside word and whitespace characters, then trims. Looser than answer
// normalization: word boundaries are kept.
func NormalizeQuestion(s string) string {
	return strings.TrimSpace(nonWordish.ReplaceAllString(strings.ToLower(s), ""))
}

// Ledger holds two bounded FIFO windows of normalized answers and question
// bodies. No two accepted questions in the live window may share either.
type Ledger struct {
	mu        sync.Mutex
	answers   []string
	questions []string
	cap       int
}

// NewLedger creates an empty ledger.
func NewLedger(opts ...Option) *Ledger {
	l := &Ledger{cap: defaultWindowSize}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// IsDuplicate reports whether a candidate collides with the live window.
// An answer or question that is empty after normalization is unusable and
// counts as a duplicate.
func (l *Ledger) IsDuplicate(answer, question string) bool {
	if answer == "" || question == "" {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	return contains(l.answers, answer) || contains(l.questions, question)
}

// Record appends a normalized answer and question to the windows, evicting
// the oldest entries once either window exceeds its capacity.
func (l *Ledger) Record(answer, question string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.answers = push(l.answers, answer, l.cap)
	l.questions = push(l.questions, question, l.cap)
}

// RecentAnswers returns up to n of the most recent normalized answers,
// newest last. Used as the blocked-terms hint for generation.
func (l *Ledger) RecentAnswers(n int) []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	if n > len(l.answers) {
		n = len(l.answers)
	}

	out := make([]string, n)
	copy(out, l.answers[len(l.answers)-n:])
	return out
}

// Len returns the number of answers currently in the window.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.answers)
}

func contains(window []string, s string) bool {
	for _, w := range window {
		if w == s {
			return true
		}
	}
	return false
}

func push(window []string, s string, limit int) []string {
	window = append(window, s)
	if len(window) > limit {
		window = window[1:]
	}
	return window
}
