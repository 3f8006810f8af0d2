package domain

import (
	"fmt"
	"strings"
	"time"
)

// OptionCount is the number of answer options every question carries.
const OptionCount = 5

// Question is a single trivia question, regardless of whether it was
// generated or pulled from the fallback bank. It is transient and never
// persisted.
type Question struct {
	Text         string   `json:"question"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correctIndex"`
}

// Validate checks the structural invariants of a question. Generated
// questions are whatever the model returned, so callers must validate
// before trusting CorrectIndex.
func (q Question) Validate() error {
	if strings.TrimSpace(q.Text) == "" {
		return fmt.Errorf("empty question text")
	}

	if len(q.Options) != OptionCount {
		return fmt.Errorf("want %d options, got %d", OptionCount, len(q.Options))
	}

	for i, o := range q.Options {
		if strings.TrimSpace(o) == "" {
			return fmt.Errorf("option %d is empty", i)
		}
	}

	if q.CorrectIndex < 0 || q.CorrectIndex >= len(q.Options) {
		return fmt.Errorf("correct index %d out of range", q.CorrectIndex)
	}

	return nil
}

// Answer returns the text of the correct option.
func (q Question) Answer() string {
	return q.Options[q.CorrectIndex]
}

// LeaderboardEntry is one finished game. Entries are append-only: a player
// who plays twice appears twice.
type LeaderboardEntry struct {
	Name     string    `json:"name"`
	Score    int       `json:"score"`
	PlayedAt time.Time `json:"playedAt"`
}

// Leaderboard is a ranked list of entries, sorted by score descending and
// played-at ascending on ties, truncated to the top entries.
type Leaderboard struct {
	Entries []LeaderboardEntry `json:"entries"`
}
