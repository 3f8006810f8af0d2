// Package fallback holds the static, pre-authored question bank used when
// generation is unavailable or the retry budget is exhausted.
package fallback

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"math/rand/v2"

	"github.com/khainl1110/speedtrivia/internal/domain"
)

//go:embed questions.json
var raw []byte

// Bank is a read-only set of questions. Its content bypasses dedup checks
// entirely and is never recorded into a ledger.
type Bank struct {
	questions []domain.Question
}

// NewBank loads the embedded question set.
func NewBank() (*Bank, error) {
	var qs []domain.Question
	if err := json.Unmarshal(raw, &qs); err != nil {
		return nil, fmt.Errorf("fallback: parse embedded questions: %w", err)
	}

	if len(qs) == 0 {
		return nil, fmt.Errorf("fallback: embedded question set is empty")
	}

	for i, q := range qs {
		if err := q.Validate(); err != nil {
			return nil, fmt.Errorf("fallback: question %d: %w", i, err)
		}
	}

	return &Bank{questions: qs}, nil
}

// Pick returns one question chosen uniformly at random.
func (b *Bank) Pick() domain.Question {
	return b.questions[rand.IntN(len(b.questions))]
}

// Contains reports whether q belongs to the bank, matched by question text.
func (b *Bank) Contains(q domain.Question) bool {
	for _, bq := range b.questions {
		if bq.Text == q.Text {
			return true
		}
	}
	return false
}

// Size returns the number of questions in the bank.
func (b *Bank) Size() int {
	return len(b.questions)
}
