package fallback_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khainl1110/speedtrivia/internal/fallback"
)

func TestNewBank(t *testing.T) {
	b, err := fallback.NewBank()
	require.NoError(t, err)
	require.Greater(t, b.Size(), 0, "bank must never be empty")
}

func TestBank_Pick(t *testing.T) {
	b, err := fallback.NewBank()
	require.NoError(t, err)

	for i := 0; i < 50; i++ {
		q := b.Pick()
		assert.True(t, b.Contains(q), "picked question must belong to the bank")
		assert.NoError(t, q.Validate(), "bank questions must satisfy the question invariants")
	}
}
