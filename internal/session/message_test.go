package session_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khainl1110/speedtrivia/internal/session"
)

func TestDecodeMessage(t *testing.T) {
	tests := map[string]struct {
		raw  string
		want session.Message
	}{
		"string becomes a name":            {raw: `"Kim"`, want: session.NameSet{Name: "Kim"}},
		"number becomes a score delta":     {raw: `10`, want: session.ScoreDelta{Delta: 10}},
		"negative number":                  {raw: `-5`, want: session.ScoreDelta{Delta: -5}},
		"digit string becomes score delta": {raw: `"10"`, want: session.ScoreDelta{Delta: 10}},
		"object with both fields":          {raw: `{"name":"Kim","topic":"space"}`, want: session.Combined{Name: "Kim", Topic: "space"}},
		"object with topic only":           {raw: `{"topic":"space"}`, want: session.TopicSelect{Topic: "space"}},
		"object with name only":            {raw: `{"name":"Kim"}`, want: session.NameSet{Name: "Kim"}},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := session.DecodeMessage([]byte(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeMessage_Invalid(t *testing.T) {
	tests := map[string]string{
		"empty payload":  ``,
		"empty object":   `{}`,
		"boolean":        `true`,
		"broken json":    `{"name":`,
		"float delta":    `1.5`,
		"array payload":  `[1,2]`,
		"null payload":   `null`,
		"bare free text": `hello there`,
	}

	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := session.DecodeMessage([]byte(raw))
			assert.Error(t, err)
		})
	}
}
