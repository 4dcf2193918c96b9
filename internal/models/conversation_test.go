package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveTitle(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"two words", "hello world", "hello world"},
		{"truncates to three words", "what is retrieval augmented generation", "what is retrieval"},
		{"collapses whitespace", "  tell\tme   more  please", "tell me more"},
		{"single word", "x", "x"},
		{"blank", "   ", UntitledChat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveTitle(tt.text))
		})
	}
}

func TestReplyDecodesWithoutOptionalFields(t *testing.T) {
	var r Reply
	require.NoError(t, json.Unmarshal([]byte(`{"message":"hi"}`), &r))

	assert.Equal(t, "hi", r.Message)
	assert.Empty(t, r.Sources)
	assert.Empty(t, r.Content)
	assert.Empty(t, r.ChatID)
}

func TestSummaryListItem(t *testing.T) {
	s := Summary{ID: "0b6f3c2e-5d1f-4a57-9a0e-0c1d2e3f4a5b", Name: "hello world"}

	assert.Equal(t, "hello world", s.Title())
	assert.Equal(t, "hello world", s.FilterValue())
	assert.Equal(t, "0b6f3c2e-5d1f…", s.Description())
}
