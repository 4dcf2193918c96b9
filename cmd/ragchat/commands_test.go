package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragchat/internal/models"
)

func TestPrintHistory(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printHistory(&buf, []models.Summary{
		{ID: "a1", Name: "Tax deadlines"},
		{ID: "b22", Name: "Untitled Chat"},
	}))

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 3)
	assert.Equal(t, "ID   TITLE", string(lines[0]))
	assert.Equal(t, "a1   Tax deadlines", string(lines[1]))
	assert.Equal(t, "b22  Untitled Chat", string(lines[2]))
}

func TestPrintMessagesListsSources(t *testing.T) {
	var buf bytes.Buffer
	printMessages(&buf, []models.Message{
		{Sender: models.SenderUser, Text: "when is it due?"},
		{Sender: models.SenderAI, Text: "April 15.", Sources: []string{"docs/tax.md", "docs/faq.md"}},
	})

	assert.Equal(t,
		"User\nwhen is it due?\n\nAI\nApril 15.\n  [1] docs/tax.md\n  [2] docs/faq.md\n\n",
		buf.String())
}
