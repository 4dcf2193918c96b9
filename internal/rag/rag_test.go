package rag

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragchat/internal/models"
)

const testCorpus = `
documents:
  - source: docs/ir.pdf
    passages:
      - BM25 is a bag-of-words ranking function used by search engines.
      - Inverse document frequency lowers the weight of common terms.
  - source: docs/cooking.md
    text: |
      Pasta should be cooked in salted boiling water.

      Risotto needs constant stirring.
`

func testPassages(t *testing.T) []Passage {
	t.Helper()
	passages, err := ParseCorpus([]byte(testCorpus))
	require.NoError(t, err)
	return passages
}

func TestParseCorpus(t *testing.T) {
	passages := testPassages(t)

	require.Len(t, passages, 4)
	assert.Equal(t, Passage{Source: "docs/ir.pdf", Text: "BM25 is a bag-of-words ranking function used by search engines."}, passages[0])
	assert.Equal(t, Passage{Source: "docs/cooking.md", Text: "Pasta should be cooked in salted boiling water."}, passages[2])
	assert.Equal(t, Passage{Source: "docs/cooking.md", Text: "Risotto needs constant stirring."}, passages[3])
}

func TestParseCorpusRequiresSource(t *testing.T) {
	_, err := ParseCorpus([]byte("documents:\n  - text: orphan\n"))
	require.Error(t, err)
}

func TestLoadCorpus(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corpus.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testCorpus), 0644))

	passages, err := LoadCorpus(path)
	require.NoError(t, err)
	assert.Len(t, passages, 4)
}

func TestIndexSearchRanksRelevantPassages(t *testing.T) {
	idx := NewIndex(testPassages(t))
	require.Equal(t, 4, idx.Len())

	hits := idx.Search("How does BM25 ranking work?", 3)
	require.NotEmpty(t, hits)
	assert.Equal(t, "docs/ir.pdf", hits[0].Source)
	assert.Contains(t, hits[0].Text, "BM25")
	for i := 1; i < len(hits); i++ {
		assert.GreaterOrEqual(t, hits[i-1].Score, hits[i].Score)
	}

	hits = idx.Search("risotto", 3)
	require.Len(t, hits, 1)
	assert.Equal(t, "Risotto needs constant stirring.", hits[0].Text)
}

func TestIndexSearchLimits(t *testing.T) {
	idx := NewIndex(testPassages(t))

	assert.Len(t, idx.Search("the terms water search", 1), 1)
	assert.Empty(t, idx.Search("quantum chromodynamics", 3))
	assert.Empty(t, idx.Search("bm25", 0))
	assert.Empty(t, NewIndex(nil).Search("bm25", 3))
}

func TestBuildMessages(t *testing.T) {
	history := []models.Message{
		{Sender: models.SenderUser, Text: "one"},
		{Sender: models.SenderAI, Text: "two"},
		{Sender: models.SenderSystem, Text: "Error: skipped"},
		{Sender: models.SenderUser, Text: "three"},
		{Sender: models.SenderAI, Text: "four"},
		{Sender: models.SenderUser, Text: "five"},
	}
	hits := []Hit{{Passage: Passage{Source: "a.pdf", Text: "alpha"}, Score: 1}}

	msgs := buildMessages(history, "question?", hits)

	require.Len(t, msgs, 5)
	assert.Equal(t, openai.ChatMessageRoleSystem, msgs[0].Role)
	assert.Contains(t, msgs[0].Content, "[1] (a.pdf) alpha")
	assert.Equal(t, "three", msgs[1].Content)
	assert.Equal(t, openai.ChatMessageRoleAssistant, msgs[2].Role)
	assert.Equal(t, "five", msgs[3].Content)
	assert.Equal(t, openai.ChatMessageRoleUser, msgs[4].Role)
	assert.Equal(t, "question?", msgs[4].Content)
}

func newCompletionServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req openai.ChatCompletionRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(openai.ChatCompletionResponse{
			ID:     "cmpl-1",
			Object: "chat.completion",
			Model:  req.Model,
			Choices: []openai.ChatCompletionChoice{{
				Message:      openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: content},
				FinishReason: openai.FinishReasonStop,
			}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAIReplier(t *testing.T) {
	srv := newCompletionServer(t, "BM25 scores term overlap.")
	r := NewOpenAIReplier("test-key", srv.URL+"/v1", "test-model", 256)

	answer, err := r.Reply(context.Background(), nil, "what is bm25", nil)
	require.NoError(t, err)
	assert.Equal(t, "BM25 scores term overlap.", answer)
}

func TestOpenAIReplierFallback(t *testing.T) {
	srv := newCompletionServer(t, "  ")
	r := NewOpenAIReplier("test-key", srv.URL+"/v1", "test-model", 256)

	answer, err := r.Reply(context.Background(), nil, "?", nil)
	require.NoError(t, err)
	assert.Equal(t, FallbackAnswer, answer)
}

type fakeReplier struct {
	gotHits []Hit
}

func (f *fakeReplier) Reply(_ context.Context, _ []models.Message, _ string, hits []Hit) (string, error) {
	f.gotHits = hits
	return "answer", nil
}

func TestPipelineAnswer(t *testing.T) {
	replier := &fakeReplier{}
	p := &Pipeline{Index: NewIndex(testPassages(t)), Replier: replier, TopK: 2}

	reply, err := p.Answer(context.Background(), nil, "bm25 ranking")
	require.NoError(t, err)

	assert.Equal(t, "answer", reply.Message)
	require.NotEmpty(t, reply.Sources)
	assert.Equal(t, "docs/ir.pdf", reply.Sources[0])
	assert.Len(t, reply.Content, len(reply.Sources))
	assert.Len(t, replier.gotHits, len(reply.Sources))
}

func TestPipelineWithoutIndex(t *testing.T) {
	p := &Pipeline{Replier: &fakeReplier{}, TopK: 3}

	reply, err := p.Answer(context.Background(), nil, "anything")
	require.NoError(t, err)
	assert.NotNil(t, reply.Sources)
	assert.Empty(t, reply.Sources)
	assert.Empty(t, reply.Content)
}
