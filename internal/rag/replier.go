package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/sashabaranov/go-openai"

	"ragchat/internal/models"
)

// FallbackAnswer is returned when the model produces no text
const FallbackAnswer = "I'm sorry, but I couldn't find relevant information. Could you provide more details?"

const systemPrompt = "You are an assistant that answers questions based on additional context. " +
	"Respond in the same language as the user's question. " +
	"Please answer the question and state whether your response is based on the provided context or your own knowledge."

// historyTurns is how many earlier messages are sent along with the question
const historyTurns = 4

// Replier generates an answer to question grounded on hits
type Replier interface {
	Reply(ctx context.Context, history []models.Message, question string, hits []Hit) (string, error)
}

// OpenAIReplier answers through an OpenAI-compatible chat completion API
type OpenAIReplier struct {
	client    *openai.Client
	model     string
	maxTokens int
}

// NewOpenAIReplier creates a replier. baseURL may point at any
// OpenAI-compatible endpoint; empty means api.openai.com.
func NewOpenAIReplier(apiKey, baseURL, model string, maxTokens int) *OpenAIReplier {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIReplier{
		client:    openai.NewClientWithConfig(cfg),
		model:     model,
		maxTokens: maxTokens,
	}
}

// Reply implements Replier
func (r *OpenAIReplier) Reply(ctx context.Context, history []models.Message, question string, hits []Hit) (string, error) {
	resp, err := r.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     r.model,
		Messages:  buildMessages(history, question, hits),
		MaxTokens: r.maxTokens,
	})
	if err != nil {
		return "", errors.Wrap(err, "chat completion")
	}

	if len(resp.Choices) == 0 {
		return "", errors.New("no response from API")
	}

	answer := strings.TrimSpace(resp.Choices[0].Message.Content)
	if answer == "" {
		return FallbackAnswer, nil
	}
	return answer, nil
}

func buildMessages(history []models.Message, question string, hits []Hit) []openai.ChatCompletionMessage {
	prompt := systemPrompt
	if len(hits) > 0 {
		var ctxText strings.Builder
		for i, h := range hits {
			fmt.Fprintf(&ctxText, "\n[%d] (%s) %s", i+1, h.Source, h.Text)
		}
		prompt += "\nHere is the additional context, to help you answering the user question:" + ctxText.String()
	}

	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: prompt},
	}

	if len(history) > historyTurns {
		history = history[len(history)-historyTurns:]
	}
	for _, msg := range history {
		var role string
		switch msg.Sender {
		case models.SenderUser:
			role = openai.ChatMessageRoleUser
		case models.SenderAI:
			role = openai.ChatMessageRoleAssistant
		default:
			continue
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: msg.Text})
	}

	return append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: question,
	})
}

// Pipeline retrieves passages for a question and asks the Replier
type Pipeline struct {
	Index   *Index
	Replier Replier
	TopK    int
}

// Answer builds the reply returned to the client. Sources and Content
// list the retrieved passages in rank order.
func (p *Pipeline) Answer(ctx context.Context, history []models.Message, question string) (*models.Reply, error) {
	var hits []Hit
	if p.Index != nil {
		hits = p.Index.Search(question, p.TopK)
	}

	answer, err := p.Replier.Reply(ctx, history, question, hits)
	if err != nil {
		return nil, err
	}

	reply := &models.Reply{
		Message: answer,
		Sources: make([]string, 0, len(hits)),
		Content: make([]string, 0, len(hits)),
	}
	for _, h := range hits {
		reply.Sources = append(reply.Sources, h.Source)
		reply.Content = append(reply.Content, h.Text)
	}
	return reply, nil
}
