package models

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/bubbles/list"
)

// Sender identifies who authored a message
type Sender string

const (
	SenderUser   Sender = "User"
	SenderAI     Sender = "AI"
	SenderSystem Sender = "System"
)

// UntitledChat is used when no title can be derived from the first message
const UntitledChat = "Untitled Chat"

// Message represents a single chat message. Sources and Content are only
// populated on AI replies: Sources holds the file paths of the retrieved
// passages and Content the passages themselves, in the same order.
type Message struct {
	Sender  Sender    `json:"sender"`
	Text    string    `json:"message"`
	Sources []string  `json:"sources,omitempty"`
	Content []string  `json:"content,omitempty"`
	Time    time.Time `json:"timestamp"`
}

// Summary is a conversation as listed in the sidebar
type Summary struct {
	ID   string `json:"id"`
	Name string `json:"title"`
}

// FilterValue implements list.Item interface for the conversation list
func (s Summary) FilterValue() string { return s.Name }

// Title implements list.Item interface for the conversation list
func (s Summary) Title() string { return s.Name }

// Description implements list.Item interface for the conversation list
func (s Summary) Description() string {
	id := s.ID
	if utf8.RuneCountInString(id) > 13 {
		id = string([]rune(id)[:13]) + "…"
	}
	return id
}

var _ list.Item = Summary{}

// PostRequest is the body sent when posting a user message
type PostRequest struct {
	Sender  Sender `json:"sender"`
	Message string `json:"message"`
}

// Reply is the backend's answer to a posted message. ChatID is only set
// when the backend assigned an id other than the one the message was
// posted under.
type Reply struct {
	Message string   `json:"message"`
	Sources []string `json:"sources,omitempty"`
	Content []string `json:"content,omitempty"`
	ChatID  string   `json:"chat_id,omitempty"`
}

// DeriveTitle builds a conversation title from the first three words of text.
func DeriveTitle(text string) string {
	words := strings.Fields(text)
	if len(words) > 3 {
		words = words[:3]
	}
	if len(words) == 0 {
		return UntitledChat
	}
	return strings.Join(words, " ")
}
