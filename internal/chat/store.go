// Package chat holds the conversation state of a ragchat session: the
// active conversation, its transcript and the sidebar history.
//
// The Store applies user input optimistically, forwards it to a Service and
// reconciles the server's answer. Every remote call is tagged with the
// conversation it was issued for, and a result is only applied while that
// conversation is still the active one. Late answers for a conversation the
// user has left are dropped and reported as ErrSuperseded.
package chat

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"ragchat/internal/models"
)

const (
	// LoadErrorText is appended to the transcript when messages cannot be fetched
	LoadErrorText = "Error: Could not load previous messages."
	// SendErrorText is appended to the transcript when the AI cannot be reached
	SendErrorText = "Error: Unable to reach the AI. Please try again later."

	DefaultTimeout = 30 * time.Second
)

// ErrSuperseded is returned when a response arrived after the active
// conversation changed. The response is discarded.
var ErrSuperseded = errors.New("response superseded by a newer request")

// Service is the remote conversation backend
type Service interface {
	ListChats(ctx context.Context) ([]models.Summary, error)
	GetMessages(ctx context.Context, id string) ([]models.Message, error)
	PostMessage(ctx context.Context, id, text string) (*models.Reply, error)
	DeleteChat(ctx context.Context, id string) error
	RenameChat(ctx context.Context, id, title string) error
}

// Phase is the lifecycle state of the active conversation id
type Phase int

const (
	// PhaseEmpty means no conversation is open
	PhaseEmpty Phase = iota
	// PhasePending means the id was generated locally and not yet confirmed
	PhasePending
	// PhaseBound means the id is known to the backend
	PhaseBound
)

func (p Phase) String() string {
	switch p {
	case PhasePending:
		return "pending"
	case PhaseBound:
		return "bound"
	default:
		return "empty"
	}
}

// State is a point-in-time copy of the store
type State struct {
	ChatID       string
	Phase        Phase
	Messages     []models.Message
	History      []models.Summary
	HistoryStale bool
}

// ChatPath is the navigation target for a conversation
func ChatPath(id string) string {
	return "/chat/" + id
}

// Option configures a Store
type Option func(*Store)

// WithLogger sets the logger failures are reported to
func WithLogger(log zerolog.Logger) Option {
	return func(s *Store) {
		s.log = log
	}
}

// WithTimeout bounds every call to the Service
func WithTimeout(d time.Duration) Option {
	return func(s *Store) {
		s.timeout = d
	}
}

// WithIDGenerator replaces the uuid generator used for new conversations
func WithIDGenerator(fn func() string) Option {
	return func(s *Store) {
		s.newID = fn
	}
}

// WithClock replaces time.Now for message timestamps
func WithClock(fn func() time.Time) Option {
	return func(s *Store) {
		s.now = fn
	}
}

// Store is the conversation state of one session. It is safe for
// concurrent use; the lock is never held across a Service call or a
// callback.
type Store struct {
	svc     Service
	log     zerolog.Logger
	timeout time.Duration
	newID   func() string
	now     func() time.Time

	mu           sync.Mutex
	chatID       string
	phase        Phase
	messages     []models.Message
	history      []models.Summary
	historyStale bool

	// loadSeq increases whenever the transcript is replaced or reset, so
	// an older load can never overwrite a newer one. historySeq does the
	// same for history: it moves on every refresh and every local edit.
	loadSeq    uint64
	historySeq uint64

	// notifyMu serializes deliveries so subscribers see snapshots in order
	notifyMu sync.Mutex
	subs     map[int]func(State)
	nextSub  int
}

// NewStore creates an empty store backed by svc
func NewStore(svc Service, opts ...Option) *Store {
	s := &Store{
		svc:     svc,
		log:     zerolog.Nop(),
		timeout: DefaultTimeout,
		newID:   func() string { return uuid.New().String() },
		now:     time.Now,
		subs:    make(map[int]func(State)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With().Str("component", "store").Logger()
	return s
}

// Subscribe registers fn to be called with a fresh snapshot after every
// state change. Snapshots arrive in order and the last one delivered always
// matches the store. fn may read the store but must not change it. The
// returned function removes the subscription.
func (s *Store) Subscribe(fn func(State)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

// Snapshot returns a copy of the current state
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// ChatID returns the active conversation id, or "" when none is open
func (s *Store) ChatID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chatID
}

// Messages returns a copy of the active transcript
func (s *Store) Messages() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyMessages(s.messages)
}

// History returns a copy of the sidebar history
func (s *Store) History() []models.Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Summary(nil), s.history...)
}

// RefreshHistory replaces the history with the backend's list. On failure
// the last known history is kept and flagged stale.
func (s *Store) RefreshHistory(ctx context.Context) error {
	s.mu.Lock()
	s.historySeq++
	seq := s.historySeq
	s.mu.Unlock()

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	chats, err := s.svc.ListChats(ctx)

	s.mu.Lock()
	if seq != s.historySeq {
		s.mu.Unlock()
		s.log.Debug().Uint64("seq", seq).Msg("dropping superseded history refresh")
		return ErrSuperseded
	}
	if err != nil {
		s.historyStale = true
		s.mu.Unlock()
		s.notify()
		s.log.Error().Err(err).Msg("failed to refresh chat history")
		return errors.Wrap(err, "refreshing chat history")
	}
	s.history = dedupeSummaries(chats)
	s.historyStale = false
	s.mu.Unlock()

	s.notify()
	return nil
}

// LoadConversation makes id the active conversation and fetches its
// messages. The id switch is visible before the fetch completes. If the
// fetch fails an error entry is appended to whatever transcript is shown.
func (s *Store) LoadConversation(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}

	s.mu.Lock()
	s.chatID = id
	s.phase = PhaseBound
	s.loadSeq++
	seq := s.loadSeq
	s.mu.Unlock()
	s.notify()

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	msgs, err := s.svc.GetMessages(ctx, id)

	s.mu.Lock()
	if s.chatID != id || s.loadSeq != seq {
		s.mu.Unlock()
		s.log.Debug().Str("chat_id", id).Msg("dropping superseded message load")
		return ErrSuperseded
	}
	if err != nil {
		s.messages = append(s.messages, s.systemMessage(LoadErrorText))
		s.mu.Unlock()
		s.notify()
		s.log.Error().Err(err).Str("chat_id", id).Msg("failed to fetch messages")
		return errors.Wrapf(err, "loading chat %s", id)
	}
	s.messages = copyMessages(msgs)
	s.mu.Unlock()

	s.notify()
	return nil
}

// SendMessage appends text as a user message and posts it to the backend.
// Blank text is ignored. When no conversation is open a new one is started
// with a locally generated id and navigate, if given, is called with its
// path before the message is posted.
func (s *Store) SendMessage(ctx context.Context, text string, navigate func(path string)) error {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}

	s.mu.Lock()
	created := false
	if s.chatID == "" {
		s.chatID = s.newID()
		s.phase = PhasePending
		s.loadSeq++
		s.history = prependSummary(s.history, models.Summary{ID: s.chatID, Name: models.DeriveTitle(text)})
		s.historySeq++
		created = true
	}
	id := s.chatID
	s.messages = append(s.messages, models.Message{Sender: models.SenderUser, Text: text, Time: s.now()})
	s.mu.Unlock()
	s.notify()

	if created {
		s.log.Debug().Str("chat_id", id).Msg("started new chat")
		if navigate != nil {
			navigate(ChatPath(id))
		}
	}

	callCtx, cancel := s.withTimeout(ctx)
	reply, err := s.svc.PostMessage(callCtx, id, trimmed)
	cancel()

	s.mu.Lock()
	if s.chatID != id {
		s.mu.Unlock()
		s.log.Warn().Str("chat_id", id).Msg("dropping reply for inactive chat")
		return ErrSuperseded
	}
	if err != nil {
		s.messages = append(s.messages, s.systemMessage(SendErrorText))
		s.mu.Unlock()
		s.notify()
		s.log.Error().Err(err).Str("chat_id", id).Msg("failed to post message")
		return errors.Wrapf(err, "posting message to chat %s", id)
	}

	s.messages = append(s.messages, models.Message{
		Sender:  models.SenderAI,
		Text:    reply.Message,
		Sources: nonNil(reply.Sources),
		Content: nonNil(reply.Content),
		Time:    s.now(),
	})
	rebound := ""
	if reply.ChatID != "" && reply.ChatID != id {
		rebound = reply.ChatID
		s.chatID = rebound
		s.history = renameSummaryID(s.history, id, rebound)
		s.historySeq++
	}
	s.phase = PhaseBound
	s.mu.Unlock()
	s.notify()

	if rebound != "" {
		s.log.Info().Str("local_id", id).Str("chat_id", rebound).Msg("backend reassigned chat id")
		if navigate != nil {
			navigate(ChatPath(rebound))
		}
	}

	// The reply is already shown; a failed refresh only leaves the
	// sidebar stale.
	if err := s.RefreshHistory(ctx); err != nil && !errors.Is(err, ErrSuperseded) {
		s.log.Warn().Err(err).Msg("history left stale after reply")
	}
	return nil
}

// DeleteConversation deletes id on the backend and removes it locally.
// Deleting the active conversation closes it.
func (s *Store) DeleteConversation(ctx context.Context, id string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.svc.DeleteChat(ctx, id); err != nil {
		s.log.Error().Err(err).Str("chat_id", id).Msg("failed to delete chat")
		return errors.Wrapf(err, "deleting chat %s", id)
	}

	s.mu.Lock()
	s.history = removeSummary(s.history, id)
	s.historySeq++
	if s.chatID == id {
		s.resetLocked()
	}
	s.mu.Unlock()

	s.notify()
	return nil
}

// RenameConversation renames id on the backend, then resyncs the history.
// A blank title is ignored.
func (s *Store) RenameConversation(ctx context.Context, id, title string) error {
	if strings.TrimSpace(title) == "" {
		return nil
	}

	callCtx, cancel := s.withTimeout(ctx)
	err := s.svc.RenameChat(callCtx, id, title)
	cancel()
	if err != nil {
		s.log.Error().Err(err).Str("chat_id", id).Msg("failed to rename chat")
		return errors.Wrapf(err, "renaming chat %s", id)
	}

	s.mu.Lock()
	changed := false
	if s.chatID == id {
		for i := range s.history {
			if s.history[i].ID == id {
				s.history[i].Name = title
				changed = true
			}
		}
	}
	if changed {
		s.historySeq++
	}
	s.mu.Unlock()
	if changed {
		s.notify()
	}

	if err := s.RefreshHistory(ctx); err != nil && !errors.Is(err, ErrSuperseded) {
		s.log.Warn().Err(err).Msg("history left stale after rename")
	}
	return nil
}

// NewConversation closes the active conversation without touching the
// backend. The next SendMessage starts a new one.
func (s *Store) NewConversation() {
	s.mu.Lock()
	s.resetLocked()
	s.mu.Unlock()
	s.notify()
}

func (s *Store) resetLocked() {
	s.chatID = ""
	s.phase = PhaseEmpty
	s.messages = nil
	s.loadSeq++
}

func (s *Store) systemMessage(text string) models.Message {
	return models.Message{Sender: models.SenderSystem, Text: text, Time: s.now()}
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *Store) snapshotLocked() State {
	return State{
		ChatID:       s.chatID,
		Phase:        s.phase,
		Messages:     copyMessages(s.messages),
		History:      append([]models.Summary(nil), s.history...),
		HistoryStale: s.historyStale,
	}
}

// notify delivers the current state to every subscriber. Subscribers must
// not call back into store operations that change state.
func (s *Store) notify() {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	if len(s.subs) == 0 {
		s.mu.Unlock()
		return
	}
	state := s.snapshotLocked()
	subs := make([]func(State), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(state)
	}
}
