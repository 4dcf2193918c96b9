// Package server exposes the conversation API consumed by the ragchat
// client: chats are listed, read, appended to, renamed and deleted over
// HTTP/JSON, and every posted message is answered through a RAG pipeline.
package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"ragchat/internal/models"
	"ragchat/internal/storage"
)

// maxBodyBytes bounds the size of a posted message
const maxBodyBytes = 1 << 20

// ChatStore persists chats and their messages
type ChatStore interface {
	ListChats(ctx context.Context) ([]models.Summary, error)
	GetMessages(ctx context.Context, chatID string) ([]models.Message, error)
	AppendMessage(ctx context.Context, chatID string, msg models.Message) error
	RenameChat(ctx context.Context, chatID, title string) error
	DeleteChat(ctx context.Context, chatID string) error
}

// Answerer produces the AI reply to a question in the context of history
type Answerer interface {
	Answer(ctx context.Context, history []models.Message, question string) (*models.Reply, error)
}

// Server wraps the HTTP handlers for the chats API.
type Server struct {
	store    ChatStore
	answerer Answerer
	log      zerolog.Logger
}

// New creates a new Server instance.
func New(store ChatStore, answerer Answerer, log zerolog.Logger) *Server {
	return &Server{
		store:    store,
		answerer: answerer,
		log:      log.With().Str("component", "server").Logger(),
	}
}

// Register wires the API routes onto the supplied mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /chats", s.listChats)
	mux.HandleFunc("GET /chats/{id}", s.getChat)
	mux.HandleFunc("POST /chats/{id}", s.postMessage)
	mux.HandleFunc("DELETE /chats/{id}", s.deleteChat)
	mux.HandleFunc("PUT /chats/{id}/{title}", s.renameChat)
}

// Handler returns the routes wrapped in request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.Register(mux)
	return s.logRequests(mux)
}

func (s *Server) listChats(w http.ResponseWriter, r *http.Request) {
	chats, err := s.store.ListChats(r.Context())
	if err != nil {
		s.internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, chats)
}

func (s *Server) getChat(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.store.GetMessages(r.Context(), r.PathValue("id"))
	if err != nil {
		s.internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (s *Server) postMessage(w http.ResponseWriter, r *http.Request) {
	chatID := r.PathValue("id")

	var payload models.PostRequest
	if err := decodeJSON(http.MaxBytesReader(w, r.Body, maxBodyBytes), &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	question := strings.TrimSpace(payload.Message)
	if question == "" {
		writeErrorString(w, http.StatusBadRequest, "message is required")
		return
	}
	sender := payload.Sender
	if sender == "" {
		sender = models.SenderUser
	}

	ctx := r.Context()
	history, err := s.store.GetMessages(ctx, chatID)
	if err != nil {
		s.internalError(w, err)
		return
	}

	if err := s.store.AppendMessage(ctx, chatID, models.Message{Sender: sender, Text: question}); err != nil {
		s.internalError(w, err)
		return
	}

	reply, err := s.answerer.Answer(ctx, history, question)
	if err != nil {
		s.log.Error().Err(err).Str("chat_id", chatID).Msg("failed to answer")
		writeErrorString(w, http.StatusBadGateway, "failed to generate a reply")
		return
	}

	aiMsg := models.Message{
		Sender:  models.SenderAI,
		Text:    reply.Message,
		Sources: reply.Sources,
		Content: reply.Content,
	}
	if err := s.store.AppendMessage(ctx, chatID, aiMsg); err != nil {
		s.internalError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, reply)
}

func (s *Server) deleteChat(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteChat(r.Context(), r.PathValue("id")); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		s.internalError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) renameChat(w http.ResponseWriter, r *http.Request) {
	title := strings.TrimSpace(r.PathValue("title"))
	if title == "" {
		writeErrorString(w, http.StatusBadRequest, "title is required")
		return
	}

	if err := s.store.RenameChat(r.Context(), r.PathValue("id"), title); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		s.internalError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) internalError(w http.ResponseWriter, err error) {
	s.log.Error().Err(err).Msg("request failed")
	writeErrorString(w, http.StatusInternalServerError, "internal error")
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	_ = enc.Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeErrorString(w, status, err.Error())
}

func writeErrorString(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeJSON(body io.ReadCloser, dest any) error {
	defer body.Close()
	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}
