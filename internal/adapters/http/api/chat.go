package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/okian/queryai/internal/domain/chat"
	model "github.com/okian/queryai/internal/domain/model"
)

type chatRequest struct {
	Message string `json:"message"`
	UserID  string `json:"user_id"`
}

type chatResponse struct {
	Response  string `json:"response"`
	Timestamp string `json:"timestamp"`
	UserID    string `json:"user_id"`
}

type historyResponse struct {
	UserID        string              `json:"user_id"`
	History       []model.ChatMessage `json:"history"`
	TotalMessages int                 `json:"total_messages"`
}

type clearResponse struct {
	UserID  string `json:"user_id"`
	Cleared bool   `json:"cleared"`
	Message string `json:"message"`
}

type usersResponse struct {
	ActiveUsers []string `json:"active_users"`
	TotalUsers  int      `json:"total_users"`
}

// handleChat handles POST /chat. Generator failures are reported as 500
// with the error text.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	const op = "api.chat"
	var req chatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, Wrap(op, err))
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, errors.New("missing message")))
		return
	}

	userID := chat.UserID(req.UserID)
	reply, err := s.deps.Chat(r.Context(), userID, req.Message)
	if err != nil {
		s.fail(w, r, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{
		Response:  reply,
		Timestamp: time.Now().Format(time.RFC3339Nano),
		UserID:    userID,
	})
}

// handleGetHistory handles GET /history/{user_id}.
func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_history"
	userID := r.PathValue("user_id")
	history, err := s.deps.History(r.Context(), userID)
	if err != nil {
		s.fail(w, r, Wrap(op, err))
		return
	}
	if history == nil {
		history = []model.ChatMessage{}
	}
	writeJSON(w, http.StatusOK, historyResponse{UserID: userID, History: history, TotalMessages: len(history)})
}

// handleClearHistory handles DELETE /history/{user_id}.
func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	const op = "api.clear_history"
	userID := r.PathValue("user_id")
	cleared, err := s.deps.ClearHistory(r.Context(), userID)
	if err != nil {
		s.fail(w, r, Wrap(op, err))
		return
	}
	msg := "No history found for user"
	if cleared {
		msg = "Conversation history cleared successfully!"
	}
	writeJSON(w, http.StatusOK, clearResponse{UserID: userID, Cleared: cleared, Message: msg})
}

// handleUsers handles GET /users.
func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request) {
	const op = "api.users"
	users, err := s.deps.Users(r.Context())
	if err != nil {
		s.fail(w, r, Wrap(op, err))
		return
	}
	if users == nil {
		users = []string{}
	}
	writeJSON(w, http.StatusOK, usersResponse{ActiveUsers: users, TotalUsers: len(users)})
}
