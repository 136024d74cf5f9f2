package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ent0n29/deadbot/internal/chat"
)

const missingMessage = "Missing 'message' in request body"

type chatRequest struct {
	Message   *string `json:"message"`
	SessionID string  `json:"session_id"`
}

type chatResponse struct {
	Response           string `json:"response"`
	SessionID          string `json:"session_id"`
	ConversationLength int    `json:"conversation_length"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil || req.Message == nil {
		s.countChat("bad_request")
		respondError(w, http.StatusBadRequest, "missing_message", missingMessage)
		return
	}
	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	reply, err := s.responder.Respond(r.Context(), sessionID, *req.Message)
	if err != nil {
		s.countChat("error")
		s.logger.Error("chat failed", "session_id", sessionID, "err", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "Internal server error: "+err.Error())
		return
	}

	length := reply.ConversationLength
	switch {
	case reply.Prompted:
		if sess, ok := s.sessions.Get(sessionID); ok {
			length = sess.Len()
		}
		s.countChat("prompted")
		s.metrics.ObserveOutcome("turn_total", "prompted_for_input")
	case strings.HasPrefix(reply.Text, chat.ApologyPrefix):
		s.countChat("apology")
		s.metrics.ObserveOutcome("generation", "apology_reply")
	default:
		s.countChat("ok")
	}
	s.metrics.SetActiveConversations(s.sessions.Len())

	respondJSON(w, http.StatusOK, chatResponse{
		Response:           reply.Text,
		SessionID:          sessionID,
		ConversationLength: length,
	})
}

type clearRequest struct {
	SessionID string `json:"session_id"`
}

func (s *Server) handleClearConversation(w http.ResponseWriter, r *http.Request) {
	var req clearRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		s.logger.Debug("clear conversation: ignoring malformed body", "err", err)
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": s.clearSession(strings.TrimSpace(req.SessionID))})
}

func (s *Server) clearSession(sessionID string) string {
	if sessionID == "" || !s.sessions.Clear(sessionID) {
		return "No conversation found"
	}
	if s.metrics != nil {
		s.metrics.SessionEvents.WithLabelValues("cleared").Inc()
	}
	s.metrics.SetActiveConversations(s.sessions.Len())
	return "Conversation cleared"
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sess, ok := s.sessions.Get(id)
	if !ok {
		respondError(w, http.StatusNotFound, "session_not_found", "No conversation found")
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

func (s *Server) countChat(outcome string) {
	if s.metrics == nil {
		return
	}
	s.metrics.ChatRequests.WithLabelValues(outcome).Inc()
}
