package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ent0n29/deadbot/internal/protocol"
)

func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	s.countSession("ws_connected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	inbound := make(chan any, 64)
	outbound := make(chan any, 64)

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		s.runConnection(ctx, sessionID, inbound, outbound)
	}()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-outbound:
				if !ok {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				if err := conn.WriteJSON(msg); err != nil {
					cancel()
					return
				}
				s.countWS("outbound", msg)
			}
		}
	}()

	outbound <- protocol.SystemEvent{
		Type:      protocol.TypeSystemEvent,
		SessionID: sessionID,
		Code:      "connected",
	}

	conn.SetReadLimit(64 << 10)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

readLoop:
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if msgType != websocket.TextMessage {
			continue
		}
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))

		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			select {
			case outbound <- protocol.ErrorEvent{
				Type:      protocol.TypeErrorEvent,
				SessionID: sessionID,
				Code:      "invalid_client_message",
				Source:    "gateway",
				Detail:    err.Error(),
			}:
			default:
				// Writes stay single-threaded; drop when the queue is full.
			}
			continue
		}
		s.countWS("inbound", parsed)

		select {
		case <-ctx.Done():
			break readLoop
		case inbound <- parsed:
		}
	}

	cancel()
	close(inbound)
	<-runDone
	<-writerDone
	s.countSession("ws_disconnected")
}

// runConnection answers inbound messages in order until inbound closes.
func (s *Server) runConnection(ctx context.Context, sessionID string, inbound <-chan any, outbound chan<- any) {
	send := func(v any) {
		select {
		case <-ctx.Done():
		case outbound <- v:
		}
	}

	for msg := range inbound {
		switch m := msg.(type) {
		case protocol.ChatMessage:
			id := sessionID
			if sid := strings.TrimSpace(m.SessionID); sid != "" {
				id = sid
			}
			reply, err := s.responder.Respond(ctx, id, m.Text)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				send(protocol.ErrorEvent{
					Type:      protocol.TypeErrorEvent,
					SessionID: id,
					Code:      "chat_failed",
					Source:    "chat",
					Retryable: true,
					Detail:    err.Error(),
				})
				continue
			}
			length := reply.ConversationLength
			if reply.Prompted {
				if sess, ok := s.sessions.Get(id); ok {
					length = sess.Len()
				}
			}
			s.metrics.SetActiveConversations(s.sessions.Len())
			send(protocol.AssistantReply{
				Type:               protocol.TypeAssistantReply,
				SessionID:          id,
				Text:               reply.Text,
				ConversationLength: length,
			})
		case protocol.ClearConversation:
			id := sessionID
			if sid := strings.TrimSpace(m.SessionID); sid != "" {
				id = sid
			}
			text := s.clearSession(id)
			send(protocol.ConversationCleared{
				Type:      protocol.TypeConversationCleared,
				SessionID: id,
				Existed:   text == "Conversation cleared",
				Message:   text,
			})
		}
	}
}

func (s *Server) countWS(direction string, msg any) {
	if s.metrics == nil {
		return
	}
	if t, ok := messageTypeOf(msg); ok {
		s.metrics.WSMessages.WithLabelValues(direction, string(t)).Inc()
	}
}

func (s *Server) countSession(event string) {
	if s.metrics == nil {
		return
	}
	s.metrics.SessionEvents.WithLabelValues(event).Inc()
}

func messageTypeOf(v any) (protocol.MessageType, bool) {
	switch m := v.(type) {
	case protocol.ChatMessage:
		return m.Type, true
	case protocol.ClearConversation:
		return m.Type, true
	case protocol.AssistantReply:
		return m.Type, true
	case protocol.ConversationCleared:
		return m.Type, true
	case protocol.SystemEvent:
		return m.Type, true
	case protocol.ErrorEvent:
		return m.Type, true
	default:
		return "", false
	}
}
