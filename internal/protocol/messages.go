package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeChatMessage         MessageType = "chat_message"
	TypeClearConversation   MessageType = "clear_conversation"
	TypeAssistantReply      MessageType = "assistant_reply"
	TypeConversationCleared MessageType = "conversation_cleared"
	TypeSystemEvent         MessageType = "system_event"
	TypeErrorEvent          MessageType = "error_event"
)

// MaxTextBytes bounds a single chat message.
const MaxTextBytes = 8 << 10

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

// ChatMessage asks a question. An empty SessionID means the connection's
// session.
type ChatMessage struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id,omitempty"`
	Text      string      `json:"text"`
	TSMs      int64       `json:"ts_ms,omitempty"`
}

type ClearConversation struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id,omitempty"`
}

type AssistantReply struct {
	Type               MessageType `json:"type"`
	SessionID          string      `json:"session_id"`
	Text               string      `json:"text"`
	ConversationLength int         `json:"conversation_length"`
}

type ConversationCleared struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Existed   bool        `json:"existed"`
	Message   string      `json:"message"`
}

type SystemEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Code      string      `json:"code"`
	Detail    string      `json:"detail,omitempty"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Code      string      `json:"code"`
	Source    string      `json:"source"`
	Retryable bool        `json:"retryable"`
	Detail    string      `json:"detail"`
}

func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeChatMessage:
		var msg ChatMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if len(msg.Text) > MaxTextBytes || !utf8.ValidString(msg.Text) {
			return nil, errors.New("invalid chat_message")
		}
		return msg, nil
	case TypeClearConversation:
		var msg ClearConversation
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}
