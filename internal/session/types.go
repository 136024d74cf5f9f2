package session

import "time"

// Role tags who produced a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message of a conversation. Turns are never modified once appended.
type Turn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is a snapshot of one conversation. Values handed out by Manager are
// copies; mutating them has no effect on the stored conversation.
type Session struct {
	ID           string    `json:"session_id"`
	Turns        []Turn    `json:"turns"`
	LastActivity time.Time `json:"last_activity"`
}

// Len returns the number of retained turns.
func (s Session) Len() int { return len(s.Turns) }
