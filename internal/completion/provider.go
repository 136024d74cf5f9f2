// Package completion defines the chat completion boundary used to generate
// replies, plus provider wrappers that do not depend on a vendor SDK.
package completion

import (
	"context"
	"errors"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

var (
	// ErrEmptyResponse is returned when a provider answers without any text.
	ErrEmptyResponse = errors.New("completion: empty response")
	// ErrCircuitOpen is returned while the breaker rejects calls.
	ErrCircuitOpen = errors.New("completion: circuit breaker is open")
)

type Message struct {
	Role    Role
	Content string
}

// Request is one chat completion call: the ordered messages plus decoding
// parameters.
type Request struct {
	Messages    []Message
	MaxTokens   int
	Temperature float64
}

// Provider produces the assistant text for a request.
type Provider interface {
	Complete(ctx context.Context, req Request) (string, error)
}
