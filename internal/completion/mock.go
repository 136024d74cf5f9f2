package completion

import (
	"context"
	"fmt"
	"strings"
)

// ContextHeader marks the start of the retrieved context block inside a
// system message. The mock quotes the first line that follows it.
const ContextHeader = "Context information:"

// MockProvider returns deterministic replies when no model is configured.
type MockProvider struct{}

func NewMockProvider() *MockProvider { return &MockProvider{} }

func (p *MockProvider) Complete(ctx context.Context, req Request) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	return buildMockReply(req), nil
}

func buildMockReply(req Request) string {
	var question, system string
	for _, m := range req.Messages {
		switch m.Role {
		case RoleUser:
			question = strings.TrimSpace(m.Content)
		case RoleSystem:
			if system == "" {
				system = m.Content
			}
		}
	}
	if question == "" {
		question = "nothing yet"
	}

	ref := firstContextLine(system)
	if ref == "" {
		return fmt.Sprintf("I heard you: %s", question)
	}
	return fmt.Sprintf("I heard you: %s\nFrom the archive: %s", question, ref)
}

func firstContextLine(system string) string {
	i := strings.Index(system, ContextHeader)
	if i < 0 {
		return ""
	}
	for _, line := range strings.Split(system[i+len(ContextHeader):], "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}
