package chat

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"

	"github.com/ent0n29/deadbot/internal/completion"
	"github.com/ent0n29/deadbot/internal/knowledge"
	"github.com/ent0n29/deadbot/internal/reliability"
	"github.com/ent0n29/deadbot/internal/session"
)

const (
	DefaultMaxTokens    = 500
	DefaultTemperature  = 0.7
	DefaultExcerptTurns = 6
	DefaultReplayTurns  = 4

	// ApologyPrefix starts every reply produced when generation fails.
	ApologyPrefix = "Sorry, I'm having trouble connecting right now. Error: "
)

// ComposerOptions shape the prompt. ExcerptTurns is the number of trailing
// history entries rendered into the system instruction; ReplayTurns is the
// number replayed as structured messages. Zero disables either window.
type ComposerOptions struct {
	Persona      string
	MaxTokens    int
	Temperature  float64
	ExcerptTurns int
	ReplayTurns  int
}

func DefaultComposerOptions() ComposerOptions {
	return ComposerOptions{
		Persona:      DefaultPersona,
		MaxTokens:    DefaultMaxTokens,
		Temperature:  DefaultTemperature,
		ExcerptTurns: DefaultExcerptTurns,
		ReplayTurns:  DefaultReplayTurns,
	}
}

// Composer turns a question, its retrieved context and the prior history
// into a single completion call.
type Composer struct {
	provider completion.Provider
	opts     ComposerOptions
	logger   *slog.Logger
	observer Observer
}

func NewComposer(provider completion.Provider, opts ComposerOptions, logger *slog.Logger, observer Observer) *Composer {
	if strings.TrimSpace(opts.Persona) == "" {
		opts.Persona = DefaultPersona
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultMaxTokens
	}
	if opts.ExcerptTurns < 0 {
		opts.ExcerptTurns = 0
	}
	if opts.ReplayTurns < 0 {
		opts.ReplayTurns = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Composer{provider: provider, opts: opts, logger: logger, observer: observer}
}

// Compose always returns text. A provider failure becomes an apology that
// carries the error detail.
func (c *Composer) Compose(ctx context.Context, query string, docs []knowledge.RetrievedDocument, history []session.Turn) string {
	reply, err := c.provider.Complete(ctx, c.BuildRequest(query, docs, history))
	if err == nil && strings.TrimSpace(reply) == "" {
		err = completion.ErrEmptyResponse
	}
	if err != nil {
		c.logger.Warn("generation failed", "err", err)
		if c.observer != nil {
			c.observer.ObserveProviderError("completion", completionErrorCode(err))
		}
		return ApologyPrefix + err.Error()
	}
	return reply
}

// BuildRequest assembles the message list: system instruction, the replayed
// tail of history, then the question.
func (c *Composer) BuildRequest(query string, docs []knowledge.RetrievedDocument, history []session.Turn) completion.Request {
	replay := tail(history, c.opts.ReplayTurns)
	messages := make([]completion.Message, 0, len(replay)+2)
	messages = append(messages, completion.Message{Role: completion.RoleSystem, Content: c.SystemInstruction(docs, history)})
	for _, t := range replay {
		messages = append(messages, completion.Message{Role: completionRole(t.Role), Content: t.Content})
	}
	messages = append(messages, completion.Message{Role: completion.RoleUser, Content: query})

	return completion.Request{
		Messages:    messages,
		MaxTokens:   c.opts.MaxTokens,
		Temperature: c.opts.Temperature,
	}
}

// SystemInstruction renders the persona, the context documents in the order
// given and an excerpt of recent history.
func (c *Composer) SystemInstruction(docs []knowledge.RetrievedDocument, history []session.Turn) string {
	var b strings.Builder
	b.WriteString(c.opts.Persona)
	b.WriteString("\n\n")
	b.WriteString(completion.ContextHeader)
	b.WriteString("\n")
	for i, d := range docs {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(d.Text)
	}

	excerpt := tail(history, c.opts.ExcerptTurns)
	if len(excerpt) > 0 {
		b.WriteString("\n\nRecent conversation:\n")
		for _, t := range excerpt {
			b.WriteString(speakerLabel(t.Role))
			b.WriteString(": ")
			b.WriteString(t.Content)
			b.WriteString("\n")
		}
	}
	return b.String()
}

func tail(turns []session.Turn, n int) []session.Turn {
	if n <= 0 {
		return nil
	}
	if len(turns) <= n {
		return turns
	}
	return turns[len(turns)-n:]
}

func speakerLabel(r session.Role) string {
	if r == session.RoleUser {
		return "Human"
	}
	return "Assistant"
}

func completionRole(r session.Role) completion.Role {
	if r == session.RoleUser {
		return completion.RoleUser
	}
	return completion.RoleAssistant
}

func completionErrorCode(err error) string {
	switch {
	case errors.Is(err, completion.ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(err, completion.ErrEmptyResponse):
		return "empty"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	}
	if code := reliability.StatusCode(err); code != 0 {
		return "http_" + strconv.Itoa(code)
	}
	return "error"
}
