// Package chat answers questions about the Grateful Dead: it retrieves
// context, composes a prompt with the session's recent history, asks the
// completion provider and records the exchange.
package chat

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/ent0n29/deadbot/internal/knowledge"
	"github.com/ent0n29/deadbot/internal/policy"
	"github.com/ent0n29/deadbot/internal/session"
)

// PromptForInput is returned for blank messages.
const PromptForInput = "What would you like to know about the Grateful Dead?"

const messagePreviewRunes = 80

// Observer receives stage timings and provider failures.
// *observability.Metrics satisfies it.
type Observer interface {
	ObserveStage(stage string, d time.Duration)
	ObserveProviderError(provider, code string)
}

type Searcher interface {
	Search(ctx context.Context, query string, k int) []knowledge.RetrievedDocument
}

type Responder interface {
	Compose(ctx context.Context, query string, docs []knowledge.RetrievedDocument, history []session.Turn) string
}

// Memory is the slice of *session.Manager the orchestrator needs.
type Memory interface {
	GetOrCreate(id string) session.Session
	AppendExchange(id, userMessage, reply string) session.Session
}

type Reply struct {
	Text               string
	SessionID          string
	ConversationLength int
	// Prompted is set when the message was blank and nothing was recorded.
	Prompted bool
}

type Orchestrator struct {
	sessions Memory
	searcher Searcher
	composer Responder
	topK     int
	logger   *slog.Logger
	observer Observer
}

func NewOrchestrator(
	sessions Memory,
	searcher Searcher,
	composer Responder,
	topK int,
	logger *slog.Logger,
	observer Observer,
) *Orchestrator {
	if topK <= 0 {
		topK = knowledge.DefaultTopK
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		sessions: sessions,
		searcher: searcher,
		composer: composer,
		topK:     topK,
		logger:   logger,
		observer: observer,
	}
}

// Respond produces the reply for one user message. The composer sees the
// history as it was before this message; both turns are appended together
// only after a reply exists. The only error is a context cancelled before
// the exchange is recorded, in which case memory is untouched.
func (o *Orchestrator) Respond(ctx context.Context, sessionID, message string) (Reply, error) {
	if strings.TrimSpace(message) == "" {
		return Reply{Text: PromptForInput, SessionID: sessionID, Prompted: true}, nil
	}
	start := time.Now()

	s := o.sessions.GetOrCreate(sessionID)
	docs := o.searcher.Search(ctx, message, o.topK)

	genStart := time.Now()
	reply := o.composer.Compose(ctx, message, docs, s.Turns)
	o.observe("generation", time.Since(genStart))

	if err := ctx.Err(); err != nil {
		return Reply{}, err
	}
	updated := o.sessions.AppendExchange(sessionID, message, reply)
	o.observe("turn_total", time.Since(start))

	o.logger.Debug("chat turn",
		"session_id", sessionID,
		"message", policy.LogPreview(message, messagePreviewRunes),
		"context_docs", len(docs),
		"history_turns", len(s.Turns),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return Reply{Text: reply, SessionID: sessionID, ConversationLength: updated.Len()}, nil
}

func (o *Orchestrator) observe(stage string, d time.Duration) {
	if o.observer != nil {
		o.observer.ObserveStage(stage, d)
	}
}
