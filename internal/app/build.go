package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ent0n29/deadbot/internal/chat"
	"github.com/ent0n29/deadbot/internal/completion"
	"github.com/ent0n29/deadbot/internal/config"
	"github.com/ent0n29/deadbot/internal/httpapi"
	"github.com/ent0n29/deadbot/internal/knowledge"
	"github.com/ent0n29/deadbot/internal/observability"
	"github.com/ent0n29/deadbot/internal/session"
)

type ProviderInfo struct {
	Completion       string
	CompletionDetail string
	Embedding        string
	EmbeddingModel   string
	VectorStore      string
}

type BuildResult struct {
	Config       config.Config
	API          *httpapi.Server
	Sessions     *session.Manager
	Orchestrator *chat.Orchestrator
	Knowledge    *knowledge.Base
	Metrics      *observability.Metrics
	Providers    ProviderInfo

	// Cleanup releases the vector store. Call it on shutdown.
	Cleanup func() error
}

// Build wires the service from cfg. metrics may be nil, in which case a new
// set is registered under cfg.MetricsNamespace.
func Build(ctx context.Context, cfg config.Config, metrics *observability.Metrics, logger *slog.Logger) (*BuildResult, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observability.NewMetrics(cfg.MetricsNamespace)
	}

	embed, err := resolveEmbedding(cfg)
	if err != nil {
		return nil, err
	}
	store, err := resolveStore(ctx, cfg, embed.provider.Dimensions())
	if err != nil {
		return nil, err
	}

	comp, err := resolveCompletion(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	provider := completion.WithBreaker(comp.provider, completion.BreakerConfig{
		Name:        comp.resolved,
		MaxFailures: uint32(cfg.BreakerMaxFailures),
		Timeout:     cfg.BreakerTimeout,
	}, logger)

	persona, err := chat.LoadPersona(cfg.PersonaFile)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	sessions := session.NewManager(session.Options{
		MaxTurns:       cfg.SessionMaxTurns,
		TTL:            cfg.SessionTTL,
		SweepThreshold: sweepThreshold(cfg.SessionSweepThreshold),
	})
	sessions.SetExpireHook(func(s session.Session) {
		metrics.SessionEvents.WithLabelValues("expired").Inc()
		metrics.SetActiveConversations(sessions.Len())
		logger.Debug("conversation expired", "session_id", s.ID, "turns", s.Len())
	})

	ingestor := knowledge.NewIngestor(embed.provider, store, logger)
	base := knowledge.NewBase(store, ingestor)
	retriever := knowledge.NewRetriever(embed.provider, store, logger, metrics)

	composer := chat.NewComposer(provider, chat.ComposerOptions{
		Persona:      persona,
		MaxTokens:    cfg.ComposerMaxTokens,
		Temperature:  cfg.ComposerTemperature,
		ExcerptTurns: cfg.ComposerExcerptTurns,
		ReplayTurns:  cfg.ComposerReplayTurns,
	}, logger, metrics)
	orchestrator := chat.NewOrchestrator(sessions, retriever, composer, cfg.RetrievalTopK, logger, metrics)

	api := httpapi.New(cfg, sessions, orchestrator, base, metrics, logger)

	cleanup := func() error {
		if err := store.Close(); err != nil {
			return fmt.Errorf("close vector store: %w", err)
		}
		return nil
	}

	return &BuildResult{
		Config:       cfg,
		API:          api,
		Sessions:     sessions,
		Orchestrator: orchestrator,
		Knowledge:    base,
		Metrics:      metrics,
		Providers: ProviderInfo{
			Completion:       comp.resolved,
			CompletionDetail: comp.detail,
			Embedding:        embed.resolved,
			EmbeddingModel:   embed.provider.ModelID(),
			VectorStore:      cfg.VectorStore,
		},
		Cleanup: cleanup,
	}, nil
}

// Seed ingests the configured seed file, or the built-in documents, when the
// knowledge base is empty and seeding is enabled.
func (b *BuildResult) Seed(ctx context.Context) (bool, error) {
	if !b.Config.KnowledgeSeedOnEmpty {
		return false, nil
	}
	docs := knowledge.SeedDocuments()
	if b.Config.KnowledgeSeedFile != "" {
		loaded, err := knowledge.LoadDocuments(b.Config.KnowledgeSeedFile)
		if err != nil {
			return false, err
		}
		docs = loaded
	}
	seeded, err := b.Knowledge.SeedIfEmpty(ctx, docs)
	if err != nil {
		return false, fmt.Errorf("seed knowledge base: %w", err)
	}
	if n, err := b.Knowledge.Count(ctx); err == nil {
		b.Metrics.KnowledgeDocuments.Set(float64(n))
	} else if !errors.Is(err, context.Canceled) {
		return seeded, fmt.Errorf("count knowledge base: %w", err)
	}
	return seeded, nil
}

// Config uses 0 for "no opportunistic sweep"; the manager wants a negative.
func sweepThreshold(n int) int {
	if n == 0 {
		return -1
	}
	return n
}
