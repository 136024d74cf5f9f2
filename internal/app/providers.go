package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/ent0n29/deadbot/internal/completion"
	oaichat "github.com/ent0n29/deadbot/internal/completion/openai"
	"github.com/ent0n29/deadbot/internal/config"
	"github.com/ent0n29/deadbot/internal/embedding"
	"github.com/ent0n29/deadbot/internal/embedding/hashing"
	oaiembed "github.com/ent0n29/deadbot/internal/embedding/openai"
	"github.com/ent0n29/deadbot/internal/knowledge"
	"github.com/ent0n29/deadbot/internal/knowledge/postgres"
	"github.com/ent0n29/deadbot/internal/knowledge/sqlite"
)

type completionSetup struct {
	provider completion.Provider
	resolved string
	detail   string
}

func resolveCompletion(cfg config.Config) (completionSetup, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.CompletionProvider))
	if mode == "" {
		mode = "auto"
	}

	tryOpenAI := func() (completionSetup, bool, error) {
		if strings.TrimSpace(cfg.OpenAIAPIKey) == "" {
			return completionSetup{}, false, nil
		}
		p, err := oaichat.New(oaichat.Config{
			APIKey:  cfg.OpenAIAPIKey,
			Model:   cfg.OpenAIChatModel,
			BaseURL: cfg.OpenAIBaseURL,
			Timeout: cfg.OpenAITimeout,
		})
		if err != nil {
			return completionSetup{}, false, err
		}
		return completionSetup{provider: p, resolved: "openai", detail: "openai " + p.Model()}, true, nil
	}
	mock := completionSetup{provider: completion.NewMockProvider(), resolved: "mock", detail: "mock echo"}

	switch mode {
	case "openai":
		s, ok, err := tryOpenAI()
		if err != nil {
			return completionSetup{}, fmt.Errorf("openai completion init failed: %w", err)
		}
		if !ok {
			return completionSetup{}, fmt.Errorf("COMPLETION_PROVIDER=openai but OPENAI_API_KEY is not set")
		}
		return s, nil
	case "mock":
		return mock, nil
	case "auto":
		s, ok, err := tryOpenAI()
		if err != nil {
			return completionSetup{}, fmt.Errorf("openai completion init failed: %w", err)
		}
		if ok {
			return s, nil
		}
		mock.detail = "mock echo (no OPENAI_API_KEY)"
		return mock, nil
	default:
		return completionSetup{}, fmt.Errorf("invalid COMPLETION_PROVIDER: %q (expected auto|openai|mock)", cfg.CompletionProvider)
	}
}

type embeddingSetup struct {
	provider embedding.Provider
	resolved string
}

func resolveEmbedding(cfg config.Config) (embeddingSetup, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.EmbeddingProvider))
	if mode == "" {
		mode = "auto"
	}

	newOpenAI := func() (embeddingSetup, error) {
		p, err := oaiembed.New(oaiembed.Config{
			APIKey:  cfg.OpenAIAPIKey,
			Model:   cfg.OpenAIEmbeddingModel,
			BaseURL: cfg.OpenAIBaseURL,
			Timeout: cfg.OpenAITimeout,
		})
		if err != nil {
			return embeddingSetup{}, fmt.Errorf("openai embedding init failed: %w", err)
		}
		return embeddingSetup{provider: embedding.WithRetry(p, embedding.RetryOptions{}), resolved: "openai"}, nil
	}
	hash := embeddingSetup{provider: hashing.New(cfg.HashEmbeddingDim), resolved: "hash"}

	switch mode {
	case "openai":
		if strings.TrimSpace(cfg.OpenAIAPIKey) == "" {
			return embeddingSetup{}, fmt.Errorf("EMBEDDING_PROVIDER=openai but OPENAI_API_KEY is not set")
		}
		return newOpenAI()
	case "hash":
		return hash, nil
	case "auto":
		if strings.TrimSpace(cfg.OpenAIAPIKey) != "" {
			return newOpenAI()
		}
		return hash, nil
	default:
		return embeddingSetup{}, fmt.Errorf("invalid EMBEDDING_PROVIDER: %q (expected auto|openai|hash)", cfg.EmbeddingProvider)
	}
}

// resolveStore opens the configured vector store sized for dims.
func resolveStore(ctx context.Context, cfg config.Config, dims int) (knowledge.Store, error) {
	switch cfg.VectorStore {
	case "memory":
		return knowledge.NewMemoryStore(dims), nil
	case "", "sqlite":
		s, err := sqlite.Open(ctx, cfg.VectorStorePath, dims)
		if err != nil {
			return nil, fmt.Errorf("sqlite vector store init failed: %w", err)
		}
		return s, nil
	case "postgres":
		s, err := postgres.NewStore(ctx, cfg.DatabaseURL, dims)
		if err != nil {
			return nil, fmt.Errorf("postgres vector store init failed: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("invalid VECTOR_STORE: %q (expected memory|sqlite|postgres)", cfg.VectorStore)
	}
}
