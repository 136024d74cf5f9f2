// Command deadbot-ingest loads documents into the configured knowledge base.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/joho/godotenv"

	"github.com/ent0n29/deadbot/internal/app"
	"github.com/ent0n29/deadbot/internal/config"
	"github.com/ent0n29/deadbot/internal/knowledge"
	"github.com/ent0n29/deadbot/internal/observability"
)

var (
	file  = flag.String("file", "", "YAML or JSON file of documents to ingest")
	seed  = flag.Bool("seed", false, "Ingest the built-in Grateful Dead corpus")
	stats = flag.Bool("stats", false, "Print knowledge base statistics and exit")
)

var (
	green = color.New(color.FgGreen, color.Bold).SprintFunc()
	cyan  = color.New(color.FgCyan).SprintFunc()
	red   = color.New(color.FgRed, color.Bold).SprintFunc()
)

func main() {
	flag.Parse()
	_ = godotenv.Load()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", red("error:"), err)
		os.Exit(1)
	}
}

func run() (err error) {
	if *file == "" && !*seed && !*stats {
		flag.Usage()
		return fmt.Errorf("one of -file, -seed or -stats is required")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	logger := app.NewLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	built, err := app.Build(ctx, cfg, observability.NewMetrics(cfg.MetricsNamespace+"_ingest"), logger)
	if err != nil {
		return err
	}
	defer closeKnowledge(built, logger, &err)

	fmt.Printf("%s %s store, %s embeddings (%s)\n",
		cyan("knowledge base:"), built.Providers.VectorStore, built.Providers.Embedding, built.Providers.EmbeddingModel)

	if *seed {
		if err := ingest(ctx, built.Knowledge, "built-in corpus", knowledge.SeedDocuments()); err != nil {
			return err
		}
	}
	if *file != "" {
		docs, err := knowledge.LoadDocuments(*file)
		if err != nil {
			return err
		}
		if err := ingest(ctx, built.Knowledge, *file, docs); err != nil {
			return err
		}
	}
	return printStats(ctx, built.Knowledge)
}

// closeKnowledge releases the store. A close failure is logged and becomes
// the exit error when the run otherwise succeeded.
func closeKnowledge(built *app.BuildResult, logger *slog.Logger, errp *error) {
	cerr := built.Cleanup()
	if cerr == nil {
		return
	}
	logger.Warn("cleanup failed", "err", cerr)
	if *errp == nil {
		*errp = fmt.Errorf("close knowledge base: %w", cerr)
	}
}

func ingest(ctx context.Context, kb *knowledge.Base, source string, docs []knowledge.Document) error {
	fmt.Printf("%s %d documents from %s\n", cyan("ingesting"), len(docs), source)
	n, err := kb.Ingest(ctx, docs)
	if err != nil {
		return fmt.Errorf("ingest %s: %w", source, err)
	}
	fmt.Printf("%s %d documents added\n", green("✓"), n)
	return nil
}

func printStats(ctx context.Context, kb *knowledge.Base) error {
	total, err := kb.Count(ctx)
	if err != nil {
		return fmt.Errorf("count: %w", err)
	}
	cats, err := kb.Categories(ctx)
	if err != nil {
		return fmt.Errorf("categories: %w", err)
	}
	fmt.Printf("%s %d\n", cyan("total documents:"), total)
	if len(cats) > 0 {
		fmt.Printf("%s %s\n", cyan("categories:"), strings.Join(cats, ", "))
	}
	return nil
}
