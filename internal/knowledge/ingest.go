package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/ent0n29/deadbot/internal/embedding"
)

// Ingestor turns raw documents into records and pushes them through the
// embedding provider into the store with one embed call and one upsert.
type Ingestor struct {
	embedder embedding.Provider
	store    Store
	logger   *slog.Logger
}

func NewIngestor(embedder embedding.Provider, store Store, logger *slog.Logger) *Ingestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestor{embedder: embedder, store: store, logger: logger}
}

// Ingest indexes docs and returns how many records were upserted. Any
// failure is returned unchanged in kind; nothing is retried here.
func (in *Ingestor) Ingest(ctx context.Context, docs []Document) (int, error) {
	if len(docs) == 0 {
		return 0, nil
	}
	records, err := BuildRecords(docs)
	if err != nil {
		return 0, err
	}

	texts := make([]string, len(records))
	for i, r := range records {
		texts[i] = r.Text
	}

	start := time.Now()
	vectors, err := in.embedder.Embed(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embed documents: %w", err)
	}
	if len(vectors) != len(records) {
		return 0, fmt.Errorf("embed documents: got %d vectors for %d texts", len(vectors), len(records))
	}
	if err := in.store.Upsert(ctx, records, vectors); err != nil {
		return 0, fmt.Errorf("upsert documents: %w", err)
	}

	in.logger.Info("knowledge ingested",
		"documents", len(records),
		"model", in.embedder.ModelID(),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return len(records), nil
}

// BuildRecords splits each document into its content text and metadata and
// assigns the positional id.
func BuildRecords(docs []Document) ([]Record, error) {
	records := make([]Record, 0, len(docs))
	for i, doc := range docs {
		raw, ok := doc[ContentField]
		if !ok {
			return nil, fmt.Errorf("%w: document %d has no %q field", ErrInvalidDocument, i, ContentField)
		}
		text, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("%w: document %d %q must be a string, got %T", ErrInvalidDocument, i, ContentField, raw)
		}
		if strings.TrimSpace(text) == "" {
			return nil, fmt.Errorf("%w: document %d has empty %q", ErrInvalidDocument, i, ContentField)
		}

		meta := make(map[string]any, len(doc)-1)
		for k, v := range doc {
			if k == ContentField {
				continue
			}
			if nv, ok := normalizeValue(v); ok {
				meta[k] = nv
			}
		}
		records = append(records, Record{ID: RecordID(text, i), Text: text, Metadata: meta})
	}
	return records, nil
}

// normalizeValue maps a decoded YAML/JSON value onto the scalar types every
// store can persist. Lists of scalars become comma-separated strings; other
// composites are JSON encoded. nil values are dropped.
func normalizeValue(v any) (any, bool) {
	switch x := v.(type) {
	case nil:
		return nil, false
	case string, bool, int64, float64:
		return x, true
	case int:
		return int64(x), true
	case int32:
		return int64(x), true
	case uint:
		return normalizeValue(uint64(x))
	case uint32:
		return int64(x), true
	case uint64:
		if x > math.MaxInt64 {
			return strconv.FormatUint(x, 10), true
		}
		return int64(x), true
	case float32:
		return float64(x), true
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n, true
		}
		if f, err := x.Float64(); err == nil {
			return f, true
		}
		return x.String(), true
	case time.Time:
		if x.Hour() == 0 && x.Minute() == 0 && x.Second() == 0 && x.Nanosecond() == 0 {
			return x.Format("2006-01-02"), true
		}
		return x.Format(time.RFC3339), true
	case []any:
		parts := make([]string, 0, len(x))
		for _, item := range x {
			nv, ok := normalizeValue(item)
			if !ok {
				continue
			}
			parts = append(parts, fmt.Sprint(nv))
		}
		return strings.Join(parts, ", "), true
	default:
		return encodeJSON(x), true
	}
}

func encodeJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
