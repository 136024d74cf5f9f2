package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"

	"github.com/ent0n29/deadbot/internal/chat"
	"github.com/ent0n29/deadbot/internal/config"
	"github.com/ent0n29/deadbot/internal/knowledge"
	"github.com/ent0n29/deadbot/internal/observability"
	"github.com/ent0n29/deadbot/internal/session"
)

// Responder answers one chat message. *chat.Orchestrator satisfies it.
type Responder interface {
	Respond(ctx context.Context, sessionID, message string) (chat.Reply, error)
}

// KnowledgeBase is the part of *knowledge.Base the API exposes.
type KnowledgeBase interface {
	Count(ctx context.Context) (int, error)
	Categories(ctx context.Context) ([]string, error)
	Ingest(ctx context.Context, docs []knowledge.Document) (int, error)
}

type Server struct {
	cfg       config.Config
	sessions  *session.Manager
	responder Responder
	kb        KnowledgeBase
	metrics   *observability.Metrics
	logger    *slog.Logger
	limiter   *RateLimiter
	upgrader  websocket.Upgrader
}

func New(
	cfg config.Config,
	sessions *session.Manager,
	responder Responder,
	kb KnowledgeBase,
	metrics *observability.Metrics,
	logger *slog.Logger,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:       cfg,
		sessions:  sessions,
		responder: responder,
		kb:        kb,
		metrics:   metrics,
		logger:    logger,
		limiter:   NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				if strings.EqualFold(u.Host, r.Host) {
					return true
				}
				for _, allowed := range cfg.CORSOrigins {
					if allowed == "*" || strings.EqualFold(strings.TrimRight(allowed, "/"), origin) {
						return true
					}
				}
				return false
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.recoverJSON)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins(s.cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", s.handleLiveness)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})
	r.Get("/v1/perf/latency", s.handlePerfLatency)

	r.Get("/health", s.handleHealth)
	r.Get("/knowledge/stats", s.handleKnowledgeStats)
	r.Get("/conversation/{id}", s.handleGetConversation)

	r.Group(func(r chi.Router) {
		r.Use(s.limiter.Middleware)
		r.Post("/chat", s.handleChat)
		r.Post("/conversation/clear", s.handleClearConversation)
		r.Post("/knowledge/documents", s.handleIngestDocuments)
		r.Get("/v1/chat/ws", s.handleChatWS)
	})

	return r
}

func (s *Server) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if _, err := s.kb.Count(ctx); err != nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

type healthResponse struct {
	Status              string `json:"status"`
	Message             string `json:"message"`
	KnowledgeBaseSize   int    `json:"knowledge_base_size"`
	ActiveConversations int    `json:"active_conversations"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	size, err := s.kb.Count(r.Context())
	if err != nil {
		s.logger.Warn("health: knowledge base count failed", "err", err)
		size = -1
	} else if s.metrics != nil {
		s.metrics.KnowledgeDocuments.Set(float64(size))
	}
	active := s.sessions.Len()
	s.metrics.SetActiveConversations(active)

	respondJSON(w, http.StatusOK, healthResponse{
		Status:              "healthy",
		Message:             "Grateful Dead Chatbot API is running",
		KnowledgeBaseSize:   size,
		ActiveConversations: active,
	})
}

func corsOrigins(cfg config.Config) []string {
	if cfg.AllowAnyOrigin || len(cfg.CORSOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSOrigins
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
