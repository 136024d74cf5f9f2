package httpapi

import (
	"errors"
	"net/http"

	"github.com/ent0n29/deadbot/internal/knowledge"
)

type statsResponse struct {
	TotalDocuments      int      `json:"total_documents"`
	Categories          []string `json:"categories"`
	ActiveConversations int      `json:"active_conversations"`
}

func (s *Server) handleKnowledgeStats(w http.ResponseWriter, r *http.Request) {
	total, err := s.kb.Count(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "stats_unavailable", "Could not get stats: "+err.Error())
		return
	}
	cats, err := s.kb.Categories(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "stats_unavailable", "Could not get stats: "+err.Error())
		return
	}
	if s.metrics != nil {
		s.metrics.KnowledgeDocuments.Set(float64(total))
	}
	respondJSON(w, http.StatusOK, statsResponse{
		TotalDocuments:      total,
		Categories:          cats,
		ActiveConversations: s.sessions.Len(),
	})
}

type ingestRequest struct {
	Documents []knowledge.Document `json:"documents"`
}

type ingestResponse struct {
	Ingested       int `json:"ingested"`
	TotalDocuments int `json:"total_documents"`
}

func (s *Server) handleIngestDocuments(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "body must be {\"documents\": [...]}")
		return
	}
	if len(req.Documents) == 0 {
		respondError(w, http.StatusBadRequest, "invalid_request", "documents must not be empty")
		return
	}

	n, err := s.kb.Ingest(r.Context(), req.Documents)
	switch {
	case errors.Is(err, knowledge.ErrInvalidDocument):
		respondError(w, http.StatusBadRequest, "invalid_document", err.Error())
		return
	case err != nil:
		s.logger.Error("ingest failed", "documents", len(req.Documents), "err", err)
		respondError(w, http.StatusInternalServerError, "ingest_failed", err.Error())
		return
	}

	total, err := s.kb.Count(r.Context())
	if err != nil {
		total = -1
	} else if s.metrics != nil {
		s.metrics.KnowledgeDocuments.Set(float64(total))
	}
	s.logger.Info("documents ingested", "ingested", n, "total", total)
	respondJSON(w, http.StatusOK, ingestResponse{Ingested: n, TotalDocuments: total})
}
