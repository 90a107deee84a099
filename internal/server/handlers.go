package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/veil-io/veil/internal/entity"
	"github.com/veil-io/veil/internal/otel"
)

// redactRequest is the input contract: raw text plus a category tag that
// steers context detection.
type redactRequest struct {
	Text     string `json:"text"`
	Category string `json:"category"`
}

type errorResponse struct {
	Error string `json:"error"`
}

const maxBodyBytes = 10 << 20 // 10 MiB

func (s *Server) handleRedact(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req redactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "text must not be empty")
		return
	}

	ctx := r.Context()
	doc := entity.Document{Text: req.Text, Category: req.Category}
	result := s.pipeline.Run(ctx, doc)

	if s.auditStore != nil {
		if runID, err := s.auditStore.RecordRun(ctx, doc, result); err != nil {
			// Audit failure must not fail the redaction response.
			log.Error().Err(err).Msg("recording audit entry failed")
		} else {
			w.Header().Set("X-Run-ID", runID)
		}
	}

	log.Info().
		Str("request_id", middleware.GetReqID(ctx)).
		Str("category", req.Category).
		Int("document_length", len(req.Text)).
		Int("entities", len(result.Entities)).
		Bool("degraded", result.Degraded).
		Func(otel.LogTraceFields(ctx)).
		Msg("redaction request served")

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.auditStore == nil {
		writeError(w, http.StatusNotFound, "audit store not configured")
		return
	}
	records, err := s.auditStore.List(r.Context(), 50)
	if err != nil {
		log.Error().Err(err).Msg("listing audit records failed")
		writeError(w, http.StatusInternalServerError, "listing runs failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": records})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"uptime_seconds": int(time.Since(s.startTime).Seconds()),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("encoding response failed")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
