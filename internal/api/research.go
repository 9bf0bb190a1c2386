// internal/api/research.go
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"deepsearch-workers/internal/common/validation"
	"deepsearch-workers/internal/research"
	"deepsearch-workers/internal/research/chat"
	"deepsearch-workers/internal/research/store"

	"github.com/go-chi/chi/v5"
)

const maxRequestBytes = 4 << 20

// ResearchRequest is the conversation context plus the system prompt the
// caller intends to answer with.
type ResearchRequest struct {
	chat.Conversation
	SystemPrompt string `json:"system_prompt,omitempty"`
}

// ResearchResponse carries the run outcome. Result is null when no research
// was needed, "Search error." when searching failed, and the evidence
// preamble otherwise. SystemMessage is ready to send to the main chat call.
type ResearchResponse struct {
	Status        research.Status   `json:"status"`
	Result        *string           `json:"result"`
	SystemMessage string            `json:"system_message"`
	Evidence      research.Evidence `json:"evidence"`
	Rounds        int               `json:"rounds"`
	Error         string            `json:"error,omitempty"`
}

func (s *Server) runResearch(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read request body")
		return
	}

	var doc map[string]interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json", err.Error())
		return
	}
	result, err := validation.ValidateDocument(validation.ResearchRequestSchema, doc)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !result.Valid {
		details := make([]string, len(result.Errors))
		for i, e := range result.Errors {
			details[i] = e.Field + ": " + e.Message
		}
		writeError(w, http.StatusBadRequest, "INVALID_RESEARCH_REQUEST", details...)
		return
	}

	var req ResearchRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request", err.Error())
		return
	}

	ctx := r.Context()
	if s.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.RequestTimeout)
		defer cancel()
	}

	prompts := s.researcher.Prompts()
	outcome, err := s.researcher.Run(ctx, req.Conversation)
	if err != nil {
		// the caller still answers, without research
		writeJSONStatus(w, ResearchResponse{
			Status:        research.StatusFailed,
			SystemMessage: research.ComposeSystemMessage(nil, prompts, req.SystemPrompt),
			Evidence:      research.Evidence{},
			Error:         err.Error(),
		}, http.StatusOK)
		return
	}

	evidence := outcome.Evidence
	if evidence == nil {
		evidence = research.Evidence{}
	}
	writeJSONStatus(w, ResearchResponse{
		Status:        outcome.Status,
		Result:        outcome.Value(),
		SystemMessage: research.ComposeSystemMessage(outcome, prompts, req.SystemPrompt),
		Evidence:      evidence,
		Rounds:        outcome.Rounds,
	}, http.StatusOK)
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "id")
	if s.runs == nil {
		writeError(w, http.StatusNotFound, "run archive disabled")
		return
	}

	run, err := s.runs.Get(r.Context(), runID)
	if errors.Is(err, store.ErrRunNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		s.logger.Error("failed to load research run", map[string]interface{}{
			"runId": runID,
			"error": err.Error(),
		})
		writeError(w, http.StatusInternalServerError, "failed to load run")
		return
	}
	writeJSONStatus(w, run, http.StatusOK)
}
