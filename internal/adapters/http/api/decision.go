package api

import (
	"errors"
	"net/http"
	"strings"

	model "github.com/okian/queryai/internal/domain/model"
)

// maxBatchQueries bounds one batch request.
const maxBatchQueries = 50

type claimDecisionRequest struct {
	Query       string                `json:"query"`
	PatientData *model.PatientDetails `json:"patient_data,omitempty"`
}

type claimDecisionResponse struct {
	Decision model.Decision `json:"decision"`
	Summary  string         `json:"summary"`
	Status   string         `json:"status"`
}

type batchRequest struct {
	Queries []string `json:"queries"`
}

type batchResponse struct {
	Decisions []model.Decision `json:"decisions"`
	Count     int              `json:"count"`
}

// handleClaimDecision handles POST /claim-decision.
func (s *Server) handleClaimDecision(w http.ResponseWriter, r *http.Request) {
	const op = "api.claim_decision"
	req := claimDecisionRequest{Query: r.URL.Query().Get("query")}
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, Wrap(op, err))
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, errors.New("missing query")))
		return
	}

	d, summary, err := s.deps.ClaimDecision(r.Context(), req.Query, req.PatientData)
	if err != nil {
		s.fail(w, r, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, claimDecisionResponse{Decision: d, Summary: summary, Status: "success"})
}

// handleBatchDecisions handles POST /claim-decisions/batch.
func (s *Server) handleBatchDecisions(w http.ResponseWriter, r *http.Request) {
	const op = "api.claim_decisions_batch"
	var req batchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, Wrap(op, err))
		return
	}

	queries := make([]string, 0, len(req.Queries))
	for _, q := range req.Queries {
		if q = strings.TrimSpace(q); q != "" {
			queries = append(queries, q)
		}
	}
	switch {
	case len(queries) == 0:
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, errors.New("missing queries")))
		return
	case len(queries) > maxBatchQueries:
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, errors.New("too many queries")))
		return
	}

	decisions, err := s.deps.BatchDecisions(r.Context(), queries)
	if err != nil {
		s.fail(w, r, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, batchResponse{Decisions: decisions, Count: len(decisions)})
}
