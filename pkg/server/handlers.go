package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"mercator-hq/compass/pkg/cache"
	"mercator-hq/compass/pkg/lifecycle"
	"mercator-hq/compass/pkg/recommend"
	"mercator-hq/compass/pkg/repository"
	"mercator-hq/compass/pkg/rules"
	"mercator-hq/compass/pkg/rules/source"
	"mercator-hq/compass/pkg/server/middleware"
)

// Error codes returned in the "code" field of error responses.
const (
	codeInvalidRequest    = "invalid_request"
	codeNotFound          = "not_found"
	codeInvalidTransition = "invalid_transition"
	codeRefreshThrottled  = "refresh_throttled"
	codeRulesRejected     = "rules_rejected"
	codeUnavailable       = "unavailable"
	codeNotImplemented    = "not_implemented"
	codeTimeout           = "timeout"
	codeInternal          = "internal_error"
)

type handlers struct {
	service *recommend.Service
	repo    *repository.Repository
	logger  *slog.Logger
}

// ShownRequest is the body of POST /v1/recommendations/shown.
type ShownRequest struct {
	RecommendationIDs []string `json:"recommendation_ids"`
	ActorID           string   `json:"actor_id,omitempty"`
}

// ShownResponse lists the recommendations recorded as shown and the ids
// that could not be recorded.
type ShownResponse struct {
	Recommendations []*lifecycle.Recommendation `json:"recommendations"`
	Errors          []string                    `json:"errors,omitempty"`
}

// ResponseRequest is the body of POST /v1/recommendations/{id}/response.
type ResponseRequest struct {
	Accepted *bool  `json:"accepted"`
	ActorID  string `json:"actor_id,omitempty"`
}

// RecommendationResponse wraps a recommendation with whether the call
// changed its state.
type RecommendationResponse struct {
	Recommendation *lifecycle.Recommendation `json:"recommendation"`
	Applied        bool                      `json:"applied"`
}

// ExecuteBody is the body of POST /v1/recommendations/{id}/execute.
type ExecuteBody struct {
	Payload map[string]any `json:"payload,omitempty"`
	ActorID string         `json:"actor_id,omitempty"`
}

// ExecutedBody is the body of POST /v1/recommendations/{id}/executed.
type ExecutedBody struct {
	recommend.ExecutionReport
	ActorID string `json:"actor_id,omitempty"`
}

// RuleSetResponse describes the active rule set of a context type.
type RuleSetResponse struct {
	ContextType rules.ContextType `json:"context_type"`
	Version     int64             `json:"version"`
	Digest      string            `json:"digest,omitempty"`
	LoadedAt    time.Time         `json:"loaded_at,omitzero"`
	Rules       []*rules.Rule     `json:"rules"`
}

func (h *handlers) evaluate(w http.ResponseWriter, r *http.Request) {
	var req recommend.EvaluateRequest
	if !h.decode(w, r, &req) {
		return
	}
	resp, err := h.service.Evaluate(r.Context(), &req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, resp)
}

func (h *handlers) recordShown(w http.ResponseWriter, r *http.Request) {
	var req ShownRequest
	if !h.decode(w, r, &req) {
		return
	}
	recs, err := h.service.RecordShown(r.Context(), req.RecommendationIDs, req.ActorID)
	if err != nil && len(recs) == 0 {
		h.writeError(w, r, err)
		return
	}
	resp := ShownResponse{Recommendations: recs}
	if err != nil {
		resp.Errors = unjoin(err)
	}
	middleware.WriteJSON(w, http.StatusOK, resp)
}

func (h *handlers) getRecommendation(w http.ResponseWriter, r *http.Request) {
	rec, err := h.service.Recommendation(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, rec)
}

func (h *handlers) recordResponse(w http.ResponseWriter, r *http.Request) {
	var req ResponseRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Accepted == nil {
		h.writeError(w, r, &recommend.RequestError{Field: "accepted", Message: "is required"})
		return
	}
	rec, applied, err := h.service.RecordResponse(r.Context(), r.PathValue("id"), *req.Accepted, req.ActorID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, RecommendationResponse{Recommendation: rec, Applied: applied})
}

func (h *handlers) execute(w http.ResponseWriter, r *http.Request) {
	var body ExecuteBody
	if !h.decodeOptional(w, r, &body) {
		return
	}
	res, applied, err := h.service.Execute(r.Context(), &recommend.ExecuteRequest{
		RecommendationID: r.PathValue("id"),
		Payload:          body.Payload,
		ActorID:          body.ActorID,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	setReplayed(w, !applied)
	code := http.StatusOK
	if res.Status == recommend.ExecutionPending {
		code = http.StatusAccepted
	}
	middleware.WriteJSON(w, code, res)
}

func (h *handlers) recordExecuted(w http.ResponseWriter, r *http.Request) {
	var body ExecutedBody
	if !h.decode(w, r, &body) {
		return
	}
	res, applied, err := h.service.RecordExecuted(r.Context(), r.PathValue("id"), body.ExecutionReport, body.ActorID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	setReplayed(w, !applied)
	middleware.WriteJSON(w, http.StatusOK, res)
}

// ReplayedHeader is set to "true" when an execution request returned a
// previously recorded result instead of performing the action again.
const ReplayedHeader = "Compass-Replayed"

func setReplayed(w http.ResponseWriter, replayed bool) {
	if replayed {
		w.Header().Set(ReplayedHeader, "true")
	}
}

func (h *handlers) contextRecommendations(w http.ResponseWriter, r *http.Request) {
	recs, err := h.service.ContextRecommendations(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if recs == nil {
		recs = []*lifecycle.Recommendation{}
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{"recommendations": recs})
}

func (h *handlers) invalidate(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Invalidate(r.Context(), r.PathValue("id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) repositoryStatus(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, h.repo.Status())
}

func (h *handlers) activeRules(w http.ResponseWriter, r *http.Request) {
	snap, err := h.repo.LoadActive(r.Context(), rules.ContextType(r.PathValue("contextType")))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp := RuleSetResponse{
		ContextType: snap.ContextType,
		Version:     snap.Version,
		Digest:      snap.Digest,
		LoadedAt:    snap.LoadedAt,
		Rules:       snap.Rules,
	}
	if resp.Rules == nil {
		resp.Rules = []*rules.Rule{}
	}
	middleware.WriteJSON(w, http.StatusOK, resp)
}

func (h *handlers) refreshRules(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.RequestRefresh(r.Context()); err != nil {
		h.writeError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, h.repo.Status())
}

// decode reads a required JSON body into v.
func (h *handlers) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.writeDecodeError(w, r, err)
		return false
	}
	return true
}

// decodeOptional reads a JSON body into v, accepting an empty body.
func (h *handlers) decodeOptional(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		h.writeDecodeError(w, r, err)
		return false
	}
	return true
}

func (h *handlers) writeDecodeError(w http.ResponseWriter, r *http.Request, err error) {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		middleware.WriteError(w, r, http.StatusRequestEntityTooLarge, middleware.ErrorDetail{
			Code:    codeInvalidRequest,
			Message: fmt.Sprintf("request body exceeds %d bytes", maxErr.Limit),
		})
		return
	}
	middleware.WriteError(w, r, http.StatusBadRequest, middleware.ErrorDetail{
		Code:    codeInvalidRequest,
		Message: "malformed JSON body: " + err.Error(),
	})
}

// writeError maps service errors to HTTP responses.
func (h *handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, detail := classify(err)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request failed",
			"path", r.URL.Path,
			"status", status,
			"error", err,
		)
	}
	middleware.WriteError(w, r, status, detail)
}

func classify(err error) (int, middleware.ErrorDetail) {
	var (
		transitionErr *lifecycle.TransitionError
		contentErr    *repository.ContentError
	)
	switch {
	case errors.Is(err, recommend.ErrInvalidRequest):
		return http.StatusBadRequest, middleware.ErrorDetail{Code: codeInvalidRequest, Message: err.Error()}
	case errors.As(err, &transitionErr):
		return http.StatusConflict, middleware.ErrorDetail{
			Code:    codeInvalidTransition,
			Message: err.Error(),
			Reason:  transitionErr.Reason,
		}
	case errors.Is(err, lifecycle.ErrNotFound):
		return http.StatusNotFound, middleware.ErrorDetail{Code: codeNotFound, Message: err.Error()}
	case errors.Is(err, repository.ErrRefreshThrottled):
		return http.StatusTooManyRequests, middleware.ErrorDetail{Code: codeRefreshThrottled, Message: err.Error()}
	case errors.As(err, &contentErr):
		return http.StatusUnprocessableEntity, middleware.ErrorDetail{Code: codeRulesRejected, Message: err.Error()}
	case errors.Is(err, recommend.ErrNoExecutor):
		return http.StatusNotImplemented, middleware.ErrorDetail{Code: codeNotImplemented, Message: err.Error()}
	case errors.Is(err, repository.ErrRepositoryUnavailable),
		errors.Is(err, source.ErrUnavailable),
		errors.Is(err, cache.ErrCacheUnavailable):
		return http.StatusServiceUnavailable, middleware.ErrorDetail{Code: codeUnavailable, Message: err.Error()}
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, middleware.ErrorDetail{Code: codeTimeout, Message: "request timed out"}
	}
	return http.StatusInternalServerError, middleware.ErrorDetail{Code: codeInternal, Message: "an internal error occurred"}
}

// unjoin flattens an errors.Join result into messages.
func unjoin(err error) []string {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		errs := joined.Unwrap()
		out := make([]string, 0, len(errs))
		for _, e := range errs {
			out = append(out, e.Error())
		}
		return out
	}
	return []string{err.Error()}
}
