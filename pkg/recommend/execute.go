package recommend

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"mercator-hq/compass/pkg/lifecycle"
	"mercator-hq/compass/pkg/telemetry/logging"
	"mercator-hq/compass/pkg/telemetry/tracing"
)

// Execute performs the action of a recommendation and records the result.
// A recommendation that was already executed is not executed again: its
// recorded result is returned with applied false. Executing a recommendation
// whose state does not permit it returns an error matching
// lifecycle.ErrInvalidTransition and leaves the state unchanged.
func (s *Service) Execute(ctx context.Context, req *ExecuteRequest) (result *ExecutionResult, applied bool, err error) {
	ctx, span := s.tracer.Start(ctx, "recommend.Execute")
	defer func() {
		span.SetAttributes(tracing.AttrDuplicate.Bool(err == nil && !applied))
		tracing.End(span, err)
	}()

	if req == nil || req.RecommendationID == "" {
		return nil, false, &RequestError{Field: "recommendation_id", Message: "is required"}
	}
	ctx = logging.WithRecommendationID(ctx, req.RecommendationID)
	span.SetAttributes(attribute.String("compass.recommendation_id", req.RecommendationID))

	rec, err := s.tracker.Get(ctx, req.RecommendationID)
	if err != nil {
		return nil, false, err
	}
	if executed(rec) {
		return resultFromRecommendation(rec), false, nil
	}
	if s.executor == nil {
		return nil, false, ErrNoExecutor
	}

	rec, started, err := s.tracker.Transition(ctx, lifecycle.TransitionRequest{
		RecommendationID: rec.ID,
		To:               lifecycle.StatusExecuted,
		ActorID:          req.ActorID,
	})
	if err != nil {
		return nil, false, err
	}
	if !started {
		// Another caller executed it first.
		return resultFromRecommendation(rec), false, nil
	}

	timeout := rec.ExecutionTimeout
	if timeout <= 0 {
		timeout = s.executorTimeout
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	actionResult, execErr := s.executor.Execute(execCtx, &Action{
		RecommendationID: rec.ID,
		RuleID:           rec.RuleID,
		ActionType:       rec.ActionType,
		ExecutionKind:    rec.ExecutionKind,
		TargetObjectRef:  rec.TargetObjectRef,
		ContextType:      rec.ContextType,
		ContextID:        rec.ContextID,
		Payload:          req.Payload,
		ActorID:          req.ActorID,
	})
	timedOut := errors.Is(execCtx.Err(), context.DeadlineExceeded)
	cancel()
	if execErr == nil && actionResult == nil {
		actionResult = &ActionResult{Success: true}
	}

	outcome := lifecycle.TransitionRequest{
		RecommendationID: rec.ID,
		ActorID:          req.ActorID,
	}
	switch {
	case execErr != nil:
		msg := execErr.Error()
		if timedOut {
			msg = fmt.Sprintf("execution timed out after %s", timeout)
		}
		s.logger.WarnContext(ctx, "Action execution failed",
			"action_type", rec.ActionType,
			"error", execErr,
		)
		outcome.To = lifecycle.StatusFailed
		outcome.Details = map[string]any{"error": msg}
	case actionResult.Pending:
		s.logger.InfoContext(ctx, "Action dispatched, outcome pending",
			"action_type", rec.ActionType,
			"details", actionResult.Details,
		)
		return resultFromRecommendation(rec), true, nil
	case !actionResult.Success:
		outcome.To = lifecycle.StatusFailed
		outcome.Details = withMessage(actionResult.Details, "error", actionResult.Message)
	default:
		outcome.To = lifecycle.StatusExecuted
		outcome.Outcome = lifecycle.OutcomeSuccess
		outcome.Details = withMessage(actionResult.Details, "message", actionResult.Message)
	}

	// The outcome is recorded even if the caller has gone away.
	final, _, err := s.tracker.Transition(context.WithoutCancel(ctx), outcome)
	if err != nil {
		return nil, false, fmt.Errorf("record execution outcome: %w", err)
	}
	return resultFromRecommendation(final), true, nil
}

// RecordShown records that recommendations were displayed. Every id is
// processed; the errors of failed ids are joined.
func (s *Service) RecordShown(ctx context.Context, ids []string, actorID string) ([]*lifecycle.Recommendation, error) {
	if len(ids) == 0 {
		return nil, &RequestError{Field: "recommendation_ids", Message: "at least one id is required"}
	}

	recs := make([]*lifecycle.Recommendation, 0, len(ids))
	var errs []error
	for _, id := range ids {
		rec, _, err := s.tracker.Transition(ctx, lifecycle.TransitionRequest{
			RecommendationID: id,
			To:               lifecycle.StatusShown,
			ActorID:          actorID,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("recommendation %s: %w", id, err))
			continue
		}
		recs = append(recs, rec)
	}
	return recs, errors.Join(errs...)
}

// RecordResponse records that a recommendation was accepted or rejected.
func (s *Service) RecordResponse(ctx context.Context, id string, accepted bool, actorID string) (*lifecycle.Recommendation, bool, error) {
	if id == "" {
		return nil, false, &RequestError{Field: "recommendation_id", Message: "is required"}
	}
	to := lifecycle.StatusRejected
	if accepted {
		to = lifecycle.StatusAccepted
	}
	return s.tracker.Transition(ctx, lifecycle.TransitionRequest{
		RecommendationID: id,
		To:               to,
		ActorID:          actorID,
	})
}

// RecordExecuted records the result of an execution performed outside
// Execute, such as an asynchronously dispatched workflow. The
// recommendation is moved to Executed first if it is not there yet. applied
// is false when the outcome had already been recorded.
func (s *Service) RecordExecuted(ctx context.Context, id string, report ExecutionReport, actorID string) (*ExecutionResult, bool, error) {
	if id == "" {
		return nil, false, &RequestError{Field: "recommendation_id", Message: "is required"}
	}

	rec, err := s.tracker.Get(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if rec.Status != lifecycle.StatusExecuted && rec.Status != lifecycle.StatusFailed {
		if _, _, err := s.tracker.Transition(ctx, lifecycle.TransitionRequest{
			RecommendationID: id,
			To:               lifecycle.StatusExecuted,
			ActorID:          actorID,
		}); err != nil {
			return nil, false, err
		}
	}

	req := lifecycle.TransitionRequest{
		RecommendationID: id,
		To:               lifecycle.StatusExecuted,
		Outcome:          lifecycle.OutcomeSuccess,
		Details:          report.Details,
		ActorID:          actorID,
	}
	if !report.Success {
		req.To = lifecycle.StatusFailed
		req.Outcome = ""
		req.Details = withMessage(report.Details, "error", report.Error)
	}
	final, applied, err := s.tracker.Transition(ctx, req)
	if err != nil {
		return nil, false, err
	}
	return resultFromRecommendation(final), applied, nil
}

// Recommendation returns the stored recommendation.
func (s *Service) Recommendation(ctx context.Context, id string) (*lifecycle.Recommendation, error) {
	return s.tracker.Get(ctx, id)
}

// ContextRecommendations returns the recommendations issued for a context,
// oldest first.
func (s *Service) ContextRecommendations(ctx context.Context, contextID string) ([]*lifecycle.Recommendation, error) {
	if contextID == "" {
		return nil, &RequestError{Field: "context_id", Message: "is required"}
	}
	return s.tracker.ListByContext(ctx, contextID)
}

// executed reports whether execution has already started or finished.
func executed(r *lifecycle.Recommendation) bool {
	return r.Status == lifecycle.StatusExecuted || r.Status == lifecycle.StatusFailed
}

func resultFromRecommendation(r *lifecycle.Recommendation) *ExecutionResult {
	res := &ExecutionResult{
		RecommendationID: r.ID,
		Outcome:          r.Outcome,
		Details:          r.ExecutionDetails,
	}
	switch {
	case r.Status == lifecycle.StatusFailed:
		res.Status = ExecutionError
	case r.Outcome == lifecycle.OutcomeSuccess:
		res.Status = ExecutionSuccess
	default:
		res.Status = ExecutionPending
	}
	return res
}

// withMessage returns details with key set to msg when msg is not empty.
func withMessage(details map[string]any, key, msg string) map[string]any {
	if msg == "" {
		return details
	}
	out := make(map[string]any, len(details)+1)
	for k, v := range details {
		out[k] = v
	}
	out[key] = msg
	return out
}
