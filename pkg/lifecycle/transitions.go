package lifecycle

import "time"

// check validates req against the transition table for r's current state.
// It returns nil when the transition is allowed.
func check(r *Recommendation, req TransitionRequest) *TransitionError {
	deny := func(reason string) *TransitionError {
		return &TransitionError{RecommendationID: r.ID, From: r.Status, To: req.To, Reason: reason}
	}

	if r.Terminal() {
		return deny("recommendation is in a terminal state")
	}

	switch req.To {
	case StatusAccepted, StatusRejected:
		if r.Status != StatusShown {
			return deny("only a shown recommendation can be accepted or rejected")
		}
	case StatusExecuted:
		if req.Outcome == OutcomeSuccess {
			if r.Status != StatusExecuted {
				return deny("an outcome can only be recorded after execution")
			}
			return nil
		}
		if req.Outcome != "" {
			return deny("unknown outcome " + req.Outcome)
		}
		switch r.Status {
		case StatusAccepted:
		case StatusShown:
			if !r.AllowDirect {
				return deny("execution requires prior acceptance")
			}
		default:
			return deny("only an accepted recommendation can be executed")
		}
	case StatusFailed:
		if r.Status != StatusExecuted {
			return deny("only an executed recommendation can fail")
		}
	default:
		return deny("unknown target status")
	}
	return nil
}

// inTarget reports whether r already is in the state req asks for.
func inTarget(r *Recommendation, req TransitionRequest) bool {
	switch req.To {
	case StatusExecuted:
		return r.Status == StatusExecuted && r.Outcome == req.Outcome
	default:
		return r.Status == req.To
	}
}

// reachedAt returns when r entered the state req asks for.
func reachedAt(r *Recommendation, req TransitionRequest) time.Time {
	switch {
	case req.To == StatusShown:
		return r.ShownAt
	case req.To == StatusAccepted, req.To == StatusRejected:
		return r.RespondedAt
	case req.To == StatusExecuted && req.Outcome == "":
		return r.ExecutedAt
	}
	return r.CompletedAt
}

// pastTarget reports whether r has moved beyond the state req asks for, so
// the request describes a transition that already happened.
func pastTarget(r *Recommendation, req TransitionRequest) bool {
	switch req.To {
	case StatusShown:
		return r.Status != StatusShown
	case StatusAccepted:
		return r.Status == StatusExecuted || r.Status == StatusFailed
	case StatusExecuted:
		if req.Outcome != "" {
			return false
		}
		return (r.Status == StatusExecuted && r.Outcome == OutcomeSuccess) || r.Status == StatusFailed
	}
	return false
}

// apply returns a copy of r moved to the requested state.
func apply(r *Recommendation, req TransitionRequest) *Recommendation {
	next := r.Clone()
	next.Status = req.To
	next.UpdatedAt = req.At

	switch req.To {
	case StatusAccepted, StatusRejected:
		next.RespondedAt = req.At
	case StatusExecuted:
		if req.Outcome == "" {
			next.ExecutedAt = req.At
		} else {
			next.Outcome = req.Outcome
			next.CompletedAt = req.At
		}
	case StatusFailed:
		next.Outcome = OutcomeFailure
		next.CompletedAt = req.At
	}

	if len(req.Details) > 0 {
		if next.ExecutionDetails == nil {
			next.ExecutionDetails = make(map[string]any, len(req.Details))
		}
		for k, v := range req.Details {
			next.ExecutionDetails[k] = v
		}
	}
	return next
}
