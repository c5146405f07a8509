package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"mercator-hq/compass/pkg/audit"
	"mercator-hq/compass/pkg/telemetry/metrics"
)

// maxCASAttempts bounds retries when the stored state changes between read
// and update.
const maxCASAttempts = 3

// Tracker applies lifecycle transitions and forwards them to the audit sink.
type Tracker struct {
	store   Store
	sink    audit.Sink
	logger  *slog.Logger
	metrics *metrics.Collector
	now     func() time.Time

	// retentionDays matches the audit retention; 0 keeps events forever.
	retentionDays int
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tracker) {
		t.logger = logger.With("component", "lifecycle")
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(t *Tracker) {
		t.metrics = m
	}
}

// WithClock sets the time source for transitions without an explicit time.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		t.now = now
	}
}

// WithRetention tells the tracker how long audit events are kept. A missing
// event for a transition older than that was pruned and is not written again.
func WithRetention(days int) Option {
	return func(t *Tracker) {
		t.retentionDays = days
	}
}

// NewTracker creates a tracker persisting to store and auditing to sink.
func NewTracker(store Store, sink audit.Sink, opts ...Option) *Tracker {
	t := &Tracker{
		store:  store,
		sink:   sink,
		logger: slog.Default().With("component", "lifecycle"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Materialize persists new recommendations in the Shown state. The batch is
// stored as a unit; ids that already exist are left untouched.
func (t *Tracker) Materialize(ctx context.Context, recs []*Recommendation) error {
	now := t.now().UTC()
	batch := make([]*Recommendation, len(recs))
	for i, r := range recs {
		if r.ID == "" {
			return fmt.Errorf("materialize: recommendation for rule %s has no id", r.RuleID)
		}
		stored := r.Clone()
		stored.Status = StatusShown
		stored.Outcome = ""
		if stored.CreatedAt.IsZero() {
			stored.CreatedAt = now
		}
		if stored.ShownAt.IsZero() {
			stored.ShownAt = stored.CreatedAt
		}
		stored.UpdatedAt = stored.CreatedAt
		batch[i] = stored
	}
	if len(batch) == 0 {
		return nil
	}

	if _, err := t.store.CreateAll(ctx, batch); err != nil {
		return fmt.Errorf("materialize %d recommendations: %w", len(batch), err)
	}
	return nil
}

// Get returns the stored recommendation.
func (t *Tracker) Get(ctx context.Context, id string) (*Recommendation, error) {
	return t.store.Get(ctx, id)
}

// ListByContext returns the recommendations materialized for a context,
// oldest first.
func (t *Tracker) ListByContext(ctx context.Context, contextID string) ([]*Recommendation, error) {
	return t.store.ListByContext(ctx, contextID)
}

// Transition moves a recommendation to req.To. applied is false when the
// transition had already been recorded; the returned recommendation then
// reflects the stored state. A transition the status machine does not allow
// returns a *TransitionError and leaves the state unchanged.
func (t *Tracker) Transition(ctx context.Context, req TransitionRequest) (*Recommendation, bool, error) {
	req = req.normalize()
	if req.At.IsZero() {
		req.At = t.now()
	}
	req.At = req.At.UTC()
	eventStatus := req.eventStatus()

	// A recorded audit event means this transition already happened.
	if _, err := t.sink.Lookup(ctx, req.RecommendationID, eventStatus); err == nil {
		rec, err := t.store.Get(ctx, req.RecommendationID)
		if err != nil {
			return nil, false, err
		}
		t.record(req, "duplicate")
		return rec, false, nil
	} else if !errors.Is(err, audit.ErrNotFound) {
		t.record(req, "error")
		return nil, false, fmt.Errorf("audit lookup for %s: %w", req.RecommendationID, err)
	}

	for attempt := 1; ; attempt++ {
		rec, err := t.store.Get(ctx, req.RecommendationID)
		if err != nil {
			t.record(req, "error")
			return nil, false, err
		}

		if inTarget(rec, req) {
			// The state was stored but its audit event is missing.
			reached := reachedAt(rec, req)
			if t.pruned(reached) {
				t.record(req, "duplicate")
				return rec, false, nil
			}
			if req.To != StatusShown && !reached.IsZero() {
				req.At = reached
			}
			if err := t.appendEvent(ctx, rec, req, eventStatus); err != nil {
				t.record(req, "error")
				return nil, false, err
			}
			t.record(req, "duplicate")
			return rec, false, nil
		}
		if pastTarget(rec, req) {
			t.record(req, "duplicate")
			return rec, false, nil
		}

		if terr := check(rec, req); terr != nil {
			t.logger.Info("invalid lifecycle transition",
				"recommendation_id", rec.ID,
				"from", rec.Status,
				"to", req.To,
				"reason", terr.Reason,
			)
			t.record(req, "rejected")
			return rec, false, terr
		}

		next := apply(rec, req)
		err = t.store.Update(ctx, next, rec.Status, rec.Outcome)
		if errors.Is(err, ErrConflict) && attempt < maxCASAttempts {
			continue
		}
		if err != nil {
			t.record(req, "error")
			return nil, false, fmt.Errorf("update recommendation %s: %w", rec.ID, err)
		}

		if err := t.appendEvent(ctx, next, req, eventStatus); err != nil {
			// The state change is stored; a retry repairs the audit trail.
			t.record(req, "error")
			return nil, false, err
		}

		t.logger.Debug("lifecycle transition applied",
			"recommendation_id", next.ID,
			"from", rec.Status,
			"to", next.Status,
			"outcome", next.Outcome,
		)
		t.record(req, "applied")
		return next, true, nil
	}
}

func (t *Tracker) appendEvent(ctx context.Context, rec *Recommendation, req TransitionRequest, status string) error {
	_, err := t.sink.Append(ctx, &audit.Event{
		RecommendationID: rec.ID,
		Status:           status,
		Outcome:          req.Outcome,
		Details:          req.Details,
		RuleID:           rec.RuleID,
		ContextID:        rec.ContextID,
		Timestamp:        req.At,
		ActorID:          req.ActorID,
	})
	if err != nil {
		return fmt.Errorf("audit %s event for %s: %w", status, rec.ID, err)
	}
	return nil
}

// pruned reports whether an audit event written at ts is past retention.
func (t *Tracker) pruned(ts time.Time) bool {
	if t.retentionDays <= 0 || ts.IsZero() {
		return false
	}
	return ts.Before(t.now().UTC().AddDate(0, 0, -t.retentionDays))
}

func (t *Tracker) record(req TransitionRequest, result string) {
	t.metrics.RecordTransition(req.eventStatus(), result)
}
