package recommend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"mercator-hq/compass/pkg/cache"
	"mercator-hq/compass/pkg/lifecycle"
	"mercator-hq/compass/pkg/ranking"
	"mercator-hq/compass/pkg/rules"
	"mercator-hq/compass/pkg/telemetry/logging"
	"mercator-hq/compass/pkg/telemetry/tracing"
)

// Evaluation results recorded in metrics.
const (
	resultOK       = "ok"
	resultDegraded = "degraded"
	resultStale    = "stale"
)

var errMaterialize = errors.New("recommendations could not be materialized")

// computation is the outcome of running the pipeline for one context.
type computation struct {
	entry    cache.Entry
	excluded []string
}

// recommendationNamespace scopes the name-based recommendation ids.
var recommendationNamespace = uuid.MustParse("6f1c2d3e-8a4b-5c6d-9e0f-1a2b3c4d5e6f")

// recommendationID derives the id of a ranked candidate from the cache key
// (context, context hash, role and rule-set version), the rule and the as-of
// time. Identical inputs always yield the same id.
func recommendationID(key cache.Key, cand ranking.Candidate, asOf time.Time) string {
	name := fmt.Sprintf("%s|%s|%d|%d", key.String(), cand.RuleID, cand.RuleVersion, asOf.UTC().UnixNano())
	return uuid.NewSHA1(recommendationNamespace, []byte(name)).String()
}

// Evaluate returns the ranked recommendations for every context of req.
// The rule snapshot of each context type is loaded once for the whole call.
// Rule-level failures never fail the call; an unavailable rule repository
// yields degraded results for the affected context types.
func (s *Service) Evaluate(ctx context.Context, req *EvaluateRequest) (resp *EvaluateResponse, err error) {
	ctx, span := s.tracer.Start(ctx, "recommend.Evaluate")
	defer func() { tracing.End(span, err) }()

	if err := s.validate(req); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("compass.contexts", len(req.Contexts)))

	topN := s.topN
	if req.TopN > 0 {
		topN = min(req.TopN, s.maxTopN)
	}
	asOf := req.AsOf
	cacheable := asOf.IsZero() && topN == s.topN
	if asOf.IsZero() {
		asOf = s.now()
	}

	snapshots := make(map[rules.ContextType]*rules.Snapshot)
	unavailable := make(map[rules.ContextType]bool)
	for _, c := range req.Contexts {
		if snapshots[c.ContextType] != nil || unavailable[c.ContextType] {
			continue
		}
		snap, err := s.rules.LoadActive(ctx, c.ContextType)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.logger.WarnContext(ctx, "Rules unavailable, returning degraded results",
				"context_type", c.ContextType,
				"error", err,
			)
			unavailable[c.ContextType] = true
			continue
		}
		snapshots[c.ContextType] = snap
	}

	results := make([]ContextResult, len(req.Contexts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxConcurrency)

	for i, c := range req.Contexts {
		snap := snapshots[c.ContextType]
		if snap == nil {
			results[i] = ContextResult{
				ContextType: c.ContextType,
				ContextID:   c.ContextID,
				Items:       []Item{},
				Degraded:    true,
			}
			s.metrics.RecordEvaluation(string(c.ContextType), resultDegraded, 0)
			continue
		}

		g.Go(func() error {
			start := time.Now()
			res, err := s.evaluateContext(gctx, snap, c, asOf, topN, cacheable)
			if err != nil {
				return err
			}
			results[i] = res
			s.metrics.RecordEvaluation(string(c.ContextType), resultLabel(res), time.Since(start))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &EvaluateResponse{Results: results}, nil
}

func (s *Service) validate(req *EvaluateRequest) error {
	if req == nil || len(req.Contexts) == 0 {
		return &RequestError{Field: "contexts", Message: "at least one context is required"}
	}
	if len(req.Contexts) > s.maxBatchSize {
		return &RequestError{Field: "contexts", Message: fmt.Sprintf("%d contexts exceed the batch limit of %d", len(req.Contexts), s.maxBatchSize)}
	}
	if req.TopN < 0 {
		return &RequestError{Field: "top_n", Message: "must not be negative"}
	}
	for i, c := range req.Contexts {
		switch {
		case c == nil:
			return &RequestError{Field: fmt.Sprintf("contexts[%d]", i), Message: "context is null"}
		case c.ContextType == "":
			return &RequestError{Field: fmt.Sprintf("contexts[%d].context_type", i), Message: "is required"}
		case c.ContextID == "":
			return &RequestError{Field: fmt.Sprintf("contexts[%d].context_id", i), Message: "is required"}
		}
	}
	return nil
}

// evaluateContext serves one context from the cache or computes it. Only a
// cancelled ctx is returned as an error.
func (s *Service) evaluateContext(ctx context.Context, snap *rules.Snapshot, c *rules.Context, asOf time.Time, topN int, cacheable bool) (ContextResult, error) {
	ctx = logging.WithContextID(ctx, c.ContextID)
	res := ContextResult{
		ContextType:    c.ContextType,
		ContextID:      c.ContextID,
		RuleSetVersion: snap.Version,
		Items:          []Item{},
	}

	key := cache.NewKey(c, snap.Version)
	backend := cache.BackendName(s.cache)
	useCache := cacheable
	if useCache {
		entry, ok, err := s.cache.Get(ctx, key)
		switch {
		case err != nil:
			s.bypassCache(ctx, "get", err)
			useCache = false
		case ok:
			s.metrics.RecordCacheRequest(backend, "hit")
			res.CacheHit = true
			res.Items = itemsFromEntry(entry)
			return res, nil
		default:
			s.metrics.RecordCacheRequest(backend, "miss")
		}
	}

	var (
		out *computation
		err error
	)
	if useCache {
		var v any
		v, err, _ = s.flight.Do(key.String(), func() (any, error) {
			return s.compute(ctx, snap, c, asOf, topN, key, true)
		})
		if err == nil {
			out = v.(*computation)
		} else if isContextErr(err) && ctx.Err() == nil {
			// The caller that ran the shared computation was cancelled.
			out, err = s.compute(ctx, snap, c, asOf, topN, key, false)
		}
	} else {
		out, err = s.compute(ctx, snap, c, asOf, topN, key, false)
	}

	switch {
	case err == nil:
		res.Items = itemsFromEntry(out.entry)
		res.Excluded = out.excluded
	case errors.Is(err, errAborted):
		res.Aborted = true
	case errors.Is(err, errMaterialize):
		res.Degraded = true
	default:
		return ContextResult{}, err
	}

	s.logger.DebugContext(ctx, "Context evaluated",
		"context_type", c.ContextType,
		"rule_set_version", snap.Version,
		"recommendations", len(res.Items),
		"excluded", len(res.Excluded),
		"aborted", res.Aborted,
	)
	return res, nil
}

// compute runs filter, score, rank and materialization for one context.
func (s *Service) compute(ctx context.Context, snap *rules.Snapshot, c *rules.Context, asOf time.Time, topN int, key cache.Key, store bool) (*computation, error) {
	applicable, exclusions := s.evaluator.Filter(ctx, snap.Rules, c)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	candidates := make([]ranking.Candidate, 0, len(applicable))
	for _, r := range applicable {
		scored := s.scorer.Score(r, c, asOf)
		candidates = append(candidates, ranking.Candidate{
			RuleID:          r.ID,
			RuleVersion:     r.Version,
			Score:           scored.Score,
			PriorityTier:    r.PriorityTier,
			Reason:          rules.RenderReason(r, c, scored.Score),
			ActionType:      r.ActionType,
			TargetObjectRef: r.TargetObjectRef,
			SuggestedAction: r.SuggestedAction,
			Contributions:   scored.Contributions,
		})
	}
	ranked := ranking.Rank(candidates, topN)

	if s.checker != nil {
		current, err := s.checker.Current(ctx, c)
		if err != nil {
			s.logger.WarnContext(ctx, "Context check failed, aborting evaluation", "error", err)
			return nil, errAborted
		}
		if !current {
			s.logger.InfoContext(ctx, "Context changed during evaluation, aborting")
			return nil, errAborted
		}
	}

	recs := make([]*lifecycle.Recommendation, len(ranked))
	ids := make([]string, len(ranked))
	for i, cand := range ranked {
		ids[i] = recommendationID(key, cand, asOf)
		recs[i] = s.recommendation(ids[i], snap, c, cand)
	}
	if err := s.tracker.Materialize(ctx, recs); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.logger.ErrorContext(ctx, "Failed to materialize recommendations", "error", err)
		return nil, fmt.Errorf("%w: %v", errMaterialize, err)
	}

	out := &computation{
		entry: cache.Entry{
			Candidates:        ranked,
			RecommendationIDs: ids,
			CreatedAt:         s.now(),
		},
	}
	for _, ex := range exclusions {
		out.excluded = append(out.excluded, ex.RuleID)
	}

	if store {
		if err := s.cache.Put(ctx, key, out.entry, s.cacheTTL); err != nil {
			s.bypassCache(ctx, "put", err)
		}
	}
	return out, nil
}

// recommendation builds the Shown record for a ranked candidate. The rule's
// execution strategy is captured so later rule edits do not change it.
func (s *Service) recommendation(id string, snap *rules.Snapshot, c *rules.Context, cand ranking.Candidate) *lifecycle.Recommendation {
	rec := &lifecycle.Recommendation{
		ID:              id,
		ContextType:     c.ContextType,
		ContextID:       c.ContextID,
		CustomerRef:     customerRef(c),
		RuleID:          cand.RuleID,
		RuleVersion:     cand.RuleVersion,
		RuleSetVersion:  snap.Version,
		ActionType:      cand.ActionType,
		TargetObjectRef: cand.TargetObjectRef,
		SuggestedAction: cand.SuggestedAction,
		Score:           cand.Score,
		PriorityTier:    cand.PriorityTier,
		Reason:          cand.Reason,
		Status:          lifecycle.StatusShown,
	}
	if r, ok := snap.Get(cand.RuleID); ok {
		rec.ExecutionKind = r.ExecutionStrategy.Kind
		rec.AllowDirect = r.ExecutionStrategy.AllowDirect
		rec.ExecutionTimeout = r.ExecutionStrategy.Timeout
	}
	return rec
}

// Invalidate drops every cached result of a context.
func (s *Service) Invalidate(ctx context.Context, contextID string) error {
	if contextID == "" {
		return &RequestError{Field: "context_id", Message: "is required"}
	}
	if err := s.cache.Invalidate(ctx, contextID); err != nil {
		s.logger.WarnContext(ctx, "Cache invalidation failed", "context_id", contextID, "error", err)
		return err
	}
	s.logger.DebugContext(ctx, "Cache invalidated", "context_id", contextID)
	return nil
}

func (s *Service) bypassCache(ctx context.Context, op string, err error) {
	s.metrics.RecordCacheRequest(cache.BackendName(s.cache), "error")
	s.logger.WarnContext(ctx, "Recommendation cache unavailable, bypassing",
		"operation", op,
		"error", err,
	)
}

func itemsFromEntry(e cache.Entry) []Item {
	items := make([]Item, len(e.Candidates))
	for i, cand := range e.Candidates {
		items[i] = Item{
			RuleID:          cand.RuleID,
			ActionType:      cand.ActionType,
			Score:           cand.Score,
			PriorityTier:    cand.PriorityTier,
			Reason:          cand.Reason,
			TargetObjectRef: cand.TargetObjectRef,
			SuggestedAction: cand.SuggestedAction,
		}
		if i < len(e.RecommendationIDs) {
			items[i].RecommendationID = e.RecommendationIDs[i]
		}
	}
	return items
}

// customerRef picks the customer-level related record of a context.
func customerRef(c *rules.Context) string {
	for _, rel := range []string{"customer", "account"} {
		if id := c.RelatedIDs[rel]; id != "" {
			return id
		}
	}
	return ""
}

func resultLabel(res ContextResult) string {
	switch {
	case res.Aborted:
		return resultStale
	case res.Degraded:
		return resultDegraded
	}
	return resultOK
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
