package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"mercator-hq/compass/pkg/rules"
	"mercator-hq/compass/pkg/rules/source"
	"mercator-hq/compass/pkg/telemetry/metrics"
	"mercator-hq/compass/pkg/telemetry/tracing"
)

// Refresh results recorded in metrics.
const (
	resultOK          = "ok"
	resultUnavailable = "unavailable"
	resultInvalid     = "invalid"
)

// PublishFunc is called after a new version of a context type is published.
type PublishFunc func(contextType rules.ContextType, version int64)

// Validator rejects rules that must not be published. A non-nil error
// rejects the whole refresh.
type Validator func(r *rules.Rule) error

// catalog is an immutable set of snapshots. It is replaced, never mutated.
type catalog struct {
	snapshots   map[rules.ContextType]*rules.Snapshot
	unavailable error
	loadedAt    time.Time
}

// Status describes the repository state for health and admin endpoints.
type Status struct {
	Source      string                      `json:"source"`
	Revision    string                      `json:"revision,omitempty"`
	Available   bool                        `json:"available"`
	LastRefresh time.Time                   `json:"last_refresh"`
	LastSuccess time.Time                   `json:"last_success"`
	LastError   string                      `json:"last_error,omitempty"`
	Versions    map[rules.ContextType]int64 `json:"versions"`
}

// Repository serves versioned rule snapshots per context type.
type Repository struct {
	source    source.Source
	validator Validator
	logger    *slog.Logger
	metrics   *metrics.Collector
	tracer    *tracing.Tracer
	limiter   *rate.Limiter
	now       func() time.Time

	current   atomic.Pointer[catalog]
	refreshMu sync.Mutex

	hooksMu sync.RWMutex
	hooks   []PublishFunc

	statusMu    sync.RWMutex
	lastRefresh time.Time
	lastSuccess time.Time
	lastErr     error
}

// Option configures a Repository.
type Option func(*Repository)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Repository) { r.logger = l }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(r *Repository) { r.metrics = m }
}

// WithTracer sets the tracer.
func WithTracer(t *tracing.Tracer) Option {
	return func(r *Repository) { r.tracer = t }
}

// WithValidator rejects refreshes containing rules v fails.
func WithValidator(v Validator) Option {
	return func(r *Repository) { r.validator = v }
}

// WithRefreshInterval limits RequestRefresh to one call per interval.
func WithRefreshInterval(d time.Duration) Option {
	return func(r *Repository) {
		if d > 0 {
			r.limiter = rate.NewLimiter(rate.Every(d), 1)
		}
	}
}

// WithClock overrides the time source used for LoadedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(r *Repository) { r.now = now }
}

// New creates a repository over src. Nothing is loaded until the first
// refresh; until then LoadActive reports the repository unavailable.
func New(src source.Source, opts ...Option) *Repository {
	r := &Repository{
		source: src,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// LoadActive returns the current snapshot for contextType. A context type
// without any rules yields an empty snapshot at version 0.
func (r *Repository) LoadActive(ctx context.Context, contextType rules.ContextType) (*rules.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c := r.current.Load()
	if c == nil {
		return nil, &UnavailableError{ContextType: contextType, Cause: ErrNotLoaded}
	}
	if c.unavailable != nil {
		return nil, &UnavailableError{ContextType: contextType, Cause: c.unavailable}
	}
	if snap, ok := c.snapshots[contextType]; ok {
		return snap, nil
	}
	return rules.NewSnapshot(contextType, 0, nil, c.loadedAt), nil
}

// Version returns the current version of contextType, or 0.
func (r *Repository) Version(contextType rules.ContextType) int64 {
	c := r.current.Load()
	if c == nil {
		return 0
	}
	if snap, ok := c.snapshots[contextType]; ok {
		return snap.Version
	}
	return 0
}

// OnPublish registers fn to run after each published version change.
func (r *Repository) OnPublish(fn PublishFunc) {
	r.hooksMu.Lock()
	defer r.hooksMu.Unlock()
	r.hooks = append(r.hooks, fn)
}

// Refresh reloads the source and republishes contextType. While the
// repository is unavailable a refresh of one type republishes all types,
// so recovery never mixes fresh and stale snapshots.
func (r *Repository) Refresh(ctx context.Context, contextType rules.ContextType) (*rules.Snapshot, error) {
	if err := r.refresh(ctx, []rules.ContextType{contextType}); err != nil {
		return nil, err
	}
	return r.LoadActive(ctx, contextType)
}

// RefreshAll reloads the source and republishes every context type.
func (r *Repository) RefreshAll(ctx context.Context) error {
	return r.refresh(ctx, nil)
}

// RequestRefresh runs RefreshAll unless the configured refresh interval has
// not yet elapsed, in which case it returns ErrRefreshThrottled.
func (r *Repository) RequestRefresh(ctx context.Context) error {
	if r.limiter != nil && !r.limiter.Allow() {
		return ErrRefreshThrottled
	}
	return r.RefreshAll(ctx)
}

func (r *Repository) refresh(ctx context.Context, only []rules.ContextType) (err error) {
	ctx, span := r.tracer.Start(ctx, "repository.Refresh")
	defer func() { tracing.End(span, err) }()

	r.refreshMu.Lock()
	defer r.refreshMu.Unlock()

	start := time.Now()
	prev := r.current.Load()

	loaded, err := r.source.Load(ctx)
	if err == nil && r.validator != nil {
		err = r.validate(loaded)
	}
	if err != nil {
		if errors.Is(err, source.ErrUnavailable) {
			r.markUnavailable(prev, err)
			r.finish(resultUnavailable, err)
			r.logger.ErrorContext(ctx, "Rule source unavailable, failing closed",
				"source", r.source.Name(),
				"error", err,
			)
			return err
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			r.finish(resultInvalid, err)
			return err
		}
		cerr := &ContentError{Source: r.source.Name(), Cause: err}
		r.finish(resultInvalid, cerr)
		r.logger.ErrorContext(ctx, "Rule refresh rejected, keeping previous rules",
			"source", r.source.Name(),
			"error", err,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return cerr
	}

	if prev != nil && prev.unavailable != nil {
		only = nil
	}
	next, changed := r.build(prev, loaded, only)
	r.current.Store(next)
	r.finish(resultOK, nil)

	for _, ct := range changed {
		v := next.snapshots[ct].Version
		r.metrics.SetRepositoryVersion(string(ct), v)
		r.logger.InfoContext(ctx, "Published rule set",
			"context_type", ct,
			"version", v,
			"rules", next.snapshots[ct].Len(),
		)
	}
	r.logger.DebugContext(ctx, "Rule refresh complete",
		"source", r.source.Name(),
		"changed", len(changed),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	r.notify(next, changed)
	return nil
}

func (r *Repository) validate(loaded []*rules.Rule) error {
	var list rules.ErrorList
	for _, rule := range loaded {
		if err := r.validator(rule); err != nil {
			list.Add(err)
		}
	}
	return list.Err()
}

// build derives the next catalog from prev. Context types outside only
// (when non-empty) are carried over unchanged.
func (r *Repository) build(prev *catalog, loaded []*rules.Rule, only []rules.ContextType) (*catalog, []rules.ContextType) {
	now := r.now()
	next := &catalog{
		snapshots: make(map[rules.ContextType]*rules.Snapshot),
		loadedAt:  now,
	}
	if prev != nil {
		for ct, snap := range prev.snapshots {
			next.snapshots[ct] = snap
		}
	}

	targets := only
	if len(targets) == 0 {
		seen := make(map[rules.ContextType]struct{})
		for _, ct := range rules.ContextTypes(loaded) {
			seen[ct] = struct{}{}
		}
		for ct := range next.snapshots {
			seen[ct] = struct{}{}
		}
		for ct := range seen {
			targets = append(targets, ct)
		}
	}
	sort.Slice(targets, func(i, j int) bool { return targets[i] < targets[j] })

	var changed []rules.ContextType
	for _, ct := range targets {
		old, hadOld := next.snapshots[ct]
		candidate := rules.NewSnapshot(ct, 0, loaded, now)
		if !hadOld && candidate.Len() == 0 {
			continue
		}
		if hadOld && old.Digest == candidate.Digest {
			continue
		}
		var version int64 = 1
		if hadOld {
			version = old.Version + 1
		}
		candidate.Version = version
		next.snapshots[ct] = candidate
		changed = append(changed, ct)
	}
	return next, changed
}

// markUnavailable publishes a catalog that keeps the known versions but
// refuses reads.
func (r *Repository) markUnavailable(prev *catalog, cause error) {
	next := &catalog{unavailable: cause, loadedAt: r.now()}
	if prev != nil {
		next.snapshots = prev.snapshots
	}
	r.current.Store(next)
}

func (r *Repository) finish(result string, err error) {
	r.metrics.RecordRefresh(result)

	r.statusMu.Lock()
	defer r.statusMu.Unlock()
	r.lastRefresh = r.now()
	r.lastErr = err
	if err == nil {
		r.lastSuccess = r.lastRefresh
	}
}

func (r *Repository) notify(c *catalog, changed []rules.ContextType) {
	if len(changed) == 0 {
		return
	}
	r.hooksMu.RLock()
	hooks := make([]PublishFunc, len(r.hooks))
	copy(hooks, r.hooks)
	r.hooksMu.RUnlock()

	for _, ct := range changed {
		for _, fn := range hooks {
			fn(ct, c.snapshots[ct].Version)
		}
	}
}

// Status returns the current repository state.
func (r *Repository) Status() Status {
	c := r.current.Load()

	r.statusMu.RLock()
	st := Status{
		Source:      r.source.Name(),
		LastRefresh: r.lastRefresh,
		LastSuccess: r.lastSuccess,
		Versions:    make(map[rules.ContextType]int64),
	}
	if r.lastErr != nil {
		st.LastError = r.lastErr.Error()
	}
	r.statusMu.RUnlock()

	if rv, ok := r.source.(source.Revisioner); ok {
		st.Revision = rv.Revision()
	}

	if c != nil {
		st.Available = c.unavailable == nil
		for ct, snap := range c.snapshots {
			st.Versions[ct] = snap.Version
		}
	}
	return st
}

// Check implements a readiness check: it fails while LoadActive would.
func (r *Repository) Check(context.Context) error {
	c := r.current.Load()
	switch {
	case c == nil:
		return ErrNotLoaded
	case c.unavailable != nil:
		return fmt.Errorf("%w: %v", ErrRepositoryUnavailable, c.unavailable)
	}
	return nil
}
