package retention

import (
	"context"
	"log/slog"
	"time"

	"mercator-hq/compass/pkg/audit"
	"mercator-hq/compass/pkg/config"
)

// Pruner enforces the retention period on audit events.
type Pruner struct {
	storage audit.Storage
	config  config.RetentionConfig
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures a Pruner.
type Option func(*Pruner)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pruner) {
		p.logger = logger.With("component", "audit.retention")
	}
}

// WithClock sets the time source used to compute the cutoff.
func WithClock(now func() time.Time) Option {
	return func(p *Pruner) {
		p.now = now
	}
}

// NewPruner creates a pruner for storage.
func NewPruner(storage audit.Storage, cfg config.RetentionConfig, opts ...Option) *Pruner {
	p := &Pruner{
		storage: storage,
		config:  cfg,
		logger:  slog.Default().With("component", "audit.retention"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Cutoff returns the newest timestamp that is pruned, and false when
// retention is disabled.
func (p *Pruner) Cutoff() (time.Time, bool) {
	if p.config.Days <= 0 {
		return time.Time{}, false
	}
	return p.now().UTC().AddDate(0, 0, -p.config.Days), true
}

// Prune deletes events older than the retention period and returns how
// many were deleted. With retention disabled (Days == 0) nothing is deleted.
func (p *Pruner) Prune(ctx context.Context) (int64, error) {
	cutoff, ok := p.Cutoff()
	if !ok {
		p.logger.Debug("retention disabled, nothing pruned")
		return 0, nil
	}

	deleted, err := p.storage.Delete(ctx, &audit.Query{EndTime: &cutoff})
	if err != nil {
		return 0, &audit.RetentionError{RetentionDays: p.config.Days, Cause: err}
	}

	if deleted > 0 {
		p.logger.Info("audit events pruned",
			"deleted_count", deleted,
			"retention_days", p.config.Days,
			"cutoff_time", cutoff,
		)
	} else {
		p.logger.Debug("no audit events pruned", "retention_days", p.config.Days)
	}
	return deleted, nil
}
