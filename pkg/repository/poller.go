package repository

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Poller refreshes the repository on a cron schedule.
type Poller struct {
	repo     *Repository
	cron     *cron.Cron
	schedule string
	timeout  time.Duration
	logger   *slog.Logger
}

// NewPoller creates a poller for a standard five-field cron schedule or a
// descriptor such as "@every 30s".
func NewPoller(repo *Repository, schedule string, timeout time.Duration, logger *slog.Logger) (*Poller, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	p := &Poller{
		repo:     repo,
		cron:     cron.New(),
		schedule: schedule,
		timeout:  timeout,
		logger:   logger,
	}
	if _, err := p.cron.AddFunc(schedule, p.poll); err != nil {
		return nil, fmt.Errorf("invalid refresh schedule %q: %w", schedule, err)
	}
	return p, nil
}

// Start begins polling in the background.
func (p *Poller) Start() {
	p.cron.Start()
	p.logger.Info("Rule refresh poller started", "schedule", p.schedule)
}

// Stop stops polling and waits for a running refresh to finish.
func (p *Poller) Stop() {
	<-p.cron.Stop().Done()
}

func (p *Poller) poll() {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	if err := p.repo.RefreshAll(ctx); err != nil {
		p.logger.Warn("Scheduled rule refresh failed", "error", err)
	}
}
