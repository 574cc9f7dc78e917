package collab

import (
	"context"
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// DefaultSchedule refreshes every ten minutes.
const DefaultSchedule = "@every 10m"

// Refresher is implemented by SpriteCollab.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Scheduler runs periodic refreshes.
type Scheduler struct {
	cron      *cron.Cron
	refresher Refresher
	ctx       context.Context
	cancel    context.CancelFunc
}

// refreshJob is the cron job triggering one refresh.
type refreshJob struct {
	s *Scheduler
}

func (j refreshJob) Run() {
	err := j.s.refresher.Refresh(j.s.ctx)
	switch {
	case err == nil:
	case errors.Is(err, ErrRefreshInProgress):
		logrus.Debug("scheduled refresh skipped, refresh already running")
	default:
		logrus.WithError(err).Error("error in scheduled refresh")
	}
}

// NewScheduler creates a Scheduler refreshing r on spec, a cron expression
// or a descriptor such as "@every 10m".
func NewScheduler(ctx context.Context, r Refresher, spec string) (*Scheduler, error) {
	if spec == "" {
		spec = DefaultSchedule
	}
	ctx, cancel := context.WithCancel(ctx)
	s := &Scheduler{
		cron:      cron.New(),
		refresher: r,
		ctx:       ctx,
		cancel:    cancel,
	}
	if _, err := s.cron.AddJob(spec, refreshJob{s: s}); err != nil {
		cancel()
		return nil, fmt.Errorf("invalid refresh schedule %q: %w", spec, err)
	}
	logrus.WithField("schedule", spec).Info("refresh scheduled")
	return s, nil
}

// Start begins running scheduled refreshes in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops scheduling, cancels a running refresh and waits for it to
// return.
func (s *Scheduler) Stop() {
	done := s.cron.Stop()
	s.cancel()
	<-done.Done()
}
