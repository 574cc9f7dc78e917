// Package collab keeps the published SpriteCollab snapshot up to date.
//
// A SpriteCollab owns the current snapshot and refreshes it from a
// source.Repository. At most one refresh runs at a time; concurrent calls
// return ErrRefreshInProgress without waiting. A failed refresh leaves the
// published snapshot untouched. When a refresh publishes data that differs
// from the previous snapshot the cache store is flushed and the pre-warm
// hooks run against the new snapshot.
package collab

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sardine-ai/spritecollab-server/cache"
	"github.com/sardine-ai/spritecollab-server/datafiles"
	"github.com/sardine-ai/spritecollab-server/model"
	"github.com/sardine-ai/spritecollab-server/source"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// ErrRefreshInProgress is returned by Refresh when another refresh is
// already running.
var ErrRefreshInProgress = errors.New("refresh already in progress")

var (
	refreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "spritecollab_refreshes_total",
		Help: "Refresh attempts by result (ok, failed, coalesced).",
	}, []string{"result"})

	refreshDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "spritecollab_refresh_duration_seconds",
		Help:    "Duration of refreshes that performed I/O.",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
	})

	snapshotChanges = promauto.NewCounter(prometheus.CounterOpts{
		Name: "spritecollab_snapshot_changes_total",
		Help: "Published snapshots that differed from their predecessor.",
	})

	lastSuccess = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "spritecollab_last_successful_refresh_timestamp_seconds",
		Help: "Unix time of the last successful refresh.",
	})
)

// State is the refresh state of a SpriteCollab.
type State int

const (
	Ready State = iota
	Refreshing
)

func (s State) String() string {
	if s == Refreshing {
		return "refreshing"
	}
	return "ready"
}

// PreWarmer primes caches after a data change.
type PreWarmer interface {
	PreWarm(ctx context.Context, snapshot *model.Snapshot) error
}

// PreWarmFunc adapts a function to PreWarmer.
type PreWarmFunc func(ctx context.Context, snapshot *model.Snapshot) error

func (f PreWarmFunc) PreWarm(ctx context.Context, snapshot *model.Snapshot) error {
	return f(ctx, snapshot)
}

// Status describes the outcome of the most recent refreshes.
type Status struct {
	State       string    `json:"state" yaml:"state"`
	LastRefresh time.Time `json:"last_refresh" yaml:"last_refresh"`
	LastSuccess time.Time `json:"last_success" yaml:"last_success"`
	LastError   string    `json:"last_error,omitempty" yaml:"last_error,omitempty"`
}

// SpriteCollab holds the published snapshot and refreshes it.
type SpriteCollab struct {
	repo       source.Repository
	reporter   datafiles.Reporter
	store      cache.Store
	prewarmers []PreWarmer

	stateMu sync.Mutex
	state   State
	status  Status

	dataMu  sync.RWMutex
	current *model.Snapshot
}

// New flushes store and performs the initial refresh. The returned
// SpriteCollab always holds a snapshot; if the initial refresh fails New
// returns the error instead.
func New(ctx context.Context, repo source.Repository, reporter datafiles.Reporter, store cache.Store, prewarmers ...PreWarmer) (*SpriteCollab, error) {
	c := &SpriteCollab{
		repo:       repo,
		reporter:   reporter,
		store:      store,
		prewarmers: prewarmers,
	}
	if err := store.FlushAll(ctx); err != nil {
		logrus.WithError(err).Warn("error flushing cache store")
	}
	if err := c.Refresh(ctx); err != nil {
		return nil, fmt.Errorf("initial refresh: %w", err)
	}
	return c, nil
}

// Data returns the published snapshot. The snapshot must not be modified.
func (c *SpriteCollab) Data() *model.Snapshot {
	c.dataMu.RLock()
	defer c.dataMu.RUnlock()
	return c.current
}

// State returns the current refresh state.
func (c *SpriteCollab) State() State {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.state
}

// Status returns the current refresh status.
func (c *SpriteCollab) Status() Status {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	status := c.status
	status.State = c.state.String()
	return status
}

// Refresh brings the working copy up to date, reads and validates the data
// files and publishes them. It returns ErrRefreshInProgress without doing
// anything if another refresh is running.
func (c *SpriteCollab) Refresh(ctx context.Context) error {
	if !c.begin() {
		refreshes.WithLabelValues("coalesced").Inc()
		logrus.Debug("refresh already in progress, skipping")
		return ErrRefreshInProgress
	}
	started := time.Now()
	var err error
	defer func() { c.end(started, err) }()

	log := logrus.WithField("component", "collab")
	log.Debug("refreshing data")

	var snapshot *model.Snapshot
	snapshot, err = c.load(ctx)
	if err != nil {
		refreshes.WithLabelValues("failed").Inc()
		log.WithError(err).Error("error refreshing data, keeping previous data")
		return err
	}
	refreshDuration.Observe(time.Since(started).Seconds())

	if previous := c.publish(snapshot); !previous.Equal(snapshot) {
		snapshotChanges.Inc()
		log.Info("data changed, invalidating cache")
		c.invalidate(ctx, snapshot, previous != nil)
	}

	refreshes.WithLabelValues("ok").Inc()
	lastSuccess.SetToCurrentTime()
	c.reporter.Report(ctx, datafiles.OKReport())
	log.Debug("refresh done")
	return nil
}

func (c *SpriteCollab) begin() bool {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	if c.state == Refreshing {
		return false
	}
	c.state = Refreshing
	return true
}

func (c *SpriteCollab) end(started time.Time, err error) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	c.state = Ready
	c.status.LastRefresh = started
	if err != nil {
		c.status.LastError = err.Error()
		return
	}
	c.status.LastSuccess = started
	c.status.LastError = ""
}

func (c *SpriteCollab) load(ctx context.Context) (*model.Snapshot, error) {
	if err := c.repo.EnsureFresh(ctx); err != nil {
		c.reporter.Report(ctx, datafiles.NewFileReport(c.repo.GetPath(), err))
		return nil, fmt.Errorf("updating %s: %w", c.repo.GetName(), err)
	}
	root := c.repo.GetPath()

	spriteConfig, err := datafiles.ReadAndReport(ctx, filepath.Join(root, datafiles.SpriteConfigFile), datafiles.ReadSpriteConfig, c.reporter)
	if err != nil {
		return nil, err
	}
	tracker, err := datafiles.ReadAndReport(ctx, filepath.Join(root, datafiles.TrackerFile), datafiles.ReadTracker, c.reporter)
	if err != nil {
		return nil, err
	}
	creditNames, err := datafiles.ReadAndReport(ctx, filepath.Join(root, datafiles.CreditNamesFile), datafiles.ReadCreditNames, c.reporter)
	if err != nil {
		return nil, err
	}

	if err := datafiles.NewValidator(root).Validate(ctx, tracker, c.reporter); err != nil {
		return nil, err
	}
	return model.NewSnapshot(spriteConfig, tracker, creditNames), nil
}

// publish replaces the current snapshot and returns the one it replaced.
func (c *SpriteCollab) publish(snapshot *model.Snapshot) *model.Snapshot {
	c.dataMu.Lock()
	defer c.dataMu.Unlock()
	previous := c.current
	c.current = snapshot
	return previous
}

// invalidate flushes the store and runs the pre-warm hooks. The store was
// already flushed by New when snapshot is the first one published.
func (c *SpriteCollab) invalidate(ctx context.Context, snapshot *model.Snapshot, flush bool) {
	if flush {
		if err := c.store.FlushAll(ctx); err != nil {
			logrus.WithError(err).Warn("error flushing cache store")
		}
	}
	if len(c.prewarmers) == 0 {
		return
	}
	var g errgroup.Group
	for _, p := range c.prewarmers {
		p := p
		g.Go(func() error {
			return p.PreWarm(ctx, snapshot)
		})
	}
	if err := g.Wait(); err != nil {
		logrus.WithError(err).Warn("error pre-warming cache")
	}
}
