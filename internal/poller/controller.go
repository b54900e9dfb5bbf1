// Package poller owns the adaptive status-polling loop: while any
// tracked account has a sync in flight, a single shared timer fires a
// fetch round, feeds the results through the state model and the
// metrics aggregator, and publishes fresh snapshots to subscribers.
package poller

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tdaniel1925/easemail-pro-sub002/internal/models"
	"github.com/tdaniel1925/easemail-pro-sub002/internal/provider"
	"github.com/tdaniel1925/easemail-pro-sub002/internal/syncmetrics"
	"github.com/tdaniel1925/easemail-pro-sub002/pkg/metrics"
)

// DefaultInterval is the tick period while any account is actively syncing.
const DefaultInterval = 2 * time.Second

// StatusFetcher is the slice of the provider client the controller uses.
// The controller decides when and how often to fetch, not how.
type StatusFetcher interface {
	GetSyncStatus(ctx context.Context, accountID string) (*provider.StatusMetrics, error)
}

// SnapshotFunc receives every published snapshot.
type SnapshotFunc func(accountID string, snap models.SyncMetricsSnapshot)

type trackedAccount struct {
	status         models.SyncStatus
	lastSample     *syncmetrics.Sample
	lastSampleAt   time.Time
	lastAppliedSeq uint64
	snapshot       *models.SyncMetricsSnapshot
}

// Controller is one polling loop instance. Construct one per serving
// context; there are no package-level singletons.
type Controller struct {
	interval     time.Duration
	fetchTimeout time.Duration
	fetcher      StatusFetcher
	logger       *zap.SugaredLogger

	mu         sync.Mutex
	tracked    map[string]*trackedAccount
	subs       []SnapshotFunc
	running    bool
	generation uint64
	stopCh     chan struct{}
	nextSeq    uint64
}

func New(fetcher StatusFetcher, interval time.Duration, logger *zap.SugaredLogger) *Controller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Controller{
		interval:     interval,
		fetchTimeout: provider.StatusFetchTimeout,
		fetcher:      fetcher,
		logger:       logger,
		tracked:      make(map[string]*trackedAccount),
	}
}

// OnSnapshot registers a subscriber for published snapshots.
func (c *Controller) OnSnapshot(fn SnapshotFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs = append(c.subs, fn)
}

// Track adds an account to the observed set, or updates its status
// after a caller-driven transition. The loop starts automatically when
// a tracked account enters an active state.
func (c *Controller) Track(accountID string, status models.SyncStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ta := c.tracked[accountID]
	if ta == nil {
		ta = &trackedAccount{}
		c.tracked[accountID] = ta
	}
	ta.status = status
	if status.Active() {
		// Rate samples from before the transition would produce a bogus
		// delta against the reset counters.
		ta.lastSample = nil
	} else {
		// The transition is authoritative; a retained poll snapshot would
		// keep reporting the pre-transition status to readers.
		ta.snapshot = nil
	}

	c.startLocked()
}

// Untrack removes an account from the observed set.
func (c *Controller) Untrack(accountID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tracked, accountID)
}

// Start begins the polling loop if any tracked account is actively
// syncing. Calling Start while running is a no-op.
func (c *Controller) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.startLocked()
}

func (c *Controller) startLocked() {
	if c.running || c.activeCountLocked() == 0 {
		return
	}
	c.running = true
	c.stopCh = make(chan struct{})
	go c.run(c.generation, c.stopCh)
}

// Stop halts the loop. Responses from fetches issued before Stop can no
// longer mutate published state. Calling Stop while stopped is a no-op.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
}

func (c *Controller) stopLocked() {
	if !c.running {
		return
	}
	c.running = false
	c.generation++
	close(c.stopCh)
}

// Running reports whether the polling loop is active.
func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Snapshot returns the latest published snapshot for an account.
func (c *Controller) Snapshot(accountID string) (models.SyncMetricsSnapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ta := c.tracked[accountID]
	if ta == nil || ta.snapshot == nil {
		return models.SyncMetricsSnapshot{}, false
	}
	return *ta.snapshot, true
}

// ActiveCount returns how many tracked accounts are actively syncing.
func (c *Controller) ActiveCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeCountLocked()
}

func (c *Controller) activeCountLocked() int {
	n := 0
	for _, ta := range c.tracked {
		if ta.status.Active() {
			n++
		}
	}
	return n
}

// run is the loop goroutine. Rounds execute synchronously on this
// goroutine, so two rounds never overlap; if a round outlasts the
// interval, the ticker retains at most one pending tick and drops the
// rest, which queues one delayed round instead of issuing concurrent
// ones.
func (c *Controller) run(gen uint64, stopCh chan struct{}) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			c.pollRound(gen)
			metrics.PollRoundsTotal.Inc()

			if c.ActiveCount() == 0 {
				c.logger.Infof("No accounts actively syncing, polling stopped")
				c.Stop()
				return
			}
		}
	}
}

// pollRound fetches status for every actively syncing account and
// applies the results. Fetch failures are transient: logged, skipped,
// retried on the next tick, never surfaced as an account error.
func (c *Controller) pollRound(gen uint64) {
	c.mu.Lock()
	ids := make([]string, 0, len(c.tracked))
	for id, ta := range c.tracked {
		if ta.status.Active() {
			ids = append(ids, id)
		}
	}
	c.mu.Unlock()

	for _, id := range ids {
		seq := c.claimSeq()

		ctx, cancel := context.WithTimeout(context.Background(), c.fetchTimeout)
		status, err := c.fetcher.GetSyncStatus(ctx, id)
		cancel()
		if err != nil {
			metrics.PollFetchFailures.Inc()
			c.logger.Warnf("Status fetch failed for account %s (will retry next tick): %v", id, err)
			continue
		}

		c.apply(gen, seq, id, status)
	}
}

// claimSeq assigns a per-fetch sequence number at fetch start, so that
// a slower, older response can be recognized and dropped.
func (c *Controller) claimSeq() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextSeq++
	return c.nextSeq
}

// apply folds one fetched status into published state. It rejects
// results from a stopped generation and results older than what has
// already been applied for the account.
func (c *Controller) apply(gen uint64, seq uint64, accountID string, status *provider.StatusMetrics) {
	c.mu.Lock()

	if gen != c.generation {
		c.mu.Unlock()
		metrics.PollStaleDropped.Inc()
		return
	}
	ta := c.tracked[accountID]
	if ta == nil {
		c.mu.Unlock()
		return
	}
	if seq <= ta.lastAppliedSeq {
		c.mu.Unlock()
		metrics.PollStaleDropped.Inc()
		return
	}
	ta.lastAppliedSeq = seq

	newStatus := ta.status
	if reported := models.SyncStatus(status.SyncStatus); reported.Valid() {
		// A confirmed poll result overrides any optimistic local status.
		newStatus = reported
	}
	if status.LastError != nil && *status.LastError != "" {
		newStatus = models.SyncStatusError
	} else if newStatus.Active() && syncFinished(status) {
		newStatus = models.SyncStatusCompleted
	}

	now := time.Now()
	sample := syncmetrics.Sample{
		SyncedEmailCount: status.SyncedEmailCount,
		TotalEmailCount:  status.TotalEmailCount,
	}
	derived := syncmetrics.Compute(ta.lastSample, sample, now.Sub(ta.lastSampleAt))

	snap := models.SyncMetricsSnapshot{
		Kind:                   models.SnapshotConfirmed,
		SyncStatus:             newStatus,
		SyncProgress:           clampProgress(status.SyncProgress),
		SyncedEmailCount:       status.SyncedEmailCount,
		TotalEmailCount:        status.TotalEmailCount,
		EmailsPerMinute:        derived.EmailsPerMinute,
		EstimatedTimeRemaining: derived.EstimatedTimeRemaining,
		ContinuationCount:      status.ContinuationCount,
		CurrentPage:            status.CurrentPage,
		MaxPages:               status.MaxPages,
		LastError:              status.LastError,
	}

	ta.status = newStatus
	ta.lastSample = &sample
	ta.lastSampleAt = now
	ta.snapshot = &snap

	subs := make([]SnapshotFunc, len(c.subs))
	copy(subs, c.subs)
	c.mu.Unlock()

	for _, fn := range subs {
		fn(accountID, snap)
	}
}

// syncFinished reports whether the provider counters indicate the sync
// has nothing left to do.
func syncFinished(status *provider.StatusMetrics) bool {
	if status.SyncProgress >= 100 {
		return true
	}
	return status.MaxPages > 0 && status.CurrentPage >= status.MaxPages
}

func clampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
