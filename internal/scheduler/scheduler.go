// Package scheduler hosts the auto-sync pass: accounts that opted in
// get their sync re-triggered on a cron schedule. Sync semantics stay
// in the orchestrator; this only decides when to call it.
package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/tdaniel1925/easemail-pro-sub002/internal/models"
)

type AccountLister interface {
	ListAutoSync(ctx context.Context) ([]models.EmailAccount, error)
}

type SyncTrigger interface {
	TriggerSync(ctx context.Context, accountID string) error
}

// Tracker is notified so the polling loop picks up freshly triggered
// accounts.
type Tracker interface {
	Track(accountID string, status models.SyncStatus)
}

type Scheduler struct {
	cron     *cron.Cron
	accounts AccountLister
	trigger  SyncTrigger
	tracker  Tracker
	logger   *zap.SugaredLogger
}

func New(schedule string, accounts AccountLister, trigger SyncTrigger, tracker Tracker, logger *zap.SugaredLogger) (*Scheduler, error) {
	s := &Scheduler{
		cron:     cron.New(),
		accounts: accounts,
		trigger:  trigger,
		tracker:  tracker,
		logger:   logger,
	}

	if _, err := s.cron.AddFunc(schedule, s.runOnce); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the schedule and waits for a running pass to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// runOnce triggers a sync for every eligible auto-sync account.
func (s *Scheduler) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	accounts, err := s.accounts.ListAutoSync(ctx)
	if err != nil {
		s.logger.Warnf("Auto-sync pass failed to list accounts: %v", err)
		return
	}
	if len(accounts) == 0 {
		return
	}

	s.logger.Infof("Auto-sync pass: %d account(s) eligible", len(accounts))

	for _, account := range accounts {
		if err := s.trigger.TriggerSync(ctx, account.ID); err != nil {
			// The orchestrator already moved the account to error state.
			s.logger.Warnf("Auto-sync trigger failed for account %s: %v", account.ID, err)
			continue
		}
		s.tracker.Track(account.ID, models.SyncStatusBackground)
	}
}
