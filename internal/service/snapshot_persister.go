package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/tdaniel1925/easemail-pro-sub002/internal/models"
)

// SnapshotPersister writes confirmed poll snapshots back to the
// accounts table so list reads reflect current state. It subscribes to
// the polling controller.
type SnapshotPersister struct {
	accounts AccountStore
	logger   *zap.SugaredLogger
}

func NewSnapshotPersister(accounts AccountStore, logger *zap.SugaredLogger) *SnapshotPersister {
	return &SnapshotPersister{accounts: accounts, logger: logger}
}

// Persist applies one published snapshot to the stored account. A write
// failure only logs; the next tick carries fresher data anyway.
func (p *SnapshotPersister) Persist(accountID string, snap models.SyncMetricsSnapshot) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	account, err := p.accounts.GetByID(ctx, accountID)
	if err != nil {
		p.logger.Warnf("Failed to load account %s for snapshot persist: %v", accountID, err)
		return
	}

	account.SyncStatus = snap.SyncStatus
	account.SyncProgress = snap.SyncProgress
	account.SyncedEmailCount = snap.SyncedEmailCount
	account.TotalEmailCount = snap.TotalEmailCount
	account.ContinuationCount = snap.ContinuationCount
	account.CurrentPage = snap.CurrentPage
	account.MaxPages = snap.MaxPages
	account.LastError = snap.LastError
	if !snap.SyncStatus.Active() && snap.SyncStatus != models.SyncStatusPaused {
		account.SyncStopped = false
	}

	if err := p.accounts.UpdateSyncState(ctx, account); err != nil {
		p.logger.Warnf("Failed to persist snapshot for account %s: %v", accountID, err)
	}
}
