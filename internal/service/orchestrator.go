package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tdaniel1925/easemail-pro-sub002/internal/models"
	"github.com/tdaniel1925/easemail-pro-sub002/internal/provider"
	"github.com/tdaniel1925/easemail-pro-sub002/internal/syncstate"
	"github.com/tdaniel1925/easemail-pro-sub002/pkg/metrics"
)

// ErrorCode identifies which orchestrator operation failed. Codes are
// part of the API contract with callers.
type ErrorCode string

const (
	CodeFolderSyncFailed       ErrorCode = "folder_sync_failed"
	CodeBackgroundSyncRejected ErrorCode = "background_sync_rejected"
	CodePauseFailed            ErrorCode = "pause_failed"
	CodeResumeFailed           ErrorCode = "resume_failed"
	CodeStopFailed             ErrorCode = "stop_failed"
)

// SyncError is returned for every provider-call failure, carrying the
// upstream message. Failures never cross this boundary as panics or
// untyped errors.
type SyncError struct {
	Code    ErrorCode
	Message string
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// AccountStore interface for dependency injection
type AccountStore interface {
	GetByID(ctx context.Context, accountID string) (*models.EmailAccount, error)
	UpdateSyncState(ctx context.Context, account *models.EmailAccount) error
	UpdateTokens(ctx context.Context, accountID string, accessToken string, refreshToken string, accessTokenExpiresAt time.Time) error
}

// EventRecorder appends transition events to the audit trail.
type EventRecorder interface {
	Record(ctx context.Context, event models.SyncEvent) error
}

// SyncProvider is the slice of the provider client the orchestrator uses.
type SyncProvider interface {
	SyncFolders(ctx context.Context, accountID string) error
	StartBackgroundSync(ctx context.Context, accountID string) error
	PauseSync(ctx context.Context, accountID string) error
	ResumeSync(ctx context.Context, accountID string) error
	StopSync(ctx context.Context, accountID string) error
	GetSyncStatus(ctx context.Context, accountID string) (*provider.StatusMetrics, error)
	RefreshAccessToken(ctx context.Context, refreshToken string) (*provider.TokenRefreshResult, error)
}

// SyncOrchestrator sequences the multi-step sync trigger and the
// pause/resume/stop transitions against the external provider.
type SyncOrchestrator struct {
	accounts AccountStore
	events   EventRecorder
	provider SyncProvider
	logger   *zap.SugaredLogger
}

func NewSyncOrchestrator(accounts AccountStore, events EventRecorder, syncProvider SyncProvider, logger *zap.SugaredLogger) *SyncOrchestrator {
	return &SyncOrchestrator{
		accounts: accounts,
		events:   events,
		provider: syncProvider,
		logger:   logger,
	}
}

// TriggerSync starts a fresh sync for the account: folder sync first,
// then the background message sync, strictly in that order. On
// acceptance of the background request the account moves to
// background_syncing optimistically; the next poll tick reconciles with
// provider ground truth.
func (o *SyncOrchestrator) TriggerSync(ctx context.Context, accountID string) error {
	account, err := o.accounts.GetByID(ctx, accountID)
	if err != nil {
		return fmt.Errorf("failed to get account: %w", err)
	}

	ev := syncstate.EventTrigger
	if account.SyncStatus == models.SyncStatusError {
		ev = syncstate.EventRetry
	}

	if err := o.transition(ctx, account, ev, nil); err != nil {
		return err
	}

	return o.runSyncSequence(ctx, account)
}

// runSyncSequence performs the ordered folder sync -> background sync
// steps for an account already in the syncing state.
func (o *SyncOrchestrator) runSyncSequence(ctx context.Context, account *models.EmailAccount) error {
	if err := o.ensureFreshToken(ctx, account); err != nil {
		return o.failSync(ctx, account, CodeFolderSyncFailed, err)
	}

	o.logger.Infof("Requesting folder sync for account %s", account.ID)
	if err := o.provider.SyncFolders(ctx, account.ID); err != nil {
		return o.failSync(ctx, account, CodeFolderSyncFailed, err)
	}

	o.logger.Infof("Requesting background sync for account %s", account.ID)
	if err := o.provider.StartBackgroundSync(ctx, account.ID); err != nil {
		return o.failSync(ctx, account, CodeBackgroundSyncRejected, err)
	}

	if err := o.transition(ctx, account, syncstate.EventBackgroundStart, nil); err != nil {
		return err
	}

	o.logger.Infof("Background sync accepted for account %s", account.ID)
	return nil
}

// PauseSync pauses a running sync. On provider failure the local state
// is left untouched and the failure is surfaced to the caller.
func (o *SyncOrchestrator) PauseSync(ctx context.Context, accountID string) error {
	account, err := o.accounts.GetByID(ctx, accountID)
	if err != nil {
		return fmt.Errorf("failed to get account: %w", err)
	}

	if err := o.provider.PauseSync(ctx, accountID); err != nil {
		return &SyncError{Code: CodePauseFailed, Message: err.Error()}
	}

	if err := o.transition(ctx, account, syncstate.EventPause, nil); err != nil {
		return err
	}

	o.logger.Infof("Sync paused for account %s", accountID)
	return nil
}

// ResumeSync resumes a paused sync by clearing the stop flag and
// re-invoking the trigger sequence.
func (o *SyncOrchestrator) ResumeSync(ctx context.Context, accountID string) error {
	account, err := o.accounts.GetByID(ctx, accountID)
	if err != nil {
		return fmt.Errorf("failed to get account: %w", err)
	}

	if err := o.provider.ResumeSync(ctx, accountID); err != nil {
		return &SyncError{Code: CodeResumeFailed, Message: err.Error()}
	}

	if err := o.transition(ctx, account, syncstate.EventResume, nil); err != nil {
		return err
	}

	o.logger.Infof("Sync resumed for account %s", accountID)
	return o.runSyncSequence(ctx, account)
}

// StopSync stops a sync entirely, discarding the progress context.
// Stop's effect on the counters is provider-authoritative, so after the
// transition the account's counters are refreshed from the provider
// instead of being updated optimistically.
func (o *SyncOrchestrator) StopSync(ctx context.Context, accountID string) error {
	account, err := o.accounts.GetByID(ctx, accountID)
	if err != nil {
		return fmt.Errorf("failed to get account: %w", err)
	}

	if err := o.provider.StopSync(ctx, accountID); err != nil {
		return &SyncError{Code: CodeStopFailed, Message: err.Error()}
	}

	if err := o.transition(ctx, account, syncstate.EventStop, nil); err != nil {
		return err
	}

	if err := o.refreshCounters(ctx, account); err != nil {
		// Counters converge on the next poll or list; the stop itself succeeded.
		o.logger.Warnf("Failed to refresh counters after stop for account %s: %v", accountID, err)
	}

	o.logger.Infof("Sync stopped for account %s", accountID)
	return nil
}

// failSync records a provider failure: the account moves to error with
// the upstream message, and the caller gets the typed code.
func (o *SyncOrchestrator) failSync(ctx context.Context, account *models.EmailAccount, code ErrorCode, cause error) error {
	msg := cause.Error()
	if err := o.transition(ctx, account, syncstate.EventFail, &msg); err != nil {
		o.logger.Warnf("Failed to record error state for account %s: %v", account.ID, err)
	}
	return &SyncError{Code: code, Message: msg}
}

// transition applies the event, persists the result, and records the
// audit event. The audit write is best-effort.
func (o *SyncOrchestrator) transition(ctx context.Context, account *models.EmailAccount, ev syncstate.Event, errMsg *string) error {
	from := account.SyncStatus

	if err := syncstate.Apply(account, ev, errMsg); err != nil {
		return err
	}

	if err := o.accounts.UpdateSyncState(ctx, account); err != nil {
		return fmt.Errorf("failed to persist sync state: %w", err)
	}

	metrics.IncrementSyncTransition(string(from), string(account.SyncStatus))

	event := models.SyncEvent{
		ID:         uuid.New().String(),
		AccountID:  account.ID,
		FromStatus: from,
		ToStatus:   account.SyncStatus,
		Detail:     errMsg,
		CreatedAt:  time.Now(),
	}
	if err := o.events.Record(ctx, event); err != nil {
		o.logger.Warnf("Failed to record sync event for account %s: %v", account.ID, err)
	}

	return nil
}

// ensureFreshToken refreshes the account's grant token when it is
// expired or about to expire.
func (o *SyncOrchestrator) ensureFreshToken(ctx context.Context, account *models.EmailAccount) error {
	if account.RefreshToken == nil {
		return nil // API-key grant, nothing to refresh
	}
	if !isTokenExpired(account.AccessTokenExpiresAt) {
		return nil
	}

	o.logger.Infof("Access token expired for account %s, refreshing...", account.ID)
	result, err := o.provider.RefreshAccessToken(ctx, *account.RefreshToken)
	if err != nil {
		return fmt.Errorf("failed to refresh token: %w", err)
	}

	if err := o.accounts.UpdateTokens(ctx, account.ID, result.AccessToken, result.RefreshToken, result.ExpiresAt); err != nil {
		return fmt.Errorf("failed to update tokens in database: %w", err)
	}

	account.AccessToken = &result.AccessToken
	account.RefreshToken = &result.RefreshToken
	account.AccessTokenExpiresAt = &result.ExpiresAt
	return nil
}

// refreshCounters pulls the authoritative counters from the provider
// and persists them.
func (o *SyncOrchestrator) refreshCounters(ctx context.Context, account *models.EmailAccount) error {
	status, err := o.provider.GetSyncStatus(ctx, account.ID)
	if err != nil {
		return err
	}

	account.SyncProgress = status.SyncProgress
	account.SyncedEmailCount = status.SyncedEmailCount
	account.TotalEmailCount = status.TotalEmailCount
	account.ContinuationCount = status.ContinuationCount
	account.CurrentPage = status.CurrentPage
	account.MaxPages = status.MaxPages

	return o.accounts.UpdateSyncState(ctx, account)
}

// isTokenExpired checks if the access token is expired or will expire
// within 5 minutes
func isTokenExpired(expiresAt *time.Time) bool {
	if expiresAt == nil {
		return true
	}
	return time.Now().Add(5 * time.Minute).After(*expiresAt)
}
