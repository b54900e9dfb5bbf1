package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/tdaniel1925/easemail-pro-sub002/internal/models"
	"github.com/tdaniel1925/easemail-pro-sub002/internal/provider"
)

type mockAccountStore struct {
	account *models.EmailAccount
	saved   []models.EmailAccount
}

func (m *mockAccountStore) GetByID(ctx context.Context, accountID string) (*models.EmailAccount, error) {
	if m.account == nil {
		return nil, errors.New("account not found")
	}
	out := *m.account
	return &out, nil
}

func (m *mockAccountStore) UpdateSyncState(ctx context.Context, account *models.EmailAccount) error {
	m.saved = append(m.saved, *account)
	return nil
}

func (m *mockAccountStore) UpdateTokens(ctx context.Context, accountID string, accessToken string, refreshToken string, accessTokenExpiresAt time.Time) error {
	return nil
}

func (m *mockAccountStore) lastSaved(t *testing.T) models.EmailAccount {
	t.Helper()
	if len(m.saved) == 0 {
		t.Fatal("expected at least one persisted sync state")
	}
	return m.saved[len(m.saved)-1]
}

type mockEventRecorder struct {
	events []models.SyncEvent
}

func (m *mockEventRecorder) Record(ctx context.Context, event models.SyncEvent) error {
	m.events = append(m.events, event)
	return nil
}

type mockProvider struct {
	folderSyncErr     error
	backgroundErr     error
	pauseErr          error
	resumeErr         error
	stopErr           error
	statusMetrics     *provider.StatusMetrics
	statusErr         error
	folderCalls       int
	backgroundCalls   int
	pauseCalls        int
	resumeCalls       int
	stopCalls         int
	statusCalls       int
	callOrder         []string
	refreshTokenCalls int
}

func (m *mockProvider) SyncFolders(ctx context.Context, accountID string) error {
	m.folderCalls++
	m.callOrder = append(m.callOrder, "folders")
	return m.folderSyncErr
}

func (m *mockProvider) StartBackgroundSync(ctx context.Context, accountID string) error {
	m.backgroundCalls++
	m.callOrder = append(m.callOrder, "background")
	return m.backgroundErr
}

func (m *mockProvider) PauseSync(ctx context.Context, accountID string) error {
	m.pauseCalls++
	return m.pauseErr
}

func (m *mockProvider) ResumeSync(ctx context.Context, accountID string) error {
	m.resumeCalls++
	return m.resumeErr
}

func (m *mockProvider) StopSync(ctx context.Context, accountID string) error {
	m.stopCalls++
	return m.stopErr
}

func (m *mockProvider) GetSyncStatus(ctx context.Context, accountID string) (*provider.StatusMetrics, error) {
	m.statusCalls++
	return m.statusMetrics, m.statusErr
}

func (m *mockProvider) RefreshAccessToken(ctx context.Context, refreshToken string) (*provider.TokenRefreshResult, error) {
	m.refreshTokenCalls++
	return &provider.TokenRefreshResult{
		AccessToken:  "fresh-token",
		RefreshToken: refreshToken,
		ExpiresAt:    time.Now().Add(time.Hour),
	}, nil
}

func newTestOrchestrator(store *mockAccountStore, p *mockProvider) (*SyncOrchestrator, *mockEventRecorder) {
	events := &mockEventRecorder{}
	return NewSyncOrchestrator(store, events, p, zap.NewNop().Sugar()), events
}

func idleAccount() *models.EmailAccount {
	return &models.EmailAccount{
		ID:         "acc-1",
		SyncStatus: models.SyncStatusIdle,
	}
}

func TestTriggerSync_Success(t *testing.T) {
	store := &mockAccountStore{account: idleAccount()}
	p := &mockProvider{}
	orch, events := newTestOrchestrator(store, p)

	if err := orch.TriggerSync(context.Background(), "acc-1"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if p.folderCalls != 1 || p.backgroundCalls != 1 {
		t.Errorf("expected 1 folder and 1 background call, got %d and %d", p.folderCalls, p.backgroundCalls)
	}
	if len(p.callOrder) != 2 || p.callOrder[0] != "folders" || p.callOrder[1] != "background" {
		t.Errorf("expected folder sync strictly before background sync, got %v", p.callOrder)
	}

	final := store.lastSaved(t)
	if final.SyncStatus != models.SyncStatusBackground {
		t.Errorf("expected background_syncing, got %q", final.SyncStatus)
	}
	if final.SyncProgress != 0 {
		t.Errorf("expected progress reset to 0, got %d", final.SyncProgress)
	}
	if len(events.events) == 0 {
		t.Error("expected transition events to be recorded")
	}
}

func TestTriggerSync_FolderSyncFailure_NeverIssuesBackgroundSync(t *testing.T) {
	store := &mockAccountStore{account: idleAccount()}
	p := &mockProvider{folderSyncErr: errors.New("403 Forbidden")}
	orch, _ := newTestOrchestrator(store, p)

	err := orch.TriggerSync(context.Background(), "acc-1")
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var syncErr *SyncError
	if !errors.As(err, &syncErr) {
		t.Fatalf("expected *SyncError, got %T", err)
	}
	if syncErr.Code != CodeFolderSyncFailed {
		t.Errorf("expected code %q, got %q", CodeFolderSyncFailed, syncErr.Code)
	}

	if p.backgroundCalls != 0 {
		t.Errorf("expected zero background sync calls, got %d", p.backgroundCalls)
	}

	final := store.lastSaved(t)
	if final.SyncStatus != models.SyncStatusError {
		t.Errorf("expected error status, got %q", final.SyncStatus)
	}
	if final.LastError == nil || *final.LastError != "403 Forbidden" {
		t.Errorf("expected lastError %q, got %v", "403 Forbidden", final.LastError)
	}
}

func TestTriggerSync_BackgroundRejection(t *testing.T) {
	store := &mockAccountStore{account: idleAccount()}
	p := &mockProvider{backgroundErr: errors.New("sync queue full")}
	orch, _ := newTestOrchestrator(store, p)

	err := orch.TriggerSync(context.Background(), "acc-1")
	var syncErr *SyncError
	if !errors.As(err, &syncErr) {
		t.Fatalf("expected *SyncError, got %v", err)
	}
	if syncErr.Code != CodeBackgroundSyncRejected {
		t.Errorf("expected code %q, got %q", CodeBackgroundSyncRejected, syncErr.Code)
	}

	final := store.lastSaved(t)
	if final.SyncStatus != models.SyncStatusError {
		t.Errorf("expected error status, got %q", final.SyncStatus)
	}
}

func TestTriggerSync_RetryFromErrorClearsLastError(t *testing.T) {
	msg := "quota exceeded"
	account := idleAccount()
	account.SyncStatus = models.SyncStatusError
	account.LastError = &msg

	store := &mockAccountStore{account: account}
	p := &mockProvider{}
	orch, _ := newTestOrchestrator(store, p)

	if err := orch.TriggerSync(context.Background(), "acc-1"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	final := store.lastSaved(t)
	if final.SyncStatus != models.SyncStatusBackground {
		t.Errorf("expected background_syncing, got %q", final.SyncStatus)
	}
	if final.LastError != nil {
		t.Errorf("expected lastError cleared, got %q", *final.LastError)
	}
}

func TestTriggerSync_RefreshesExpiredToken(t *testing.T) {
	refresh := "refresh-token"
	expired := time.Now().Add(-time.Hour)
	account := idleAccount()
	account.RefreshToken = &refresh
	account.AccessTokenExpiresAt = &expired

	store := &mockAccountStore{account: account}
	p := &mockProvider{}
	orch, _ := newTestOrchestrator(store, p)

	if err := orch.TriggerSync(context.Background(), "acc-1"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if p.refreshTokenCalls != 1 {
		t.Errorf("expected 1 token refresh, got %d", p.refreshTokenCalls)
	}
}

func TestPauseSync_ProviderFailureLeavesStateUnchanged(t *testing.T) {
	account := idleAccount()
	account.SyncStatus = models.SyncStatusBackground

	store := &mockAccountStore{account: account}
	p := &mockProvider{pauseErr: errors.New("provider unavailable")}
	orch, _ := newTestOrchestrator(store, p)

	err := orch.PauseSync(context.Background(), "acc-1")
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var syncErr *SyncError
	if !errors.As(err, &syncErr) {
		t.Fatalf("expected *SyncError, got %T", err)
	}
	if syncErr.Code != CodePauseFailed {
		t.Errorf("expected code %q, got %q", CodePauseFailed, syncErr.Code)
	}
	if syncErr.Message != "provider unavailable" {
		t.Errorf("expected upstream message, got %q", syncErr.Message)
	}

	if len(store.saved) != 0 {
		t.Errorf("expected no state mutation on pause failure, got %d writes", len(store.saved))
	}
}

func TestPauseSync_Success(t *testing.T) {
	account := idleAccount()
	account.SyncStatus = models.SyncStatusSyncing

	store := &mockAccountStore{account: account}
	p := &mockProvider{}
	orch, _ := newTestOrchestrator(store, p)

	if err := orch.PauseSync(context.Background(), "acc-1"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	final := store.lastSaved(t)
	if final.SyncStatus != models.SyncStatusPaused {
		t.Errorf("expected paused, got %q", final.SyncStatus)
	}
	if !final.SyncStopped {
		t.Error("expected syncStopped=true")
	}
}

func TestResumeSync_ReinvokesTriggerSequence(t *testing.T) {
	account := idleAccount()
	account.SyncStatus = models.SyncStatusPaused
	account.SyncStopped = true

	store := &mockAccountStore{account: account}
	p := &mockProvider{}
	orch, _ := newTestOrchestrator(store, p)

	if err := orch.ResumeSync(context.Background(), "acc-1"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if p.resumeCalls != 1 {
		t.Errorf("expected 1 resume call, got %d", p.resumeCalls)
	}
	if p.folderCalls != 1 || p.backgroundCalls != 1 {
		t.Errorf("expected trigger sequence to re-run, got folders=%d background=%d", p.folderCalls, p.backgroundCalls)
	}

	final := store.lastSaved(t)
	if final.SyncStatus != models.SyncStatusBackground {
		t.Errorf("expected background_syncing, got %q", final.SyncStatus)
	}
	if final.SyncStopped {
		t.Error("expected syncStopped=false after resume")
	}
}

func TestResumeSync_ProviderFailureLeavesStateUnchanged(t *testing.T) {
	account := idleAccount()
	account.SyncStatus = models.SyncStatusPaused
	account.SyncStopped = true

	store := &mockAccountStore{account: account}
	p := &mockProvider{resumeErr: errors.New("grant revoked")}
	orch, _ := newTestOrchestrator(store, p)

	err := orch.ResumeSync(context.Background(), "acc-1")
	var syncErr *SyncError
	if !errors.As(err, &syncErr) {
		t.Fatalf("expected *SyncError, got %v", err)
	}
	if syncErr.Code != CodeResumeFailed {
		t.Errorf("expected code %q, got %q", CodeResumeFailed, syncErr.Code)
	}
	if len(store.saved) != 0 {
		t.Errorf("expected no state mutation, got %d writes", len(store.saved))
	}
}

func TestStopSync_RefreshesCountersFromProvider(t *testing.T) {
	account := idleAccount()
	account.SyncStatus = models.SyncStatusBackground
	account.SyncProgress = 60

	store := &mockAccountStore{account: account}
	p := &mockProvider{
		statusMetrics: &provider.StatusMetrics{
			SyncProgress:     34,
			SyncedEmailCount: 340,
			TotalEmailCount:  1000,
		},
	}
	orch, _ := newTestOrchestrator(store, p)

	if err := orch.StopSync(context.Background(), "acc-1"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if p.stopCalls != 1 {
		t.Errorf("expected 1 stop call, got %d", p.stopCalls)
	}
	if p.statusCalls != 1 {
		t.Errorf("expected counters refreshed via status fetch, got %d calls", p.statusCalls)
	}

	final := store.lastSaved(t)
	if final.SyncStatus != models.SyncStatusIdle {
		t.Errorf("expected idle after stop, got %q", final.SyncStatus)
	}
	if final.SyncedEmailCount != 340 || final.SyncProgress != 34 {
		t.Errorf("expected provider-authoritative counters, got progress=%d synced=%d", final.SyncProgress, final.SyncedEmailCount)
	}
}

func TestStopSync_ProviderFailureLeavesStateUnchanged(t *testing.T) {
	account := idleAccount()
	account.SyncStatus = models.SyncStatusSyncing

	store := &mockAccountStore{account: account}
	p := &mockProvider{stopErr: errors.New("stop not supported mid-continuation")}
	orch, _ := newTestOrchestrator(store, p)

	err := orch.StopSync(context.Background(), "acc-1")
	var syncErr *SyncError
	if !errors.As(err, &syncErr) {
		t.Fatalf("expected *SyncError, got %v", err)
	}
	if syncErr.Code != CodeStopFailed {
		t.Errorf("expected code %q, got %q", CodeStopFailed, syncErr.Code)
	}
	if len(store.saved) != 0 {
		t.Errorf("expected no state mutation, got %d writes", len(store.saved))
	}
}
