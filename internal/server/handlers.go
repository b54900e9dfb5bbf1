package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tdaniel1925/easemail-pro-sub002/internal/models"
	"github.com/tdaniel1925/easemail-pro-sub002/internal/provider"
	"github.com/tdaniel1925/easemail-pro-sub002/internal/repository"
	"github.com/tdaniel1925/easemail-pro-sub002/internal/service"
	"github.com/tdaniel1925/easemail-pro-sub002/internal/syncstate"
	"github.com/tdaniel1925/easemail-pro-sub002/pkg/metrics"
)

// Orchestrator is the slice of the sync orchestrator the API exposes.
type Orchestrator interface {
	TriggerSync(ctx context.Context, accountID string) error
	PauseSync(ctx context.Context, accountID string) error
	ResumeSync(ctx context.Context, accountID string) error
	StopSync(ctx context.Context, accountID string) error
}

type AccountReader interface {
	List(ctx context.Context) ([]models.EmailAccount, error)
	GetByID(ctx context.Context, accountID string) (*models.EmailAccount, error)
	UpdateAutoSync(ctx context.Context, accountID string, autoSync bool) error
}

type EventReader interface {
	ListByAccount(ctx context.Context, accountID string, limit int) ([]models.SyncEvent, error)
}

type StatsFetcher interface {
	GetAccountStats(ctx context.Context, accountIDs []string) (map[string]provider.AccountStats, error)
}

// SnapshotSource is the polling controller as seen by the API: latest
// published snapshots plus status hints after caller-driven transitions.
type SnapshotSource interface {
	Snapshot(accountID string) (models.SyncMetricsSnapshot, bool)
	Track(accountID string, status models.SyncStatus)
	Untrack(accountID string)
}

type Server struct {
	accounts     AccountReader
	events       EventReader
	stats        StatsFetcher
	orchestrator Orchestrator
	snapshots    SnapshotSource
	logger       *zap.SugaredLogger
}

func NewServer(accounts AccountReader, events EventReader, stats StatsFetcher, orchestrator Orchestrator, snapshots SnapshotSource, logger *zap.SugaredLogger) *Server {
	return &Server{
		accounts:     accounts,
		events:       events,
		stats:        stats,
		orchestrator: orchestrator,
		snapshots:    snapshots,
		logger:       logger,
	}
}

// accountView is the API shape of an account; grant tokens never leave
// the service.
type accountView struct {
	ID               string                 `json:"id"`
	EmailAddress     string                 `json:"emailAddress"`
	SyncStatus       models.SyncStatus      `json:"syncStatus"`
	SyncProgress     int                    `json:"syncProgress"`
	SyncedEmailCount int                    `json:"syncedEmailCount"`
	TotalEmailCount  int                    `json:"totalEmailCount"`
	LastError        *string                `json:"lastError,omitempty"`
	ErrorCategory    *service.ErrorCategory `json:"errorCategory,omitempty"`
	AutoSync         bool                   `json:"autoSync"`
	SyncStopped      bool                   `json:"syncStopped"`
	Stats            *provider.AccountStats `json:"stats,omitempty"`
	Affordances      syncstate.Affordances  `json:"affordances"`
}

func toAccountView(account models.EmailAccount, stats map[string]provider.AccountStats) accountView {
	view := accountView{
		ID:               account.ID,
		EmailAddress:     account.EmailAddress,
		SyncStatus:       account.SyncStatus,
		SyncProgress:     account.SyncProgress,
		SyncedEmailCount: account.SyncedEmailCount,
		TotalEmailCount:  account.TotalEmailCount,
		LastError:        account.LastError,
		AutoSync:         account.AutoSync,
		SyncStopped:      account.SyncStopped,
		Affordances:      syncstate.AffordancesFor(account.SyncStatus, account.SyncStopped),
	}
	if account.SyncStatus == models.SyncStatusError && account.LastError != nil {
		cat := service.ClassifyError(*account.LastError)
		view.ErrorCategory = &cat
	}
	if s, ok := stats[account.ID]; ok {
		view.Stats = &s
	}
	return view
}

// listAccounts returns every account with batched provider stats: one
// stats call for the whole list, keyed by account ids.
func (s *Server) listAccounts(c *gin.Context) {
	accounts, err := s.accounts.List(c.Request.Context())
	if err != nil {
		s.logger.Warnf("Failed to list accounts: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to list accounts"})
		return
	}

	ids := make([]string, 0, len(accounts))
	for _, a := range accounts {
		ids = append(ids, a.ID)
	}

	stats, err := s.stats.GetAccountStats(c.Request.Context(), ids)
	if err != nil {
		// Stats are an enrichment; the account list still serves.
		s.logger.Warnf("Failed to fetch account stats: %v", err)
		stats = map[string]provider.AccountStats{}
	}

	byStatus := map[models.SyncStatus]int{}
	views := make([]accountView, 0, len(accounts))
	for _, a := range accounts {
		byStatus[a.SyncStatus]++
		views = append(views, toAccountView(a, stats))
	}
	for _, st := range []models.SyncStatus{
		models.SyncStatusIdle, models.SyncStatusSyncing, models.SyncStatusBackground,
		models.SyncStatusCompleted, models.SyncStatusError, models.SyncStatusPaused,
	} {
		metrics.SetAccountsByStatus(string(st), byStatus[st])
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "accounts": views})
}

// getSyncStatus returns the latest published snapshot for one account,
// falling back to the persisted state when the poller has none.
func (s *Server) getSyncStatus(c *gin.Context) {
	accountID := c.Param("id")

	if snap, ok := s.snapshots.Snapshot(accountID); ok {
		syncStopped := false
		if snap.SyncStatus == models.SyncStatusPaused {
			// The poll counters don't carry the stop flag; it lives on the
			// stored account and decides whether resume is offered.
			if account, err := s.accounts.GetByID(c.Request.Context(), accountID); err == nil {
				syncStopped = account.SyncStopped
			}
		}
		c.JSON(http.StatusOK, gin.H{
			"success":     true,
			"metrics":     snap,
			"affordances": syncstate.AffordancesFor(snap.SyncStatus, syncStopped),
		})
		return
	}

	account, err := s.accounts.GetByID(c.Request.Context(), accountID)
	if err != nil {
		s.respondError(c, err)
		return
	}

	kind := models.SnapshotConfirmed
	if account.SyncStatus.Active() {
		// Triggered but not yet observed by a poll tick.
		kind = models.SnapshotOptimistic
	}

	snap := models.SyncMetricsSnapshot{
		Kind:              kind,
		SyncStatus:        account.SyncStatus,
		SyncProgress:      account.SyncProgress,
		SyncedEmailCount:  account.SyncedEmailCount,
		TotalEmailCount:   account.TotalEmailCount,
		ContinuationCount: account.ContinuationCount,
		CurrentPage:       account.CurrentPage,
		MaxPages:          account.MaxPages,
		LastError:         account.LastError,
	}

	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"metrics":     snap,
		"affordances": syncstate.AffordancesFor(account.SyncStatus, account.SyncStopped),
	})
}

func (s *Server) triggerSync(c *gin.Context) {
	accountID := c.Param("id")
	if err := s.orchestrator.TriggerSync(c.Request.Context(), accountID); err != nil {
		s.respondError(c, err)
		return
	}
	s.snapshots.Track(accountID, models.SyncStatusBackground)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) pauseSync(c *gin.Context) {
	accountID := c.Param("id")
	if err := s.orchestrator.PauseSync(c.Request.Context(), accountID); err != nil {
		s.respondError(c, err)
		return
	}
	s.snapshots.Track(accountID, models.SyncStatusPaused)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) resumeSync(c *gin.Context) {
	accountID := c.Param("id")
	if err := s.orchestrator.ResumeSync(c.Request.Context(), accountID); err != nil {
		s.respondError(c, err)
		return
	}
	s.snapshots.Track(accountID, models.SyncStatusBackground)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) stopSync(c *gin.Context) {
	accountID := c.Param("id")
	if err := s.orchestrator.StopSync(c.Request.Context(), accountID); err != nil {
		s.respondError(c, err)
		return
	}
	// Stop discards the progress context, so the tracked entry and its
	// snapshot go with it. A later trigger re-tracks from scratch.
	s.snapshots.Untrack(accountID)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) updateAccount(c *gin.Context) {
	accountID := c.Param("id")

	var body struct {
		AutoSync *bool `json:"autoSync"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.AutoSync == nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "autoSync field is required"})
		return
	}

	if err := s.accounts.UpdateAutoSync(c.Request.Context(), accountID, *body.AutoSync); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) listSyncEvents(c *gin.Context) {
	accountID := c.Param("id")

	limit := 50
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	events, err := s.events.ListByAccount(c.Request.Context(), accountID, limit)
	if err != nil {
		s.logger.Warnf("Failed to list sync events for account %s: %v", accountID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to list sync events"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "events": events})
}

// respondError maps internal errors to API responses. Provider-call
// failures keep their code, upstream message, and display category.
func (s *Server) respondError(c *gin.Context, err error) {
	var syncErr *service.SyncError
	if errors.As(err, &syncErr) {
		c.JSON(http.StatusBadGateway, gin.H{
			"success":  false,
			"code":     syncErr.Code,
			"error":    syncErr.Message,
			"category": service.ClassifyError(syncErr.Message),
		})
		return
	}

	var invalid *syncstate.ErrInvalidTransition
	if errors.As(err, &invalid) {
		c.JSON(http.StatusConflict, gin.H{"success": false, "error": invalid.Error()})
		return
	}

	if errors.Is(err, repository.ErrAccountNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "account not found"})
		return
	}

	s.logger.Warnf("Request failed: %v", err)
	c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "internal error"})
}
