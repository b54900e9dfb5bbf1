package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tdaniel1925/easemail-pro-sub002/internal/models"
	"gorm.io/gorm"
)

var ErrAccountNotFound = errors.New("account not found")

type AccountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// GetByID retrieves an account by ID
func (r *AccountRepository) GetByID(ctx context.Context, accountID string) (*models.EmailAccount, error) {
	var account models.EmailAccount
	result := r.db.WithContext(ctx).First(&account, "id = ?", accountID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", result.Error)
	}
	return &account, nil
}

// List retrieves all linked accounts, oldest first
func (r *AccountRepository) List(ctx context.Context) ([]models.EmailAccount, error) {
	var accounts []models.EmailAccount
	result := r.db.WithContext(ctx).Order("created_at ASC").Find(&accounts)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", result.Error)
	}
	return accounts, nil
}

// ListAutoSync retrieves accounts eligible for a scheduled re-sync:
// auto_sync enabled and currently settled (idle or completed).
func (r *AccountRepository) ListAutoSync(ctx context.Context) ([]models.EmailAccount, error) {
	var accounts []models.EmailAccount
	result := r.db.WithContext(ctx).
		Where("auto_sync = ?", true).
		Where("sync_status IN ?", []models.SyncStatus{models.SyncStatusIdle, models.SyncStatusCompleted}).
		Order("updated_at ASC").
		Find(&accounts)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list auto-sync accounts: %w", result.Error)
	}
	return accounts, nil
}

// UpdateSyncState persists the sync lifecycle fields after a transition
// or a poll tick. Token columns are deliberately not touched here.
func (r *AccountRepository) UpdateSyncState(ctx context.Context, account *models.EmailAccount) error {
	result := r.db.WithContext(ctx).Model(&models.EmailAccount{}).
		Where("id = ?", account.ID).
		Updates(map[string]interface{}{
			"sync_status":        account.SyncStatus,
			"sync_progress":      account.SyncProgress,
			"synced_email_count": account.SyncedEmailCount,
			"total_email_count":  account.TotalEmailCount,
			"continuation_count": account.ContinuationCount,
			"current_page":       account.CurrentPage,
			"max_pages":          account.MaxPages,
			"last_error":         account.LastError,
			"sync_stopped":       account.SyncStopped,
			"updated_at":         time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update sync state: %w", result.Error)
	}
	return nil
}

// UpdateAutoSync flips the auto-sync flag, which is independent of the
// current sync status.
func (r *AccountRepository) UpdateAutoSync(ctx context.Context, accountID string, autoSync bool) error {
	result := r.db.WithContext(ctx).Model(&models.EmailAccount{}).
		Where("id = ?", accountID).
		Updates(map[string]interface{}{
			"auto_sync":  autoSync,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update auto-sync flag: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// UpdateTokens updates the grant's access token, refresh token, and expiry
func (r *AccountRepository) UpdateTokens(ctx context.Context, accountID string, accessToken string, refreshToken string, accessTokenExpiresAt time.Time) error {
	result := r.db.WithContext(ctx).Model(&models.EmailAccount{}).
		Where("id = ?", accountID).
		Updates(map[string]interface{}{
			"access_token":            accessToken,
			"refresh_token":           refreshToken,
			"access_token_expires_at": accessTokenExpiresAt,
			"updated_at":              time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update tokens: %w", result.Error)
	}
	return nil
}
