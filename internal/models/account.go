package models

import "time"

type SyncStatus string

const (
	SyncStatusIdle       SyncStatus = "idle"
	SyncStatusSyncing    SyncStatus = "syncing"
	SyncStatusBackground SyncStatus = "background_syncing"
	SyncStatusCompleted  SyncStatus = "completed"
	SyncStatusError      SyncStatus = "error"
	SyncStatusPaused     SyncStatus = "paused"
)

// Active reports whether the account has a sync in flight and should
// therefore be polled for status.
func (s SyncStatus) Active() bool {
	return s == SyncStatusSyncing || s == SyncStatusBackground
}

// Valid reports whether s is one of the six defined sync states.
func (s SyncStatus) Valid() bool {
	switch s {
	case SyncStatusIdle, SyncStatusSyncing, SyncStatusBackground,
		SyncStatusCompleted, SyncStatusError, SyncStatusPaused:
		return true
	}
	return false
}

// EmailAccount is a linked mailbox (a provider grant) together with the
// sync bookkeeping this service owns.
type EmailAccount struct {
	ID           string `gorm:"column:id;primaryKey"`
	UserID       string `gorm:"column:user_id;index"`
	EmailAddress string `gorm:"column:email_address"`
	GrantID      string `gorm:"column:grant_id;uniqueIndex"`

	SyncStatus       SyncStatus `gorm:"column:sync_status;index"`
	SyncProgress     int        `gorm:"column:sync_progress"`
	SyncedEmailCount int        `gorm:"column:synced_email_count"`
	TotalEmailCount  int        `gorm:"column:total_email_count"`

	// Provider pagination bookkeeping, kept only for rate/ETA estimation.
	ContinuationCount int `gorm:"column:continuation_count"`
	CurrentPage       int `gorm:"column:current_page"`
	MaxPages          int `gorm:"column:max_pages"`

	LastError   *string `gorm:"column:last_error"`
	AutoSync    bool    `gorm:"column:auto_sync"`
	SyncStopped bool    `gorm:"column:sync_stopped"`

	AccessToken          *string    `gorm:"column:access_token"`
	RefreshToken         *string    `gorm:"column:refresh_token"`
	AccessTokenExpiresAt *time.Time `gorm:"column:access_token_expires_at"`

	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

// TableName specifies the table name for GORM
func (EmailAccount) TableName() string {
	return "email_account"
}
