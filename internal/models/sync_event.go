package models

import "time"

// SyncEvent is one recorded sync state transition, kept as an
// append-only audit trail for support and debugging.
type SyncEvent struct {
	ID         string     `json:"id"`
	AccountID  string     `json:"accountId"`
	FromStatus SyncStatus `json:"fromStatus"`
	ToStatus   SyncStatus `json:"toStatus"`
	Detail     *string    `json:"detail,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}
