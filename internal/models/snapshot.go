package models

// SnapshotKind distinguishes a locally applied optimistic transition
// from state confirmed by a provider poll. A confirmed snapshot may
// overwrite an optimistic one; the reverse never happens.
type SnapshotKind string

const (
	SnapshotOptimistic SnapshotKind = "optimistic"
	SnapshotConfirmed  SnapshotKind = "confirmed"
)

// SyncMetricsSnapshot is a point-in-time read of an account's sync
// counters plus the metrics derived from the previous read. It is
// recomputed on every poll tick and not retained as history.
type SyncMetricsSnapshot struct {
	Kind             SnapshotKind `json:"kind"`
	SyncStatus       SyncStatus   `json:"syncStatus"`
	SyncProgress     int          `json:"syncProgress"`
	SyncedEmailCount int          `json:"syncedEmailCount"`
	TotalEmailCount  int          `json:"totalEmailCount"`

	// Nil means "unavailable" (no prior sample yet), which is distinct
	// from a true zero rate.
	EmailsPerMinute        *float64 `json:"emailsPerMinute"`
	EstimatedTimeRemaining *int     `json:"estimatedTimeRemaining"`

	ContinuationCount int     `json:"continuationCount"`
	CurrentPage       int     `json:"currentPage"`
	MaxPages          int     `json:"maxPages"`
	LastError         *string `json:"lastError,omitempty"`
}
