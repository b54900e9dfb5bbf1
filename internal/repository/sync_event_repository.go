package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tdaniel1925/easemail-pro-sub002/internal/models"
)

// SyncEventRepository records sync state transitions as an append-only
// audit trail.
type SyncEventRepository struct {
	db *sql.DB
}

func NewSyncEventRepository(db *sql.DB) *SyncEventRepository {
	return &SyncEventRepository{db: db}
}

// Record appends one transition event
func (r *SyncEventRepository) Record(ctx context.Context, event models.SyncEvent) error {
	query := `
		INSERT INTO sync_event (id, account_id, from_status, to_status, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.ExecContext(ctx, query,
		event.ID,
		event.AccountID,
		event.FromStatus,
		event.ToStatus,
		event.Detail,
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record sync event: %w", err)
	}

	return nil
}

// ListByAccount retrieves the most recent transitions for one account,
// newest first
func (r *SyncEventRepository) ListByAccount(ctx context.Context, accountID string, limit int) ([]models.SyncEvent, error) {
	query := `
		SELECT id, account_id, from_status, to_status, detail, created_at
		FROM sync_event
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync events: %w", err)
	}
	defer rows.Close()

	return r.scanEvents(rows)
}

// scanEvents scans database rows into a SyncEvent slice
func (r *SyncEventRepository) scanEvents(rows *sql.Rows) ([]models.SyncEvent, error) {
	var events []models.SyncEvent

	for rows.Next() {
		var event models.SyncEvent
		err := rows.Scan(
			&event.ID,
			&event.AccountID,
			&event.FromStatus,
			&event.ToStatus,
			&event.Detail,
			&event.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync event: %w", err)
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return events, nil
}
