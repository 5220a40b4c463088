// Package audit records user actions in the logs table.
package audit

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/chanpost/core/logger"
	"log/slog"
)

// Audited actions.
const (
	ActionChannelAdded   = "channel_added"
	ActionChannelDeleted = "channel_deleted"
	ActionPostSent       = "post_sent"
	ActionPostEdited     = "post_edited"
)

// Recorder appends audit rows.
type Recorder struct {
	db *sqlx.DB
}

// NewRecorder wraps the shared database handle.
func NewRecorder(db *sqlx.DB) *Recorder {
	return &Recorder{db: db}
}

// Record appends one audit entry for the user.
func (r *Recorder) Record(ctx context.Context, userID int64, action string) error {
	const q = `INSERT INTO logs (user_id, action) VALUES ($1, $2)`
	if _, err := r.db.ExecContext(ctx, q, userID, action); err != nil {
		return fmt.Errorf("audit: record %q for %d: %w", action, userID, err)
	}
	logger.SVCAudit.Debug("audit.record",
		slog.Int64("user_id", userID),
		slog.String("action", action),
	)
	return nil
}
