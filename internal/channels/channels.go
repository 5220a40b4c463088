// Package channels persists registered destination channels.
package channels

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/chanpost/core/logger"
	"log/slog"
)

// Record is one registered channel. ChannelID is the Telegram chat id
// (negative for channels) and is unique across the store; re-registration
// replaces title and owner instead of duplicating.
type Record struct {
	ID        int64  `db:"id"`
	ChannelID int64  `db:"channel_id"`
	Title     string `db:"channel_title"`
	OwnerID   int64  `db:"owner_id"`
}

// ErrNotFound reports a lookup that matched no channel.
var ErrNotFound = errors.New("channels: not found")

// Repository stores channel records in Postgres.
type Repository struct {
	db *sqlx.DB
}

// NewRepository wraps the shared database handle.
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// Upsert inserts the channel or, when the channel id is already known,
// replaces its title and owner.
func (r *Repository) Upsert(ctx context.Context, rec Record) error {
	const q = `
		INSERT INTO channels (channel_id, channel_title, owner_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (channel_id)
		DO UPDATE SET channel_title = EXCLUDED.channel_title, owner_id = EXCLUDED.owner_id`
	if _, err := r.db.ExecContext(ctx, q, rec.ChannelID, rec.Title, rec.OwnerID); err != nil {
		return fmt.Errorf("channels: upsert %d: %w", rec.ChannelID, err)
	}
	logger.SVCChannels.Info("channel.upsert",
		slog.Int64("channel_id", rec.ChannelID),
		slog.String("channel_title", rec.Title),
		slog.Int64("user_id", rec.OwnerID),
	)
	return nil
}

// Delete removes the owner's channel. Returns false when nothing matched.
func (r *Repository) Delete(ctx context.Context, channelID, ownerID int64) (bool, error) {
	const q = `DELETE FROM channels WHERE channel_id = $1 AND owner_id = $2`
	res, err := r.db.ExecContext(ctx, q, channelID, ownerID)
	if err != nil {
		return false, fmt.Errorf("channels: delete %d: %w", channelID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("channels: delete %d: %w", channelID, err)
	}
	if n > 0 {
		logger.SVCChannels.Info("channel.delete",
			slog.Int64("channel_id", channelID),
			slog.Int64("user_id", ownerID),
		)
	}
	return n > 0, nil
}

// ListByOwner returns the owner's channels in registration order.
func (r *Repository) ListByOwner(ctx context.Context, ownerID int64) ([]Record, error) {
	const q = `
		SELECT id, channel_id, channel_title, owner_id
		FROM channels
		WHERE owner_id = $1
		ORDER BY id`
	var out []Record
	if err := r.db.SelectContext(ctx, &out, q, ownerID); err != nil {
		return nil, fmt.Errorf("channels: list for %d: %w", ownerID, err)
	}
	return out, nil
}

// GetByOwner returns the owner's channel by its Telegram chat id.
func (r *Repository) GetByOwner(ctx context.Context, channelID, ownerID int64) (Record, error) {
	const q = `
		SELECT id, channel_id, channel_title, owner_id
		FROM channels
		WHERE channel_id = $1 AND owner_id = $2`
	var rec Record
	if err := r.db.GetContext(ctx, &rec, q, channelID, ownerID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("channels: get %d: %w", channelID, err)
	}
	return rec, nil
}

// Count returns the total number of registered channels.
func (r *Repository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM channels`); err != nil {
		return 0, fmt.Errorf("channels: count: %w", err)
	}
	return n, nil
}
