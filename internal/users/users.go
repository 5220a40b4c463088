// Package users persists bot users and their admin flag.
package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	corebootstrap "github.com/m3rciful/chanpost/core/bootstrap"
	"github.com/m3rciful/chanpost/core/logger"
	"log/slog"
)

// User is one row of the users table.
type User struct {
	UserID    int64  `db:"user_id"`
	FirstName string `db:"first_name"`
	LastName  string `db:"last_name"`
	Username  string `db:"username"`
	IsAdmin   bool   `db:"is_admin"`
}

// Repository stores users in Postgres.
type Repository struct {
	db *sqlx.DB
}

// NewRepository wraps the shared database handle.
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// Upsert records the user, refreshing names on repeat visits. The admin flag
// is never touched here; promotion goes through SetAdmin.
func (r *Repository) Upsert(ctx context.Context, u User) error {
	const q = `
		INSERT INTO users (user_id, first_name, last_name, username)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id)
		DO UPDATE SET first_name = EXCLUDED.first_name,
		              last_name  = EXCLUDED.last_name,
		              username   = EXCLUDED.username`
	if _, err := r.db.ExecContext(ctx, q, u.UserID, u.FirstName, u.LastName, u.Username); err != nil {
		return fmt.Errorf("users: upsert %d: %w", u.UserID, err)
	}
	return nil
}

// IsAdmin reports whether the user carries the admin flag. Unknown users are
// not admins.
func (r *Repository) IsAdmin(ctx context.Context, userID int64) (bool, error) {
	var admin bool
	err := r.db.GetContext(ctx, &admin, `SELECT is_admin FROM users WHERE user_id = $1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("users: is_admin %d: %w", userID, err)
	}
	return admin, nil
}

// SetAdmin promotes or demotes the user, creating the row if needed.
func (r *Repository) SetAdmin(ctx context.Context, userID int64, admin bool) error {
	const q = `
		INSERT INTO users (user_id, is_admin)
		VALUES ($1, $2)
		ON CONFLICT (user_id)
		DO UPDATE SET is_admin = EXCLUDED.is_admin`
	if _, err := r.db.ExecContext(ctx, q, userID, admin); err != nil {
		return fmt.Errorf("users: set_admin %d: %w", userID, err)
	}
	logger.SVCUsers.Info("user.set_admin",
		slog.Int64("user_id", userID),
		slog.Bool("admin", admin),
	)
	return nil
}

// Count returns total users and how many of them are admins.
func (r *Repository) Count(ctx context.Context) (total, admins int, err error) {
	if err = r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM users`); err != nil {
		return 0, 0, fmt.Errorf("users: count: %w", err)
	}
	if err = r.db.GetContext(ctx, &admins, `SELECT COUNT(*) FROM users WHERE is_admin`); err != nil {
		return 0, 0, fmt.Errorf("users: count admins: %w", err)
	}
	return total, admins, nil
}

// OwnerSeeder ensures the configured owner exists with the admin flag set.
// Runs as a bootstrap seeder after migrations.
func OwnerSeeder(ownerID int64) corebootstrap.Seeder {
	return corebootstrap.SeederFunc(func(ctx context.Context, storage corebootstrap.Storage) error {
		if ownerID == 0 {
			return nil
		}
		db, ok := storage.(*sqlx.DB)
		if !ok {
			return fmt.Errorf("users: owner seeder needs *sqlx.DB storage, got %T", storage)
		}
		const q = `
			INSERT INTO users (user_id, first_name, is_admin)
			VALUES ($1, 'Owner', TRUE)
			ON CONFLICT (user_id) DO UPDATE SET is_admin = TRUE`
		if _, err := db.ExecContext(ctx, q, ownerID); err != nil {
			return fmt.Errorf("users: seed owner %d: %w", ownerID, err)
		}
		logger.SEED.Info("owner.seeded", slog.Int64("user_id", ownerID))
		return nil
	})
}
