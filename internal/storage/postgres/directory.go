package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/tinywideclouds/go-fanout-service/pkg/push"
)

// Schema creates the users table. The partial unique index enforces that a
// device token has at most one owner.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
	id           TEXT PRIMARY KEY,
	role         TEXT NOT NULL,
	device_token TEXT,
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE UNIQUE INDEX IF NOT EXISTS users_device_token_key
	ON users (device_token) WHERE device_token IS NOT NULL;
CREATE INDEX IF NOT EXISTS users_role_idx ON users (role);
`

type Directory struct {
	db *DB
}

func NewDirectory(db *DB) *Directory {
	return &Directory{db: db}
}

// Migrate applies Schema. It is safe to run on every start.
func (d *Directory) Migrate(ctx context.Context) error {
	if _, err := d.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to migrate users table: %w", err)
	}
	return nil
}

// PutUser inserts or replaces a user row.
func (d *Directory) PutUser(ctx context.Context, u push.User) error {
	query := `
		INSERT INTO users (id, role, device_token)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE
		SET role = EXCLUDED.role, device_token = EXCLUDED.device_token, updated_at = now()
	`
	if _, err := d.db.ExecContext(ctx, query, u.ID, string(u.Role), nullString(u.DeviceToken)); err != nil {
		return fmt.Errorf("failed to put user: %w", err)
	}
	return nil
}

func (d *Directory) GetUser(ctx context.Context, id string) (push.User, error) {
	query := `SELECT id, role, device_token FROM users WHERE id = $1`

	var u push.User
	var role string
	var token sql.NullString
	err := d.db.QueryRowContext(ctx, query, id).Scan(&u.ID, &role, &token)
	if errors.Is(err, sql.ErrNoRows) {
		return push.User{}, push.ErrUserNotFound
	}
	if err != nil {
		return push.User{}, fmt.Errorf("failed to get user: %w", err)
	}
	u.Role = push.Role(role)
	u.DeviceToken = token.String
	return u, nil
}

func (d *Directory) GetUsers(ctx context.Context, ids []string) ([]push.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `SELECT id, role, device_token FROM users WHERE id = ANY($1)`
	return d.queryUsers(ctx, query, pq.Array(ids))
}

func (d *Directory) UsersWithTokenByRole(ctx context.Context, role push.Role) ([]push.User, error) {
	query := `
		SELECT id, role, device_token FROM users
		WHERE role = $1 AND device_token IS NOT NULL AND device_token <> ''
		ORDER BY id
	`
	return d.queryUsers(ctx, query, string(role))
}

// SetDeviceToken releases the token from any other owner and assigns it to id
// in one transaction.
func (d *Directory) SetDeviceToken(ctx context.Context, id, token string) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE users SET device_token = NULL, updated_at = now() WHERE device_token = $1 AND id <> $2`,
		token, id,
	); err != nil {
		return fmt.Errorf("failed to release token: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE users SET device_token = $1, updated_at = now() WHERE id = $2`,
		token, id,
	)
	if err != nil {
		return fmt.Errorf("failed to set token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return push.ErrUserNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit token: %w", err)
	}
	return nil
}

func (d *Directory) UnsetDeviceToken(ctx context.Context, id string) error {
	query := `UPDATE users SET device_token = NULL, updated_at = now() WHERE id = $1 AND device_token IS NOT NULL`
	if _, err := d.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to unset token: %w", err)
	}
	return nil
}

func (d *Directory) UnsetDeviceTokenEverywhere(ctx context.Context, token string) error {
	query := `UPDATE users SET device_token = NULL, updated_at = now() WHERE device_token = $1`
	if _, err := d.db.ExecContext(ctx, query, token); err != nil {
		return fmt.Errorf("failed to prune token: %w", err)
	}
	return nil
}

func (d *Directory) queryUsers(ctx context.Context, query string, args ...any) ([]push.User, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []push.User
	for rows.Next() {
		var u push.User
		var role string
		var token sql.NullString
		if err := rows.Scan(&u.ID, &role, &token); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		u.Role = push.Role(role)
		u.DeviceToken = token.String
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}
	return users, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
