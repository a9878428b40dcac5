package database

import (
	"context"
	"database/sql"
	"fmt"
)

// UserDirectory is the read-only view over the user table needed by the
// auth path: existence checks during request validation and ID resolution
// during SSO exchange.
type UserDirectory interface {
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	IDByUsername(ctx context.Context, username string) (int, error)
}

// SQLUserDirectory implements UserDirectory against Postgres.
type SQLUserDirectory struct {
	db *sql.DB
}

func NewUserDirectory(db *sql.DB) *SQLUserDirectory {
	return &SQLUserDirectory{db: db}
}

func (d *SQLUserDirectory) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := d.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM "user" WHERE username = $1)`, username).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query user existence: %w", err)
	}
	return exists, nil
}

// IDByUsername resolves a username to its user ID. Returns sql.ErrNoRows
// when the user does not exist.
func (d *SQLUserDirectory) IDByUsername(ctx context.Context, username string) (int, error) {
	var id int
	err := d.db.QueryRowContext(ctx,
		`SELECT id FROM "user" WHERE username = $1`, username).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("query user id: %w", err)
	}
	return id, nil
}
