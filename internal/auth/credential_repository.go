package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CredentialCache persists the account credential across restarts so a
// process can renew instead of logging in again.
type CredentialCache interface {
	Load(ctx context.Context) (Credential, error)
	Save(ctx context.Context, c Credential) error
	Clear(ctx context.Context) error
}

// SQLiteCredentialCache implements CredentialCache on the single-row
// credentials table.
type SQLiteCredentialCache struct {
	db *sql.DB
}

// NewCredentialCache creates a SQLite-backed credential cache.
func NewCredentialCache(db *sql.DB) *SQLiteCredentialCache {
	return &SQLiteCredentialCache{db: db}
}

// Load returns the cached credential, or ErrNoCredential.
func (r *SQLiteCredentialCache) Load(ctx context.Context) (Credential, error) {
	var c Credential
	var expiresAt string

	err := r.db.QueryRowContext(ctx,
		`SELECT access_token, id_token, refresh_token, expires_at
		 FROM credentials WHERE id = 1`,
	).Scan(&c.AccessToken, &c.IDToken, &c.RefreshToken, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Credential{}, ErrNoCredential
	}
	if err != nil {
		return Credential{}, fmt.Errorf("loading credential: %w", err)
	}

	c.Expiry, err = time.Parse(time.RFC3339, expiresAt)
	if err != nil {
		return Credential{}, fmt.Errorf("parsing credential expiry: %w", err)
	}
	return c, nil
}

// Save replaces the cached credential.
func (r *SQLiteCredentialCache) Save(ctx context.Context, c Credential) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO credentials (id, access_token, id_token, refresh_token, expires_at, updated_at)
		 VALUES (1, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   access_token = excluded.access_token,
		   id_token = excluded.id_token,
		   refresh_token = excluded.refresh_token,
		   expires_at = excluded.expires_at,
		   updated_at = excluded.updated_at`,
		c.AccessToken, c.IDToken, c.RefreshToken,
		c.Expiry.UTC().Format(time.RFC3339),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("saving credential: %w", err)
	}
	return nil
}

// Clear removes the cached credential.
func (r *SQLiteCredentialCache) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM credentials`); err != nil {
		return fmt.Errorf("clearing credential: %w", err)
	}
	return nil
}
