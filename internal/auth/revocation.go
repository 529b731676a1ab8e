package auth

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// RevocationStore records logged-out tokens until their natural expiry. Once a
// token has expired, signature verification rejects it anyway, so expired rows
// are only dead weight and get swept.
type RevocationStore struct {
	db *sql.DB
}

func NewRevocationStore(db *sql.DB) *RevocationStore {
	return &RevocationStore{db: db}
}

// Revoke is idempotent: revoking an already revoked token is a no-op.
func (s *RevocationStore) Revoke(ctx context.Context, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO token_blacklist (token, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (token) DO NOTHING
	`, token, expiresAt.UTC())
	if err != nil {
		return fmt.Errorf("insert revoked token: %w", err)
	}

	return nil
}

func (s *RevocationStore) IsRevoked(ctx context.Context, token string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM token_blacklist WHERE token = $1)
	`, token).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}

	return revoked, nil
}

// SweepExpired deletes records whose expiry has passed. Delete-only, safe to
// run concurrently with reads and writes.
func (s *RevocationStore) SweepExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM token_blacklist
		WHERE expires_at < NOW()
	`)
	if err != nil {
		return 0, fmt.Errorf("sweep expired tokens: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("swept tokens rows affected: %w", err)
	}

	return affected, nil
}
