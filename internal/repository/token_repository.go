package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// TokenRepo stores refresh tokens by the SHA-256 of their value.  A token
// is live while it is neither revoked nor expired; Active, Rotate and
// Revoke treat every other token as ErrNotFound.
type TokenRepo struct {
	DB  *sql.DB
	Now func() time.Time
}

func NewTokenRepo(db *sql.DB) *TokenRepo { return &TokenRepo{DB: db, Now: time.Now} }

func (r *TokenRepo) now() time.Time { return r.Now().UTC() }

// Store saves a new live token for userID.
func (r *TokenRepo) Store(ctx context.Context, userID uint64, hash string, exp time.Time) error {
	return insertToken(ctx, r.DB, userID, hash, exp, r.now())
}

// Active returns the owner of the live token hash.
func (r *TokenRepo) Active(ctx context.Context, hash string) (uint64, error) {
	return liveToken(ctx, r.DB, hash, r.now())
}

// Rotate revokes the live token oldHash and stores newHash for the same
// user in one transaction.  Two concurrent rotations of the same token
// cannot both succeed; the loser gets ErrNotFound.
func (r *TokenRepo) Rotate(ctx context.Context, oldHash, newHash string, exp time.Time) (uint64, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	now := r.now()
	userID, err := liveToken(ctx, tx, oldHash, now)
	if err != nil {
		return 0, err
	}
	if ok, err := revoke(ctx, tx, oldHash, now); err != nil {
		return 0, err
	} else if !ok {
		return 0, ErrNotFound
	}
	if err := insertToken(ctx, tx, userID, newHash, exp, now); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit token rotation: %w", err)
	}
	return userID, nil
}

// Revoke ends the live token hash.
func (r *TokenRepo) Revoke(ctx context.Context, hash string) error {
	now := r.now()
	if _, err := liveToken(ctx, r.DB, hash, now); err != nil {
		return err
	}
	ok, err := revoke(ctx, r.DB, hash, now)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

// RevokeUser ends every live token of userID and returns how many.
// Expired tokens are not live and are neither touched nor counted.
func (r *TokenRepo) RevokeUser(ctx context.Context, userID uint64) (int64, error) {
	now := r.now()
	res, err := r.DB.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked_at=? WHERE user_id=? AND revoked_at IS NULL AND expires_at > ?",
		now, userID, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type execQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func insertToken(ctx context.Context, q execQuerier, userID uint64, hash string, exp, now time.Time) error {
	_, err := q.ExecContext(ctx,
		"INSERT INTO refresh_tokens (user_id, token_hash, expires_at, created_at) VALUES (?,?,?,?)",
		userID, hash, exp.UTC(), now)
	if err != nil && isDuplicate(err) {
		return ErrConflict
	}
	return err
}

func liveToken(ctx context.Context, q execQuerier, hash string, now time.Time) (uint64, error) {
	var (
		userID    uint64
		expiresAt time.Time
		revokedAt sql.NullTime
	)
	err := q.QueryRowContext(ctx,
		"SELECT user_id, expires_at, revoked_at FROM refresh_tokens WHERE token_hash=?",
		hash).Scan(&userID, &expiresAt, &revokedAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return 0, ErrNotFound
	case err != nil:
		return 0, err
	case revokedAt.Valid, !now.Before(expiresAt):
		return 0, ErrNotFound
	}
	return userID, nil
}

func revoke(ctx context.Context, q execQuerier, hash string, now time.Time) (bool, error) {
	res, err := q.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked_at=? WHERE token_hash=? AND revoked_at IS NULL",
		now, hash)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}
