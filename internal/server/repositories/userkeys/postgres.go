// Package userkeys provides the PostgreSQL-backed repository for the key
// registry: public keys, their lifecycle flags, and revocation.
package userkeys

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/secretvault/internal/common"
	"github.com/dmitrijs2005/secretvault/internal/dbx"
	"github.com/dmitrijs2005/secretvault/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const keyColumns = `id, user_id, key_id, COALESCE(key_name, ''), public_key, is_active, last_used_at, expires_at, revoked_at, created_at`

func scanKey(row interface{ Scan(...any) error }) (*models.UserKey, error) {
	k := &models.UserKey{}
	err := row.Scan(&k.ID, &k.UserID, &k.KeyID, &k.Name, &k.PublicKey,
		&k.IsActive, &k.LastUsedAt, &k.ExpiresAt, &k.RevokedAt, &k.CreatedAt)
	if err != nil {
		return nil, err
	}
	return k, nil
}

func (r *PostgresRepository) Create(ctx context.Context, key *models.UserKey) (*models.UserKey, error) {
	query := `
		INSERT INTO user_keys (user_id, key_id, key_name, public_key, expires_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5)
		RETURNING id, is_active, created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		key.UserID, key.KeyID, key.Name, key.PublicKey, key.ExpiresAt).
		Scan(&key.ID, &key.IsActive, &key.CreatedAt)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return nil, common.ErrConflict
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return key, nil
}

func (r *PostgresRepository) GetByKeyID(ctx context.Context, keyID string) (*models.UserKey, error) {
	query := `SELECT ` + keyColumns + ` FROM user_keys WHERE key_id = $1`

	key, err := scanKey(r.db.QueryRowContext(ctx, query, keyID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return key, nil
}

func (r *PostgresRepository) ActiveByUserID(ctx context.Context, userID int64) ([]*models.UserKey, error) {
	query := `
		SELECT ` + keyColumns + ` FROM user_keys
		WHERE user_id = $1
		  AND is_active
		  AND revoked_at IS NULL
		  AND (expires_at IS NULL OR expires_at > now())
		ORDER BY created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.UserKey
	for rows.Next() {
		key, err := scanKey(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, key)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) Revoke(ctx context.Context, keyID string) (*models.UserKey, error) {
	query := `
		UPDATE user_keys
		SET is_active = FALSE, revoked_at = now(), updated_at = now()
		WHERE key_id = $1 AND revoked_at IS NULL
		RETURNING ` + keyColumns + `
	`
	key, err := scanKey(r.db.QueryRowContext(ctx, query, keyID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// already revoked, or absent; the caller distinguishes via GetByKeyID
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return key, nil
}

func (r *PostgresRepository) TouchLastUsed(ctx context.Context, id int64) error {
	query := `UPDATE user_keys SET last_used_at = now() WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
