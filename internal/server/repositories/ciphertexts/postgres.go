// Package ciphertexts provides the PostgreSQL-backed repository for the
// per-recipient ciphertext fan-out: one row per (version, user, key).
package ciphertexts

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

func (r *PostgresRepository) Create(ctx context.Context, data *models.EncryptedSecretData) (bool, error) {
	query := `
		INSERT INTO encrypted_secret_data (secret_version_id, user_id, user_key_id, encrypted_data)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (secret_version_id, user_id, user_key_id) DO NOTHING
	`
	res, err := r.db.ExecContext(ctx, query,
		data.SecretVersionID, data.UserID, data.UserKeyID, data.EncryptedData)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected error: %w", err)
	}
	return n == 1, nil
}

func (r *PostgresRepository) GetForUser(ctx context.Context, versionID, userID int64) (*models.EncryptedSecretData, error) {
	query := `
		SELECT d.id, d.secret_version_id, d.user_id, d.user_key_id, d.encrypted_data, d.created_at
		FROM encrypted_secret_data d
		JOIN user_keys k ON k.id = d.user_key_id
		WHERE d.secret_version_id = $1 AND d.user_id = $2
		ORDER BY k.is_active DESC, k.created_at DESC
		LIMIT 1
	`
	data := &models.EncryptedSecretData{}
	err := r.db.QueryRowContext(ctx, query, versionID, userID).Scan(
		&data.ID, &data.SecretVersionID, &data.UserID, &data.UserKeyID,
		&data.EncryptedData, &data.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return data, nil
}

func (r *PostgresRepository) RecipientUserIDs(ctx context.Context, versionID int64) ([]int64, error) {
	query := `
		SELECT DISTINCT user_id FROM encrypted_secret_data
		WHERE secret_version_id = $1
		ORDER BY user_id
	`
	rows, err := r.db.QueryContext(ctx, query, versionID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		result = append(result, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
