// Package versions provides the PostgreSQL-backed repository for the
// monotonically increasing version chain of a secret.
package versions

import (
	"context"
	"database/sql"
	"encoding/json"
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

func (r *PostgresRepository) Create(ctx context.Context, version *models.SecretVersion) (*models.SecretVersion, error) {
	meta, err := json.Marshal(version.Metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}

	query := `
		INSERT INTO secret_versions (secret_id, version, metadata)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`
	err = r.db.QueryRowContext(ctx, query, version.SecretID, version.Version, meta).
		Scan(&version.ID, &version.CreatedAt)
	if err != nil {
		if dbx.IsUniqueViolation(err) || dbx.IsSerializationFailure(err) {
			return nil, common.ErrVersionConflict
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return version, nil
}

func (r *PostgresRepository) MaxVersion(ctx context.Context, secretID int64) (int64, error) {
	query := `SELECT COALESCE(MAX(version), 0) FROM secret_versions WHERE secret_id = $1`

	var max int64
	if err := r.db.QueryRowContext(ctx, query, secretID).Scan(&max); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return max, nil
}

func (r *PostgresRepository) GetByVersion(ctx context.Context, secretID, version int64) (*models.SecretVersion, error) {
	query := `
		SELECT id, secret_id, version, metadata, created_at
		FROM secret_versions
		WHERE secret_id = $1 AND version = $2
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, secretID, version))
}

func (r *PostgresRepository) ListBySecret(ctx context.Context, secretID int64) ([]*models.SecretVersion, error) {
	query := `
		SELECT id, secret_id, version, metadata, created_at
		FROM secret_versions
		WHERE secret_id = $1
		ORDER BY version
	`
	rows, err := r.db.QueryContext(ctx, query, secretID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.SecretVersion
	for rows.Next() {
		v := &models.SecretVersion{}
		var meta []byte
		if err := rows.Scan(&v.ID, &v.SecretID, &v.Version, &meta, &v.CreatedAt); err != nil {
			return nil, err
		}
		if err := unmarshalMetadata(meta, v); err != nil {
			return nil, err
		}
		result = append(result, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) scanOne(row *sql.Row) (*models.SecretVersion, error) {
	v := &models.SecretVersion{}
	var meta []byte
	err := row.Scan(&v.ID, &v.SecretID, &v.Version, &meta, &v.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	if err := unmarshalMetadata(meta, v); err != nil {
		return nil, err
	}
	return v, nil
}

func unmarshalMetadata(raw []byte, v *models.SecretVersion) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, &v.Metadata); err != nil {
		return fmt.Errorf("unmarshal metadata: %w", err)
	}
	return nil
}
