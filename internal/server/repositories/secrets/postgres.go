// Package secrets provides the PostgreSQL-backed repository for secret
// identity rows (name, description, external uid, soft-delete state).
package secrets

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

func (r *PostgresRepository) Create(ctx context.Context, secret *models.Secret) (*models.Secret, error) {
	query := `
		INSERT INTO secrets (uid, name, description)
		VALUES ($1, $2, NULLIF($3, ''))
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query, secret.UID, secret.Name, secret.Description).
		Scan(&secret.ID, &secret.CreatedAt, &secret.UpdatedAt)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return nil, common.ErrConflict
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return secret, nil
}

func (r *PostgresRepository) GetByUID(ctx context.Context, uid string, includeDeleted bool) (*models.Secret, error) {
	query := `
		SELECT s.id, s.uid, s.name, COALESCE(s.description, ''), s.deleted_at,
		       s.created_at, s.updated_at,
		       COALESCE(MAX(v.version), 0)
		FROM secrets s
		LEFT JOIN secret_versions v ON v.secret_id = s.id
		WHERE s.uid = $1 AND ($2 OR s.deleted_at IS NULL)
		GROUP BY s.id
	`
	secret := &models.Secret{}
	err := r.db.QueryRowContext(ctx, query, uid, includeDeleted).Scan(
		&secret.ID, &secret.UID, &secret.Name, &secret.Description, &secret.DeletedAt,
		&secret.CreatedAt, &secret.UpdatedAt, &secret.LatestVersion)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return secret, nil
}

func (r *PostgresRepository) ListVisible(ctx context.Context, userID int64) ([]*models.Secret, error) {
	query := `
		SELECT s.id, s.uid, s.name, COALESCE(s.description, ''), s.deleted_at,
		       s.created_at, s.updated_at,
		       COALESCE(MAX(v.version), 0)
		FROM secrets s
		JOIN access_permissions p ON p.secret_id = s.id
		LEFT JOIN secret_versions v ON v.secret_id = s.id
		WHERE p.user_id = $1 AND p.status = 'approved' AND s.deleted_at IS NULL
		GROUP BY s.id
		ORDER BY s.name
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.Secret
	for rows.Next() {
		secret := &models.Secret{}
		if err := rows.Scan(
			&secret.ID, &secret.UID, &secret.Name, &secret.Description, &secret.DeletedAt,
			&secret.CreatedAt, &secret.UpdatedAt, &secret.LatestVersion,
		); err != nil {
			return nil, err
		}
		result = append(result, secret)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) SoftDelete(ctx context.Context, id int64) error {
	return r.setDeleted(ctx, id, "now()", "deleted_at IS NULL")
}

func (r *PostgresRepository) Restore(ctx context.Context, id int64) error {
	return r.setDeleted(ctx, id, "NULL", "deleted_at IS NOT NULL")
}

func (r *PostgresRepository) setDeleted(ctx context.Context, id int64, value, cond string) error {
	query := fmt.Sprintf(
		`UPDATE secrets SET deleted_at = %s, updated_at = now() WHERE id = $1 AND %s`, value, cond)
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}
