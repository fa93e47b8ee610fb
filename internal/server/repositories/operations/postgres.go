// Package operations provides the PostgreSQL-backed repository for the
// append-only audit log.
package operations

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/secretvault/internal/dbx"
	"github.com/dmitrijs2005/secretvault/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, op *models.Operation) (*models.Operation, error) {
	details, err := json.Marshal(op.Details)
	if err != nil {
		return nil, fmt.Errorf("marshal details: %w", err)
	}

	query := `
		INSERT INTO operations
			(operation_type, user_id, target_user_id, user_key_id, secret_id, secret_version_id,
			 details, ip_address, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), NULLIF($9, ''))
		RETURNING id, created_at
	`
	err = r.db.QueryRowContext(ctx, query,
		op.Type, op.UserID, op.TargetUserID, op.UserKeyID, op.SecretID, op.SecretVersionID,
		details, op.IPAddress, op.UserAgent).
		Scan(&op.ID, &op.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return op, nil
}

const opColumns = `id, operation_type, user_id, target_user_id, user_key_id, secret_id,
	secret_version_id, details, COALESCE(ip_address, ''), COALESCE(user_agent, ''), created_at`

func (r *PostgresRepository) ListBySecret(ctx context.Context, secretID int64) ([]*models.Operation, error) {
	query := `SELECT ` + opColumns + ` FROM operations WHERE secret_id = $1 ORDER BY id`
	return r.list(ctx, query, secretID)
}

func (r *PostgresRepository) ListAll(ctx context.Context) ([]*models.Operation, error) {
	query := `SELECT ` + opColumns + ` FROM operations ORDER BY id`
	return r.list(ctx, query)
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]*models.Operation, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.Operation
	for rows.Next() {
		op := &models.Operation{}
		var details []byte
		if err := rows.Scan(&op.ID, &op.Type, &op.UserID, &op.TargetUserID, &op.UserKeyID,
			&op.SecretID, &op.SecretVersionID, &details, &op.IPAddress, &op.UserAgent,
			&op.CreatedAt); err != nil {
			return nil, err
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &op.Details); err != nil {
				return nil, fmt.Errorf("unmarshal details: %w", err)
			}
		}
		result = append(result, op)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
