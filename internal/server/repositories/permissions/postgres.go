// Package permissions provides the PostgreSQL-backed repository for the
// access-control ledger: one authorization row per (user, secret).
package permissions

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

const permColumns = `id, secret_id, user_id, status, COALESCE(invited_by, 0), invited_at,
	responded_at, grant_operation_id, response_operation_id, created_at, updated_at`

func scanPerm(row interface{ Scan(...any) error }) (*models.AccessPermission, error) {
	p := &models.AccessPermission{}
	err := row.Scan(&p.ID, &p.SecretID, &p.UserID, &p.Status, &p.InvitedBy, &p.InvitedAt,
		&p.RespondedAt, &p.GrantOperationID, &p.ResponseOperationID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *PostgresRepository) Create(ctx context.Context, perm *models.AccessPermission) (*models.AccessPermission, error) {
	query := `
		INSERT INTO access_permissions (secret_id, user_id, status, invited_by, grant_operation_id, responded_at)
		VALUES ($1, $2, $3, NULLIF($4, 0), $5, CASE WHEN $3 = 'approved' THEN now() END)
		RETURNING id, invited_at, created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		perm.SecretID, perm.UserID, perm.Status, perm.InvitedBy, perm.GrantOperationID).
		Scan(&perm.ID, &perm.InvitedAt, &perm.CreatedAt, &perm.UpdatedAt)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return nil, common.ErrConflict
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return perm, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*models.AccessPermission, error) {
	query := `SELECT ` + permColumns + ` FROM access_permissions WHERE id = $1`

	perm, err := scanPerm(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return perm, nil
}

func (r *PostgresRepository) GetByUserAndSecret(ctx context.Context, userID, secretID int64) (*models.AccessPermission, error) {
	query := `SELECT ` + permColumns + ` FROM access_permissions WHERE user_id = $1 AND secret_id = $2`

	perm, err := scanPerm(r.db.QueryRowContext(ctx, query, userID, secretID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return perm, nil
}

func (r *PostgresRepository) UpdateStatus(ctx context.Context, id int64, status models.PermissionStatus, responseOpID int64) error {
	query := `
		UPDATE access_permissions
		SET status = $2, responded_at = now(), response_operation_id = $3, updated_at = now()
		WHERE id = $1
	`
	return r.execOne(ctx, query, id, status, responseOpID)
}

func (r *PostgresRepository) Reinvite(ctx context.Context, id, invitedBy, grantOpID int64) error {
	query := `
		UPDATE access_permissions
		SET status = 'pending', invited_by = $2, invited_at = now(),
		    responded_at = NULL, response_operation_id = NULL,
		    grant_operation_id = $3, updated_at = now()
		WHERE id = $1
	`
	return r.execOne(ctx, query, id, invitedBy, grantOpID)
}

func (r *PostgresRepository) ListBySecret(ctx context.Context, secretID int64) ([]*models.AccessPermission, error) {
	query := `SELECT ` + permColumns + ` FROM access_permissions WHERE secret_id = $1 ORDER BY invited_at`

	rows, err := r.db.QueryContext(ctx, query, secretID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.AccessPermission
	for rows.Next() {
		perm, err := scanPerm(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, perm)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) ApprovedUserIDs(ctx context.Context, secretID int64) ([]int64, error) {
	query := `
		SELECT user_id FROM access_permissions
		WHERE secret_id = $1 AND status = 'approved'
		ORDER BY user_id
	`
	rows, err := r.db.QueryContext(ctx, query, secretID)
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

func (r *PostgresRepository) CountApproved(ctx context.Context, secretID int64) (int64, error) {
	query := `SELECT COUNT(*) FROM access_permissions WHERE secret_id = $1 AND status = 'approved'`

	var n int64
	if err := r.db.QueryRowContext(ctx, query, secretID).Scan(&n); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id int64) error {
	return r.execOne(ctx, `DELETE FROM access_permissions WHERE id = $1`, id)
}

func (r *PostgresRepository) execOne(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
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
