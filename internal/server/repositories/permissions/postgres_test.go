package permissions

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/secretvault/internal/common"
	"github.com/dmitrijs2005/secretvault/internal/server/models"
	"github.com/jackc/pgx/v5/pgconn"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

func permRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "secret_id", "user_id", "status", "invited_by", "invited_at",
		"responded_at", "grant_operation_id", "response_operation_id", "created_at", "updated_at",
	})
}

func TestCreate_PendingInvite(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^\s*INSERT\s+INTO\s+access_permissions\s*\(secret_id,\s*user_id,\s*status,\s*invited_by`

	opID := int64(11)
	now := time.Now()
	mock.ExpectQuery(q).
		WithArgs(int64(3), int64(2), string(models.PermissionPending), int64(1), opID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "invited_at", "created_at", "updated_at"}).
			AddRow(int64(5), now, now, now))

	perm := &models.AccessPermission{
		SecretID: 3, UserID: 2, Status: models.PermissionPending,
		InvitedBy: 1, GrantOperationID: &opID,
	}
	got, err := repo.Create(context.Background(), perm)
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if got.ID != 5 {
		t.Fatalf("unexpected id: %d", got.ID)
	}
}

func TestCreate_DuplicatePair(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`INSERT\s+INTO\s+access_permissions`).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	_, err := repo.Create(context.Background(), &models.AccessPermission{
		SecretID: 3, UserID: 2, Status: models.PermissionPending,
	})
	if !errors.Is(err, common.ErrConflict) {
		t.Fatalf("want common.ErrConflict, got %v", err)
	}
}

func TestGetByUserAndSecret_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT\s+id,\s*secret_id,\s*user_id,\s*status`).
		WithArgs(int64(2), int64(3)).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByUserAndSecret(context.Background(), 2, 3)
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("want common.ErrNotFound, got %v", err)
	}
}

func TestGetByID_SelfInvitedHasZeroInviter(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(`SELECT\s+id,\s*secret_id,\s*user_id,\s*status`).
		WithArgs(int64(5)).
		WillReturnRows(permRows().
			AddRow(int64(5), int64(3), int64(2), "approved", int64(0), now, now, nil, nil, now, now))

	got, err := repo.GetByID(context.Background(), 5)
	if err != nil {
		t.Fatalf("GetByID error: %v", err)
	}
	if got.InvitedBy != 0 || got.Status != models.PermissionApproved {
		t.Fatalf("unexpected permission: %+v", got)
	}
}

func TestUpdateStatus_MissingRowIsNotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`(?s)UPDATE\s+access_permissions\s+SET\s+status\s*=\s*\$2`).
		WithArgs(int64(5), string(models.PermissionApproved), int64(12)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateStatus(context.Background(), 5, models.PermissionApproved, 12)
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("want common.ErrNotFound, got %v", err)
	}
}

func TestReinvite_ResetsRow(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`(?s)UPDATE\s+access_permissions\s+SET\s+status\s*=\s*'pending'`).
		WithArgs(int64(5), int64(1), int64(13)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Reinvite(context.Background(), 5, 1, 13); err != nil {
		t.Fatalf("Reinvite error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestApprovedUserIDs(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)SELECT\s+user_id\s+FROM\s+access_permissions.*status\s*=\s*'approved'`).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow(int64(1)).AddRow(int64(4)))

	ids, err := repo.ApprovedUserIDs(context.Background(), 3)
	if err != nil {
		t.Fatalf("ApprovedUserIDs error: %v", err)
	}
	if len(ids) != 2 || ids[0] != 1 || ids[1] != 4 {
		t.Fatalf("unexpected ids: %v", ids)
	}
}

func TestCountApproved(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT\s+COUNT\(\*\)\s+FROM\s+access_permissions`).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(2)))

	n, err := repo.CountApproved(context.Background(), 3)
	if err != nil {
		t.Fatalf("CountApproved error: %v", err)
	}
	if n != 2 {
		t.Fatalf("want 2, got %d", n)
	}
}

func TestDelete_MissingRowIsNotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`DELETE\s+FROM\s+access_permissions`).
		WithArgs(int64(9)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.Delete(context.Background(), 9); !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("want common.ErrNotFound, got %v", err)
	}
}
