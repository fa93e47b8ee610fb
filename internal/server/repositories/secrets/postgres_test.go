package secrets

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

func secretRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "uid", "name", "description", "deleted_at",
		"created_at", "updated_at", "latest_version",
	})
}

func TestCreate_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^\s*INSERT\s+INTO\s+secrets\s*\(uid,\s*name,\s*description\)`

	now := time.Now()
	mock.ExpectQuery(q).
		WithArgs("uid-1", "prod-env", "env for prod").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).
			AddRow(int64(3), now, now))

	got, err := repo.Create(context.Background(), &models.Secret{
		UID: "uid-1", Name: "prod-env", Description: "env for prod",
	})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if got.ID != 3 {
		t.Fatalf("unexpected id: %d", got.ID)
	}
}

func TestCreate_DuplicateUID(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`INSERT\s+INTO\s+secrets`).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	_, err := repo.Create(context.Background(), &models.Secret{UID: "uid-1", Name: "prod-env"})
	if !errors.Is(err, common.ErrConflict) {
		t.Fatalf("want common.ErrConflict, got %v", err)
	}
}

func TestGetByUID_IncludesLatestVersion(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(`(?s)SELECT\s+s\.id.*COALESCE\(MAX\(v\.version\),\s*0\)`).
		WithArgs("uid-1", false).
		WillReturnRows(secretRows().
			AddRow(int64(3), "uid-1", "prod-env", "", nil, now, now, int64(4)))

	got, err := repo.GetByUID(context.Background(), "uid-1", false)
	if err != nil {
		t.Fatalf("GetByUID error: %v", err)
	}
	if got.LatestVersion != 4 {
		t.Fatalf("latest version not joined: %+v", got)
	}
}

func TestGetByUID_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT\s+s\.id`).
		WithArgs("ghost", false).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByUID(context.Background(), "ghost", false)
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("want common.ErrNotFound, got %v", err)
	}
}

func TestListVisible_ScansAll(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(`(?s)SELECT\s+s\.id.*JOIN\s+access_permissions\s+p.*p\.status\s*=\s*'approved'`).
		WithArgs(int64(2)).
		WillReturnRows(secretRows().
			AddRow(int64(1), "uid-a", "alpha", "", nil, now, now, int64(1)).
			AddRow(int64(2), "uid-b", "beta", "second", nil, now, now, int64(7)))

	list, err := repo.ListVisible(context.Background(), 2)
	if err != nil {
		t.Fatalf("ListVisible error: %v", err)
	}
	if len(list) != 2 || list[1].Name != "beta" || list[1].LatestVersion != 7 {
		t.Fatalf("unexpected list: %+v", list)
	}
}

func TestSoftDelete_AlreadyDeletedIsNotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE\s+secrets\s+SET\s+deleted_at\s*=\s*now\(\)`).
		WithArgs(int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.SoftDelete(context.Background(), 3); !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("want common.ErrNotFound, got %v", err)
	}
}

func TestRestore_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE\s+secrets\s+SET\s+deleted_at\s*=\s*NULL`).
		WithArgs(int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Restore(context.Background(), 3); err != nil {
		t.Fatalf("Restore error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
