package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"backoffice/authcore/internal/identity/domain"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	conn, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(conn), mock, conn
}

func TestGetByUserAndProvider_Found(t *testing.T) {
	repo, mock, conn := newRepoWithMock(t)
	defer conn.Close()

	rows := sqlmock.NewRows([]string{"id", "user_id", "provider", "provider_id", "password_hash", "created_at"}).
		AddRow("i1", "u1", "local", "a@example.com", "$2a$hash", time.Now())
	mock.ExpectQuery(`FROM identities WHERE user_id = \$1 AND provider = \$2`).
		WithArgs("u1", "local").WillReturnRows(rows)

	i, err := repo.GetByUserAndProvider(context.Background(), "u1", domain.IdentityProviderLocal)
	if err != nil {
		t.Fatalf("GetByUserAndProvider: %v", err)
	}
	if !i.HasPassword() || i.ProviderID != "a@example.com" {
		t.Fatalf("unexpected identity: %+v", i)
	}
}

func TestGetByUserAndProvider_NotFound(t *testing.T) {
	repo, mock, conn := newRepoWithMock(t)
	defer conn.Close()

	mock.ExpectQuery(`FROM identities`).WillReturnError(sql.ErrNoRows)
	i, err := repo.GetByUserAndProvider(context.Background(), "u1", domain.IdentityProviderLocal)
	if err != nil || i != nil {
		t.Fatalf("got %+v, %v; want nil, nil", i, err)
	}
}

func TestResetPassword_BumpsVersionInTx(t *testing.T) {
	repo, mock, conn := newRepoWithMock(t)
	defer conn.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE identities SET password_hash = \$3`).
		WithArgs("u1", "local", "newhash").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`(?s)UPDATE users SET session_version = session_version \+ 1, must_change_password = TRUE`).
		WithArgs("u1", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"session_version"}).AddRow(int64(2)))
	mock.ExpectCommit()

	v, err := repo.ResetPassword(context.Background(), "u1", "newhash")
	if err != nil {
		t.Fatalf("ResetPassword: %v", err)
	}
	if v != 2 {
		t.Errorf("version = %d, want 2", v)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestResetPassword_NoIdentityRollsBack(t *testing.T) {
	repo, mock, conn := newRepoWithMock(t)
	defer conn.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE identities`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	if _, err := repo.ResetPassword(context.Background(), "u1", "h"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}
