package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"backoffice/authcore/internal/membership/domain"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	conn, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(conn), mock, conn
}

var membershipColumns = []string{"id", "user_id", "tenant_id", "role", "created_at"}

func TestGetMembershipByUserAndTenant(t *testing.T) {
	repo, mock, conn := newRepoWithMock(t)
	defer conn.Close()

	mock.ExpectQuery(`FROM tenant_memberships WHERE user_id = \$1 AND tenant_id = \$2`).
		WithArgs("u1", "t1").
		WillReturnRows(sqlmock.NewRows(membershipColumns).AddRow("m1", "u1", "t1", "restricted_write", time.Now()))

	m, err := repo.GetMembershipByUserAndTenant(context.Background(), "u1", "t1")
	if err != nil {
		t.Fatalf("GetMembershipByUserAndTenant: %v", err)
	}
	if m == nil || m.Role != domain.RoleRestrictedWrite {
		t.Fatalf("unexpected membership: %+v", m)
	}
}

func TestGetMembershipByUserAndTenant_NotMember(t *testing.T) {
	repo, mock, conn := newRepoWithMock(t)
	defer conn.Close()

	mock.ExpectQuery(`FROM tenant_memberships`).WillReturnError(sql.ErrNoRows)
	m, err := repo.GetMembershipByUserAndTenant(context.Background(), "u1", "t2")
	if err != nil || m != nil {
		t.Fatalf("got %+v, %v; want nil, nil", m, err)
	}
}

func TestListMembershipsByUser(t *testing.T) {
	repo, mock, conn := newRepoWithMock(t)
	defer conn.Close()

	now := time.Now()
	mock.ExpectQuery(`FROM tenant_memberships WHERE user_id = \$1 ORDER BY tenant_id`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows(membershipColumns).
			AddRow("m1", "u1", "t1", "owner", now).
			AddRow("m2", "u1", "t2", "read_only", now))

	list, err := repo.ListMembershipsByUser(context.Background(), "u1")
	if err != nil {
		t.Fatalf("ListMembershipsByUser: %v", err)
	}
	if len(list) != 2 || list[1].Role != domain.RoleReadOnly {
		t.Fatalf("unexpected list: %+v", list)
	}
}

func TestCountOwnersByTenant(t *testing.T) {
	repo, mock, conn := newRepoWithMock(t)
	defer conn.Close()

	mock.ExpectQuery(`SELECT count\(\*\) FROM tenant_memberships WHERE tenant_id = \$1 AND role = 'owner'`).
		WithArgs("t1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(1)))

	n, err := repo.CountOwnersByTenant(context.Background(), "t1")
	if err != nil {
		t.Fatalf("CountOwnersByTenant: %v", err)
	}
	if n != 1 {
		t.Errorf("owners = %d, want 1", n)
	}
}

func TestChangeRole_NoMembership(t *testing.T) {
	repo, mock, conn := newRepoWithMock(t)
	defer conn.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id FROM tenant_memberships WHERE tenant_id = \$1 AND role = 'owner' ORDER BY id FOR UPDATE`).
		WithArgs("t1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("m1"))
	mock.ExpectQuery(`FROM tenant_memberships WHERE user_id = \$1 AND tenant_id = \$2 FOR UPDATE`).
		WithArgs("u1", "t1").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectCommit()

	_, m, err := repo.ChangeRole(context.Background(), "u1", "t1", domain.RoleAdmin)
	if err != nil || m != nil {
		t.Fatalf("got %+v, %v; want nil, nil", m, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestChangeRole_LastOwnerRollsBack(t *testing.T) {
	repo, mock, conn := newRepoWithMock(t)
	defer conn.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`role = 'owner' ORDER BY id FOR UPDATE`).
		WithArgs("t1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("m1"))
	mock.ExpectQuery(`FROM tenant_memberships WHERE user_id = \$1 AND tenant_id = \$2 FOR UPDATE`).
		WithArgs("u1", "t1").
		WillReturnRows(sqlmock.NewRows(membershipColumns).AddRow("m1", "u1", "t1", "owner", time.Now()))
	mock.ExpectRollback()

	_, _, err := repo.ChangeRole(context.Background(), "u1", "t1", domain.RoleAdmin)
	if !errors.Is(err, domain.ErrLastOwner) {
		t.Fatalf("err = %v, want ErrLastOwner", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestChangeRole_DemotesOneOfTwoOwners(t *testing.T) {
	repo, mock, conn := newRepoWithMock(t)
	defer conn.Close()

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery(`role = 'owner' ORDER BY id FOR UPDATE`).
		WithArgs("t1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("m1").AddRow("m2"))
	mock.ExpectQuery(`FROM tenant_memberships WHERE user_id = \$1 AND tenant_id = \$2 FOR UPDATE`).
		WithArgs("u1", "t1").
		WillReturnRows(sqlmock.NewRows(membershipColumns).AddRow("m1", "u1", "t1", "owner", now))
	mock.ExpectQuery(`UPDATE tenant_memberships SET role = \$3`).
		WithArgs("u1", "t1", "admin").
		WillReturnRows(sqlmock.NewRows(membershipColumns).AddRow("m1", "u1", "t1", "admin", now))
	mock.ExpectCommit()

	prev, m, err := repo.ChangeRole(context.Background(), "u1", "t1", domain.RoleAdmin)
	if err != nil {
		t.Fatalf("ChangeRole: %v", err)
	}
	if prev != domain.RoleOwner || m == nil || m.Role != domain.RoleAdmin {
		t.Fatalf("got %q, %+v", prev, m)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestCreateMembership_RejectsUnknownRole(t *testing.T) {
	repo, _, conn := newRepoWithMock(t)
	defer conn.Close()

	err := repo.CreateMembership(context.Background(), &domain.Membership{ID: "m1", Role: "member"})
	if err == nil {
		t.Fatal("CreateMembership should reject unknown roles")
	}
}
