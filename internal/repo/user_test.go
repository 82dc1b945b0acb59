package repo

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

var userColumns = []string{"id", "username", "password_hash", "token_version", "created_at"}

func TestUserRepo_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(`INSERT INTO users \(username, password_hash\)`).
		WithArgs("alice", "$2a$hash").
		WillReturnRows(sqlmock.NewRows(userColumns).AddRow(1, "alice", "$2a$hash", 0, now))

	repo := NewUserRepo(db)
	user, err := repo.Create(context.Background(), "alice", "$2a$hash")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if user.ID != 1 || user.Username != "alice" || user.TokenVersion != 0 {
		t.Errorf("unexpected user: %+v", user)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestUserRepo_Create_Duplicate(t *testing.T) {
	driverErrs := map[string]error{
		"pq":  &pq.Error{Code: "23505"},
		"pgx": &pgconn.PgError{Code: "23505"},
	}
	for name, driverErr := range driverErrs {
		t.Run(name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			if err != nil {
				t.Fatalf("sqlmock.New: %v", err)
			}
			defer db.Close()

			mock.ExpectQuery(`INSERT INTO users`).
				WithArgs("alice", "$2a$hash").
				WillReturnError(driverErr)

			_, err = NewUserRepo(db).Create(context.Background(), "alice", "$2a$hash")
			if !errors.Is(err, ErrDuplicateUsername) {
				t.Errorf("expected ErrDuplicateUsername, got: %v", err)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("expectations: %v", err)
			}
		})
	}
}

func TestUserRepo_Create_OtherError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`INSERT INTO users`).
		WillReturnError(&pq.Error{Code: "23502"})

	_, err = NewUserRepo(db).Create(context.Background(), "alice", "")
	if err == nil || errors.Is(err, ErrDuplicateUsername) {
		t.Errorf("expected raw driver error, got: %v", err)
	}
}

func TestUserRepo_GetByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`SELECT id, username, password_hash, token_version, created_at`).
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows(userColumns).AddRow(1, "bob", "$2a$hash", 4, time.Now()))

	repo := NewUserRepo(db)
	user, err := repo.GetByID(context.Background(), 1)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if user.ID != 1 || user.Username != "bob" || user.TokenVersion != 4 {
		t.Errorf("unexpected user: %+v", user)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestUserRepo_GetByID_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`SELECT id, username, password_hash, token_version, created_at`).
		WithArgs(999).
		WillReturnError(sql.ErrNoRows)

	repo := NewUserRepo(db)
	_, err = repo.GetByID(context.Background(), 999)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestUserRepo_GetByUsername(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`SELECT id, username, password_hash, token_version, created_at`).
		WithArgs("charlie").
		WillReturnRows(sqlmock.NewRows(userColumns).AddRow(2, "charlie", "$2a$hash", 0, time.Now()))

	repo := NewUserRepo(db)
	user, err := repo.GetByUsername(context.Background(), "charlie")
	if err != nil {
		t.Fatalf("GetByUsername: %v", err)
	}
	if user.ID != 2 || user.Username != "charlie" || user.PasswordHash != "$2a$hash" {
		t.Errorf("unexpected user: %+v", user)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestUserRepo_BumpVersion(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`UPDATE users SET token_version = token_version \+ 1 WHERE id = \$1 RETURNING token_version`).
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"token_version"}).AddRow(3))
	mock.ExpectQuery(`UPDATE users SET token_version`).
		WithArgs(8).
		WillReturnError(sql.ErrNoRows)

	repo := NewUserRepo(db)
	v, err := repo.BumpVersion(context.Background(), 7)
	if err != nil {
		t.Fatalf("BumpVersion: %v", err)
	}
	if v != 3 {
		t.Errorf("version: got %d, want 3", v)
	}
	if _, err := repo.BumpVersion(context.Background(), 8); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestUserRepo_BumpAllVersions(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(`UPDATE users SET token_version = token_version \+ 1$`).
		WillReturnResult(sqlmock.NewResult(0, 42))

	n, err := NewUserRepo(db).BumpAllVersions(context.Background())
	if err != nil {
		t.Fatalf("BumpAllVersions: %v", err)
	}
	if n != 42 {
		t.Errorf("rows: got %d, want 42", n)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestUserRepo_BumpAllVersions_Error(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(`UPDATE users SET token_version`).
		WillReturnError(sql.ErrConnDone)

	if _, err := NewUserRepo(db).BumpAllVersions(context.Background()); !errors.Is(err, sql.ErrConnDone) {
		t.Errorf("expected sql.ErrConnDone, got: %v", err)
	}
}

func TestUserRepo_ListAndCount(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(`SELECT id, username, token_version, created_at FROM users ORDER BY id LIMIT \$1 OFFSET \$2`).
		WithArgs(10, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "token_version", "created_at"}).
			AddRow(1, "alice", 2, now).
			AddRow(2, "bob", 2, now))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM users`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	repo := NewUserRepo(db)
	users, err := repo.List(context.Background(), 10, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(users) != 2 || users[1].Username != "bob" {
		t.Errorf("unexpected users: %+v", users)
	}
	n, err := repo.Count(context.Background())
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 2 {
		t.Errorf("count: got %d, want 2", n)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}
