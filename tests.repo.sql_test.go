package main

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// newTestSQLiteStorage opens a sqlite database file in a temporary folder.
func newTestSQLiteStorage(t *testing.T) LibraryStorage {
	t.Helper()
	config := &Config{
		SQL: SQLConfig{
			Driver: SQLiteDriver,
			DSN:    "file:" + filepath.Join(t.TempDir(), "lending.sqlite") + "?_busy_timeout=5000&_foreign_keys=1",
		},
	}
	db, err := GetSQLDB(config)
	require.NoError(t, err)
	ss, err := NewSQLLibraryStorage(context.Background(), zap.NewNop(), db)
	require.NoError(t, err)
	t.Cleanup(func() { ss.Close() })
	return ss
}

func TestSQLiteLibraryStorage(t *testing.T) {
	testLibraryStorage(t, newTestSQLiteStorage)
}

// TestSQLiteForeignKeys ensures loans cannot point to unknown users.
func TestSQLiteForeignKeys(t *testing.T) {
	ss := newTestSQLiteStorage(t)
	ctx := context.Background()
	book, err := ss.AddBook(ctx, Book{Title: "Go", Author: "Rob Pike", ISBN: "978-0000000001", Category: "Programming", TotalCopies: 1, AvailableCopies: 1})
	require.NoError(t, err)

	_, err = ss.Borrow(ctx, Loan{UserID: 42, BookID: book.ID, BorrowedAt: time.Now()})
	assert.Error(t, err)

	// the failed loan insert must roll back the copy decrement.
	stored, err := ss.GetBook(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.AvailableCopies)
}

// newPostgresMock returns a storage on top of a mocked postgres connection.
func newPostgresMock(t *testing.T) (*sqlLibraryStorage, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &sqlLibraryStorage{logger: zap.NewNop(), db: sqlx.NewDb(db, PostgresDriver)}, mock
}

func pgQuery(query string) string {
	return sqlx.Rebind(sqlx.DOLLAR, query)
}

// TestNewSQLLibraryStoragePostgresSchema ensures the postgres schema is applied on postgres.
func TestNewSQLLibraryStoragePostgresSchema(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer db.Close()
	for _, stmt := range postgresSchema {
		mock.ExpectExec(stmt).WillReturnResult(sqlmock.NewResult(0, 0))
	}
	_, err = NewSQLLibraryStorage(context.Background(), zap.NewNop(), sqlx.NewDb(db, PostgresDriver))
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestPostgresAddUser ensures the first user is promoted within the insert
// transaction and unique violations map to ErrUsernameTaken.
func TestPostgresAddUser(t *testing.T) {
	ctx := context.Background()
	user := User{Username: "john_doe", Email: "john@example.com", FullName: "John Doe", PasswordHash: "hash"}

	t.Run("first user", func(t *testing.T) {
		ss, mock := newPostgresMock(t)
		mock.ExpectBegin()
		mock.ExpectQuery(pgQuery(insertUserQuery)).
			WithArgs("john_doe", "john@example.com", "John Doe", "hash", "user").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
		mock.ExpectExec(pgQuery(updateUserRoleQuery)).
			WithArgs("admin", 1).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		created, err := ss.AddUser(ctx, user)
		require.NoError(t, err)
		assert.Equal(t, int64(1), created.ID)
		assert.Equal(t, RoleAdmin, created.Role)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("next user", func(t *testing.T) {
		ss, mock := newPostgresMock(t)
		mock.ExpectBegin()
		mock.ExpectQuery(pgQuery(insertUserQuery)).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(2))
		mock.ExpectCommit()

		created, err := ss.AddUser(ctx, user)
		require.NoError(t, err)
		assert.Equal(t, RoleUser, created.Role)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate username", func(t *testing.T) {
		ss, mock := newPostgresMock(t)
		mock.ExpectBegin()
		mock.ExpectQuery(pgQuery(insertUserQuery)).
			WillReturnError(&pq.Error{Code: pgUniqueViolationCode})
		mock.ExpectRollback()

		_, err := ss.AddUser(ctx, user)
		assert.ErrorIs(t, err, ErrUsernameTaken)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("connection failure", func(t *testing.T) {
		ss, mock := newPostgresMock(t)
		mock.ExpectBegin().WillReturnError(errors.New("connection refused"))

		_, err := ss.AddUser(ctx, user)
		assert.Error(t, err)
		assert.False(t, errors.Is(err, ErrUsernameTaken))
	})
}

// TestPostgresAddBookDuplicate ensures unique violations on isbn map to ErrISBNTaken.
func TestPostgresAddBookDuplicate(t *testing.T) {
	ss, mock := newPostgresMock(t)
	mock.ExpectQuery(pgQuery(insertBookQuery)).
		WillReturnError(&pq.Error{Code: pgUniqueViolationCode})

	_, err := ss.AddBook(context.Background(), Book{Title: "Go", ISBN: "978-0000000001", TotalCopies: 1, AvailableCopies: 1})
	assert.ErrorIs(t, err, ErrISBNTaken)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestPostgresBorrow ensures a rejected decrement tells apart missing books and exhausted ones.
func TestPostgresBorrow(t *testing.T) {
	ctx := context.Background()
	loan := Loan{UserID: 1, BookID: 3, BorrowedAt: time.Date(2023, 7, 2, 0, 0, 0, 0, time.UTC)}

	t.Run("copy taken", func(t *testing.T) {
		ss, mock := newPostgresMock(t)
		mock.ExpectBegin()
		mock.ExpectExec(pgQuery(takeCopyQuery)).WithArgs(3).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(pgQuery(insertLoanQuery)).
			WithArgs(1, 3, loan.BorrowedAt, nil).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(9))
		mock.ExpectCommit()

		created, err := ss.Borrow(ctx, loan)
		require.NoError(t, err)
		assert.Equal(t, int64(9), created.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	testCases := []struct {
		name  string
		count int
		err   error
	}{
		{"no copies left", 1, ErrNoAvailableCopies},
		{"unknown book", 0, ErrBookNotFound},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ss, mock := newPostgresMock(t)
			mock.ExpectBegin()
			mock.ExpectExec(pgQuery(takeCopyQuery)).WithArgs(3).WillReturnResult(sqlmock.NewResult(0, 0))
			mock.ExpectQuery(pgQuery(countBookQuery)).WithArgs(3).
				WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(tc.count))
			mock.ExpectRollback()

			_, err := ss.Borrow(ctx, loan)
			assert.ErrorIs(t, err, tc.err)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

// TestIsUniqueViolation ensures only unique violations are recognized.
func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, isUniqueViolation(&pq.Error{Code: pgUniqueViolationCode}))
	assert.False(t, isUniqueViolation(&pq.Error{Code: "23503"}))
	assert.False(t, isUniqueViolation(errors.New("unique")))
}
