package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// Supported sql drivers.
const (
	SQLiteDriver   = "sqlite3"
	PostgresDriver = "postgres"
)

const pgUniqueViolationCode = "23505"

var _ LibraryStorage = (*sqlLibraryStorage)(nil)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		email TEXT NOT NULL,
		full_name TEXT NOT NULL,
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS tokens (
		token TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL REFERENCES users(id)
	)`,
	`CREATE TABLE IF NOT EXISTS books (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL,
		author TEXT NOT NULL,
		isbn TEXT NOT NULL UNIQUE,
		category TEXT NOT NULL,
		total_copies INTEGER NOT NULL,
		available_copies INTEGER NOT NULL CHECK (available_copies >= 0)
	)`,
	`CREATE TABLE IF NOT EXISTS loans (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL REFERENCES users(id),
		book_id INTEGER NOT NULL REFERENCES books(id),
		borrowed_at TIMESTAMP NOT NULL,
		returned_at TIMESTAMP NULL
	)`,
	`CREATE INDEX IF NOT EXISTS loans_user_id_idx ON loans(user_id)`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id BIGSERIAL PRIMARY KEY,
		username TEXT NOT NULL UNIQUE,
		email TEXT NOT NULL,
		full_name TEXT NOT NULL,
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS tokens (
		token TEXT PRIMARY KEY,
		user_id BIGINT NOT NULL REFERENCES users(id)
	)`,
	`CREATE TABLE IF NOT EXISTS books (
		id BIGSERIAL PRIMARY KEY,
		title TEXT NOT NULL,
		author TEXT NOT NULL,
		isbn TEXT NOT NULL UNIQUE,
		category TEXT NOT NULL,
		total_copies INTEGER NOT NULL,
		available_copies INTEGER NOT NULL CHECK (available_copies >= 0)
	)`,
	`CREATE TABLE IF NOT EXISTS loans (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL REFERENCES users(id),
		book_id BIGINT NOT NULL REFERENCES books(id),
		borrowed_at TIMESTAMPTZ NOT NULL,
		returned_at TIMESTAMPTZ NULL
	)`,
	`CREATE INDEX IF NOT EXISTS loans_user_id_idx ON loans(user_id)`,
}

// Queries are written with `?` bindvars and rebound for the driver in use.
const (
	insertUserQuery     = `INSERT INTO users (username, email, full_name, password_hash, role) VALUES (?, ?, ?, ?, ?) RETURNING id`
	updateUserRoleQuery = `UPDATE users SET role = ? WHERE id = ?`
	selectUserQuery     = `SELECT id, username, email, full_name, password_hash, role FROM users WHERE id = ?`
	selectUserByName    = `SELECT id, username, email, full_name, password_hash, role FROM users WHERE username = ?`
	insertTokenQuery    = `INSERT INTO tokens (token, user_id) VALUES (?, ?)`
	selectTokenQuery    = `SELECT user_id FROM tokens WHERE token = ?`
	insertBookQuery     = `INSERT INTO books (title, author, isbn, category, total_copies, available_copies) VALUES (?, ?, ?, ?, ?, ?) RETURNING id`
	selectBookQuery     = `SELECT id, title, author, isbn, category, total_copies, available_copies FROM books WHERE id = ?`
	selectBooksQuery    = `SELECT id, title, author, isbn, category, total_copies, available_copies FROM books ORDER BY id`
	takeCopyQuery       = `UPDATE books SET available_copies = available_copies - 1 WHERE id = ? AND available_copies > 0`
	countBookQuery      = `SELECT COUNT(*) FROM books WHERE id = ?`
	insertLoanQuery     = `INSERT INTO loans (user_id, book_id, borrowed_at, returned_at) VALUES (?, ?, ?, ?) RETURNING id`
	selectUserLoans     = `SELECT id, user_id, book_id, borrowed_at, returned_at FROM loans WHERE user_id = ? ORDER BY id`
)

type sqlLibraryStorage struct {
	logger *zap.Logger
	db     *sqlx.DB
}

// GetSQLDB opens the configured sql database and checks the connection.
func GetSQLDB(config *Config) (*sqlx.DB, error) {
	db, err := sqlx.Connect(config.SQL.Driver, config.SQL.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s database: %w", config.SQL.Driver, err)
	}

	maxOpenConns := config.SQL.MaxOpenConns
	if config.SQL.Driver == SQLiteDriver {
		// sqlite serializes writers anyway, a single connection avoids busy errors.
		maxOpenConns = 1
	}
	if maxOpenConns > 0 {
		db.SetMaxOpenConns(maxOpenConns)
		db.SetMaxIdleConns(maxOpenConns)
	}
	if config.SQL.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(config.SQL.ConnMaxLifetime)
	}
	return db, nil
}

// NewSQLLibraryStorage provides an instance of sql-based library storage
// after creating the missing tables.
func NewSQLLibraryStorage(ctx context.Context, logger *zap.Logger, db *sqlx.DB) (LibraryStorage, error) {
	schema := sqliteSchema
	if db.DriverName() == PostgresDriver {
		schema = postgresSchema
	}
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("sql: apply schema: %w", err)
		}
	}
	return &sqlLibraryStorage{logger: logger, db: db}, nil
}

// Close releases the database connections pool.
func (ss *sqlLibraryStorage) Close() error {
	return ss.db.Close()
}

// isUniqueViolation tells if the error comes from a unique constraint
// rejection on either supported driver.
func isUniqueViolation(err error) bool {
	var pgErr *pq.Error
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}

// AddUser inserts the user then grants the role bound to its assigned id.
func (ss *sqlLibraryStorage) AddUser(ctx context.Context, user User) (User, error) {
	tx, err := ss.db.BeginTxx(ctx, nil)
	if err != nil {
		return User{}, fmt.Errorf("sql: add user: %w", err)
	}
	defer tx.Rollback()

	user.Role = RoleUser
	err = tx.QueryRowxContext(ctx, ss.db.Rebind(insertUserQuery),
		user.Username, user.Email, user.FullName, user.PasswordHash, user.Role).Scan(&user.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return User{}, ErrUsernameTaken
		}
		return User{}, fmt.Errorf("sql: add user: %w", err)
	}

	if role := RoleForUserID(user.ID); role != user.Role {
		if _, err = tx.ExecContext(ctx, ss.db.Rebind(updateUserRoleQuery), role, user.ID); err != nil {
			return User{}, fmt.Errorf("sql: set user role: %w", err)
		}
		user.Role = role
	}

	if err = tx.Commit(); err != nil {
		return User{}, fmt.Errorf("sql: add user: %w", err)
	}
	return user, nil
}

func (ss *sqlLibraryStorage) getUser(ctx context.Context, query string, arg interface{}) (User, error) {
	var user User
	err := ss.db.GetContext(ctx, &user, ss.db.Rebind(query), arg)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("sql: get user: %w", err)
	}
	return user, nil
}

func (ss *sqlLibraryStorage) GetUser(ctx context.Context, id int64) (User, error) {
	return ss.getUser(ctx, selectUserQuery, id)
}

func (ss *sqlLibraryStorage) GetUserByUsername(ctx context.Context, username string) (User, error) {
	return ss.getUser(ctx, selectUserByName, username)
}

func (ss *sqlLibraryStorage) AddToken(ctx context.Context, token string, userID int64) error {
	if _, err := ss.db.ExecContext(ctx, ss.db.Rebind(insertTokenQuery), token, userID); err != nil {
		return fmt.Errorf("sql: add token: %w", err)
	}
	return nil
}

func (ss *sqlLibraryStorage) GetUserIDByToken(ctx context.Context, token string) (int64, error) {
	var id int64
	err := ss.db.GetContext(ctx, &id, ss.db.Rebind(selectTokenQuery), token)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrInvalidToken
	}
	if err != nil {
		return 0, fmt.Errorf("sql: get token: %w", err)
	}
	return id, nil
}

func (ss *sqlLibraryStorage) AddBook(ctx context.Context, book Book) (Book, error) {
	err := ss.db.QueryRowxContext(ctx, ss.db.Rebind(insertBookQuery),
		book.Title, book.Author, book.ISBN, book.Category, book.TotalCopies, book.AvailableCopies).Scan(&book.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return Book{}, ErrISBNTaken
		}
		return Book{}, fmt.Errorf("sql: add book: %w", err)
	}
	return book, nil
}

func (ss *sqlLibraryStorage) GetBook(ctx context.Context, id int64) (Book, error) {
	var book Book
	err := ss.db.GetContext(ctx, &book, ss.db.Rebind(selectBookQuery), id)
	if errors.Is(err, sql.ErrNoRows) {
		return Book{}, ErrBookNotFound
	}
	if err != nil {
		return Book{}, fmt.Errorf("sql: get book: %w", err)
	}
	return book, nil
}

func (ss *sqlLibraryStorage) GetAllBooks(ctx context.Context) ([]Book, error) {
	books := []Book{}
	if err := ss.db.SelectContext(ctx, &books, selectBooksQuery); err != nil {
		return nil, fmt.Errorf("sql: get all books: %w", err)
	}
	return books, nil
}

// Borrow takes one copy with a conditional decrement and records the loan
// within the same transaction.
func (ss *sqlLibraryStorage) Borrow(ctx context.Context, loan Loan) (Loan, error) {
	tx, err := ss.db.BeginTxx(ctx, nil)
	if err != nil {
		return Loan{}, fmt.Errorf("sql: borrow: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, ss.db.Rebind(takeCopyQuery), loan.BookID)
	if err != nil {
		return Loan{}, fmt.Errorf("sql: take copy: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Loan{}, fmt.Errorf("sql: take copy: %w", err)
	}
	if n == 0 {
		var count int
		if err = tx.GetContext(ctx, &count, ss.db.Rebind(countBookQuery), loan.BookID); err != nil {
			return Loan{}, fmt.Errorf("sql: check book: %w", err)
		}
		if count == 0 {
			return Loan{}, ErrBookNotFound
		}
		return Loan{}, ErrNoAvailableCopies
	}

	err = tx.QueryRowxContext(ctx, ss.db.Rebind(insertLoanQuery),
		loan.UserID, loan.BookID, loan.BorrowedAt, loan.ReturnedAt).Scan(&loan.ID)
	if err != nil {
		return Loan{}, fmt.Errorf("sql: add loan: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return Loan{}, fmt.Errorf("sql: borrow: %w", err)
	}
	return loan, nil
}

func (ss *sqlLibraryStorage) GetLoansByUser(ctx context.Context, userID int64) ([]Loan, error) {
	loans := []Loan{}
	if err := ss.db.SelectContext(ctx, &loans, ss.db.Rebind(selectUserLoans), userID); err != nil {
		return nil, fmt.Errorf("sql: get user loans: %w", err)
	}
	return loans, nil
}
