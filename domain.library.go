package main

import (
	"context"
	"errors"
	"time"
)

// Role defines what a user is allowed to do.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// FirstUserID is the id of the first registered user, granted the admin role.
const FirstUserID int64 = 1

// RoleForUserID returns the role a user gets when registered under the given id.
func RoleForUserID(id int64) Role {
	if id == FirstUserID {
		return RoleAdmin
	}
	return RoleUser
}

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrUsernameTaken      = errors.New("username already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrForbidden          = errors.New("admin privileges required")
	ErrBookNotFound       = errors.New("book not found")
	ErrISBNTaken          = errors.New("isbn already exists")
	ErrNoAvailableCopies  = errors.New("no available copies")
	ErrNotOwner           = errors.New("cannot borrow for another user")
)

// User represents a library member. The first registered member is the admin.
type User struct {
	ID           int64  `json:"id" db:"id"`
	Username     string `json:"username" db:"username"`
	Email        string `json:"email" db:"email"`
	FullName     string `json:"full_name" db:"full_name"`
	PasswordHash string `json:"password_hash" db:"password_hash"`
	Role         Role   `json:"role" db:"role"`
}

// IsAdmin tells if the user holds the admin role.
func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Book represents a catalog entry with its copies inventory.
type Book struct {
	ID              int64  `json:"id" db:"id"`
	Title           string `json:"title" db:"title"`
	Author          string `json:"author" db:"author"`
	ISBN            string `json:"isbn" db:"isbn"`
	Category        string `json:"category" db:"category"`
	TotalCopies     int    `json:"total_copies" db:"total_copies"`
	AvailableCopies int    `json:"available_copies" db:"available_copies"`
}

// Loan records a single copy lent to a user.
type Loan struct {
	ID         int64      `json:"id" db:"id"`
	UserID     int64      `json:"user_id" db:"user_id"`
	BookID     int64      `json:"book_id" db:"book_id"`
	BorrowedAt time.Time  `json:"borrowed_at" db:"borrowed_at"`
	ReturnedAt *time.Time `json:"returned_at" db:"returned_at"`
}

// BookFilter narrows down a books search. Nil fields are ignored.
type BookFilter struct {
	Category  *string
	Available *bool
}

// Match tells if a book satisfies the filter.
func (f BookFilter) Match(b Book) bool {
	if f.Category != nil && b.Category != *f.Category {
		return false
	}
	if f.Available != nil && (b.AvailableCopies > 0) != *f.Available {
		return false
	}
	return true
}

// UserStorage defines possible operations on user entity. AddUser assigns
// the next id with its role and returns ErrUsernameTaken when the username
// is in use.
type UserStorage interface {
	AddUser(ctx context.Context, user User) (User, error)
	GetUser(ctx context.Context, id int64) (User, error)
	GetUserByUsername(ctx context.Context, username string) (User, error)
}

// TokenStorage maps opaque access tokens to user ids.
type TokenStorage interface {
	AddToken(ctx context.Context, token string, userID int64) error
	GetUserIDByToken(ctx context.Context, token string) (int64, error)
}

// BookStorage defines possible operations on book entity. AddBook assigns
// the next id and returns ErrISBNTaken when the isbn is already cataloged.
type BookStorage interface {
	AddBook(ctx context.Context, book Book) (Book, error)
	GetBook(ctx context.Context, id int64) (Book, error)
	GetAllBooks(ctx context.Context) ([]Book, error)
}

// LoanStorage defines possible operations on loan entity. Borrow must
// decrement the book available copies and record the loan atomically.
type LoanStorage interface {
	Borrow(ctx context.Context, loan Loan) (Loan, error)
	GetLoansByUser(ctx context.Context, userID int64) ([]Loan, error)
}

// LibraryStorage groups all the repositories needed by the lending service.
type LibraryStorage interface {
	UserStorage
	TokenStorage
	BookStorage
	LoanStorage
	Close() error
}
