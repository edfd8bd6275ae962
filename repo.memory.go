package main

import (
	"context"
	"sort"
	"sync"
)

var _ LibraryStorage = (*memoryLibraryStorage)(nil)

// memoryLibraryStorage keeps every entity in process memory. A single
// lock covers all tables so that borrow stays atomic.
type memoryLibraryStorage struct {
	mu             sync.RWMutex
	users          map[int64]User
	userByUsername map[string]int64
	tokens         map[string]int64
	books          map[int64]Book
	bookByISBN     map[string]int64
	loans          []Loan
	nextUserID     int64
	nextBookID     int64
	nextLoanID     int64
}

// NewMemoryLibraryStorage provides an empty in-memory storage.
func NewMemoryLibraryStorage() LibraryStorage {
	return &memoryLibraryStorage{
		users:          make(map[int64]User),
		userByUsername: make(map[string]int64),
		tokens:         make(map[string]int64),
		books:          make(map[int64]Book),
		bookByISBN:     make(map[string]int64),
		nextUserID:     1,
		nextBookID:     1,
		nextLoanID:     1,
	}
}

func (ms *memoryLibraryStorage) Close() error {
	return nil
}

// AddUser inserts a new user with the next available id.
func (ms *memoryLibraryStorage) AddUser(_ context.Context, user User) (User, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if _, found := ms.userByUsername[user.Username]; found {
		return User{}, ErrUsernameTaken
	}
	user.ID = ms.nextUserID
	user.Role = RoleForUserID(user.ID)
	ms.nextUserID++
	ms.users[user.ID] = user
	ms.userByUsername[user.Username] = user.ID
	return user, nil
}

func (ms *memoryLibraryStorage) GetUser(_ context.Context, id int64) (User, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	user, found := ms.users[id]
	if !found {
		return User{}, ErrUserNotFound
	}
	return user, nil
}

func (ms *memoryLibraryStorage) GetUserByUsername(_ context.Context, username string) (User, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	id, found := ms.userByUsername[username]
	if !found {
		return User{}, ErrUserNotFound
	}
	return ms.users[id], nil
}

func (ms *memoryLibraryStorage) AddToken(_ context.Context, token string, userID int64) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.tokens[token] = userID
	return nil
}

func (ms *memoryLibraryStorage) GetUserIDByToken(_ context.Context, token string) (int64, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	id, found := ms.tokens[token]
	if !found {
		return 0, ErrInvalidToken
	}
	return id, nil
}

// AddBook inserts a new book with the next available id.
func (ms *memoryLibraryStorage) AddBook(_ context.Context, book Book) (Book, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if _, found := ms.bookByISBN[book.ISBN]; found {
		return Book{}, ErrISBNTaken
	}
	book.ID = ms.nextBookID
	ms.nextBookID++
	ms.books[book.ID] = book
	ms.bookByISBN[book.ISBN] = book.ID
	return book, nil
}

func (ms *memoryLibraryStorage) GetBook(_ context.Context, id int64) (Book, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	book, found := ms.books[id]
	if !found {
		return Book{}, ErrBookNotFound
	}
	return book, nil
}

// GetAllBooks returns all books ordered by id.
func (ms *memoryLibraryStorage) GetAllBooks(_ context.Context) ([]Book, error) {
	ms.mu.RLock()
	books := make([]Book, 0, len(ms.books))
	for _, b := range ms.books {
		books = append(books, b)
	}
	ms.mu.RUnlock()
	sort.Slice(books, func(i, j int) bool { return books[i].ID < books[j].ID })
	return books, nil
}

// Borrow takes one copy of the book and records the loan.
func (ms *memoryLibraryStorage) Borrow(_ context.Context, loan Loan) (Loan, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	book, found := ms.books[loan.BookID]
	if !found {
		return Loan{}, ErrBookNotFound
	}
	if book.AvailableCopies <= 0 {
		return Loan{}, ErrNoAvailableCopies
	}
	book.AvailableCopies--
	ms.books[book.ID] = book

	loan.ID = ms.nextLoanID
	ms.nextLoanID++
	ms.loans = append(ms.loans, loan)
	return loan, nil
}

// GetLoansByUser returns the user loans in creation order.
func (ms *memoryLibraryStorage) GetLoansByUser(_ context.Context, userID int64) ([]Loan, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	loans := []Loan{}
	for _, l := range ms.loans {
		if l.UserID == userID {
			loans = append(loans, l)
		}
	}
	return loans, nil
}
