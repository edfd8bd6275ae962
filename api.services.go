package main

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

type LibraryServiceProvider interface {
	Signup(ctx context.Context, user User, password string) (User, error)
	Login(ctx context.Context, username, password string) (string, error)
	Authenticate(ctx context.Context, token string) (User, error)
	GetUser(ctx context.Context, id int64) (User, error)
	CreateBook(ctx context.Context, book Book) (Book, error)
	SearchBooks(ctx context.Context, filter BookFilter) ([]Book, error)
	Borrow(ctx context.Context, caller User, loan Loan) (Loan, error)
	MyLoans(ctx context.Context, userID int64) ([]Loan, error)
}

// LibraryService holds the lending rules on top of the storage.
// When queue is nil no lending event is published.
type LibraryService struct {
	logger     *zap.Logger
	config     *Config
	clock      Clocker
	idsHandler UIDHandler
	hasher     PasswordHasher
	tokens     TokenGenerator
	storage    LibraryStorage
	queue      Queuer
}

func NewLibraryService(
	logger *zap.Logger,
	config *Config,
	clock Clocker,
	idsHandler UIDHandler,
	hasher PasswordHasher,
	tokens TokenGenerator,
	storage LibraryStorage,
	queue Queuer,
) LibraryServiceProvider {
	return &LibraryService{
		logger:     logger,
		config:     config,
		clock:      clock,
		idsHandler: idsHandler,
		hasher:     hasher,
		tokens:     tokens,
		storage:    storage,
		queue:      queue,
	}
}

// publish pushes the event to the journal queue. Failures are only logged.
func (ls *LibraryService) publish(ctx context.Context, event LendingEvent) {
	if ls.queue == nil {
		return
	}
	event.ID = ls.idsHandler.Generate(EventIDPrefix)
	event.OccurredAt = ls.clock.Now().UTC()
	if err := ls.queue.Push(context.WithoutCancel(ctx), event.Type, event); err != nil {
		ls.logger.Error("service: failed to push event to queue", zap.String("qid", event.Type), zap.Any("event", event), zap.Error(err))
	}
}

// Signup hashes the password and registers the user. The storage grants the role.
func (ls *LibraryService) Signup(ctx context.Context, user User, password string) (User, error) {
	hash, err := ls.hasher.Hash(password)
	if err != nil {
		return User{}, err
	}
	user.PasswordHash = hash
	user, err = ls.storage.AddUser(ctx, user)
	if err != nil {
		return User{}, err
	}
	ls.publish(ctx, LendingEvent{Type: EventUserSignedUp, UserID: user.ID})
	return user, nil
}

// Login checks the credentials and issues a new access token.
func (ls *LibraryService) Login(ctx context.Context, username, password string) (string, error) {
	user, err := ls.storage.GetUserByUsername(ctx, username)
	if errors.Is(err, ErrUserNotFound) {
		return "", ErrInvalidCredentials
	}
	if err != nil {
		return "", err
	}
	if !ls.hasher.Verify(user.PasswordHash, password) {
		return "", ErrInvalidCredentials
	}

	token, err := ls.tokens.Generate()
	if err != nil {
		return "", err
	}
	if err = ls.storage.AddToken(ctx, token, user.ID); err != nil {
		return "", err
	}
	return token, nil
}

// Authenticate resolves the user owning the token.
func (ls *LibraryService) Authenticate(ctx context.Context, token string) (User, error) {
	id, err := ls.storage.GetUserIDByToken(ctx, token)
	if err != nil {
		return User{}, err
	}
	user, err := ls.storage.GetUser(ctx, id)
	if errors.Is(err, ErrUserNotFound) {
		return User{}, ErrInvalidToken
	}
	return user, err
}

func (ls *LibraryService) GetUser(ctx context.Context, id int64) (User, error) {
	return ls.storage.GetUser(ctx, id)
}

// CreateBook catalogs a new book with all its copies available.
func (ls *LibraryService) CreateBook(ctx context.Context, book Book) (Book, error) {
	book.AvailableCopies = book.TotalCopies
	book, err := ls.storage.AddBook(ctx, book)
	if err != nil {
		return Book{}, err
	}
	ls.publish(ctx, LendingEvent{Type: EventBookCreated, BookID: book.ID})
	return book, nil
}

// SearchBooks returns the books matching the filter ordered by id.
func (ls *LibraryService) SearchBooks(ctx context.Context, filter BookFilter) ([]Book, error) {
	books, err := ls.storage.GetAllBooks(ctx)
	if err != nil {
		return nil, err
	}
	found := []Book{}
	for _, b := range books {
		if filter.Match(b) {
			found = append(found, b)
		}
	}
	return found, nil
}

// Borrow lends one copy of the book to the caller. Borrowing on behalf
// of another user is not allowed, even for the admin.
func (ls *LibraryService) Borrow(ctx context.Context, caller User, loan Loan) (Loan, error) {
	if loan.UserID != caller.ID {
		return Loan{}, ErrNotOwner
	}
	loan.BorrowedAt = ls.clock.Now().UTC()
	loan.ReturnedAt = nil
	loan, err := ls.storage.Borrow(ctx, loan)
	if err != nil {
		return Loan{}, err
	}
	ls.publish(ctx, LendingEvent{Type: EventBookBorrowed, UserID: loan.UserID, BookID: loan.BookID, LoanID: loan.ID})
	return loan, nil
}

func (ls *LibraryService) MyLoans(ctx context.Context, userID int64) ([]Loan, error) {
	return ls.storage.GetLoansByUser(ctx, userID)
}
