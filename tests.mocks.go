package main

import (
	"context"
	"time"
)

// This file contains mocks definitions needed to perform unit tests.

var (
	_ LibraryStorage         = (*MockLibraryStorage)(nil)
	_ LibraryServiceProvider = (*MockLibraryService)(nil)
	_ Queuer                 = (*MockQueue)(nil)
	_ Journal                = (*MockJournal)(nil)
)

type MockLibraryStorage struct {
	AddUserFunc           func(ctx context.Context, user User) (User, error)
	GetUserFunc           func(ctx context.Context, id int64) (User, error)
	GetUserByUsernameFunc func(ctx context.Context, username string) (User, error)
	AddTokenFunc          func(ctx context.Context, token string, userID int64) error
	GetUserIDByTokenFunc  func(ctx context.Context, token string) (int64, error)
	AddBookFunc           func(ctx context.Context, book Book) (Book, error)
	GetBookFunc           func(ctx context.Context, id int64) (Book, error)
	GetAllBooksFunc       func(ctx context.Context) ([]Book, error)
	BorrowFunc            func(ctx context.Context, loan Loan) (Loan, error)
	GetLoansByUserFunc    func(ctx context.Context, userID int64) ([]Loan, error)
}

// AddUser mocks the behavior of user creation by the repository.
func (m *MockLibraryStorage) AddUser(ctx context.Context, user User) (User, error) {
	return m.AddUserFunc(ctx, user)
}

// GetUser mocks the behavior of retrieving a user by the repository.
func (m *MockLibraryStorage) GetUser(ctx context.Context, id int64) (User, error) {
	return m.GetUserFunc(ctx, id)
}

func (m *MockLibraryStorage) GetUserByUsername(ctx context.Context, username string) (User, error) {
	return m.GetUserByUsernameFunc(ctx, username)
}

func (m *MockLibraryStorage) AddToken(ctx context.Context, token string, userID int64) error {
	return m.AddTokenFunc(ctx, token, userID)
}

func (m *MockLibraryStorage) GetUserIDByToken(ctx context.Context, token string) (int64, error) {
	return m.GetUserIDByTokenFunc(ctx, token)
}

// AddBook mocks the behavior of book creation by the repository.
func (m *MockLibraryStorage) AddBook(ctx context.Context, book Book) (Book, error) {
	return m.AddBookFunc(ctx, book)
}

func (m *MockLibraryStorage) GetBook(ctx context.Context, id int64) (Book, error) {
	return m.GetBookFunc(ctx, id)
}

// GetAllBooks mocks the behavior of retrieving all books by the repository.
func (m *MockLibraryStorage) GetAllBooks(ctx context.Context) ([]Book, error) {
	return m.GetAllBooksFunc(ctx)
}

// Borrow mocks the behavior of lending a copy by the repository.
func (m *MockLibraryStorage) Borrow(ctx context.Context, loan Loan) (Loan, error) {
	return m.BorrowFunc(ctx, loan)
}

func (m *MockLibraryStorage) GetLoansByUser(ctx context.Context, userID int64) ([]Loan, error) {
	return m.GetLoansByUserFunc(ctx, userID)
}

func (m *MockLibraryStorage) Close() error {
	return nil
}

// MockLibraryService lets handlers tests control the service answers.
type MockLibraryService struct {
	SignupFunc       func(ctx context.Context, user User, password string) (User, error)
	LoginFunc        func(ctx context.Context, username, password string) (string, error)
	AuthenticateFunc func(ctx context.Context, token string) (User, error)
	GetUserFunc      func(ctx context.Context, id int64) (User, error)
	CreateBookFunc   func(ctx context.Context, book Book) (Book, error)
	SearchBooksFunc  func(ctx context.Context, filter BookFilter) ([]Book, error)
	BorrowFunc       func(ctx context.Context, caller User, loan Loan) (Loan, error)
	MyLoansFunc      func(ctx context.Context, userID int64) ([]Loan, error)
}

func (m *MockLibraryService) Signup(ctx context.Context, user User, password string) (User, error) {
	return m.SignupFunc(ctx, user, password)
}

func (m *MockLibraryService) Login(ctx context.Context, username, password string) (string, error) {
	return m.LoginFunc(ctx, username, password)
}

func (m *MockLibraryService) Authenticate(ctx context.Context, token string) (User, error) {
	return m.AuthenticateFunc(ctx, token)
}

func (m *MockLibraryService) GetUser(ctx context.Context, id int64) (User, error) {
	return m.GetUserFunc(ctx, id)
}

func (m *MockLibraryService) CreateBook(ctx context.Context, book Book) (Book, error) {
	return m.CreateBookFunc(ctx, book)
}

func (m *MockLibraryService) SearchBooks(ctx context.Context, filter BookFilter) ([]Book, error) {
	return m.SearchBooksFunc(ctx, filter)
}

func (m *MockLibraryService) Borrow(ctx context.Context, caller User, loan Loan) (Loan, error) {
	return m.BorrowFunc(ctx, caller, loan)
}

func (m *MockLibraryService) MyLoans(ctx context.Context, userID int64) ([]Loan, error) {
	return m.MyLoansFunc(ctx, userID)
}

// MockQueue records pushed events and fails with PushErr when set.
type MockQueue struct {
	PushErr error
	Pushed  []LendingEvent
	PopFunc func(ctx context.Context, qids ...string) (string, LendingEvent, error)
}

func (m *MockQueue) Push(_ context.Context, _ string, event LendingEvent) error {
	if m.PushErr != nil {
		return m.PushErr
	}
	m.Pushed = append(m.Pushed, event)
	return nil
}

func (m *MockQueue) Pop(ctx context.Context, qids ...string) (string, LendingEvent, error) {
	return m.PopFunc(ctx, qids...)
}

type MockJournal struct {
	AppendFunc func(ctx context.Context, event LendingEvent) error
	ListFunc   func(ctx context.Context, limit int) ([]LendingEvent, error)
}

func (m *MockJournal) Append(ctx context.Context, event LendingEvent) error {
	return m.AppendFunc(ctx, event)
}

func (m *MockJournal) List(ctx context.Context, limit int) ([]LendingEvent, error) {
	return m.ListFunc(ctx, limit)
}

// MockTokenGenerator always provides the same token.
type MockTokenGenerator struct {
	Token string
	Err   error
}

func (m *MockTokenGenerator) Generate() (string, error) {
	return m.Token, m.Err
}

// MockClocker implements a fake Clocker.
type MockClocker struct {
	MockNow time.Time
}

// NewMockClocker returns a mocked instance with fixed time.
func NewMockClocker() *MockClocker {
	return &MockClocker{time.Date(2023, 0o7, 0o2, 0o0, 0o0, 0o0, 0o00000000, time.UTC)}
}

// Now returns an already defined time to be used as mock. This
// equals to `2023-07-02 00:00:00 +0000 UTC` in String format.
func (mck *MockClocker) Now() time.Time {
	return mck.MockNow
}

// MockUIDHandler implements a fake UIDHandler.
type MockUIDHandler struct {
	MockedUID string
	Valid     bool
}

// NewMockUIDHandler returns a mocked instance with predictable id.
func NewMockUIDHandler(id string, valid bool) *MockUIDHandler {
	return &MockUIDHandler{MockedUID: id, Valid: valid}
}

// Generate constructs a predictable id to be used as mock.
func (muid *MockUIDHandler) Generate(prefix string) string {
	return prefix + ":" + muid.MockedUID
}

// IsValid mocks IsValid behavior by providing configured status.
func (muid *MockUIDHandler) IsValid(_, _ string) bool {
	return muid.Valid
}
