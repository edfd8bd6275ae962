package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

// newValidator reports fields with their json names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type SignupRequest struct {
	Username string `json:"username" validate:"required,min=3,max=50"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6,max=128"`
	FullName string `json:"full_name" validate:"required,min=1,max=100"`
}

// LoginRequest carries no rules. Empty or unknown credentials are
// rejected by the service as invalid credentials.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type BookCreateRequest struct {
	Title       string `json:"title" validate:"required,min=1,max=200"`
	Author      string `json:"author" validate:"required,min=1,max=120"`
	ISBN        string `json:"isbn" validate:"required,min=10,max=20"`
	Category    string `json:"category" validate:"required,min=1,max=80"`
	TotalCopies int    `json:"total_copies" validate:"min=1,max=10000"`
}

type BorrowRequest struct {
	BookID int64 `json:"book_id" validate:"min=1"`
	UserID int64 `json:"user_id" validate:"min=1"`
}

// UserOut is the public view of a user. The password hash is never exposed.
type UserOut struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Role     Role   `json:"role"`
}

func NewUserOut(u User) UserOut {
	return UserOut{ID: u.ID, Username: u.Username, Email: u.Email, FullName: u.FullName, Role: u.Role}
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// LoanOut is the wire view of a loan with UTC RFC3339 timestamps.
type LoanOut struct {
	ID         int64   `json:"id"`
	UserID     int64   `json:"user_id"`
	BookID     int64   `json:"book_id"`
	BorrowedAt string  `json:"borrowed_at"`
	ReturnedAt *string `json:"returned_at"`
}

func NewLoanOut(l Loan) LoanOut {
	out := LoanOut{
		ID:         l.ID,
		UserID:     l.UserID,
		BookID:     l.BookID,
		BorrowedAt: l.BorrowedAt.UTC().Format(time.RFC3339),
	}
	if l.ReturnedAt != nil {
		returned := l.ReturnedAt.UTC().Format(time.RFC3339)
		out.ReturnedAt = &returned
	}
	return out
}

func NewLoansOut(loans []Loan) []LoanOut {
	out := make([]LoanOut, 0, len(loans))
	for _, l := range loans {
		out = append(out, NewLoanOut(l))
	}
	return out
}

// DecodeRequestBody reads the json payload into v.
func DecodeRequestBody(r *http.Request, v interface{}) error {
	if r.Body == nil || r.Body == http.NoBody {
		return errors.New("missing request body")
	}
	return json.NewDecoder(r.Body).Decode(v)
}

// ValidateRequestBody checks the struct tags rules and returns
// a single error listing every failing field.
func ValidateRequestBody(v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fieldErrorMessage(fe))
	}
	return invalidFieldsError(strings.Join(msgs, "; "))
}

func fieldErrorMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "email":
		return fmt.Sprintf("%s must be a valid email address", fe.Field())
	case "min", "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s length must be %s %s", fe.Field(), boundWord(fe.Tag()), fe.Param())
		}
		return fmt.Sprintf("%s must be %s %s", fe.Field(), boundWord(fe.Tag()), fe.Param())
	default:
		return fmt.Sprintf("%s is not valid", fe.Field())
	}
}

func boundWord(tag string) string {
	if tag == "min" {
		return "at least"
	}
	return "at most"
}

type invalidFieldsError string

func (e invalidFieldsError) Error() string {
	return string(e)
}
