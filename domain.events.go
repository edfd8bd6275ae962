package main

import "time"

// Lending event types published after each successful mutation.
const (
	EventUserSignedUp = "user.signed_up"
	EventBookCreated  = "book.created"
	EventBookBorrowed = "book.borrowed"
)

// LendingEvent is the journal record of something that happened in the library.
type LendingEvent struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	UserID     int64     `json:"user_id,omitempty"`
	BookID     int64     `json:"book_id,omitempty"`
	LoanID     int64     `json:"loan_id,omitempty"`
}
