package order

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status of an order. The worker drives pending -> processing -> completed;
// the owner may request canceled from any non-terminal state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusCanceled   Status = "canceled"
)

// Valid reports whether s is a member of the status set.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusCanceled:
		return true
	}
	return false
}

// Terminal reports whether no further transition is permitted out of s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCanceled
}

// CanTransition reports whether from -> to is a legal transition.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusProcessing || to == StatusCanceled
	case StatusProcessing:
		return to == StatusCompleted || to == StatusCanceled
	}
	return false
}

// Order description. The owner reference is immutable after creation.
type Order struct {
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
	Title       string          `db:"title" json:"title"`
	Description string          `db:"description" json:"description,omitempty"`
	Status      Status          `db:"status" json:"status"`
	Amount      decimal.Decimal `db:"amount" json:"total_amount"`
	Priority    int             `db:"priority" json:"priority"`
	ID          int             `db:"id" json:"id"`
	UserID      int             `db:"user_id" json:"user_id"`
}
