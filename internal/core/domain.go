package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type (
	// Category is the expense bucket a record was filed under.
	Category string

	// Contributor identifies the person who logged a record. It is
	// independent from Category even when a category carries a person's name.
	Contributor struct {
		Name   string
		UserID string
	}

	// Record is one logged expense. Records are never mutated after creation.
	Record struct {
		ID          string
		Category    Category
		Amount      decimal.Decimal
		Description string
		Contributor Contributor
		CreatedAt   time.Time
	}

	// ChatBinding is the chat registered through the bot /start command.
	ChatBinding struct {
		ChatID    int64
		UserID    int64
		FirstName string
		UpdatedAt time.Time
	}

	// DeliveryMark records that the report for a period reached the chat,
	// or, with State MarkStateClaimed, that a run is about to send it.
	DeliveryMark struct {
		PeriodKey   string
		Label       string
		State       string
		RunID       string
		DeliveredAt time.Time
	}
)

var (
	ErrInvalidMonth   = errors.New("invalid month")
	ErrInvalidAmount  = errors.New("invalid amount")
	ErrEmptyCategory  = errors.New("empty category")
	ErrMissingCreated = errors.New("missing createdAt")
	ErrInvalidChatID  = errors.New("invalid chat id")
	ErrEmptyPeriodKey = errors.New("empty period key")
)

func (c Category) String() string {
	return string(c)
}

// Known reports whether c belongs to the fixed category table.
func (c Category) Known() bool {
	_, ok := LookupCategory(c)
	return ok
}

// Label returns the name used for grouping; records without a name fall
// back to the user id, then to "Sin nombre".
func (c Contributor) Label() string {
	if n := strings.TrimSpace(c.Name); n != "" {
		return n
	}
	if id := strings.TrimSpace(c.UserID); id != "" {
		return id
	}
	return "Sin nombre"
}

func (r Record) Validate() error {
	if strings.TrimSpace(string(r.Category)) == "" {
		return ErrEmptyCategory
	}
	if r.CreatedAt.IsZero() {
		return ErrMissingCreated
	}
	if r.Amount.IsNegative() {
		return ErrInvalidAmount
	}
	return nil
}

func (b ChatBinding) Validate() error {
	if b.ChatID == 0 {
		return ErrInvalidChatID
	}
	return nil
}

// MarkStateClaimed is the State of a mark written before sending.
const MarkStateClaimed = "claimed"

// Claimed reports whether m is a pending claim rather than a delivery.
func (m DeliveryMark) Claimed() bool {
	return m.State == MarkStateClaimed
}

func (m DeliveryMark) Validate() error {
	if strings.TrimSpace(m.PeriodKey) == "" {
		return ErrEmptyPeriodKey
	}
	return nil
}
