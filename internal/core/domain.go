package core

import (
	"errors"
	"strings"
	"time"
)

const (
	KindExpense Kind = "expense"
	KindIncome  Kind = "income"
)

type (
	// Kind tags a record as an expense or an income. The amount itself is
	// always a positive magnitude; the kind is never inferred from sign.
	Kind string

	// Date is a calendar date at day granularity (UTC midnight).
	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	// MoneyRecord is a single expense or income entry owned by one user.
	MoneyRecord struct {
		ID          int64
		UserID      int64
		Title       string
		Amount      Money
		Category    string
		OccurredOn  Date
		Description string
		CreatedAt   time.Time
		UpdatedAt   time.Time
	}

	// Transaction is a MoneyRecord tagged with its kind. It exists only in
	// derived views (merged feeds, CSV export) and is never persisted.
	Transaction struct {
		MoneyRecord
		Kind Kind
	}

	// User is an account that owns money records.
	User struct {
		ID           int64
		Username     string
		Email        string
		PasswordHash string
		FullName     string
		CreatedAt    time.Time
	}
)

var (
	ErrInvalidAmount = errors.New("invalid amount")
	ErrInvalidDate   = errors.New("invalid date")
	ErrEmptyTitle    = errors.New("empty title")
	ErrEmptyCategory = errors.New("empty category")
	ErrInvalidKind   = errors.New("invalid kind")
)

// NewDate creates a Date from year, month, day.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to day granularity in UTC.
func DateOf(t time.Time) Date {
	y, m, d := t.UTC().Date()
	return NewDate(y, int(m), d)
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

// Before reports whether d falls on an earlier calendar day than other.
func (d Date) Before(other Date) bool {
	return d.Time.Before(other.Time)
}

// String renders the date in ISO form (2006-01-02).
func (d Date) String() string {
	return d.Format("2006-01-02")
}

// ParseDate parses an ISO date string (2006-01-02) into a Date.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", strings.TrimSpace(s))
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return Date{Time: t.UTC()}, nil
}

func (k Kind) Validate() error {
	switch k {
	case KindExpense, KindIncome:
		return nil
	default:
		return ErrInvalidKind
	}
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (r MoneyRecord) Validate() error {
	if len(strings.TrimSpace(r.Title)) == 0 {
		return ErrEmptyTitle
	}
	if len(r.Title) > 120 {
		return errors.New("title too long (max 120 characters)")
	}
	if err := r.Amount.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(r.Category) == "" {
		return ErrEmptyCategory
	}
	if err := r.OccurredOn.Validate(); err != nil {
		return err
	}
	if len(r.Description) > 500 {
		return errors.New("description too long (max 500 characters)")
	}
	return nil
}

func (t Transaction) Validate() error {
	if err := t.Kind.Validate(); err != nil {
		return err
	}
	return t.MoneyRecord.Validate()
}
