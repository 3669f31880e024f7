package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	Income  TransactionType = "INCOME"
	Expense TransactionType = "EXPENSE"
)

const (
	MaxCategoryNameLength = 100
	MaxDescriptionLength  = 1000
	MaxUsernameLength     = 150
	dateLayout            = "2006-01-02"
)

type (
	TransactionType string

	Date struct {
		time.Time
	}

	User struct {
		ID           int64
		Username     string
		Email        string
		PasswordHash []byte
		CreatedAt    time.Time
	}

	// Category is global when it has no owner. Global categories are
	// provisioned by EnsureGlobalCategories, never by users.
	Category struct {
		ID       int64
		Name     string
		OwnerID  *int64
		IsGlobal bool
	}

	Transaction struct {
		ID           int64
		OwnerID      int64
		Amount       Money
		Type         TransactionType
		CategoryID   *int64
		CategoryName string // read-only projection of the referenced category
		Date         Date
		Description  string
		CreatedAt    time.Time
	}
)

var (
	ErrInvalidType          = errors.New("type must be one of INCOME, EXPENSE")
	ErrInvalidDate          = errors.New("date must be formatted as YYYY-MM-DD")
	ErrEmptyCategoryName    = errors.New("empty category name")
	ErrCategoryNameTooLong  = fmt.Errorf("category name too long (max %d characters)", MaxCategoryNameLength)
	ErrDescriptionTooLong   = fmt.Errorf("description too long (max %d characters)", MaxDescriptionLength)
	ErrGlobalCategoryOwner  = errors.New("global category cannot have an owner")
	ErrMissingCategoryOwner = errors.New("non-global category must have an owner")
)

// DefaultGlobalCategories is the fixed set provisioned for every installation.
var DefaultGlobalCategories = []string{
	"Food & Dining", "Shopping", "Rent", "Utilities", "Transportation",
	"Entertainment", "Healthcare", "Salary", "Freelance", "Investments",
	"Education", "Travel", "Gifts", "Other Income", "Other Expense",
}

// ParseTransactionType accepts the exact enum spelling only.
func ParseTransactionType(s string) (TransactionType, error) {
	switch t := TransactionType(strings.TrimSpace(s)); t {
	case Income, Expense:
		return t, nil
	default:
		return "", ErrInvalidType
	}
}

func (t TransactionType) Valid() bool {
	return t == Income || t == Expense
}

func (t TransactionType) String() string {
	return string(t)
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf returns the calendar date of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, int(m), d)
}

// ParseDate parses a date string in YYYY-MM-DD format.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return Date{Time: t}, nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return errors.New("date cannot be zero")
	}
	return nil
}

func (d Date) String() string {
	return d.Format(dateLayout)
}

// FirstOfMonth returns the first calendar day of d's month.
func (d Date) FirstOfMonth() Date {
	return NewDate(d.Year(), int(d.Month()), 1)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (c Category) Validate() error {
	name := strings.TrimSpace(c.Name)
	if name == "" {
		return ErrEmptyCategoryName
	}
	if utf8.RuneCountInString(name) > MaxCategoryNameLength {
		return ErrCategoryNameTooLong
	}
	if c.IsGlobal && c.OwnerID != nil {
		return ErrGlobalCategoryOwner
	}
	if !c.IsGlobal && c.OwnerID == nil {
		return ErrMissingCategoryOwner
	}
	return nil
}

// VisibleTo reports whether the category is in the requester's read scope.
func (c Category) VisibleTo(requester int64) bool {
	return c.IsGlobal || c.OwnedBy(requester)
}

// OwnedBy reports whether the category is in the requester's mutation scope.
func (c Category) OwnedBy(requester int64) bool {
	return !c.IsGlobal && c.OwnerID != nil && *c.OwnerID == requester
}

func (t Transaction) Validate() error {
	if !t.Type.Valid() {
		return ErrInvalidType
	}
	if err := t.Date.Validate(); err != nil {
		return err
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if utf8.RuneCountInString(t.Description) > MaxDescriptionLength {
		return ErrDescriptionTooLong
	}
	return nil
}
