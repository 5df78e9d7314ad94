package core

import (
	"errors"
	"math"
	"strings"
	"time"
	"unicode/utf8"
)

type (
	// Category is one entry of the static category catalog. Expenses embed a
	// copy of it at creation time.
	Category struct {
		ID    string `json:"id" yaml:"id"`
		Name  string `json:"name" yaml:"name"`
		Icon  string `json:"icon" yaml:"icon"`
		Color string `json:"color" yaml:"color"`
	}

	Expense struct {
		ID            string   `json:"id" yaml:"id"`
		Amount        float64  `json:"amount" yaml:"amount"`
		Description   string   `json:"description" yaml:"description"`
		Category      Category `json:"category" yaml:"category"`
		Date          string   `json:"date" yaml:"date"` // ISO-8601, when the expense occurred
		ImageURI      string   `json:"imageUri,omitempty" yaml:"imageUri,omitempty"`
		IsAIGenerated bool     `json:"isAIGenerated,omitempty" yaml:"isAIGenerated,omitempty"`
	}

	// Draft is an expense before the store assigns it an id.
	Draft struct {
		Amount        float64
		Description   string
		Category      Category
		Date          string
		ImageURI      string
		IsAIGenerated bool
	}

	// ExpensePatch holds the fields replaced by an update. Nil fields are kept.
	ExpensePatch struct {
		Amount        *float64  `json:"amount,omitempty"`
		Description   *string   `json:"description,omitempty"`
		Category      *Category `json:"category,omitempty"`
		Date          *string   `json:"date,omitempty"`
		ImageURI      *string   `json:"imageUri,omitempty"`
		IsAIGenerated *bool     `json:"isAIGenerated,omitempty"`
	}
)

const maxDescriptionLength = 200

var (
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrEmptyDescription   = errors.New("empty description")
	ErrDescriptionTooLong = errors.New("description too long (max 200 characters)")
	ErrEmptyCategory      = errors.New("empty category")
	ErrInvalidDate        = errors.New("invalid date")
	ErrEmptyID            = errors.New("empty expense id")
	ErrExpenseNotFound    = errors.New("expense not found")
	ErrInvalidImport      = errors.New("invalid import payload")
)

// ValidAmount reports whether v can be stored as an expense amount.
func ValidAmount(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v > 0
}

func validateFields(amount float64, description string, category Category, date string) error {
	if !ValidAmount(amount) {
		return ErrInvalidAmount
	}
	if strings.TrimSpace(description) == "" {
		return ErrEmptyDescription
	}
	if strings.TrimSpace(category.ID) == "" {
		return ErrEmptyCategory
	}
	if _, err := ParseDate(date, time.UTC); err != nil {
		return err
	}
	return nil
}

// checkDescriptionLength caps descriptions typed into the app. Stored and
// imported records are not capped.
func checkDescriptionLength(description string) error {
	if utf8.RuneCountInString(strings.TrimSpace(description)) > maxDescriptionLength {
		return ErrDescriptionTooLong
	}
	return nil
}

func (d Draft) Validate() error {
	if err := validateFields(d.Amount, d.Description, d.Category, d.Date); err != nil {
		return err
	}
	return checkDescriptionLength(d.Description)
}

func (e Expense) Validate() error {
	if strings.TrimSpace(e.ID) == "" {
		return ErrEmptyID
	}
	return validateFields(e.Amount, e.Description, e.Category, e.Date)
}

// Build turns the draft into a record with the given id.
func (d Draft) Build(id string) Expense {
	return Expense{
		ID:            id,
		Amount:        d.Amount,
		Description:   strings.TrimSpace(d.Description),
		Category:      d.Category,
		Date:          d.Date,
		ImageURI:      d.ImageURI,
		IsAIGenerated: d.IsAIGenerated,
	}
}

// Apply merges the patch into e. The id is never changed.
func (p ExpensePatch) Apply(e Expense) Expense {
	if p.Amount != nil {
		e.Amount = *p.Amount
	}
	if p.Description != nil {
		e.Description = strings.TrimSpace(*p.Description)
	}
	if p.Category != nil {
		e.Category = *p.Category
	}
	if p.Date != nil {
		e.Date = *p.Date
	}
	if p.ImageURI != nil {
		e.ImageURI = *p.ImageURI
	}
	if p.IsAIGenerated != nil {
		e.IsAIGenerated = *p.IsAIGenerated
	}
	return e
}

// Validate checks the fields the patch sets that have entry-only limits.
// The merged record is validated separately.
func (p ExpensePatch) Validate() error {
	if p.Description != nil {
		return checkDescriptionLength(*p.Description)
	}
	return nil
}

// IsEmpty returns true when the patch changes nothing.
func (p ExpensePatch) IsEmpty() bool {
	return p.Amount == nil && p.Description == nil && p.Category == nil &&
		p.Date == nil && p.ImageURI == nil && p.IsAIGenerated == nil
}
