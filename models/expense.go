package models

import (
	"errors"
	"strings"
	"time"

	"boringexpenses/pkg/currency"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Expense is a single spend, optionally grouped into a claim.
type Expense struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	UserID      uuid.UUID       `gorm:"type:uuid;index;not null" json:"user_id"`
	ClaimID     *uuid.UUID      `gorm:"type:uuid;index" json:"claim_id"`
	CategoryID  *uuid.UUID      `gorm:"type:uuid;index" json:"category_id"`
	Category    *Category       `gorm:"foreignKey:CategoryID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL;" json:"category,omitempty"`
	Date        time.Time       `gorm:"not null" json:"date"`
	Description string          `gorm:"size:512;not null" json:"description"`
	Location    string          `gorm:"size:255" json:"location"`
	Amount      decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"amount"`
	Currency    string          `gorm:"size:3;not null;default:GBP" json:"currency"`
	ReceiptPath *string         `gorm:"size:512" json:"receipt_path"`
	// SourceFile is set for expenses imported from the receipt inbox.
	SourceFile *string `gorm:"size:255;index" json:"source_file,omitempty"`
	Filed      bool    `gorm:"not null;default:false" json:"filed"`
}

func (e *Expense) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

var (
	ErrDescriptionRequired = errors.New("description is required")
	ErrAmountNotPositive   = errors.New("amount must be greater than zero")
	ErrUnknownCurrency     = errors.New("unknown currency")
	ErrDateRequired        = errors.New("date is required")
)

// ExpenseInput is the user-editable part of an expense.
type ExpenseInput struct {
	// ID may be supplied by offline clients so retried writes stay idempotent.
	ID          *uuid.UUID      `json:"id"`
	Date        Date            `json:"date"`
	Description string          `json:"description" binding:"required"`
	Location    string          `json:"location"`
	Amount      decimal.Decimal `json:"amount" binding:"gt=0"`
	Currency    string          `json:"currency" binding:"omitempty,currency"`
	CategoryID  *uuid.UUID      `json:"category_id"`
	ClaimID     *uuid.UUID      `json:"claim_id"`
}

// Validate checks the invariants every stored expense must hold. It also
// normalizes Currency, trims Description and rounds Amount to cents, so the
// positivity check sees the value that will be stored.
func (in *ExpenseInput) Validate() error {
	in.Description = strings.TrimSpace(in.Description)
	if in.Description == "" {
		return ErrDescriptionRequired
	}
	in.Amount = in.Amount.Round(2)
	if !in.Amount.IsPositive() {
		return ErrAmountNotPositive
	}
	in.Currency = currency.Normalize(in.Currency)
	if !currency.Valid(in.Currency) {
		return ErrUnknownCurrency
	}
	if in.Date.IsZero() {
		return ErrDateRequired
	}
	return nil
}

// Apply copies validated input onto e.
func (in ExpenseInput) Apply(e *Expense) {
	e.Date = in.Date.Time
	e.Description = in.Description
	e.Location = strings.TrimSpace(in.Location)
	e.Amount = in.Amount.Round(2)
	e.Currency = in.Currency
	e.CategoryID = in.CategoryID
	e.ClaimID = in.ClaimID
}
