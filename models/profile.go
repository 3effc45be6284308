package models

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Profile is the public side of a user (one-to-one, sharing the user's id).
type Profile struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	FullName  string     `gorm:"size:255;not null" json:"full_name"`
	Email     string     `gorm:"size:255;not null;index" json:"email"`
	Role      Role       `gorm:"size:16;not null;default:employee" json:"role"`
	CompanyID *uuid.UUID `gorm:"type:uuid;index" json:"company_id"`
	Company   *Company   `gorm:"foreignKey:CompanyID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL;" json:"company,omitempty"`
	// ManagerID points at the profile that approves this profile's claims.
	ManagerID  *uuid.UUID `gorm:"type:uuid;index" json:"manager_id"`
	Manager    *Profile   `gorm:"foreignKey:ManagerID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL;" json:"manager,omitempty"`
	AvatarPath string     `gorm:"size:512" json:"avatar_path,omitempty"`
	// Bank is only shown to the profile's owner.
	Bank BankAccount `gorm:"embedded;embeddedPrefix:bank_" json:"-"`
}

// BankAccount is where reimbursements for paid claims are sent.
type BankAccount struct {
	AccountName   string `gorm:"size:255" json:"account_name"`
	SortCode      string `gorm:"size:16" json:"sort_code,omitempty"`
	AccountNumber string `gorm:"size:34" json:"account_number,omitempty"`
	IBAN          string `gorm:"size:34" json:"iban,omitempty"`
}

func (b BankAccount) IsZero() bool { return b == BankAccount{} }

// Normalize trims every field and strips spaces from the IBAN.
func (b BankAccount) Normalize() BankAccount {
	return BankAccount{
		AccountName:   strings.TrimSpace(b.AccountName),
		SortCode:      strings.TrimSpace(b.SortCode),
		AccountNumber: strings.TrimSpace(b.AccountNumber),
		IBAN:          strings.ToUpper(strings.ReplaceAll(b.IBAN, " ", "")),
	}
}

// Validate accepts an empty account, which clears the stored details.
func (b BankAccount) Validate() error {
	if b.IsZero() {
		return nil
	}
	if b.AccountName == "" {
		return ErrBankNameRequired
	}
	if b.IBAN == "" && (b.SortCode == "" || b.AccountNumber == "") {
		return ErrBankAccountIncomplete
	}
	return nil
}

// Columns maps b onto the embedded profile columns for partial updates.
func (b BankAccount) Columns() map[string]any {
	return map[string]any{
		"bank_account_name":   b.AccountName,
		"bank_sort_code":      b.SortCode,
		"bank_account_number": b.AccountNumber,
		"bank_iban":           b.IBAN,
	}
}

var (
	ErrBankNameRequired      = errors.New("bank account name is required")
	ErrBankAccountIncomplete = errors.New("bank details need an IBAN or a sort code and account number")
)

// SameCompany reports whether both profiles belong to the same non-empty company.
func (p Profile) SameCompany(other Profile) bool {
	return p.CompanyID != nil && other.CompanyID != nil && *p.CompanyID == *other.CompanyID
}
