package models

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ClaimStatus is a step of the claim approval lifecycle.
type ClaimStatus string

const (
	StatusUnfiled    ClaimStatus = "unfiled"
	StatusFiled      ClaimStatus = "filed"
	StatusProcessing ClaimStatus = "processing"
	StatusApproved   ClaimStatus = "approved"
	StatusPaid       ClaimStatus = "paid"
)

var claimStatuses = []ClaimStatus{StatusUnfiled, StatusFiled, StatusProcessing, StatusApproved, StatusPaid}

var statusLabels = map[ClaimStatus]string{
	StatusUnfiled:    "Not Filed",
	StatusFiled:      "Filed",
	StatusProcessing: "Under Review",
	StatusApproved:   "Approved",
	StatusPaid:       "Paid",
}

var statusColors = map[ClaimStatus]string{
	StatusUnfiled:    "gray",
	StatusFiled:      "blue",
	StatusProcessing: "yellow",
	StatusApproved:   "green",
	StatusPaid:       "purple",
}

// ClaimStatuses returns the full ordered status vocabulary.
func ClaimStatuses() []ClaimStatus {
	out := make([]ClaimStatus, len(claimStatuses))
	copy(out, claimStatuses)
	return out
}

func (s ClaimStatus) Valid() bool {
	return s.Index() >= 0
}

// Index is the position of s in the lifecycle, or -1 for an unknown status.
func (s ClaimStatus) Index() int {
	for i, v := range claimStatuses {
		if v == s {
			return i
		}
	}
	return -1
}

func (s ClaimStatus) Label() string {
	if l, ok := statusLabels[s]; ok {
		return l
	}
	return string(s)
}

func (s ClaimStatus) Color() string {
	if c, ok := statusColors[s]; ok {
		return c
	}
	return "gray"
}

// Claim groups expenses submitted together for reimbursement.
type Claim struct {
	ID          uuid.UUID   `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
	UserID      uuid.UUID   `gorm:"type:uuid;index;not null" json:"user_id"`
	User        *Profile    `gorm:"foreignKey:UserID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"user,omitempty"`
	Title       string      `gorm:"size:255;not null" json:"title"`
	Description string      `gorm:"type:text" json:"description"`
	Status      ClaimStatus `gorm:"size:16;not null;default:unfiled;index" json:"status"`
	// Filed mirrors status >= filed for older clients.
	Filed      bool       `gorm:"not null;default:false" json:"filed"`
	ApprovedBy *uuid.UUID `gorm:"type:uuid" json:"approved_by"`
	ApprovedAt *time.Time `json:"approved_at"`
	Expenses   []Expense  `gorm:"foreignKey:ClaimID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL;" json:"expenses,omitempty"`
}

func (c *Claim) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.Status == "" {
		c.Status = StatusUnfiled
	}
	return nil
}

var ErrTitleRequired = errors.New("title is required")

// ClaimInput is the user-editable part of a claim.
type ClaimInput struct {
	Title       string `json:"title" binding:"required"`
	Description string `json:"description"`
}

func (in ClaimInput) Validate() error {
	if strings.TrimSpace(in.Title) == "" {
		return ErrTitleRequired
	}
	return nil
}
