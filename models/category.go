package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Category is a company-scoped descriptive tag for expenses.
type Category struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	CompanyID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_company_category" json:"company_id"`
	Name      string    `gorm:"size:128;not null;uniqueIndex:idx_company_category" json:"name"`
}

func (Category) TableName() string { return "expense_categories" }

func (c *Category) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// DefaultCategoryNames are seeded for every new company.
var DefaultCategoryNames = []string{
	"Travel", "Meals", "Accommodation", "Office Supplies", "Software", "Training", "Other",
}
