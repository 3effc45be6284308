package store

import (
	"context"
	"fmt"
	"time"

	"boringexpenses/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ExpenseFilter struct {
	UserID     uuid.UUID
	ClaimID    *uuid.UUID
	CategoryID *uuid.UUID
	From       *time.Time
	To         *time.Time
}

// SaveExpense inserts e, or overwrites the row with the same id owned by the
// same user. Offline clients replay writes with stable ids; last write wins.
// It returns ErrNotOwner when the id belongs to another user's expense.
func (s *Store) SaveExpense(ctx context.Context, e *models.Expense) error {
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"date", "description", "location", "amount", "currency",
			"category_id", "claim_id", "filed", "updated_at",
		}),
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Eq{Column: clause.Column{Table: "expenses", Name: "user_id"}, Value: e.UserID},
		}},
	}).Create(e)
	if res.Error != nil {
		return fmt.Errorf("save expense: %w", translate(res.Error))
	}
	if res.RowsAffected == 0 {
		return ErrNotOwner
	}
	return nil
}

func (s *Store) GetExpense(ctx context.Context, id uuid.UUID) (*models.Expense, error) {
	var e models.Expense
	if err := s.db.WithContext(ctx).Preload("Category").First(&e, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &e, nil
}

func (s *Store) ListExpenses(ctx context.Context, f ExpenseFilter) ([]models.Expense, error) {
	q := s.db.WithContext(ctx).Model(&models.Expense{}).Preload("Category").Where("user_id = ?", f.UserID)
	if f.ClaimID != nil {
		q = q.Where("claim_id = ?", *f.ClaimID)
	}
	if f.CategoryID != nil {
		q = q.Where("category_id = ?", *f.CategoryID)
	}
	if f.From != nil {
		q = q.Where("date >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("date < ?", *f.To)
	}
	var out []models.Expense
	if err := q.Order("date desc").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	return out, nil
}

func (s *Store) UpdateExpense(ctx context.Context, e *models.Expense) error {
	res := s.db.WithContext(ctx).Model(&models.Expense{}).Where("id = ?", e.ID).Updates(map[string]any{
		"date":        e.Date,
		"description": e.Description,
		"location":    e.Location,
		"amount":      e.Amount,
		"currency":    e.Currency,
		"category_id": nullable(e.CategoryID),
		"claim_id":    nullable(e.ClaimID),
		"filed":       e.Filed,
		"updated_at":  time.Now(),
	})
	if res.Error != nil {
		return fmt.Errorf("update expense: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) DeleteExpense(ctx context.Context, id uuid.UUID) error {
	res := s.db.WithContext(ctx).Delete(&models.Expense{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("delete expense: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) SetExpenseReceipt(ctx context.Context, id uuid.UUID, path string) error {
	res := s.db.WithContext(ctx).Model(&models.Expense{}).Where("id = ?", id).
		Updates(map[string]any{"receipt_path": path, "updated_at": time.Now()})
	if res.Error != nil {
		return fmt.Errorf("set receipt: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ImportedSourceFiles returns the inbox file names already imported for userID.
func (s *Store) ImportedSourceFiles(ctx context.Context, userID uuid.UUID) (map[string]struct{}, error) {
	var names []string
	err := s.db.WithContext(ctx).Model(&models.Expense{}).
		Where("user_id = ? AND source_file IS NOT NULL", userID).
		Pluck("source_file", &names).Error
	if err != nil {
		return nil, fmt.Errorf("list imported files: %w", err)
	}
	out := make(map[string]struct{}, len(names))
	for _, n := range names {
		out[n] = struct{}{}
	}
	return out, nil
}

func nullable(id *uuid.UUID) any {
	if id == nil {
		return gorm.Expr("NULL")
	}
	return *id
}
