package store

import (
	"context"
	"fmt"
	"time"

	"boringexpenses/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ClaimFilter narrows ListClaims. Empty UserIDs with a CompanyID lists every
// claim owned by a member of that company.
type ClaimFilter struct {
	UserIDs   []uuid.UUID
	CompanyID *uuid.UUID
	Status    models.ClaimStatus
}

func (s *Store) CreateClaim(ctx context.Context, c *models.Claim) error {
	if err := s.db.WithContext(ctx).Create(c).Error; err != nil {
		return fmt.Errorf("create claim: %w", translate(err))
	}
	return nil
}

func (s *Store) GetClaim(ctx context.Context, id uuid.UUID) (*models.Claim, error) {
	var c models.Claim
	if err := s.db.WithContext(ctx).Preload("User").First(&c, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

// ClaimWithOwner loads a claim together with its owner's profile.
func (s *Store) ClaimWithOwner(ctx context.Context, id uuid.UUID) (*models.Claim, *models.Profile, error) {
	c, err := s.GetClaim(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if c.User == nil {
		return nil, nil, fmt.Errorf("claim %s has no owner profile: %w", id, ErrNotFound)
	}
	return c, c.User, nil
}

func (s *Store) ListClaims(ctx context.Context, f ClaimFilter) ([]models.Claim, error) {
	q := s.db.WithContext(ctx).Model(&models.Claim{}).Preload("User")
	if len(f.UserIDs) > 0 {
		q = q.Where("user_id IN ?", f.UserIDs)
	}
	if f.CompanyID != nil {
		q = q.Where("user_id IN (?)", s.db.Model(&models.Profile{}).Select("id").Where("company_id = ?", *f.CompanyID))
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	var out []models.Claim
	if err := q.Order("created_at desc").Limit(500).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list claims: %w", err)
	}
	return out, nil
}

// UpdateClaimDetails writes title and description only.
func (s *Store) UpdateClaimDetails(ctx context.Context, c *models.Claim) error {
	res := s.db.WithContext(ctx).Model(&models.Claim{}).Where("id = ?", c.ID).
		Updates(map[string]any{"title": c.Title, "description": c.Description, "updated_at": time.Now()})
	if res.Error != nil {
		return fmt.Errorf("update claim: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteClaim detaches the claim's expenses and deletes it in one transaction.
func (s *Store) DeleteClaim(ctx context.Context, id uuid.UUID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Expense{}).Where("claim_id = ?", id).
			Updates(map[string]any{"claim_id": gorm.Expr("NULL"), "filed": false}).Error; err != nil {
			return fmt.Errorf("detach expenses: %w", err)
		}
		res := tx.Delete(&models.Claim{}, "id = ?", id)
		if res.Error != nil {
			return fmt.Errorf("delete claim: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// UpdateClaimStatus persists the workflow fields of c only if the stored
// status still equals expected. Expenses of the claim get c.Filed mirrored.
func (s *Store) UpdateClaimStatus(ctx context.Context, c *models.Claim, expected models.ClaimStatus) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]any{
			"status":      c.Status,
			"filed":       c.Filed,
			"updated_at":  c.UpdatedAt,
			"approved_by": gorm.Expr("NULL"),
			"approved_at": gorm.Expr("NULL"),
		}
		if c.ApprovedBy != nil {
			updates["approved_by"] = *c.ApprovedBy
		}
		if c.ApprovedAt != nil {
			updates["approved_at"] = *c.ApprovedAt
		}
		res := tx.Model(&models.Claim{}).Where("id = ? AND status = ?", c.ID, expected).Updates(updates)
		if res.Error != nil {
			return fmt.Errorf("update claim status: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			var n int64
			if err := tx.Model(&models.Claim{}).Where("id = ?", c.ID).Count(&n).Error; err != nil {
				return err
			}
			if n == 0 {
				return ErrNotFound
			}
			return ErrConflict
		}
		if err := tx.Model(&models.Expense{}).Where("claim_id = ?", c.ID).Update("filed", c.Filed).Error; err != nil {
			return fmt.Errorf("mirror filed flag: %w", err)
		}
		return nil
	})
}

// ClaimTotals sums the claim's expenses per currency.
func (s *Store) ClaimTotals(ctx context.Context, id uuid.UUID) (map[string]decimal.Decimal, error) {
	type row struct {
		Currency string
		Total    decimal.Decimal
	}
	var rows []row
	err := s.db.WithContext(ctx).Model(&models.Expense{}).
		Select("currency, SUM(amount) AS total").
		Where("claim_id = ?", id).
		Group("currency").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("claim totals: %w", err)
	}
	out := make(map[string]decimal.Decimal, len(rows))
	for _, r := range rows {
		out[r.Currency] = r.Total
	}
	return out, nil
}
