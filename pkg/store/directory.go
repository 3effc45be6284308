package store

import (
	"context"
	"fmt"
	"strings"

	"boringexpenses/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

func (s *Store) GetProfile(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	var p models.Profile
	if err := s.db.WithContext(ctx).Preload("Company").First(&p, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (s *Store) ListCompanyProfiles(ctx context.Context, companyID uuid.UUID) ([]models.Profile, error) {
	var out []models.Profile
	err := s.db.WithContext(ctx).Preload("Manager").
		Where("company_id = ?", companyID).Order("full_name").Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	return out, nil
}

// ReportIDs returns the ids of profiles managed by managerID.
func (s *Store) ReportIDs(ctx context.Context, managerID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if err := s.db.WithContext(ctx).Model(&models.Profile{}).Where("manager_id = ?", managerID).Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	return ids, nil
}

// UpdateProfileFields writes the given columns of profile id.
func (s *Store) UpdateProfileFields(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	res := s.db.WithContext(ctx).Model(&models.Profile{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return fmt.Errorf("update profile: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) ListCategories(ctx context.Context, companyID uuid.UUID) ([]models.Category, error) {
	var out []models.Category
	if err := s.db.WithContext(ctx).Where("company_id = ?", companyID).Order("name asc").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return out, nil
}

func (s *Store) GetCategory(ctx context.Context, id uuid.UUID) (*models.Category, error) {
	var c models.Category
	if err := s.db.WithContext(ctx).First(&c, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

func (s *Store) CreateCategory(ctx context.Context, c *models.Category) error {
	c.Name = strings.TrimSpace(c.Name)
	if err := s.db.WithContext(ctx).Create(c).Error; err != nil {
		return fmt.Errorf("create category: %w", translate(err))
	}
	return nil
}

func (s *Store) DeleteCategory(ctx context.Context, companyID, id uuid.UUID) error {
	res := s.db.WithContext(ctx).Delete(&models.Category{}, "id = ? AND company_id = ?", id, companyID)
	if res.Error != nil {
		return fmt.Errorf("delete category: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SeedCategories creates the default categories for a company, skipping
// names that already exist.
func SeedCategories(tx *gorm.DB, companyID uuid.UUID) error {
	for _, name := range models.DefaultCategoryNames {
		c := models.Category{CompanyID: companyID, Name: name}
		if err := tx.Where(models.Category{CompanyID: companyID, Name: name}).FirstOrCreate(&c).Error; err != nil {
			return fmt.Errorf("seed category %s: %w", name, err)
		}
	}
	return nil
}
