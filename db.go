package main

import (
	"errors"

	"boringexpenses/models"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var errNoDSN = errors.New("DB_DSN is not set. This project requires a Postgres DSN in DB_DSN")

func openDB(cfg Config, log *zap.Logger) (*gorm.DB, error) {
	if cfg.DSN == "" {
		return nil, errNoDSN
	}
	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, err
	}
	if cfg.AutoMigrate {
		migrate(db, log)
	}
	return db, nil
}

// migrate runs AutoMigrate per model so one failure (often a permission
// problem on a shared database) does not block the others.
func migrate(db *gorm.DB, log *zap.Logger) {
	tables := []struct {
		name  string
		model any
	}{
		{"companies", &models.Company{}},
		{"users", &models.User{}},
		{"profiles", &models.Profile{}},
		{"expense_categories", &models.Category{}},
		{"claims", &models.Claim{}},
		{"expenses", &models.Expense{}},
		{"refresh_tokens", &models.RefreshToken{}},
		{"login_codes", &models.LoginCode{}},
		{"invites", &models.Invite{}},
	}
	for _, t := range tables {
		if err := db.AutoMigrate(t.model); err != nil {
			log.Warn("migration warning", zap.String("table", t.name), zap.Error(err))
		}
	}
}
