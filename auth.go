package main

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"boringexpenses/models"
	"boringexpenses/pkg/store"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	accessTokenTTL       = 24 * time.Hour
	refreshTokenTTL      = 30 * 24 * time.Hour
	loginCodeTTL         = 10 * time.Minute
	maxLoginCodeAttempts = 5
	inviteTTL            = 7 * 24 * time.Hour
	minPasswordLen       = 6
)

var (
	errInvalidCode   = errors.New("invalid or expired login code")
	errInvalidInvite = errors.New("invalid or expired invite")
)

type registerRequest struct {
	Email       string `json:"email" binding:"required,email"`
	Password    string `json:"password" binding:"required"`
	FullName    string `json:"full_name"`
	InviteToken string `json:"invite_token"`
	CompanyName string `json:"company_name"`
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// registerAccount creates a user and profile. With an invite token the user
// joins the inviting company with the invited role; otherwise a new company
// is created with the user as its admin.
func registerAccount(ctx context.Context, db *gorm.DB, req registerRequest, now time.Time) (*models.Profile, error) {
	email := normalizeEmail(req.Email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, badRequest("a valid email is required")
	}
	if len(req.Password) < minPasswordLen {
		return nil, badRequest("password too short (min %d)", minPasswordLen)
	}
	name := strings.TrimSpace(req.FullName)
	if name == "" {
		name = email[:strings.IndexByte(email, '@')]
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	var profile models.Profile
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.User{}).Where("email = ?", email).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return errEmailTaken
		}
		user := models.User{Email: email, HashedPassword: hashed}
		if err := tx.Create(&user).Error; err != nil {
			if store.IsUniqueViolation(err) {
				return errEmailTaken
			}
			return err
		}
		profile = models.Profile{ID: user.ID, FullName: name, Email: email, Role: models.RoleAdmin}

		if token := strings.TrimSpace(req.InviteToken); token != "" {
			var inv models.Invite
			if err := tx.Where("token_hash = ?", hashToken(token)).First(&inv).Error; err != nil {
				return errInvalidInvite
			}
			if !inv.Usable(now) || normalizeEmail(inv.Email) != email {
				return errInvalidInvite
			}
			if err := tx.Model(&inv).Update("accepted_at", now).Error; err != nil {
				return err
			}
			profile.CompanyID = &inv.CompanyID
			profile.Role = inv.Role
		} else {
			company := models.Company{Name: strings.TrimSpace(req.CompanyName)}
			if company.Name == "" {
				company.Name = name + "'s company"
			}
			if err := tx.Create(&company).Error; err != nil {
				return err
			}
			if err := store.SeedCategories(tx, company.ID); err != nil {
				return err
			}
			profile.CompanyID = &company.ID
		}
		return tx.Create(&profile).Error
	})
	if errors.Is(err, errInvalidInvite) {
		return nil, badRequest("%s", errInvalidInvite.Error())
	}
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

func authenticate(ctx context.Context, db *gorm.DB, email, password string) (*models.User, error) {
	var user models.User
	if err := db.WithContext(ctx).Where("email = ?", normalizeEmail(email)).First(&user).Error; err != nil {
		return nil, errInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(user.HashedPassword, []byte(password)); err != nil {
		return nil, errInvalidCredentials
	}
	return &user, nil
}

func (s *Server) issueAccessToken(p *models.Profile) (string, error) {
	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   p.ID.String(),
		"email": p.Email,
		"role":  string(p.Role),
		"iat":   now.Unix(),
		"exp":   now.Add(accessTokenTTL).Unix(),
	})
	return token.SignedString([]byte(s.cfg.JWTSecret))
}

// parseAccessToken validates raw and returns the user id it was issued for.
func (s *Server) parseAccessToken(raw string) (uuid.UUID, error) {
	token, err := jwt.Parse(raw, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrInvalidKeyType
		}
		return []byte(s.cfg.JWTSecret), nil
	}, jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return uuid.Nil, fmt.Errorf("invalid token: %w", err)
	}
	sub, err := token.Claims.GetSubject()
	if err != nil {
		return uuid.Nil, err
	}
	return uuid.Parse(sub)
}

type tokenResponse struct {
	Message      string          `json:"message,omitempty"`
	Token        string          `json:"token"`
	RefreshToken string          `json:"refresh_token"`
	Profile      *models.Profile `json:"profile,omitempty"`
}

func (s *Server) issueTokens(ctx context.Context, p *models.Profile) (*tokenResponse, error) {
	access, err := s.issueAccessToken(p)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	refresh, err := createAndStoreRefreshToken(ctx, s.db, p.ID, s.now())
	if err != nil {
		return nil, fmt.Errorf("create refresh token: %w", err)
	}
	return &tokenResponse{Token: access, RefreshToken: refresh, Profile: p}, nil
}

func randomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func hashToken(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}

// createAndStoreRefreshToken stores the hash of a new random token and
// returns the raw token.
func createAndStoreRefreshToken(ctx context.Context, db *gorm.DB, userID uuid.UUID, now time.Time) (string, error) {
	token, err := randomToken()
	if err != nil {
		return "", err
	}
	rt := models.RefreshToken{UserID: userID, TokenHash: hashToken(token), ExpiresAt: now.Add(refreshTokenTTL)}
	if err := db.WithContext(ctx).Create(&rt).Error; err != nil {
		return "", err
	}
	return token, nil
}

func findRefreshTokenByRaw(ctx context.Context, db *gorm.DB, token string) (*models.RefreshToken, error) {
	var rt models.RefreshToken
	if err := db.WithContext(ctx).Where("token_hash = ?", hashToken(token)).First(&rt).Error; err != nil {
		return nil, err
	}
	return &rt, nil
}

func newLoginCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// issueLoginCode replaces any outstanding code for email with a new one and
// returns it.
func issueLoginCode(ctx context.Context, db *gorm.DB, email string, now time.Time) (string, error) {
	code, err := newLoginCode()
	if err != nil {
		return "", err
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.LoginCode{}).Where("email = ? AND used = ?", email, false).Update("used", true).Error; err != nil {
			return err
		}
		return tx.Create(&models.LoginCode{Email: email, CodeHash: hashed, ExpiresAt: now.Add(loginCodeTTL)}).Error
	})
	if err != nil {
		return "", err
	}
	return code, nil
}

// verifyLoginCode consumes the outstanding code for email if it matches.
// Each wrong guess counts against the code; it dies after five.
func verifyLoginCode(ctx context.Context, db *gorm.DB, email, code string, now time.Time) error {
	var lc models.LoginCode
	err := db.WithContext(ctx).
		Where("email = ? AND used = ? AND expires_at > ?", email, false, now).
		Order("id desc").First(&lc).Error
	if err != nil {
		return errInvalidCode
	}
	if lc.Attempts >= maxLoginCodeAttempts {
		db.WithContext(ctx).Model(&lc).Update("used", true)
		return errInvalidCode
	}
	if bcrypt.CompareHashAndPassword(lc.CodeHash, []byte(strings.TrimSpace(code))) != nil {
		db.WithContext(ctx).Model(&lc).Update("attempts", gorm.Expr("attempts + 1"))
		return errInvalidCode
	}
	return db.WithContext(ctx).Model(&lc).Update("used", true).Error
}
