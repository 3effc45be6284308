package main

import (
	"errors"
	"net/http"
	"path"
	"strings"
	"time"

	"boringexpenses/models"
	"boringexpenses/pkg/currency"
	"boringexpenses/pkg/storage"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func (s *Server) healthHandler(c *gin.Context) {
	if s.db != nil {
		sqlDB, err := s.db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func currenciesHandler(c *gin.Context) {
	c.JSON(http.StatusOK, currency.All())
}

// fileHandler serves a stored object to holders of a signed URL.
func (s *Server) fileHandler(c *gin.Context) {
	p := strings.TrimPrefix(c.Param("path"), "/")
	if err := s.objects.Verify(p, c.Query("token")); err != nil {
		s.fail(c, err)
		return
	}
	f, err := s.objects.Open(p)
	if err != nil {
		s.fail(c, err)
		return
	}
	defer f.Close()
	modTime := time.Time{}
	if st, err := f.Stat(); err == nil {
		modTime = st.ModTime()
	}
	c.Header("Cache-Control", "private, max-age=300")
	http.ServeContent(c.Writer, c.Request, path.Base(p), modTime, f)
}

func (s *Server) registerHandler(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p, err := registerAccount(c.Request.Context(), s.db, req, s.now())
	if err != nil {
		s.fail(c, err)
		return
	}
	s.log.Info("user registered", zap.String("user_id", p.ID.String()), zap.String("role", string(p.Role)))
	c.JSON(http.StatusOK, gin.H{"message": "user registered successfully", "id": p.ID})
}

func (s *Server) loginHandler(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	user, err := authenticate(c.Request.Context(), s.db, req.Email, req.Password)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.respondWithTokens(c, user.ID.String())
}

func (s *Server) respondWithTokens(c *gin.Context, userID string) {
	ctx := c.Request.Context()
	var p models.Profile
	if err := s.db.WithContext(ctx).Preload("Company").First(&p, "id = ?", userID).Error; err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	tokens, err := s.issueTokens(ctx, &p)
	if err != nil {
		s.fail(c, err)
		return
	}
	tokens.Message = "login successful"
	c.JSON(http.StatusOK, tokens)
}

// requestLoginCodeHandler always answers the same way so the endpoint does
// not reveal which emails have accounts.
func (s *Server) requestLoginCodeHandler(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required,email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()
	email := normalizeEmail(req.Email)
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("email = ?", email).Count(&n).Error; err != nil {
		s.fail(c, err)
		return
	}
	if n > 0 {
		code, err := issueLoginCode(ctx, s.db, email, s.now())
		if err != nil {
			s.fail(c, err)
			return
		}
		if err := s.notifier.SendLoginCode(ctx, email, code); err != nil {
			s.log.Warn("login code email failed", zap.Error(err))
		}
	}
	c.JSON(http.StatusOK, gin.H{"message": "if an account exists for that email, a login code has been sent"})
}

func (s *Server) verifyLoginCodeHandler(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required"`
		Code  string `json:"code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()
	email := normalizeEmail(req.Email)
	if err := verifyLoginCode(ctx, s.db, email, req.Code, s.now()); err != nil {
		s.fail(c, err)
		return
	}
	var user models.User
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	s.respondWithTokens(c, user.ID.String())
}

// refreshHandler exchanges a refresh token for a new access token and rotates the refresh token
func (s *Server) refreshHandler(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()
	rt, err := findRefreshTokenByRaw(ctx, s.db, req.RefreshToken)
	if err != nil || rt.Revoked || s.now().After(rt.ExpiresAt) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired refresh token"})
		return
	}
	res := s.db.WithContext(ctx).Model(&models.RefreshToken{}).
		Where("id = ? AND revoked = ?", rt.ID, false).Update("revoked", true)
	if res.Error != nil {
		s.fail(c, res.Error)
		return
	}
	if res.RowsAffected == 0 {
		// lost a race with another refresh of the same token
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired refresh token"})
		return
	}
	s.respondWithTokens(c, rt.UserID.String())
}

// revokeRefreshHandler revokes a given refresh token (useful on logout)
func (s *Server) revokeRefreshHandler(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rt, err := findRefreshTokenByRaw(c.Request.Context(), s.db, req.RefreshToken)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "refresh token not found"})
		return
	}
	if err := s.db.WithContext(c.Request.Context()).Model(rt).Update("revoked", true).Error; err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "refresh token revoked"})
}

func (s *Server) meHandler(c *gin.Context) {
	p := currentProfile(c)
	resp := gin.H{"profile": p}
	if !p.Bank.IsZero() {
		resp["bank_details"] = p.Bank
	}
	if p.AvatarPath != "" {
		if url, err := s.objects.SignURL(p.AvatarPath, s.cfg.SignedURLTTL); err == nil {
			resp["avatar_url"] = url
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) updateProfileHandler(c *gin.Context) {
	var req struct {
		FullName    string              `json:"full_name" binding:"required"`
		BankDetails *models.BankAccount `json:"bank_details"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	name := strings.TrimSpace(req.FullName)
	if name == "" {
		s.fail(c, badRequest("full name is required"))
		return
	}
	fields := map[string]any{"full_name": name}
	var bank *models.BankAccount
	if req.BankDetails != nil {
		b := req.BankDetails.Normalize()
		if err := b.Validate(); err != nil {
			s.fail(c, err)
			return
		}
		for k, v := range b.Columns() {
			fields[k] = v
		}
		bank = &b
	}
	p := currentProfile(c)
	if err := s.store.UpdateProfileFields(c.Request.Context(), p.ID, fields); err != nil {
		s.fail(c, err)
		return
	}
	p.FullName = name
	if bank != nil {
		p.Bank = *bank
	}
	c.JSON(http.StatusOK, p)
}

// avatarHandler stores a profile picture. Only images are accepted.
func (s *Server) avatarHandler(c *gin.Context) {
	data, err := readUpload(c, "avatar")
	if err != nil {
		s.fail(c, err)
		return
	}
	_, ext, err := storage.Sniff(data, false)
	if err != nil {
		s.fail(c, err)
		return
	}
	ctx := c.Request.Context()
	p := currentProfile(c)
	key := storage.AvatarPath(p.ID, ext)
	if err := s.objects.Put(ctx, key, data); err != nil {
		s.fail(c, err)
		return
	}
	if err := s.store.UpdateProfileFields(ctx, p.ID, map[string]any{"avatar_path": key}); err != nil {
		s.fail(c, err)
		return
	}
	if p.AvatarPath != "" && p.AvatarPath != key {
		if err := s.objects.Delete(p.AvatarPath); err != nil && !errors.Is(err, storage.ErrNotFound) {
			s.log.Warn("remove old avatar", zap.String("path", p.AvatarPath), zap.Error(err))
		}
	}
	url, _ := s.objects.SignURL(key, s.cfg.SignedURLTTL)
	c.JSON(http.StatusOK, gin.H{"avatar_path": key, "avatar_url": url})
}

// readUpload reads the multipart file field, enforcing the upload limit.
func readUpload(c *gin.Context, field string) ([]byte, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		return nil, badRequest("%s file missing", field)
	}
	if fh.Size > storage.MaxUploadSize {
		return nil, storage.ErrTooLarge
	}
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return storage.ReadLimited(f, storage.MaxUploadSize)
}
