package main

import (
	"errors"
	"net/http"
	"strings"

	"boringexpenses/models"
	"boringexpenses/pkg/store"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func (s *Server) listCategoriesHandler(c *gin.Context) {
	sess := currentSession(c)
	if sess.CompanyID == nil {
		c.JSON(http.StatusOK, []models.Category{})
		return
	}
	cats, err := s.store.ListCategories(c.Request.Context(), *sess.CompanyID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, cats)
}

// requireAdmin writes 403 and returns false unless the caller administers a company.
func (s *Server) requireAdmin(c *gin.Context) bool {
	sess := currentSession(c)
	if !sess.IsAdmin() || sess.CompanyID == nil {
		s.fail(c, errForbidden)
		return false
	}
	return true
}

func (s *Server) createCategoryHandler(c *gin.Context) {
	if !s.requireAdmin(c) {
		return
	}
	var req struct {
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		s.fail(c, badRequest("name is required"))
		return
	}
	cat := &models.Category{CompanyID: *currentSession(c).CompanyID, Name: req.Name}
	if err := s.store.CreateCategory(c.Request.Context(), cat); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			c.JSON(http.StatusConflict, gin.H{"error": "category already exists"})
			return
		}
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, cat)
}

func (s *Server) deleteCategoryHandler(c *gin.Context) {
	if !s.requireAdmin(c) {
		return
	}
	id, err := paramID(c, "id")
	if err != nil {
		s.fail(c, err)
		return
	}
	if err := s.store.DeleteCategory(c.Request.Context(), *currentSession(c).CompanyID, id); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "category deleted"})
}

// listUsersHandler returns the company directory for admins and the
// caller's direct reports for managers.
func (s *Server) listUsersHandler(c *gin.Context) {
	sess := currentSession(c)
	if sess.CompanyID == nil || sess.Role == models.RoleEmployee {
		s.fail(c, errForbidden)
		return
	}
	profiles, err := s.store.ListCompanyProfiles(c.Request.Context(), *sess.CompanyID)
	if err != nil {
		s.fail(c, err)
		return
	}
	if !sess.IsAdmin() {
		reports := profiles[:0]
		for _, p := range profiles {
			if p.ManagerID != nil && *p.ManagerID == sess.ActorID {
				reports = append(reports, p)
			}
		}
		profiles = reports
	}
	c.JSON(http.StatusOK, profiles)
}

// companyMember loads the profile named by :id, which must belong to the
// caller's company.
func (s *Server) companyMember(c *gin.Context) (*models.Profile, bool) {
	id, err := paramID(c, "id")
	if err != nil {
		s.fail(c, err)
		return nil, false
	}
	p, err := s.profiles.GetProfile(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return nil, false
	}
	if !currentProfile(c).SameCompany(*p) {
		s.fail(c, store.ErrNotFound)
		return nil, false
	}
	return p, true
}

func (s *Server) setRoleHandler(c *gin.Context) {
	if !s.requireAdmin(c) {
		return
	}
	target, ok := s.companyMember(c)
	if !ok {
		return
	}
	var req struct {
		Role models.Role `json:"role" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !req.Role.Valid() {
		s.fail(c, badRequest("unknown role %q", req.Role))
		return
	}
	if target.ID == currentSession(c).ActorID {
		s.fail(c, badRequest("you cannot change your own role"))
		return
	}
	if err := s.store.UpdateProfileFields(c.Request.Context(), target.ID, map[string]any{"role": req.Role}); err != nil {
		s.fail(c, err)
		return
	}
	target.Role = req.Role
	s.log.Info("role changed", zap.String("user_id", target.ID.String()), zap.String("role", string(req.Role)))
	c.JSON(http.StatusOK, target)
}

// setManagerHandler assigns who approves the user's claims. A null
// manager_id removes the assignment.
func (s *Server) setManagerHandler(c *gin.Context) {
	if !s.requireAdmin(c) {
		return
	}
	target, ok := s.companyMember(c)
	if !ok {
		return
	}
	var req struct {
		ManagerID *uuid.UUID `json:"manager_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()
	var value any = gorm.Expr("NULL")
	if req.ManagerID != nil {
		if *req.ManagerID == target.ID {
			s.fail(c, badRequest("a user cannot manage themselves"))
			return
		}
		mgr, err := s.profiles.GetProfile(ctx, *req.ManagerID)
		if errors.Is(err, store.ErrNotFound) || (err == nil && !mgr.SameCompany(*target)) {
			s.fail(c, badRequest("unknown manager"))
			return
		}
		if err != nil {
			s.fail(c, err)
			return
		}
		if !mgr.Role.CanApprove() {
			s.fail(c, badRequest("manager must have the manager or admin role"))
			return
		}
		value = mgr.ID
	}
	if err := s.store.UpdateProfileFields(ctx, target.ID, map[string]any{"manager_id": value}); err != nil {
		s.fail(c, err)
		return
	}
	target.ManagerID = req.ManagerID
	c.JSON(http.StatusOK, target)
}

// inviteHandler brings an email into the caller's company. Existing users
// are moved over directly; anyone else gets an invite token by email.
func (s *Server) inviteHandler(c *gin.Context) {
	if !s.requireAdmin(c) {
		return
	}
	var req struct {
		Email string      `json:"email" binding:"required,email"`
		Role  models.Role `json:"role"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Role == "" {
		req.Role = models.RoleEmployee
	}
	if !req.Role.Valid() {
		s.fail(c, badRequest("unknown role %q", req.Role))
		return
	}
	ctx := c.Request.Context()
	admin := currentProfile(c)
	companyID := *admin.CompanyID
	companyName := "your company"
	if admin.Company != nil {
		companyName = admin.Company.Name
	}
	email := normalizeEmail(req.Email)
	warnings := []string{}

	var existing models.Profile
	err := s.db.WithContext(ctx).Where("email = ?", email).First(&existing).Error
	switch {
	case err == nil:
		if existing.CompanyID != nil && *existing.CompanyID == companyID {
			s.fail(c, badRequest("user is already a member of this company"))
			return
		}
		err := s.store.UpdateProfileFields(ctx, existing.ID, map[string]any{
			"company_id": companyID,
			"role":       req.Role,
			"manager_id": gorm.Expr("NULL"),
		})
		if err != nil {
			s.fail(c, err)
			return
		}
		if err := s.notifier.SendInvite(ctx, email, admin.FullName, companyName, ""); err != nil {
			warnings = append(warnings, "notification could not be sent: "+err.Error())
		}
		c.JSON(http.StatusOK, gin.H{"status": "added", "user_id": existing.ID, "warnings": warnings})
		return
	case !errors.Is(err, gorm.ErrRecordNotFound):
		s.fail(c, err)
		return
	}

	var pending int64
	err = s.db.WithContext(ctx).Model(&models.Invite{}).
		Where("email = ? AND company_id = ? AND accepted_at IS NULL AND expires_at > ?", email, companyID, s.now()).
		Count(&pending).Error
	if err != nil {
		s.fail(c, err)
		return
	}
	if pending > 0 {
		s.fail(c, badRequest("a pending invitation already exists for this email address"))
		return
	}

	token, err := randomToken()
	if err != nil {
		s.fail(c, err)
		return
	}
	inv := models.Invite{
		Email:     email,
		Role:      req.Role,
		CompanyID: companyID,
		InvitedBy: admin.ID,
		TokenHash: hashToken(token),
		ExpiresAt: s.now().Add(inviteTTL),
	}
	if err := s.db.WithContext(ctx).Create(&inv).Error; err != nil {
		s.fail(c, err)
		return
	}
	if err := s.notifier.SendInvite(ctx, email, admin.FullName, companyName, token); err != nil {
		warnings = append(warnings, "invite email could not be sent: "+err.Error())
	}
	c.JSON(http.StatusCreated, gin.H{"status": "invited", "invite_id": inv.ID, "expires_at": inv.ExpiresAt, "warnings": warnings})
}
