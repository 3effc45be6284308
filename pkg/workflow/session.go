package workflow

import (
	"boringexpenses/models"

	"github.com/google/uuid"
)

// Session identifies the acting user for a single request.
type Session struct {
	ActorID   uuid.UUID
	Role      models.Role
	CompanyID *uuid.UUID
	Email     string
	Name      string
}

// NewSession builds a session from the actor's profile.
func NewSession(p models.Profile) Session {
	return Session{ActorID: p.ID, Role: p.Role, CompanyID: p.CompanyID, Email: p.Email, Name: p.FullName}
}

// Relation returns how the actor relates to the owner of a claim.
func (s Session) Relation(owner models.Profile) (isOwner, isManagerOfOwner bool) {
	isOwner = owner.ID == s.ActorID
	isManagerOfOwner = !isOwner &&
		owner.ManagerID != nil && *owner.ManagerID == s.ActorID &&
		s.sameCompany(owner)
	return isOwner, isManagerOfOwner
}

// CanView reports whether the actor may read claims owned by owner.
func (s Session) CanView(owner models.Profile) bool {
	isOwner, isManager := s.Relation(owner)
	if isOwner || isManager {
		return true
	}
	return s.Role == models.RoleAdmin && s.sameCompany(owner)
}

func (s Session) IsAdmin() bool { return s.Role == models.RoleAdmin }

func (s Session) sameCompany(owner models.Profile) bool {
	return s.CompanyID != nil && owner.CompanyID != nil && *s.CompanyID == *owner.CompanyID
}

// Allowed is AllowedNextStatuses evaluated for this session.
func (s Session) Allowed(c *models.Claim, owner models.Profile) []models.ClaimStatus {
	isOwner, isManager := s.Relation(owner)
	return AllowedNextStatuses(c.Status, s.Role, isOwner, isManager)
}

// CanEditClaim is CanEdit evaluated for this session.
func (s Session) CanEditClaim(c *models.Claim, owner models.Profile) bool {
	isOwner, _ := s.Relation(owner)
	return CanEdit(c.Status, s.Role, isOwner)
}
