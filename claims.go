package main

import (
	"net/http"
	"strings"

	"boringexpenses/models"
	"boringexpenses/pkg/store"
	"boringexpenses/pkg/workflow"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// claimView is a claim as seen by the current user: what they may do next
// and how far along it is.
type claimView struct {
	*models.Claim
	AllowedNextStatuses []models.ClaimStatus       `json:"allowed_next_statuses"`
	CanEdit             bool                       `json:"can_edit"`
	Progress            []workflow.Step            `json:"progress"`
	Totals              map[string]decimal.Decimal `json:"totals,omitempty"`
}

func newClaimView(sess workflow.Session, c *models.Claim, owner *models.Profile) claimView {
	v := claimView{Claim: c, AllowedNextStatuses: []models.ClaimStatus{}, Progress: workflow.Progress(c.Status)}
	if owner != nil {
		v.AllowedNextStatuses = sess.Allowed(c, *owner)
		v.CanEdit = sess.CanEditClaim(c, *owner)
	}
	return v
}

// listClaimsHandler lists claims by scope: mine (default), team (claims of
// the caller's reports) or company (admins only).
func (s *Server) listClaimsHandler(c *gin.Context) {
	sess := currentSession(c)
	ctx := c.Request.Context()
	f := store.ClaimFilter{Status: models.ClaimStatus(c.Query("status"))}
	if f.Status != "" && !f.Status.Valid() {
		s.fail(c, workflow.ErrInvalidStatus)
		return
	}
	switch scope := c.DefaultQuery("scope", "mine"); scope {
	case "mine":
		f.UserIDs = []uuid.UUID{sess.ActorID}
	case "team":
		ids, err := s.store.ReportIDs(ctx, sess.ActorID)
		if err != nil {
			s.fail(c, err)
			return
		}
		if len(ids) == 0 {
			c.JSON(http.StatusOK, []claimView{})
			return
		}
		f.UserIDs = ids
	case "company":
		if !sess.IsAdmin() || sess.CompanyID == nil {
			s.fail(c, errForbidden)
			return
		}
		f.CompanyID = sess.CompanyID
	default:
		s.fail(c, badRequest("unknown scope %q", scope))
		return
	}
	claims, err := s.store.ListClaims(ctx, f)
	if err != nil {
		s.fail(c, err)
		return
	}
	out := make([]claimView, 0, len(claims))
	for i := range claims {
		cl := &claims[i]
		if cl.User != nil && !sess.CanView(*cl.User) {
			continue
		}
		out = append(out, newClaimView(sess, cl, cl.User))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) createClaimHandler(c *gin.Context) {
	var in models.ClaimInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := in.Validate(); err != nil {
		s.fail(c, err)
		return
	}
	sess := currentSession(c)
	cl := &models.Claim{
		UserID:      sess.ActorID,
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
		Status:      models.StatusUnfiled,
	}
	if err := s.store.CreateClaim(c.Request.Context(), cl); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, newClaimView(sess, cl, currentProfile(c)))
}

// loadClaim fetches the claim named by :id and checks the caller may see it.
func (s *Server) loadClaim(c *gin.Context) (*models.Claim, *models.Profile, bool) {
	id, err := paramID(c, "id")
	if err != nil {
		s.fail(c, err)
		return nil, nil, false
	}
	cl, owner, err := s.store.ClaimWithOwner(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return nil, nil, false
	}
	if !currentSession(c).CanView(*owner) {
		s.fail(c, workflow.ErrForbidden)
		return nil, nil, false
	}
	return cl, owner, true
}

func (s *Server) getClaimHandler(c *gin.Context) {
	cl, owner, ok := s.loadClaim(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	expenses, err := s.store.ListExpenses(ctx, store.ExpenseFilter{UserID: owner.ID, ClaimID: &cl.ID})
	if err != nil {
		s.fail(c, err)
		return
	}
	totals, err := s.store.ClaimTotals(ctx, cl.ID)
	if err != nil {
		s.fail(c, err)
		return
	}
	cl.Expenses = expenses
	v := newClaimView(currentSession(c), cl, owner)
	v.Totals = totals
	c.JSON(http.StatusOK, v)
}

func (s *Server) updateClaimHandler(c *gin.Context) {
	cl, owner, ok := s.loadClaim(c)
	if !ok {
		return
	}
	sess := currentSession(c)
	if !sess.CanEditClaim(cl, *owner) {
		s.fail(c, errForbidden)
		return
	}
	var in models.ClaimInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := in.Validate(); err != nil {
		s.fail(c, err)
		return
	}
	cl.Title = strings.TrimSpace(in.Title)
	cl.Description = strings.TrimSpace(in.Description)
	if err := s.store.UpdateClaimDetails(c.Request.Context(), cl); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newClaimView(sess, cl, owner))
}

// deleteClaimHandler removes a claim; its expenses stay, unassigned.
func (s *Server) deleteClaimHandler(c *gin.Context) {
	cl, owner, ok := s.loadClaim(c)
	if !ok {
		return
	}
	if !currentSession(c).CanEditClaim(cl, *owner) {
		s.fail(c, errForbidden)
		return
	}
	if err := s.store.DeleteClaim(c.Request.Context(), cl.ID); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "claim deleted"})
}

func (s *Server) setClaimStatusHandler(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		s.fail(c, err)
		return
	}
	var req struct {
		Status models.ClaimStatus `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := s.workflow.SetStatus(c.Request.Context(), currentSession(c), id, req.Status)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
