package main

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"boringexpenses/models"
	"boringexpenses/pkg/ai"
	"boringexpenses/pkg/receipts"
	"boringexpenses/pkg/storage"
	"boringexpenses/pkg/store"
	"boringexpenses/pkg/workflow"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var errClaimLocked = fmt.Errorf("%w: the claim can no longer be edited", errForbidden)

func (s *Server) listExpensesHandler(c *gin.Context) {
	sess := currentSession(c)
	ctx := c.Request.Context()
	f := store.ExpenseFilter{UserID: sess.ActorID}
	if v := c.Query("claim_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			s.fail(c, badRequest("invalid claim_id"))
			return
		}
		_, owner, err := s.store.ClaimWithOwner(ctx, id)
		if err != nil {
			s.fail(c, err)
			return
		}
		if !sess.CanView(*owner) {
			s.fail(c, workflow.ErrForbidden)
			return
		}
		f.UserID, f.ClaimID = owner.ID, &id
	}
	if v := c.Query("category_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			s.fail(c, badRequest("invalid category_id"))
			return
		}
		f.CategoryID = &id
	}
	for _, q := range []struct {
		name string
		dst  **time.Time
		add  time.Duration
	}{{"from", &f.From, 0}, {"to", &f.To, 24 * time.Hour}} {
		if v := c.Query(q.name); v != "" {
			d, err := models.ParseDate(v)
			if err != nil {
				s.fail(c, badRequest("invalid %s date", q.name))
				return
			}
			t := d.Add(q.add)
			*q.dst = &t
		}
	}
	expenses, err := s.store.ListExpenses(ctx, f)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, expenses)
}

// checkRefs validates the category and claim an expense points at. It
// returns the claim, if any.
func (s *Server) checkRefs(c *gin.Context, in *models.ExpenseInput) (*models.Claim, error) {
	sess := currentSession(c)
	ctx := c.Request.Context()
	if in.CategoryID != nil {
		cat, err := s.store.GetCategory(ctx, *in.CategoryID)
		if errors.Is(err, store.ErrNotFound) || (err == nil && (sess.CompanyID == nil || cat.CompanyID != *sess.CompanyID)) {
			return nil, badRequest("unknown category")
		}
		if err != nil {
			return nil, err
		}
	}
	if in.ClaimID == nil {
		return nil, nil
	}
	cl, owner, err := s.store.ClaimWithOwner(ctx, *in.ClaimID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, badRequest("unknown claim")
	}
	if err != nil {
		return nil, err
	}
	if owner.ID != sess.ActorID {
		return nil, errForbidden
	}
	if !sess.CanEditClaim(cl, *owner) {
		return nil, errClaimLocked
	}
	return cl, nil
}

func (s *Server) bindExpense(c *gin.Context) (*models.ExpenseInput, error) {
	var in models.ExpenseInput
	if err := c.ShouldBindJSON(&in); err != nil {
		return nil, &requestError{msg: err.Error()}
	}
	if strings.TrimSpace(in.Currency) == "" {
		in.Currency = s.cfg.DefaultCurrency
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}
	return &in, nil
}

func (s *Server) createExpenseHandler(c *gin.Context) {
	in, err := s.bindExpense(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	cl, err := s.checkRefs(c, in)
	if err != nil {
		s.fail(c, err)
		return
	}
	e := &models.Expense{UserID: currentSession(c).ActorID}
	if in.ID != nil {
		if err := s.checkReplay(c, *in.ID); err != nil {
			s.fail(c, err)
			return
		}
		e.ID = *in.ID
	}
	in.Apply(e)
	e.Filed = cl != nil && cl.Filed
	if err := s.store.SaveExpense(c.Request.Context(), e); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, e)
}

// checkReplay applies the PUT rules when a create carries the id of an
// expense that already exists.
func (s *Server) checkReplay(c *gin.Context, id uuid.UUID) error {
	existing, err := s.store.GetExpense(c.Request.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if existing.UserID != currentSession(c).ActorID {
		return errForbidden
	}
	return s.ensureUnlocked(c, existing)
}

// loadExpense fetches the expense named by :id. Writers must own it;
// readers may also be the owner's manager or a company admin.
func (s *Server) loadExpense(c *gin.Context, write bool) (*models.Expense, bool) {
	id, err := paramID(c, "id")
	if err != nil {
		s.fail(c, err)
		return nil, false
	}
	ctx := c.Request.Context()
	e, err := s.store.GetExpense(ctx, id)
	if err != nil {
		s.fail(c, err)
		return nil, false
	}
	sess := currentSession(c)
	if e.UserID == sess.ActorID {
		return e, true
	}
	if !write {
		owner, err := s.profiles.GetProfile(ctx, e.UserID)
		if err == nil && sess.CanView(*owner) {
			return e, true
		}
	}
	s.fail(c, errForbidden)
	return nil, false
}

// ensureUnlocked rejects changes to an expense whose claim is past editing.
func (s *Server) ensureUnlocked(c *gin.Context, e *models.Expense) error {
	if e.ClaimID == nil {
		return nil
	}
	cl, owner, err := s.store.ClaimWithOwner(c.Request.Context(), *e.ClaimID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !currentSession(c).CanEditClaim(cl, *owner) {
		return errClaimLocked
	}
	return nil
}

func (s *Server) getExpenseHandler(c *gin.Context) {
	e, ok := s.loadExpense(c, false)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, e)
}

func (s *Server) updateExpenseHandler(c *gin.Context) {
	e, ok := s.loadExpense(c, true)
	if !ok {
		return
	}
	if err := s.ensureUnlocked(c, e); err != nil {
		s.fail(c, err)
		return
	}
	in, err := s.bindExpense(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	cl, err := s.checkRefs(c, in)
	if err != nil {
		s.fail(c, err)
		return
	}
	in.Apply(e)
	e.Filed = cl != nil && cl.Filed
	if err := s.store.UpdateExpense(c.Request.Context(), e); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, e)
}

func (s *Server) deleteExpenseHandler(c *gin.Context) {
	e, ok := s.loadExpense(c, true)
	if !ok {
		return
	}
	if err := s.ensureUnlocked(c, e); err != nil {
		s.fail(c, err)
		return
	}
	if err := s.store.DeleteExpense(c.Request.Context(), e.ID); err != nil {
		s.fail(c, err)
		return
	}
	if e.ReceiptPath != nil {
		s.removeObject(*e.ReceiptPath)
	}
	c.JSON(http.StatusOK, gin.H{"message": "expense deleted"})
}

func (s *Server) removeObject(p string) {
	if err := s.objects.Delete(p); err != nil && !errors.Is(err, storage.ErrNotFound) {
		s.log.Warn("remove object", zap.String("path", p), zap.Error(err))
	}
}

// uploadReceiptHandler attaches an image or PDF receipt to an expense,
// replacing any previous one.
func (s *Server) uploadReceiptHandler(c *gin.Context) {
	e, ok := s.loadExpense(c, true)
	if !ok {
		return
	}
	if err := s.ensureUnlocked(c, e); err != nil {
		s.fail(c, err)
		return
	}
	data, err := readUpload(c, "file")
	if err != nil {
		s.fail(c, err)
		return
	}
	_, ext, err := storage.Sniff(data, true)
	if err != nil {
		s.fail(c, err)
		return
	}
	ctx := c.Request.Context()
	key := storage.ReceiptPath(e.UserID, ext)
	if err := s.objects.Put(ctx, key, data); err != nil {
		s.fail(c, err)
		return
	}
	if err := s.store.SetExpenseReceipt(ctx, e.ID, key); err != nil {
		s.removeObject(key)
		s.fail(c, err)
		return
	}
	if e.ReceiptPath != nil && *e.ReceiptPath != key {
		s.removeObject(*e.ReceiptPath)
	}
	url, _ := s.objects.SignURL(key, s.cfg.SignedURLTTL)
	c.JSON(http.StatusOK, gin.H{"receipt_path": key, "url": url})
}

func (s *Server) receiptURLHandler(c *gin.Context) {
	e, ok := s.loadExpense(c, false)
	if !ok {
		return
	}
	if e.ReceiptPath == nil || *e.ReceiptPath == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "expense has no receipt"})
		return
	}
	url, err := s.objects.SignURL(*e.ReceiptPath, s.cfg.SignedURLTTL)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url, "expires_at": s.now().Add(s.cfg.SignedURLTTL).UTC()})
}

// extractReceiptHandler reads a receipt image and suggests values for an
// expense form. Form fields the user already filled are left alone.
func (s *Server) extractReceiptHandler(c *gin.Context) {
	fh, err := c.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No image file provided"})
		return
	}
	if fh.Size > storage.MaxUploadSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Image too large. Please use images smaller than 5MB."})
		return
	}
	if s.extractor == nil {
		s.fail(c, receipts.ErrUnavailable)
		return
	}
	f, err := fh.Open()
	if err != nil {
		s.fail(c, err)
		return
	}
	data, err := storage.ReadLimited(f, storage.MaxUploadSize)
	f.Close()
	if errors.Is(err, storage.ErrTooLarge) {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Image too large. Please use images smaller than 5MB."})
		return
	}
	if err != nil {
		s.fail(c, err)
		return
	}
	mime, _, err := storage.Sniff(data, false)
	if err != nil {
		s.fail(c, err)
		return
	}

	var form models.ExpenseInput
	form.Description = c.PostForm("description")
	form.Location = c.PostForm("location")
	form.Currency = strings.ToUpper(strings.TrimSpace(c.PostForm("currency")))
	if v := c.PostForm("amount"); v != "" {
		if amt, err := decimal.NewFromString(v); err == nil {
			form.Amount = amt
		}
	}
	if v := c.PostForm("date"); v != "" {
		if d, err := models.ParseDate(v); err == nil {
			form.Date = d
		}
	}

	d, err := s.extractor.Extract(c.Request.Context(), data, mime)
	if err != nil {
		s.log.Warn("receipt extraction failed", zap.Error(err))
		s.fail(c, receipts.ErrUnavailable)
		return
	}
	filled := receipts.Apply(&form, d)
	if filled == nil {
		filled = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"data": d, "expense": form, "filled": filled})
}

func (s *Server) chatHandler(c *gin.Context) {
	var req struct {
		Question string `json:"question"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Question) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Please provide a valid question"})
		return
	}
	if s.ai == nil {
		s.fail(c, ai.ErrNotConfigured)
		return
	}
	ctx := c.Request.Context()
	expenses, err := s.store.ListExpenses(ctx, store.ExpenseFilter{UserID: currentSession(c).ActorID})
	if err != nil {
		s.fail(c, err)
		return
	}
	rows := make([]ai.ExpenseRow, len(expenses))
	for i, e := range expenses {
		rows[i] = ai.ExpenseRow{
			Date:        e.Date.Format("2006-01-02"),
			Description: e.Description,
			Location:    e.Location,
			Amount:      e.Amount,
			Currency:    e.Currency,
		}
		if e.Category != nil {
			rows[i].Category = e.Category.Name
		}
	}
	answer, err := s.ai.AnswerQuestion(ctx, req.Question, rows)
	if err != nil {
		s.log.Warn("chat failed", zap.Error(err))
		s.fail(c, receipts.ErrUnavailable)
		return
	}
	c.JSON(http.StatusOK, gin.H{"answer": answer, "expense_count": len(rows)})
}
