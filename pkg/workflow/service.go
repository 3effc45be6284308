package workflow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"boringexpenses/models"
	"boringexpenses/pkg/notify"
	"boringexpenses/pkg/store"
	"boringexpenses/pkg/telemetry"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var (
	ErrInvalidStatus        = errors.New("invalid claim status")
	ErrForbidden            = errors.New("not allowed to access this claim")
	ErrTransitionNotAllowed = errors.New("status transition not allowed")
	ErrNotFound             = store.ErrNotFound
	ErrConflict             = store.ErrConflict
)

// Store is the persistence the service needs.
type Store interface {
	ClaimWithOwner(ctx context.Context, id uuid.UUID) (*models.Claim, *models.Profile, error)
	UpdateClaimStatus(ctx context.Context, c *models.Claim, expected models.ClaimStatus) error
	ClaimTotals(ctx context.Context, id uuid.UUID) (map[string]decimal.Decimal, error)
}

type Notifier interface {
	NotifyStatus(ctx context.Context, n notify.StatusNotification) error
}

type Payer interface {
	Pay(ctx context.Context, req notify.PaymentRequest) (*notify.PaymentResult, error)
}

// Result is the outcome of SetStatus. Warnings list side effects that
// failed after the status change was committed.
type Result struct {
	Claim    *models.Claim          `json:"claim"`
	Previous models.ClaimStatus     `json:"previous_status"`
	Changed  bool                   `json:"changed"`
	Warnings []string               `json:"warnings"`
	Payments []notify.PaymentResult `json:"payments"`
}

type Service struct {
	store    Store
	notifier Notifier
	payer    Payer
	log      *zap.Logger
	now      func() time.Time
}

func NewService(st Store, n Notifier, p Payer, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: st, notifier: n, payer: p, log: log, now: time.Now}
}

// ApplyStatus stamps next onto c. Moving back to unfiled clears the
// approval fields; any other status records actor and now.
func ApplyStatus(c *models.Claim, next models.ClaimStatus, actor uuid.UUID, now time.Time) {
	c.Status = next
	c.Filed = next.Index() >= models.StatusFiled.Index()
	c.UpdatedAt = now
	if next == models.StatusUnfiled {
		c.ApprovedBy = nil
		c.ApprovedAt = nil
		return
	}
	a, t := actor, now
	c.ApprovedBy = &a
	c.ApprovedAt = &t
}

// SetStatus moves a claim to next on behalf of sess.
func (s *Service) SetStatus(ctx context.Context, sess Session, claimID uuid.UUID, next models.ClaimStatus) (*Result, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "workflow.SetStatus")
	defer span.End()
	span.SetAttributes(attribute.String("claim.id", claimID.String()), attribute.String("claim.next_status", string(next)))

	if !next.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, next)
	}
	claim, owner, err := s.store.ClaimWithOwner(ctx, claimID)
	if err != nil {
		return nil, fmt.Errorf("load claim %s: %w", claimID, err)
	}
	if !sess.CanView(*owner) {
		return nil, ErrForbidden
	}
	prev := claim.Status
	isOwner, isManager := sess.Relation(*owner)
	if !IsAllowed(prev, next, sess.Role, isOwner, isManager) {
		return nil, fmt.Errorf("%w: %s to %s as %s", ErrTransitionNotAllowed, prev, next, sess.Role)
	}
	res := &Result{Claim: claim, Previous: prev, Warnings: []string{}, Payments: []notify.PaymentResult{}}
	if prev == next {
		return res, nil
	}

	ApplyStatus(claim, next, sess.ActorID, s.now().UTC())
	if err := s.store.UpdateClaimStatus(ctx, claim, prev); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("set claim status: %w", err)
	}
	res.Changed = true
	telemetry.RecordTransition(ctx, string(prev), string(next))
	s.log.Info("claim status changed",
		zap.String("claim_id", claimID.String()),
		zap.String("from", string(prev)),
		zap.String("to", string(next)),
		zap.String("actor", sess.ActorID.String()))

	s.notify(ctx, res, owner)
	if next == models.StatusPaid {
		s.pay(ctx, res, owner)
	}
	return res, nil
}

func (s *Service) notify(ctx context.Context, res *Result, owner *models.Profile) {
	if s.notifier == nil {
		return
	}
	err := s.notifier.NotifyStatus(ctx, notify.StatusNotification{
		ClaimID:        res.Claim.ID,
		Status:         res.Claim.Status,
		RecipientEmail: owner.Email,
		RecipientName:  owner.FullName,
		ClaimTitle:     res.Claim.Title,
	})
	if err != nil {
		telemetry.RecordSideEffectFailure(ctx, "notification")
		s.log.Warn("status notification failed", zap.String("claim_id", res.Claim.ID.String()), zap.Error(err))
		res.Warnings = append(res.Warnings, "notification could not be sent: "+err.Error())
	}
}

// pay issues one payment per currency present in the claim's expenses.
func bankDetails(b models.BankAccount) *notify.BankDetails {
	if b.IsZero() {
		return nil
	}
	return &notify.BankDetails{
		AccountName:   b.AccountName,
		SortCode:      b.SortCode,
		AccountNumber: b.AccountNumber,
		IBAN:          b.IBAN,
	}
}

func (s *Service) pay(ctx context.Context, res *Result, owner *models.Profile) {
	if s.payer == nil {
		return
	}
	totals, err := s.store.ClaimTotals(ctx, res.Claim.ID)
	if err != nil {
		telemetry.RecordSideEffectFailure(ctx, "payment")
		s.log.Warn("claim totals failed", zap.String("claim_id", res.Claim.ID.String()), zap.Error(err))
		res.Warnings = append(res.Warnings, "payment was not initiated: could not compute claim total")
		return
	}
	if len(totals) == 0 {
		res.Warnings = append(res.Warnings, "payment was not initiated: claim has no expenses")
		return
	}
	codes := make([]string, 0, len(totals))
	for code := range totals {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	for _, code := range codes {
		pr, err := s.payer.Pay(ctx, notify.PaymentRequest{
			ClaimID:        res.Claim.ID,
			Amount:         totals[code],
			Currency:       code,
			RecipientEmail: owner.Email,
			RecipientName:  owner.FullName,
			ClaimTitle:     res.Claim.Title,
			BankDetails:    bankDetails(owner.Bank),
		})
		if err != nil {
			telemetry.RecordSideEffectFailure(ctx, "payment")
			s.log.Warn("payment failed",
				zap.String("claim_id", res.Claim.ID.String()),
				zap.String("currency", code),
				zap.Error(err))
			res.Warnings = append(res.Warnings, fmt.Sprintf("payment of %s %s failed: %v", totals[code].StringFixed(2), code, err))
			continue
		}
		res.Payments = append(res.Payments, *pr)
	}
}
