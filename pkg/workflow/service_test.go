package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"boringexpenses/models"
	"boringexpenses/pkg/notify"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	claims    map[uuid.UUID]models.Claim
	profiles  map[uuid.UUID]models.Profile
	totals    map[uuid.UUID]map[string]decimal.Decimal
	updateErr error
	// beforeUpdate runs inside UpdateClaimStatus, before the compare.
	beforeUpdate func()
}

func newMemStore() *memStore {
	return &memStore{
		claims:   map[uuid.UUID]models.Claim{},
		profiles: map[uuid.UUID]models.Profile{},
		totals:   map[uuid.UUID]map[string]decimal.Decimal{},
	}
}

func (m *memStore) ClaimWithOwner(ctx context.Context, id uuid.UUID) (*models.Claim, *models.Profile, error) {
	c, ok := m.claims[id]
	if !ok {
		return nil, nil, ErrNotFound
	}
	p := m.profiles[c.UserID]
	return &c, &p, nil
}

func (m *memStore) UpdateClaimStatus(ctx context.Context, c *models.Claim, expected models.ClaimStatus) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	if m.beforeUpdate != nil {
		m.beforeUpdate()
	}
	cur, ok := m.claims[c.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.Status != expected {
		return ErrConflict
	}
	m.claims[c.ID] = *c
	return nil
}

func (m *memStore) ClaimTotals(ctx context.Context, id uuid.UUID) (map[string]decimal.Decimal, error) {
	return m.totals[id], nil
}

type recordingPayer struct {
	requests []notify.PaymentRequest
	err      error
}

func (p *recordingPayer) Pay(ctx context.Context, req notify.PaymentRequest) (*notify.PaymentResult, error) {
	p.requests = append(p.requests, req)
	if p.err != nil {
		return nil, p.err
	}
	return &notify.PaymentResult{Reference: "PAY-test", Amount: req.Amount, Currency: req.Currency, Status: "completed"}, nil
}

type fixture struct {
	store    *memStore
	mailer   *notify.MemoryMailer
	payer    *recordingPayer
	svc      *Service
	now      time.Time
	employee models.Profile
	manager  models.Profile
	admin    models.Profile
	claim    uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	company := uuid.New()
	f := &fixture{
		store:  newMemStore(),
		mailer: &notify.MemoryMailer{},
		payer:  &recordingPayer{},
		now:    time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC),
	}
	f.manager = models.Profile{ID: uuid.New(), FullName: "Mona Manager", Email: "mona@example.com", Role: models.RoleManager, CompanyID: &company}
	f.admin = models.Profile{ID: uuid.New(), FullName: "Ada Admin", Email: "ada@example.com", Role: models.RoleAdmin, CompanyID: &company}
	f.employee = models.Profile{ID: uuid.New(), FullName: "Eve Employee", Email: "eve@example.com", Role: models.RoleEmployee, CompanyID: &company, ManagerID: &f.manager.ID}
	for _, p := range []models.Profile{f.manager, f.admin, f.employee} {
		f.store.profiles[p.ID] = p
	}
	f.claim = uuid.New()
	f.store.claims[f.claim] = models.Claim{ID: f.claim, UserID: f.employee.ID, Title: "Berlin trip", Status: models.StatusUnfiled}
	f.store.totals[f.claim] = map[string]decimal.Decimal{
		"GBP": decimal.RequireFromString("120.50"),
		"EUR": decimal.RequireFromString("40.00"),
	}
	f.svc = NewService(f.store, notify.NewNotifier(f.mailer), f.payer, nil)
	f.svc.now = func() time.Time { return f.now }
	return f
}

func (f *fixture) set(t *testing.T, who models.Profile, next models.ClaimStatus) *Result {
	t.Helper()
	res, err := f.svc.SetStatus(context.Background(), NewSession(who), f.claim, next)
	require.NoError(t, err)
	return res
}

func TestApplyStatusStampsApprover(t *testing.T) {
	actor := uuid.New()
	now := time.Now()
	for _, st := range []models.ClaimStatus{models.StatusFiled, models.StatusProcessing, models.StatusApproved, models.StatusPaid} {
		c := &models.Claim{Status: models.StatusUnfiled}
		ApplyStatus(c, st, actor, now)
		require.NotNil(t, c.ApprovedBy)
		require.NotNil(t, c.ApprovedAt)
		assert.Equal(t, actor, *c.ApprovedBy)
		assert.True(t, now.Equal(*c.ApprovedAt))
		assert.True(t, c.Filed)
		assert.Equal(t, st, c.Status)
	}
}

func TestApplyStatusUnfiledClearsApprover(t *testing.T) {
	prev := uuid.New()
	at := time.Now().Add(-time.Hour)
	c := &models.Claim{Status: models.StatusApproved, Filed: true, ApprovedBy: &prev, ApprovedAt: &at}
	ApplyStatus(c, models.StatusUnfiled, uuid.New(), time.Now())
	assert.Nil(t, c.ApprovedBy)
	assert.Nil(t, c.ApprovedAt)
	assert.False(t, c.Filed)
}

func TestRoundTrip(t *testing.T) {
	f := newFixture(t)

	res := f.set(t, f.employee, models.StatusFiled)
	assert.True(t, res.Changed)
	assert.Equal(t, models.StatusUnfiled, res.Previous)

	f.set(t, f.manager, models.StatusApproved)
	res = f.set(t, f.admin, models.StatusPaid)
	assert.Empty(t, res.Warnings)
	assert.Len(t, res.Payments, 2)

	stored := f.store.claims[f.claim]
	assert.Equal(t, models.StatusPaid, stored.Status)
	require.NotNil(t, stored.ApprovedBy)
	require.NotNil(t, stored.ApprovedAt)
	assert.Equal(t, f.admin.ID, *stored.ApprovedBy)
	assert.True(t, f.now.Equal(*stored.ApprovedAt))

	// paid is terminal even for admins
	_, err := f.svc.SetStatus(context.Background(), NewSession(f.admin), f.claim, models.StatusUnfiled)
	assert.ErrorIs(t, err, ErrTransitionNotAllowed)

	// an admin can still roll back an approved claim
	stored.Status = models.StatusApproved
	f.store.claims[f.claim] = stored
	f.set(t, f.admin, models.StatusUnfiled)
	stored = f.store.claims[f.claim]
	assert.Equal(t, models.StatusUnfiled, stored.Status)
	assert.Nil(t, stored.ApprovedBy)
	assert.Nil(t, stored.ApprovedAt)
	assert.False(t, stored.Filed)
}

func TestPaymentPerCurrency(t *testing.T) {
	f := newFixture(t)
	c := f.store.claims[f.claim]
	c.Status = models.StatusApproved
	f.store.claims[f.claim] = c

	f.set(t, f.admin, models.StatusPaid)
	require.Len(t, f.payer.requests, 2)
	assert.Equal(t, "EUR", f.payer.requests[0].Currency)
	assert.Equal(t, "GBP", f.payer.requests[1].Currency)
	assert.True(t, decimal.RequireFromString("120.50").Equal(f.payer.requests[1].Amount))
	assert.Equal(t, f.employee.Email, f.payer.requests[1].RecipientEmail)
}

func TestPaymentCarriesOwnerBankDetails(t *testing.T) {
	f := newFixture(t)
	assert.Nil(t, bankDetails(models.BankAccount{}))

	emp := f.store.profiles[f.employee.ID]
	emp.Bank = models.BankAccount{AccountName: "E Employee", SortCode: "12-34-56", AccountNumber: "12345678"}
	f.store.profiles[f.employee.ID] = emp
	c := f.store.claims[f.claim]
	c.Status = models.StatusApproved
	f.store.claims[f.claim] = c

	f.set(t, f.admin, models.StatusPaid)
	require.Len(t, f.payer.requests, 2)
	for _, req := range f.payer.requests {
		require.NotNil(t, req.BankDetails)
		assert.Equal(t, "12345678", req.BankDetails.AccountNumber)
		assert.Equal(t, "E Employee", req.BankDetails.AccountName)
	}
}

func TestPaymentOnlyOnPaid(t *testing.T) {
	f := newFixture(t)
	f.set(t, f.employee, models.StatusFiled)
	f.set(t, f.manager, models.StatusProcessing)
	assert.Empty(t, f.payer.requests)
	assert.Len(t, f.mailer.Sent, 2)
	last, ok := f.mailer.Last()
	require.True(t, ok)
	assert.Equal(t, "claim_processing", last.Kind)
	assert.Equal(t, f.employee.Email, last.To)
}

func TestSideEffectFailuresAreWarnings(t *testing.T) {
	f := newFixture(t)
	f.mailer.Err = errors.New("smtp down")
	f.payer.err = &notify.PaymentError{Reference: "PAY-x", Reason: "bank unavailable"}
	c := f.store.claims[f.claim]
	c.Status = models.StatusApproved
	f.store.claims[f.claim] = c

	res := f.set(t, f.admin, models.StatusPaid)
	assert.True(t, res.Changed)
	assert.Len(t, res.Warnings, 3)
	assert.Empty(t, res.Payments)
	assert.Equal(t, models.StatusPaid, f.store.claims[f.claim].Status)
}

func TestPaidWithoutExpensesWarns(t *testing.T) {
	f := newFixture(t)
	delete(f.store.totals, f.claim)
	c := f.store.claims[f.claim]
	c.Status = models.StatusApproved
	f.store.claims[f.claim] = c

	res := f.set(t, f.admin, models.StatusPaid)
	assert.Empty(t, f.payer.requests)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "no expenses")
}

func TestSameStatusIsNoop(t *testing.T) {
	f := newFixture(t)
	res := f.set(t, f.employee, models.StatusUnfiled)
	assert.False(t, res.Changed)
	assert.Empty(t, f.mailer.Sent)
}

func TestSetStatusRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.SetStatus(ctx, NewSession(f.employee), f.claim, models.ClaimStatus("done"))
	assert.ErrorIs(t, err, ErrInvalidStatus)

	_, err = f.svc.SetStatus(ctx, NewSession(f.employee), uuid.New(), models.StatusFiled)
	assert.ErrorIs(t, err, ErrNotFound)

	stranger := models.Profile{ID: uuid.New(), Role: models.RoleEmployee}
	_, err = f.svc.SetStatus(ctx, NewSession(stranger), f.claim, models.StatusFiled)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.SetStatus(ctx, NewSession(f.manager), f.claim, models.StatusApproved)
	assert.ErrorIs(t, err, ErrTransitionNotAllowed)

	_, err = f.svc.SetStatus(ctx, NewSession(f.employee), f.claim, models.StatusApproved)
	assert.ErrorIs(t, err, ErrTransitionNotAllowed)
	assert.Equal(t, models.StatusUnfiled, f.store.claims[f.claim].Status)
}

func TestSetStatusConflict(t *testing.T) {
	f := newFixture(t)
	f.store.beforeUpdate = func() {
		c := f.store.claims[f.claim]
		c.Status = models.StatusFiled
		f.store.claims[f.claim] = c
	}
	_, err := f.svc.SetStatus(context.Background(), NewSession(f.employee), f.claim, models.StatusFiled)
	assert.ErrorIs(t, err, ErrConflict)
	assert.Empty(t, f.mailer.Sent)
}

func TestSetStatusPersistenceFailure(t *testing.T) {
	f := newFixture(t)
	f.store.updateErr = errors.New("connection reset")
	res, err := f.svc.SetStatus(context.Background(), NewSession(f.employee), f.claim, models.StatusFiled)
	assert.Error(t, err)
	assert.Nil(t, res)
	stored := f.store.claims[f.claim]
	assert.Equal(t, models.StatusUnfiled, stored.Status)
	assert.Nil(t, stored.ApprovedBy)
	assert.Empty(t, f.mailer.Sent)
}
