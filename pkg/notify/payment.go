package notify

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"boringexpenses/pkg/currency"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var ErrPaymentFailed = errors.New("payment processing failed")

type BankDetails struct {
	AccountName   string `json:"account_name"`
	SortCode      string `json:"sort_code,omitempty"`
	AccountNumber string `json:"account_number,omitempty"`
	IBAN          string `json:"iban,omitempty"`
}

type PaymentRequest struct {
	ClaimID        uuid.UUID       `json:"claim_id"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	RecipientEmail string          `json:"user_email"`
	RecipientName  string          `json:"user_name"`
	ClaimTitle     string          `json:"claim_title"`
	BankDetails    *BankDetails    `json:"bank_details,omitempty"`
}

type PaymentResult struct {
	Reference         string          `json:"reference"`
	Amount            decimal.Decimal `json:"amount"`
	Currency          string          `json:"currency"`
	Recipient         string          `json:"recipient"`
	Status            string          `json:"status"`
	EstimatedDelivery string          `json:"estimated_delivery"`
}

// PaymentError carries the provider reference of a failed payment.
type PaymentError struct {
	Reference string
	Reason    string
}

func (e *PaymentError) Error() string {
	return fmt.Sprintf("payment %s failed: %s", e.Reference, e.Reason)
}

func (e *PaymentError) Is(target error) bool { return target == ErrPaymentFailed }

// StubPayer simulates a payment provider. It succeeds with SuccessRate
// probability; confirmations must be treated as unreliable by callers.
type StubPayer struct {
	SuccessRate float64
	rand        func() float64
	now         func() time.Time
	log         *zap.Logger
}

func NewStubPayer(log *zap.Logger) *StubPayer {
	return &StubPayer{SuccessRate: 0.9, rand: rand.Float64, now: time.Now, log: log}
}

func (p *StubPayer) Pay(ctx context.Context, req PaymentRequest) (*PaymentResult, error) {
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("payment amount must be positive, got %s", req.Amount)
	}
	if !currency.Valid(req.Currency) {
		return nil, fmt.Errorf("unsupported payment currency %q", req.Currency)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ref := fmt.Sprintf("PAY-%s-%d", req.ClaimID, p.now().UnixMilli())
	p.log.Info("payment requested",
		zap.String("reference", ref),
		zap.String("claim_id", req.ClaimID.String()),
		zap.String("amount", req.Amount.StringFixed(2)),
		zap.String("currency", req.Currency),
		zap.String("recipient", req.RecipientEmail),
		zap.Bool("bank_details", req.BankDetails != nil),
	)
	if p.rand() >= p.SuccessRate {
		return nil, &PaymentError{Reference: ref, Reason: "insufficient bank details or payment service unavailable"}
	}
	return &PaymentResult{
		Reference:         ref,
		Amount:            req.Amount,
		Currency:          req.Currency,
		Recipient:         req.RecipientEmail,
		Status:            "completed",
		EstimatedDelivery: "1-3 business days",
	}, nil
}
