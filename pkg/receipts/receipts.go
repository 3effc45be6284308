// Package receipts defines best-effort receipt extraction and the rules for
// merging extracted values into a user's expense form.
package receipts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"boringexpenses/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// MinConfidence is the confidence extracted values must exceed before they
// may be copied into an expense form.
const MinConfidence = 0.3

var ErrUnavailable = errors.New("receipt extraction unavailable")

// Data is what an extractor read from a receipt. Date is "2006-01-02" or
// empty when unknown.
type Data struct {
	Description string          `json:"description"`
	Location    string          `json:"location"`
	Date        string          `json:"date"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency,omitempty"`
	Confidence  float64         `json:"confidence"`
	Source      string          `json:"source"`
}

type Extractor interface {
	Name() string
	Extract(ctx context.Context, image []byte, mime string) (*Data, error)
}

// Chain tries extractors in order and returns the first success.
type Chain struct {
	extractors []Extractor
	log        *zap.Logger
}

func NewChain(log *zap.Logger, extractors ...Extractor) *Chain {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Chain{log: log}
	for _, e := range extractors {
		if e != nil {
			c.extractors = append(c.extractors, e)
		}
	}
	return c
}

func (c *Chain) Name() string {
	names := make([]string, len(c.extractors))
	for i, e := range c.extractors {
		names[i] = e.Name()
	}
	return strings.Join(names, ",")
}

func (c *Chain) Extract(ctx context.Context, image []byte, mime string) (*Data, error) {
	if len(c.extractors) == 0 {
		return nil, ErrUnavailable
	}
	var errs []error
	for _, e := range c.extractors {
		d, err := e.Extract(ctx, image, mime)
		if err == nil && d != nil {
			if d.Source == "" {
				d.Source = e.Name()
			}
			return d, nil
		}
		if err == nil {
			err = errors.New("empty result")
		}
		c.log.Info("receipt extractor failed", zap.String("extractor", e.Name()), zap.Error(err))
		errs = append(errs, fmt.Errorf("%s: %w", e.Name(), err))
		if ctx.Err() != nil {
			break
		}
	}
	return nil, fmt.Errorf("%w: %w", ErrUnavailable, errors.Join(errs...))
}

// Apply fills the empty fields of in from d. Nothing is copied unless d is
// above MinConfidence. It returns the JSON names of the fields it filled.
func Apply(in *models.ExpenseInput, d *Data) []string {
	if d == nil || d.Confidence <= MinConfidence {
		return nil
	}
	var filled []string
	if strings.TrimSpace(in.Description) == "" && strings.TrimSpace(d.Description) != "" {
		in.Description = strings.TrimSpace(d.Description)
		filled = append(filled, "description")
	}
	if strings.TrimSpace(in.Location) == "" && strings.TrimSpace(d.Location) != "" {
		in.Location = strings.TrimSpace(d.Location)
		filled = append(filled, "location")
	}
	if in.Date.IsZero() && d.Date != "" {
		if day, err := models.ParseDate(d.Date); err == nil {
			in.Date = day
			filled = append(filled, "date")
		}
	}
	if amount := d.Amount.Round(2); in.Amount.IsZero() && amount.IsPositive() {
		in.Amount = amount
		filled = append(filled, "amount")
	}
	if in.Currency == "" && d.Currency != "" {
		in.Currency = strings.ToUpper(d.Currency)
		filled = append(filled, "currency")
	}
	return filled
}
