// Package notify delivers the side effects of claim workflow changes:
// status emails to claim owners and reimbursement payments.
package notify

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Email is a composed message ready for delivery.
type Email struct {
	Kind    string `json:"email_type"`
	To      string `json:"recipient"`
	Subject string `json:"subject"`
	Body    string `json:"preview"`
}

// Mailer delivers composed emails.
type Mailer interface {
	Send(ctx context.Context, e Email) error
}

// LogMailer stands in for a real email provider: it only logs the queued mail.
type LogMailer struct {
	log *zap.Logger
}

func NewLogMailer(log *zap.Logger) *LogMailer {
	return &LogMailer{log: log}
}

func (m *LogMailer) Send(ctx context.Context, e Email) error {
	if strings.TrimSpace(e.To) == "" {
		return ErrNoRecipient
	}
	m.log.Info("email queued",
		zap.String("email_type", e.Kind),
		zap.String("recipient", e.To),
		zap.String("subject", e.Subject),
		zap.String("preview", e.Body),
	)
	return nil
}

// MemoryMailer records sent mail; used by tests and local tooling.
type MemoryMailer struct {
	mu   sync.Mutex
	Sent []Email
	Err  error
}

func (m *MemoryMailer) Send(ctx context.Context, e Email) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, e)
	return nil
}

// Last returns the most recently sent email.
func (m *MemoryMailer) Last() (Email, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Sent) == 0 {
		return Email{}, false
	}
	return m.Sent[len(m.Sent)-1], true
}
