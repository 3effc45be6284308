package notify

import (
	"context"
	"errors"
	"fmt"

	"boringexpenses/models"

	"github.com/google/uuid"
)

var ErrNoRecipient = errors.New("notification has no recipient")

// StatusNotification is sent to a claim owner after a status change.
type StatusNotification struct {
	ClaimID        uuid.UUID          `json:"claim_id"`
	Status         models.ClaimStatus `json:"status"`
	RecipientEmail string             `json:"user_email"`
	RecipientName  string             `json:"user_name"`
	ClaimTitle     string             `json:"claim_title"`
}

// Notifier composes user-facing emails and hands them to a Mailer.
type Notifier struct {
	mailer Mailer
}

func NewNotifier(m Mailer) *Notifier {
	return &Notifier{mailer: m}
}

// ComposeStatusEmail builds the email for a claim status change.
func ComposeStatusEmail(n StatusNotification) Email {
	e := Email{To: n.RecipientEmail}
	switch n.Status {
	case models.StatusFiled:
		e.Kind = "claim_submitted"
		e.Subject = fmt.Sprintf("Claim Submitted: %s", n.ClaimTitle)
		e.Body = fmt.Sprintf("Your expense claim %q has been submitted for approval.", n.ClaimTitle)
	case models.StatusProcessing:
		e.Kind = "claim_processing"
		e.Subject = fmt.Sprintf("Claim Under Review: %s", n.ClaimTitle)
		e.Body = fmt.Sprintf("Your expense claim %q is currently being reviewed.", n.ClaimTitle)
	case models.StatusApproved:
		e.Kind = "claim_approved"
		e.Subject = fmt.Sprintf("Claim Approved: %s", n.ClaimTitle)
		e.Body = fmt.Sprintf("Great news! Your expense claim %q has been approved.", n.ClaimTitle)
	case models.StatusPaid:
		e.Kind = "claim_paid"
		e.Subject = fmt.Sprintf("Payment Processed: %s", n.ClaimTitle)
		e.Body = fmt.Sprintf("Your expense claim %q has been paid.", n.ClaimTitle)
	default:
		e.Kind = "status_change"
		e.Subject = fmt.Sprintf("Claim Status Update: %s", n.ClaimTitle)
		e.Body = fmt.Sprintf("Your expense claim %q status has been updated to: %s", n.ClaimTitle, n.Status)
	}
	if n.RecipientName != "" {
		e.Body = fmt.Sprintf("Hi %s, %s", n.RecipientName, e.Body)
	}
	return e
}

// NotifyStatus sends the status-change email. Delivery is best effort and
// never retried.
func (n *Notifier) NotifyStatus(ctx context.Context, sn StatusNotification) error {
	if sn.RecipientEmail == "" {
		return ErrNoRecipient
	}
	if err := n.mailer.Send(ctx, ComposeStatusEmail(sn)); err != nil {
		return fmt.Errorf("send status email for claim %s: %w", sn.ClaimID, err)
	}
	return nil
}

// SendLoginCode emails a one-time login code.
func (n *Notifier) SendLoginCode(ctx context.Context, to, code string) error {
	return n.mailer.Send(ctx, Email{
		Kind:    "login_code",
		To:      to,
		Subject: "Your boringexpenses login code",
		Body:    fmt.Sprintf("Your login code is %s. It expires in 10 minutes.", code),
	})
}

// SendInvite emails an invitation. For users who already have an account
// token is empty and the mail only announces the new company membership.
func (n *Notifier) SendInvite(ctx context.Context, to, inviterName, companyName, token string) error {
	e := Email{Kind: "invite", To: to}
	if token == "" {
		e.Kind = "company_added"
		e.Subject = fmt.Sprintf("You've been added to %s", companyName)
		e.Body = fmt.Sprintf("%s added you to %s on boringexpenses. Sign in to see your new workspace.", inviterName, companyName)
	} else {
		e.Subject = fmt.Sprintf("%s invited you to join %s", inviterName, companyName)
		e.Body = fmt.Sprintf("%s invited you to join %s on boringexpenses. Register with invite token %s (valid for 7 days).", inviterName, companyName, token)
	}
	return n.mailer.Send(ctx, e)
}
