package notify

import (
	"context"
	"fmt"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"vehicle-rental-backend/internal/domain"
)

type mailSender interface {
	Send(email *mail.SGMailV3) (*rest.Response, error)
}

// OpsEmailer mails the operations desk about the transitions that need a human:
// cancellations (refunds to issue) and completions (extra charges to settle).
type OpsEmailer struct {
	client    mailSender
	fromEmail string
	fromName  string
	opsEmail  string
}

func NewOpsEmailer(apiKey, fromEmail, fromName, opsEmail string) *OpsEmailer {
	return &OpsEmailer{
		client:    sendgrid.NewSendClient(apiKey),
		fromEmail: fromEmail,
		fromName:  fromName,
		opsEmail:  opsEmail,
	}
}

func (e *OpsEmailer) Name() string { return "sendgrid" }

func (e *OpsEmailer) Deliver(ctx context.Context, event domain.BookingEvent) error {
	if event.To != domain.BookingStatusCancelled && event.To != domain.BookingStatusCompleted {
		return nil
	}

	title, body := describe(event)
	subject := fmt.Sprintf("[Booking #%d] %s", event.BookingID, title)
	plainText := fmt.Sprintf("%s\n\nCustomer: %d\nChanged by: %d\nAt: %s\nEvent: %s",
		body, event.CustomerID, event.ActorID, event.OccurredAt.Format("2006-01-02 15:04 MST"), event.ID)

	from := mail.NewEmail(e.fromName, e.fromEmail)
	to := mail.NewEmail("Operations", e.opsEmail)
	message := mail.NewSingleEmail(from, subject, to, plainText, "")

	response, err := e.client.Send(message)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	if response.StatusCode >= 400 {
		return fmt.Errorf("sendgrid error: status %d, body: %s", response.StatusCode, response.Body)
	}
	return nil
}
