package service

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"nauvus-backend/internal/logger"
)

type emailService struct {
	apiKey    string
	fromEmail string
	fromName  string
}

// NewEmailService sends through SendGrid. With an empty apiKey messages are
// logged and dropped.
func NewEmailService(apiKey, fromEmail, fromName string) EmailService {
	return &emailService{
		apiKey:    apiKey,
		fromEmail: fromEmail,
		fromName:  fromName,
	}
}

func (s *emailService) SendInvoice(ctx context.Context, msg InvoiceEmail) error {
	return s.send(ctx, s.invoiceMessage(msg))
}

func (s *emailService) SendAlert(ctx context.Context, to, subject, body string) error {
	from := mail.NewEmail(s.fromName, s.fromEmail)
	return s.send(ctx, mail.NewSingleEmail(from, subject, mail.NewEmail("", to), body, ""))
}

func (s *emailService) invoiceMessage(msg InvoiceEmail) *mail.SGMailV3 {
	inv := msg.Invoice
	from := mail.NewEmail(s.fromName, s.fromEmail)
	subject := fmt.Sprintf("Invoice %s", inv.UID)

	var body strings.Builder
	fmt.Fprintf(&body, "Hello %s,\n\n", msg.ToName)
	fmt.Fprintf(&body, "%s\n\n", inv.Description)
	fmt.Fprintf(&body, "Amount due: %s\n", formatCents(inv.AmountDueInCents))
	fmt.Fprintf(&body, "Due date: %s\n", inv.DueDate.Format("2006-01-02"))
	fmt.Fprintf(&body, "Pay online: %s\n", inv.PaymentLinkURL)
	if msg.DownloadURL != "" {
		fmt.Fprintf(&body, "Download invoice: %s\n", msg.DownloadURL)
	}
	if len(msg.DocumentLinks) > 0 {
		body.WriteString("\nDelivery documents:\n")
		for _, link := range msg.DocumentLinks {
			fmt.Fprintf(&body, "  %s\n", link)
		}
	}
	body.WriteString("\nThank you,\nNauvus")

	m := mail.NewSingleEmail(from, subject, mail.NewEmail(msg.ToName, msg.To), body.String(), "")
	if len(msg.PDF) > 0 {
		a := mail.NewAttachment()
		a.SetContent(base64.StdEncoding.EncodeToString(msg.PDF))
		a.SetType("application/pdf")
		a.SetFilename(fmt.Sprintf("invoice-%s.pdf", inv.UID))
		a.SetDisposition("attachment")
		m.AddAttachment(a)
	}
	return m
}

func (s *emailService) send(ctx context.Context, m *mail.SGMailV3) error {
	if s.apiKey == "" {
		logger.Warn("Email disabled, dropping message", "subject", m.Subject)
		return nil
	}

	logger.ExternalServiceCall("sendgrid", "Send", "subject", m.Subject)
	response, err := sendgrid.NewSendClient(s.apiKey).SendWithContext(ctx, m)
	if err != nil {
		logger.ExternalServiceResult("sendgrid", "Send", err)
		return fmt.Errorf("failed to send email: %w", err)
	}
	if response.StatusCode >= 400 {
		err := fmt.Errorf("sendgrid error: status %d, body: %s", response.StatusCode, response.Body)
		logger.ExternalServiceResult("sendgrid", "Send", err)
		return err
	}
	logger.ExternalServiceResult("sendgrid", "Send", nil)
	return nil
}
