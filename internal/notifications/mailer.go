package notifications

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/shopspring/decimal"

	"github.com/vadimchubok/online-cinema-backend/pkg/config"
)

// Mailer sends transactional email for account and order events.
type Mailer interface {
	SendActivationEmail(ctx context.Context, toEmail, activationToken string) error
	SendPaymentReceipt(ctx context.Context, toEmail, orderID string, amount decimal.Decimal) error
}

type sendClient interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// SendgridMailer delivers email through the SendGrid v3 API, preferring
// dynamic templates when template IDs are configured.
type SendgridMailer struct {
	client sendClient
	cfg    config.SendgridConfig
}

// NewSendgridMailer builds a mailer from the SendGrid configuration.
func NewSendgridMailer(cfg config.SendgridConfig) (*SendgridMailer, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("sendgrid api key is required")
	}
	if strings.TrimSpace(cfg.DefaultFrom) == "" {
		return nil, errors.New("sendgrid from address is required")
	}
	return &SendgridMailer{
		client: sendgrid.NewSendClient(cfg.APIKey),
		cfg:    cfg,
	}, nil
}

func (m *SendgridMailer) SendActivationEmail(ctx context.Context, toEmail, activationToken string) error {
	link := m.activationLink(activationToken)

	if m.cfg.ActivationTemplateID != "" {
		msg := m.templateMessage(m.cfg.ActivationTemplateID, toEmail, map[string]any{
			"activation_link": link,
		})
		return m.send(ctx, msg)
	}

	body := fmt.Sprintf("Welcome! Activate your account within 24 hours: %s", link)
	html := fmt.Sprintf(`<p>Welcome! <a href=%q>Activate your account</a> within 24 hours.</p>`, link)
	msg := mail.NewSingleEmail(
		mail.NewEmail("", m.cfg.DefaultFrom),
		"Activate your account",
		mail.NewEmail("", toEmail),
		body,
		html,
	)
	return m.send(ctx, msg)
}

func (m *SendgridMailer) SendPaymentReceipt(ctx context.Context, toEmail, orderID string, amount decimal.Decimal) error {
	if m.cfg.PaymentTemplateID != "" {
		msg := m.templateMessage(m.cfg.PaymentTemplateID, toEmail, map[string]any{
			"order_id": orderID,
			"amount":   amount.StringFixed(2),
		})
		return m.send(ctx, msg)
	}

	body := fmt.Sprintf("Your payment of $%s for order %s was received. Your movies are ready to watch.", amount.StringFixed(2), orderID)
	html := fmt.Sprintf("<p>Your payment of <strong>$%s</strong> for order %s was received. Your movies are ready to watch.</p>", amount.StringFixed(2), orderID)
	msg := mail.NewSingleEmail(
		mail.NewEmail("", m.cfg.DefaultFrom),
		"Payment received",
		mail.NewEmail("", toEmail),
		body,
		html,
	)
	return m.send(ctx, msg)
}

func (m *SendgridMailer) templateMessage(templateID, toEmail string, data map[string]any) *mail.SGMailV3 {
	msg := mail.NewV3Mail()
	msg.SetFrom(mail.NewEmail("", m.cfg.DefaultFrom))
	msg.SetTemplateID(templateID)

	personalization := mail.NewPersonalization()
	personalization.AddTos(mail.NewEmail("", toEmail))
	for key, value := range data {
		personalization.SetDynamicTemplateData(key, value)
	}
	msg.AddPersonalizations(personalization)
	return msg
}

func (m *SendgridMailer) send(ctx context.Context, msg *mail.SGMailV3) error {
	resp, err := m.client.SendWithContext(ctx, msg)
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("sendgrid send: status %d: %s", resp.StatusCode, resp.Body)
	}
	return nil
}

func (m *SendgridMailer) activationLink(token string) string {
	base := strings.TrimRight(m.cfg.ActivationBaseURL, "/")
	return fmt.Sprintf("%s?token=%s", base, token)
}
