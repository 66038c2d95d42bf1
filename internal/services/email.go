package services

import (
	"context"
	"fmt"
	"html"

	"github.com/resend/resend-go/v2"

	"github.com/rydeworks/farepass/internal/config"
	"github.com/rydeworks/farepass/internal/logging"
	"github.com/rydeworks/farepass/internal/models"
)

type EmailServiceInterface interface {
	SendPurchaseReceipt(ctx context.Context, member *models.Member, card *models.Card, group *models.CardGroup) error
}

// EmailService sends transactional mail through resend, or logs it with
// the console provider in local development.
type EmailService struct {
	cfg    *config.EmailConfig
	resend *resend.Client
}

func NewEmailService(cfg *config.EmailConfig) *EmailService {
	s := &EmailService{cfg: cfg}
	if cfg.Provider == "resend" && cfg.ResendAPIKey != "" {
		s.resend = resend.NewClient(cfg.ResendAPIKey)
	}
	return s
}

func (s *EmailService) SendPurchaseReceipt(ctx context.Context, member *models.Member, card *models.Card, group *models.CardGroup) error {
	if member.Email == nil || *member.Email == "" {
		// Receipts are best-effort; platform accounts often carry no email.
		return nil
	}

	subject := fmt.Sprintf("Your %s is ready", group.Name)
	text := fmt.Sprintf(
		"Hi %s,\n\nYour purchase of %s is complete. The card is now available in your wallet.\n\nStarting balance: %d\n",
		member.DisplayName, group.Name, card.Balance,
	)
	htmlBody := fmt.Sprintf(
		"<p>Hi %s,</p><p>Your purchase of <strong>%s</strong> is complete. The card is now available in your wallet.</p><p>Starting balance: %d</p>",
		html.EscapeString(member.DisplayName), html.EscapeString(group.Name), card.Balance,
	)

	if s.resend == nil {
		logging.Info("Purchase receipt (console provider)", map[string]interface{}{
			"to":      *member.Email,
			"subject": subject,
		})
		return nil
	}

	_, err := s.resend.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    fmt.Sprintf("%s <%s>", s.cfg.FromName, s.cfg.FromAddress),
		To:      []string{*member.Email},
		Subject: subject,
		Html:    htmlBody,
		Text:    text,
	})
	if err != nil {
		return fmt.Errorf("sending receipt email: %w", err)
	}
	return nil
}
