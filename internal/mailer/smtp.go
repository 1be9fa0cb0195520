// internal/mailer/smtp.go
package mailer

import (
	"crypto/tls"
	"fmt"
	"net/smtp"
	"strings"

	"media-reconciler/internal/common/config"
	"media-reconciler/internal/common/logger"
)

// Mailer sends templated notices over authenticated SMTP with STARTTLS.
type Mailer struct {
	cfg    config.EmailConfig
	logger logger.Logger
}

func New(cfg config.EmailConfig, log logger.Logger) *Mailer {
	return &Mailer{cfg: cfg, logger: log}
}

// Send delivers one message to all recipients in a single SMTP transaction.
// An empty recipient list is a no-op, not an error.
func (m *Mailer) Send(to []string, subject, body string) error {
	recipients := make([]string, 0, len(to))
	for _, r := range to {
		if strings.TrimSpace(r) != "" {
			recipients = append(recipients, strings.TrimSpace(r))
		}
	}
	if len(recipients) == 0 {
		return nil
	}

	addr := fmt.Sprintf("%s:%d", m.cfg.SMTPHost, m.cfg.SMTPPort)

	client, err := smtp.Dial(addr)
	if err != nil {
		return fmt.Errorf("dial smtp %s: %w", addr, err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		tlsCfg := &tls.Config{ServerName: m.cfg.SMTPHost}
		if err := client.StartTLS(tlsCfg); err != nil {
			return fmt.Errorf("starttls: %w", err)
		}
	}

	if m.cfg.SMTPUsername != "" {
		auth := smtp.PlainAuth("", m.cfg.SMTPUsername, m.cfg.SMTPPassword, m.cfg.SMTPHost)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err := client.Mail(m.cfg.From); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	for _, rcpt := range recipients {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("rcpt %s: %w", rcpt, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(m.buildMessage(recipients, subject, body)); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finish message: %w", err)
	}

	if err := client.Quit(); err != nil {
		m.logger.Debug("smtp quit failed after successful send", map[string]interface{}{
			"error": err.Error(),
		})
	}

	m.logger.Info("email sent", map[string]interface{}{
		"recipients": len(recipients),
		"subject":    subject,
	})
	return nil
}

func (m *Mailer) buildMessage(to []string, subject, body string) []byte {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("From: %s\r\n", m.cfg.From))
	sb.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(to, ", ")))
	sb.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	sb.WriteString("MIME-Version: 1.0\r\n")
	sb.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	sb.WriteString("\r\n")
	sb.WriteString(body)
	return []byte(sb.String())
}
