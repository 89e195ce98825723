package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/smtp"

	"github.com/infinity-finance/backend/internal/config"
	"github.com/infinity-finance/backend/internal/model"
	tmpl "github.com/infinity-finance/backend/internal/template"
)

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// MailClient - sends the reset link as an HTML email
type MailClient struct {
	addr     string
	auth     smtp.Auth
	from     string
	subject  string
	body     string
	resetURL string
	send     sendMailFunc
}

func NewMailClient(cfg config.SMTPConfig, resetURL string) (*MailClient, error) {
	if cfg.Host == "" {
		return nil, errors.New("SMTP_HOST is required for NOTIFY_DRIVER=smtp")
	}
	from := cfg.From
	if from == "" {
		from = cfg.Username
	}
	if from == "" {
		return nil, errors.New("SMTP_FROM or SMTP_USERNAME is required for NOTIFY_DRIVER=smtp")
	}

	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}

	return &MailClient{
		addr:     net.JoinHostPort(cfg.Host, cfg.Port),
		auth:     auth,
		from:     from,
		subject:  cfg.Subject,
		body:     cfg.Body,
		resetURL: resetURL,
		send:     smtp.SendMail,
	}, nil
}

func (c *MailClient) SendPasswordReset(ctx context.Context, user model.User, reset model.PasswordResetToken) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	userData := tmpl.UserDataFromModel(user)
	resetData := tmpl.ResetDataFromModel(reset, c.resetURL)
	msg := c.buildMessage(user.Email, tmpl.RenderBody(c.subject, &userData, &resetData), tmpl.RenderHTMLBody(c.body, &userData, &resetData))

	if err := c.send(c.addr, c.auth, c.from, []string{user.Email}, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

func (c *MailClient) buildMessage(to, subject, body string) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", c.from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	return b.Bytes()
}

func (c *MailClient) Close() error { return nil }
