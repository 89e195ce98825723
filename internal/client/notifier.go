// Clients that deliver password reset notifications to users or to other
// systems. Each one satisfies service.ResetNotifier.
//
// NOTIFY_DRIVER selects the implementation:
//   - log: writes the reset link to the structured log (development)
//   - smtp: sends an email through SMTP_HOST
//   - kafka: publishes a password_reset_requested event to KAFKA_RESET_TOPIC
//   - webhook: POSTs a rendered body to RESET_WEBHOOK_URL

package client

import (
	"context"
	"fmt"
	"strings"

	"github.com/infinity-finance/backend/internal/config"
	"github.com/infinity-finance/backend/internal/logging"
	"github.com/infinity-finance/backend/internal/model"
	tmpl "github.com/infinity-finance/backend/internal/template"
)

// Notifier is a reset notifier that may hold a connection.
type Notifier interface {
	SendPasswordReset(ctx context.Context, user model.User, reset model.PasswordResetToken) error
	Close() error
}

// LogNotifier - logs the reset link instead of delivering it
type LogNotifier struct {
	resetURL string
}

func NewLogNotifier(resetURL string) *LogNotifier {
	return &LogNotifier{resetURL: resetURL}
}

func (n *LogNotifier) SendPasswordReset(ctx context.Context, user model.User, reset model.PasswordResetToken) error {
	data := tmpl.ResetDataFromModel(reset, n.resetURL)
	logging.FromContext(ctx).Info("password_reset_link",
		"user_id", user.ID,
		"email", user.Email,
		"link", data.Link,
		"expires_at", reset.ExpiresAt,
	)
	return nil
}

func (n *LogNotifier) Close() error { return nil }

// NewNotifier builds the notifier selected by cfg.Notify.Driver.
func NewNotifier(cfg config.Config) (Notifier, error) {
	var (
		n   Notifier
		err error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Notify.Driver)) {
	case "", "log":
		n = NewLogNotifier(cfg.Auth.ResetURL)
	case "smtp":
		n, err = NewMailClient(cfg.SMTP, cfg.Auth.ResetURL)
	case "kafka":
		n, err = NewKafkaNotifier(cfg.Kafka, cfg.Auth.ResetURL)
	case "webhook":
		n, err = NewWebhookNotifier(cfg.Webhook, cfg.Auth.ResetURL)
	default:
		err = fmt.Errorf("unknown NOTIFY_DRIVER %q", cfg.Notify.Driver)
	}
	if err != nil {
		return nil, err
	}
	return n, nil
}
