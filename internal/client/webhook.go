package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/infinity-finance/backend/internal/config"
	"github.com/infinity-finance/backend/internal/model"
	tmpl "github.com/infinity-finance/backend/internal/template"
)

// WebhookNotifier - POSTs a rendered JSON body to a configured URL
type WebhookNotifier struct {
	url        string
	body       string
	resetURL   string
	httpClient *http.Client
}

func NewWebhookNotifier(cfg config.WebhookConfig, resetURL string) (*WebhookNotifier, error) {
	if cfg.URL == "" {
		return nil, errors.New("RESET_WEBHOOK_URL is required for NOTIFY_DRIVER=webhook")
	}
	return &WebhookNotifier{
		url:      cfg.URL,
		body:     cfg.Body,
		resetURL: resetURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}, nil
}

func (n *WebhookNotifier) SendPasswordReset(ctx context.Context, user model.User, reset model.PasswordResetToken) error {
	userData := tmpl.UserDataFromModel(user)
	resetData := tmpl.ResetDataFromModel(reset, n.resetURL)
	rendered := tmpl.RenderJSONBody(n.body, &userData, &resetData)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewBufferString(rendered))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func (n *WebhookNotifier) Close() error {
	n.httpClient.CloseIdleConnections()
	return nil
}
