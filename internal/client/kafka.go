package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/infinity-finance/backend/internal/config"
	"github.com/infinity-finance/backend/internal/model"
	tmpl "github.com/infinity-finance/backend/internal/template"
	"github.com/segmentio/kafka-go"
)

const EventPasswordResetRequested = "password_reset_requested"

// PasswordResetEvent is the message published for a downstream mailer.
type PasswordResetEvent struct {
	Type       string    `json:"type"`
	UserID     int64     `json:"user_id"`
	Username   string    `json:"username"`
	Email      string    `json:"email"`
	FullName   string    `json:"full_name"`
	Token      string    `json:"token"`
	Link       string    `json:"link"`
	ExpiresAt  time.Time `json:"expires_at"`
	OccurredAt time.Time `json:"occurred_at"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaNotifier struct {
	writer   messageWriter
	resetURL string
	now      func() time.Time
}

func NewKafkaNotifier(cfg config.KafkaConfig, resetURL string) (*KafkaNotifier, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required for NOTIFY_DRIVER=kafka")
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.ResetTopic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		WriteTimeout:           5 * time.Second,
		AllowAutoTopicCreation: true,
	}
	return &KafkaNotifier{writer: w, resetURL: resetURL, now: time.Now}, nil
}

// SendPasswordReset publishes the event keyed by user id so events for one
// user stay ordered on a partition.
func (n *KafkaNotifier) SendPasswordReset(ctx context.Context, user model.User, reset model.PasswordResetToken) error {
	data := tmpl.ResetDataFromModel(reset, n.resetURL)
	event := PasswordResetEvent{
		Type:       EventPasswordResetRequested,
		UserID:     user.ID,
		Username:   user.Username,
		Email:      user.Email,
		FullName:   user.FullName,
		Token:      reset.ID,
		Link:       data.Link,
		ExpiresAt:  reset.ExpiresAt,
		OccurredAt: n.now(),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("kafka: marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(strconv.FormatInt(user.ID, 10)),
		Value: payload,
	}
	if err := n.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka: write message: %w", err)
	}
	return nil
}

func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}
