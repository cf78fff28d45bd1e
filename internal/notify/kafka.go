package notify

import (
	"context"
	"fmt"

	"github.com/healthlinkhq/healthlink-auth/pkg/kafka"
	"github.com/healthlinkhq/healthlink-auth/pkg/logger"
)

const (
	// EventTypeOTPRequested asks the mailer to send a verification code.
	EventTypeOTPRequested = "auth.email.otp_requested"

	// EventTypeResetRequested asks the mailer to send a password reset link.
	EventTypeResetRequested = "auth.email.reset_requested"

	aggregateType = "account"
	source        = "healthlink-auth"
)

// otpPayload is the mailer-facing body for a verification email.
type otpPayload struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Code  string `json:"code"`
}

// resetPayload is the mailer-facing body for a password reset email.
type resetPayload struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	ResetURL string `json:"reset_url"`
}

// KafkaNotifier publishes email request events to the mailer topic.
type KafkaNotifier struct {
	producer *kafka.Producer
	topic    string
}

// NewKafkaNotifier creates a notifier publishing to the given topic.
func NewKafkaNotifier(producer *kafka.Producer, topic string) *KafkaNotifier {
	return &KafkaNotifier{producer: producer, topic: topic}
}

// SendOTP publishes a verification code email request.
func (n *KafkaNotifier) SendOTP(ctx context.Context, accountID, email, name, code string) error {
	return n.publish(ctx, EventTypeOTPRequested, accountID, otpPayload{
		Email: email,
		Name:  name,
		Code:  code,
	})
}

// SendPasswordReset publishes a password reset email request.
func (n *KafkaNotifier) SendPasswordReset(ctx context.Context, accountID, email, name, resetURL string) error {
	return n.publish(ctx, EventTypeResetRequested, accountID, resetPayload{
		Email:    email,
		Name:     name,
		ResetURL: resetURL,
	})
}

func (n *KafkaNotifier) publish(ctx context.Context, eventType, accountID string, payload any) error {
	event, err := kafka.NewEvent(eventType, accountID, aggregateType, source, payload)
	if err != nil {
		return fmt.Errorf("build %s event: %w", eventType, err)
	}
	event.CorrelationID = logger.CorrelationIDFromContext(ctx)

	if err := n.producer.Publish(ctx, n.topic, event); err != nil {
		return fmt.Errorf("publish %s: %w", eventType, err)
	}
	return nil
}
