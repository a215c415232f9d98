// Package notifications assembles the payloads handed to the external
// notification service. Delivery itself happens elsewhere.
package notifications

import (
	"context"
	"strconv"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/logging"
)

type Type string

const (
	WelcomeEmail      Type = "WELCOME_EMAIL"
	PasswordResetCode Type = "PASSWORD_RESET"
	EmailVerification Type = "EMAIL_VERIFICATION"
	AccountUpdate     Type = "ACCOUNT_UPDATE"
)

type Message struct {
	Type           Type              `json:"type"`
	RecipientEmail string            `json:"recipientEmail"`
	RecipientName  string            `json:"recipientName"`
	Timestamp      time.Time         `json:"timestamp"`
	TemplateData   map[string]string `json:"templateData,omitempty"`
}

type Dispatcher interface {
	Dispatch(ctx context.Context, msg Message) error
}

// Welcome is sent after registration.
func Welcome(email, name string, now time.Time) Message {
	return Message{
		Type:           WelcomeEmail,
		RecipientEmail: email,
		RecipientName:  name,
		Timestamp:      now,
		TemplateData:   map[string]string{"email": email},
	}
}

// PasswordReset carries the reset code and how long it stays valid.
func PasswordReset(email, name, code string, validFor time.Duration, now time.Time) Message {
	return Message{
		Type:           PasswordResetCode,
		RecipientEmail: email,
		RecipientName:  name,
		Timestamp:      now,
		TemplateData: map[string]string{
			"code":          code,
			"expiryMinutes": strconv.Itoa(int(validFor / time.Minute)),
		},
	}
}

// LogDispatcher only records that a message would have been sent.
// TemplateData is never logged since it may hold a reset code.
type LogDispatcher struct {
	logger logging.Logger
}

func NewLogDispatcher(logger logging.Logger) *LogDispatcher {
	return &LogDispatcher{logger: logger.With("module", "notifications")}
}

func (d *LogDispatcher) Dispatch(ctx context.Context, msg Message) error {
	d.logger.Info(ctx, "notification prepared", "type", string(msg.Type), "recipient", msg.RecipientEmail)
	return nil
}
