// Package notify delivers user-facing email notifications.
package notify

import (
	"context"
	"fmt"

	"github.com/eventdesk/apiserver/config"
	"github.com/eventdesk/apiserver/internal/mq"
	"go.uber.org/zap"
)

// Message is a single plain-text email.
type Message struct {
	Kind    string `json:"kind"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

const (
	KindActivation = "activation"
	KindRSVP       = "rsvp_confirmation"
)

// Sender delivers a message or reports why it could not.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// NewSender builds the Sender selected by cfg.Mail.Backend. queue is only
// used by the "queue" backend and may be nil otherwise.
func NewSender(cfg config.Config, queue *mq.MQ, logger *zap.Logger) (Sender, error) {
	switch cfg.Mail.Backend {
	case "", "log":
		return NewLogSender(logger), nil
	case "smtp":
		return NewSMTPSender(cfg.Mail)
	case "queue":
		if queue == nil {
			return nil, fmt.Errorf("mail backend queue requires a message broker")
		}
		return NewQueueSender(queue, cfg.MQ.Channel), nil
	}
	return nil, fmt.Errorf("unknown mail backend %q", cfg.Mail.Backend)
}

// DeliverySender returns the Sender a queue worker should hand messages to.
// It never returns a queue sender.
func DeliverySender(cfg config.Config, logger *zap.Logger) (Sender, error) {
	if cfg.Mail.SMTPHost != "" {
		return NewSMTPSender(cfg.Mail)
	}
	return NewLogSender(logger), nil
}
