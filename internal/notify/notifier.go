package notify

import (
	"context"

	"github.com/eventdesk/apiserver/types"
	"go.uber.org/zap"
)

// Notifier renders and sends the application's notifications.
// Delivery is best effort: failures are logged and never returned.
type Notifier struct {
	sender Sender
	logger *zap.Logger
}

func NewNotifier(sender Sender, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{sender: sender, logger: logger}
}

// Activation sends the account activation link to a newly registered user.
func (n *Notifier) Activation(ctx context.Context, user types.User, link string) {
	body, err := render(activationTemplate, map[string]any{"User": user, "Link": link})
	if err != nil {
		n.logger.Error("render activation email", zap.Int("user_id", user.ID), zap.Error(err))
		return
	}
	n.send(ctx, Message{
		Kind:    KindActivation,
		To:      user.Email,
		Subject: "Activate your account",
		Body:    body,
	}, zap.Int("user_id", user.ID))
}

// RSVPConfirmation confirms a user's attendance at event.
func (n *Notifier) RSVPConfirmation(ctx context.Context, user types.User, event types.Event) {
	body, err := render(rsvpTemplate, map[string]any{"User": user, "Event": event})
	if err != nil {
		n.logger.Error("render rsvp email", zap.Int("event_id", event.ID), zap.Error(err))
		return
	}
	n.send(ctx, Message{
		Kind:    KindRSVP,
		To:      user.Email,
		Subject: "RSVP Confirmation for " + event.Title,
		Body:    body,
	}, zap.Int("user_id", user.ID), zap.Int("event_id", event.ID))
}

func (n *Notifier) send(ctx context.Context, msg Message, fields ...zap.Field) {
	if n.sender == nil {
		return
	}
	if err := n.sender.Send(ctx, msg); err != nil {
		fields = append(fields, zap.String("kind", msg.Kind), zap.Error(err))
		n.logger.Warn("notification not sent", fields...)
	}
}
