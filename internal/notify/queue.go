package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/eventdesk/apiserver/internal/mq"
	"go.uber.org/zap"
)

// QueueSender hands messages to the broker for a worker to deliver.
type QueueSender struct {
	queue   *mq.MQ
	channel string
}

func NewQueueSender(queue *mq.MQ, channel string) *QueueSender {
	return &QueueSender{queue: queue, channel: channel}
}

func (s *QueueSender) Send(ctx context.Context, msg Message) error {
	_, err := s.queue.PublishJSON(ctx, s.channel, msg, map[string]string{"kind": msg.Kind})
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", msg.Kind, err)
	}
	return nil
}

// Consume delivers queued messages with deliver until ctx is cancelled.
// Undecodable payloads are logged and acknowledged; delivery failures are
// returned to the broker for redelivery.
func Consume(ctx context.Context, queue *mq.MQ, channel string, deliver Sender, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	return queue.Subscribe(ctx, channel, func(ctx context.Context, m mq.Message) error {
		var msg Message
		if err := json.Unmarshal(m.Data, &msg); err != nil {
			logger.Error("drop malformed notification", zap.String("message_id", m.ID), zap.Error(err))
			return nil
		}
		if err := deliver.Send(ctx, msg); err != nil {
			logger.Warn("notification delivery failed",
				zap.String("message_id", m.ID),
				zap.String("attempt", m.Attributes[mq.AttrDeliveryAttempt]),
				zap.String("kind", msg.Kind),
				zap.Error(err),
			)
			return err
		}
		logger.Info("notification delivered", zap.String("message_id", m.ID), zap.String("kind", msg.Kind))
		return nil
	})
}
