package mq

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

// Memory is an in-process Backend. Each channel is a buffered queue shared
// by all subscribers; a message is delivered to exactly one of them.
// Failed messages are redelivered once.
type Memory struct {
	mu     sync.Mutex
	queues map[string]chan memoryDelivery
	closed bool
}

type memoryDelivery struct {
	msg         Message
	redelivered bool
}

const memoryQueueSize = 256

func NewMemory() *Memory {
	return &Memory{queues: make(map[string]chan memoryDelivery)}
}

func (m *Memory) queue(channel string) (chan memoryDelivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, errors.New("memory mq closed")
	}
	q, ok := m.queues[channel]
	if !ok {
		q = make(chan memoryDelivery, memoryQueueSize)
		m.queues[channel] = q
	}
	return q, nil
}

func (m *Memory) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	if channel == "" {
		return "", errors.New("memory channel is required")
	}
	q, err := m.queue(channel)
	if err != nil {
		return "", err
	}
	msg := Message{ID: uuid.NewString(), Data: append([]byte(nil), data...), Attributes: attrs}
	select {
	case q <- memoryDelivery{msg: msg}:
		return msg.ID, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (m *Memory) Subscribe(ctx context.Context, channel string, handler Handler) error {
	if channel == "" {
		return errors.New("memory channel is required")
	}
	q, err := m.queue(channel)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d := <-q:
			if err := handler(ctx, d.msg); err != nil && !d.redelivered {
				d.redelivered = true
				select {
				case q <- d:
				default:
				}
			}
		}
	}
}

func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}
