package mq

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
)

const memoryBuffer = 64

// MemoryBackend delivers messages in-process. Each channel is a single queue:
// concurrent subscribers compete for messages. Failed messages are redelivered.
type MemoryBackend struct {
	mu     sync.Mutex
	queues map[string]chan Message
	closed chan struct{}
	once   sync.Once
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		queues: make(map[string]chan Message),
		closed: make(chan struct{}),
	}
}

func (m *MemoryBackend) queue(channel string) chan Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.queues[channel]
	if !ok {
		q = make(chan Message, memoryBuffer)
		m.queues[channel] = q
	}
	return q
}

func (m *MemoryBackend) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	if strings.TrimSpace(channel) == "" {
		return "", errors.New("memory channel is required")
	}
	msg := Message{ID: uuid.NewString(), Data: data, Attributes: attrs}
	select {
	case m.queue(channel) <- msg:
		return msg.ID, nil
	case <-m.closed:
		return "", errors.New("memory backend closed")
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (m *MemoryBackend) Subscribe(ctx context.Context, channel string, handler Handler) error {
	if strings.TrimSpace(channel) == "" {
		return errors.New("memory channel is required")
	}
	q := m.queue(channel)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.closed:
			return nil
		case msg := <-q:
			if err := handler(ctx, msg); err != nil {
				select {
				case q <- msg:
				default:
				}
			}
		}
	}
}

func (m *MemoryBackend) Close() error {
	m.once.Do(func() { close(m.closed) })
	return nil
}

var _ Backend = (*MemoryBackend)(nil)
