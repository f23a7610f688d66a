package events

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/pilotodevendas/apiserver/internal/mq"
	"github.com/pilotodevendas/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockBackend struct {
	publishFn func(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
}

func (m *mockBackend) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	return m.publishFn(ctx, channel, data, attrs)
}

func (m *mockBackend) Subscribe(context.Context, string, mq.Handler) error { return nil }

func (m *mockBackend) Close() error { return nil }

func TestPublisher_RoundTrip(t *testing.T) {
	backend := mq.NewMemoryBackend()
	defer backend.Close()

	occurred := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	event := types.AuthEvent{
		Type:       types.EventGoogleCreated,
		UserID:     7,
		Email:      "user@example.com",
		Provider:   types.AuthProviderGoogle,
		PictureURL: "https://lh3.googleusercontent.com/a/photo",
		OccurredAt: occurred,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	NewPublisher(backend, "auth-events", nil).Publish(ctx, event)

	got := make(chan mq.Message, 1)
	go func() {
		_ = backend.Subscribe(ctx, "auth-events", func(_ context.Context, msg mq.Message) error {
			got <- msg
			return nil
		})
	}()

	select {
	case msg := <-got:
		assert.Equal(t, "application/json", msg.Attributes[mq.AttrContentType])
		assert.Equal(t, "user.google_created", msg.Attributes[mq.AttrEventType])
		assert.Equal(t, "7", msg.Attributes[AttrUserID])

		decoded, err := Decode(msg)
		require.NoError(t, err)
		assert.Equal(t, event, decoded)
	case <-ctx.Done():
		t.Fatal("event was not published")
	}
}

func TestPublisher_LogsFailures(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	backend := &mockBackend{publishFn: func(context.Context, string, []byte, map[string]string) (string, error) {
		return "", errors.New("broker down")
	}}

	NewPublisher(backend, "auth-events", logger).Publish(context.Background(), types.AuthEvent{Type: types.EventLoggedIn, UserID: 3})

	assert.Contains(t, buf.String(), "publish auth event failed")
	assert.Contains(t, buf.String(), "broker down")
	assert.Contains(t, buf.String(), `"user_id":3`)
}

func TestPublisher_NilBackendDrops(t *testing.T) {
	assert.NotPanics(t, func() {
		NewPublisher(nil, "auth-events", nil).Publish(context.Background(), types.AuthEvent{Type: types.EventLoggedOut})
		var p *Publisher
		p.Publish(context.Background(), types.AuthEvent{})
	})
}

func TestDecode(t *testing.T) {
	event, err := Decode(mq.Message{
		ID:         "m1",
		Data:       []byte(`{"user_id":4}`),
		Attributes: map[string]string{mq.AttrEventType: "user.logged_in"},
	})
	require.NoError(t, err)
	assert.Equal(t, types.EventLoggedIn, event.Type)
	assert.Equal(t, 4, event.UserID)

	_, err = Decode(mq.Message{ID: "m2", Data: []byte("{")})
	assert.Error(t, err)
}
