package avatar

import (
	"context"
	"errors"
	"log/slog"

	"github.com/pilotodevendas/apiserver/internal/mq"
)

// Worker consumes auth events and mirrors avatars until ctx is cancelled.
type Worker struct {
	backend mq.Backend
	channel string
	mirror  *Mirror
	logger  *slog.Logger
}

func NewWorker(backend mq.Backend, channel string, mirror *Mirror, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{backend: backend, channel: channel, mirror: mirror, logger: logger}
}

// Run blocks until ctx is done. Cancellation is not an error.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("avatar worker started", "channel", w.channel)
	err := w.backend.Subscribe(ctx, w.channel, w.mirror.Handle)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	w.logger.Info("avatar worker stopped")
	return nil
}
