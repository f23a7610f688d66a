// Package avatar copies Google profile pictures into object storage so the
// frontend never hotlinks Google.
package avatar

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pilotodevendas/apiserver/internal/events"
	"github.com/pilotodevendas/apiserver/internal/mq"
	"github.com/pilotodevendas/apiserver/internal/storage"
	"github.com/pilotodevendas/apiserver/types"
)

const (
	DefaultTimeout  = 10 * time.Second
	DefaultMaxBytes = 5 << 20
)

// errPermanent marks failures that a redelivery cannot fix.
var errPermanent = errors.New("permanent avatar failure")

const maxRedirects = 5

// Key is the object key of userID's mirrored avatar.
func Key(userID int) string {
	return "avatars/" + strconv.Itoa(userID)
}

// Mirror downloads avatars and stores them under Key(user id).
type Mirror struct {
	objects  storage.ObjectStorage
	guard    Guard
	client   *http.Client
	timeout  time.Duration
	maxBytes int64
	logger   *slog.Logger
}

func NewMirror(objects storage.ObjectStorage, timeout time.Duration, logger *slog.Logger) *Mirror {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	m := &Mirror{
		objects:  objects,
		timeout:  timeout,
		maxBytes: DefaultMaxBytes,
		logger:   logger,
	}
	return m.WithGuard(NewGuard())
}

// WithGuard replaces the URL guard and rebuilds the download client. Every
// redirect hop is validated by the guard as well.
func (m *Mirror) WithGuard(g Guard) *Mirror {
	m.guard = g
	m.client = g.NewClient(m.timeout)
	m.client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return fmt.Errorf("%w: too many redirects", errPermanent)
		}
		if err := g.ValidateURL(req.URL.String()); err != nil {
			return fmt.Errorf("%w: redirect: %v", errPermanent, err)
		}
		return nil
	}
	return m
}

// WithMaxBytes caps the accepted image size.
func (m *Mirror) WithMaxBytes(n int64) *Mirror {
	m.maxBytes = n
	return m
}

// Handle is an mq.Handler. Events without a Google picture are acknowledged
// untouched; only transient download or storage failures are returned so the
// broker redelivers.
func (m *Mirror) Handle(ctx context.Context, msg mq.Message) error {
	event, err := events.Decode(msg)
	if err != nil {
		m.logger.Warn("dropping undecodable auth event", "message_id", msg.ID, "error", err)
		return nil
	}
	if !wantsMirror(event) {
		return nil
	}

	err = m.Copy(ctx, event.UserID, event.PictureURL)
	switch {
	case err == nil:
		m.logger.Info("avatar mirrored", "user_id", event.UserID, "key", Key(event.UserID))
		return nil
	case errors.Is(err, errPermanent):
		m.logger.Warn("avatar skipped", "user_id", event.UserID, "error", err)
		return nil
	default:
		m.logger.Error("avatar mirror failed", "user_id", event.UserID, "error", err)
		return err
	}
}

func wantsMirror(event types.AuthEvent) bool {
	if event.UserID < 1 || event.PictureURL == "" {
		return false
	}
	switch event.Type {
	case types.EventGoogleCreated, types.EventGoogleLinked, types.EventLoggedIn:
		return event.Provider == types.AuthProviderGoogle
	default:
		return false
	}
}

// Copy fetches pictureURL and stores it as userID's avatar.
func (m *Mirror) Copy(ctx context.Context, userID int, pictureURL string) error {
	if err := m.guard.ValidateURL(pictureURL); err != nil {
		return fmt.Errorf("%w: %v", errPermanent, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pictureURL, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", errPermanent, err)
	}
	resp, err := m.client.Do(req)
	if err != nil {
		if errors.Is(err, errPermanent) {
			return err
		}
		return fmt.Errorf("download avatar: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("download avatar: status %d", resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return fmt.Errorf("%w: status %d", errPermanent, resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil || !strings.HasPrefix(mediaType, "image/") {
		return fmt.Errorf("%w: content type %q", errPermanent, contentType)
	}
	if resp.ContentLength > m.maxBytes {
		return fmt.Errorf("%w: %d bytes exceeds limit", errPermanent, resp.ContentLength)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, m.maxBytes+1))
	if err != nil {
		return fmt.Errorf("read avatar: %w", err)
	}
	if int64(len(data)) > m.maxBytes {
		return fmt.Errorf("%w: body exceeds limit", errPermanent)
	}

	if err := m.objects.Put(ctx, Key(userID), bytes.NewReader(data), int64(len(data)), mediaType); err != nil {
		return fmt.Errorf("store avatar: %w", err)
	}
	return nil
}
