// Package notify implements the upstream sync-client boundary: a websocket
// subscription to the change-announcement feed. It delivers ChangeEvents to
// the reconciliation layer and owns nothing else — no reconciliation logic,
// no content transfer.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/gamenative/depotsync/internal/depot"
)

// Reconnect backoff bounds.
const (
	initialBackoff    = 2 * time.Second
	maxBackoff        = 60 * time.Second
	backoffMultiplier = 2
)

// eventBuf bounds the event channel; the consumer reconciles continuously
// so the buffer only absorbs announcement bursts.
const eventBuf = 256

// Listener subscribes to a change-announcement feed and emits ChangeEvents.
// It reconnects with capped exponential backoff until its context ends.
type Listener struct {
	url    string
	logger *slog.Logger
	events chan depot.ChangeEvent
}

// NewListener creates a listener for the given feed URL.
func NewListener(url string, logger *slog.Logger) *Listener {
	if logger == nil {
		logger = slog.Default()
	}

	return &Listener{
		url:    url,
		logger: logger,
		events: make(chan depot.ChangeEvent, eventBuf),
	}
}

// Events is the channel of announcements read from the feed.
func (l *Listener) Events() <-chan depot.ChangeEvent {
	return l.events
}

// Run connects and reads until ctx is cancelled. The events channel is
// closed on return.
func (l *Listener) Run(ctx context.Context) error {
	defer close(l.events)

	backoff := initialBackoff

	for {
		connected, err := l.readFeed(ctx)
		if connected {
			backoff = initialBackoff
		}

		if ctx.Err() != nil {
			l.logger.Info("change feed listener stopped")
			return ctx.Err()
		}

		l.logger.Warn("change feed disconnected, reconnecting",
			"error", err, "backoff", backoff.String())

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= backoffMultiplier
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// readFeed dials the feed and pumps announcements until the connection
// breaks or ctx ends. It reports whether a connection was established so
// the caller can reset its backoff.
func (l *Listener) readFeed(ctx context.Context) (bool, error) {
	conn, _, err := websocket.Dial(ctx, l.url, nil)
	if err != nil {
		return false, fmt.Errorf("notify: dialing %s: %w", l.url, err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "shutting down")

	l.logger.Info("change feed connected", "url", l.url)

	for {
		var ev depot.ChangeEvent

		if err := wsjson.Read(ctx, conn, &ev); err != nil {
			if errors.Is(err, context.Canceled) {
				return true, err
			}

			return true, fmt.Errorf("notify: reading feed: %w", err)
		}

		l.logger.Debug("change announced",
			"app_id", ev.AppID, "change_number", ev.ChangeNumber,
			"changed_files", len(ev.ChangedFileIDs))

		select {
		case l.events <- ev:
		case <-ctx.Done():
			return true, ctx.Err()
		}
	}
}
