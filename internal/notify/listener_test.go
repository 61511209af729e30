package notify

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gamenative/depotsync/internal/depot"
)

type testLogWriter struct{ t *testing.T }

func (w *testLogWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

func testLogger(t *testing.T) *slog.Logger {
	return slog.New(slog.NewTextHandler(&testLogWriter{t}, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// feedServer accepts one websocket client, writes the given events, and
// keeps the connection open until the client goes away.
func feedServer(t *testing.T, events []depot.ChangeEvent) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Logf("accept: %v", err)
			return
		}
		defer conn.CloseNow()

		ctx := r.Context()
		for _, ev := range events {
			if err := wsjson.Write(ctx, conn, ev); err != nil {
				t.Logf("write: %v", err)
				return
			}
		}

		// Hold the connection open; reads fail once the client hangs up.
		conn.Reader(ctx)
	}))
	t.Cleanup(srv.Close)

	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestListener_DeliversEvents(t *testing.T) {
	want := []depot.ChangeEvent{
		{AppID: 440, ChangeNumber: 101, ChangedFileIDs: []int64{7, 8}},
		{AppID: 220, ChangeNumber: 102, ChangedFileIDs: []int64{9}},
	}

	srv := feedServer(t, want)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := NewListener(wsURL(srv), testLogger(t))

	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	for i, expected := range want {
		select {
		case got, ok := <-l.Events():
			require.True(t, ok, "events channel closed early")
			assert.Equal(t, expected, got, "event %d", i)
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for event %d", i)
		}
	}

	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("listener did not stop after cancel")
	}

	// Channel closes once Run returns.
	_, ok := <-l.Events()
	assert.False(t, ok)
}

func TestListener_StopsWhenNeverConnected(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	// Nothing listens here; the listener should sit in backoff and exit
	// promptly on cancel.
	l := NewListener("ws://127.0.0.1:1/feed", testLogger(t))

	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("listener did not stop after cancel")
	}
}
