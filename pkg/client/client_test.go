package client

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/sttray/internal/events"
	"github.com/loykin/sttray/internal/server"
	"github.com/loykin/sttray/internal/supervisor"
)

type stubDaemon struct {
	mu      sync.Mutex
	running bool
}

func (s *stubDaemon) Start() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return "", supervisor.ErrAlreadyRunning
	}
	s.running = true
	return supervisor.StartedMessage, nil
}

func (s *stubDaemon) Stop() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return "", supervisor.ErrNotRunning
	}
	s.running = false
	return supervisor.StoppedMessage, nil
}

func (s *stubDaemon) Status() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *stubDaemon) Info() supervisor.Info {
	return supervisor.Info{Running: s.Status(), PID: 99, Alive: s.Status()}
}

func newTestClient(t *testing.T) (*Client, *events.Bus) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	bus := events.New()
	h := server.NewRouter(&stubDaemon{}, bus, "/api").Handler()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(Config{
		BaseURL: srv.URL + "/api/",
		Timeout: 2 * time.Second,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}), bus
}

func TestClientLifecycle(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	require.True(t, c.IsReachable(ctx))

	running, err := c.Status(ctx)
	require.NoError(t, err)
	assert.False(t, running)

	msg, err := c.Start(ctx)
	require.NoError(t, err)
	assert.Equal(t, "STT daemon started successfully", msg)

	_, err = c.Start(ctx)
	require.Error(t, err)
	assert.True(t, IsConflict(err))
	assert.Equal(t, "STT daemon is already running", err.Error())

	info, err := c.Info(ctx)
	require.NoError(t, err)
	assert.True(t, info.Running)
	assert.Equal(t, 99, info.PID)

	msg, err = c.Stop(ctx)
	require.NoError(t, err)
	assert.Equal(t, "STT daemon stopped successfully", msg)

	_, err = c.Stop(ctx)
	assert.True(t, IsConflict(err))
	assert.Equal(t, "STT daemon is not running", err.Error())
}

func TestClientEvents(t *testing.T) {
	c, bus := newTestClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := c.Events(ctx)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return bus.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)

	bus.Emit(events.STTError, "Failed to start STT daemon: boom")
	bus.Emit(events.STTStatus, true)

	e := <-ch
	assert.Equal(t, "stt_error", e.Name)
	text, err := e.Text()
	require.NoError(t, err)
	assert.Equal(t, "Failed to start STT daemon: boom", text)

	e = <-ch
	on, err := e.Bool()
	require.NoError(t, err)
	assert.True(t, on)

	cancel()
	select {
	case _, open := <-ch:
		assert.False(t, open)
	case <-time.After(3 * time.Second):
		t.Fatal("events channel not closed after cancel")
	}
}

func TestClientUnreachable(t *testing.T) {
	c := New(Config{BaseURL: "http://127.0.0.1:1/api", Timeout: 500 * time.Millisecond, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	assert.False(t, c.IsReachable(context.Background()))
	_, err := c.Status(context.Background())
	require.Error(t, err)
	assert.False(t, IsConflict(err))
}

func TestHandleErrorResponseWithoutBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()
	c := New(Config{BaseURL: srv.URL})
	_, err := c.Start(context.Background())
	var ae *APIError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, http.StatusBadGateway, ae.StatusCode)
	assert.Equal(t, "HTTP 502", ae.Error())
}
