package app

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/sttray/internal/config"
	"github.com/loykin/sttray/internal/events"
	"github.com/loykin/sttray/internal/tray"
)

func requireUnix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("tests use sleep on Unix-like systems")
	}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	c := config.Default()
	dir := t.TempDir()
	c.StateDir = dir
	c.Daemon.Command = "sleep"
	c.Daemon.Args = []string{"30"}
	c.Server.Listen = "127.0.0.1:0"
	c.History.DSN = "sqlite://" + filepath.Join(dir, "history.db")
	c.Tray.Notify = false
	return &c
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newApp(t *testing.T, c *config.Config, opts Options) *App {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = quiet()
	}
	a, err := New(c, opts)
	require.NoError(t, err)
	t.Cleanup(func() {
		a.Supervisor().Shutdown()
		_ = a.Close()
	})
	return a
}

func runAsync(a *App, ctx context.Context) <-chan error {
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	return done
}

func waitRun(t *testing.T, done <-chan error) {
	t.Helper()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
}

func TestSecondInstanceRefused(t *testing.T) {
	c := testConfig(t)
	newApp(t, c, Options{Headless: true})

	c2 := *c
	c2.Server.Enabled = false
	_, err := New(&c2, Options{Headless: true, Logger: quiet()})
	require.ErrorIs(t, err, ErrAlreadyRunning)
}

func TestLockReleasedOnClose(t *testing.T) {
	c := testConfig(t)
	a, err := New(c, Options{Headless: true, Logger: quiet()})
	require.NoError(t, err)
	require.NoError(t, a.Close())
	require.NoError(t, a.Close(), "close is idempotent")

	b := newApp(t, c, Options{Headless: true})
	assert.NotEmpty(t, b.BridgeAddr())
}

func TestQuitOnContextCancelKillsDaemon(t *testing.T) {
	requireUnix(t)
	a := newApp(t, testConfig(t), Options{Headless: true})
	_, err := a.Supervisor().Start()
	require.NoError(t, err)
	pid := a.Supervisor().Info().PID

	ctx, cancel := context.WithCancel(context.Background())
	done := runAsync(a, ctx)
	cancel()
	waitRun(t, done)

	assert.False(t, a.Supervisor().Status())
	require.Eventually(t, func() bool { return !pidAlive(pid) }, 3*time.Second, 20*time.Millisecond)
}

func TestQuitItemEndsRun(t *testing.T) {
	requireUnix(t)
	a := newApp(t, testConfig(t), Options{Headless: true})
	done := runAsync(a, context.Background())

	a.Controller().Click(tray.ItemStart)
	a.Controller().Wait()
	require.True(t, a.Supervisor().Status())
	pid := a.Supervisor().Info().PID

	a.Controller().Click(tray.ItemQuit)
	waitRun(t, done)
	assert.False(t, a.Supervisor().Status())
	require.Eventually(t, func() bool { return !pidAlive(pid) }, 3*time.Second, 20*time.Millisecond)
}

func TestQuitWithoutDaemonIsClean(t *testing.T) {
	a := newApp(t, testConfig(t), Options{Headless: true})
	done := runAsync(a, context.Background())
	a.Quit()
	a.Quit()
	waitRun(t, done)
}

func TestTrayModeUsesTrayLoop(t *testing.T) {
	c := testConfig(t)
	a := newApp(t, c, Options{})

	ended := make(chan struct{})
	var attached bool
	a.runTray = func(ctrl *tray.Controller, tooltip string, onReady, onExit func()) {
		assert.Equal(t, c.Tray.Tooltip, tooltip)
		attached = ctrl == a.Controller()
		onReady()
		<-ended
		onExit()
	}
	a.endTray = func() { close(ended) }

	done := runAsync(a, context.Background())
	a.Controller().Click(tray.ItemQuit)
	waitRun(t, done)
	assert.True(t, attached)
}

func TestTrayClicksBroadcastToBridgeClients(t *testing.T) {
	requireUnix(t)
	a := newApp(t, testConfig(t), Options{Headless: true})
	ch, cancel := a.Bus().Subscribe(4)
	defer cancel()

	a.Controller().Click(tray.ItemStart)
	a.Controller().Wait()
	e := <-ch
	assert.Equal(t, events.STTStatus, e.Name)
	assert.Equal(t, true, e.Payload)

	resp, err := http.Get("http://" + a.BridgeAddr() + "/api/invoke/get_stt_status")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	var running bool
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&running))
	assert.True(t, running)

	a.Controller().Click(tray.ItemStop)
	a.Controller().Wait()
	e = <-ch
	assert.Equal(t, false, e.Payload)
}

func TestMetricsExposedOnBridge(t *testing.T) {
	a := newApp(t, testConfig(t), Options{Headless: true})
	resp, err := http.Get("http://" + a.BridgeAddr() + "/api/metrics")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	b, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(b), "sttray_daemon_running")
}

func TestShowURLDefaultsToBridge(t *testing.T) {
	a := newApp(t, testConfig(t), Options{Headless: true})
	assert.Equal(t, "http://"+a.BridgeAddr()+"/", a.ShowURL())

	c := testConfig(t)
	c.Server.Enabled = false
	c.Tray.ShowURL = "http://localhost:3000/"
	b := newApp(t, c, Options{Headless: true})
	assert.Equal(t, "http://localhost:3000/", b.ShowURL())
	assert.Empty(t, b.BridgeAddr())
}

func TestReloadChangesLevel(t *testing.T) {
	a := newApp(t, testConfig(t), Options{Headless: true})
	c := testConfig(t)
	c.Log.Level = "debug"
	a.reload(c)
	assert.Equal(t, slog.LevelDebug, a.level.Level())
}

func TestReloadUpdatesSharedLevel(t *testing.T) {
	lv := new(slog.LevelVar)
	a := newApp(t, testConfig(t), Options{Headless: true, Level: lv})
	c := testConfig(t)
	c.Log.Level = "error"
	a.reload(c)
	assert.Equal(t, slog.LevelError, lv.Level())
}

func TestBadHistoryDSNFailsAndReleasesLock(t *testing.T) {
	c := testConfig(t)
	c.History.DSN = "clickhouse://nowhere"
	_, err := New(c, Options{Headless: true, Logger: quiet()})
	require.Error(t, err)

	c.History.DSN = ""
	newApp(t, c, Options{Headless: true})
}
