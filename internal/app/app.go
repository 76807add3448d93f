// Package app wires the supervisor, event bus, bridge, history and tray into
// one single-instance desktop process.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/loykin/sttray/internal/config"
	"github.com/loykin/sttray/internal/events"
	"github.com/loykin/sttray/internal/history"
	"github.com/loykin/sttray/internal/history/factory"
	"github.com/loykin/sttray/internal/logger"
	"github.com/loykin/sttray/internal/metrics"
	"github.com/loykin/sttray/internal/server"
	"github.com/loykin/sttray/internal/supervisor"
	"github.com/loykin/sttray/internal/tray"
)

// ErrAlreadyRunning is returned by New when another instance holds the lock.
var ErrAlreadyRunning = errors.New("sttray is already running")

// Options control how the application presents itself.
type Options struct {
	// Headless skips the tray icon; the quit path is then driven by ctx or Quit.
	Headless bool
	// Loader, when set, is watched so log level edits apply without a restart.
	Loader *config.Loader
	// Logger overrides the logger built from configuration.
	Logger *slog.Logger
	// Level is the leveler behind Logger; reloads update it.
	Level *slog.LevelVar
}

// App is one running sttray instance.
type App struct {
	cfg    *config.Config
	opts   Options
	log    *slog.Logger
	level  *slog.LevelVar
	lock   *flock.Flock
	sup    *supervisor.Supervisor
	bus    *events.Bus
	rec    *history.Recorder
	srv    *http.Server
	ctrl   *tray.Controller
	closed bool

	quitOnce sync.Once
	quit     chan struct{}

	// runTray blocks running the native tray; replaced in tests.
	runTray func(c *tray.Controller, tooltip string, onReady, onExit func())
	endTray func()
}

// New acquires the single-instance lock and builds every component. The
// daemon is not started.
func New(cfg *config.Config, opts Options) (*App, error) {
	a := &App{
		cfg:     cfg,
		opts:    opts,
		level:   new(slog.LevelVar),
		quit:    make(chan struct{}),
		runTray: tray.Run,
		endTray: tray.Quit,
	}
	if opts.Level != nil {
		a.level = opts.Level
	}
	a.log = opts.Logger
	if a.log == nil {
		a.log = logger.Config{Slog: cfg.Log, Level: a.level}.NewSlogger()
	}

	if err := a.acquireLock(); err != nil {
		return nil, err
	}
	ok := false
	defer func() {
		if !ok {
			_ = a.Close()
		}
	}()

	spec, err := cfg.DaemonSpec()
	if err != nil {
		return nil, fmt.Errorf("daemon spec: %w", err)
	}
	a.sup = supervisor.New(spec, a.log)
	a.bus = events.New()

	if cfg.Metrics.Enabled {
		if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
		a.bus.OnDrop(metrics.IncEventDropped)
	}

	if cfg.History.DSN != "" {
		sink, err := factory.NewSinkFromDSN(cfg.History.DSN)
		if err != nil {
			return nil, fmt.Errorf("history sink: %w", err)
		}
		a.rec = history.NewRecorder(spec.Name, a.log, sink)
		a.sup.AddObserver(a.rec)
	}

	if cfg.Server.Enabled {
		ropts := []server.Option{server.WithLogger(a.log), server.WithUI()}
		if cfg.Metrics.Enabled {
			ropts = append(ropts, server.WithMetrics(metrics.Handler(nil)))
		}
		h := server.NewRouter(a.sup, a.bus, cfg.Server.BasePath, ropts...).Handler()
		a.srv, err = server.NewServer(cfg.Server.Listen, h)
		if err != nil {
			return nil, fmt.Errorf("bridge: %w", err)
		}
		a.log.Info("bridge listening", "addr", a.srv.Addr)
	}

	var win tray.Window
	if u := a.ShowURL(); u != "" {
		win = tray.BrowserWindow{URL: u}
	}
	var notifier tray.Notifier
	if cfg.Tray.Notify && !opts.Headless {
		notifier = tray.DesktopNotifier{}
	}
	a.ctrl = tray.NewController(tray.Config{
		Daemon:   a.sup,
		Bus:      a.bus,
		Window:   win,
		Notifier: notifier,
		Exit:     a.exit,
		Logger:   a.log,
	})

	if opts.Loader != nil {
		opts.Loader.Watch(a.reload, func(err error) {
			a.log.Warn("config reload rejected", "error", err)
		})
	}
	ok = true
	return a, nil
}

func (a *App) acquireLock() error {
	if err := os.MkdirAll(a.cfg.StateDir, 0o750); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	lk := flock.New(a.cfg.LockPath())
	locked, err := lk.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock %s: %w", a.cfg.LockPath(), err)
	}
	if !locked {
		return fmt.Errorf("%w (lock held: %s)", ErrAlreadyRunning, a.cfg.LockPath())
	}
	a.lock = lk
	return nil
}

// reload applies the settings that can change at runtime.
func (a *App) reload(c *config.Config) {
	lvl := logger.ParseLevel(c.Log.Level)
	if lvl != a.level.Level() {
		a.level.Set(lvl)
		a.log.Info("log level changed", "level", lvl.String())
	}
}

// Run blocks until the quit path has run, from the tray's quit item, from
// Quit, or from ctx being cancelled (SIGINT/SIGTERM in the CLI).
func (a *App) Run(ctx context.Context) error {
	go func() {
		select {
		case <-ctx.Done():
			a.log.Info("shutdown requested", "cause", context.Cause(ctx))
			a.Quit()
		case <-a.quit:
		}
	}()

	if a.opts.Headless || !a.cfg.Tray.Enabled {
		<-a.quit
		return nil
	}
	a.runTray(a.ctrl, a.cfg.Tray.Tooltip, func() {
		a.log.Info("tray ready")
	}, func() {
		a.log.Debug("tray exited")
	})
	// the tray loop can end without the quit item, e.g. the desktop session closing
	select {
	case <-a.quit:
	default:
		a.Quit()
	}
	return nil
}

// Quit runs the quit path: force-kill any held daemon, then end Run.
func (a *App) Quit() { a.ctrl.Click(tray.ItemQuit) }

func (a *App) exit() {
	a.quitOnce.Do(func() {
		close(a.quit)
		if !a.opts.Headless && a.cfg.Tray.Enabled {
			a.endTray()
		}
	})
}

// Close releases the bridge, history sinks and lock. It does not touch the daemon.
func (a *App) Close() error {
	if a.closed {
		return nil
	}
	a.closed = true
	var errs []error
	if a.srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := a.srv.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
		cancel()
	}
	if a.rec != nil {
		if err := a.rec.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.lock != nil {
		if err := a.lock.Unlock(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Supervisor exposes the daemon supervisor.
func (a *App) Supervisor() *supervisor.Supervisor { return a.sup }

// Bus exposes the broadcast bus.
func (a *App) Bus() *events.Bus { return a.bus }

// Controller exposes the tray controller.
func (a *App) Controller() *tray.Controller { return a.ctrl }

// BridgeAddr returns the bound bridge address, or "" when the bridge is disabled.
func (a *App) BridgeAddr() string {
	if a.srv == nil {
		return ""
	}
	return a.srv.Addr
}

// ShowURL is what the "show" item opens.
func (a *App) ShowURL() string {
	if a.cfg.Tray.ShowURL != "" {
		return a.cfg.Tray.ShowURL
	}
	if a.srv == nil {
		return ""
	}
	return "http://" + a.srv.Addr + "/"
}
