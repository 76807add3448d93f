// Package tray drives the tray menu. Controller holds the click semantics
// and talks to the menu through the Menu interface; systray.go binds it to
// the native tray.
package tray

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/loykin/sttray/internal/events"
)

// Menu item identifiers.
const (
	ItemStart = "start_stt"
	ItemStop  = "stop_stt"
	ItemShow  = "show"
	ItemQuit  = "quit"
)

// Daemon is the subset of *supervisor.Supervisor the tray drives.
type Daemon interface {
	Start() (string, error)
	Stop() (string, error)
	Status() bool
	Shutdown()
}

// Broadcaster delivers events to every window.
type Broadcaster interface {
	Emit(name string, payload any) events.Event
}

// Menu toggles the enabled state of the start and stop items.
type Menu interface {
	SetStartEnabled(bool)
	SetStopEnabled(bool)
}

// Window is the main front-end window.
type Window interface {
	Show() error
}

// Notifier surfaces a failure to the user outside any window.
type Notifier interface {
	Notify(title, message string) error
}

// Controller maps menu clicks to daemon operations.
type Controller struct {
	d      Daemon
	bus    Broadcaster
	win    Window
	notify Notifier
	exit   func()
	log    *slog.Logger

	// menuMu orders menu updates and status broadcasts; running is the
	// last state broadcast as stt_status.
	menuMu  sync.Mutex
	menu    Menu
	running bool

	quitting atomic.Bool
	wg       sync.WaitGroup
}

// Config wires a Controller. Window and Notifier are optional.
type Config struct {
	Daemon   Daemon
	Bus      Broadcaster
	Window   Window
	Notifier Notifier
	// Exit ends the application after the quit path has killed the daemon.
	Exit   func()
	Logger *slog.Logger
}

// NewController returns a Controller for cfg. Call Attach once the native
// menu exists.
func NewController(cfg Config) *Controller {
	l := cfg.Logger
	if l == nil {
		l = slog.Default()
	}
	exit := cfg.Exit
	if exit == nil {
		exit = func() {}
	}
	return &Controller{
		d:      cfg.Daemon,
		bus:    cfg.Bus,
		win:    cfg.Window,
		notify: cfg.Notifier,
		exit:   exit,
		log:    l.With("component", "tray"),
	}
}

// Attach binds m and puts it in the initial state: start enabled, stop disabled.
func (c *Controller) Attach(m Menu) {
	c.menuMu.Lock()
	defer c.menuMu.Unlock()
	c.menu = m
	c.applyMenu(c.running)
}

// Click handles a menu item selection. Start and stop run on their own
// goroutine so the caller (the tray event loop) never blocks; quit runs
// inline because it ends the process.
func (c *Controller) Click(id string) {
	switch id {
	case ItemStart:
		c.spawn(c.start)
	case ItemStop:
		c.spawn(c.stop)
	case ItemShow:
		c.show()
	case ItemQuit:
		c.quit()
	default:
		c.log.Debug("unknown menu item", "id", id)
	}
}

// Wait blocks until every dispatched start/stop has finished.
func (c *Controller) Wait() { c.wg.Wait() }

func (c *Controller) spawn(fn func()) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		fn()
	}()
}

func (c *Controller) start() {
	msg, err := c.d.Start()
	if err != nil {
		c.fail("Error starting STT", err)
		c.sync(false)
		return
	}
	c.log.Info(msg)
	c.sync(true)
}

func (c *Controller) stop() {
	msg, err := c.d.Stop()
	if err != nil {
		c.fail("Error stopping STT", err)
		c.sync(false)
		return
	}
	c.log.Info(msg)
	c.sync(true)
}

func (c *Controller) show() {
	if c.win == nil {
		return
	}
	if err := c.win.Show(); err != nil {
		c.log.Warn("show window failed", "error", err)
	}
}

func (c *Controller) quit() {
	c.log.Info("quit requested")
	c.quitting.Store(true)
	c.d.Shutdown()
	c.exit()
}

// fail logs err and broadcasts it. Failures of clicks still in flight when
// quit ran are expected and only logged.
func (c *Controller) fail(what string, err error) {
	if c.quitting.Load() {
		c.log.Debug(what, "error", err, "quitting", true)
		return
	}
	c.log.Error(what, "error", err)
	c.emit(events.STTError, err.Error())
	if c.notify != nil {
		if nerr := c.notify.Notify("STT", err.Error()); nerr != nil {
			c.log.Debug("notification failed", "error", nerr)
		}
	}
}

func (c *Controller) emit(name string, payload any) {
	if c.bus != nil {
		c.bus.Emit(name, payload)
	}
}

// sync reads the recorded state back from the daemon and applies it to the
// menu. stt_status goes out when the state differs from the last broadcast,
// or always when broadcast is set.
func (c *Controller) sync(broadcast bool) {
	c.menuMu.Lock()
	defer c.menuMu.Unlock()
	if c.quitting.Load() {
		return
	}
	running := c.d.Status()
	c.applyMenu(running)
	if broadcast || running != c.running {
		c.running = running
		c.emit(events.STTStatus, running)
	}
}

// applyMenu must be called with menuMu held.
func (c *Controller) applyMenu(running bool) {
	if c.menu == nil {
		return
	}
	c.menu.SetStartEnabled(!running)
	c.menu.SetStopEnabled(running)
}
