// Package supervisor owns the single STT daemon handle.
//
// The handle is a zero-or-one slot guarded by a mutex that is held only for
// the spawn, kill or check call itself. Status reports "handle recorded", not
// "process alive": a daemon that exits on its own keeps reporting running
// until Stop is called. Use Info for OS-level liveness.
package supervisor

import (
	"log/slog"
	"sync"
	"time"

	"github.com/loykin/sttray/internal/metrics"
	"github.com/loykin/sttray/internal/process"
)

// Op names an operation for observers.
type Op string

const (
	OpStart    Op = "start"
	OpStop     Op = "stop"
	OpShutdown Op = "shutdown"
)

// Observer receives lifecycle notifications after the lock is released.
// Implementations must be safe for concurrent use.
type Observer interface {
	Started(info Info)
	Stopped(op Op, info Info)
	Failed(op Op, err error)
}

// Info is a diagnostic snapshot of the handle.
type Info struct {
	Running   bool           `json:"running"` // handle present
	PID       int            `json:"pid,omitempty"`
	StartedAt time.Time      `json:"started_at,omitempty"`
	Alive     bool           `json:"alive"` // OS-level liveness probe
	Exited    bool           `json:"exited"`
	ExitError string         `json:"exit_error,omitempty"`
	Usage     *process.Usage `json:"usage,omitempty"`
}

// Supervisor serializes all access to the daemon handle.
type Supervisor struct {
	mu     sync.Mutex
	spec   process.Spec
	proc   *process.Process
	closed bool // set by Shutdown; no spawn after it

	log *slog.Logger

	obsMu     sync.RWMutex
	observers []Observer

	// seams for tests
	spawn func(process.Spec) (*process.Process, error)
	kill  func(*process.Process) error
}

// New creates a supervisor for spec in the Stopped state.
func New(spec process.Spec, log *slog.Logger) *Supervisor {
	if log == nil {
		log = slog.Default()
	}
	if spec.Name == "" {
		spec.Name = "stt"
	}
	return &Supervisor{
		spec:  spec,
		log:   log.With("component", "supervisor", "daemon", spec.Name),
		spawn: process.Start,
		kill:  (*process.Process).Kill,
	}
}

// AddObserver registers o for lifecycle notifications.
func (s *Supervisor) AddObserver(o Observer) {
	if o == nil {
		return
	}
	s.obsMu.Lock()
	s.observers = append(s.observers, o)
	s.obsMu.Unlock()
}

// Start spawns the daemon. It fails with ErrAlreadyRunning while a handle is
// held, with ErrShutDown after Shutdown, and with *SpawnError when the OS
// refuses to create the process.
func (s *Supervisor) Start() (string, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.log.Debug("start rejected", "reason", ErrShutDown)
		return "", ErrShutDown
	}
	if s.proc != nil {
		s.mu.Unlock()
		s.log.Debug("start rejected", "reason", ErrAlreadyRunning)
		return "", ErrAlreadyRunning
	}
	p, err := s.spawn(s.spec)
	if err != nil {
		s.mu.Unlock()
		serr := &SpawnError{Err: err}
		s.log.Error("spawn failed", "error", err)
		metrics.IncFailure(string(OpStart))
		s.notifyFailed(OpStart, serr)
		return "", serr
	}
	s.proc = p
	info := infoOf(p, false)
	s.mu.Unlock()

	s.log.Info("daemon started", "pid", info.PID)
	metrics.IncStart()
	s.notifyStarted(info)
	return StartedMessage, nil
}

// Stop force-kills the daemon and clears the handle without waiting for exit.
// It fails with ErrNotRunning when no handle is held. A kill failure returns
// *TerminationError; the handle is kept unless the process is already gone.
func (s *Supervisor) Stop() (string, error) {
	s.mu.Lock()
	p := s.proc
	if p == nil {
		s.mu.Unlock()
		s.log.Debug("stop rejected", "reason", ErrNotRunning)
		return "", ErrNotRunning
	}
	err := s.kill(p)
	cleared := err == nil || process.IsProcessDone(err)
	if cleared {
		s.proc = nil
	}
	info := infoOf(p, false)
	s.mu.Unlock()

	if err != nil {
		terr := &TerminationError{Err: err}
		s.log.Warn("kill failed", "pid", info.PID, "error", err, "handle_cleared", cleared)
		metrics.IncFailure(string(OpStop))
		if cleared {
			metrics.SetRunning(false)
		}
		s.notifyFailed(OpStop, terr)
		return "", terr
	}
	s.log.Info("daemon stopped", "pid", info.PID)
	metrics.IncStop(string(OpStop))
	s.notifyStopped(OpStop, info)
	return StoppedMessage, nil
}

// Status reports whether a handle is held. It never fails and does not probe the OS.
func (s *Supervisor) Status() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.proc != nil
}

// Shutdown is the quit path: it force-kills any held daemon and clears the
// handle unconditionally. Kill errors are logged only. Every Start after
// Shutdown fails with ErrShutDown, so a start racing the quit cannot leave
// a daemon behind.
func (s *Supervisor) Shutdown() {
	s.mu.Lock()
	s.closed = true
	p := s.proc
	s.proc = nil
	var err error
	if p != nil {
		err = s.kill(p)
	}
	s.mu.Unlock()

	if p == nil {
		return
	}
	info := infoOf(p, false)
	if err != nil && !process.IsProcessDone(err) {
		s.log.Warn("kill on shutdown failed", "pid", info.PID, "error", err)
		metrics.IncFailure(string(OpShutdown))
		metrics.SetRunning(false)
		s.notifyFailed(OpShutdown, &TerminationError{Err: err})
		return
	}
	s.log.Info("daemon terminated on shutdown", "pid", info.PID)
	metrics.IncStop(string(OpShutdown))
	s.notifyStopped(OpShutdown, info)
}

// Info returns a diagnostic snapshot, including OS-level liveness and resource usage.
func (s *Supervisor) Info() Info {
	s.mu.Lock()
	p := s.proc
	s.mu.Unlock()
	if p == nil {
		return Info{}
	}
	info := infoOf(p, true)
	if info.Usage != nil {
		metrics.SetMemoryRSS(info.Usage.MemoryRSS)
	}
	return info
}

func infoOf(p *process.Process, probe bool) Info {
	st := p.Snapshot()
	info := Info{Running: true, PID: st.PID, StartedAt: st.StartedAt, Exited: st.Exited}
	if st.ExitErr != nil {
		info.ExitError = st.ExitErr.Error()
	}
	if probe {
		info.Alive = p.DetectAlive()
		if info.Alive {
			if u, err := p.Usage(); err == nil {
				info.Usage = &u
			}
		}
	} else {
		info.Alive = !st.Exited
	}
	return info
}

func (s *Supervisor) snapshotObservers() []Observer {
	s.obsMu.RLock()
	defer s.obsMu.RUnlock()
	return append([]Observer(nil), s.observers...)
}

func (s *Supervisor) notifyStarted(info Info) {
	for _, o := range s.snapshotObservers() {
		o.Started(info)
	}
}

func (s *Supervisor) notifyStopped(op Op, info Info) {
	for _, o := range s.snapshotObservers() {
		o.Stopped(op, info)
	}
}

func (s *Supervisor) notifyFailed(op Op, err error) {
	for _, o := range s.snapshotObservers() {
		o.Failed(op, err)
	}
}
