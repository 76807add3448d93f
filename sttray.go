// Package sttray is the embeddable API: a single-handle supervisor for the
// STT daemon plus the bridge router that exposes it to front-end windows.
package sttray

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/loykin/sttray/internal/events"
	"github.com/loykin/sttray/internal/metrics"
	"github.com/loykin/sttray/internal/process"
	"github.com/loykin/sttray/internal/server"
	"github.com/loykin/sttray/internal/supervisor"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Spec = process.Spec

type Info = supervisor.Info

type SpawnError = supervisor.SpawnError

type TerminationError = supervisor.TerminationError

type Event = events.Event

type Bus = events.Bus

var (
	ErrAlreadyRunning = supervisor.ErrAlreadyRunning
	ErrNotRunning     = supervisor.ErrNotRunning
	ErrShutDown       = supervisor.ErrShutDown
)

// Event names.
const (
	EventStatus = events.STTStatus
	EventError  = events.STTError
)

// Supervisor is a thin facade over the internal supervisor.
type Supervisor struct{ inner *supervisor.Supervisor }

func NewSupervisor(spec Spec, log *slog.Logger) *Supervisor {
	return &Supervisor{inner: supervisor.New(spec, log)}
}

func (s *Supervisor) Start() (string, error) { return s.inner.Start() }
func (s *Supervisor) Stop() (string, error)  { return s.inner.Stop() }
func (s *Supervisor) Status() bool           { return s.inner.Status() }
func (s *Supervisor) Shutdown()              { s.inner.Shutdown() }
func (s *Supervisor) Info() Info             { return s.inner.Info() }

func NewBus() *Bus { return events.New() }

// NewRouter returns the bridge handler for s mounted under basePath. bus may be nil.
func NewRouter(s *Supervisor, bus *Bus, basePath string) http.Handler {
	return server.NewRouter(s.inner, bus, basePath).Handler()
}

// RegisterMetrics registers sttray collectors with r.
func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
