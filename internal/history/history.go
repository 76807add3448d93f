// Package history exports daemon lifecycle events to an append-only audit
// store. Nothing is ever read back to restore supervisor state.
package history

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/loykin/sttray/internal/supervisor"
)

// EventType defines the kind of lifecycle event.
type EventType string

const (
	EventStart       EventType = "start"
	EventStop        EventType = "stop"
	EventStopFailed  EventType = "stop_failed"
	EventSpawnFailed EventType = "spawn_failed"
)

// Event is one audit row.
type Event struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Name       string    `json:"name"`
	PID        int       `json:"pid"`
	Op         string    `json:"op"`
	Error      string    `json:"error,omitempty"`
}

// Sink is a destination for history events.
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}

// DefaultTimeout bounds a single Send.
const DefaultTimeout = 5 * time.Second

// Recorder turns supervisor notifications into history events and fans them
// out to every sink. Send errors are logged, never returned to the caller.
type Recorder struct {
	name    string
	sinks   []Sink
	log     *slog.Logger
	timeout time.Duration
	now     func() time.Time
}

var _ supervisor.Observer = (*Recorder)(nil)

// NewRecorder records events for the daemon called name.
func NewRecorder(name string, log *slog.Logger, sinks ...Sink) *Recorder {
	if log == nil {
		log = slog.Default()
	}
	return &Recorder{
		name:    name,
		sinks:   sinks,
		log:     log.With("component", "history"),
		timeout: DefaultTimeout,
		now:     time.Now,
	}
}

func (r *Recorder) Started(info supervisor.Info) {
	r.send(Event{Type: EventStart, PID: info.PID, Op: string(supervisor.OpStart)})
}

func (r *Recorder) Stopped(op supervisor.Op, info supervisor.Info) {
	r.send(Event{Type: EventStop, PID: info.PID, Op: string(op)})
}

func (r *Recorder) Failed(op supervisor.Op, err error) {
	e := Event{Type: EventStopFailed, Op: string(op)}
	if op == supervisor.OpStart {
		e.Type = EventSpawnFailed
	}
	if err != nil {
		e.Error = err.Error()
	}
	r.send(e)
}

func (r *Recorder) send(e Event) {
	e.Name = r.name
	e.OccurredAt = r.now().UTC()
	for _, s := range r.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		if err := s.Send(ctx, e); err != nil {
			r.log.Warn("history send failed", "type", e.Type, "error", err)
		}
		cancel()
	}
}

// Close closes every sink that implements io.Closer.
func (r *Recorder) Close() error {
	var errs []error
	for _, s := range r.sinks {
		if c, ok := s.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
