package client

import (
	"encoding/json"
	"time"
)

// Info mirrors the bridge's /info payload.
type Info struct {
	Running   bool      `json:"running"`
	PID       int       `json:"pid,omitempty"`
	StartedAt time.Time `json:"started_at,omitempty"`
	Alive     bool      `json:"alive"`
	Exited    bool      `json:"exited"`
	ExitError string    `json:"exit_error,omitempty"`
	Usage     *Usage    `json:"usage,omitempty"`
}

// Usage is the daemon's resource usage at the time of the probe.
type Usage struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemoryRSS  uint64  `json:"memory_rss"`
	NumThreads int32   `json:"num_threads"`
}

// Event is one broadcast received from /events. Payload is kept raw;
// stt_status carries a bool and stt_error a string.
type Event struct {
	ID      string          `json:"id"`
	Name    string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	At      time.Time       `json:"at"`
}

// Bool decodes a stt_status payload.
func (e Event) Bool() (bool, error) {
	var b bool
	err := json.Unmarshal(e.Payload, &b)
	return b, err
}

// Text decodes a stt_error payload.
func (e Event) Text() (string, error) {
	var s string
	err := json.Unmarshal(e.Payload, &s)
	return s, err
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
}

type okResponse struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}
