package supervisor

import "errors"

// Messages returned on success. The front-end displays them verbatim.
const (
	StartedMessage = "STT daemon started successfully"
	StoppedMessage = "STT daemon stopped successfully"
)

var (
	// ErrAlreadyRunning rejects Start while a handle is held.
	ErrAlreadyRunning = errors.New("STT daemon is already running")
	// ErrNotRunning rejects Stop when no handle is held.
	ErrNotRunning = errors.New("STT daemon is not running")
	// ErrShutDown rejects Start once Shutdown has run.
	ErrShutDown = errors.New("STT daemon supervisor is shut down")
)

// SpawnError wraps the OS error returned when the daemon could not be created.
type SpawnError struct{ Err error }

func (e *SpawnError) Error() string { return "Failed to start STT daemon: " + e.Err.Error() }
func (e *SpawnError) Unwrap() error { return e.Err }

// TerminationError wraps the OS error returned by the forced kill.
type TerminationError struct{ Err error }

func (e *TerminationError) Error() string { return "Failed to stop STT daemon: " + e.Err.Error() }
func (e *TerminationError) Unwrap() error { return e.Err }
