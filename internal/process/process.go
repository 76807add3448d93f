package process

import (
	"bytes"
	"errors"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"sync"
	"time"

	gopsproc "github.com/shirou/gopsutil/v4/process"
)

// ErrExited is returned by operations that need a live child.
var ErrExited = errors.New("process has exited")

// Process is one spawned child. It is created by Start and never restarted;
// a new run needs a new Process.
type Process struct {
	spec      Spec
	mu        sync.Mutex
	cmd       *exec.Cmd
	status    Status
	outCloser io.WriteCloser
	errCloser io.WriteCloser
	waitDone  chan struct{} // closed by the reaper when cmd.Wait returns
}

// Start spawns the child described by spec with stdout/stderr routed to the
// configured log writers (or the null device). A reaper goroutine waits on the
// child so it never lingers as a zombie.
func Start(spec Spec) (*Process, error) {
	p := &Process{spec: spec, waitDone: make(chan struct{})}
	cmd := spec.BuildCommand()
	outW, errW, err := spec.Log.ProcessWriters(spec.Name)
	if err != nil {
		return nil, err
	}
	if outW != nil {
		cmd.Stdout = outW
	}
	if errW != nil {
		cmd.Stderr = errW
	}
	if err := cmd.Start(); err != nil {
		closeAll(outW, errW)
		return nil, err
	}
	p.cmd = cmd
	p.outCloser, p.errCloser = outW, errW
	p.status = Status{Name: spec.Name, PID: cmd.Process.Pid, StartedAt: time.Now()}
	go p.reap()
	return p, nil
}

func (p *Process) reap() {
	err := p.cmd.Wait()
	p.mu.Lock()
	p.status.Exited = true
	p.status.StoppedAt = time.Now()
	p.status.ExitErr = err
	out, errw := p.outCloser, p.errCloser
	p.outCloser, p.errCloser = nil, nil
	p.mu.Unlock()
	closeAll(out, errw)
	close(p.waitDone)
}

// Kill sends a forced termination to the child's process group and returns
// without waiting for exit. It returns os.ErrProcessDone when the child is
// already known to have exited.
func (p *Process) Kill() error {
	if p.Exited() {
		return os.ErrProcessDone
	}
	return killGroup(p.cmd.Process)
}

// PID returns the OS process id.
func (p *Process) PID() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status.PID
}

// Exited reports whether the reaper has observed the child's exit.
func (p *Process) Exited() bool {
	select {
	case <-p.waitDone:
		return true
	default:
		return false
	}
}

// Done is closed once the child has exited and been reaped.
func (p *Process) Done() <-chan struct{} { return p.waitDone }

// Snapshot returns a copy of the current status.
func (p *Process) Snapshot() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// DetectAlive probes OS-level liveness. A reaped child or a Linux zombie is not alive.
func (p *Process) DetectAlive() bool {
	if p.Exited() {
		return false
	}
	pid := p.PID()
	if runtime.GOOS == "linux" && isZombieLinux(pid) {
		return false
	}
	ok, err := gopsproc.PidExists(int32(pid)) // #nosec G115
	return err == nil && ok
}

// isZombieLinux returns true if /proc/<pid>/status reports a zombie state (Z).
func isZombieLinux(pid int) bool {
	b, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/status")
	if err != nil {
		return false
	}
	return bytes.Contains(b, []byte("State:\tZ"))
}

func closeAll(cs ...io.WriteCloser) {
	for _, c := range cs {
		if c != nil {
			_ = c.Close()
		}
	}
}

// IsProcessDone reports whether err means the target process no longer exists.
func IsProcessDone(err error) bool {
	return errors.Is(err, os.ErrProcessDone)
}
