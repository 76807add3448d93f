//go:build windows

package process

import "os"

// killGroup terminates the child. Windows has no process-group signal, so
// TerminateProcess on the child itself is the forced-termination primitive.
func killGroup(p *os.Process) error {
	return p.Kill()
}
