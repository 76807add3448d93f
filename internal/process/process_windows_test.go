//go:build windows

package process

import (
	"os/exec"
	"testing"

	"golang.org/x/sys/windows"
)

// checkSysProcAttrs verifies Windows-specific process attributes
func checkSysProcAttrs(t *testing.T, cmd *exec.Cmd) {
	t.Helper()
	if cmd.SysProcAttr == nil || cmd.SysProcAttr.CreationFlags&windows.CREATE_NEW_PROCESS_GROUP == 0 {
		t.Fatalf("CREATE_NEW_PROCESS_GROUP not set")
	}
}
