package process

import (
	"os"
	"os/exec"
	"strings"

	"github.com/loykin/sttray/internal/logger"
)

// Spec describes the external daemon to spawn.
type Spec struct {
	Name    string        `json:"name" mapstructure:"name"`
	Command string        `json:"command" mapstructure:"command"` // executable, or a full command line when Args is empty
	Args    []string      `json:"args" mapstructure:"args"`
	WorkDir string        `json:"work_dir" mapstructure:"work_dir"`
	Env     []string      `json:"env" mapstructure:"env"` // KEY=VALUE entries layered over the parent environment
	Log     logger.Config `json:"-" mapstructure:"-"`
}

// BuildCommand constructs an *exec.Cmd for the spec.
// With explicit Args the command is executed directly. Otherwise Command is
// treated as a command line: an explicit "sh -c" prefix is honored, shell
// metacharacters fall back to /bin/sh -c, and plain words are split on spaces.
func (s *Spec) BuildCommand() *exec.Cmd {
	var cmd *exec.Cmd
	cmdStr := strings.TrimSpace(s.Command)
	switch {
	case len(s.Args) > 0:
		// #nosec G204
		cmd = exec.Command(cmdStr, s.Args...)
	case cmdStr == "":
		// an empty command must fail at Start, not silently succeed
		cmd = exec.Command("")
	default:
		cmd = commandLine(cmdStr)
	}
	if s.WorkDir != "" {
		cmd.Dir = s.WorkDir
	}
	if len(s.Env) > 0 {
		cmd.Env = append(os.Environ(), s.Env...)
	}
	configureSysProcAttr(cmd)
	return cmd
}

func commandLine(cmdStr string) *exec.Cmd {
	if afterC, ok := parseExplicitShell(cmdStr); ok {
		// #nosec G204
		return exec.Command("/bin/sh", "-c", afterC)
	}
	if strings.ContainsAny(cmdStr, "|&;<>*?`$\"'(){}[]~") {
		// #nosec G204
		return exec.Command("/bin/sh", "-c", cmdStr)
	}
	parts := strings.Fields(cmdStr)
	// #nosec G204
	return exec.Command(parts[0], parts[1:]...)
}

// parseExplicitShell detects "sh -c <ARG>" style prefixes and returns ARG
// with one pair of surrounding quotes stripped.
func parseExplicitShell(cmdStr string) (string, bool) {
	trim := strings.TrimLeft(cmdStr, " \t")
	for _, p := range []string{"sh -c ", "/bin/sh -c ", "/usr/bin/sh -c "} {
		if !strings.HasPrefix(trim, p) {
			continue
		}
		after := trim[len(p):]
		if n := len(after); n >= 2 {
			if (after[0] == '\'' && after[n-1] == '\'') || (after[0] == '"' && after[n-1] == '"') {
				after = after[1 : n-1]
			}
		}
		return after, true
	}
	return "", false
}
