package process

import (
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/loykin/sttray/internal/logger"
)

func requireUnix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("tests require sh/sleep on Unix-like systems")
	}
}

func waitDone(t *testing.T, p *Process, d time.Duration) {
	t.Helper()
	select {
	case <-p.Done():
	case <-time.After(d):
		t.Fatalf("process %d did not exit within %v", p.PID(), d)
	}
}

func TestStartRecordsStatus(t *testing.T) {
	requireUnix(t)
	p, err := Start(Spec{Name: "p1", Command: "sleep", Args: []string{"5"}})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() { _ = p.Kill() }()
	st := p.Snapshot()
	if st.PID <= 0 || st.Name != "p1" || st.StartedAt.IsZero() || st.Exited {
		t.Fatalf("unexpected status after start: %+v", st)
	}
	if !p.DetectAlive() {
		t.Fatalf("expected alive right after start")
	}
}

func TestStartMissingExecutable(t *testing.T) {
	_, err := Start(Spec{Name: "nope", Command: "/definitely/not/here/stt", Args: []string{"x"}})
	if err == nil {
		t.Fatalf("expected spawn error for missing executable")
	}
}

func TestStartEmptyCommandFails(t *testing.T) {
	if _, err := Start(Spec{Name: "empty"}); err == nil {
		t.Fatalf("expected error for empty command")
	}
}

func TestKillIsFireAndForgetAndReaped(t *testing.T) {
	requireUnix(t)
	p, err := Start(Spec{Name: "k", Command: "sleep 30"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := p.Kill(); err != nil {
		t.Fatalf("Kill: %v", err)
	}
	waitDone(t, p, 3*time.Second)
	st := p.Snapshot()
	if !st.Exited || st.ExitErr == nil {
		t.Fatalf("expected killed exit recorded, got %+v", st)
	}
	if p.DetectAlive() {
		t.Fatalf("reaped process must not be alive")
	}
}

func TestKillAfterExitReportsProcessDone(t *testing.T) {
	requireUnix(t)
	p, err := Start(Spec{Name: "short", Command: "true"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitDone(t, p, 3*time.Second)
	if err := p.Kill(); !IsProcessDone(err) {
		t.Fatalf("expected os.ErrProcessDone, got %v", err)
	}
}

func TestKillTakesDownProcessGroup(t *testing.T) {
	requireUnix(t)
	dir := t.TempDir()
	marker := filepath.Join(dir, "child.pid")
	// The shell forks a background sleep, records its pid, then waits.
	p, err := Start(Spec{Name: "grp", Command: "sh -c 'sleep 30 & echo $! > " + marker + "; wait'"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	var childPID string
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if b, err := os.ReadFile(marker); err == nil && len(strings.TrimSpace(string(b))) > 0 {
			childPID = strings.TrimSpace(string(b))
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if childPID == "" {
		t.Fatalf("child pid marker never written")
	}
	if err := p.Kill(); err != nil {
		t.Fatalf("Kill: %v", err)
	}
	waitDone(t, p, 3*time.Second)
	deadline = time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat("/proc/" + childPID); os.IsNotExist(err) || runtime.GOOS != "linux" {
			return
		}
		if isZombieLinux(mustAtoi(t, childPID)) {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("background child %s survived group kill", childPID)
}

func TestOutputCapturedToLogFiles(t *testing.T) {
	requireUnix(t)
	dir := t.TempDir()
	spec := Spec{
		Name:    "cap",
		Command: "sh -c 'echo out; echo err 1>&2'",
		Log:     logger.Config{File: logger.FileConfig{Dir: dir}},
	}
	p, err := Start(spec)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitDone(t, p, 3*time.Second)
	out, _ := os.ReadFile(filepath.Join(dir, "cap.stdout.log"))
	errb, _ := os.ReadFile(filepath.Join(dir, "cap.stderr.log"))
	if !strings.Contains(string(out), "out") || !strings.Contains(string(errb), "err") {
		t.Fatalf("captured output missing: stdout=%q stderr=%q", out, errb)
	}
}

func TestBuildCommandVariants(t *testing.T) {
	requireUnix(t)
	cases := []struct {
		spec Spec
		want []string
	}{
		{Spec{Command: "python3", Args: []string{"system_stt_daemon.py"}}, []string{"python3", "system_stt_daemon.py"}},
		{Spec{Command: "python3 system_stt_daemon.py"}, []string{"python3", "system_stt_daemon.py"}},
		{Spec{Command: "sh -c 'echo hi'"}, []string{"/bin/sh", "-c", "echo hi"}},
		{Spec{Command: "echo $HOME"}, []string{"/bin/sh", "-c", "echo $HOME"}},
	}
	for _, c := range cases {
		cmd := c.spec.BuildCommand()
		if strings.Join(cmd.Args, "|") != strings.Join(c.want, "|") {
			t.Errorf("BuildCommand(%+v) args = %q, want %q", c.spec, cmd.Args, c.want)
		}
		checkSysProcAttrs(t, cmd)
	}
}

func TestBuildCommandEnvAndWorkDir(t *testing.T) {
	dir := t.TempDir()
	s := Spec{Command: "env", WorkDir: dir, Env: []string{"STT_MODEL=base"}}
	cmd := s.BuildCommand()
	if cmd.Dir != dir {
		t.Fatalf("Dir = %q, want %q", cmd.Dir, dir)
	}
	if len(cmd.Env) == 0 || cmd.Env[len(cmd.Env)-1] != "STT_MODEL=base" {
		t.Fatalf("extra env not appended: %v", cmd.Env)
	}
}

func mustAtoi(t *testing.T, s string) int {
	t.Helper()
	n, err := strconv.Atoi(s)
	if err != nil {
		t.Fatalf("atoi %q: %v", s, err)
	}
	return n
}
