//go:build !windows

package app

import "golang.org/x/sys/unix"

func pidAlive(pid int) bool { return unix.Kill(pid, 0) == nil }
