//go:build windows

package app

func pidAlive(int) bool { return false }
