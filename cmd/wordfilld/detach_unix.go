//go:build !windows

package main

import "syscall"

// daemonSysProcAttr starts the child in a new session so it outlives the
// terminal.
func daemonSysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		Setsid: true,
	}
}
