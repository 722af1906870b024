//go:build windows

package main

import "syscall"

const createNewProcessGroup = 0x00000200

func daemonSysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		CreationFlags: createNewProcessGroup,
	}
}
