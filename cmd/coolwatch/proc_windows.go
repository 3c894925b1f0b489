//go:build windows

package main

import (
	"os/exec"
)

func configureDaemonProc(cmd *exec.Cmd) {
	// Windows has no Setsid; the default detachment is enough here.
	_ = cmd
}
