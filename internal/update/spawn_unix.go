//go:build !windows

package update

import (
	"os/exec"
	"syscall"
)

// ProcessSpawner starts the installer in its own session so it outlives us.
type ProcessSpawner struct{}

// Spawn starts c detached from this process's stdio and session.
func (ProcessSpawner) Spawn(c Command) (int, error) {
	//nolint:gosec // G204: command is built from a verified artifact path
	cmd := exec.Command(c.Path, c.Args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		return 0, err
	}
	pid := cmd.Process.Pid
	_ = cmd.Process.Release()
	return pid, nil
}
