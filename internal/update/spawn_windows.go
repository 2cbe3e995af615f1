//go:build windows

package update

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/windows"
)

// ProcessSpawner starts the installer in a detached process group.
type ProcessSpawner struct{}

// Spawn starts c with its raw command line so cmd.exe sees the quoting as
// written.
func (ProcessSpawner) Spawn(c Command) (int, error) {
	//nolint:gosec // G204: command is built from a verified artifact path
	cmd := exec.Command(c.Path, c.Args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CmdLine:       c.CmdLine,
		HideWindow:    true,
		CreationFlags: windows.DETACHED_PROCESS | windows.CREATE_NEW_PROCESS_GROUP,
	}
	if err := cmd.Start(); err != nil {
		return 0, err
	}
	pid := cmd.Process.Pid
	_ = cmd.Process.Release()
	return pid, nil
}
