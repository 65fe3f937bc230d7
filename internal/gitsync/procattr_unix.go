//go:build unix

package gitsync

import (
	"os/exec"
	"syscall"
	"time"
)

// setProcessGroup starts the command in its own process group and makes
// cancellation signal the whole group: SIGTERM first, SIGKILL after grace.
// Children git spawns (hooks, credential helpers, ssh) go down with it.
func setProcessGroup(cmd *exec.Cmd, grace time.Duration) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		pgid := -cmd.Process.Pid
		if err := syscall.Kill(pgid, syscall.SIGTERM); err != nil {
			return syscall.Kill(pgid, syscall.SIGKILL)
		}
		go func() {
			time.Sleep(grace)
			// ESRCH once the group is gone is expected.
			_ = syscall.Kill(pgid, syscall.SIGKILL)
		}()
		return nil
	}
}
