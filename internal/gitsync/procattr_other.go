//go:build !unix

package gitsync

import (
	"os/exec"
	"time"
)

// setProcessGroup falls back to killing only the direct child.
func setProcessGroup(cmd *exec.Cmd, _ time.Duration) {
	cmd.Cancel = func() error {
		return cmd.Process.Kill()
	}
}
