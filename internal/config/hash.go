package config

import (
	"encoding/hex"
	"os"
	"path/filepath"

	"github.com/zeebo/blake3"
)

// LockPath returns the PID lock file guarding RepoPath. An explicit
// LockFile wins; otherwise the name is derived from a BLAKE3 hash of the
// cleaned absolute repo path, so every listener pointed at the same
// working tree contends for the same file.
func (c Config) LockPath() string {
	if c.LockFile != "" {
		return c.LockFile
	}

	repo := c.RepoPath
	if abs, err := filepath.Abs(repo); err == nil {
		repo = abs
	}
	sum := blake3.Sum256([]byte(filepath.Clean(repo)))
	return filepath.Join(os.TempDir(), "pullhook-"+hex.EncodeToString(sum[:6])+".pid")
}
