package gitsync

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"
)

const (
	// DefaultTimeout bounds a single pull.
	DefaultTimeout = 60 * time.Second

	// terminationGracePeriod is the time we wait after SIGTERM before sending SIGKILL.
	terminationGracePeriod = 5 * time.Second

	// maxOutputBytes caps each captured stream.
	maxOutputBytes = 64 * 1024
)

// GitRunner pulls with the git CLI.
type GitRunner struct {
	binary  string
	timeout time.Duration
	grace   time.Duration
	logger  *slog.Logger
}

// NewGitRunner returns a runner invoking binary (usually "git"). A
// non-positive timeout selects DefaultTimeout.
func NewGitRunner(binary string, timeout time.Duration, logger *slog.Logger) *GitRunner {
	if binary == "" {
		binary = "git"
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &GitRunner{
		binary:  binary,
		timeout: timeout,
		grace:   terminationGracePeriod,
		logger:  logger,
	}
}

// MaxDuration is the longest a single Run can block.
func (g *GitRunner) MaxDuration() time.Duration {
	return g.timeout + g.grace
}

// Run executes `git -C repoPath pull origin branch`. It blocks for at most
// the timeout plus the termination grace period.
func (g *GitRunner) Run(ctx context.Context, repoPath, branch string) Result {
	start := time.Now()
	res := g.run(ctx, repoPath, branch)
	res.Duration = time.Since(start)

	switch res.Outcome {
	case OutcomeOK:
		g.logger.Info("git pull stdout", "stdout", res.Stdout, "duration_ms", res.Duration.Milliseconds())
	case OutcomeExitError:
		g.logger.Info("git pull stdout", "stdout", res.Stdout)
		g.logger.Error("git pull stderr", "stderr", res.Stderr, "exit_code", res.ExitCode)
	case OutcomeTimeout:
		g.logger.Error("git pull timed out", "timeout", g.timeout)
	case OutcomeLaunchError:
		g.logger.Error("git pull failed", "error", res.Stderr)
	}
	return res
}

func (g *GitRunner) run(ctx context.Context, repoPath, branch string) Result {
	// Client disconnects must not abort a pull half way; only our own
	// deadline may.
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, g.binary, "-C", repoPath, "pull", "origin", branch)
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	// Stdin stays nil (/dev/null): nothing may wait on a credential prompt.

	stdout := &cappedBuffer{limit: maxOutputBytes}
	stderr := &cappedBuffer{limit: maxOutputBytes}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	setProcessGroup(cmd, g.grace)
	cmd.WaitDelay = g.grace

	g.logger.Debug("spawning git", "binary", g.binary, "repo", repoPath, "branch", branch, "timeout", g.timeout)

	err := cmd.Run()
	if err != nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return TimeoutResult()
	}

	res := Result{
		Stdout: strings.TrimSpace(stdout.String()),
		Stderr: strings.TrimSpace(stderr.String()),
	}

	if err == nil {
		res.OK = true
		res.Outcome = OutcomeOK
		return res
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.Outcome = OutcomeExitError
		res.ExitCode = exitErr.ExitCode()
		return res
	}

	return LaunchErrorResult(err)
}

// Check reports problems that would make every pull fail: the git binary
// is not resolvable, or repoPath is not a directory.
func (g *GitRunner) Check(repoPath string) error {
	if _, err := exec.LookPath(g.binary); err != nil {
		return fmt.Errorf("git binary %q: %w", g.binary, err)
	}
	info, err := os.Stat(repoPath)
	if err != nil {
		return fmt.Errorf("repo %s: %w", repoPath, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("repo %s: not a directory", repoPath)
	}
	return nil
}

// cappedBuffer keeps the first limit bytes written and silently drops the
// rest, so a chatty command cannot grow memory without bound.
type cappedBuffer struct {
	buf   bytes.Buffer
	limit int
}

func (c *cappedBuffer) Write(p []byte) (int, error) {
	if room := c.limit - c.buf.Len(); room > 0 {
		if len(p) > room {
			c.buf.Write(p[:room])
		} else {
			c.buf.Write(p)
		}
	}
	return len(p), nil
}

func (c *cappedBuffer) String() string { return c.buf.String() }
