package gitsync

import (
	"context"
	"time"
)

//go:generate mockgen -destination=mocks/mock_runner.go -package=mocks github.com/mattjoyce/pullhook/internal/gitsync Runner

// Runner updates the working tree at repoPath from origin/<branch>.
type Runner interface {
	Run(ctx context.Context, repoPath, branch string) Result
}

// Outcome tags how a sync attempt ended.
type Outcome string

const (
	OutcomeOK          Outcome = "ok"
	OutcomeExitError   Outcome = "exit_error"
	OutcomeTimeout     Outcome = "timeout"
	OutcomeLaunchError Outcome = "launch_error"
	OutcomeShutdown    Outcome = "shutdown"
)

// Result is the outcome of one sync attempt. Only OK, Stdout and Stderr
// are part of the HTTP response body.
type Result struct {
	OK     bool   `json:"ok"`
	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`

	Outcome  Outcome       `json:"-"`
	ExitCode int           `json:"-"`
	Duration time.Duration `json:"-"`
}

// TimeoutResult is what a pull killed by the timeout reports.
func TimeoutResult() Result {
	return Result{OK: false, Stdout: "", Stderr: "timeout", Outcome: OutcomeTimeout, ExitCode: -1}
}

// LaunchErrorResult reports a pull that never started.
func LaunchErrorResult(err error) Result {
	return Result{OK: false, Stdout: "", Stderr: err.Error(), Outcome: OutcomeLaunchError, ExitCode: -1}
}

// ShutdownResult reports a pull refused because the process is exiting.
func ShutdownResult() Result {
	return Result{OK: false, Stdout: "", Stderr: "shutting down", Outcome: OutcomeShutdown, ExitCode: -1}
}
