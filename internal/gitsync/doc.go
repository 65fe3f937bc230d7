// Package gitsync runs the repository sync action: `git pull origin <branch>`
// inside a working tree, bounded by a timeout.
//
// The package exposes a narrow Runner interface so the webhook layer can be
// tested without a git binary. Two implementations live here:
//
//   - GitRunner shells out to git.
//   - Serial wraps any Runner behind a mutex so at most one pull touches the
//     working tree at a time.
//
// Timeout handling:
//   - The pull runs in its own process group.
//   - When the timeout expires the whole group receives SIGTERM; after a
//     5 second grace period it receives SIGKILL. Hooks or credential helpers
//     spawned by git die with it.
//   - A cancelled request context does not stop a pull. Only the timeout does.
//
// Outcomes never surface as Go errors. Every attempt yields a Result whose
// Outcome tag says what happened:
//   - OutcomeOK: exit status 0
//   - OutcomeExitError: git ran and failed
//   - OutcomeTimeout: killed after the timeout, stderr is "timeout"
//   - OutcomeLaunchError: git could not be started, stderr carries the reason
package gitsync
