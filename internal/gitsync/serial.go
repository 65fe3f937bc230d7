package gitsync

import (
	"context"
	"sync"
	"sync/atomic"
)

// Serial runs at most one sync at a time through the wrapped Runner.
// Concurrent callers wait on the mutex; nobody is dropped or coalesced
// until Drain is called.
type Serial struct {
	mu      sync.Mutex
	inner   Runner
	waiting atomic.Int64
	closed  atomic.Bool
}

// NewSerial wraps inner.
func NewSerial(inner Runner) *Serial {
	return &Serial{inner: inner}
}

// Run implements Runner. After Drain it returns ShutdownResult without
// touching the repository, including for callers that were already queued.
func (s *Serial) Run(ctx context.Context, repoPath, branch string) Result {
	if s.closed.Load() {
		return ShutdownResult()
	}

	s.waiting.Add(1)
	s.mu.Lock()
	s.waiting.Add(-1)
	defer s.mu.Unlock()

	if s.closed.Load() {
		return ShutdownResult()
	}
	return s.inner.Run(ctx, repoPath, branch)
}

// Drain stops new syncs from starting and blocks until the running one, if
// any, has finished. It reports whether it had to wait. Safe to call more
// than once.
func (s *Serial) Drain() bool {
	s.closed.Store(true)
	waited := !s.mu.TryLock()
	if waited {
		s.mu.Lock()
	}
	s.mu.Unlock()
	return waited
}

// Waiting returns how many callers are queued behind the running sync.
func (s *Serial) Waiting() int {
	return int(s.waiting.Load())
}
