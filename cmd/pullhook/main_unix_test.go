//go:build unix

package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/mattjoyce/pullhook/internal/webhook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pushReply struct {
	status int
	body   string
	err    error
}

// startWithFakeGit runs the daemon against a shell script standing in for
// git and returns once the webhook port answers.
func startWithFakeGit(t *testing.T, ctx context.Context, script string, extra ...string) (string, string, <-chan int, *syncBuffer) {
	t.Helper()
	dir := t.TempDir()
	repo := filepath.Join(dir, "repo")
	require.NoError(t, os.Mkdir(repo, 0o755))
	fakeGit := filepath.Join(dir, "git")
	writeFile(t, fakeGit, script, 0o755)

	port := freePort(t)
	args := append([]string{
		"--host", "127.0.0.1",
		"--port", strconv.Itoa(port),
		"--repo", repo,
		"--git", fakeGit,
		"--lock-file", filepath.Join(dir, "pullhook.pid"),
	}, extra...)

	stdout := &syncBuffer{}
	done := make(chan int, 1)
	go func() { done <- run(ctx, args, stdout, io.Discard, noEnv) }()

	base := fmt.Sprintf("http://127.0.0.1:%d", port)
	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)
	return base, dir, done, stdout
}

func pushAsync(base string) <-chan pushReply {
	out := make(chan pushReply, 1)
	go func() {
		body := []byte(`{"ref":"refs/heads/main","pusher":{"name":"octocat"},"commits":[{}]}`)
		req, err := http.NewRequest(http.MethodPost, base+"/hook", bytes.NewReader(body))
		if err != nil {
			out <- pushReply{err: err}
			return
		}
		req.Header.Set(webhook.EventHeader, "push")
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			out <- pushReply{err: err}
			return
		}
		defer resp.Body.Close()
		b, _ := io.ReadAll(resp.Body)
		out <- pushReply{status: resp.StatusCode, body: string(b)}
	}()
	return out
}

func waitForPID(t *testing.T, path string) int {
	t.Helper()
	var pid int
	require.Eventually(t, func() bool {
		b, err := os.ReadFile(path)
		if err != nil || !bytes.HasSuffix(b, []byte("\n")) {
			return false
		}
		pid, err = strconv.Atoi(strings.TrimSpace(string(b)))
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)
	return pid
}

func assertProcessGone(t *testing.T, pid int) {
	t.Helper()
	err := syscall.Kill(pid, 0)
	assert.ErrorIs(t, err, syscall.ESRCH, "git process %d still running", pid)
}

func TestRun_ShutdownWaitsForRunningPull(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	script := "#!/bin/sh\necho $$ > \"$(dirname \"$0\")/git.pid\"\nsleep 1\necho finished > \"$(dirname \"$0\")/git.done\"\necho \"pulled $5\"\n"
	base, dir, done, stdout := startWithFakeGit(t, ctx, script)

	reply := pushAsync(base)
	pid := waitForPID(t, filepath.Join(dir, "git.pid"))

	cancel()
	select {
	case code := <-done:
		assert.Equal(t, 0, code, "logs: %s", stdout.String())
	case <-time.After(15 * time.Second):
		t.Fatal("run did not return after cancel")
	}

	assert.FileExists(t, filepath.Join(dir, "git.done"), "pull was cut short by shutdown")
	assertProcessGone(t, pid)

	r := <-reply
	require.NoError(t, r.err)
	assert.Equal(t, http.StatusOK, r.status)
	assert.Equal(t, `{"ok":true,"stdout":"pulled main","stderr":""}`, r.body)

	logs := stdout.String()
	assert.NotContains(t, logs, `"msg":"server failed"`)
	assert.Contains(t, logs, `"msg":"shutdown complete"`)
}

func TestRun_ShutdownWithHungPullKillsGit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	script := "#!/bin/sh\necho $$ > \"$(dirname \"$0\")/git.pid\"\nexec sleep 20\n"
	base, dir, done, stdout := startWithFakeGit(t, ctx, script, "--timeout", "300ms")

	reply := pushAsync(base)
	pid := waitForPID(t, filepath.Join(dir, "git.pid"))

	cancel()
	select {
	case code := <-done:
		assert.Equal(t, 0, code, "logs: %s", stdout.String())
	case <-time.After(15 * time.Second):
		t.Fatal("run did not return after cancel")
	}
	assertProcessGone(t, pid)

	r := <-reply
	require.NoError(t, r.err)
	assert.Equal(t, http.StatusInternalServerError, r.status)
	assert.Equal(t, `{"ok":false,"stdout":"","stderr":"timeout"}`, r.body)
}
