package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mattjoyce/pullhook/internal/admin"
	"github.com/mattjoyce/pullhook/internal/config"
	"github.com/mattjoyce/pullhook/internal/gitsync"
	"github.com/mattjoyce/pullhook/internal/history"
	"github.com/mattjoyce/pullhook/internal/lock"
	"github.com/mattjoyce/pullhook/internal/log"
	"github.com/mattjoyce/pullhook/internal/metrics"
	"github.com/mattjoyce/pullhook/internal/webhook"
	"github.com/spf13/pflag"
)

const version = "0.1.0"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr, os.LookupEnv)
	stop()
	os.Exit(code)
}

// options holds the parsed command line. Only flags the user actually set
// override the config file.
type options struct {
	fs *pflag.FlagSet

	configPath  string
	showVersion bool

	host        string
	port        int
	repo        string
	branch      string
	secret      string
	logLevel    string
	logFormat   string
	timeout     time.Duration
	maxBody     string
	adminListen string
	lockFile    string
	git         string
	historySize int
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	o := &options{fs: pflag.NewFlagSet("pullhook", pflag.ContinueOnError)}
	fs := o.fs
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintln(stderr, "Usage: pullhook [flags]")
		fmt.Fprintln(stderr)
		fmt.Fprintln(stderr, "Listens for GitHub push webhooks and runs git pull on the watched branch.")
		fmt.Fprintln(stderr)
		fmt.Fprintln(stderr, "Flags:")
		fs.PrintDefaults()
	}

	d := config.Defaults()
	fs.StringVarP(&o.configPath, "config", "c", "", "YAML config file")
	fs.BoolVar(&o.showVersion, "version", false, "print version and exit")
	fs.StringVar(&o.host, "host", d.Host, "address to bind")
	fs.IntVarP(&o.port, "port", "p", d.Port, "port to listen on")
	fs.StringVarP(&o.repo, "repo", "r", d.RepoPath, "path to the git working tree")
	fs.StringVarP(&o.branch, "branch", "b", d.Branch, "branch to pull")
	fs.StringVar(&o.secret, "secret", "", "webhook secret (or set "+config.SecretEnvVar+")")
	fs.StringVar(&o.logLevel, "log-level", d.LogLevel, "debug, info, warn or error")
	fs.StringVar(&o.logFormat, "log-format", d.LogFormat, "json or text")
	fs.DurationVar(&o.timeout, "timeout", d.SyncTimeout, "git pull timeout")
	fs.StringVar(&o.maxBody, "max-body-size", "1MB", "largest accepted payload")
	fs.StringVar(&o.adminListen, "admin-listen", "", "address for /metrics and /syncs (disabled when empty)")
	fs.StringVar(&o.lockFile, "lock-file", "", "single-instance lock file (derived from --repo when empty)")
	fs.StringVar(&o.git, "git", d.GitBinary, "git executable")
	fs.IntVar(&o.historySize, "history-size", d.HistorySize, "sync attempts kept for /syncs")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	return o, nil
}

// apply overlays explicitly set flags onto cfg.
func (o *options) apply(cfg config.Config) (config.Config, error) {
	set := func(name string) bool { return o.fs.Changed(name) }

	if set("host") {
		cfg.Host = o.host
	}
	if set("port") {
		cfg.Port = o.port
	}
	if set("repo") {
		cfg.RepoPath = o.repo
	}
	if set("branch") {
		cfg.Branch = o.branch
	}
	if set("secret") {
		cfg.Secret = o.secret
	}
	if set("log-level") {
		cfg.LogLevel = o.logLevel
	}
	if set("log-format") {
		cfg.LogFormat = o.logFormat
	}
	if set("timeout") {
		cfg.SyncTimeout = o.timeout
	}
	if set("max-body-size") {
		n, err := config.ParseByteSize(o.maxBody)
		if err != nil {
			return cfg, fmt.Errorf("--max-body-size: %w", err)
		}
		cfg.MaxBodySize = config.ByteSize(n)
	}
	if set("admin-listen") {
		cfg.AdminListen = o.adminListen
	}
	if set("lock-file") {
		cfg.LockFile = o.lockFile
	}
	if set("git") {
		cfg.GitBinary = o.git
	}
	if set("history-size") {
		cfg.HistorySize = o.historySize
	}
	return cfg, nil
}

// loadConfig resolves defaults, the config file, the environment and the
// flags, in increasing order of precedence.
func loadConfig(o *options, lookupEnv func(string) (string, bool)) (config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return config.Config{}, err
	}
	cfg = config.ApplyEnv(cfg, lookupEnv)
	cfg, err = o.apply(cfg)
	if err != nil {
		return config.Config{}, err
	}
	if err := config.Validate(cfg); err != nil {
		return config.Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer, lookupEnv func(string) (string, bool)) int {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if opts.showVersion {
		fmt.Fprintf(stdout, "pullhook version %s\n", version)
		return 0
	}

	cfg, err := loadConfig(opts, lookupEnv)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load config: %v\n", err)
		return 1
	}

	root := log.New(stdout, cfg.LogLevel, cfg.LogFormat)
	logger := log.WithComponent(root, "main")

	secretState := "yes"
	if !cfg.Signed() {
		secretState = "NO (unsigned)"
	}
	logger.Info("pullhook starting",
		"version", version,
		"listen", cfg.Listen(),
		"repo", cfg.RepoPath,
		"branch", cfg.Branch,
		"secret", secretState,
		"config", opts.configPath,
	)

	lockPath := cfg.LockPath()
	pidLock, err := lock.AcquirePIDLock(lockPath)
	if err != nil {
		logger.Error("failed to acquire PID lock (another instance may be running)", "path", lockPath, "error", err)
		return 1
	}
	defer pidLock.Release()
	logger.Debug("acquired PID lock", "path", lockPath)

	git := gitsync.NewGitRunner(cfg.GitBinary, cfg.SyncTimeout, log.WithComponent(root, "gitsync"))
	if err := git.Check(cfg.RepoPath); err != nil {
		logger.Warn("preflight check failed; pulls will fail until this is fixed", "error", err)
	}

	serial := gitsync.NewSerial(git)
	m := metrics.New()
	ring := history.NewRing(cfg.HistorySize)

	router := webhook.NewRouter(cfg, serial, m, ring, log.WithComponent(root, "router"))
	hook := webhook.New(cfg, router, m, log.WithComponent(root, "webhook"))

	// Once shutdown starts, queued pushes are refused and the running pull
	// gets its full budget.
	hook.WithShutdownTimeout(git.MaxDuration() + webhook.DefaultShutdownTimeout)
	hook.OnShutdown(func() { serial.Drain() })

	servers := []func(context.Context) error{hook.Start}
	if cfg.AdminListen != "" {
		adm := admin.New(cfg.AdminListen, m, ring, serial, log.WithComponent(root, "admin"))
		servers = append(servers, adm.Start)
	}

	err = serve(ctx, servers)

	// The PID lock is released by the deferred call, so no git process may
	// outlive this point.
	if serial.Drain() {
		logger.Info("waited for running sync to finish")
	}

	if err != nil {
		logger.Error("server failed", "error", err)
		return 1
	}
	logger.Info("shutdown complete")
	return 0
}

// serve runs every server until ctx is cancelled or one of them fails,
// in which case the rest are stopped too. It returns the first failure.
func serve(ctx context.Context, servers []func(context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, len(servers))
	for _, start := range servers {
		go func() {
			err := start(ctx)
			if errors.Is(err, context.Canceled) {
				err = nil
			}
			errCh <- err
		}()
	}

	var first error
	for range servers {
		if err := <-errCh; err != nil && first == nil {
			first = err
		}
		cancel()
	}
	return first
}
