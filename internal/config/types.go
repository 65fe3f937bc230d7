package config

import (
	"net"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the process-wide listener configuration. It is built once at
// startup and passed by value afterwards; nothing mutates it while
// requests are being served.
type Config struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	RepoPath string `yaml:"repo"`
	Branch   string `yaml:"branch"`

	// Secret is the shared webhook secret. Empty disables signature checks.
	Secret string `yaml:"secret,omitempty"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// SyncTimeout bounds a single git pull.
	SyncTimeout time.Duration `yaml:"sync_timeout"`

	// MaxBodySize caps the webhook payload (e.g. "1MB", "262144").
	MaxBodySize ByteSize `yaml:"max_body_size"`

	// GitBinary is the git executable, looked up on PATH when not absolute.
	GitBinary string `yaml:"git"`

	// AdminListen enables the /metrics and /syncs listener when set.
	AdminListen string `yaml:"admin_listen,omitempty"`

	// LockFile is the single-instance PID lock. Empty derives one from RepoPath.
	LockFile string `yaml:"lock_file,omitempty"`

	// HistorySize is how many sync attempts /syncs remembers.
	HistorySize int `yaml:"history_size"`
}

// Default values
const (
	DefaultHost        = "127.0.0.1"
	DefaultPort        = 9000
	DefaultRepoPath    = "/var/www/repo"
	DefaultBranch      = "main"
	DefaultSyncTimeout = 60 * time.Second
	DefaultMaxBodySize = 1048576 // 1 MB
	DefaultGitBinary   = "git"
	DefaultHistorySize = 50
)

// Defaults returns a Config matching the listener's documented defaults.
func Defaults() Config {
	return Config{
		Host:        DefaultHost,
		Port:        DefaultPort,
		RepoPath:    DefaultRepoPath,
		Branch:      DefaultBranch,
		LogLevel:    "info",
		LogFormat:   "json",
		SyncTimeout: DefaultSyncTimeout,
		MaxBodySize: DefaultMaxBodySize,
		GitBinary:   DefaultGitBinary,
		HistorySize: DefaultHistorySize,
	}
}

// Listen returns the host:port the webhook listener binds to.
func (c Config) Listen() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// WatchedRef is the only ref a push may carry to trigger a pull.
func (c Config) WatchedRef() string {
	return "refs/heads/" + c.Branch
}

// Signed reports whether incoming requests must carry a valid signature.
func (c Config) Signed() bool {
	return c.Secret != ""
}

// ByteSize is a byte count that also accepts KB/MB/GB suffixes in YAML.
type ByteSize int64

// UnmarshalYAML implements yaml.Unmarshaler.
func (b *ByteSize) UnmarshalYAML(node *yaml.Node) error {
	n, err := ParseByteSize(node.Value)
	if err != nil {
		return err
	}
	*b = ByteSize(n)
	return nil
}
