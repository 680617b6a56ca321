// Package transfer moves files between the workstation and the build host
// through rclone.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/eugenetaranov/cloudbuilder/internal/logger"
	"github.com/eugenetaranov/cloudbuilder/internal/provision"
	"github.com/eugenetaranov/cloudbuilder/internal/runner"
)

var (
	// ErrConfig is returned when a required setting is missing.
	ErrConfig = errors.New("transfer not configured")

	// ErrExecutable is returned when the configured rclone path does not exist.
	ErrExecutable = errors.New("rclone executable does not exist")

	// ErrLocalPath is returned when a local source cannot be used.
	ErrLocalPath = errors.New("invalid local path")

	// ErrRemoteNotFound is returned when the remote file or directory is missing.
	ErrRemoteNotFound = errors.New("not found on remote")

	// ErrParse is returned when rclone output cannot be interpreted.
	ErrParse = errors.New("unexpected rclone output")
)

// Timeouts of the individual operations.
const (
	SyncTimeout = time.Hour
	CatTimeout  = 300 * time.Second
	ListTimeout = 60 * time.Second
)

// missingMarkers identify rclone failures caused by a missing path.
var missingMarkers = []string{
	"file not found",
	"object not found",
	"directory not found",
	"doesn't exist",
	"no such file",
}

// CommandError represents an rclone run that exited unsuccessfully.
type CommandError struct {
	Op       string
	Cmd      string
	ExitCode int
	Stdout   string
	Stderr   string
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("rclone %s failed with exit code %d", e.Op, e.ExitCode)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

// missing reports whether the failure is due to a missing remote path.
func (e *CommandError) missing() bool {
	return containsAny(e.Stderr, missingMarkers)
}

// Options configures a Client.
type Options struct {
	// Executable is the rclone binary; empty means "rclone" from PATH.
	Executable string

	// Remote is the rclone remote name, e.g. "build".
	Remote string

	// LocalPath is the default local project directory.
	LocalPath string

	// RemotePath is the default directory on the remote.
	RemotePath string

	// Config is passed to rclone as --config; empty leaves discovery to
	// rclone.
	Config string

	Logger *logger.Logger
}

// Client runs rclone transfers against a single remote.
type Client struct {
	runner      runner.Runner
	provisioner *provision.Provisioner
	exe         string
	remote      string
	config      string
	localPath   string
	remotePath  string
	log         *logger.Logger
}

// New validates opts and returns a client.
func New(r runner.Runner, opts Options) (*Client, error) {
	if opts.Remote == "" {
		return nil, fmt.Errorf("%w: remote name (REMOTE_HOST_NAME) is not set", ErrConfig)
	}

	exe := opts.Executable
	if exe == "" {
		exe = provision.DefaultExecutable
	} else if strings.ContainsRune(exe, os.PathSeparator) || strings.ContainsRune(exe, '/') {
		// Explicit paths are checked up front; bare names resolve via PATH.
		if _, err := os.Stat(exe); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrExecutable, exe)
		}
	}

	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}

	p := provision.New(r, exe, opts.Remote,
		provision.WithConfig(opts.Config),
		provision.WithLogger(log.With("provision")))

	return &Client{
		runner:      r,
		provisioner: p,
		exe:         exe,
		remote:      opts.Remote,
		config:      opts.Config,
		localPath:   opts.LocalPath,
		remotePath:  opts.RemotePath,
		log:         log,
	}, nil
}

// Target returns the rclone address of path on the client's remote.
func (c *Client) Target(path string) string {
	return c.remote + ":" + path
}

// EnsureDir makes sure dir exists on the remote.
func (c *Client) EnsureDir(ctx context.Context, dir string) error {
	_, err := c.provisioner.EnsureExists(ctx, dir)
	return err
}

// rclone runs one rclone subcommand. A non-zero exit is returned as a
// *CommandError along with the result.
func (c *Client) rclone(ctx context.Context, timeout time.Duration, mode runner.Mode, op string, args ...string) (*runner.Result, error) {
	argv := []string{op}
	if c.config != "" {
		argv = []string{"--config", c.config, op}
	}
	inv := runner.Invocation{
		Name:    c.exe,
		Args:    append(argv, args...),
		Timeout: timeout,
		Mode:    mode,
	}

	res, err := c.runner.Run(ctx, inv)
	if err != nil {
		return res, fmt.Errorf("rclone %s: %w", op, err)
	}
	if !res.Success {
		return res, &CommandError{
			Op:       op,
			Cmd:      inv.String(),
			ExitCode: res.ExitCode,
			Stdout:   res.Stdout,
			Stderr:   res.Stderr,
		}
	}
	return res, nil
}

// notFound converts a missing-path CommandError into ErrRemoteNotFound.
func notFound(err error, path string) error {
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) && cmdErr.missing() {
		return fmt.Errorf("%w: %s", ErrRemoteNotFound, path)
	}
	return err
}

func containsAny(text string, markers []string) bool {
	text = strings.ToLower(text)
	for _, m := range markers {
		if strings.Contains(text, m) {
			return true
		}
	}
	return false
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func absPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}
