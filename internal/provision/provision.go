// Package provision makes sure a directory exists on an rclone remote.
package provision

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/eugenetaranov/cloudbuilder/internal/logger"
	"github.com/eugenetaranov/cloudbuilder/internal/runner"
)

// ErrProvision is returned when the directory could not be verified or created.
var ErrProvision = errors.New("remote directory provisioning failed")

// DefaultTimeout bounds each rclone call made by the provisioner.
const DefaultTimeout = 60 * time.Second

// DefaultExecutable is used when no rclone path is configured.
const DefaultExecutable = "rclone"

var (
	// notFoundMarkers identify a probe that failed only because the
	// directory is missing.
	notFoundMarkers = []string{
		"directory not found",
		"doesn't exist",
		"no such file",
		"not found",
	}

	// existsMarkers identify a mkdir that lost a race with another creator.
	existsMarkers = []string{
		"already exists",
		"file exists",
		"directory exists",
	}
)

// Provisioner ensures remote directories exist using rclone lsd and mkdir.
type Provisioner struct {
	runner  runner.Runner
	exe     string
	remote  string
	config  string
	timeout time.Duration
	log     *logger.Logger
}

// Option configures a Provisioner.
type Option func(*Provisioner)

// WithLogger sets the provisioner's logger.
func WithLogger(l *logger.Logger) Option {
	return func(p *Provisioner) {
		p.log = l
	}
}

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(p *Provisioner) {
		p.timeout = d
	}
}

// WithConfig makes rclone read the given config file instead of its own
// default.
func WithConfig(path string) Option {
	return func(p *Provisioner) {
		p.config = path
	}
}

// New creates a provisioner for the named rclone remote. An empty exe
// means DefaultExecutable.
func New(r runner.Runner, exe, remote string, opts ...Option) *Provisioner {
	if exe == "" {
		exe = DefaultExecutable
	}
	p := &Provisioner{
		runner:  r,
		exe:     exe,
		remote:  remote,
		timeout: DefaultTimeout,
		log:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Target returns the rclone address of path on the provisioner's remote.
func (p *Provisioner) Target(path string) string {
	return p.remote + ":" + path
}

// EnsureExists returns true once path exists on the remote, creating it
// if the probe reports it missing. Any other probe failure is returned
// without attempting creation.
func (p *Provisioner) EnsureExists(ctx context.Context, path string) (bool, error) {
	if p.remote == "" {
		return false, fmt.Errorf("%w: remote name is not set", ErrProvision)
	}
	target := p.Target(path)

	p.log.Info().Str("target", target).Msg("Checking if remote directory exists")
	probe, err := p.rclone(ctx, "lsd", target)
	if err != nil {
		return false, fmt.Errorf("%w: check %s: %w", ErrProvision, target, err)
	}
	if probe.Success {
		p.log.Info().Str("target", target).Msg("Remote directory already exists")
		return true, nil
	}

	if !containsAny(probe.Stderr, notFoundMarkers) {
		p.log.Error().Str("target", target).Int("exit_code", probe.ExitCode).Str("stderr", summary(probe.Stderr)).
			Msg("Failed to check remote directory")
		return false, fmt.Errorf("%w: check %s (exit code %d): %s", ErrProvision, target, probe.ExitCode, summary(probe.Stderr))
	}

	p.log.Info().Str("target", target).Msg("Remote directory does not exist, creating")
	mkdir, err := p.rclone(ctx, "mkdir", target)
	if err != nil {
		return false, fmt.Errorf("%w: create %s: %w", ErrProvision, target, err)
	}
	if mkdir.Success {
		p.log.Info().Str("target", target).Msg("Created remote directory")
		return true, nil
	}
	if containsAny(mkdir.Stderr, existsMarkers) {
		p.log.Info().Str("target", target).Msg("Remote directory created concurrently")
		return true, nil
	}

	p.log.Error().Str("target", target).Int("exit_code", mkdir.ExitCode).Str("stderr", summary(mkdir.Stderr)).
		Msg("Failed to create remote directory")
	return false, fmt.Errorf("%w: create %s (exit code %d): %s", ErrProvision, target, mkdir.ExitCode, summary(mkdir.Stderr))
}

func (p *Provisioner) rclone(ctx context.Context, args ...string) (*runner.Result, error) {
	if p.config != "" {
		args = append([]string{"--config", p.config}, args...)
	}
	return p.runner.Run(ctx, runner.Invocation{
		Name:    p.exe,
		Args:    args,
		Timeout: p.timeout,
	})
}

// containsAny reports whether the lower-cased text contains one of markers.
func containsAny(text string, markers []string) bool {
	text = strings.ToLower(text)
	for _, m := range markers {
		if strings.Contains(text, m) {
			return true
		}
	}
	return false
}

func summary(stderr string) string {
	if s := strings.TrimSpace(stderr); s != "" {
		return s
	}
	return "unknown error"
}
