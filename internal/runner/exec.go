package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/eugenetaranov/cloudbuilder/internal/logger"
	"github.com/eugenetaranov/cloudbuilder/internal/termtext"
)

// DefaultDrainDelay bounds how long output is still collected after a
// timed-out process has been killed.
const DefaultDrainDelay = 2 * time.Second

// Exec runs programs on the local machine with os/exec.
// It is safe for concurrent use; runs share no state.
type Exec struct {
	log        *logger.Logger
	drainDelay time.Duration

	// diagnosed is set once the environment diagnostic has been logged.
	diagnosed atomic.Bool
}

// Option configures an Exec runner.
type Option func(*Exec)

// WithLogger sets the logger used for command tracing.
func WithLogger(l *logger.Logger) Option {
	return func(r *Exec) {
		r.log = l
	}
}

// WithDrainDelay overrides DefaultDrainDelay.
func WithDrainDelay(d time.Duration) Option {
	return func(r *Exec) {
		r.drainDelay = d
	}
}

// New creates a local runner.
func New(opts ...Option) *Exec {
	r := &Exec{
		log:        logger.Nop(),
		drainDelay: DefaultDrainDelay,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run starts inv.Name with inv.Args and waits for it to exit or time out.
//
// A non-zero exit status is not an error: the result reports it with
// Success set to false. On timeout the partial result is returned along
// with an error wrapping ErrTimeout.
func (r *Exec) Run(ctx context.Context, inv Invocation) (*Result, error) {
	if inv.Name == "" {
		return nil, fmt.Errorf("%w: empty command", ErrExecution)
	}
	r.diagnose()

	path, err := exec.LookPath(inv.Name)
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, inv.Name)
		}
		return nil, fmt.Errorf("%w: %s: %s", ErrExecution, inv.Name, termtext.StripANSI(err.Error()))
	}

	timeout := inv.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, path, inv.Args...)
	cmd.Dir = inv.Dir
	cmd.Env = childEnv(os.Environ())
	cmd.Stdin = nil
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = r.drainDelay
	setProcessGroup(cmd)

	r.log.Info().Str("cmd", inv.String()).Str("mode", inv.Mode.String()).Dur("timeout", timeout).Msg("Executing command")

	start := time.Now()
	if err := cmd.Start(); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, inv.Name)
		}
		return nil, fmt.Errorf("%w: %s: %s", ErrExecution, inv.Name, termtext.StripANSI(err.Error()))
	}
	waitErr := cmd.Wait()
	elapsed := time.Since(start)

	// Wait has returned, so both copy goroutines are finished and the
	// buffers are complete.
	res := newResult(inv.Mode, stdout.Bytes(), stderr.Bytes())
	r.trace(res)

	var exitErr *exec.ExitError
	switch {
	case waitErr == nil:
		res.Success = true
		res.ExitCode = 0

	case ctx.Err() != nil:
		res.ExitCode = ExitCodeKilled
		r.log.Warn().Str("cmd", inv.String()).Err(ctx.Err()).Msg("Command cancelled")
		return res, fmt.Errorf("%w: %s: %w", ErrExecution, inv.String(), ctx.Err())

	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		res.ExitCode = ExitCodeKilled
		res.TimedOut = true
		r.log.Warn().Str("cmd", inv.String()).Dur("timeout", timeout).Msg("Command timed out, process killed")
		return res, fmt.Errorf("%w: %s after %s", ErrTimeout, inv.String(), timeout)

	case errors.As(waitErr, &exitErr):
		res.ExitCode = exitErr.ExitCode()

	case errors.Is(waitErr, exec.ErrWaitDelay):
		// The process exited but a descendant kept the pipes open.
		res.ExitCode = cmd.ProcessState.ExitCode()
		res.Success = res.ExitCode == 0
		r.log.Warn().Str("cmd", inv.String()).Msg("Output pipes held open after exit, closed forcibly")

	default:
		return res, fmt.Errorf("%w: %s: %s", ErrExecution, inv.String(), termtext.StripANSI(waitErr.Error()))
	}

	r.log.Info().
		Str("cmd", inv.String()).
		Int("exit_code", res.ExitCode).
		Bool("success", res.Success).
		Dur("elapsed", elapsed).
		Msg("Command completed")

	return res, nil
}

func newResult(mode Mode, stdout, stderr []byte) *Result {
	res := &Result{Stderr: termtext.Clean(stderr)}

	if mode == ModeBinary {
		res.StdoutBytes = bytes.Clone(stdout)
		if res.StdoutBytes == nil {
			res.StdoutBytes = []byte{}
		}
		return res
	}

	res.Stdout = termtext.Clean(stdout)
	res.Lines = termtext.Lines(res.Stdout)
	return res
}

func (r *Exec) trace(res *Result) {
	if r.log.GetLevel() > zerolog.DebugLevel {
		return
	}
	for _, line := range res.Lines {
		if line != "" {
			r.log.Debug().Str("stream", "stdout").Msg(line)
		}
	}
	for _, line := range termtext.Lines(res.Stderr) {
		if line != "" {
			r.log.Debug().Str("stream", "stderr").Msg(line)
		}
	}
}

// Ensure Exec implements the Runner interface.
var _ Runner = (*Exec)(nil)
