// Package runner executes an external program with a wall-clock timeout and
// returns its captured output in a normalised form.
package runner

//go:generate mockgen -source=runner.go -destination=../mock/runner_mock.go -package=mock

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when the executable cannot be located.
	ErrNotFound = errors.New("executable not found")

	// ErrTimeout is returned together with the partial result when the
	// process outlived its timeout and was killed.
	ErrTimeout = errors.New("timed out")

	// ErrExecution covers every other failure to start or wait for the
	// process.
	ErrExecution = errors.New("execution failed")
)

// ExitCodeKilled is reported when the process was terminated by the runner
// and has no exit status of its own.
const ExitCodeKilled = -1

// DefaultTimeout applies when an Invocation carries no timeout.
const DefaultTimeout = 30 * time.Second

// Mode selects how stdout is captured.
type Mode int

const (
	// ModeText decodes stdout as UTF-8, strips escape sequences and splits
	// it into lines.
	ModeText Mode = iota

	// ModeBinary returns stdout byte for byte.
	ModeBinary
)

func (m Mode) String() string {
	if m == ModeBinary {
		return "binary"
	}
	return "text"
}

// Invocation describes one program run.
type Invocation struct {
	// Name is the executable name or path.
	Name string

	// Args are passed to the program as-is, without a shell.
	Args []string

	// Dir is the working directory; empty inherits the caller's.
	Dir string

	// Timeout bounds the run; zero means DefaultTimeout.
	Timeout time.Duration

	Mode Mode
}

// String renders the command line for logs.
func (inv Invocation) String() string {
	return strings.Join(append([]string{inv.Name}, inv.Args...), " ")
}

// Result holds the outcome of a run.
type Result struct {
	// Success is true only for a zero exit status.
	Success bool

	// ExitCode is the process exit status, or ExitCodeKilled.
	ExitCode int

	// TimedOut is set when the runner killed the process.
	TimedOut bool

	// Stdout is the cleaned text output (ModeText only).
	Stdout string

	// StdoutBytes is the raw output (ModeBinary only).
	StdoutBytes []byte

	// Stderr is always decoded and free of escape sequences.
	Stderr string

	// Lines is Stdout split into lines (ModeText only).
	Lines []string
}

// Runner runs external programs.
type Runner interface {
	Run(ctx context.Context, inv Invocation) (*Result, error)
}
