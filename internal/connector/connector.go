// Package connector defines the interface for executing commands on the build host.
package connector

//go:generate mockgen -source=connector.go -destination=../mock/connector_mock.go -package=mock

import (
	"context"
	"time"
)

// Result holds the output from command execution.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Connector is the interface for connecting to and executing commands on targets.
type Connector interface {
	// Connect establishes a connection to the target.
	Connect(ctx context.Context) error

	// Execute runs a command on the target and returns the result.
	// A non-zero exit status is reported in the result, not as an error.
	Execute(ctx context.Context, cmd string) (*Result, error)

	// Close terminates the connection.
	Close() error

	// String returns a human-readable description of the connection.
	String() string
}

// Config holds common configuration for connectors.
type Config struct {
	// Host is the target hostname or IP address.
	Host string

	// Port is the SSH port.
	Port int

	// User is the username for authentication.
	User string

	// Password authenticates User.
	Password string

	// KnownHostsFile enables host key verification when set.
	KnownHostsFile string

	// Timeout bounds connection setup.
	Timeout time.Duration
}
