// Package ssh provides a connector for executing commands on the build host over SSH.
package ssh

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	gossh "golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/eugenetaranov/cloudbuilder/internal/connector"
	"github.com/eugenetaranov/cloudbuilder/internal/logger"
	"github.com/eugenetaranov/cloudbuilder/internal/termtext"
)

var (
	// ErrConfig is returned when host, user or password is missing.
	ErrConfig = errors.New("incomplete ssh configuration")

	// ErrNotConnected is returned by Execute before Connect succeeded.
	ErrNotConnected = errors.New("ssh connector is not connected")
)

// DefaultTimeout bounds dialling and the SSH handshake.
const DefaultTimeout = 15 * time.Second

// DefaultPort is used when the configuration carries no port.
const DefaultPort = 22

// Connector executes commands on a remote host over SSH with password
// authentication.
type Connector struct {
	cfg     connector.Config
	workdir string
	log     *logger.Logger

	mu     sync.Mutex
	client *gossh.Client
}

// Option configures the SSH connector.
type Option func(*Connector)

// WithWorkdir sets the directory commands are run in.
func WithWorkdir(dir string) Option {
	return func(c *Connector) {
		c.workdir = dir
	}
}

// WithLogger sets the connector's logger.
func WithLogger(l *logger.Logger) Option {
	return func(c *Connector) {
		c.log = l
	}
}

// New creates a new SSH connector. It does not dial until Connect.
func New(cfg connector.Config, opts ...Option) *Connector {
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	c := &Connector{
		cfg: cfg,
		log: logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect dials the host and authenticates.
func (c *Connector) Connect(ctx context.Context) error {
	if c.cfg.Host == "" || c.cfg.User == "" || c.cfg.Password == "" {
		return fmt.Errorf("%w: host, user and password are required", ErrConfig)
	}

	hostKeys, err := c.hostKeyCallback()
	if err != nil {
		return err
	}

	config := &gossh.ClientConfig{
		User:            c.cfg.User,
		Auth:            []gossh.AuthMethod{gossh.Password(c.cfg.Password)},
		HostKeyCallback: hostKeys,
		Timeout:         c.cfg.Timeout,
	}

	addr := c.address()
	c.log.Info().Str("target", c.String()).Msg("Connecting to SSH server")

	dialer := net.Dialer{Timeout: c.cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	// The handshake does not take a context; bound it with a deadline.
	_ = conn.SetDeadline(time.Now().Add(c.cfg.Timeout))
	sshConn, chans, reqs, err := gossh.NewClientConn(conn, addr, config)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("ssh handshake with %s failed: %w", addr, err)
	}
	_ = conn.SetDeadline(time.Time{})

	c.mu.Lock()
	if c.client != nil {
		_ = c.client.Close()
	}
	c.client = gossh.NewClient(sshConn, chans, reqs)
	c.mu.Unlock()

	c.log.Info().Str("target", c.String()).Msg("Connected to SSH server")
	return nil
}

// Execute runs cmd in a new session. Output is decoded and free of
// terminal escape sequences. Cancelling ctx closes the session.
func (c *Connector) Execute(ctx context.Context, cmd string) (*connector.Result, error) {
	c.mu.Lock()
	client := c.client
	c.mu.Unlock()
	if client == nil {
		return nil, ErrNotConnected
	}

	session, err := client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("failed to open ssh session: %w", err)
	}
	defer session.Close()

	full := WrapWorkdir(c.workdir, cmd)
	c.log.Info().Str("cmd", full).Msg("Executing remote command")

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	if err := session.Start(full); err != nil {
		return nil, fmt.Errorf("failed to start remote command: %w", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- session.Wait()
	}()

	var waitErr error
	select {
	case waitErr = <-done:
	case <-ctx.Done():
		_ = session.Signal(gossh.SIGKILL)
		_ = session.Close()
		<-done
		return nil, fmt.Errorf("remote command interrupted: %w", ctx.Err())
	}

	result := &connector.Result{
		Stdout: termtext.Clean(stdout.Bytes()),
		Stderr: termtext.Clean(stderr.Bytes()),
	}

	if waitErr != nil {
		var exitErr *gossh.ExitError
		if !errors.As(waitErr, &exitErr) {
			return nil, fmt.Errorf("remote command failed: %w", waitErr)
		}
		result.ExitCode = exitErr.ExitStatus()
	}

	ev := c.log.Info()
	if result.ExitCode != 0 {
		ev = c.log.Warn().Str("stderr", strings.TrimSpace(result.Stderr))
	}
	ev.Int("exit_code", result.ExitCode).
		Int("stdout_length", len(result.Stdout)).
		Int("stderr_length", len(result.Stderr)).
		Msg("Remote command finished")

	return result, nil
}

// Close terminates the connection.
func (c *Connector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client == nil {
		return nil
	}
	err := c.client.Close()
	c.client = nil
	c.log.Debug().Str("target", c.String()).Msg("SSH connection closed")
	return err
}

// String returns a human-readable description of the connection.
func (c *Connector) String() string {
	return fmt.Sprintf("ssh://%s@%s", c.cfg.User, c.address())
}

func (c *Connector) address() string {
	return net.JoinHostPort(c.cfg.Host, strconv.Itoa(c.cfg.Port))
}

func (c *Connector) hostKeyCallback() (gossh.HostKeyCallback, error) {
	if c.cfg.KnownHostsFile == "" {
		c.log.Warn().Str("target", c.String()).Msg("Host key verification disabled, set KNOWN_HOSTS_FILE to enable it")
		return gossh.InsecureIgnoreHostKey(), nil
	}

	cb, err := knownhosts.New(c.cfg.KnownHostsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load known hosts %s: %w", c.cfg.KnownHostsFile, err)
	}
	return cb, nil
}

// WrapWorkdir prefixes cmd with a change of directory when dir is set.
func WrapWorkdir(dir, cmd string) string {
	if dir == "" {
		return cmd
	}
	return "cd " + shellQuote(dir) + " && " + cmd
}

// shellQuote quotes a string for safe use in shell commands.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

// Ensure Connector implements the connector.Connector interface.
var _ connector.Connector = (*Connector)(nil)
