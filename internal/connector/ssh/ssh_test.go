package ssh

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gossh "golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/eugenetaranov/cloudbuilder/internal/connector"
)

func connectTo(t *testing.T, s *testServer, opts ...Option) *Connector {
	t.Helper()
	host, port := s.host()
	c := New(connector.Config{Host: host, Port: port, User: testUser, Password: testPassword}, opts...)
	require.NoError(t, c.Connect(context.Background()))
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestNewDefaults(t *testing.T) {
	c := New(connector.Config{Host: "build.example.com", User: "ci"})
	assert.Equal(t, DefaultPort, c.cfg.Port)
	assert.Equal(t, DefaultTimeout, c.cfg.Timeout)
	assert.Equal(t, "ssh://ci@build.example.com:22", c.String())

	c = New(connector.Config{Host: "::1", User: "ci", Port: 2222})
	assert.Equal(t, "ssh://ci@[::1]:2222", c.String())
}

func TestWrapWorkdir(t *testing.T) {
	tests := []struct {
		dir  string
		cmd  string
		want string
	}{
		{"", "make", "make"},
		{"/srv/app", "make", "cd '/srv/app' && make"},
		{"/srv/it's", "ls", `cd '/srv/it'"'"'s' && ls`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, WrapWorkdir(tt.dir, tt.cmd))
	}
}

func TestConnectRequiresCredentials(t *testing.T) {
	tests := []connector.Config{
		{User: "ci", Password: "x"},
		{Host: "h", Password: "x"},
		{Host: "h", User: "ci"},
	}
	for _, cfg := range tests {
		err := New(cfg).Connect(context.Background())
		assert.ErrorIs(t, err, ErrConfig)
	}
}

func TestExecuteBeforeConnect(t *testing.T) {
	_, err := New(connector.Config{Host: "h", User: "u", Password: "p"}).Execute(context.Background(), "true")
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestExecute(t *testing.T) {
	s := newTestServer(t)
	c := connectTo(t, s)

	res, err := c.Execute(context.Background(), "make build")
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "ran make build\n", res.Stdout)
	assert.Empty(t, res.Stderr)

	res, err = c.Execute(context.Background(), "make fail")
	require.NoError(t, err, "a non-zero exit is a result")
	assert.Equal(t, 2, res.ExitCode)
	assert.Equal(t, "boom\n", res.Stderr)

	assert.Equal(t, []string{"make build", "make fail"}, s.received())
}

func TestExecuteWithWorkdir(t *testing.T) {
	s := newTestServer(t)
	c := connectTo(t, s, WithWorkdir("/srv/app"))

	_, err := c.Execute(context.Background(), "ls")
	require.NoError(t, err)
	assert.Equal(t, []string{"cd '/srv/app' && ls"}, s.received())
}

func TestExecuteCancelled(t *testing.T) {
	s := newTestServer(t)
	c := connectTo(t, s)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := c.Execute(ctx, "hang")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestConnectWrongPassword(t *testing.T) {
	s := newTestServer(t)
	host, port := s.host()

	c := New(connector.Config{Host: host, Port: port, User: testUser, Password: "wrong"})
	err := c.Connect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "handshake")
}

func TestConnectUnreachable(t *testing.T) {
	c := New(connector.Config{Host: "127.0.0.1", Port: 1, User: "u", Password: "p", Timeout: time.Second})
	assert.Error(t, c.Connect(context.Background()))
}

func TestKnownHosts(t *testing.T) {
	s := newTestServer(t)
	host, port := s.host()

	write := func(t *testing.T, key gossh.PublicKey) string {
		t.Helper()
		path := filepath.Join(t.TempDir(), "known_hosts")
		line := knownhosts.Line([]string{knownhosts.Normalize(s.addr)}, key)
		require.NoError(t, os.WriteFile(path, []byte(line+"\n"), 0o600))
		return path
	}

	t.Run("matching key", func(t *testing.T) {
		c := New(connector.Config{Host: host, Port: port, User: testUser, Password: testPassword,
			KnownHostsFile: write(t, s.hostKey.PublicKey())})
		require.NoError(t, c.Connect(context.Background()))
		assert.NoError(t, c.Close())
	})

	t.Run("mismatched key", func(t *testing.T) {
		other := newTestServer(t)
		c := New(connector.Config{Host: host, Port: port, User: testUser, Password: testPassword,
			KnownHostsFile: write(t, other.hostKey.PublicKey())})
		assert.Error(t, c.Connect(context.Background()))
	})

	t.Run("missing file", func(t *testing.T) {
		c := New(connector.Config{Host: host, Port: port, User: testUser, Password: testPassword,
			KnownHostsFile: filepath.Join(t.TempDir(), "absent")})
		err := c.Connect(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "known hosts")
	})
}

func TestCloseIsIdempotent(t *testing.T) {
	s := newTestServer(t)
	c := connectTo(t, s)

	require.NoError(t, c.Close())
	assert.NoError(t, c.Close())

	_, err := c.Execute(context.Background(), "true")
	assert.ErrorIs(t, err, ErrNotConnected)
}
