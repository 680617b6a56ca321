package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	err := rootCmd.Execute()
	return buf.String(), err
}

func TestRevealCommand(t *testing.T) {
	out, err := execute(t, "reveal", "YWFhYWFhYWFhYWFhYWFhYXMaGgIlEQ")
	require.NoError(t, err)
	assert.Equal(t, "potato\n", out)

	_, err = execute(t, "reveal", "not*base64")
	assert.Error(t, err)
}

func TestObscureCommandRoundTrip(t *testing.T) {
	out, err := execute(t, "obscure", "hunter2")
	require.NoError(t, err)

	revealed, err := execute(t, "reveal", strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "hunter2\n", revealed)
}

func TestProfileCommandRedactsSecret(t *testing.T) {
	out, err := execute(t, "obscure", "s3cret")
	require.NoError(t, err)

	store := filepath.Join(t.TempDir(), "rclone.conf")
	require.NoError(t, os.WriteFile(store, []byte("[build]\ntype = sftp\nhost = h\npass = "+strings.TrimSpace(out)+"\n"), 0o600))
	t.Setenv("PROJECT_PATH", "")

	out, err = execute(t, "profile", "build", "--config", store, "--no-color")
	require.NoError(t, err)
	assert.Contains(t, out, "host: h")
	assert.Contains(t, out, "********")
	assert.NotContains(t, out, "s3cret")

	out, err = execute(t, "profile", "build", "--config", store, "--no-color", "--show-secret")
	require.NoError(t, err)
	assert.Contains(t, out, "s3cret")
	showSecret = false
}

func TestConfigCommand(t *testing.T) {
	t.Setenv("REMOTE_HOST_NAME", "from-env")
	t.Setenv("PROJECT_PATH", "")

	out, err := execute(t, "config", "--no-color", "--remote", "from-flag")
	require.NoError(t, err)
	assert.Contains(t, out, "from-flag")
	assert.NotContains(t, out, "from-env")
	remoteName = ""
}
