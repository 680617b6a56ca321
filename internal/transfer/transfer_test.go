package transfer

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/eugenetaranov/cloudbuilder/internal/mock"
	"github.com/eugenetaranov/cloudbuilder/internal/provision"
	"github.com/eugenetaranov/cloudbuilder/internal/runner"
)

func newClient(t *testing.T, opts Options) (*Client, *mock.MockRunner) {
	t.Helper()
	ctrl := gomock.NewController(t)
	r := mock.NewMockRunner(ctrl)
	if opts.Remote == "" {
		opts.Remote = "build"
	}
	c, err := New(r, opts)
	require.NoError(t, err)
	return c, r
}

func rcloneCall(timeout time.Duration, mode runner.Mode, args ...string) runner.Invocation {
	return runner.Invocation{Name: "rclone", Args: args, Timeout: timeout, Mode: mode}
}

func expectDir(r *mock.MockRunner, dir string) *gomock.Call {
	return r.EXPECT().
		Run(gomock.Any(), rcloneCall(provision.DefaultTimeout, runner.ModeText, "lsd", "build:"+dir)).
		Return(&runner.Result{Success: true}, nil)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantErr error
	}{
		{"missing remote", Options{}, ErrConfig},
		{"missing executable path", Options{Remote: "build", Executable: "/nonexistent/rclone"}, ErrExecutable},
		{"bare executable name", Options{Remote: "build", Executable: "rclone-custom"}, nil},
		{"defaults", Options{Remote: "build"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(mock.NewMockRunner(gomock.NewController(t)), tt.opts)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, c)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "build:/x", c.Target("/x"))
		})
	}
}

func TestConfigIsPassedToRclone(t *testing.T) {
	const conf = "/x/rclone.conf"
	c, r := newClient(t, Options{Config: conf})

	gomock.InOrder(
		r.EXPECT().
			Run(gomock.Any(), rcloneCall(provision.DefaultTimeout, runner.ModeText, "--config", conf, "lsd", "build:/srv/app")).
			Return(&runner.Result{Success: true}, nil),
		r.EXPECT().
			Run(gomock.Any(), rcloneCall(CatTimeout, runner.ModeBinary, "--config", conf, "cat", "build:/srv/app/go.mod")).
			Return(&runner.Result{Success: true, StdoutBytes: []byte("module x\n")}, nil),
	)

	require.NoError(t, c.EnsureDir(context.Background(), "/srv/app"))
	data, err := c.Cat(context.Background(), "/srv/app/go.mod")
	require.NoError(t, err)
	assert.Equal(t, "module x\n", string(data))
}

func TestCommandError(t *testing.T) {
	err := &CommandError{Op: "sync", ExitCode: 3, Stderr: "  directory not found\n"}
	assert.Equal(t, "rclone sync failed with exit code 3: directory not found", err.Error())
	assert.True(t, err.missing())

	err = &CommandError{Op: "cat", ExitCode: 1}
	assert.Equal(t, "rclone cat failed with exit code 1", err.Error())
	assert.False(t, err.missing())
}

func TestSync(t *testing.T) {
	local := t.TempDir()

	tests := []struct {
		name         string
		deleteExcess bool
		rules        bool
		wantArgs     []string
	}{
		{
			name:     "copy without rules",
			wantArgs: []string{"copy", "--verbose", "--stats=1s", local, "build:/srv/app"},
		},
		{
			name:         "sync with rules",
			deleteExcess: true,
			rules:        true,
			wantArgs: []string{"sync", "--filter-from", filepath.Join(local, RulesFile),
				"--verbose", "--stats=1s", local, "build:/srv/app"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rules := filepath.Join(local, RulesFile)
			if tt.rules {
				writeFile(t, rules, "- .git/**\n")
				t.Cleanup(func() { _ = os.Remove(rules) })
			}

			c, r := newClient(t, Options{LocalPath: local, RemotePath: "/srv/app"})
			gomock.InOrder(
				expectDir(r, "/srv/app"),
				r.EXPECT().
					Run(gomock.Any(), rcloneCall(SyncTimeout, runner.ModeText, tt.wantArgs...)).
					Return(&runner.Result{
						Success: true,
						Stderr:  "Transferred:   \t    1.2 KiB / 1.2 KiB, 100%\nChecks:                 4 / 4, 100%\nTransferred:            2 / 2, 100%\nElapsed time:         1.5s\n",
						Lines:   []string{},
					}, nil),
			)

			res, err := c.Sync(context.Background(), SyncOptions{DeleteExcess: tt.deleteExcess})
			require.NoError(t, err)
			assert.Equal(t, local, res.LocalDir)
			assert.Equal(t, "/srv/app", res.RemoteDir)
			assert.Equal(t, "build:/srv/app", res.Target)
			assert.Equal(t, Stats{Transferred: 2, Checks: 4, Elapsed: "1.5s"}, res.Stats)
		})
	}
}

func TestSyncValidation(t *testing.T) {
	c, _ := newClient(t, Options{})

	_, err := c.Sync(context.Background(), SyncOptions{LocalDir: t.TempDir()})
	assert.ErrorIs(t, err, ErrConfig)

	_, err = c.Sync(context.Background(), SyncOptions{LocalDir: filepath.Join(t.TempDir(), "missing"), RemoteDir: "/srv"})
	assert.ErrorIs(t, err, ErrLocalPath)
}

func TestSyncFailures(t *testing.T) {
	local := t.TempDir()

	t.Run("provisioning fails", func(t *testing.T) {
		c, r := newClient(t, Options{})
		r.EXPECT().
			Run(gomock.Any(), rcloneCall(provision.DefaultTimeout, runner.ModeText, "lsd", "build:/srv")).
			Return(&runner.Result{ExitCode: 1, Stderr: "couldn't connect SSH"}, nil)

		_, err := c.Sync(context.Background(), SyncOptions{LocalDir: local, RemoteDir: "/srv"})
		assert.ErrorIs(t, err, provision.ErrProvision)
	})

	t.Run("rclone exits non-zero", func(t *testing.T) {
		c, r := newClient(t, Options{})
		expectDir(r, "/srv")
		r.EXPECT().
			Run(gomock.Any(), gomock.Any()).
			Return(&runner.Result{ExitCode: 5, Stderr: "Failed to sync: quota exceeded"}, nil)

		_, err := c.Sync(context.Background(), SyncOptions{LocalDir: local, RemoteDir: "/srv"})
		var cmdErr *CommandError
		require.ErrorAs(t, err, &cmdErr)
		assert.Equal(t, 5, cmdErr.ExitCode)
		assert.Equal(t, "copy", cmdErr.Op)
		assert.Contains(t, err.Error(), "quota exceeded")
	})

	t.Run("timeout", func(t *testing.T) {
		c, r := newClient(t, Options{})
		expectDir(r, "/srv")
		r.EXPECT().
			Run(gomock.Any(), gomock.Any()).
			Return(&runner.Result{TimedOut: true, ExitCode: runner.ExitCodeKilled}, runner.ErrTimeout)

		_, err := c.Sync(context.Background(), SyncOptions{LocalDir: local, RemoteDir: "/srv"})
		assert.ErrorIs(t, err, runner.ErrTimeout)
	})
}

func TestParseStats(t *testing.T) {
	tests := []struct {
		name  string
		lines []string
		want  Stats
	}{
		{
			name: "empty",
			want: Stats{},
		},
		{
			name: "full summary",
			lines: []string{
				"Transferred:   \t  10.500 MiB / 10.500 MiB, 100%, 2.1 MiB/s, ETA 0s",
				"Errors:                 1 (retrying may help)",
				"Checks:                12 / 12, 100%",
				"Transferred:            7 / 7, 100%",
				"Elapsed time:         5.2s",
			},
			want: Stats{Transferred: 7, Errors: 1, Checks: 12, Elapsed: "5.2s"},
		},
		{
			name: "last block wins",
			lines: []string{
				"Transferred:            1 / 7, 14%",
				"Elapsed time:         1.0s",
				"Transferred:            7 / 7, 100%",
				"Elapsed time:         2.0s",
			},
			want: Stats{Transferred: 7, Elapsed: "2.0s"},
		},
		{
			name: "byte totals in plain units are not file counts",
			lines: []string{
				"Transferred:              512 B / 512 B, 100%, 0 B/s, ETA -",
				"Elapsed time:         0.3s",
			},
			want: Stats{Elapsed: "0.3s"},
		},
		{
			name: "byte line after file count keeps the count",
			lines: []string{
				"Transferred:            2 / 2, 100%",
				"Transferred:             10 B / 10 B, 100%, 10 B/s, ETA 0s",
			},
			want: Stats{Transferred: 2},
		},
		{
			name: "noise ignored",
			lines: []string{
				"2024/01/02 10:00:00 INFO  : main.go: Copied (new)",
				"Errors: many",
				"Checks:",
			},
			want: Stats{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseStats(tt.lines))
		})
	}
}

func TestUploadTimeout(t *testing.T) {
	tests := []struct {
		size int64
		want time.Duration
	}{
		{0, 60 * time.Second},
		{100 * 1024 * 10, 60 * time.Second},
		{100 * 1024 * 100, 130 * time.Second},
		{1 << 40, time.Hour},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, UploadTimeout(tt.size), "size %d", tt.size)
	}
}

func TestUpload(t *testing.T) {
	local := t.TempDir()
	file := filepath.Join(local, "src", "main.go")
	writeFile(t, file, "package main\n")

	outside := filepath.Join(t.TempDir(), "notes.txt")
	writeFile(t, outside, "notes")

	tests := []struct {
		name       string
		localFile  string
		remoteFile string
		wantLocal  string
		wantRemote string
		wantDir    string
	}{
		{
			name:       "mapped under remote path",
			localFile:  file,
			wantLocal:  file,
			wantRemote: "/srv/app/src/main.go",
			wantDir:    "/srv/app/src",
		},
		{
			name:       "relative to local path",
			localFile:  filepath.Join("src", "main.go"),
			wantLocal:  file,
			wantRemote: "/srv/app/src/main.go",
			wantDir:    "/srv/app/src",
		},
		{
			name:       "outside local path uses base name",
			localFile:  outside,
			wantLocal:  outside,
			wantRemote: "/srv/app/notes.txt",
			wantDir:    "/srv/app",
		},
		{
			name:       "explicit remote",
			localFile:  file,
			remoteFile: "/tmp/x/main.go",
			wantLocal:  file,
			wantRemote: "/tmp/x/main.go",
			wantDir:    "/tmp/x",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, r := newClient(t, Options{LocalPath: local, RemotePath: "/srv/app"})
			gomock.InOrder(
				expectDir(r, tt.wantDir),
				r.EXPECT().
					Run(gomock.Any(), rcloneCall(UploadTimeout(0), runner.ModeText,
						"copyto", "--verbose", tt.wantLocal, "build:"+tt.wantRemote)).
					Return(&runner.Result{Success: true}, nil),
			)

			res, err := c.Upload(context.Background(), tt.localFile, tt.remoteFile)
			require.NoError(t, err)
			assert.Equal(t, tt.wantLocal, res.LocalFile)
			assert.Equal(t, tt.wantRemote, res.RemoteFile)
			assert.Equal(t, "build:"+tt.wantRemote, res.Target)
			assert.Equal(t, int64(len(mustRead(t, tt.wantLocal))), res.Size)
		})
	}
}

func TestUploadRelativeToWorkingDirectory(t *testing.T) {
	wd := t.TempDir()
	writeFile(t, filepath.Join(wd, "build.sh"), "#!/bin/sh\n")
	t.Chdir(wd)

	c, r := newClient(t, Options{LocalPath: t.TempDir(), RemotePath: "/srv"})
	want, err := filepath.Abs("build.sh")
	require.NoError(t, err)

	gomock.InOrder(
		r.EXPECT().Run(gomock.Any(), rcloneCall(provision.DefaultTimeout, runner.ModeText, "lsd", "build:/opt")).
			Return(&runner.Result{Success: true}, nil),
		r.EXPECT().Run(gomock.Any(), rcloneCall(UploadTimeout(0), runner.ModeText, "copyto", "--verbose", want, "build:/opt/build.sh")).
			Return(&runner.Result{Success: true}, nil),
	)

	res, err := c.Upload(context.Background(), "build.sh", "/opt/build.sh")
	require.NoError(t, err)
	assert.Equal(t, want, res.LocalFile)
}

func TestUploadErrors(t *testing.T) {
	local := t.TempDir()
	writeFile(t, filepath.Join(local, "a.txt"), "a")

	t.Run("missing file lists tried paths", func(t *testing.T) {
		c, _ := newClient(t, Options{LocalPath: local, RemotePath: "/srv"})
		_, err := c.Upload(context.Background(), "missing.txt", "")
		require.ErrorIs(t, err, ErrLocalPath)
		assert.Contains(t, err.Error(), filepath.Join(local, "missing.txt"))
	})

	t.Run("directory is rejected", func(t *testing.T) {
		c, _ := newClient(t, Options{LocalPath: local, RemotePath: "/srv"})
		_, err := c.Upload(context.Background(), local, "/srv/x")
		assert.ErrorIs(t, err, ErrLocalPath)
	})

	t.Run("no remote mapping", func(t *testing.T) {
		c, _ := newClient(t, Options{LocalPath: local})
		_, err := c.Upload(context.Background(), filepath.Join(local, "a.txt"), "")
		assert.ErrorIs(t, err, ErrConfig)
	})

	t.Run("copyto fails", func(t *testing.T) {
		c, r := newClient(t, Options{LocalPath: local, RemotePath: "/srv"})
		expectDir(r, "/srv")
		r.EXPECT().Run(gomock.Any(), gomock.Any()).
			Return(&runner.Result{ExitCode: 1, Stderr: "Failed to copy: permission denied"}, nil)

		_, err := c.Upload(context.Background(), filepath.Join(local, "a.txt"), "")
		var cmdErr *CommandError
		require.ErrorAs(t, err, &cmdErr)
		assert.Equal(t, "copyto", cmdErr.Op)
	})

	t.Run("file at remote root skips provisioning", func(t *testing.T) {
		c, r := newClient(t, Options{LocalPath: local, RemotePath: "/srv"})
		r.EXPECT().Run(gomock.Any(), rcloneCall(UploadTimeout(1), runner.ModeText,
			"copyto", "--verbose", filepath.Join(local, "a.txt"), "build:a.txt")).
			Return(&runner.Result{Success: true}, nil)

		_, err := c.Upload(context.Background(), filepath.Join(local, "a.txt"), "a.txt")
		assert.NoError(t, err)
	})
}

func mustRead(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}

func TestNotFoundMapping(t *testing.T) {
	err := notFound(&CommandError{Op: "cat", ExitCode: 3, Stderr: "ERROR : x: Object Not Found"}, "x")
	assert.ErrorIs(t, err, ErrRemoteNotFound)

	other := &CommandError{Op: "cat", ExitCode: 1, Stderr: "permission denied"}
	assert.Same(t, other, notFound(other, "x"))

	assert.True(t, strings.HasPrefix(ErrRemoteNotFound.Error(), "not found"))
}
