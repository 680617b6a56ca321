package transfer

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/eugenetaranov/cloudbuilder/internal/runner"
)

// Upload timeout bounds, assuming at least uploadMinRate bytes per second.
const (
	uploadMinRate    = 100 * 1024
	uploadSlack      = 30 * time.Second
	uploadMinTimeout = 60 * time.Second
	uploadMaxTimeout = time.Hour
)

// UploadResult describes a completed upload.
type UploadResult struct {
	LocalFile  string
	RemoteFile string
	Target     string
	Size       int64
}

// UploadTimeout returns the time allowed for uploading size bytes.
func UploadTimeout(size int64) time.Duration {
	d := time.Duration(float64(size)/uploadMinRate*float64(time.Second)) + uploadSlack
	return min(max(d, uploadMinTimeout), uploadMaxTimeout)
}

// Upload copies one local file to the remote. When remoteFile is empty the
// destination mirrors the file's position under the configured local path,
// or uses its base name when it lies elsewhere.
func (c *Client) Upload(ctx context.Context, localFile, remoteFile string) (*UploadResult, error) {
	local, err := c.resolveLocal(localFile)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(local)
	if err != nil {
		return nil, fmt.Errorf("%w: local file does not exist: %s", ErrLocalPath, local)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: not a file: %s", ErrLocalPath, local)
	}

	if remoteFile == "" {
		remoteFile, err = c.remoteFor(local)
		if err != nil {
			return nil, err
		}
	}
	target := c.Target(remoteFile)
	size := info.Size()

	c.log.Info().Str("local", local).Str("target", target).Int64("size", size).Msg("Uploading file")

	if dir := path.Dir(remoteFile); dir != "." && dir != "" {
		if err := c.EnsureDir(ctx, dir); err != nil {
			return nil, err
		}
	}

	timeout := UploadTimeout(size)
	c.log.Debug().Dur("timeout", timeout).Int64("size", size).Msg("Calculated upload timeout")

	if _, err := c.rclone(ctx, timeout, runner.ModeText, "copyto", "--verbose", local, target); err != nil {
		c.log.Error().Err(err).Str("target", target).Msg("Upload failed")
		return nil, err
	}

	c.log.Info().Str("target", target).Int64("size", size).Msg("File uploaded")
	return &UploadResult{
		LocalFile:  local,
		RemoteFile: remoteFile,
		Target:     target,
		Size:       size,
	}, nil
}

// resolveLocal makes file absolute, trying the configured local path
// before the working directory for relative names.
func (c *Client) resolveLocal(file string) (string, error) {
	if filepath.IsAbs(file) {
		return filepath.Clean(file), nil
	}

	var tried []string
	if c.localPath != "" && isDir(c.localPath) {
		candidate := absPath(filepath.Join(c.localPath, file))
		if _, err := os.Stat(candidate); err == nil {
			c.log.Debug().Str("path", candidate).Msg("Resolved relative path against local path")
			return candidate, nil
		}
		tried = append(tried, candidate)
	}

	candidate := absPath(file)
	if _, err := os.Stat(candidate); err == nil {
		c.log.Debug().Str("path", candidate).Msg("Resolved relative path against working directory")
		return candidate, nil
	}
	tried = append(tried, candidate)

	return "", fmt.Errorf("%w: local file does not exist: %s (tried %s)", ErrLocalPath, file, strings.Join(tried, ", "))
}

// remoteFor maps an absolute local file to its remote location.
func (c *Client) remoteFor(local string) (string, error) {
	if c.localPath == "" || c.remotePath == "" {
		return "", fmt.Errorf("%w: remote path not given and LOCAL_PATH/REMOTE_PATH not configured", ErrConfig)
	}

	rel, err := filepath.Rel(absPath(c.localPath), local)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return path.Join(c.remotePath, filepath.Base(local)), nil
	}
	return path.Join(c.remotePath, filepath.ToSlash(rel)), nil
}
