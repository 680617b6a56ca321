package transfer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/eugenetaranov/cloudbuilder/internal/runner"
	"github.com/eugenetaranov/cloudbuilder/internal/termtext"
)

// RulesFile is the name of the optional rclone filter file in the local
// project directory.
const RulesFile = ".sync_rules"

// SyncOptions selects what to synchronise. Empty directories fall back to
// the client's configured paths.
type SyncOptions struct {
	LocalDir  string
	RemoteDir string

	// DeleteExcess removes remote files missing locally (rclone sync).
	// When false, rclone copy is used and nothing is deleted.
	DeleteExcess bool
}

// Stats summarises an rclone transfer.
type Stats struct {
	Transferred int
	Errors      int
	Checks      int
	Elapsed     string
}

// SyncResult describes a completed synchronisation.
type SyncResult struct {
	LocalDir  string
	RemoteDir string
	Target    string
	Stats     Stats
	Stdout    string
	Stderr    string
}

// Sync mirrors a local directory to the remote.
func (c *Client) Sync(ctx context.Context, opts SyncOptions) (*SyncResult, error) {
	local := opts.LocalDir
	if local == "" {
		local = c.localPath
	}
	remote := opts.RemoteDir
	if remote == "" {
		remote = c.remotePath
	}
	if local == "" || remote == "" {
		return nil, fmt.Errorf("%w: local and remote paths must be given or configured (LOCAL_PATH, REMOTE_PATH)", ErrConfig)
	}
	if !isDir(local) {
		return nil, fmt.Errorf("%w: local directory does not exist: %s", ErrLocalPath, local)
	}
	local = absPath(local)
	target := c.Target(remote)

	c.log.Info().Str("local", local).Str("target", target).Bool("delete_excess", opts.DeleteExcess).Msg("Syncing directory")

	if err := c.EnsureDir(ctx, remote); err != nil {
		return nil, err
	}

	op := "copy"
	if opts.DeleteExcess {
		op = "sync"
	}

	var args []string
	rules := filepath.Join(local, RulesFile)
	if _, err := os.Stat(rules); err == nil {
		c.log.Debug().Str("rules", rules).Msg("Using filter rules")
		args = append(args, "--filter-from", rules)
	}
	args = append(args, "--verbose", "--stats=1s", local, target)

	res, err := c.rclone(ctx, SyncTimeout, runner.ModeText, op, args...)
	if err != nil {
		c.log.Error().Err(err).Str("target", target).Msg("Sync failed")
		return nil, err
	}

	// rclone reports progress on stderr; stdout is checked first for
	// wrappers that merge the streams.
	stats := ParseStats(append(append([]string{}, res.Lines...), termtext.Lines(res.Stderr)...))

	c.log.Info().
		Int("transferred", stats.Transferred).
		Int("errors", stats.Errors).
		Int("checks", stats.Checks).
		Str("elapsed", stats.Elapsed).
		Msg("Sync completed")

	return &SyncResult{
		LocalDir:  local,
		RemoteDir: remote,
		Target:    target,
		Stats:     stats,
		Stdout:    res.Stdout,
		Stderr:    res.Stderr,
	}, nil
}

// ParseStats extracts transfer statistics from rclone --stats output.
// Later lines override earlier ones, so the final summary wins.
func ParseStats(lines []string) Stats {
	var s Stats
	for _, line := range lines {
		switch {
		case strings.Contains(line, "Transferred:") && strings.Contains(line, "/"):
			head, _, _ := strings.Cut(after(line, "Transferred:"), ",")
			if n, ok := fileCount(head); ok {
				s.Transferred = n
			}
		case strings.Contains(line, "Errors:"):
			if n, ok := firstInt(after(line, "Errors:")); ok {
				s.Errors = n
			}
		case strings.Contains(line, "Checks:"):
			if n, ok := firstInt(after(line, "Checks:")); ok {
				s.Checks = n
			}
		case strings.Contains(line, "Elapsed time:"):
			s.Elapsed = strings.TrimSpace(after(line, "Elapsed time:"))
		}
	}
	return s
}

func after(s, sep string) string {
	_, rest, _ := strings.Cut(s, sep)
	return rest
}

// fileCount parses "5 / 7". Byte totals carry a unit ("512 B / 512 B")
// and are rejected.
func fileCount(s string) (int, bool) {
	fields := strings.Fields(s)
	if len(fields) != 3 || fields[1] != "/" {
		return 0, false
	}
	if _, err := strconv.Atoi(fields[2]); err != nil {
		return 0, false
	}
	return firstInt(fields[0])
}

func firstInt(s string) (int, bool) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, false
	}
	return n, true
}
