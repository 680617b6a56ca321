package transfer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/encoding/htmlindex"

	"github.com/eugenetaranov/cloudbuilder/internal/runner"
)

// ErrDecode is returned when file content does not match the requested encoding.
var ErrDecode = errors.New("cannot decode content")

// Entry is one item of a remote directory listing.
type Entry struct {
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	IsDir   bool      `json:"is_dir"`
	ModTime time.Time `json:"mod_time"`
}

// lsjsonItem mirrors the objects printed by rclone lsjson.
type lsjsonItem struct {
	Path    string    `json:"Path"`
	Name    string    `json:"Name"`
	Size    int64     `json:"Size"`
	IsDir   bool      `json:"IsDir"`
	ModTime time.Time `json:"ModTime"`
}

// Cat returns the raw content of a remote file.
func (c *Client) Cat(ctx context.Context, remoteFile string) ([]byte, error) {
	c.log.Info().Str("target", c.Target(remoteFile)).Msg("Reading remote file")

	res, err := c.rclone(ctx, CatTimeout, runner.ModeBinary, "cat", c.Target(remoteFile))
	if err != nil {
		return nil, notFound(err, remoteFile)
	}

	c.log.Info().Str("target", c.Target(remoteFile)).Int("size", len(res.StdoutBytes)).Msg("Read remote file")
	return res.StdoutBytes, nil
}

// List returns the entries of a remote directory.
func (c *Client) List(ctx context.Context, dir string) ([]Entry, error) {
	c.log.Info().Str("target", c.Target(dir)).Msg("Listing remote directory")

	res, err := c.rclone(ctx, ListTimeout, runner.ModeText, "lsjson", c.Target(dir))
	if err != nil {
		if errors.Is(err, runner.ErrTimeout) {
			return nil, fmt.Errorf("listing %s timed out, it may not exist or be inaccessible: %w", dir, err)
		}
		return nil, notFound(err, dir)
	}

	entries, err := ParseListing(res.Stdout)
	if err != nil {
		return nil, err
	}

	c.log.Info().Str("target", c.Target(dir)).Int("items", len(entries)).Msg("Listed remote directory")
	return entries, nil
}

// ParseListing decodes rclone lsjson output. A JSON array surrounded by
// stray text is still recovered.
func ParseListing(out string) ([]Entry, error) {
	out = strings.TrimSpace(out)
	if out == "" {
		return []Entry{}, nil
	}

	var items []lsjsonItem
	if err := json.Unmarshal([]byte(out), &items); err != nil {
		start, end := strings.IndexByte(out, '['), strings.LastIndexByte(out, ']')
		if start < 0 || end <= start {
			return nil, fmt.Errorf("%w: %v: %s", ErrParse, err, preview(out))
		}
		if err := json.Unmarshal([]byte(out[start:end+1]), &items); err != nil {
			return nil, fmt.Errorf("%w: %v: %s", ErrParse, err, preview(out))
		}
	}

	entries := make([]Entry, 0, len(items))
	for _, it := range items {
		name := it.Path
		if name == "" {
			name = it.Name
		}
		entries = append(entries, Entry{
			Name:    name,
			Size:    it.Size,
			IsDir:   it.IsDir,
			ModTime: it.ModTime,
		})
	}
	return entries, nil
}

// DecodeText converts file content to a string using a WHATWG encoding
// label such as "utf-8", "latin1" or "shift_jis".
func DecodeText(data []byte, label string) (string, error) {
	if label == "" || strings.EqualFold(label, "utf-8") || strings.EqualFold(label, "utf8") {
		if !utf8.Valid(data) {
			return "", fmt.Errorf("%w: invalid utf-8 at byte %d", ErrDecode, invalidAt(data))
		}
		return string(data), nil
	}

	enc, err := htmlindex.Get(label)
	if err != nil {
		return "", fmt.Errorf("%w: unknown encoding %q", ErrDecode, label)
	}
	out, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return string(out), nil
}

func invalidAt(data []byte) int {
	for i := 0; i < len(data); {
		r, size := utf8.DecodeRune(data[i:])
		if r == utf8.RuneError && size == 1 {
			return i
		}
		i += size
	}
	return len(data)
}

func preview(s string) string {
	const limit = 200
	if len(s) <= limit {
		return s
	}
	return string(bytes.ToValidUTF8([]byte(s[:limit]), nil)) + "..."
}
