// Package output provides formatted terminal output for command results.
package output

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"

	"github.com/eugenetaranov/cloudbuilder/internal/transfer"
)

// Output handles formatted output.
type Output struct {
	w     io.Writer
	debug bool

	bold, red, green, yellow, blue, cyan, gray *color.Color
}

// New creates a new output handler with colour enabled.
func New(w io.Writer) *Output {
	o := &Output{
		w:      w,
		bold:   color.New(color.Bold),
		red:    color.New(color.FgRed),
		green:  color.New(color.FgGreen),
		yellow: color.New(color.FgYellow),
		blue:   color.New(color.FgBlue),
		cyan:   color.New(color.FgCyan),
		gray:   color.New(color.FgHiBlack),
	}
	o.SetColor(true)
	return o
}

// SetColor enables or disables color output.
func (o *Output) SetColor(enabled bool) {
	for _, c := range o.palette() {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
}

// SetDebug enables or disables debug output.
func (o *Output) SetDebug(enabled bool) {
	o.debug = enabled
}

func (o *Output) palette() []*color.Color {
	return []*color.Color{o.bold, o.red, o.green, o.yellow, o.blue, o.cyan, o.gray}
}

// Section prints a section header.
func (o *Output) Section(name string) {
	o.printf("\n%s\n", o.bold.Sprint(name))
}

// KeyValues prints pairs sorted by key with aligned values.
func (o *Output) KeyValues(pairs map[string]string) {
	keys := make([]string, 0, len(pairs))
	width := 0
	for k := range pairs {
		keys = append(keys, k)
		width = max(width, len(k))
	}
	sort.Strings(keys)

	for _, k := range keys {
		o.printf("  %s %s\n", o.gray.Sprintf("%-*s", width+1, k+":"), pairs[k])
	}
}

// Result prints a single success or failure line.
func (o *Output) Result(ok bool, format string, args ...any) {
	if ok {
		o.printf("  %s %s\n", o.green.Sprint("✓"), fmt.Sprintf(format, args...))
		return
	}
	o.printf("  %s %s\n", o.red.Sprint("✗"), fmt.Sprintf(format, args...))
}

// SyncRecap prints the statistics of a synchronisation.
func (o *Output) SyncRecap(target string, s transfer.Stats) {
	o.printf("\n%s %s ", o.bold.Sprint("SYNC"), target)

	transferred := o.green.Sprintf("transferred=%d", s.Transferred)
	checks := o.cyan.Sprintf("checks=%d", s.Checks)
	errs := fmt.Sprintf("errors=%d", s.Errors)
	if s.Errors > 0 {
		errs = o.red.Sprint(errs)
	}

	o.printf("%s %s %s", transferred, checks, errs)
	if s.Elapsed != "" {
		o.printf(" %s", o.gray.Sprintf("(%s)", s.Elapsed))
	}
	o.printf("\n")
}

// Listing prints directory entries, directories first.
func (o *Output) Listing(dir string, entries []transfer.Entry) {
	o.Section(dir)
	if len(entries) == 0 {
		o.printf("  %s\n", o.gray.Sprint("(empty)"))
		return
	}

	sorted := append([]transfer.Entry(nil), entries...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].IsDir != sorted[j].IsDir {
			return sorted[i].IsDir
		}
		return sorted[i].Name < sorted[j].Name
	})

	for _, e := range sorted {
		modified := "-"
		if !e.ModTime.IsZero() {
			modified = e.ModTime.Local().Format("2006-01-02 15:04")
		}
		if e.IsDir {
			o.printf("  %s %12s %s %s\n", o.blue.Sprint("d"), "-", o.gray.Sprint(modified), o.blue.Sprint(e.Name+"/"))
			continue
		}
		o.printf("  %s %12d %s %s\n", "-", e.Size, o.gray.Sprint(modified), e.Name)
	}
	o.printf("  %s\n", o.gray.Sprintf("%d items", len(entries)))
}

// CommandOutput prints the captured streams of a remote command.
func (o *Output) CommandOutput(stdout, stderr string, exitCode int) {
	if s := strings.TrimRight(stdout, "\n"); s != "" {
		o.printf("%s\n", s)
	}
	if s := strings.TrimSpace(stderr); s != "" {
		o.printf("%s\n", o.gray.Sprint("stderr:"))
		for _, line := range strings.Split(s, "\n") {
			o.printf("  %s\n", line)
		}
	}
	if exitCode != 0 {
		o.printf("%s\n", o.red.Sprintf("exit code %d", exitCode))
	}
}

// Info prints an informational message.
func (o *Output) Info(format string, args ...any) {
	o.printf("%s %s\n", o.blue.Sprint("INFO"), fmt.Sprintf(format, args...))
}

// Warn prints a warning message.
func (o *Output) Warn(format string, args ...any) {
	o.printf("%s %s\n", o.yellow.Sprint("WARN"), fmt.Sprintf(format, args...))
}

// Error prints an error message.
func (o *Output) Error(format string, args ...any) {
	o.printf("%s %s\n", o.red.Sprint("ERROR"), fmt.Sprintf(format, args...))
}

// Debug prints a debug message (only in debug mode).
func (o *Output) Debug(format string, args ...any) {
	if o.debug {
		o.printf("%s %s\n", o.gray.Sprint("DEBUG"), fmt.Sprintf(format, args...))
	}
}

func (o *Output) printf(format string, args ...any) {
	fmt.Fprintf(o.w, format, args...)
}
