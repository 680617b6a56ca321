package runner

import (
	"os"
	"runtime"
	"strings"

	"golang.org/x/term"
)

// colorOverrides ask the child for plain output. Output is scrubbed
// regardless, since not every program honours these.
var colorOverrides = [][2]string{
	{"NO_COLOR", "1"},
	{"RCLONE_COLOR", "never"},
	{"TERM", "dumb"},
}

// childEnv returns base with the colour overrides applied and COLORTERM
// removed.
func childEnv(base []string) []string {
	drop := map[string]bool{"COLORTERM": true}
	for _, kv := range colorOverrides {
		drop[kv[0]] = true
	}

	env := make([]string, 0, len(base)+len(colorOverrides))
	for _, entry := range base {
		name, _, _ := strings.Cut(entry, "=")
		if runtime.GOOS == "windows" {
			name = strings.ToUpper(name)
		}
		if drop[name] {
			continue
		}
		env = append(env, entry)
	}
	for _, kv := range colorOverrides {
		env = append(env, kv[0]+"="+kv[1])
	}
	return env
}

// diagnose logs, once per runner, the properties of the parent process
// that most often make a child behave differently than in a shell.
func (r *Exec) diagnose() {
	if !r.diagnosed.CompareAndSwap(false, true) {
		return
	}

	wd, _ := os.Getwd()
	exe, _ := os.Executable()
	termName, hasTerm := os.LookupEnv("TERM")
	colorTerm, hasColorTerm := os.LookupEnv("COLORTERM")

	r.log.Debug().
		Bool("stdin_tty", isTerminal(os.Stdin)).
		Bool("stdout_tty", isTerminal(os.Stdout)).
		Bool("stderr_tty", isTerminal(os.Stderr)).
		Str("working_directory", wd).
		Str("executable", exe).
		Str("platform", runtime.GOOS+"/"+runtime.GOARCH).
		Bool("has_term", hasTerm).
		Str("term", termName).
		Bool("has_colorterm", hasColorTerm).
		Str("colorterm", colorTerm).
		Msg("Process environment diagnostics")
}

func isTerminal(f *os.File) bool {
	return f != nil && term.IsTerminal(int(f.Fd()))
}
