// Package termtext turns raw terminal output into clean text.
package termtext

import (
	"regexp"
	"strings"

	"golang.org/x/text/encoding/unicode"
)

var (
	// escapeSeq covers ESC followed by a single Fe byte, and CSI sequences
	// (parameter bytes, intermediate bytes, one final byte).
	escapeSeq = regexp.MustCompile(`\x1b(?:[@-Z\\-_]|\[[0-?]*[ -/]*[@-~])`)

	colorSeq  = regexp.MustCompile(`\x1b\[[0-9;]*m`)
	eraseSeq  = regexp.MustCompile(`\x1b\[[0-9;]*K`)
	cursorSeq = regexp.MustCompile(`\x1b\[[0-9;]*[HJ]`)
)

// StripANSI removes terminal escape sequences from s.
func StripANSI(s string) string {
	if !strings.Contains(s, "\x1b") {
		return s
	}
	s = escapeSeq.ReplaceAllString(s, "")
	s = colorSeq.ReplaceAllString(s, "")
	s = eraseSeq.ReplaceAllString(s, "")
	return cursorSeq.ReplaceAllString(s, "")
}

// Decode interprets b as UTF-8, replacing invalid sequences with U+FFFD.
func Decode(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	out, err := unicode.UTF8.NewDecoder().Bytes(b)
	if err != nil {
		// The UTF-8 decoder substitutes instead of failing; keep a
		// fallback so a transformer error never loses output.
		return strings.ToValidUTF8(string(b), "�")
	}
	return string(out)
}

// Clean decodes b and strips escape sequences.
func Clean(b []byte) string {
	return StripANSI(Decode(b))
}

// Lines splits s into lines after trimming surrounding whitespace.
// Carriage returns at line ends are dropped. Empty input yields no lines.
func Lines(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return []string{}
	}
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}
	return lines
}
