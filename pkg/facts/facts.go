// Package facts gathers system information from the build host.
package facts

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/eugenetaranov/cloudbuilder/internal/connector"
)

// ErrProbe is returned when the fact-gathering script fails on the target.
var ErrProbe = errors.New("failed to gather facts")

// probeScript prints key=value pairs in a single round trip.
const probeScript = `echo "os=$(uname -s)"
echo "kernel=$(uname -r)"
echo "machine=$(uname -m)"
echo "hostname=$(hostname 2>/dev/null || uname -n)"
echo "user=$(id -un)"
echo "home=$HOME"
echo "shell=$SHELL"
if command -v sw_vers >/dev/null 2>&1; then echo "macos_version=$(sw_vers -productVersion)"; fi
if [ -r /etc/os-release ]; then sed 's/^/os_release./' /etc/os-release; fi`

// Facts describes the build host.
type Facts struct {
	OS                  string
	Family              string
	Distribution        string
	DistributionVersion string
	Name                string
	Kernel              string
	Architecture        string
	Arch                string
	PkgManager          string
	Hostname            string
	User                string
	Home                string
	Shell               string
}

// distros maps an os-release ID to its family and package manager.
var distros = map[string][2]string{
	"ubuntu":    {"Debian", "apt"},
	"debian":    {"Debian", "apt"},
	"linuxmint": {"Debian", "apt"},
	"pop":       {"Debian", "apt"},
	"fedora":    {"RedHat", "dnf"},
	"rhel":      {"RedHat", "dnf"},
	"centos":    {"RedHat", "dnf"},
	"rocky":     {"RedHat", "dnf"},
	"almalinux": {"RedHat", "dnf"},
	"arch":      {"Arch", "pacman"},
	"manjaro":   {"Arch", "pacman"},
	"alpine":    {"Alpine", "apk"},
	"opensuse":  {"Suse", "zypper"},
	"sles":      {"Suse", "zypper"},
}

// Gather collects system facts from the target.
func Gather(ctx context.Context, conn connector.Connector) (*Facts, error) {
	result, err := conn.Execute(ctx, probeScript)
	if err != nil {
		return nil, fmt.Errorf("%w on %s: %w", ErrProbe, conn, err)
	}
	if result.ExitCode != 0 {
		return nil, fmt.Errorf("%w on %s: exit code %d: %s", ErrProbe, conn, result.ExitCode, strings.TrimSpace(result.Stderr))
	}
	return parse(result.Stdout), nil
}

func parse(out string) *Facts {
	kv := parseKeyValues(out)

	f := &Facts{
		OS:           kv["os"],
		Family:       kv["os"],
		Kernel:       kv["kernel"],
		Architecture: kv["machine"],
		Arch:         normalizeArch(kv["machine"]),
		Hostname:     kv["hostname"],
		User:         kv["user"],
		Home:         kv["home"],
		Shell:        kv["shell"],
	}

	switch f.OS {
	case "Darwin":
		f.PkgManager = "brew"
		f.DistributionVersion = kv["macos_version"]
		f.Name = "macOS"
	case "Linux":
		f.Distribution = kv["os_release.ID"]
		f.DistributionVersion = kv["os_release.VERSION_ID"]
		f.Name = kv["os_release.PRETTY_NAME"]
		if d, ok := distros[f.Distribution]; ok {
			f.Family, f.PkgManager = d[0], d[1]
		}
	}
	return f
}

// parseKeyValues reads key=value lines, unquoting values the way
// /etc/os-release quotes them.
func parseKeyValues(content string) map[string]string {
	result := make(map[string]string)
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok || key == "" {
			continue
		}
		result[key] = strings.Trim(value, `"'`)
	}
	return result
}

func normalizeArch(machine string) string {
	switch machine {
	case "x86_64", "amd64":
		return "amd64"
	case "aarch64", "arm64":
		return "arm64"
	case "armv7l":
		return "arm"
	default:
		return machine
	}
}

// Map returns the non-empty facts keyed by snake_case name, for display.
func (f *Facts) Map() map[string]string {
	all := map[string]string{
		"os_type":              f.OS,
		"os_family":            f.Family,
		"distribution":         f.Distribution,
		"distribution_version": f.DistributionVersion,
		"os_name":              f.Name,
		"kernel":               f.Kernel,
		"architecture":         f.Architecture,
		"arch":                 f.Arch,
		"pkg_manager":          f.PkgManager,
		"hostname":             f.Hostname,
		"user":                 f.User,
		"home":                 f.Home,
		"shell":                f.Shell,
	}
	for k, v := range all {
		if v == "" {
			delete(all, k)
		}
	}
	return all
}

// Keys returns the keys of m in sorted order.
func Keys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
