// Package rcloneconf reads remote profiles from an rclone config file.
//
// The config file is INI formatted; each section is a remote. The "pass"
// key holds an obscured secret which is revealed on load, all other keys are
// returned as written. Nothing is cached: every call re-reads the file.
package rcloneconf

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/ini.v1"

	"github.com/eugenetaranov/cloudbuilder/internal/obscure"
)

var (
	// ErrNotFound is returned when no config file or no matching remote
	// section exists.
	ErrNotFound = errors.New("not found")

	// ErrFile is returned when the config file cannot be read or parsed.
	ErrFile = errors.New("config file error")

	// ErrSecret is returned when the stored password cannot be revealed.
	ErrSecret = errors.New("cannot reveal password")
)

// PassKey is the key whose value is stored obscured.
const PassKey = "pass"

// DefaultSSHPort is used when a profile carries no usable port.
const DefaultSSHPort = 22

// Profile is the key/value content of one remote section, with the
// password already revealed.
type Profile map[string]string

// Type returns the backend type of the remote (sftp, s3, ...).
func (p Profile) Type() string { return p["type"] }

// Host returns the remote host.
func (p Profile) Host() string { return p["host"] }

// User returns the login user.
func (p Profile) User() string { return p["user"] }

// Password returns the revealed password.
func (p Profile) Password() string { return p[PassKey] }

// Port returns the configured port, or DefaultSSHPort when it is missing
// or not a valid number.
func (p Profile) Port() int {
	raw, ok := p["port"]
	if !ok {
		return DefaultSSHPort
	}
	port, err := strconv.Atoi(raw)
	if err != nil || port <= 0 || port > 65535 {
		return DefaultSSHPort
	}
	return port
}

// Load reads the remote section name from the config file at path.
func Load(path, name string) (Profile, error) {
	f, err := open(path)
	if err != nil {
		return nil, err
	}

	if name == "" || name == ini.DefaultSection {
		return nil, fmt.Errorf("%w: remote %q in %s", ErrNotFound, name, path)
	}
	section, err := f.GetSection(name)
	if err != nil {
		return nil, fmt.Errorf("%w: remote %q in %s", ErrNotFound, name, path)
	}

	profile := make(Profile, len(section.Keys()))
	for _, key := range section.Keys() {
		keyName, value := key.Name(), key.Value()
		if strings.EqualFold(keyName, PassKey) {
			keyName = PassKey
			revealed, err := obscure.Reveal(value)
			if err != nil {
				return nil, fmt.Errorf("%w for remote %q: %w", ErrSecret, name, err)
			}
			value = revealed
		}
		profile[keyName] = value
	}

	return profile, nil
}

// LoadRemote is Load with config discovery: an empty path is resolved with
// Locate.
func LoadRemote(path, name string) (Profile, error) {
	if path == "" {
		located, err := Locate()
		if err != nil {
			return nil, err
		}
		path = located
	}
	return Load(path, name)
}

// Remotes lists the remote names defined in the config file at path.
func Remotes(path string) ([]string, error) {
	f, err := open(path)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, name := range f.SectionStrings() {
		if name != ini.DefaultSection {
			names = append(names, name)
		}
	}
	return names, nil
}

func open(path string) (*ini.File, error) {
	// Every line is its own key: Windows paths end in a backslash.
	f, err := ini.LoadSources(ini.LoadOptions{
		IgnoreInlineComment: true,
		IgnoreContinuation:  true,
	}, path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrFile, path, err)
	}
	return f, nil
}
