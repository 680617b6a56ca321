package rcloneconf

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

const (
	configFileName = "rclone.conf"
	hiddenFileName = ".rclone.conf"

	// EnvConfig points directly at a config file and wins over every
	// other location.
	EnvConfig = "RCLONE_CONFIG"
)

// candidate yields one possible config path. ok is false when the
// candidate does not apply (unset variable, unknown home, wrong OS).
type candidate func(l *Locator) (path string, ok bool)

// Locator searches the locations rclone itself reads its config from.
// The zero value is not usable; call NewLocator.
type Locator struct {
	Getenv     func(string) string
	Getwd      func() (string, error)
	Executable func() (string, error)
	HomeDir    func() (string, error)
	GOOS       string

	// Exists reports whether path names an existing file.
	Exists func(path string) bool
}

// NewLocator returns a Locator bound to the real process environment.
func NewLocator() *Locator {
	return &Locator{
		Getenv:     os.Getenv,
		Getwd:      os.Getwd,
		Executable: os.Executable,
		HomeDir:    os.UserHomeDir,
		GOOS:       runtime.GOOS,
		Exists:     fileExists,
	}
}

// candidates is the search order; the first existing path is used.
var candidates = []candidate{
	func(l *Locator) (string, bool) {
		p := l.Getenv(EnvConfig)
		return p, p != ""
	},
	func(l *Locator) (string, bool) {
		return inWorkdir(l, configFileName)
	},
	func(l *Locator) (string, bool) {
		exe, err := l.Executable()
		if err != nil || exe == "" {
			return "", false
		}
		return filepath.Join(filepath.Dir(exe), configFileName), true
	},
	func(l *Locator) (string, bool) {
		if l.GOOS != "windows" {
			return "", false
		}
		appData := l.Getenv("APPDATA")
		if appData == "" {
			return "", false
		}
		return filepath.Join(appData, "rclone", configFileName), true
	},
	func(l *Locator) (string, bool) {
		xdg := l.Getenv("XDG_CONFIG_HOME")
		if xdg == "" {
			return "", false
		}
		return filepath.Join(xdg, "rclone", configFileName), true
	},
	func(l *Locator) (string, bool) {
		return inHome(l, ".config", "rclone", configFileName)
	},
	func(l *Locator) (string, bool) {
		return inHome(l, hiddenFileName)
	},
	func(l *Locator) (string, bool) {
		return inWorkdir(l, hiddenFileName)
	},
}

// Locate returns the first existing rclone config file.
func (l *Locator) Locate() (string, error) {
	var tried []string
	for _, next := range candidates {
		path, ok := next(l)
		if !ok {
			continue
		}
		if l.Exists(path) {
			return path, nil
		}
		tried = append(tried, path)
	}
	return "", fmt.Errorf("%w: no %s found (tried %v)", ErrNotFound, configFileName, tried)
}

// Locate searches the real environment for an rclone config file.
func Locate() (string, error) {
	return NewLocator().Locate()
}

func inWorkdir(l *Locator, name string) (string, bool) {
	wd, err := l.Getwd()
	if err != nil || wd == "" {
		return "", false
	}
	return filepath.Join(wd, name), true
}

func inHome(l *Locator, elem ...string) (string, bool) {
	home, err := l.HomeDir()
	if err != nil || home == "" {
		return "", false
	}
	return filepath.Join(append([]string{home}, elem...)...), true
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
