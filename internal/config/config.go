// Package config resolves cloudbuilder settings from command-line flags,
// the project file and the environment, in that order of priority.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/eugenetaranov/cloudbuilder/internal/connector"
	"github.com/eugenetaranov/cloudbuilder/internal/rcloneconf"
)

// ErrInvalid is returned when a required setting is missing.
var ErrInvalid = errors.New("invalid configuration")

// SSHTimeout bounds connection setup to the build host.
const SSHTimeout = 15 * time.Second

// Config holds the effective settings. Field tags name the environment
// variable and the project file key, which are the same.
type Config struct {
	RemoteHostName string `env:"REMOTE_HOST_NAME" json:"REMOTE_HOST_NAME" yaml:"REMOTE_HOST_NAME"`
	RcloneExePath  string `env:"RCLONE_EXE_PATH" json:"RCLONE_EXE_PATH" yaml:"RCLONE_EXE_PATH"`
	LocalPath      string `env:"LOCAL_PATH" json:"LOCAL_PATH" yaml:"LOCAL_PATH"`
	RemotePath     string `env:"REMOTE_PATH" json:"REMOTE_PATH" yaml:"REMOTE_PATH"`
	BuildCommand   string `env:"BUILD_COMMAND" json:"BUILD_COMMAND" yaml:"BUILD_COMMAND"`
	RcloneConfig   string `env:"RCLONE_CONFIG" json:"RCLONE_CONFIG" yaml:"RCLONE_CONFIG"`
	KnownHostsFile string `env:"KNOWN_HOSTS_FILE" json:"KNOWN_HOSTS_FILE" yaml:"KNOWN_HOSTS_FILE"`
	LogLevel       string `env:"LOG_LEVEL" json:"LOG_LEVEL" yaml:"LOG_LEVEL"`

	// ProjectPath locates the project file and is never read from it.
	ProjectPath string `env:"PROJECT_PATH" json:"-" yaml:"-"`
}

// Load merges flags over the project file over the environment.
// Zero-valued fields of flags are treated as unset.
func Load(flags Config, opts ...Option) (*Config, error) {
	return newBuilder(opts...).
		withFlags(flags).
		withProject().
		withEnv().
		build()
}

// RequireRemote reports ErrInvalid when no rclone remote is configured.
func (c *Config) RequireRemote() error {
	if c.RemoteHostName == "" {
		return fmt.Errorf("%w: REMOTE_HOST_NAME is not set (use --remote, %s or the environment)", ErrInvalid, ProjectFileName)
	}
	return nil
}

// Profile loads the configured remote's rclone profile with its password
// revealed.
func (c *Config) Profile() (rcloneconf.Profile, error) {
	if err := c.RequireRemote(); err != nil {
		return nil, err
	}
	return rcloneconf.LoadRemote(c.RcloneConfig, c.RemoteHostName)
}

// Target resolves the SSH connection settings of the build host from the
// remote's rclone profile.
func (c *Config) Target() (connector.Config, error) {
	profile, err := c.Profile()
	if err != nil {
		return connector.Config{}, err
	}

	target := connector.Config{
		Host:           profile.Host(),
		Port:           profile.Port(),
		User:           profile.User(),
		Password:       profile.Password(),
		KnownHostsFile: c.KnownHostsFile,
		Timeout:        SSHTimeout,
	}
	if target.Host == "" || target.User == "" {
		return connector.Config{}, fmt.Errorf("%w: remote %q has no host or user", ErrInvalid, c.RemoteHostName)
	}
	return target, nil
}

// Map returns the settings keyed by variable name, for display.
func (c *Config) Map() map[string]string {
	return map[string]string{
		"REMOTE_HOST_NAME": c.RemoteHostName,
		"RCLONE_EXE_PATH":  c.RcloneExePath,
		"LOCAL_PATH":       c.LocalPath,
		"REMOTE_PATH":      c.RemotePath,
		"BUILD_COMMAND":    c.BuildCommand,
		"RCLONE_CONFIG":    c.RcloneConfig,
		"KNOWN_HOSTS_FILE": c.KnownHostsFile,
		"LOG_LEVEL":        c.LogLevel,
		"PROJECT_PATH":     c.ProjectPath,
	}
}
