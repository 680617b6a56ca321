// Package main is the entrypoint for the cloudbuilder CLI.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Global flags
var (
	debug        bool
	noColor      bool
	rcloneConfig string
	remoteName   string
	rclonePath   string
	projectPath  string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		printError(err)
		var exitErr *exitCodeError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.code)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "cloudbuilder",
	Short: "CloudBuilder - build on a remote host through rclone and SSH",
	Long: `CloudBuilder keeps a local project in sync with a remote build host and
runs commands there. Files move with rclone; commands run over SSH using the
credentials of the rclone remote.

Settings come from flags, <project>/.cloudbuilder.json and the environment
(REMOTE_HOST_NAME, RCLONE_EXE_PATH, LOCAL_PATH, REMOTE_PATH, BUILD_COMMAND).`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().StringVar(&rcloneConfig, "config", "", "Path to rclone.conf (default: searched like rclone does)")
	rootCmd.PersistentFlags().StringVarP(&remoteName, "remote", "r", "", "rclone remote of the build host (REMOTE_HOST_NAME)")
	rootCmd.PersistentFlags().StringVar(&rclonePath, "rclone", "", "Path to the rclone executable (RCLONE_EXE_PATH)")
	rootCmd.PersistentFlags().StringVar(&projectPath, "project", "", "Project directory holding .cloudbuilder.json (PROJECT_PATH)")

	// Add subcommands
	rootCmd.AddCommand(revealCmd)
	rootCmd.AddCommand(obscureCmd)
	rootCmd.AddCommand(profileCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(ensureDirCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(catCmd)
	rootCmd.AddCommand(lsCmd)
	rootCmd.AddCommand(execCmd)
	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(factsCmd)
}

// exitCodeError makes the process exit with a remote command's status.
type exitCodeError struct {
	code int
}

func (e *exitCodeError) Error() string {
	return fmt.Sprintf("remote command exited with code %d", e.code)
}

func printError(err error) {
	var exitErr *exitCodeError
	if errors.As(err, &exitErr) {
		return
	}
	newOutput(os.Stderr).Error("%v", err)
}

