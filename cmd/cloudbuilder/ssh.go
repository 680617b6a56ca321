package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/eugenetaranov/cloudbuilder/internal/transfer"
	"github.com/eugenetaranov/cloudbuilder/pkg/facts"
)

var workdir string

// execCmd runs a command on the build host
var execCmd = &cobra.Command{
	Use:   "exec <command> [args...]",
	Short: "Run a command on the build host over SSH",
	Long: `Run a shell command on the host behind the rclone remote, using the host,
user and password of its rclone profile. The process exits with the remote
command's status.

Examples:
  cloudbuilder exec -- uname -a
  cloudbuilder exec --workdir /srv/app "make test"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		return runRemote(cmd, a, workdir, strings.Join(args, " "))
	},
}

func init() {
	execCmd.Flags().StringVarP(&workdir, "workdir", "w", "", "Remote working directory")
}

var skipSync bool

// buildCmd syncs the project and runs BUILD_COMMAND remotely
var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Sync the project and run BUILD_COMMAND in REMOTE_PATH",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		if a.cfg.BuildCommand == "" {
			return fmt.Errorf("BUILD_COMMAND is not set")
		}

		if !skipSync {
			client, err := a.transfer()
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			res, err := client.Sync(ctx, transfer.SyncOptions{})
			cancel()
			if err != nil {
				return err
			}
			newOutput(cmd.OutOrStdout()).SyncRecap(res.Target, res.Stats)
		}

		return runRemote(cmd, a, a.cfg.RemotePath, a.cfg.BuildCommand)
	},
}

func init() {
	buildCmd.Flags().BoolVar(&skipSync, "no-sync", false, "Run the build without syncing first")
}

func runRemote(cmd *cobra.Command, a *app, dir, command string) error {
	ctx, cancel := signalContext()
	defer cancel()

	conn, err := a.connect(ctx, dir)
	if err != nil {
		return err
	}
	defer conn.Close()

	res, err := conn.Execute(ctx, command)
	if err != nil {
		return err
	}

	newOutput(cmd.OutOrStdout()).CommandOutput(res.Stdout, res.Stderr, res.ExitCode)
	if res.ExitCode != 0 {
		return &exitCodeError{code: res.ExitCode}
	}
	return nil
}

// factsCmd shows facts about the build host
var factsCmd = &cobra.Command{
	Use:   "facts",
	Short: "Show system facts of the build host",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}

		ctx, cancel := signalContext()
		defer cancel()

		conn, err := a.connect(ctx, "")
		if err != nil {
			return err
		}
		defer conn.Close()

		f, err := facts.Gather(ctx, conn)
		if err != nil {
			return err
		}

		out := newOutput(cmd.OutOrStdout())
		out.Section(conn.String())
		out.KeyValues(f.Map())
		return nil
	},
}
