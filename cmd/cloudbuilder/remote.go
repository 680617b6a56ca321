package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/eugenetaranov/cloudbuilder/internal/transfer"
)

// ensureDirCmd creates a remote directory if it is missing
var ensureDirCmd = &cobra.Command{
	Use:   "ensure-dir <remote-path>",
	Short: "Make sure a directory exists on the remote",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		p, err := a.provisioner()
		if err != nil {
			return err
		}

		ctx, cancel := signalContext()
		defer cancel()

		if _, err := p.EnsureExists(ctx, args[0]); err != nil {
			return err
		}
		newOutput(cmd.OutOrStdout()).Result(true, "%s exists", p.Target(args[0]))
		return nil
	},
}

var deleteExcess bool

// syncCmd mirrors the local project to the remote
var syncCmd = &cobra.Command{
	Use:   "sync [local-dir] [remote-dir]",
	Short: "Synchronize a local directory to the remote",
	Long: `Copy a local directory to the remote with rclone. Directories default to
LOCAL_PATH and REMOTE_PATH. Filter rules are read from <local-dir>/.sync_rules
when present.

Examples:
  cloudbuilder sync
  cloudbuilder sync ./app /srv/app --delete-excess`,
	Args: cobra.MaximumNArgs(2),
	RunE: runSync,
}

func init() {
	syncCmd.Flags().BoolVar(&deleteExcess, "delete-excess", false, "Delete remote files that do not exist locally")
}

func runSync(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	client, err := a.transfer()
	if err != nil {
		return err
	}

	opts := transfer.SyncOptions{DeleteExcess: deleteExcess}
	if len(args) > 0 {
		opts.LocalDir = args[0]
	}
	if len(args) > 1 {
		opts.RemoteDir = args[1]
	}

	ctx, cancel := signalContext()
	defer cancel()

	res, err := client.Sync(ctx, opts)
	if err != nil {
		return err
	}

	out := newOutput(cmd.OutOrStdout())
	out.SyncRecap(res.Target, res.Stats)
	if res.Stats.Errors > 0 {
		out.Warn("rclone reported %d errors", res.Stats.Errors)
	}
	out.Debug("rclone output:\n%s", res.Stderr)
	return nil
}

// uploadCmd copies one file to the remote
var uploadCmd = &cobra.Command{
	Use:   "upload <local-file> [remote-file]",
	Short: "Upload a single file to the remote",
	Long: `Upload a file with rclone copyto. Without a remote path the file keeps its
position relative to LOCAL_PATH under REMOTE_PATH.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		client, err := a.transfer()
		if err != nil {
			return err
		}

		remote := ""
		if len(args) == 2 {
			remote = args[1]
		}

		ctx, cancel := signalContext()
		defer cancel()

		res, err := client.Upload(ctx, args[0], remote)
		if err != nil {
			return err
		}
		newOutput(cmd.OutOrStdout()).Result(true, "%s -> %s (%d bytes)", res.LocalFile, res.Target, res.Size)
		return nil
	},
}

var catEncoding string

// catCmd prints a remote file
var catCmd = &cobra.Command{
	Use:   "cat <remote-file>",
	Short: "Print a file from the remote",
	Long: `Print a remote file. Content is decoded with --encoding (a WHATWG label
such as utf-8, latin1 or shift_jis); "raw" writes the bytes unchanged.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		client, err := a.transfer()
		if err != nil {
			return err
		}

		ctx, cancel := signalContext()
		defer cancel()

		data, err := client.Cat(ctx, args[0])
		if err != nil {
			return err
		}

		if catEncoding == "raw" {
			_, err = cmd.OutOrStdout().Write(data)
			return err
		}
		text, err := transfer.DecodeText(data, catEncoding)
		if err != nil {
			return err
		}
		_, err = fmt.Fprint(cmd.OutOrStdout(), text)
		return err
	},
}

func init() {
	catCmd.Flags().StringVar(&catEncoding, "encoding", "utf-8", "Text encoding of the file, or raw")
}

// lsCmd lists a remote directory
var lsCmd = &cobra.Command{
	Use:   "ls [remote-dir]",
	Short: "List a remote directory",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		client, err := a.transfer()
		if err != nil {
			return err
		}

		dir := a.cfg.RemotePath
		if len(args) == 1 {
			dir = args[0]
		}
		if dir == "" {
			return fmt.Errorf("no directory given and REMOTE_PATH is not set")
		}

		ctx, cancel := signalContext()
		defer cancel()

		entries, err := client.List(ctx, dir)
		if err != nil {
			return err
		}
		newOutput(cmd.OutOrStdout()).Listing(client.Target(dir), entries)
		return nil
	},
}
