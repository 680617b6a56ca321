package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/eugenetaranov/cloudbuilder/internal/obscure"
	"github.com/eugenetaranov/cloudbuilder/internal/rcloneconf"
)

// revealCmd decodes an obscured secret
var revealCmd = &cobra.Command{
	Use:   "reveal <obscured>",
	Short: "Decode an rclone obscured secret",
	Long: `Decode a secret obscured by 'rclone obscure', such as the pass value of
an sftp remote in rclone.conf.

Examples:
  cloudbuilder reveal YWFhYWFhYWFhYWFhYWFhYXMaGgIlEQ`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		plain, err := obscure.Reveal(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), plain)
		return nil
	},
}

// obscureCmd encodes a secret the way rclone does
var obscureCmd = &cobra.Command{
	Use:   "obscure <plaintext>",
	Short: "Obscure a secret for use in rclone.conf",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		obscured, err := obscure.Obscure(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), obscured)
		return nil
	},
}

var (
	showSecret  bool
	listRemotes bool
)

// profileCmd prints a remote profile from rclone.conf
var profileCmd = &cobra.Command{
	Use:   "profile [remote]",
	Short: "Show an rclone remote profile",
	Long: `Show the settings of an rclone remote with its password decoded.
The password is redacted unless --show-secret is given.

Examples:
  cloudbuilder profile build
  cloudbuilder profile --list`,
	Args: cobra.MaximumNArgs(1),
	RunE: runProfile,
}

func init() {
	profileCmd.Flags().BoolVar(&showSecret, "show-secret", false, "Print the decoded password")
	profileCmd.Flags().BoolVar(&listRemotes, "list", false, "List the remotes of the profile store")
}

func runProfile(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	out := newOutput(cmd.OutOrStdout())

	store := a.cfg.RcloneConfig
	if store == "" {
		if store, err = rcloneconf.Locate(); err != nil {
			return err
		}
	}

	if listRemotes {
		names, err := rcloneconf.Remotes(store)
		if err != nil {
			return err
		}
		out.Section(store)
		for _, name := range names {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", name)
		}
		return nil
	}

	name := a.cfg.RemoteHostName
	if len(args) == 1 {
		name = args[0]
	}
	if name == "" {
		return fmt.Errorf("no remote given and REMOTE_HOST_NAME is not set")
	}

	profile, err := rcloneconf.Load(store, name)
	if err != nil {
		return err
	}

	shown := make(map[string]string, len(profile))
	for k, v := range profile {
		shown[k] = v
	}
	if _, ok := shown[rcloneconf.PassKey]; ok && !showSecret {
		shown[rcloneconf.PassKey] = "********"
	}

	out.Section(fmt.Sprintf("[%s] %s", name, store))
	out.KeyValues(shown)
	return nil
}

// configCmd shows the effective configuration
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		out := newOutput(cmd.OutOrStdout())
		out.Section("Configuration")
		out.KeyValues(a.cfg.Map())
		return nil
	},
}
