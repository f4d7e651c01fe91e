package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mattermost/whisper-stream/cmd/whisper-stream/config"
)

func newConfigCmd() *cobra.Command {
	var project bool

	layer := func() config.Layer {
		if project {
			return config.LayerProject
		}
		return config.LayerUser
	}

	loadStore := func() (*config.Store, error) {
		store, err := newStore()
		if err != nil {
			return nil, err
		}
		if err := store.Load(); err != nil {
			return nil, err
		}
		return store, nil
	}

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage persistent settings",
		Long: `Settings are layered, from lowest to highest precedence: built-in
defaults, the user file (~/.whisper-stream/config.{json,toml,yaml}), the
project file (./.whisper-stream.{json,toml,yaml}), WHISPER_* environment
variables and command line flags.

Examples:
  whisper-stream config list
  whisper-stream config set model small.en
  whisper-stream config set step 0 --project
  whisper-stream config unset step --project`,
	}

	cmd.PersistentFlags().BoolVar(&project, "project", false, "use the project config file instead of the user one")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List every setting with its effective value",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := loadStore()
			if err != nil {
				return err
			}
			printEntries(cmd.OutOrStdout(), store.List())
			return nil
		},
	}

	getCmd := &cobra.Command{
		Use:   "get <key>",
		Short: "Print the effective value of a setting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := loadStore()
			if err != nil {
				return err
			}
			entry, err := store.Get(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), entry.Value)
			return nil
		},
	}

	setCmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Persist a setting",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := loadStore()
			if err != nil {
				return err
			}
			if err := store.Set(layer(), args[0], args[1]); err != nil {
				return err
			}
			if err := validateStore(store); err != nil {
				_ = store.Unset(layer(), args[0])
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s set in %s\n", args[0], store.Path(layer()))
			return nil
		},
	}

	unsetCmd := &cobra.Command{
		Use:   "unset <key>",
		Short: "Remove a persisted setting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := loadStore()
			if err != nil {
				return err
			}
			if err := store.Unset(layer(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s unset in %s\n", args[0], store.Path(layer()))
			return nil
		},
	}

	resetCmd := &cobra.Command{
		Use:   "reset",
		Short: "Remove every persisted setting of a config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := loadStore()
			if err != nil {
				return err
			}
			if err := store.Reset(layer()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", store.Path(layer()))
			return nil
		},
	}

	pathCmd := &cobra.Command{
		Use:   "path",
		Short: "Print the config file paths",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := newStore()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "user:    %s\n", store.Path(config.LayerUser))
			fmt.Fprintf(cmd.OutOrStdout(), "project: %s\n", store.Path(config.LayerProject))
			return nil
		},
	}

	cmd.AddCommand(listCmd, getCmd, setCmd, unsetCmd, resetCmd, pathCmd)

	return cmd
}

// validateStore checks that the persisted settings still make a valid
// configuration.
func validateStore(store *config.Store) error {
	cfg := store.Resolve()
	if err := cfg.IsValid(); err != nil {
		return fmt.Errorf("failed to validate config: %w", err)
	}
	return nil
}

func printEntries(w io.Writer, entries []config.Entry) {
	fmt.Fprintln(w, headerStyle(w).Render(fmt.Sprintf("%-30s %-30s %s", "KEY", "VALUE", "SOURCE")))
	fmt.Fprintln(w, strings.Repeat("-", 72))
	for _, e := range entries {
		fmt.Fprintf(w, "%-30s %-30s %s\n", e.Key, e.Value, e.Source)
	}
}
