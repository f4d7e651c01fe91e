package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/mattermost/whisper-stream/cmd/whisper-stream/config"
	"github.com/mattermost/whisper-stream/cmd/whisper-stream/models"
	"github.com/mattermost/whisper-stream/cmd/whisper-stream/stream"
)

func headerStyle(w io.Writer) lipgloss.Style {
	return lipgloss.NewRenderer(w).NewStyle().Bold(true)
}

func formatSize(n int64) string {
	const unit = 1024
	if n < 0 {
		return "unknown"
	}
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func newModelsCmd() *cobra.Command {
	var yes bool

	newManager := func(cmd *cobra.Command) (*models.Manager, error) {
		store, err := newStore()
		if err != nil {
			return nil, err
		}
		if err := store.Load(); err != nil {
			return nil, err
		}
		cfg, err := resolveConfig(cmd.Flags(), store)
		if err != nil {
			return nil, err
		}
		return models.NewManager(models.Config{Dir: cfg.ModelsDir}), nil
	}

	cmd := &cobra.Command{
		Use:   "models",
		Short: "Manage whisper models",
		Long: `Lists, downloads and removes the ggml whisper models.

Examples:
  whisper-stream models list
  whisper-stream models download base.en
  whisper-stream models delete base.en
  whisper-stream models cleanup`,
	}

	cmd.PersistentFlags().String("models-dir", "", "directory holding downloaded models (default ~/.whisper-stream/models)")
	if err := cmd.PersistentFlags().SetAnnotation("models-dir", configKeyAnnotation, []string{"models_directory"}); err != nil {
		panic(err)
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List available models",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			mgr, err := newManager(cmd)
			if err != nil {
				return err
			}
			list, err := mgr.List()
			if err != nil {
				return err
			}
			printModels(cmd.OutOrStdout(), list)
			fmt.Fprintf(cmd.OutOrStdout(), "\nDefault model: %s\n", config.ModelDefault)
			return nil
		},
	}

	downloadedCmd := &cobra.Command{
		Use:   "downloaded",
		Short: "List downloaded models",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			mgr, err := newManager(cmd)
			if err != nil {
				return err
			}
			list, err := mgr.Downloaded()
			if err != nil {
				return err
			}
			if len(list) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No models downloaded.")
				return nil
			}
			printModels(cmd.OutOrStdout(), list)
			return nil
		},
	}

	storageCmd := &cobra.Command{
		Use:   "storage",
		Short: "Show disk space used by models",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			mgr, err := newManager(cmd)
			if err != nil {
				return err
			}
			total, err := mgr.Storage()
			if err != nil {
				return err
			}
			list, err := mgr.Downloaded()
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Models directory: %s\n", mgr.Dir())
			for _, st := range list {
				fmt.Fprintf(w, "  %-12s %s\n", st.Name, formatSize(st.Size))
			}
			fmt.Fprintf(w, "Total: %s\n", formatSize(total))
			return nil
		},
	}

	downloadCmd := &cobra.Command{
		Use:   "download <model>",
		Short: "Download a model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := newManager(cmd)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			mgr.SetProgress(func(written, total int64) {
				fmt.Fprintf(w, "\r%s / %s", formatSize(written), formatSize(total))
			})
			path, err := mgr.Download(cmd.Context(), args[0])
			fmt.Fprintln(w)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "Downloaded %s to %s\n", args[0], path)
			return nil
		},
	}

	deleteCmd := &cobra.Command{
		Use:   "delete <model>",
		Short: "Delete a downloaded model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := newManager(cmd)
			if err != nil {
				return err
			}
			if err := mgr.Delete(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
			return nil
		},
	}

	deleteAllCmd := &cobra.Command{
		Use:   "delete-all",
		Short: "Delete every downloaded model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			mgr, err := newManager(cmd)
			if err != nil {
				return err
			}
			if !yes {
				ok, err := stream.TermConfirmer{In: os.Stdin, Out: cmd.ErrOrStderr()}.Confirm(cmd.Context(), "Delete every downloaded model? [y/N] ")
				if err != nil {
					return err
				}
				if !ok {
					return nil
				}
			}
			deleted, err := mgr.DeleteAll()
			for _, name := range deleted {
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", name)
			}
			return err
		},
	}
	deleteAllCmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")

	cleanupCmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove interrupted downloads and unknown files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			mgr, err := newManager(cmd)
			if err != nil {
				return err
			}
			removed, err := mgr.Cleanup()
			for _, path := range removed {
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", path)
			}
			if err == nil && len(removed) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Nothing to clean up.")
			}
			return err
		},
	}

	cmd.AddCommand(listCmd, downloadedCmd, storageCmd, downloadCmd, deleteCmd, deleteAllCmd, cleanupCmd)

	return cmd
}

func printModels(w io.Writer, list []models.Status) {
	fmt.Fprintln(w, headerStyle(w).Render(fmt.Sprintf("%-12s %-9s %-13s %-11s %s", "MODEL", "SIZE", "LANGUAGES", "STATUS", "DESCRIPTION")))
	fmt.Fprintln(w, strings.Repeat("-", 96))
	for _, st := range list {
		langs := "english"
		if st.Multilingual {
			langs = "multilingual"
		}
		status := "available"
		if st.Downloaded {
			status = "downloaded"
		}
		fmt.Fprintf(w, "%-12s %-9s %-13s %-11s %s\n", st.Name, fmt.Sprintf("%d MB", st.SizeMB), langs, status, st.Description)
	}
}
