package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mattermost/whisper-stream/cmd/whisper-stream/audio"
)

func newDevicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List audio capture devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			devices, err := audio.InputDevices()
			if err != nil {
				return fmt.Errorf("failed to list devices: %w", err)
			}

			w := cmd.OutOrStdout()
			if len(devices) == 0 {
				fmt.Fprintln(w, "No capture devices found.")
				return nil
			}

			fmt.Fprintln(w, headerStyle(w).Render(fmt.Sprintf("%-4s %-40s %-9s %s", "ID", "NAME", "CHANNELS", "RATE")))
			fmt.Fprintln(w, strings.Repeat("-", 64))
			for _, d := range devices {
				line := fmt.Sprintf("%-4d %-40s %-9d %.0f", d.ID, d.Name, d.MaxInputChannels, d.DefaultSampleRate)
				if d.IsDefault {
					line += "  (default)"
				}
				fmt.Fprintln(w, line)
			}

			return nil
		},
	}
}
