// SPDX-FileCopyrightText: 2025 Rice University HEP and caenhv contributors
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"github.com/spf13/cobra"

	"github.com/rice-hep/caenhv/internal/profile"
)

func NewConfigureCommand() *cobra.Command {
	var (
		slot        int
		channels    []int
		profilePath string
		profileName string
	)

	cmd := &cobra.Command{
		Use:   "configure",
		Short: "Apply a channel profile to channels of a slot",
		Long: `Apply a channel configuration profile to one or more channels of a slot.
Without --profile the bring-up defaults are written.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			controller, _, err := newController()
			if err != nil {
				return err
			}

			p := profile.ChannelProfile{}.Defaulted()
			if profilePath != "" {
				file, err := profile.Load(profilePath)
				if err != nil {
					return err
				}
				p, err = file.Channel(profileName)
				if err != nil {
					return err
				}
			}
			return controller.ConfigureChannels(cmd.Context(), slot, channels, p)
		},
	}

	cmd.Flags().IntVar(&slot, "slot", 0, "Board slot.")
	cmd.Flags().IntSliceVar(&channels, "channels", nil, "Channel numbers on the board.")
	cmd.Flags().StringVar(&profilePath, "profile", "", "Path to a YAML profile file.")
	cmd.Flags().StringVar(&profileName, "name", "default", "Channel profile name within the file.")
	_ = cmd.MarkFlagRequired("slot")
	_ = cmd.MarkFlagRequired("channels")
	return cmd
}
