// SPDX-FileCopyrightText: 2025 Rice University HEP and caenhv contributors
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"fmt"

	"github.com/spf13/cobra"
)

func NewPowerCommand() *cobra.Command {
	var (
		slot    int
		channel int
	)

	cmd := &cobra.Command{
		Use:       "power on|off|down-all",
		Short:     "Switch channel outputs",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"on", "off", "down-all"},
		RunE: func(cmd *cobra.Command, args []string) error {
			controller, _, err := newController()
			if err != nil {
				return err
			}
			switch args[0] {
			case "down-all":
				return controller.PowerDownAll(cmd.Context())
			case "on", "off":
				if !cmd.Flags().Changed("slot") || !cmd.Flags().Changed("channel") {
					return fmt.Errorf("power %s requires --slot and --channel", args[0])
				}
				return controller.PowerChannel(cmd.Context(), slot, channel, args[0] == "on")
			default:
				return fmt.Errorf("unknown power action %q", args[0])
			}
		},
	}

	cmd.Flags().IntVar(&slot, "slot", 0, "Board slot.")
	cmd.Flags().IntVar(&channel, "channel", 0, "Channel number on the board.")
	return cmd
}
