// SPDX-FileCopyrightText: 2025 Rice University HEP and caenhv contributors
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"github.com/spf13/cobra"

	"github.com/rice-hep/caenhv/internal/crate"
)

func NewSetVoltageCommand() *cobra.Command {
	var (
		slot    int
		channel int
		voltage float64
		wait    bool
	)

	cmd := &cobra.Command{
		Use:   "set-voltage",
		Short: "Set the voltage of a channel and power it on",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			controller, _, err := newController()
			if err != nil {
				return err
			}
			return controller.SetChannelVoltage(cmd.Context(), slot, channel, voltage,
				crate.SetVoltageOptions{Wait: wait})
		},
	}

	cmd.Flags().IntVar(&slot, "slot", 0, "Board slot.")
	cmd.Flags().IntVar(&channel, "channel", 0, "Channel number on the board.")
	cmd.Flags().Float64Var(&voltage, "voltage", 0, "Target voltage in V.")
	cmd.Flags().BoolVar(&wait, "wait", false, "Block until VMon settles at the set point.")
	_ = cmd.MarkFlagRequired("slot")
	_ = cmd.MarkFlagRequired("channel")
	_ = cmd.MarkFlagRequired("voltage")
	return cmd
}
