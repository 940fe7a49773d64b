// SPDX-FileCopyrightText: 2025 Rice University HEP and caenhv contributors
// SPDX-License-Identifier: Apache-2.0

// Package app implements the taotest bench check.
package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rice-hep/caenhv/internal/crate"
	"github.com/rice-hep/caenhv/internal/profile"
)

const Name string = "taotest"

var (
	system   string
	link     string
	address  string
	username string
	password string

	slot    int
	channel int
	voltage float64
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   Name,
		Short: "Print channel readings and optionally run one voltage change",
		Args:  cobra.NoArgs,
		RunE:  runTest,
	}

	defaults := profile.DefaultConnection()
	cmd.Flags().StringVarP(&system, "system", "s", "", "Mainframe system type.")
	cmd.Flags().StringVarP(&link, "link", "l", "", "Link type to reach the mainframe.")
	cmd.Flags().StringVarP(&address, "address", "a", "", "Connection argument: host[:port] for TCPIP, vid:pid for USB.")
	cmd.Flags().StringVarP(&username, "username", "u", defaults.Username, "Session username.")
	cmd.Flags().StringVarP(&password, "password", "p", defaults.Password, "Session password.")
	cmd.Flags().IntVar(&slot, "slot", 0, "Board slot of the voltage change.")
	cmd.Flags().IntVar(&channel, "channel", 0, "Channel of the voltage change.")
	cmd.Flags().Float64Var(&voltage, "voltage", 0, "Target voltage of the voltage change in V.")
	_ = cmd.MarkFlagRequired("system")
	_ = cmd.MarkFlagRequired("link")
	_ = cmd.MarkFlagRequired("address")
	return cmd
}

func runTest(cmd *cobra.Command, args []string) error {
	controller, log, err := newController()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	// Open one session for the whole run: readings before, the optional
	// voltage change, readings after.
	if err := controller.Connect(ctx); err != nil {
		return err
	}
	defer controller.Close()

	if err := printReadings(cmd, controller); err != nil {
		return err
	}

	if cmd.Flags().Changed("voltage") {
		log.Info("Running voltage change", "slot", slot, "channel", channel, "voltage", voltage)
		if err := controller.SetChannelVoltage(ctx, slot, channel, voltage,
			crate.SetVoltageOptions{Wait: true}); err != nil {
			return err
		}
		if err := printReadings(cmd, controller); err != nil {
			return err
		}
	}
	return nil
}

func printReadings(cmd *cobra.Command, controller *crate.Controller) error {
	report, err := controller.Status(cmd.Context())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, board := range report.Boards {
		fmt.Fprintf(out, "slot %d %s (%.1f C)\n", board.Slot, board.Board.Model, board.Temp)
		for _, ch := range board.Channels {
			pw := "Off"
			if ch.Pw {
				pw = "On"
			}
			fmt.Fprintf(out, "  ch %2d: VMon=%8.2f V  IMon=%8.2f uA  Pw=%-3s  Temp=%.1f C  Status=%s\n",
				ch.Channel, ch.VMon, ch.IMon, pw, ch.Temp, ch.Status)
		}
	}
	return nil
}
