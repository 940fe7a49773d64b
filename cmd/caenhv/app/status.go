// SPDX-FileCopyrightText: 2025 Rice University HEP and caenhv contributors
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rice-hep/caenhv/internal/crate"
)

func NewStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print crate identity and per-channel readings",
		Args:  cobra.NoArgs,
		RunE:  runStatus,
	}
}

func runStatus(cmd *cobra.Command, args []string) error {
	controller, _, err := newController()
	if err != nil {
		return err
	}
	report, err := controller.Status(cmd.Context())
	if err != nil {
		return err
	}
	printReport(cmd.OutOrStdout(), report)
	return nil
}

func printReport(w io.Writer, report *crate.CrateReport) {
	fmt.Fprintf(w, "%s %s (sw %s)\n", report.ModelName, report.CrateName, report.SwRelease)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SLOT\tCH\tBOARD\tVMON (V)\tIMON (uA)\tPW\tSTATUS")
	for _, board := range report.Boards {
		for _, ch := range board.Channels {
			pw := "Off"
			if ch.Pw {
				pw = "On"
			}
			fmt.Fprintf(tw, "%d\t%d\t%s\t%.2f\t%.2f\t%s\t%s\n",
				board.Slot, ch.Channel, board.Board.Model, ch.VMon, ch.IMon, pw, ch.Status)
		}
	}
	tw.Flush()
}
