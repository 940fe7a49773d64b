// SPDX-FileCopyrightText: 2025 Rice University HEP and caenhv contributors
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"github.com/spf13/cobra"
)

func NewExecCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "exec COMMAND",
		Short: "Execute a mainframe command, e.g. ClearAlarm",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			controller, _, err := newController()
			if err != nil {
				return err
			}
			return controller.ExecComm(cmd.Context(), args[0])
		},
	}
}
