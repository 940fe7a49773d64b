// SPDX-FileCopyrightText: 2025 Rice University HEP and caenhv contributors
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"github.com/spf13/cobra"

	"github.com/rice-hep/caenhv/internal/console"
)

func NewConsoleCommand() *cobra.Command {
	var (
		skipHostKeyValidation bool
		knownHostsFile        string
	)

	cmd := &cobra.Command{
		Use:   "console",
		Short: "Open an SSH shell on the mainframe CPU",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return console.Open(console.Config{
				Address:               address,
				Username:              username,
				Password:              password,
				SkipHostKeyValidation: skipHostKeyValidation,
				KnownHostsFile:        knownHostsFile,
			})
		},
	}

	cmd.Flags().BoolVar(&skipHostKeyValidation, "skip-host-key-validation", false, "Skip host key validation.")
	cmd.Flags().StringVar(&knownHostsFile, "known-hosts-file", "~/.ssh/known_hosts", "Path to known_hosts file.")
	return cmd
}
