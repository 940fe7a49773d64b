// SPDX-FileCopyrightText: 2025 Rice University HEP and caenhv contributors
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/rice-hep/caenhv/internal/hvmetrics"
)

func NewMonitorCommand() *cobra.Command {
	var (
		metricsAddr string
		interval    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Poll the crate and serve Prometheus metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			controller, log, err := newController()
			if err != nil {
				return err
			}
			if err := controller.Connect(cmd.Context()); err != nil {
				return err
			}
			defer controller.Close()

			poller := hvmetrics.NewPoller(log, controller, metricsAddr, interval)
			return poller.Start(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9090", "Listen address of the metrics endpoint.")
	cmd.Flags().DurationVar(&interval, "interval", hvmetrics.DefaultPollInterval, "Poll interval.")
	return cmd
}
