// SPDX-FileCopyrightText: 2025 Rice University HEP and caenhv contributors
// SPDX-License-Identifier: Apache-2.0

// Package app implements the caenhv command-line tool for operating a
// CAEN high-voltage mainframe.
package app

import (
	"os"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rice-hep/caenhv/internal/crate"
	"github.com/rice-hep/caenhv/internal/profile"
)

const Name string = "caenhv"

var (
	system   string
	link     string
	address  string
	username string
	password string
)

// Credentials may also come from the environment so they stay out of
// shell history.
const (
	envUsername = "CAENHV_USERNAME"
	envPassword = "CAENHV_PASSWORD"
)

func NewCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   Name,
		Short: "Operate a CAEN high-voltage mainframe",
		Args:  cobra.NoArgs,
		// Plain invocation prints the crate status.
		RunE: runStatus,
	}

	defaults := profile.DefaultConnection()
	defaultUsername := defaults.Username
	if v := os.Getenv(envUsername); v != "" {
		defaultUsername = v
	}
	defaultPassword := defaults.Password
	if v := os.Getenv(envPassword); v != "" {
		defaultPassword = v
	}

	root.PersistentFlags().StringVarP(&system, "system", "s", defaults.System, "Mainframe system type.")
	root.PersistentFlags().StringVarP(&link, "link", "l", defaults.Link, "Link type to reach the mainframe.")
	root.PersistentFlags().StringVarP(&address, "address", "a", defaults.Address, "Connection argument: host[:port] for TCPIP, vid:pid for USB.")
	root.PersistentFlags().StringVarP(&username, "username", "u", defaultUsername, "Session username.")
	root.PersistentFlags().StringVarP(&password, "password", "p", defaultPassword, "Session password.")

	root.AddCommand(NewStatusCommand())
	root.AddCommand(NewSetVoltageCommand())
	root.AddCommand(NewPowerCommand())
	root.AddCommand(NewConfigureCommand())
	root.AddCommand(NewMonitorCommand())
	root.AddCommand(NewConsoleCommand())
	root.AddCommand(NewExecCommand())
	return root
}

func connection() profile.Connection {
	return profile.Connection{
		System:   system,
		Link:     link,
		Address:  address,
		Username: username,
		Password: password,
	}
}

func newLogger() (logr.Logger, error) {
	zapLog, err := zap.NewDevelopment()
	if err != nil {
		return logr.Logger{}, err
	}
	return zapr.NewLogger(zapLog).WithName(Name), nil
}

func newController() (*crate.Controller, logr.Logger, error) {
	log, err := newLogger()
	if err != nil {
		return nil, logr.Logger{}, err
	}
	controller, err := crate.NewController(log, connection())
	if err != nil {
		return nil, logr.Logger{}, err
	}
	return controller, log, nil
}
