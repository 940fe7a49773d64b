// SPDX-FileCopyrightText: 2025 Rice University HEP and caenhv contributors
// SPDX-License-Identifier: Apache-2.0

// Package app implements the hvdemo session walkthrough.
package app

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/rice-hep/caenhv/hv"
	"github.com/rice-hep/caenhv/internal/profile"
)

const Name string = "hvdemo"

var (
	system   string
	link     string
	address  string
	username string
	password string
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   Name,
		Short: "Walk every surface of a mainframe session",
		Args:  cobra.NoArgs,
		RunE:  runDemo,
	}

	defaults := profile.DefaultConnection()
	cmd.Flags().StringVarP(&system, "system", "s", "", "Mainframe system type.")
	cmd.Flags().StringVarP(&link, "link", "l", "", "Link type to reach the mainframe.")
	cmd.Flags().StringVarP(&address, "address", "a", "", "Connection argument: host[:port] for TCPIP, vid:pid for USB.")
	cmd.Flags().StringVarP(&username, "username", "u", defaults.Username, "Session username.")
	cmd.Flags().StringVarP(&password, "password", "p", defaults.Password, "Session password.")
	_ = cmd.MarkFlagRequired("system")
	_ = cmd.MarkFlagRequired("link")
	_ = cmd.MarkFlagRequired("address")
	return cmd
}

func runDemo(cmd *cobra.Command, args []string) error {
	systemType, err := hv.ParseSystemType(system)
	if err != nil {
		return err
	}
	linkType, err := hv.ParseLinkType(link)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	client, err := hv.NewClient(ctx, systemType, linkType, hv.Options{
		Address:  address,
		Username: username,
		Password: password,
	})
	if err != nil {
		return err
	}
	defer client.Logout()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Connected to %s, service release %s\n\n", address, client.SWRelease())
	boards, err := walkCrate(ctx, out, client)
	if err != nil {
		return err
	}
	if err := walkSysProps(ctx, out, client); err != nil {
		return err
	}
	for slot, board := range boards {
		if board == nil {
			continue
		}
		if err := walkBoard(ctx, out, client, slot, board); err != nil {
			return err
		}
	}
	if err := walkCommands(ctx, out, client); err != nil {
		return err
	}
	return walkEvents(ctx, out, client)
}

func walkCrate(ctx context.Context, out io.Writer, client hv.HV) ([]*hv.Board, error) {
	boards, err := client.CrateMap(ctx)
	if err != nil {
		return nil, err
	}
	fmt.Fprintln(out, "== Crate map ==")
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SLOT\tMODEL\tDESCRIPTION\tSERIAL\tFW\tCHANNELS")
	for slot, board := range boards {
		if board == nil {
			continue
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\t%d\n",
			slot, board.Model, board.Description, board.SerialNumber,
			board.FirmwareRelease, board.NChannel)
	}
	tw.Flush()
	return boards, nil
}

func walkSysProps(ctx context.Context, out io.Writer, client hv.HV) error {
	names, err := client.SysPropList(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "\n== System properties ==")
	for _, name := range names {
		info, err := client.SysPropInfo(ctx, name)
		if err != nil {
			return err
		}
		if info.Mode == hv.SysPropModeWrOnly {
			fmt.Fprintf(out, "%s (%s, %s): write-only\n", name, info.Type, info.Mode)
			continue
		}
		value, err := client.SysProp(ctx, name)
		if err != nil {
			return err
		}
		if err := client.SubscribeSystemParams(ctx, []string{name}); err != nil {
			return err
		}
		fmt.Fprintf(out, "%s (%s, %s): %v\n", name, info.Type, info.Mode, value)
	}
	return nil
}

func walkBoard(ctx context.Context, out io.Writer, client hv.HV, slot int, board *hv.Board) error {
	fmt.Fprintf(out, "\n== Slot %d %s ==\n", slot, board.Model)

	bdParams, err := client.BdParamList(ctx, slot)
	if err != nil {
		return err
	}
	for _, param := range bdParams {
		prop, err := client.BdParamProp(ctx, slot, param)
		if err != nil {
			return err
		}
		if !prop.Mode.Readable() {
			continue
		}
		values, err := client.BdParam(ctx, []int{slot}, param)
		if err != nil {
			return err
		}
		if err := client.SubscribeBoardParams(ctx, slot, []string{param}); err != nil {
			return err
		}
		fmt.Fprintf(out, "board %s = %v\n", param, values[0])
	}

	chParams, err := client.ChParamList(ctx, slot, 0)
	if err != nil {
		return err
	}
	chs := make([]int, board.NChannel)
	for i := range chs {
		chs[i] = i
	}
	for _, param := range chParams {
		prop, err := client.ChParamProp(ctx, slot, 0, param)
		if err != nil {
			return err
		}
		if !prop.Mode.Readable() {
			continue
		}
		values, err := client.ChParam(ctx, slot, chs, param)
		if err != nil {
			return err
		}
		for _, ch := range chs {
			if err := client.SubscribeChannelParams(ctx, slot, ch, []string{param}); err != nil {
				return err
			}
		}
		fmt.Fprintf(out, "channel %s = %v\n", param, values)
	}
	return nil
}

func walkCommands(ctx context.Context, out io.Writer, client hv.HV) error {
	comms, err := client.ExecCommList(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\n== Commands ==\n%v\n", comms)
	return nil
}

// walkEvents drains whatever the walk's subscriptions produce within a
// short window.
func walkEvents(ctx context.Context, out io.Writer, client hv.HV) error {
	fmt.Fprintln(out, "\n== Events ==")
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		events, err := client.EventData(ctx)
		if err != nil {
			return err
		}
		for _, event := range events {
			fmt.Fprintf(out, "%s slot=%d ch=%d %s=%v\n",
				event.Scope, event.Slot, event.Channel, event.Param, event.Value)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}
	return nil
}
