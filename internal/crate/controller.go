// SPDX-FileCopyrightText: 2025 Rice University HEP and caenhv contributors
// SPDX-License-Identifier: Apache-2.0

// Package crate supervises a high-voltage mainframe: it owns the
// session lifecycle and implements the operating procedures used by the
// command-line tools.
package crate

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/go-logr/logr"

	"github.com/rice-hep/caenhv/hv"
	"github.com/rice-hep/caenhv/internal/profile"
)

const (
	// rampPollInterval is how often a waiting voltage change samples VMon.
	rampPollInterval = 1 * time.Second
	// rampMargin is the grace added to the computed ramp time before a
	// waiting voltage change gives up.
	rampMargin = 10 * time.Second
	// voltageTolerance is how close VMon must get to the set point for a
	// ramp to count as settled.
	voltageTolerance = 2.0
)

// Controller runs operating procedures against one mainframe. Sessions
// are opened on demand and closed after each operation unless the
// controller was created with Connect.
type Controller struct {
	log     logr.Logger
	system  hv.SystemType
	link    hv.LinkType
	options hv.Options
	client  hv.HV
}

// NewController creates a controller from validated connection settings.
func NewController(log logr.Logger, conn profile.Connection) (*Controller, error) {
	if err := conn.Validate(); err != nil {
		return nil, err
	}
	system, _ := hv.ParseSystemType(conn.System)
	link, _ := hv.ParseLinkType(conn.Link)
	return &Controller{
		log:    log,
		system: system,
		link:   link,
		options: hv.Options{
			Address:  conn.Address,
			Username: conn.Username,
			Password: conn.Password,
		},
	}, nil
}

// Connect switches the controller to a persistent session, kept open
// until Close. Long-running callers such as the monitor use this.
func (c *Controller) Connect(ctx context.Context) error {
	if c.client != nil {
		return nil
	}
	client, err := hv.NewClient(ctx, c.system, c.link, c.options)
	if err != nil {
		return err
	}
	c.client = client
	return nil
}

// Close ends a persistent session.
func (c *Controller) Close() {
	if c.client != nil {
		c.client.Logout()
		c.client = nil
	}
}

// withClient runs op against an open session, dialing one first if
// needed and logging out afterwards unless the session is persistent.
func (c *Controller) withClient(ctx context.Context, op func(client hv.HV) error) error {
	client := c.client
	if client == nil {
		opened, err := hv.NewClient(ctx, c.system, c.link, c.options)
		if err != nil {
			return err
		}
		client = opened
		defer client.Logout()
	}
	return op(client)
}

// ChannelReading is one channel of a status report.
type ChannelReading struct {
	Channel int
	VMon    float64
	IMon    float64
	Pw      bool
	Status  hv.ChannelStatus
	Temp    float64
}

// BoardReport is one populated slot of a status report.
type BoardReport struct {
	Slot     int
	Board    hv.Board
	Temp     float64
	Channels []ChannelReading
}

// CrateReport is a full status snapshot of the mainframe.
type CrateReport struct {
	ModelName string
	SwRelease string
	CrateName string
	Boards    []BoardReport
}

// Status reads a full snapshot: system identity plus the monitored
// values of every channel of every populated slot.
func (c *Controller) Status(ctx context.Context) (*CrateReport, error) {
	report := &CrateReport{}
	err := c.withClient(ctx, func(client hv.HV) error {
		for _, prop := range []struct {
			name string
			dst  *string
		}{
			{"ModelName", &report.ModelName},
			{"SwRelease", &report.SwRelease},
			{"CrateName", &report.CrateName},
		} {
			v, err := client.SysProp(ctx, prop.name)
			if err != nil {
				return err
			}
			if s, ok := v.(string); ok {
				*prop.dst = s
			}
		}

		boards, err := client.CrateMap(ctx)
		if err != nil {
			return err
		}
		for slot, board := range boards {
			if board == nil {
				continue
			}
			br := BoardReport{Slot: slot, Board: *board}
			if temps, err := client.BdParam(ctx, []int{slot}, hv.BdParamTemp); err == nil && len(temps) == 1 {
				br.Temp, _ = hv.AsFloat64(temps[0])
			}
			chs := make([]int, board.NChannel)
			for i := range chs {
				chs[i] = i
			}
			readings, err := c.readChannels(ctx, client, slot, chs)
			if err != nil {
				return err
			}
			br.Channels = readings
			report.Boards = append(report.Boards, br)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read crate status: %w", err)
	}
	return report, nil
}

func (c *Controller) readChannels(ctx context.Context, client hv.HV, slot int, chs []int) ([]ChannelReading, error) {
	vmons, err := client.ChParam(ctx, slot, chs, hv.ParamVMon)
	if err != nil {
		return nil, err
	}
	imons, err := client.ChParam(ctx, slot, chs, hv.ParamIMon)
	if err != nil {
		return nil, err
	}
	pws, err := client.ChParam(ctx, slot, chs, hv.ParamPw)
	if err != nil {
		return nil, err
	}
	statuses, err := client.ChParam(ctx, slot, chs, hv.ParamStatus)
	if err != nil {
		return nil, err
	}
	temps, err := client.ChParam(ctx, slot, chs, hv.ParamTemp)
	if err != nil {
		return nil, err
	}

	readings := make([]ChannelReading, len(chs))
	for i, ch := range chs {
		r := ChannelReading{Channel: ch}
		r.VMon, _ = hv.AsFloat64(vmons[i])
		r.IMon, _ = hv.AsFloat64(imons[i])
		r.Pw, _ = hv.AsBool(pws[i])
		r.Status, _ = hv.AsStatus(statuses[i])
		r.Temp, _ = hv.AsFloat64(temps[i])
		r.VMon = round2(r.VMon)
		r.IMon = round2(r.IMon)
		readings[i] = r
	}
	return readings, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// ReadChannelParam reads one channel parameter rounded to two decimals.
// Write-only parameters are rejected up front.
func (c *Controller) ReadChannelParam(ctx context.Context, slot, ch int, param string) (float64, error) {
	var value float64
	err := c.withClient(ctx, func(client hv.HV) error {
		prop, err := client.ChParamProp(ctx, slot, ch, param)
		if err != nil {
			return err
		}
		if !prop.Mode.Readable() {
			return fmt.Errorf("channel param %q is write-only", param)
		}
		values, err := client.ChParam(ctx, slot, []int{ch}, param)
		if err != nil {
			return err
		}
		if len(values) != 1 {
			return fmt.Errorf("expected one value for %q, got %d", param, len(values))
		}
		value, err = hv.AsFloat64(values[0])
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to read %s of slot %d ch %d: %w", param, slot, ch, err)
	}
	return round2(value), nil
}

// SetVoltageOptions tune a SetChannelVoltage call.
type SetVoltageOptions struct {
	// Wait blocks until VMon settles at the set point or the computed
	// ramp time (plus margin) elapses.
	Wait bool
}

// rampDuration estimates how long the channel needs to move from the
// current VMon to target given its ramp rates in V/s.
func rampDuration(vmon, target, rup, rdwn float64) time.Duration {
	delta := target - vmon
	rate := rup
	if delta < 0 {
		delta = -delta
		rate = rdwn
	}
	if rate <= 0 {
		return 0
	}
	return time.Duration(delta / rate * float64(time.Second))
}

// SetChannelVoltage sets V0Set and makes sure the channel is powered.
// On a channel that is not operational only the set point is written.
func (c *Controller) SetChannelVoltage(ctx context.Context, slot, ch int, target float64, opts SetVoltageOptions) error {
	err := c.withClient(ctx, func(client hv.HV) error {
		statuses, err := client.ChParam(ctx, slot, []int{ch}, hv.ParamStatus)
		if err != nil {
			return err
		}
		status, err := hv.AsStatus(statuses[0])
		if err != nil {
			return err
		}

		if err := client.SetChParam(ctx, slot, []int{ch}, hv.ParamV0Set, target); err != nil {
			return err
		}
		if status == hv.ChannelNotOperational {
			c.log.Info("Channel not operational, wrote set point only",
				"slot", slot, "channel", ch, "v0Set", target)
			return nil
		}

		vmons, err := client.ChParam(ctx, slot, []int{ch}, hv.ParamVMon)
		if err != nil {
			return err
		}
		vmon, _ := hv.AsFloat64(vmons[0])

		rups, err := client.ChParam(ctx, slot, []int{ch}, hv.ParamRUp)
		if err != nil {
			return err
		}
		rup, _ := hv.AsFloat64(rups[0])
		rdwns, err := client.ChParam(ctx, slot, []int{ch}, hv.ParamRDWn)
		if err != nil {
			return err
		}
		rdwn, _ := hv.AsFloat64(rdwns[0])

		if !status.IsOn() {
			if err := client.SetChParam(ctx, slot, []int{ch}, hv.ParamPw, 1); err != nil {
				return err
			}
		}

		ramp := rampDuration(vmon, target, rup, rdwn)
		c.log.Info("Voltage change dispatched",
			"slot", slot, "channel", ch, "v0Set", target, "vMon", vmon, "rampTime", ramp)

		if !opts.Wait {
			return nil
		}
		return c.waitForVoltage(ctx, client, slot, ch, target, ramp+rampMargin)
	})
	if err != nil {
		return fmt.Errorf("failed to set voltage of slot %d ch %d: %w", slot, ch, err)
	}
	return nil
}

// waitForVoltage polls VMon until it settles at target.
func (c *Controller) waitForVoltage(ctx context.Context, client hv.HV, slot, ch int, target float64, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(rampPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		vmons, err := client.ChParam(ctx, slot, []int{ch}, hv.ParamVMon)
		if err != nil {
			return err
		}
		vmon, _ := hv.AsFloat64(vmons[0])
		if math.Abs(vmon-target) <= voltageTolerance {
			c.log.Info("Voltage settled", "slot", slot, "channel", ch, "vMon", round2(vmon))
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("ramp did not settle within %s, VMon at %.2f", timeout, vmon)
		}
	}
}

// PowerChannel switches the output of one channel.
func (c *Controller) PowerChannel(ctx context.Context, slot, ch int, on bool) error {
	value := 0
	if on {
		value = 1
	}
	err := c.withClient(ctx, func(client hv.HV) error {
		return client.SetChParam(ctx, slot, []int{ch}, hv.ParamPw, value)
	})
	if err != nil {
		return fmt.Errorf("failed to power slot %d ch %d: %w", slot, ch, err)
	}
	return nil
}

// PowerDownAll switches off every channel that reports an enabled
// output, slot by slot. Channels already off are left alone.
func (c *Controller) PowerDownAll(ctx context.Context) error {
	err := c.withClient(ctx, func(client hv.HV) error {
		boards, err := client.CrateMap(ctx)
		if err != nil {
			return err
		}
		for slot, board := range boards {
			if board == nil {
				continue
			}
			chs := make([]int, board.NChannel)
			for i := range chs {
				chs[i] = i
			}
			statuses, err := client.ChParam(ctx, slot, chs, hv.ParamStatus)
			if err != nil {
				return err
			}
			var on []int
			for i, raw := range statuses {
				status, err := hv.AsStatus(raw)
				if err != nil {
					continue
				}
				// The 0xFF sentinel carries the On bit too; those
				// channels get switched off like any other.
				if status.IsOn() {
					on = append(on, chs[i])
				}
			}
			if len(on) == 0 {
				continue
			}
			c.log.Info("Powering down channels", "slot", slot, "channels", on)
			if err := client.SetChParam(ctx, slot, on, hv.ParamPw, 0); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to power down all channels: %w", err)
	}
	return nil
}

// ConfigureChannels applies a channel profile to the given channels of
// one slot, one parameter at a time in a stable order.
func (c *Controller) ConfigureChannels(ctx context.Context, slot int, chs []int, p profile.ChannelProfile) error {
	params := p.Defaulted().Params()
	err := c.withClient(ctx, func(client hv.HV) error {
		for _, pv := range params {
			if err := client.SetChParam(ctx, slot, chs, pv.Name, pv.Value); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to configure slot %d channels %v: %w", slot, chs, err)
	}
	c.log.Info("Configured channels", "slot", slot, "channels", chs, "params", len(params))
	return nil
}

// ExecComm runs a mainframe command such as ClearAlarm.
func (c *Controller) ExecComm(ctx context.Context, name string) error {
	err := c.withClient(ctx, func(client hv.HV) error {
		return client.ExecComm(ctx, name)
	})
	if err != nil {
		return fmt.Errorf("failed to execute %s: %w", name, err)
	}
	return nil
}

// Client returns the persistent session, or nil when not connected.
func (c *Controller) Client() hv.HV { return c.client }
