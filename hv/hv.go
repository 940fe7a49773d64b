// SPDX-FileCopyrightText: 2025 Rice University HEP and caenhv contributors
// SPDX-License-Identifier: Apache-2.0

package hv

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// SystemType identifies the power-supply mainframe family.
type SystemType string

const (
	SystemTypeSY1527  SystemType = "SY1527"
	SystemTypeSY2527  SystemType = "SY2527"
	SystemTypeSY4527  SystemType = "SY4527"
	SystemTypeSY5527  SystemType = "SY5527"
	SystemTypeN568E   SystemType = "N568E"
	SystemTypeN1470   SystemType = "N1470"
	SystemTypeV8100   SystemType = "V8100"
	SystemTypeSmartHV SystemType = "SMARTHV"
)

// SystemTypes lists every supported mainframe family.
var SystemTypes = []SystemType{
	SystemTypeSY1527,
	SystemTypeSY2527,
	SystemTypeSY4527,
	SystemTypeSY5527,
	SystemTypeN568E,
	SystemTypeN1470,
	SystemTypeV8100,
	SystemTypeSmartHV,
}

// ParseSystemType validates a mainframe family name.
func ParseSystemType(s string) (SystemType, error) {
	for _, t := range SystemTypes {
		if strings.EqualFold(s, string(t)) {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown system type %q, available choices: %v", s, SystemTypes)
}

// LinkType identifies how the mainframe is reached.
type LinkType string

const (
	LinkTypeTCPIP   LinkType = "TCPIP"
	LinkTypeUSB     LinkType = "USB"
	LinkTypeOptLink LinkType = "OPTLINK"
	LinkTypeA4818   LinkType = "A4818"
)

// LinkTypes lists every supported link.
var LinkTypes = []LinkType{
	LinkTypeTCPIP,
	LinkTypeUSB,
	LinkTypeOptLink,
	LinkTypeA4818,
}

// ParseLinkType validates a link name.
func ParseLinkType(s string) (LinkType, error) {
	for _, t := range LinkTypes {
		if strings.EqualFold(s, string(t)) {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown link type %q, available choices: %v", s, LinkTypes)
}

// Board describes one populated slot of the crate map.
type Board struct {
	Model           string `json:"model"`
	Description     string `json:"description"`
	SerialNumber    uint16 `json:"serialNumber"`
	FirmwareRelease string `json:"firmwareRelease"`
	// NChannel is the number of channels the board carries.
	NChannel int `json:"nChannel"`
}

// EventScope tells which part of the crate produced an event.
type EventScope string

const (
	EventScopeSystem  EventScope = "system"
	EventScopeBoard   EventScope = "board"
	EventScopeChannel EventScope = "channel"
)

// Event is a parameter-change notification for a subscribed parameter.
type Event struct {
	Scope     EventScope `json:"scope"`
	Slot      int        `json:"slot,omitempty"`
	Channel   int        `json:"channel,omitempty"`
	Param     string     `json:"param"`
	Value     any        `json:"value"`
	Timestamp time.Time  `json:"timestamp"`
}

// HV defines an interface for interacting with a high-voltage mainframe.
type HV interface {
	// CrateMap returns the boards per slot; empty slots are nil.
	CrateMap(ctx context.Context) ([]*Board, error)

	// SysPropList returns the names of the system properties.
	SysPropList(ctx context.Context) ([]string, error)

	// SysPropInfo returns type and access mode of a system property.
	SysPropInfo(ctx context.Context, name string) (SysPropInfo, error)

	// SysProp reads a system property.
	SysProp(ctx context.Context, name string) (any, error)

	// SetSysProp writes a system property.
	SetSysProp(ctx context.Context, name string, value any) error

	// BdParamList returns the board parameters available in a slot.
	BdParamList(ctx context.Context, slot int) ([]string, error)

	// BdParamProp returns the properties of a board parameter.
	BdParamProp(ctx context.Context, slot int, param string) (ParamProp, error)

	// BdParam reads a board parameter from the given slots.
	BdParam(ctx context.Context, slots []int, param string) ([]any, error)

	// SetBdParam writes a board parameter on the given slots.
	SetBdParam(ctx context.Context, slots []int, param string, value any) error

	// ChParamList returns the channel parameters available for slot/ch.
	ChParamList(ctx context.Context, slot, ch int) ([]string, error)

	// ChParamProp returns the properties of a channel parameter.
	ChParamProp(ctx context.Context, slot, ch int, param string) (ParamProp, error)

	// ChParam reads a channel parameter from the given channels of a slot.
	ChParam(ctx context.Context, slot int, chs []int, param string) ([]any, error)

	// SetChParam writes a channel parameter on the given channels of a slot.
	SetChParam(ctx context.Context, slot int, chs []int, param string, value any) error

	// ExecCommList returns the commands the mainframe can execute.
	ExecCommList(ctx context.Context) ([]string, error)

	// ExecComm executes a mainframe command, e.g. ClearAlarm.
	ExecComm(ctx context.Context, name string) error

	// SubscribeSystemParams subscribes to change events of system properties.
	SubscribeSystemParams(ctx context.Context, params []string) error

	// SubscribeBoardParams subscribes to change events of board parameters.
	SubscribeBoardParams(ctx context.Context, slot int, params []string) error

	// SubscribeChannelParams subscribes to change events of channel parameters.
	SubscribeChannelParams(ctx context.Context, slot, ch int, params []string) error

	// EventData drains the queued change events.
	EventData(ctx context.Context) ([]Event, error)

	// SWRelease reports the service software release announced at login.
	SWRelease() string

	// Logout closes the session.
	Logout()
}

const (
	// DefaultTCPPort is the TCP service port of the mainframe.
	DefaultTCPPort = 1470
	// DefaultDialTimeout is the default timeout for opening the link.
	DefaultDialTimeout = 10 * time.Second
	// DefaultRequestTimeout is the default per-request deadline.
	DefaultRequestTimeout = 15 * time.Second
)

// Options contain the options for an HV client.
type Options struct {
	// Address is the connection argument: host[:port] for TCPIP,
	// vid:pid[:serial] for USB.
	Address  string
	Username string
	Password string

	DialTimeout    time.Duration
	RequestTimeout time.Duration
}

func (o *Options) applyDefaults() {
	if o.DialTimeout == 0 {
		o.DialTimeout = DefaultDialTimeout
	}
	if o.RequestTimeout == 0 {
		o.RequestTimeout = DefaultRequestTimeout
	}
}

// NewClient opens a session to the mainframe over the given link.
func NewClient(ctx context.Context, system SystemType, link LinkType, options Options) (HV, error) {
	switch link {
	case LinkTypeTCPIP:
		client, err := NewTCPIPHVClient(ctx, options)
		if err != nil {
			return nil, fmt.Errorf("failed to create TCPIP client: %w", err)
		}
		return client, nil
	case LinkTypeUSB:
		client, err := NewUSBHVClient(ctx, options)
		if err != nil {
			return nil, fmt.Errorf("failed to create USB client: %w", err)
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unsupported link type %s for system %s", link, system)
	}
}
