// SPDX-FileCopyrightText: 2025 Rice University HEP and caenhv contributors
// SPDX-License-Identifier: Apache-2.0

// Package profile loads crate connection settings and channel
// configuration profiles from YAML files.
package profile

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/rice-hep/caenhv/hv"
)

// Connection holds everything needed to open a crate session.
type Connection struct {
	System   string `yaml:"system"`
	Link     string `yaml:"link"`
	Address  string `yaml:"address"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// Default connection settings of the lab crate.
const (
	DefaultSystem   = "SY4527"
	DefaultLink     = "TCPIP"
	DefaultAddress  = "192.168.0.1"
	DefaultUsername = "admin"
	DefaultPassword = "rice2024"
)

// DefaultConnection returns the lab crate connection settings.
func DefaultConnection() Connection {
	return Connection{
		System:   DefaultSystem,
		Link:     DefaultLink,
		Address:  DefaultAddress,
		Username: DefaultUsername,
		Password: DefaultPassword,
	}
}

func (c *Connection) applyDefaults() {
	d := DefaultConnection()
	if c.System == "" {
		c.System = d.System
	}
	if c.Link == "" {
		c.Link = d.Link
	}
	if c.Address == "" {
		c.Address = d.Address
	}
	if c.Username == "" {
		c.Username = d.Username
	}
	if c.Password == "" {
		c.Password = d.Password
	}
}

// Validate checks the system and link names against the supported sets.
func (c *Connection) Validate() error {
	if _, err := hv.ParseSystemType(c.System); err != nil {
		return err
	}
	if _, err := hv.ParseLinkType(c.Link); err != nil {
		return err
	}
	if c.Address == "" {
		return fmt.Errorf("connection address must not be empty")
	}
	return nil
}

// ChannelProfile is the set of channel parameters written by a
// configure operation. Zero values mean the documented defaults, which
// match the crate bring-up procedure.
type ChannelProfile struct {
	V0Set    *float64 `yaml:"v0Set,omitempty"`
	I0Set    *float64 `yaml:"i0Set,omitempty"`
	V1Set    *float64 `yaml:"v1Set,omitempty"`
	I1Set    *float64 `yaml:"i1Set,omitempty"`
	RUp      *float64 `yaml:"rUp,omitempty"`
	RDWn     *float64 `yaml:"rDWn,omitempty"`
	Trip     *float64 `yaml:"trip,omitempty"`
	SVMax    *float64 `yaml:"svMax,omitempty"`
	POn      *bool    `yaml:"pOn,omitempty"`
	PDwn     *bool    `yaml:"pDwn,omitempty"`
	ImRange  *int     `yaml:"imRange,omitempty"`
	ZCDetect *bool    `yaml:"zcDetect,omitempty"`
	ZCAdjust *bool    `yaml:"zcAdjust,omitempty"`
}

// Channel bring-up defaults.
const (
	DefaultV1Set   = 0.0
	DefaultI1Set   = 1010.0
	DefaultRUp     = 20.0
	DefaultRDWn    = 20.0
	DefaultTrip    = 10.0
	DefaultSVMax   = 1000.0
	DefaultImRange = 0
)

func ptr[T any](v T) *T { return &v }

// Defaulted returns a copy with every unset field replaced by its
// bring-up default. V0Set and I0Set stay unset unless given, so that a
// configure pass does not disturb the operating point.
func (p ChannelProfile) Defaulted() ChannelProfile {
	if p.V1Set == nil {
		p.V1Set = ptr(DefaultV1Set)
	}
	if p.I1Set == nil {
		p.I1Set = ptr(DefaultI1Set)
	}
	if p.RUp == nil {
		p.RUp = ptr(DefaultRUp)
	}
	if p.RDWn == nil {
		p.RDWn = ptr(DefaultRDWn)
	}
	if p.Trip == nil {
		p.Trip = ptr(DefaultTrip)
	}
	if p.SVMax == nil {
		p.SVMax = ptr(DefaultSVMax)
	}
	if p.POn == nil {
		p.POn = ptr(false)
	}
	if p.PDwn == nil {
		p.PDwn = ptr(false)
	}
	if p.ImRange == nil {
		p.ImRange = ptr(DefaultImRange)
	}
	if p.ZCDetect == nil {
		p.ZCDetect = ptr(true)
	}
	if p.ZCAdjust == nil {
		p.ZCAdjust = ptr(false)
	}
	return p
}

// Params returns the parameter writes of the profile in a stable order:
// set points first, then power options, ramps and protections.
func (p ChannelProfile) Params() []ParamValue {
	var out []ParamValue
	add := func(name string, v *float64) {
		if v != nil {
			out = append(out, ParamValue{Name: name, Value: *v})
		}
	}
	addBool := func(name string, v *bool) {
		if v != nil {
			value := 0.0
			if *v {
				value = 1.0
			}
			out = append(out, ParamValue{Name: name, Value: value})
		}
	}
	add(hv.ParamV0Set, p.V0Set)
	add(hv.ParamI0Set, p.I0Set)
	add(hv.ParamV1Set, p.V1Set)
	add(hv.ParamI1Set, p.I1Set)
	addBool(hv.ParamPOn, p.POn)
	addBool(hv.ParamPDwn, p.PDwn)
	add(hv.ParamRUp, p.RUp)
	add(hv.ParamRDWn, p.RDWn)
	add(hv.ParamTrip, p.Trip)
	add(hv.ParamSVMax, p.SVMax)
	if p.ImRange != nil {
		out = append(out, ParamValue{Name: hv.ParamImRange, Value: float64(*p.ImRange)})
	}
	addBool(hv.ParamZCDetect, p.ZCDetect)
	addBool(hv.ParamZCAdjust, p.ZCAdjust)
	return out
}

// ParamValue is one channel parameter write.
type ParamValue struct {
	Name  string
	Value float64
}

// File is the on-disk profile document.
type File struct {
	Connection Connection                `yaml:"connection"`
	Channels   map[string]ChannelProfile `yaml:"channels"`
}

// Load reads and validates a profile file. A missing connection section
// falls back to the lab defaults.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a profile document.
func Parse(data []byte) (*File, error) {
	file := &File{}
	if err := yaml.Unmarshal(data, file); err != nil {
		return nil, fmt.Errorf("failed to unmarshal profile: %w", err)
	}
	file.Connection.applyDefaults()
	if err := file.Connection.Validate(); err != nil {
		return nil, fmt.Errorf("invalid profile connection: %w", err)
	}
	return file, nil
}

// Channel looks up a named channel profile with defaults applied.
func (f *File) Channel(name string) (ChannelProfile, error) {
	p, ok := f.Channels[name]
	if !ok {
		return ChannelProfile{}, fmt.Errorf("profile has no channel %q", name)
	}
	return p.Defaulted(), nil
}
