// SPDX-FileCopyrightText: 2025 Rice University HEP and caenhv contributors
// SPDX-License-Identifier: Apache-2.0

package hv

import "fmt"

// ParamMode is the access mode of a parameter.
type ParamMode string

const (
	ParamModeRdOnly ParamMode = "RDONLY"
	ParamModeWrOnly ParamMode = "WRONLY"
	ParamModeRdWr   ParamMode = "RDWR"
)

// Readable reports whether the parameter can be read back.
func (m ParamMode) Readable() bool { return m != ParamModeWrOnly }

// Writable reports whether the parameter accepts writes.
func (m ParamMode) Writable() bool { return m != ParamModeRdOnly }

// ParamType is the value type of a parameter.
type ParamType string

const (
	ParamTypeNumeric  ParamType = "NUMERIC"
	ParamTypeOnOff    ParamType = "ONOFF"
	ParamTypeChStatus ParamType = "CHSTATUS"
	ParamTypeBdStatus ParamType = "BDSTATUS"
	ParamTypeBinary   ParamType = "BINARY"
	ParamTypeString   ParamType = "STRING"
	ParamTypeEnum     ParamType = "ENUM"
)

// ParamProp carries the metadata of a board or channel parameter.
type ParamProp struct {
	Type ParamType `json:"type"`
	Mode ParamMode `json:"mode"`
	// Unit and Exp apply to NUMERIC parameters: the value unit
	// (V, A, ...) and its decimal exponent (e.g. -6 for uA).
	Unit string `json:"unit,omitempty"`
	Exp  int    `json:"exp,omitempty"`
	// Min and Max bound NUMERIC writes.
	Min float64 `json:"min,omitempty"`
	Max float64 `json:"max,omitempty"`
	// OnState and OffState name the two ONOFF values.
	OnState  string `json:"onState,omitempty"`
	OffState string `json:"offState,omitempty"`
	// EnumValues lists the accepted ENUM values.
	EnumValues []string `json:"enumValues,omitempty"`
}

// SysPropMode is the access mode of a system property.
type SysPropMode string

const (
	SysPropModeRdOnly SysPropMode = "RDONLY"
	SysPropModeWrOnly SysPropMode = "WRONLY"
	SysPropModeRdWr   SysPropMode = "RDWR"
)

// SysPropType is the value type of a system property.
type SysPropType string

const (
	SysPropTypeStr     SysPropType = "STR"
	SysPropTypeReal    SysPropType = "REAL"
	SysPropTypeUint2   SysPropType = "UINT2"
	SysPropTypeUint4   SysPropType = "UINT4"
	SysPropTypeInt2    SysPropType = "INT2"
	SysPropTypeInt4    SysPropType = "INT4"
	SysPropTypeBoolean SysPropType = "BOOLEAN"
)

// SysPropInfo carries the metadata of a system property.
type SysPropInfo struct {
	Type SysPropType `json:"type"`
	Mode SysPropMode `json:"mode"`
}

// ChannelStatus is the bit field reported by the Status channel parameter.
type ChannelStatus uint16

const (
	ChannelOn ChannelStatus = 1 << iota
	ChannelRampUp
	ChannelRampDown
	ChannelOverCurrent
	ChannelOverVoltage
	ChannelUnderVoltage
	ChannelExternalTrip
	ChannelMaxV
	ChannelExternalDisable
	ChannelInternalTrip
	ChannelCalibrationError
	ChannelUnplugged
)

// ChannelNotOperational is the sentinel Status value of a channel that is
// not in an operating state.
const ChannelNotOperational ChannelStatus = 0xFF

// IsOn reports whether the channel output is enabled.
func (s ChannelStatus) IsOn() bool { return s&ChannelOn != 0 }

// Ramping reports whether the channel is moving toward its set point.
func (s ChannelStatus) Ramping() bool {
	return s&(ChannelRampUp|ChannelRampDown) != 0
}

// Tripped reports whether a protection condition fired.
func (s ChannelStatus) Tripped() bool {
	return s&(ChannelOverCurrent|ChannelOverVoltage|ChannelExternalTrip|ChannelInternalTrip) != 0
}

func (s ChannelStatus) String() string {
	if s == ChannelNotOperational {
		return "NotOperational"
	}
	names := []struct {
		bit  ChannelStatus
		name string
	}{
		{ChannelOn, "On"},
		{ChannelRampUp, "RUp"},
		{ChannelRampDown, "RDwn"},
		{ChannelOverCurrent, "OvC"},
		{ChannelOverVoltage, "OvV"},
		{ChannelUnderVoltage, "UnV"},
		{ChannelExternalTrip, "ExtTrip"},
		{ChannelMaxV, "MaxV"},
		{ChannelExternalDisable, "ExtDis"},
		{ChannelInternalTrip, "IntTrip"},
		{ChannelCalibrationError, "CalErr"},
		{ChannelUnplugged, "Unplugged"},
	}
	out := ""
	for _, n := range names {
		if s&n.bit != 0 {
			if out != "" {
				out += "|"
			}
			out += n.name
		}
	}
	if out == "" {
		return "Off"
	}
	return out
}

// Standard channel parameter names, see CAEN UM2463.
const (
	ParamV0Set    = "V0Set"
	ParamI0Set    = "I0Set"
	ParamV1Set    = "V1Set"
	ParamI1Set    = "I1Set"
	ParamRUp      = "RUp"
	ParamRDWn     = "RDWn"
	ParamTrip     = "Trip"
	ParamSVMax    = "SVMax"
	ParamVMon     = "VMon"
	ParamIMon     = "IMon"
	ParamStatus   = "Status"
	ParamPw       = "Pw"
	ParamPOn      = "POn"
	ParamPDwn     = "PDwn"
	ParamImRange  = "ImRange"
	ParamZCDetect = "ZCDetect"
	ParamZCAdjust = "ZCAdjust"
	ParamTemp     = "Temp"
)

// Standard board parameter names.
const (
	BdParamBdStatus = "BdStatus"
	BdParamTemp     = "Temp"
	BdParamHVMax    = "HVMax"
)

// AsFloat64 converts a parameter value read off the wire to float64.
func AsFloat64(v any) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case int:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case uint16:
		return float64(t), nil
	case bool:
		if t {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("value %v of type %T is not numeric", v, v)
	}
}

// AsBool converts a parameter value read off the wire to bool.
func AsBool(v any) (bool, error) {
	switch t := v.(type) {
	case bool:
		return t, nil
	case float64:
		return t != 0, nil
	case int:
		return t != 0, nil
	default:
		return false, fmt.Errorf("value %v of type %T is not a power state", v, v)
	}
}

// AsStatus converts a Status parameter value read off the wire.
func AsStatus(v any) (ChannelStatus, error) {
	f, err := AsFloat64(v)
	if err != nil {
		return 0, fmt.Errorf("invalid status value: %w", err)
	}
	return ChannelStatus(uint16(f)), nil
}
