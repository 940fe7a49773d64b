// SPDX-FileCopyrightText: 2025 Rice University HEP and caenhv contributors
// SPDX-License-Identifier: Apache-2.0

package hv

// Wire protocol of the crate service: newline-delimited JSON frames, one
// Request per line answered by exactly one Response. The first frame of a
// session must be OpLogin.

// Op names a wire operation.
type Op string

const (
	OpLogin            Op = "login"
	OpCrateMap         Op = "crateMap"
	OpSysPropList      Op = "sysPropList"
	OpSysPropInfo      Op = "sysPropInfo"
	OpGetSysProp       Op = "getSysProp"
	OpSetSysProp       Op = "setSysProp"
	OpBdParamList      Op = "bdParamList"
	OpBdParamProp      Op = "bdParamProp"
	OpGetBdParam       Op = "getBdParam"
	OpSetBdParam       Op = "setBdParam"
	OpChParamList      Op = "chParamList"
	OpChParamProp      Op = "chParamProp"
	OpGetChParam       Op = "getChParam"
	OpSetChParam       Op = "setChParam"
	OpExecCommList     Op = "execCommList"
	OpExecComm         Op = "execComm"
	OpSubscribeSys     Op = "subscribeSys"
	OpSubscribeBoard   Op = "subscribeBoard"
	OpSubscribeChannel Op = "subscribeChannel"
	OpEventData        Op = "eventData"
	OpLogout           Op = "logout"
)

// Request is one client frame.
type Request struct {
	ID       uint64 `json:"id"`
	Op       Op     `json:"op"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`

	Slot     int      `json:"slot,omitempty"`
	Slots    []int    `json:"slots,omitempty"`
	Channel  int      `json:"channel,omitempty"`
	Channels []int    `json:"channels,omitempty"`
	Param    string   `json:"param,omitempty"`
	Value    any      `json:"value,omitempty"`
	Comm     string   `json:"comm,omitempty"`
	Params   []string `json:"params,omitempty"`
}

// Response is one server frame. Code is an ErrorCode; zero means success.
type Response struct {
	ID      uint64    `json:"id"`
	Code    ErrorCode `json:"code"`
	Message string    `json:"message,omitempty"`

	Boards    []*Board     `json:"boards,omitempty"`
	Names     []string     `json:"names,omitempty"`
	Values    []any        `json:"values,omitempty"`
	Prop      *ParamProp   `json:"prop,omitempty"`
	PropInfo  *SysPropInfo `json:"propInfo,omitempty"`
	Events    []Event      `json:"events,omitempty"`
	SWRelease string       `json:"swRelease,omitempty"`
}

// Err converts a non-zero response code to an *Error.
func (r *Response) Err() error {
	if r.Code == CodeOk {
		return nil
	}
	return &Error{Code: r.Code, Message: r.Message}
}
