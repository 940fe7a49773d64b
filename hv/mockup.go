// SPDX-FileCopyrightText: 2026 Rice University HEP and caenhv contributors
// SPDX-License-Identifier: Apache-2.0

package hv

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// SimCrate is an in-memory mainframe used by the mock server and the unit
// tests. It keeps a crate map, full parameter tables with metadata, and a
// ramp engine that moves VMon toward V0Set at the configured ramp rates
// while a channel is powered.
type SimCrate struct {
	Username string
	Password string

	// TimeScale accelerates the ramp engine; tests set it high so that
	// ramps complete in milliseconds.
	TimeScale float64

	mu       sync.RWMutex
	boards   []*simBoard
	sysProps map[string]*simSysProp
	sysOrder []string

	subSys map[string]struct{}
	subBd  map[string]struct{}
	subCh  map[string]struct{}
	events []Event
}

type simBoard struct {
	board    Board
	params   map[string]*simParam
	order    []string
	channels []*simChannel
}

type simChannel struct {
	params map[string]*simParam
	order  []string
	// notOperational freezes the channel: Status reads the 0xFF sentinel
	// and the ramp engine leaves it alone.
	notOperational bool
}

type simParam struct {
	prop  ParamProp
	value float64
}

type simSysProp struct {
	info  SysPropInfo
	value any
}

const (
	simSlots        = 16
	simSWRelease    = "4.22.05"
	simLoadMegaOhm  = 10.0
	simRampInterval = 25 * time.Millisecond
)

// NewSimCrate builds a crate with the default board population: a 24-channel
// A1535 in slot 4 and a 12-channel A1561H in slot 5.
func NewSimCrate() *SimCrate {
	s := &SimCrate{
		Username:  "admin",
		Password:  "rice2024",
		TimeScale: 1,
		boards:    make([]*simBoard, simSlots),
		sysProps:  map[string]*simSysProp{},
		subSys:    map[string]struct{}{},
		subBd:     map[string]struct{}{},
		subCh:     map[string]struct{}{},
	}
	s.addSysProp("ModelName", SysPropInfo{Type: SysPropTypeStr, Mode: SysPropModeRdOnly}, "SY4527")
	s.addSysProp("SwRelease", SysPropInfo{Type: SysPropTypeStr, Mode: SysPropModeRdOnly}, simSWRelease)
	s.addSysProp("CrateName", SysPropInfo{Type: SysPropTypeStr, Mode: SysPropModeRdWr}, "sim-crate")
	s.addSysProp("HvPwSM", SysPropInfo{Type: SysPropTypeStr, Mode: SysPropModeRdOnly}, "On")
	s.addSysProp("FanSpeed", SysPropInfo{Type: SysPropTypeReal, Mode: SysPropModeRdOnly}, 1850.0)
	s.boards[4] = newSimBoard(Board{
		Model:           "A1535",
		Description:     "24 Ch Neg. 3.5KV 3mA",
		SerialNumber:    271,
		FirmwareRelease: "1.03",
		NChannel:        24,
	}, 3500, 3000)
	s.boards[5] = newSimBoard(Board{
		Model:           "A1561H",
		Description:     "12 Ch Pos. 6KV 20uA",
		SerialNumber:    118,
		FirmwareRelease: "2.10",
		NChannel:        12,
	}, 6000, 20)
	return s
}

func (s *SimCrate) addSysProp(name string, info SysPropInfo, value any) {
	s.sysProps[name] = &simSysProp{info: info, value: value}
	s.sysOrder = append(s.sysOrder, name)
}

func newSimBoard(b Board, vmax, imax float64) *simBoard {
	board := &simBoard{
		board:  b,
		params: map[string]*simParam{},
	}
	addParam := func(name string, p *simParam) {
		board.params[name] = p
		board.order = append(board.order, name)
	}
	addParam(BdParamBdStatus, &simParam{prop: ParamProp{Type: ParamTypeBdStatus, Mode: ParamModeRdOnly}})
	addParam(BdParamTemp, &simParam{
		prop:  ParamProp{Type: ParamTypeNumeric, Mode: ParamModeRdOnly, Unit: "C", Max: 100},
		value: 31.5,
	})
	addParam(BdParamHVMax, &simParam{
		prop:  ParamProp{Type: ParamTypeNumeric, Mode: ParamModeRdOnly, Unit: "V", Max: vmax},
		value: vmax,
	})
	for i := 0; i < b.NChannel; i++ {
		board.channels = append(board.channels, newSimChannel(vmax, imax))
	}
	return board
}

func newSimChannel(vmax, imax float64) *simChannel {
	ch := &simChannel{params: map[string]*simParam{}}
	numeric := func(unit string, max, value float64, mode ParamMode) *simParam {
		return &simParam{prop: ParamProp{Type: ParamTypeNumeric, Mode: mode, Unit: unit, Max: max}, value: value}
	}
	onOff := func(value float64) *simParam {
		return &simParam{
			prop:  ParamProp{Type: ParamTypeOnOff, Mode: ParamModeRdWr, OnState: "On", OffState: "Off"},
			value: value,
		}
	}
	add := func(name string, p *simParam) {
		ch.params[name] = p
		ch.order = append(ch.order, name)
	}
	add(ParamV0Set, numeric("V", vmax, 0, ParamModeRdWr))
	add(ParamI0Set, numeric("uA", imax, imax, ParamModeRdWr))
	add(ParamV1Set, numeric("V", vmax, 0, ParamModeRdWr))
	add(ParamI1Set, numeric("uA", imax, imax, ParamModeRdWr))
	add(ParamRUp, numeric("V/s", 500, 20, ParamModeRdWr))
	add(ParamRDWn, numeric("V/s", 500, 20, ParamModeRdWr))
	add(ParamTrip, numeric("s", 1000, 10, ParamModeRdWr))
	add(ParamSVMax, numeric("V", vmax, vmax, ParamModeRdWr))
	add(ParamVMon, numeric("V", vmax, 0, ParamModeRdOnly))
	add(ParamIMon, numeric("uA", imax, 0, ParamModeRdOnly))
	add(ParamStatus, &simParam{prop: ParamProp{Type: ParamTypeChStatus, Mode: ParamModeRdOnly}})
	add(ParamPw, onOff(0))
	add(ParamPOn, onOff(0))
	add(ParamPDwn, onOff(0))
	add(ParamImRange, &simParam{
		prop: ParamProp{Type: ParamTypeEnum, Mode: ParamModeRdWr, EnumValues: []string{"High", "Low"}},
	})
	add(ParamZCDetect, onOff(1))
	// ZCAdjust triggers a zero-crossing recalibration; the crate never
	// reads it back.
	add(ParamZCAdjust, &simParam{
		prop: ParamProp{Type: ParamTypeOnOff, Mode: ParamModeWrOnly, OnState: "On", OffState: "Off"},
	})
	add(ParamTemp, numeric("C", 100, 29.0, ParamModeRdOnly))
	return ch
}

// SWRelease reports the simulated wrapper library release.
func (s *SimCrate) SWRelease() string { return simSWRelease }

// Login checks the session credentials.
func (s *SimCrate) Login(username, password string) *Error {
	if username != s.Username || password != s.Password {
		return newError(CodeLoginFailed, "invalid credentials for user %q", username)
	}
	return nil
}

// Run drives the ramp engine until the context is canceled.
func (s *SimCrate) Run(ctx context.Context) {
	ticker := time.NewTicker(simRampInterval)
	defer ticker.Stop()
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.step(now.Sub(last).Seconds() * s.TimeScale)
			last = now
		}
	}
}

// step advances every powered channel by dt seconds.
func (s *SimCrate) step(dt float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for slot, board := range s.boards {
		if board == nil {
			continue
		}
		for chNum, ch := range board.channels {
			s.stepChannel(slot, chNum, ch, dt)
		}
	}
}

func (s *SimCrate) stepChannel(slot, chNum int, ch *simChannel, dt float64) {
	if ch.notOperational {
		return
	}
	pw := ch.params[ParamPw].value != 0
	vmon := ch.params[ParamVMon].value
	target := 0.0
	if pw {
		target = ch.params[ParamV0Set].value
	}

	var status ChannelStatus
	if pw {
		status |= ChannelOn
	}
	switch {
	case vmon < target:
		rate := ch.params[ParamRUp].value
		vmon += rate * dt
		if vmon >= target {
			vmon = target
		} else {
			status |= ChannelRampUp
		}
	case vmon > target:
		rate := ch.params[ParamRDWn].value
		vmon -= rate * dt
		if vmon <= target {
			vmon = target
		} else if pw {
			status |= ChannelRampDown
		}
	}
	if vmon < 0 {
		vmon = 0
	}

	imon := vmon / simLoadMegaOhm // uA across the simulated load
	if imon > ch.params[ParamI0Set].value {
		status |= ChannelOverCurrent
	}

	s.setChannelValue(slot, chNum, ch, ParamVMon, vmon)
	s.setChannelValue(slot, chNum, ch, ParamIMon, imon)
	s.setChannelValue(slot, chNum, ch, ParamStatus, float64(status))
}

// setChannelValue updates a parameter and queues an event when subscribed.
// Callers hold the write lock.
func (s *SimCrate) setChannelValue(slot, chNum int, ch *simChannel, name string, value float64) {
	p := ch.params[name]
	if p.value == value {
		return
	}
	p.value = value
	if _, ok := s.subCh[chParamKey(slot, chNum, name)]; ok {
		s.events = append(s.events, Event{
			Scope:     EventScopeChannel,
			Slot:      slot,
			Channel:   chNum,
			Param:     name,
			Value:     value,
			Timestamp: time.Now(),
		})
	}
}

func chParamKey(slot, ch int, param string) string {
	return fmt.Sprintf("%d/%d/%s", slot, ch, param)
}

func bdParamKey(slot int, param string) string {
	return fmt.Sprintf("%d/%s", slot, param)
}

// CrateMap returns a copy of the crate map; empty slots are nil.
func (s *SimCrate) CrateMap() []*Board {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Board, len(s.boards))
	for i, b := range s.boards {
		if b != nil {
			board := b.board
			out[i] = &board
		}
	}
	return out
}

func (s *SimCrate) SysPropList() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.sysOrder...)
}

func (s *SimCrate) SysPropInfo(name string) (SysPropInfo, *Error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	prop, ok := s.sysProps[name]
	if !ok {
		return SysPropInfo{}, newError(CodePropNotFound, "system property %q not found", name)
	}
	return prop.info, nil
}

func (s *SimCrate) GetSysProp(name string) (any, *Error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	prop, ok := s.sysProps[name]
	if !ok {
		return nil, newError(CodePropNotFound, "system property %q not found", name)
	}
	if prop.info.Mode == SysPropModeWrOnly {
		return nil, newError(CodeReadErr, "system property %q is write only", name)
	}
	return prop.value, nil
}

func (s *SimCrate) SetSysProp(name string, value any) *Error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prop, ok := s.sysProps[name]
	if !ok {
		return newError(CodePropNotFound, "system property %q not found", name)
	}
	if prop.info.Mode == SysPropModeRdOnly {
		return newError(CodeWriteErr, "system property %q is read only", name)
	}
	prop.value = value
	if _, subscribed := s.subSys[name]; subscribed {
		s.events = append(s.events, Event{
			Scope:     EventScopeSystem,
			Param:     name,
			Value:     value,
			Timestamp: time.Now(),
		})
	}
	return nil
}

func (s *SimCrate) slotBoard(slot int) (*simBoard, *Error) {
	if slot < 0 || slot >= len(s.boards) {
		return nil, newError(CodeSlotNotPresent, "slot %d out of range", slot)
	}
	board := s.boards[slot]
	if board == nil {
		return nil, newError(CodeSlotNotPresent, "slot %d is empty", slot)
	}
	return board, nil
}

func (s *SimCrate) BdParamList(slot int) ([]string, *Error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	board, err := s.slotBoard(slot)
	if err != nil {
		return nil, err
	}
	return append([]string(nil), board.order...), nil
}

func (s *SimCrate) BdParamProp(slot int, param string) (ParamProp, *Error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	board, err := s.slotBoard(slot)
	if err != nil {
		return ParamProp{}, err
	}
	p, ok := board.params[param]
	if !ok {
		return ParamProp{}, newError(CodeParamNotFound, "board param %q not found in slot %d", param, slot)
	}
	return p.prop, nil
}

func (s *SimCrate) GetBdParam(slots []int, param string) ([]any, *Error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]any, 0, len(slots))
	for _, slot := range slots {
		board, err := s.slotBoard(slot)
		if err != nil {
			return nil, err
		}
		p, ok := board.params[param]
		if !ok {
			return nil, newError(CodeParamNotFound, "board param %q not found in slot %d", param, slot)
		}
		if !p.prop.Mode.Readable() {
			return nil, newError(CodeReadErr, "board param %q is write only", param)
		}
		out = append(out, p.value)
	}
	return out, nil
}

func (s *SimCrate) SetBdParam(slots []int, param string, value any) *Error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, slot := range slots {
		board, err := s.slotBoard(slot)
		if err != nil {
			return err
		}
		p, ok := board.params[param]
		if !ok {
			return newError(CodeParamNotFound, "board param %q not found in slot %d", param, slot)
		}
		val, err := s.checkWrite(p, param, value)
		if err != nil {
			return err
		}
		p.value = val
		if _, subscribed := s.subBd[bdParamKey(slot, param)]; subscribed {
			s.events = append(s.events, Event{
				Scope:     EventScopeBoard,
				Slot:      slot,
				Param:     param,
				Value:     val,
				Timestamp: time.Now(),
			})
		}
	}
	return nil
}

func (s *SimCrate) slotChannel(slot, ch int) (*simChannel, *Error) {
	board, err := s.slotBoard(slot)
	if err != nil {
		return nil, err
	}
	if ch < 0 || ch >= len(board.channels) {
		return nil, newError(CodeNotPresent, "channel %d not present in slot %d", ch, slot)
	}
	return board.channels[ch], nil
}

func (s *SimCrate) ChParamList(slot, ch int) ([]string, *Error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	channel, err := s.slotChannel(slot, ch)
	if err != nil {
		return nil, err
	}
	return append([]string(nil), channel.order...), nil
}

func (s *SimCrate) ChParamProp(slot, ch int, param string) (ParamProp, *Error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	channel, err := s.slotChannel(slot, ch)
	if err != nil {
		return ParamProp{}, err
	}
	p, ok := channel.params[param]
	if !ok {
		return ParamProp{}, newError(CodeParamNotFound, "channel param %q not found in slot %d ch %d", param, slot, ch)
	}
	return p.prop, nil
}

func (s *SimCrate) GetChParam(slot int, chs []int, param string) ([]any, *Error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]any, 0, len(chs))
	for _, ch := range chs {
		channel, err := s.slotChannel(slot, ch)
		if err != nil {
			return nil, err
		}
		p, ok := channel.params[param]
		if !ok {
			return nil, newError(CodeParamNotFound, "channel param %q not found in slot %d ch %d", param, slot, ch)
		}
		if !p.prop.Mode.Readable() {
			return nil, newError(CodeReadErr, "channel param %q is write only", param)
		}
		out = append(out, p.value)
	}
	return out, nil
}

func (s *SimCrate) SetChParam(slot int, chs []int, param string, value any) *Error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range chs {
		channel, err := s.slotChannel(slot, ch)
		if err != nil {
			return err
		}
		p, ok := channel.params[param]
		if !ok {
			return newError(CodeParamNotFound, "channel param %q not found in slot %d ch %d", param, slot, ch)
		}
		val, err := s.checkWrite(p, param, value)
		if err != nil {
			return err
		}
		s.setChannelValue(slot, ch, channel, param, val)
		// Status must reflect Pw and set-point writes on the next read,
		// not on the next ramp tick.
		if param == ParamPw || param == ParamV0Set {
			s.stepChannel(slot, ch, channel, 0)
		}
	}
	return nil
}

// SetNotOperational takes a channel out of its operating state: Status
// reads the 0xFF sentinel until the crate is power-cycled.
func (s *SimCrate) SetNotOperational(slot, ch int) *Error {
	s.mu.Lock()
	defer s.mu.Unlock()
	channel, err := s.slotChannel(slot, ch)
	if err != nil {
		return err
	}
	channel.params[ParamStatus].value = float64(ChannelNotOperational)
	channel.notOperational = true
	return nil
}

// checkWrite validates mode and range and normalizes the value to float64.
func (s *SimCrate) checkWrite(p *simParam, param string, value any) (float64, *Error) {
	if !p.prop.Mode.Writable() {
		return 0, newError(CodeWriteErr, "param %q is read only", param)
	}
	if name, ok := value.(string); ok && p.prop.Type == ParamTypeEnum {
		for i, enum := range p.prop.EnumValues {
			if enum == name {
				return float64(i), nil
			}
		}
		return 0, newError(CodeOutOfRange, "param %q value %q not in %v", param, name, p.prop.EnumValues)
	}
	val, err := AsFloat64(value)
	if err != nil {
		return 0, newError(CodeWriteErr, "param %q: %v", param, err)
	}
	if p.prop.Type == ParamTypeEnum && (val < 0 || int(val) >= len(p.prop.EnumValues)) {
		return 0, newError(CodeOutOfRange, "param %q index %v not in %v", param, val, p.prop.EnumValues)
	}
	if p.prop.Type == ParamTypeNumeric && (val < p.prop.Min || (p.prop.Max > 0 && val > p.prop.Max)) {
		return 0, newError(CodeOutOfRange, "param %q value %v outside [%v, %v]", param, val, p.prop.Min, p.prop.Max)
	}
	if p.prop.Type == ParamTypeOnOff && val != 0 {
		val = 1
	}
	return val, nil
}

// Simulated mainframe commands.
var simExecComms = []string{"ClearAlarm", "Format", "Reboot", "Shutdown"}

func (s *SimCrate) ExecCommList() []string {
	return append([]string(nil), simExecComms...)
}

func (s *SimCrate) ExecComm(name string) *Error {
	for _, c := range simExecComms {
		if c == name {
			return nil
		}
	}
	return newError(CodeExecComNotImpl, "command %q not implemented", name)
}

func (s *SimCrate) SubscribeSystemParams(params []string) *Error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range params {
		if _, ok := s.sysProps[p]; !ok {
			return newError(CodePropNotFound, "system property %q not found", p)
		}
		s.subSys[p] = struct{}{}
	}
	return nil
}

func (s *SimCrate) SubscribeBoardParams(slot int, params []string) *Error {
	s.mu.Lock()
	defer s.mu.Unlock()
	board, err := s.slotBoard(slot)
	if err != nil {
		return err
	}
	for _, p := range params {
		if _, ok := board.params[p]; !ok {
			return newError(CodeParamNotFound, "board param %q not found in slot %d", p, slot)
		}
		s.subBd[bdParamKey(slot, p)] = struct{}{}
	}
	return nil
}

func (s *SimCrate) SubscribeChannelParams(slot, ch int, params []string) *Error {
	s.mu.Lock()
	defer s.mu.Unlock()
	channel, err := s.slotChannel(slot, ch)
	if err != nil {
		return err
	}
	for _, p := range params {
		if _, ok := channel.params[p]; !ok {
			return newError(CodeParamNotFound, "channel param %q not found in slot %d ch %d", p, slot, ch)
		}
		s.subCh[chParamKey(slot, ch, p)] = struct{}{}
	}
	return nil
}

// EventData drains the queued change events.
func (s *SimCrate) EventData() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	events := s.events
	s.events = nil
	return events
}
