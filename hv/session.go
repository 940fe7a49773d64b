// SPDX-FileCopyrightText: 2025 Rice University HEP and caenhv contributors
// SPDX-License-Identifier: Apache-2.0

package hv

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// frameConn moves raw protocol frames over one link type.
type frameConn interface {
	// writeFrame sends one newline-terminated frame.
	writeFrame(frame []byte, deadline time.Time) error
	// readFrame returns the next frame without its trailing newline.
	readFrame(deadline time.Time) ([]byte, error)
	close() error
}

// wireSession implements the HV operations on top of a frameConn.
// The link-specific clients embed it.
type wireSession struct {
	options Options

	mu        sync.Mutex
	fc        frameConn
	nextID    uint64
	swRelease string
}

// login must be the first exchange of a session.
func (s *wireSession) login(ctx context.Context) error {
	resp, err := s.roundTrip(ctx, &Request{
		Op:       OpLogin,
		Username: s.options.Username,
		Password: s.options.Password,
	})
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	s.swRelease = resp.SWRelease
	return nil
}

// SWRelease reports the service software release announced at login.
func (s *wireSession) SWRelease() string { return s.swRelease }

// roundTrip sends one request frame and reads its response frame.
func (s *wireSession) roundTrip(ctx context.Context, req *Request) (*Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fc == nil {
		return nil, ErrNotConnected
	}

	s.nextID++
	req.ID = s.nextID

	deadline := time.Now().Add(s.options.RequestTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	if err := s.fc.writeFrame(append(payload, '\n'), deadline); err != nil {
		return nil, newError(CodeCommError, "failed to send %s request: %v", req.Op, err)
	}

	line, err := s.fc.readFrame(deadline)
	if err != nil {
		return nil, newError(CodeCommError, "failed to read %s response: %v", req.Op, err)
	}
	resp := &Response{}
	if err := json.Unmarshal(line, resp); err != nil {
		return nil, newError(CodeCommError, "failed to decode %s response: %v", req.Op, err)
	}
	if resp.ID != req.ID {
		return nil, newError(CodeCommError, "response id %d does not match request id %d", resp.ID, req.ID)
	}
	if err := resp.Err(); err != nil {
		return nil, err
	}
	return resp, nil
}

// Logout closes the session.
func (s *wireSession) Logout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fc == nil {
		return
	}
	s.nextID++
	if payload, err := json.Marshal(&Request{ID: s.nextID, Op: OpLogout}); err == nil {
		_ = s.fc.writeFrame(append(payload, '\n'), time.Now().Add(time.Second))
	}
	_ = s.fc.close()
	s.fc = nil
}

// CrateMap returns the boards per slot; empty slots are nil.
func (s *wireSession) CrateMap(ctx context.Context) ([]*Board, error) {
	resp, err := s.roundTrip(ctx, &Request{Op: OpCrateMap})
	if err != nil {
		return nil, fmt.Errorf("failed to get crate map: %w", err)
	}
	return resp.Boards, nil
}

func (s *wireSession) SysPropList(ctx context.Context) ([]string, error) {
	resp, err := s.roundTrip(ctx, &Request{Op: OpSysPropList})
	if err != nil {
		return nil, fmt.Errorf("failed to get system property list: %w", err)
	}
	return resp.Names, nil
}

func (s *wireSession) SysPropInfo(ctx context.Context, name string) (SysPropInfo, error) {
	resp, err := s.roundTrip(ctx, &Request{Op: OpSysPropInfo, Param: name})
	if err != nil {
		return SysPropInfo{}, fmt.Errorf("failed to get property info for %q: %w", name, err)
	}
	if resp.PropInfo == nil {
		return SysPropInfo{}, newError(CodeCommError, "missing property info for %q", name)
	}
	return *resp.PropInfo, nil
}

func (s *wireSession) SysProp(ctx context.Context, name string) (any, error) {
	resp, err := s.roundTrip(ctx, &Request{Op: OpGetSysProp, Param: name})
	if err != nil {
		return nil, fmt.Errorf("failed to get system property %q: %w", name, err)
	}
	if len(resp.Values) == 0 {
		return nil, newError(CodeCommError, "missing value for property %q", name)
	}
	return resp.Values[0], nil
}

func (s *wireSession) SetSysProp(ctx context.Context, name string, value any) error {
	if _, err := s.roundTrip(ctx, &Request{Op: OpSetSysProp, Param: name, Value: value}); err != nil {
		return fmt.Errorf("failed to set system property %q: %w", name, err)
	}
	return nil
}

func (s *wireSession) BdParamList(ctx context.Context, slot int) ([]string, error) {
	resp, err := s.roundTrip(ctx, &Request{Op: OpBdParamList, Slot: slot})
	if err != nil {
		return nil, fmt.Errorf("failed to get board params of slot %d: %w", slot, err)
	}
	return resp.Names, nil
}

func (s *wireSession) BdParamProp(ctx context.Context, slot int, param string) (ParamProp, error) {
	resp, err := s.roundTrip(ctx, &Request{Op: OpBdParamProp, Slot: slot, Param: param})
	if err != nil {
		return ParamProp{}, fmt.Errorf("failed to get board param prop %q of slot %d: %w", param, slot, err)
	}
	if resp.Prop == nil {
		return ParamProp{}, newError(CodeCommError, "missing prop for board param %q", param)
	}
	return *resp.Prop, nil
}

func (s *wireSession) BdParam(ctx context.Context, slots []int, param string) ([]any, error) {
	resp, err := s.roundTrip(ctx, &Request{Op: OpGetBdParam, Slots: slots, Param: param})
	if err != nil {
		return nil, fmt.Errorf("failed to get board param %q: %w", param, err)
	}
	return resp.Values, nil
}

func (s *wireSession) SetBdParam(ctx context.Context, slots []int, param string, value any) error {
	if _, err := s.roundTrip(ctx, &Request{Op: OpSetBdParam, Slots: slots, Param: param, Value: value}); err != nil {
		return fmt.Errorf("failed to set board param %q: %w", param, err)
	}
	return nil
}

func (s *wireSession) ChParamList(ctx context.Context, slot, ch int) ([]string, error) {
	resp, err := s.roundTrip(ctx, &Request{Op: OpChParamList, Slot: slot, Channel: ch})
	if err != nil {
		return nil, fmt.Errorf("failed to get channel params of slot %d ch %d: %w", slot, ch, err)
	}
	return resp.Names, nil
}

func (s *wireSession) ChParamProp(ctx context.Context, slot, ch int, param string) (ParamProp, error) {
	resp, err := s.roundTrip(ctx, &Request{Op: OpChParamProp, Slot: slot, Channel: ch, Param: param})
	if err != nil {
		return ParamProp{}, fmt.Errorf("failed to get channel param prop %q of slot %d ch %d: %w", param, slot, ch, err)
	}
	if resp.Prop == nil {
		return ParamProp{}, newError(CodeCommError, "missing prop for channel param %q", param)
	}
	return *resp.Prop, nil
}

func (s *wireSession) ChParam(ctx context.Context, slot int, chs []int, param string) ([]any, error) {
	resp, err := s.roundTrip(ctx, &Request{Op: OpGetChParam, Slot: slot, Channels: chs, Param: param})
	if err != nil {
		return nil, fmt.Errorf("failed to get channel param %q of slot %d: %w", param, slot, err)
	}
	return resp.Values, nil
}

func (s *wireSession) SetChParam(ctx context.Context, slot int, chs []int, param string, value any) error {
	if _, err := s.roundTrip(ctx, &Request{Op: OpSetChParam, Slot: slot, Channels: chs, Param: param, Value: value}); err != nil {
		return fmt.Errorf("failed to set channel param %q of slot %d: %w", param, slot, err)
	}
	return nil
}

func (s *wireSession) ExecCommList(ctx context.Context) ([]string, error) {
	resp, err := s.roundTrip(ctx, &Request{Op: OpExecCommList})
	if err != nil {
		return nil, fmt.Errorf("failed to get command list: %w", err)
	}
	return resp.Names, nil
}

func (s *wireSession) ExecComm(ctx context.Context, name string) error {
	if _, err := s.roundTrip(ctx, &Request{Op: OpExecComm, Comm: name}); err != nil {
		return fmt.Errorf("failed to execute command %q: %w", name, err)
	}
	return nil
}

func (s *wireSession) SubscribeSystemParams(ctx context.Context, params []string) error {
	if _, err := s.roundTrip(ctx, &Request{Op: OpSubscribeSys, Params: params}); err != nil {
		return fmt.Errorf("failed to subscribe system params: %w", err)
	}
	return nil
}

func (s *wireSession) SubscribeBoardParams(ctx context.Context, slot int, params []string) error {
	if _, err := s.roundTrip(ctx, &Request{Op: OpSubscribeBoard, Slot: slot, Params: params}); err != nil {
		return fmt.Errorf("failed to subscribe board params of slot %d: %w", slot, err)
	}
	return nil
}

func (s *wireSession) SubscribeChannelParams(ctx context.Context, slot, ch int, params []string) error {
	if _, err := s.roundTrip(ctx, &Request{Op: OpSubscribeChannel, Slot: slot, Channel: ch, Params: params}); err != nil {
		return fmt.Errorf("failed to subscribe channel params of slot %d ch %d: %w", slot, ch, err)
	}
	return nil
}

func (s *wireSession) EventData(ctx context.Context) ([]Event, error) {
	resp, err := s.roundTrip(ctx, &Request{Op: OpEventData})
	if err != nil {
		return nil, fmt.Errorf("failed to get event data: %w", err)
	}
	return resp.Events, nil
}
