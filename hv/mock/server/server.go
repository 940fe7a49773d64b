// SPDX-FileCopyrightText: 2026 Rice University HEP and caenhv contributors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/rice-hep/caenhv/hv"
)

// MockServer exposes a SimCrate over the crate wire protocol so that
// clients and demos can run without hardware.
type MockServer struct {
	log   logr.Logger
	addr  string
	crate *hv.SimCrate

	mu       sync.Mutex
	listener net.Listener
}

func NewMockServer(log logr.Logger, addr string, crate *hv.SimCrate) *MockServer {
	if crate == nil {
		crate = hv.NewSimCrate()
	}
	return &MockServer{
		log:   log,
		addr:  addr,
		crate: crate,
	}
}

// Crate exposes the simulated mainframe, mostly for tests.
func (s *MockServer) Crate() *hv.SimCrate { return s.crate }

// Addr returns the bound listen address once Start has been called.
func (s *MockServer) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

// Listen binds the listen socket without serving yet, so that callers can
// read the bound address before connecting.
func (s *MockServer) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return nil
	}
	l, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = l
	return nil
}

// Start serves connections and the ramp engine until ctx is canceled.
func (s *MockServer) Start(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	s.mu.Lock()
	listener := s.listener
	s.mu.Unlock()

	go s.crate.Run(ctx)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			conn, err := listener.Accept()
			if err != nil {
				if !errors.Is(err, net.ErrClosed) {
					s.log.Error(err, "Accept failed")
				}
				return
			}
			go s.serveConn(ctx, conn)
		}
	}()

	s.log.Info("Started mock crate server", "address", listener.Addr().String())
	<-ctx.Done()
	s.log.Info("Shutting down mock crate server")
	if err := listener.Close(); err != nil {
		s.log.Error(err, "Listener close failed")
	}
	select {
	case <-done:
	case <-time.After(250 * time.Millisecond):
	}
	return nil
}

// serveConn handles one client session: a login frame followed by
// request/response frames, one JSON document per line.
func (s *MockServer) serveConn(ctx context.Context, conn net.Conn) {
	defer func() {
		if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			s.log.Error(err, "Failed to close connection")
		}
	}()

	log := s.log.WithValues("remote", conn.RemoteAddr().String())
	reader := bufio.NewReader(conn)
	writer := bufio.NewWriter(conn)
	loggedIn := false

	for ctx.Err() == nil {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			return
		}
		req := &hv.Request{}
		if err := json.Unmarshal(line, req); err != nil {
			log.Error(err, "Dropping malformed frame")
			return
		}
		if req.Op == hv.OpLogout {
			return
		}

		resp := s.handle(req, &loggedIn)
		resp.ID = req.ID
		payload, err := json.Marshal(resp)
		if err != nil {
			log.Error(err, "Failed to encode response", "op", req.Op)
			return
		}
		payload = append(payload, '\n')
		if _, err := writer.Write(payload); err != nil {
			return
		}
		if err := writer.Flush(); err != nil {
			return
		}
	}
}

func errResponse(err *hv.Error) *hv.Response {
	return &hv.Response{Code: err.Code, Message: err.Message}
}

func (s *MockServer) handle(req *hv.Request, loggedIn *bool) *hv.Response {
	if req.Op == hv.OpLogin {
		if err := s.crate.Login(req.Username, req.Password); err != nil {
			return errResponse(err)
		}
		*loggedIn = true
		return &hv.Response{SWRelease: s.crate.SWRelease()}
	}
	if !*loggedIn {
		return &hv.Response{Code: hv.CodeLoginFailed, Message: "session is not logged in"}
	}

	switch req.Op {
	case hv.OpCrateMap:
		return &hv.Response{Boards: s.crate.CrateMap()}
	case hv.OpSysPropList:
		return &hv.Response{Names: s.crate.SysPropList()}
	case hv.OpSysPropInfo:
		info, err := s.crate.SysPropInfo(req.Param)
		if err != nil {
			return errResponse(err)
		}
		return &hv.Response{PropInfo: &info}
	case hv.OpGetSysProp:
		value, err := s.crate.GetSysProp(req.Param)
		if err != nil {
			return errResponse(err)
		}
		return &hv.Response{Values: []any{value}}
	case hv.OpSetSysProp:
		if err := s.crate.SetSysProp(req.Param, req.Value); err != nil {
			return errResponse(err)
		}
		return &hv.Response{}
	case hv.OpBdParamList:
		names, err := s.crate.BdParamList(req.Slot)
		if err != nil {
			return errResponse(err)
		}
		return &hv.Response{Names: names}
	case hv.OpBdParamProp:
		prop, err := s.crate.BdParamProp(req.Slot, req.Param)
		if err != nil {
			return errResponse(err)
		}
		return &hv.Response{Prop: &prop}
	case hv.OpGetBdParam:
		values, err := s.crate.GetBdParam(req.Slots, req.Param)
		if err != nil {
			return errResponse(err)
		}
		return &hv.Response{Values: values}
	case hv.OpSetBdParam:
		if err := s.crate.SetBdParam(req.Slots, req.Param, req.Value); err != nil {
			return errResponse(err)
		}
		return &hv.Response{}
	case hv.OpChParamList:
		names, err := s.crate.ChParamList(req.Slot, req.Channel)
		if err != nil {
			return errResponse(err)
		}
		return &hv.Response{Names: names}
	case hv.OpChParamProp:
		prop, err := s.crate.ChParamProp(req.Slot, req.Channel, req.Param)
		if err != nil {
			return errResponse(err)
		}
		return &hv.Response{Prop: &prop}
	case hv.OpGetChParam:
		values, err := s.crate.GetChParam(req.Slot, req.Channels, req.Param)
		if err != nil {
			return errResponse(err)
		}
		return &hv.Response{Values: values}
	case hv.OpSetChParam:
		if err := s.crate.SetChParam(req.Slot, req.Channels, req.Param, req.Value); err != nil {
			return errResponse(err)
		}
		return &hv.Response{}
	case hv.OpExecCommList:
		return &hv.Response{Names: s.crate.ExecCommList()}
	case hv.OpExecComm:
		if err := s.crate.ExecComm(req.Comm); err != nil {
			return errResponse(err)
		}
		return &hv.Response{}
	case hv.OpSubscribeSys:
		if err := s.crate.SubscribeSystemParams(req.Params); err != nil {
			return errResponse(err)
		}
		return &hv.Response{}
	case hv.OpSubscribeBoard:
		if err := s.crate.SubscribeBoardParams(req.Slot, req.Params); err != nil {
			return errResponse(err)
		}
		return &hv.Response{}
	case hv.OpSubscribeChannel:
		if err := s.crate.SubscribeChannelParams(req.Slot, req.Channel, req.Params); err != nil {
			return errResponse(err)
		}
		return &hv.Response{}
	case hv.OpEventData:
		return &hv.Response{Events: s.crate.EventData()}
	default:
		return &hv.Response{Code: hv.CodeSysErr, Message: fmt.Sprintf("unknown operation %q", req.Op)}
	}
}
