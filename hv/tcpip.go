// SPDX-FileCopyrightText: 2025 Rice University HEP and caenhv contributors
// SPDX-License-Identifier: Apache-2.0

package hv

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
)

var _ HV = (*TCPIPHV)(nil)

// TCPIPHV is an implementation of the HV interface for the TCPIP link.
type TCPIPHV struct {
	wireSession
}

const (
	connectAttempts = 3
	connectBackoff  = 500 * time.Millisecond
)

// NewTCPIPHVClient opens a session to the crate TCP service and logs in.
func NewTCPIPHVClient(ctx context.Context, options Options) (*TCPIPHV, error) {
	options.applyDefaults()
	addr := options.Address
	if !strings.Contains(addr, ":") {
		addr = fmt.Sprintf("%s:%d", addr, DefaultTCPPort)
	}

	var conn net.Conn
	err := retry.Do(
		func() error {
			dialer := net.Dialer{Timeout: options.DialTimeout}
			c, err := dialer.DialContext(ctx, "tcp", addr)
			if err != nil {
				return err
			}
			conn = c
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(connectAttempts),
		retry.Delay(connectBackoff),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, newError(CodeDown, "failed to connect to %s: %v", addr, err)
	}

	client := &TCPIPHV{wireSession{
		options: options,
		fc:      &tcpFrameConn{conn: conn, reader: bufio.NewReader(conn)},
	}}
	if err := client.login(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return client, nil
}

type tcpFrameConn struct {
	conn   net.Conn
	reader *bufio.Reader
}

func (c *tcpFrameConn) writeFrame(frame []byte, deadline time.Time) error {
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	_, err := c.conn.Write(frame)
	return err
}

func (c *tcpFrameConn) readFrame(deadline time.Time) ([]byte, error) {
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return nil, err
	}
	line, err := c.reader.ReadBytes('\n')
	if err != nil {
		return nil, err
	}
	return line[:len(line)-1], nil
}

func (c *tcpFrameConn) close() error {
	return c.conn.Close()
}
