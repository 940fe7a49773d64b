// SPDX-FileCopyrightText: 2025 Rice University HEP and caenhv contributors
// SPDX-License-Identifier: Apache-2.0

package hv

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gotmc/libusb"
)

var _ HV = (*USBHV)(nil)

// USBHV is an implementation of the HV interface for the USB link. It moves
// the same wire frames as the TCPIP link through vendor control transfers.
type USBHV struct {
	wireSession
}

const (
	usbVendorRequestOut = 0x40
	usbVendorRequestIn  = 0xC0
	usbFrameRequest     = 0x01
	usbChunkSize        = 64
)

// parseUSBAddress splits the vid:pid connection argument.
func parseUSBAddress(address string) (uint16, uint16, error) {
	parts := strings.Split(address, ":")
	if len(parts) < 2 {
		return 0, 0, fmt.Errorf("USB address %q must be vid:pid", address)
	}
	vid, err := strconv.ParseUint(strings.TrimPrefix(parts[0], "0x"), 16, 16)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid vendor id %q: %w", parts[0], err)
	}
	pid, err := strconv.ParseUint(strings.TrimPrefix(parts[1], "0x"), 16, 16)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid product id %q: %w", parts[1], err)
	}
	return uint16(vid), uint16(pid), nil
}

// NewUSBHVClient opens a session to a mainframe attached over USB.
func NewUSBHVClient(ctx context.Context, options Options) (*USBHV, error) {
	options.applyDefaults()
	vid, pid, err := parseUSBAddress(options.Address)
	if err != nil {
		return nil, err
	}

	usb, err := libusb.NewContext()
	if err != nil {
		return nil, newError(CodeDown, "failed to init USB context: %v", err)
	}
	_, handle, err := usb.OpenDeviceWithVendorProduct(vid, pid)
	if err != nil {
		usb.Close()
		return nil, newError(CodeDown, "failed to open USB device %04x:%04x: %v", vid, pid, err)
	}

	client := &USBHV{wireSession{
		options: options,
		fc:      &usbFrameConn{usb: usb, handle: handle},
	}}
	if err := client.login(ctx); err != nil {
		handle.Close()
		usb.Close()
		return nil, err
	}
	return client, nil
}

type usbFrameConn struct {
	usb    *libusb.Context
	handle *libusb.DeviceHandle
	buf    bytes.Buffer
}

func transferTimeout(deadline time.Time) int {
	ms := int(time.Until(deadline).Milliseconds())
	if ms < 1 {
		ms = 1
	}
	return ms
}

func (c *usbFrameConn) writeFrame(frame []byte, deadline time.Time) error {
	for off := 0; off < len(frame); off += usbChunkSize {
		end := off + usbChunkSize
		if end > len(frame) {
			end = len(frame)
		}
		chunk := frame[off:end]
		if _, err := c.handle.ControlTransfer(
			usbVendorRequestOut, usbFrameRequest, 0, 0,
			chunk, len(chunk), transferTimeout(deadline),
		); err != nil {
			return err
		}
	}
	return nil
}

func (c *usbFrameConn) readFrame(deadline time.Time) ([]byte, error) {
	for {
		if line, ok := c.takeLine(); ok {
			return line, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("USB response timeout")
		}
		chunk := make([]byte, usbChunkSize)
		n, err := c.handle.ControlTransfer(
			usbVendorRequestIn, usbFrameRequest, 0, 0,
			chunk, len(chunk), transferTimeout(deadline),
		)
		if err != nil {
			return nil, err
		}
		c.buf.Write(chunk[:n])
	}
}

// takeLine pops one newline-terminated frame from the receive buffer.
func (c *usbFrameConn) takeLine() ([]byte, bool) {
	data := c.buf.Bytes()
	idx := bytes.IndexByte(data, '\n')
	if idx < 0 {
		return nil, false
	}
	line := make([]byte, idx)
	copy(line, data[:idx])
	c.buf.Next(idx + 1)
	return line, true
}

func (c *usbFrameConn) close() error {
	c.handle.Close()
	c.usb.Close()
	return nil
}
