// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dfu

import (
	"errors"
	"fmt"
	"time"

	"github.com/embeddedgo/maple/mapletool/internal/device"
	usb "github.com/google/gousb"
	"github.com/sirupsen/logrus"
)

// The Maple bootloader exposes one DFU interface with two alternate settings:
// 0 loads to RAM (broken on the bootloaders in the field), 1 loads to flash.
const (
	Interface  = 0
	AltSetting = 1
)

// TransferSize is the wTransferSize of the Maple bootloader.
const TransferSize = 1024

const (
	reqOut = usb.ControlOut | usb.ControlClass | usb.ControlInterface
	reqIn  = usb.ControlIn | usb.ControlClass | usb.ControlInterface
)

// Session is an open DFU session on the flash alternate setting of a Maple
// bootloader. Only one Session may exist for a device at a time.
type Session struct {
	h         device.Handle
	log       logrus.FieldLogger
	iface     int
	alt       int
	claimed   bool
	closed    bool
	statusBuf [6]byte
}

// Open claims the DFU interface of h and selects the flash alternate setting.
// The session takes over h: if Open fails h is closed.
func Open(h device.Handle, log logrus.FieldLogger) (s *Session, err error) {
	defer wrapErr("Open", &err)
	s = &Session{
		h:     h,
		log:   log.WithFields(logrus.Fields{"iface": Interface, "alt": AltSetting}),
		iface: Interface,
		alt:   AltSetting,
	}
	if err = h.Claim(s.iface); err != nil {
		s.Close()
		return nil, fmt.Errorf("claim interface %d: %w", s.iface, err)
	}
	s.claimed = true
	if err = h.SetAltSetting(s.iface, s.alt); err != nil {
		s.Close()
		return nil, fmt.Errorf("set alternate setting %d: %w", s.alt, err)
	}
	s.log.Debug("session open")
	return s, nil
}

// Interface returns the claimed interface number.
func (s *Session) Interface() int { return s.iface }

// AltSetting returns the selected alternate setting.
func (s *Session) AltSetting() int { return s.alt }

// DownloadBlock issues DFU_DNLOAD with wBlockNum set to num and returns the
// number of bytes accepted by the device. A zero-length p terminates the
// download.
func (s *Session) DownloadBlock(num uint16, p []byte) (n int, err error) {
	defer wrapErr("Download", &err)
	return s.h.Control(reqOut, reqDnload, num, uint16(s.iface), p)
}

var errStatusLen = errors.New("short status response")

// GetStatus issues DFU_GETSTATUS.
func (s *Session) GetStatus() (st Status, err error) {
	defer wrapErr("GetStatus", &err)
	n, err := s.h.Control(reqIn, reqGetStatus, 0, uint16(s.iface), s.statusBuf[:])
	if err != nil {
		return
	}
	if n != len(s.statusBuf) {
		err = errStatusLen
		return
	}
	return parseStatus(s.statusBuf[:]), nil
}

// ClearStatus issues DFU_CLRSTATUS which moves the device out of dfuERROR.
func (s *Session) ClearStatus() (err error) {
	defer wrapErr("ClrStatus", &err)
	_, err = s.h.Control(reqOut, reqClrStatus, 0, uint16(s.iface), nil)
	return
}

// Detach issues DFU_DETACH. The device should leave DFU mode within timeout
// or at the next USB reset.
func (s *Session) Detach(timeout time.Duration) (err error) {
	defer wrapErr("Detach", &err)
	ms := timeout.Milliseconds()
	if ms > 0xffff {
		ms = 0xffff
	}
	_, err = s.h.Control(reqOut, reqDetach, uint16(ms), uint16(s.iface), nil)
	return
}

// Reset resets the USB port of the device.
func (s *Session) Reset() (err error) {
	defer wrapErr("Reset", &err)
	return s.h.Reset()
}

// Close releases the claimed interface and closes the device. It is safe to
// call Close more than once.
func (s *Session) Close() (err error) {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.claimed {
		s.claimed = false
		if err := s.h.Release(s.iface); err != nil {
			// the device is closed anyway
			s.log.WithError(err).Warn("releasing interface")
		}
	}
	err = s.h.Close()
	wrapErr("Close", &err)
	return
}
