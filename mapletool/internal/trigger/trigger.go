// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package trigger asks a Maple board running its application firmware to
// reboot into the DFU bootloader. The request is a fixed sequence of RTS/DTR
// changes on the virtual serial port followed by the "1EAF" magic word.
package trigger

import (
	"time"

	"github.com/sirupsen/logrus"
	"go.bug.st/serial"
)

// Magic is the word the Maple serial driver waits for after the DTR/RTS
// sequence.
const Magic = "1EAF"

// Delay is the pause after every modem line change.
const Delay = 10 * time.Millisecond

// Port is the part of serial.Port used by the trigger.
type Port interface {
	SetDTR(dtr bool) error
	SetRTS(rts bool) error
	Write(p []byte) (int, error)
	Close() error
}

// Open opens the serial device at path. On Unix systems go.bug.st/serial
// opens the device with O_RDWR|O_NOCTTY so the port never becomes the
// controlling terminal.
func Open(path string) (Port, error) {
	return serial.Open(path, &serial.Mode{
		BaudRate: 115200,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
}

type line uint8

const (
	rts line = iota
	dtr
)

type step struct {
	line  line
	level bool
}

// The Maple USB serial driver reboots into the bootloader when DTR falls
// while RTS is high and the magic word follows. The order and pacing
// reproduce the reset circuit trick and must not be changed.
var sequence = [...]step{
	{rts, false},
	{dtr, false},
	{dtr, true},
	{dtr, false},
	{rts, true},
	{dtr, true},
	{dtr, false},
}

// Trigger drives the reset sequence.
type Trigger struct {
	Open  func(path string) (Port, error) // Open if nil
	Delay time.Duration                   // Delay if zero
	Log   logrus.FieldLogger
}

// Trigger sends the bootloader request to the serial device at path. It
// returns false if the port can not be opened, a modem line can not be set or
// the magic word was not written completely. Trigger does not retry.
func (t *Trigger) Trigger(path string) bool {
	open := t.Open
	if open == nil {
		open = Open
	}
	delay := t.Delay
	if delay == 0 {
		delay = Delay
	}
	log := t.Log.WithField("port", path)
	p, err := open(path)
	if err != nil {
		log.WithError(err).Error("cannot open serial port")
		return false
	}
	defer func() {
		if err := p.Close(); err != nil {
			log.WithError(err).Warn("closing serial port")
		}
	}()
	for i, s := range sequence {
		if s.line == rts {
			err = p.SetRTS(s.level)
		} else {
			err = p.SetDTR(s.level)
		}
		if err != nil {
			log.WithError(err).WithField("step", i).Error("cannot set modem line")
			return false
		}
		time.Sleep(delay)
	}
	n, err := p.Write([]byte(Magic))
	if err != nil {
		log.WithError(err).Error("cannot write magic word")
		return false
	}
	if n != len(Magic) {
		log.Errorf("magic word: short write: %d of %d bytes", n, len(Magic))
		return false
	}
	log.Info("bootloader requested")
	return true
}
