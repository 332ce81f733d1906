// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package device

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

// ErrOpen is returned by Find if the found device can not be opened.
var ErrOpen = errors.New("cannot open Maple device")

// Classifier classifies the Maple devices attached to the Bus. Every call
// enumerates the bus again: devices appear and disappear while the board
// switches between its personalities.
type Classifier struct {
	Bus Bus
	Log logrus.FieldLogger
}

// Found describes the first Maple device found on the bus.
type Found struct {
	Mode     Mode
	Identity Identity
	Handle   Handle // nil if not requested
}

func (c *Classifier) enumerate(open func(id Identity) bool) ([]Handle, error) {
	hs, err := c.Bus.Enumerate(open)
	if err != nil {
		c.Log.WithError(err).Warn("some USB devices skipped")
	}
	return hs, err
}

// Classify returns the mode of the first encountered Maple device and the
// number of all Maple devices on the bus. If verbose is true every visited
// device is logged.
func (c *Classifier) Classify(verbose bool) (mode Mode, n int) {
	c.enumerate(func(id Identity) bool {
		m, ok := ModeOf(id)
		if verbose {
			c.Log.WithField("id", id).Debugf("USB device, maple: %t", ok)
		}
		if !ok {
			return false
		}
		if n == 0 {
			mode = m
		}
		n++
		return false
	})
	return
}

// Find returns the first encountered Maple device or nil if there is no one.
// If wantHandle is true the device is opened and the caller becomes the owner
// of Found.Handle, which is never nil then. If the device can not be opened
// Find returns an error wrapping ErrOpen. If wantHandle is false no device is
// opened.
func (c *Classifier) Find(wantHandle bool) (*Found, error) {
	var f *Found
	hs, err := c.enumerate(func(id Identity) bool {
		if f != nil {
			return false
		}
		m, ok := ModeOf(id)
		if !ok {
			return false
		}
		f = &Found{Mode: m, Identity: id}
		return wantHandle
	})
	if f == nil {
		closeAll(hs)
		return nil, nil
	}
	if !wantHandle {
		return f, nil
	}
	if len(hs) == 0 {
		if err == nil {
			return nil, fmt.Errorf("%w %s", ErrOpen, f.Identity)
		}
		return nil, fmt.Errorf("%w %s: %w", ErrOpen, f.Identity, err)
	}
	f.Handle = hs[0]
	closeAll(hs[1:])
	return f, nil
}

// Devices returns the identities of all devices on the bus.
func (c *Classifier) Devices() []Identity {
	var ids []Identity
	c.enumerate(func(id Identity) bool {
		ids = append(ids, id)
		return false
	})
	return ids
}

func closeAll(hs []Handle) {
	for _, h := range hs {
		h.Close()
	}
}
