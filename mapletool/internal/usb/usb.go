// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package usb adapts gousb (libusb) to the device.Bus and device.Handle
// interfaces.
package usb

import (
	"errors"
	"fmt"
	"time"

	"github.com/embeddedgo/maple/mapletool/internal/device"
	usb "github.com/google/gousb"
)

// ControlTimeout limits every control transfer. The Maple bootloader writes
// a 1 KiB flash page before it answers DFU_GETSTATUS.
const ControlTimeout = 5 * time.Second

type Error struct {
	Op  string
	Err error
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Error() string {
	return "usb: " + e.Op + ": " + e.Err.Error()
}

func wrapErr(op string, err *error) {
	if *err != nil {
		*err = &Error{op, *err}
	}
}

// Bus is the libusb view of the USB devices attached to the host.
type Bus struct {
	ctx *usb.Context
}

// Open initializes libusb. Debug sets the libusb log level (0-4).
func Open(debug int) (b *Bus, err error) {
	defer wrapErr("Open", &err)
	defer func() {
		// gousb panics if libusb can not be initialized
		if r := recover(); r != nil {
			b, err = nil, fmt.Errorf("libusb init: %v", r)
		}
	}()
	ctx := usb.NewContext()
	if debug > 0 {
		ctx.Debug(debug)
	}
	return &Bus{ctx: ctx}, nil
}

func (b *Bus) Close() (err error) {
	err = b.ctx.Close()
	wrapErr("Close", &err)
	return
}

// Enumerate implements device.Bus. The error returned by gousb together with
// the opened devices comes from the devices it had to skip.
func (b *Bus) Enumerate(open func(id device.Identity) bool) (hs []device.Handle, err error) {
	defer wrapErr("Enumerate", &err)
	devs, err := b.ctx.OpenDevices(func(desc *usb.DeviceDesc) bool {
		return open(device.Identity{Vendor: desc.Vendor, Product: desc.Product})
	})
	for _, d := range devs {
		d.ControlTimeout = ControlTimeout
		hs = append(hs, &Device{dev: d})
	}
	return
}

// Device implements device.Handle.
type Device struct {
	dev   *usb.Device
	cfg   *usb.Config
	intf  *usb.Interface
	iface int
}

var errNotClaimed = errors.New("interface not claimed")

func (d *Device) String() string {
	return fmt.Sprintf("%d:%d", d.dev.Desc.Bus, d.dev.Desc.Address)
}

// Claim takes the active configuration of the device. gousb claims the
// interface itself together with its alternate setting (see SetAltSetting).
func (d *Device) Claim(iface int) (err error) {
	defer wrapErr("Claim", &err)
	d.dev.SetAutoDetach(true)
	num, err := d.dev.ActiveConfigNum()
	if err != nil {
		return
	}
	d.cfg, err = d.dev.Config(num)
	if err != nil {
		return
	}
	d.iface = iface
	return
}

func (d *Device) SetAltSetting(iface, alt int) (err error) {
	defer wrapErr("SetAltSetting", &err)
	if d.cfg == nil || iface != d.iface {
		return errNotClaimed
	}
	d.intf, err = d.cfg.Interface(iface, alt)
	return
}

func (d *Device) Release(iface int) (err error) {
	defer wrapErr("Release", &err)
	if d.cfg == nil || iface != d.iface {
		return errNotClaimed
	}
	if d.intf != nil {
		d.intf.Close()
		d.intf = nil
	}
	err = d.cfg.Close()
	d.cfg = nil
	return
}

func (d *Device) Control(rType, request uint8, val, idx uint16, data []byte) (int, error) {
	return d.dev.Control(rType, request, val, idx, data)
}

func (d *Device) Reset() error {
	return d.dev.Reset()
}

func (d *Device) Close() (err error) {
	err = d.dev.Close()
	wrapErr("Close", &err)
	return
}
