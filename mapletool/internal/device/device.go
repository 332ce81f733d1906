// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package device finds Maple boards on the USB bus and tells which of the two
// USB personalities (serial application or DFU bootloader) they currently
// expose.
package device

import (
	"fmt"

	usb "github.com/google/gousb"
)

// LeafLabs Maple USB identifiers.
const (
	Vendor        usb.ID = 0x1eaf
	ProductLoader usb.ID = 0x0003
	ProductSerial usb.ID = 0x0004
)

// Identity is the vendor/product pair read from a USB device descriptor.
type Identity struct {
	Vendor  usb.ID
	Product usb.ID
}

func (id Identity) String() string {
	return id.Vendor.String() + ":" + id.Product.String()
}

// Mode is the USB personality of a Maple board.
type Mode uint8

const (
	ModeNone    Mode = iota // no Maple device
	ModeSerial              // application firmware, CDC-ACM serial port
	ModeLoader              // DFU bootloader
	ModeUnknown             // Maple vendor ID, unrecognized product ID
)

var modeStr = [...]string{
	ModeNone:    "none",
	ModeSerial:  "serial",
	ModeLoader:  "loader",
	ModeUnknown: "unknown",
}

func (m Mode) String() string {
	if int(m) < len(modeStr) {
		return modeStr[m]
	}
	return fmt.Sprintf("Mode(%d)", uint8(m))
}

// ModeOf maps a device identity to a Maple mode. It reports false if the
// vendor ID is not the Maple one (such device does not count as a match).
func ModeOf(id Identity) (Mode, bool) {
	if id.Vendor != Vendor {
		return ModeNone, false
	}
	switch id.Product {
	case ProductSerial:
		return ModeSerial, true
	case ProductLoader:
		return ModeLoader, true
	}
	return ModeUnknown, true
}

// Handle is an opened USB device owned exclusively by its user.
type Handle interface {
	// Claim claims the interface iface.
	Claim(iface int) error

	// SetAltSetting selects the alternate setting alt of the claimed iface.
	SetAltSetting(iface, alt int) error

	// Release releases the previously claimed interface.
	Release(iface int) error

	// Control performs a control transfer on the default endpoint.
	Control(rType, request uint8, val, idx uint16, data []byte) (int, error)

	// Reset performs a USB port reset.
	Reset() error

	// Close closes the device.
	Close() error
}

// Bus is a source of USB devices. Enumerate reads the descriptors of all
// devices attached to the bus, calls open for each of them in the
// enumeration order and returns the opened handles of those for which open
// returned true. A device whose descriptor can not be read, or which can not
// be opened (e.g. no access rights), is skipped and Enumerate returns an
// error together with the handles it managed to open.
type Bus interface {
	Enumerate(open func(id Identity) bool) ([]Handle, error)
}
