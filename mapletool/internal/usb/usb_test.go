// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package usb

import (
	"errors"
	"testing"
)

func TestErrorWrap(t *testing.T) {
	inner := errors.New("LIBUSB_ERROR_ACCESS")
	err := error(inner)
	wrapErr("Claim", &err)
	if err.Error() != "usb: Claim: LIBUSB_ERROR_ACCESS" {
		t.Errorf("Error() = %q", err)
	}
	if !errors.Is(err, inner) {
		t.Error("wrapped error lost")
	}
	var nilErr error
	wrapErr("Claim", &nilErr)
	if nilErr != nil {
		t.Errorf("nil error wrapped: %v", nilErr)
	}
}

func TestUnclaimed(t *testing.T) {
	d := new(Device)
	if err := d.SetAltSetting(0, 1); !errors.Is(err, errNotClaimed) {
		t.Errorf("SetAltSetting() = %v", err)
	}
	if err := d.Release(0); !errors.Is(err, errNotClaimed) {
		t.Errorf("Release() = %v", err)
	}
}
