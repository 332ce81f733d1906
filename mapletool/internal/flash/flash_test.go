// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package flash

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/embeddedgo/maple/mapletool/internal/device"
	"github.com/embeddedgo/maple/mapletool/internal/dfu"
	"github.com/embeddedgo/maple/mapletool/internal/firmware"
	"github.com/sirupsen/logrus"
)

var (
	serial = device.Identity{Vendor: device.Vendor, Product: device.ProductSerial}
	loader = device.Identity{Vendor: device.Vendor, Product: device.ProductLoader}
	odd    = device.Identity{Vendor: device.Vendor, Product: 0x0042}
	other  = device.Identity{Vendor: 0x0483, Product: 0x3748}
)

// board simulates a Maple board in its bootloader mode.
type board struct {
	short    bool // accept only half of every block
	resetErr error

	claimed  int
	released int
	closed   int
	resets   int
	detaches int
	received int
}

func (b *board) Claim(int) error              { b.claimed++; return nil }
func (b *board) SetAltSetting(int, int) error { return nil }
func (b *board) Release(int) error            { b.released++; return nil }
func (b *board) Close() error                 { b.closed++; return nil }

func (b *board) Reset() error {
	b.resets++
	return b.resetErr
}

func (b *board) Control(rType, req uint8, val, idx uint16, data []byte) (int, error) {
	switch req {
	case 0x00: // detach
		b.detaches++
	case 0x01: // download
		n := len(data)
		if b.short {
			n /= 2
		}
		b.received += n
		return n, nil
	case 0x03: // get status
		copy(data, []byte{0, 1, 0, 0, byte(dfu.ManifestWaitReset), 0})
		return 6, nil
	}
	return 0, nil
}

var errAccess = errors.New("libusb: bad access [code -3]")

type bus struct {
	ids    []device.Identity
	board  *board
	locked bool // opening a device fails
	calls  int
	opened int
}

func (b *bus) Enumerate(open func(device.Identity) bool) ([]device.Handle, error) {
	b.calls++
	var (
		hs  []device.Handle
		err error
	)
	for _, id := range b.ids {
		if open(id) {
			if b.locked {
				err = errAccess
				continue
			}
			b.opened++
			hs = append(hs, b.board)
		}
	}
	return hs, err
}

type trigger struct {
	bus    *bus
	after  []device.Identity // bus content after a successful trigger
	ok     bool
	called []string
}

func (t *trigger) Trigger(path string) bool {
	t.called = append(t.called, path)
	if t.ok {
		t.bus.ids = t.after
	}
	return t.ok
}

func quietLog() logrus.FieldLogger {
	l := logrus.New()
	l.Out = io.Discard
	return l
}

func newFlasher(ids ...device.Identity) (*Flasher, *bus, *trigger) {
	b := &bus{ids: ids, board: new(board)}
	tr := &trigger{bus: b, after: []device.Identity{loader}, ok: true}
	cfg := DefaultConfig()
	cfg.PollInterval = time.Millisecond
	f := &Flasher{
		Config:     cfg,
		Classifier: &device.Classifier{Bus: b, Log: quietLog()},
		Trigger:    tr,
		Discover:   func() (string, error) { return "/dev/ttyACM0", nil },
		Log:        quietLog(),
	}
	return f, b, tr
}

func newImage(t *testing.T, n int) *firmware.Image {
	t.Helper()
	img, err := firmware.New("test.bin", make([]byte, n))
	if err != nil {
		t.Fatal(err)
	}
	return img
}

func TestRunLoader(t *testing.T) {
	f, b, tr := newFlasher(other, loader)
	var last int
	f.Progress = func(sent, total int) { last = sent }
	res, err := f.Run(context.Background(), newImage(t, 5000))
	if err != nil {
		t.Fatal(err)
	}
	if res.Mode != device.ModeLoader || res.Matches != 1 || res.Sent != 5000 || res.ResetErr != nil {
		t.Errorf("result %+v", res)
	}
	if len(tr.called) != 0 {
		t.Errorf("serial trigger used in loader mode")
	}
	bd := b.board
	if bd.received != 5000 || bd.detaches != 1 || bd.resets != 1 {
		t.Errorf("board %+v", bd)
	}
	if bd.claimed != 1 || bd.released != 1 || bd.closed != 1 {
		t.Errorf("board %+v", bd)
	}
	if last != 5000 {
		t.Errorf("last progress %d", last)
	}
}

func TestRunSerial(t *testing.T) {
	f, b, tr := newFlasher(serial)
	res, err := f.Run(context.Background(), newImage(t, 2048))
	if err != nil {
		t.Fatal(err)
	}
	if res.Mode != device.ModeSerial || res.Sent != 2048 {
		t.Errorf("result %+v", res)
	}
	if len(tr.called) != 1 || tr.called[0] != "/dev/ttyACM0" {
		t.Errorf("trigger calls %v", tr.called)
	}
	if b.board.resets != 1 || b.board.closed != 1 {
		t.Errorf("board %+v", b.board)
	}
}

func TestRunSerialPath(t *testing.T) {
	f, _, tr := newFlasher(serial)
	f.Config.SerialPath = "/dev/maple"
	f.Discover = func() (string, error) {
		t.Error("Discover called")
		return "", nil
	}
	if _, err := f.Run(context.Background(), newImage(t, 10)); err != nil {
		t.Fatal(err)
	}
	if len(tr.called) != 1 || tr.called[0] != "/dev/maple" {
		t.Errorf("trigger calls %v", tr.called)
	}
}

func TestRunTriggerFailure(t *testing.T) {
	f, b, tr := newFlasher(serial)
	tr.ok = false
	_, err := f.Run(context.Background(), newImage(t, 10))
	if !errors.Is(err, ErrTrigger) {
		t.Fatalf("err = %v", err)
	}
	if b.opened != 0 {
		t.Errorf("%d devices opened", b.opened)
	}
}

func TestRunNoSerialPort(t *testing.T) {
	f, _, tr := newFlasher(serial)
	perr := errors.New("no port")
	f.Discover = func() (string, error) { return "", perr }
	_, err := f.Run(context.Background(), newImage(t, 10))
	if !errors.Is(err, ErrTrigger) || !errors.Is(err, perr) {
		t.Fatalf("err = %v", err)
	}
	if len(tr.called) != 0 {
		t.Error("trigger called without a port")
	}
}

func TestRunLoaderTimeout(t *testing.T) {
	f, b, tr := newFlasher(serial)
	tr.after = []device.Identity{serial}
	f.Config.Attempts = 3
	_, err := f.Run(context.Background(), newImage(t, 10))
	if !errors.Is(err, ErrNoLoader) {
		t.Fatalf("err = %v", err)
	}
	// initial classification, 3 polls, final report
	if b.calls != 5 {
		t.Errorf("%d enumerations, want 5", b.calls)
	}
	if b.opened != 0 {
		t.Errorf("%d devices opened", b.opened)
	}
}

func TestRunNoDevice(t *testing.T) {
	f, b, _ := newFlasher(other)
	res, err := f.Run(context.Background(), newImage(t, 10))
	if !errors.Is(err, ErrNoDevice) || res.Mode != device.ModeNone {
		t.Fatalf("Run() = %+v, %v", res, err)
	}
	if b.opened != 0 {
		t.Errorf("%d devices opened", b.opened)
	}
}

func TestRunUnknown(t *testing.T) {
	f, _, _ := newFlasher(odd)
	if _, err := f.Run(context.Background(), newImage(t, 10)); !errors.Is(err, ErrUnknownMode) {
		t.Fatalf("err = %v", err)
	}
}

func TestRunMultiple(t *testing.T) {
	f, b, _ := newFlasher(loader, serial, loader)
	res, err := f.Run(context.Background(), newImage(t, 10))
	if err != nil {
		t.Fatal(err)
	}
	if res.Matches != 3 || res.Mode != device.ModeLoader {
		t.Errorf("result %+v", res)
	}
	if b.opened != 1 {
		t.Errorf("%d devices opened, want 1", b.opened)
	}
}

func TestRunDownloadFailure(t *testing.T) {
	f, b, _ := newFlasher(loader)
	b.board.short = true
	res, err := f.Run(context.Background(), newImage(t, 4096))
	if !errors.Is(err, dfu.ErrShortWrite) || res.Sent != 0 {
		t.Fatalf("Run() = %+v, %v", res, err)
	}
	bd := b.board
	if bd.detaches != 0 || bd.resets != 0 {
		t.Errorf("device detached/reset after failed download: %+v", bd)
	}
	if bd.released != 1 || bd.closed != 1 {
		t.Errorf("session not closed: %+v", bd)
	}
}

func TestRunResetFailure(t *testing.T) {
	f, b, _ := newFlasher(loader)
	b.board.resetErr = errors.New("LIBUSB_ERROR_NOT_FOUND")
	res, err := f.Run(context.Background(), newImage(t, 100))
	if err != nil {
		t.Fatal(err)
	}
	if !errors.Is(res.ResetErr, b.board.resetErr) || res.Sent != 100 {
		t.Errorf("result %+v", res)
	}
	if b.board.closed != 1 {
		t.Errorf("closed %d times", b.board.closed)
	}
}

func TestRunListOnly(t *testing.T) {
	f, b, tr := newFlasher(serial)
	f.Config.ListOnly = true
	res, err := f.Run(context.Background(), nil)
	if err != nil || res.Mode != device.ModeSerial || res.Matches != 1 {
		t.Fatalf("Run() = %+v, %v", res, err)
	}
	if b.opened != 0 || len(tr.called) != 0 {
		t.Error("list only run touched the device")
	}
}

func TestRunInvalidImage(t *testing.T) {
	f, b, _ := newFlasher(loader)
	img := newImage(t, 10)
	img.Release()
	if _, err := f.Run(context.Background(), img); !errors.Is(err, firmware.ErrEmpty) {
		t.Fatalf("err = %v", err)
	}
	if _, err := f.Run(context.Background(), nil); !errors.Is(err, ErrNoImage) {
		t.Fatalf("err = %v", err)
	}
	if b.calls != 0 {
		t.Errorf("bus enumerated %d times before the image was validated", b.calls)
	}
}

func TestRunOpenFailure(t *testing.T) {
	for _, id := range []device.Identity{loader, serial} {
		f, b, tr := newFlasher(id)
		b.locked = true
		res, err := f.Run(context.Background(), newImage(t, 100))
		if !errors.Is(err, device.ErrOpen) || !errors.Is(err, errAccess) {
			t.Fatalf("%v: err = %v", id, err)
		}
		if res.Sent != 0 || b.board.claimed != 0 || b.board.closed != 0 {
			t.Errorf("%v: result %+v, board %+v", id, res, b.board)
		}
		if id == serial && len(tr.called) != 1 {
			t.Errorf("%v: trigger calls %v", id, tr.called)
		}
	}
}
