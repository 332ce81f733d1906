// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package flash puts the pieces together: it finds the board, switches it to
// the bootloader if needed, downloads the image and restarts the board.
package flash

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/embeddedgo/maple/mapletool/internal/device"
	"github.com/embeddedgo/maple/mapletool/internal/dfu"
	"github.com/embeddedgo/maple/mapletool/internal/firmware"
	"github.com/sirupsen/logrus"
)

var (
	ErrNoDevice    = errors.New("no Maple device found")
	ErrUnknownMode = errors.New("Maple device in unknown mode")
	ErrTrigger     = errors.New("cannot request the bootloader over the serial port")
	ErrNoLoader    = errors.New("device did not enter the bootloader mode")
	ErrLost        = errors.New("bootloader disappeared before it could be opened")
	ErrNoImage     = errors.New("no firmware image")
)

// Config is the immutable configuration of a Flasher.
type Config struct {
	Verbose       int
	ListOnly      bool          // report the device state and stop
	SerialPath    string        // serial device of the board, discovered if empty
	Attempts      int           // bootloader polls after the serial trigger
	PollInterval  time.Duration // time between the polls
	DetachTimeout time.Duration // wTimeout of DFU_DETACH
}

// DefaultConfig returns the configuration used by the mapletool commands.
func DefaultConfig() Config {
	return Config{
		Attempts:      device.DefaultAttempts,
		PollInterval:  device.DefaultInterval,
		DetachTimeout: time.Second,
	}
}

// Triggerer requests the bootloader over the serial port (see
// trigger.Trigger).
type Triggerer interface {
	Trigger(path string) bool
}

// Result describes a Run.
type Result struct {
	Mode     device.Mode // mode found before any action
	Matches  int         // number of Maple devices on the bus
	Sent     int         // image bytes accepted by the bootloader
	ResetErr error       // the final USB reset failed (the image is loaded)
}

type Flasher struct {
	Config     Config
	Classifier *device.Classifier
	Trigger    Triggerer
	Discover   func() (string, error) // finds the serial port if Config.SerialPath is empty
	Progress   func(sent, total int)
	Log        logrus.FieldLogger
}

// Run loads img onto the first Maple board found. img may be nil if
// Config.ListOnly is set. The image is validated before the bus is touched.
func (f *Flasher) Run(ctx context.Context, img *firmware.Image) (res Result, err error) {
	if !f.Config.ListOnly {
		if img == nil {
			return res, ErrNoImage
		}
		if err = img.Validate(); err != nil {
			return
		}
	}

	res.Mode, res.Matches = f.Classifier.Classify(f.Config.Verbose > 1)
	log := f.Log.WithFields(logrus.Fields{"mode": res.Mode, "devices": res.Matches})
	if res.Matches > 1 {
		log.Warn("more than one Maple device found, using the first one which may be any of them")
	}
	log.Info("device state")
	if f.Config.ListOnly {
		return
	}

	switch res.Mode {
	case device.ModeNone:
		return res, ErrNoDevice
	case device.ModeUnknown:
		return res, ErrUnknownMode
	case device.ModeSerial:
		if err = f.enterLoader(ctx); err != nil {
			return
		}
	case device.ModeLoader:
	default:
		panic("flash: unhandled mode " + res.Mode.String())
	}

	found, err := f.Classifier.Find(true)
	if err != nil {
		return
	}
	if found == nil {
		return res, ErrLost
	}
	if found.Mode != device.ModeLoader {
		found.Handle.Close()
		return res, fmt.Errorf("%w: device is in %s mode", ErrLost, found.Mode)
	}
	s, err := dfu.Open(found.Handle, f.Log)
	if err != nil {
		return
	}
	defer func() {
		if err := s.Close(); err != nil {
			f.Log.WithError(err).Warn("closing DFU session")
		}
	}()

	d := &dfu.Downloader{
		Target:   s,
		Progress: f.Progress,
		Log:      f.Log,
	}
	res.Sent, err = d.Download(ctx, img.Bytes())
	if err != nil {
		return
	}
	log.WithField("bytes", res.Sent).Info("firmware loaded")

	// The bus reset below restarts the board even if the detach fails.
	if err := s.Detach(f.Config.DetachTimeout); err != nil {
		f.Log.WithError(err).Warn("detach failed")
	}
	if res.ResetErr = s.Reset(); res.ResetErr != nil {
		f.Log.WithError(res.ResetErr).Warn("reset failed")
	}
	return res, nil
}

func (f *Flasher) enterLoader(ctx context.Context) error {
	path := f.Config.SerialPath
	if path == "" {
		var err error
		if path, err = f.Discover(); err != nil {
			return fmt.Errorf("%w: %w", ErrTrigger, err)
		}
	}
	f.Log.WithField("port", path).Info("requesting bootloader")
	if !f.Trigger.Trigger(path) {
		return fmt.Errorf("%w: %s", ErrTrigger, path)
	}
	w := &device.Waiter{
		Query:    f.Classifier,
		Attempts: f.Config.Attempts,
		Interval: f.Config.PollInterval,
		Log:      f.Log,
	}
	if !w.WaitForLoader(ctx) {
		mode, _ := f.Classifier.Classify(false)
		return fmt.Errorf("%w: device is in %s mode", ErrNoLoader, mode)
	}
	return nil
}
