// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package load

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/embeddedgo/maple/mapletool/internal/device"
	"github.com/embeddedgo/maple/mapletool/internal/firmware"
	"github.com/embeddedgo/maple/mapletool/internal/flash"
	"github.com/embeddedgo/maple/mapletool/internal/trigger"
	"github.com/embeddedgo/maple/mapletool/internal/usb"
	"github.com/embeddedgo/maple/mapletool/internal/util"
)

const Descr = "load a raw binary image onto the Maple board using DFU"

func Main(cmd string, args []string) {
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage:\n  %s [OPTIONS] BIN\nOptions:\n", cmd)
		fs.PrintDefaults()
	}
	cfg := flash.DefaultConfig()
	var verbose util.Counter
	fs.Var(&verbose, "v", "increase verbosity (may be repeated)")
	fs.BoolVar(&cfg.ListOnly, "l", false, "report the state of the board and exit")
	fs.StringVar(&cfg.SerialPath, "port", "", "serial `DEVICE` of the board (default: probe /dev/ttyACM0-9)")
	fs.IntVar(&cfg.Attempts, "attempts", cfg.Attempts, "bootloader polls after the serial request")
	fs.DurationVar(&cfg.PollInterval, "interval", cfg.PollInterval, "time between the bootloader polls")
	logfile := fs.String("log", "", "write the diagnostic log to `FILE`")
	quiet := fs.Bool("quiet", false, "do not print the progress bar")
	fs.Parse(args)
	if cfg.ListOnly && fs.NArg() > 1 || !cfg.ListOnly && fs.NArg() != 1 {
		fs.Usage()
		os.Exit(1)
	}
	cfg.Verbose = int(verbose)
	log := util.NewLogger(cfg.Verbose, *logfile)

	var img *firmware.Image
	if !cfg.ListOnly {
		var err error
		img, err = firmware.Load(fs.Arg(0))
		util.FatalErr("", err)
		defer img.Release()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	bus, err := usb.Open(max(cfg.Verbose-2, 0))
	util.FatalErr("", err)
	defer bus.Close()

	f := &flash.Flasher{
		Config:     cfg,
		Classifier: &device.Classifier{Bus: bus, Log: log},
		Trigger:    &trigger.Trigger{Log: log},
		Discover:   func() (string, error) { return trigger.Discover(nil) },
		Progress:   util.NewProgress("Loading:", *quiet),
		Log:        log,
	}
	res, err := f.Run(ctx, img)
	if cfg.ListOnly {
		fmt.Printf("mode: %s, Maple devices: %d\n", res.Mode, res.Matches)
	}
	if msg, code := outcome(res, err); msg != "" {
		util.Warn("%s", msg)
		if code != 0 {
			bus.Close()
			os.Exit(code)
		}
	}
}

// outcome maps the result of a load to the diagnostic and the exit code. A
// board that is missing or did not reach the bootloader is a soft failure.
func outcome(res flash.Result, err error) (msg string, code int) {
	switch {
	case err == nil:
		if res.ResetErr != nil {
			msg = "image loaded but the board could not be reset: " + res.ResetErr.Error()
		}
		return msg, 0
	case errors.Is(err, flash.ErrNoDevice), errors.Is(err, flash.ErrNoLoader):
		return err.Error(), 0
	case errors.Is(err, device.ErrOpen):
		return err.Error() + "\ncheck the access rights to the 1eaf devices (udev rules)", 1
	}
	return err.Error(), 1
}
