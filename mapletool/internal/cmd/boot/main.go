// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package boot

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/embeddedgo/maple/mapletool/internal/device"
	"github.com/embeddedgo/maple/mapletool/internal/trigger"
	"github.com/embeddedgo/maple/mapletool/internal/usb"
	"github.com/embeddedgo/maple/mapletool/internal/util"
)

const Descr = "reboot the Maple board into its DFU bootloader"

func Main(cmd string, args []string) {
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage:\n  %s [OPTIONS]\nOptions:\n", cmd)
		fs.PrintDefaults()
	}
	var verbose util.Counter
	fs.Var(&verbose, "v", "increase verbosity (may be repeated)")
	port := fs.String("port", "", "serial `DEVICE` of the board (default: probe /dev/ttyACM0-9)")
	nowait := fs.Bool("nowait", false, "do not wait for the bootloader to appear on the bus")
	fs.Parse(args)
	if fs.NArg() != 0 {
		fs.Usage()
		os.Exit(1)
	}
	log := util.NewLogger(int(verbose), "")

	path := *port
	if path == "" {
		var err error
		path, err = trigger.Discover(nil)
		util.FatalErr("", err)
	}
	t := &trigger.Trigger{Log: log}
	if !t.Trigger(path) {
		util.Fatal("cannot request the bootloader on %s", path)
	}
	if *nowait {
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	bus, err := usb.Open(0)
	util.FatalErr("", err)
	defer bus.Close()

	w := &device.Waiter{
		Query: &device.Classifier{Bus: bus, Log: log},
		Log:   log,
	}
	if !w.WaitForLoader(ctx) {
		mode, _ := w.Query.Classify(false)
		util.Warn("device did not enter the bootloader mode, current mode: %s", mode)
		return
	}
	fmt.Println("bootloader ready")
}
