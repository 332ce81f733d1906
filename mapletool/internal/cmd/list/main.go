// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package list

import (
	"flag"
	"fmt"
	"os"

	"github.com/embeddedgo/maple/mapletool/internal/device"
	"github.com/embeddedgo/maple/mapletool/internal/usb"
	"github.com/embeddedgo/maple/mapletool/internal/util"
)

const Descr = "list the USB devices and report the state of the Maple board"

func Main(cmd string, args []string) {
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage:\n  %s [OPTIONS]\nOptions:\n", cmd)
		fs.PrintDefaults()
	}
	var verbose util.Counter
	fs.Var(&verbose, "v", "increase verbosity (may be repeated)")
	fs.Parse(args)
	if fs.NArg() != 0 {
		fs.Usage()
		os.Exit(1)
	}
	log := util.NewLogger(int(verbose), "")

	bus, err := usb.Open(0)
	util.FatalErr("", err)
	defer bus.Close()

	c := &device.Classifier{Bus: bus, Log: log}
	ids := c.Devices()
	for _, id := range ids {
		mark := ""
		if _, ok := device.ModeOf(id); ok {
			mark = " (Maple)"
		}
		fmt.Printf("Vendor:Device = %s%s\n", id, mark)
	}
	mode, n := c.Classify(false)
	fmt.Printf("%d USB devices, %d Maple, mode: %s\n", len(ids), n, mode)
}
