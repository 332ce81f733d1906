// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Mapletool loads firmware onto LeafLabs Maple boards.
//
// The board has two USB personalities. The application firmware exposes a
// virtual serial port (1eaf:0004) and the DFU bootloader a DFU interface
// (1eaf:0003). The load command finds the board, asks it over the serial port
// to reboot into the bootloader if necessary, downloads a raw binary image
// (at most 128 KiB) and restarts the board.
//
//	mapletool list
//	mapletool load -v firmware.bin
//	mapletool load -l
//	mapletool boot -port /dev/ttyACM0
//
// Access to the board as a regular user on Linux requires udev rules like:
//
//	SUBSYSTEM=="usb", ATTRS{idVendor}=="1eaf", MODE="0666"
//	SUBSYSTEM=="tty", ATTRS{idVendor}=="1eaf", MODE="0666"
package main
