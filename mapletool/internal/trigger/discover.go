// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package trigger

import (
	"errors"
	"fmt"
	"strings"

	"github.com/embeddedgo/maple/mapletool/internal/device"
	"go.bug.st/serial/enumerator"
)

// MaxACM bounds the /dev/ttyACMn paths probed by Discover.
const MaxACM = 10

var ErrNoPort = errors.New("no Maple serial port found")

// Lister returns the attributes of the serial ports known to the host.
type Lister func() ([]*enumerator.PortDetails, error)

// Discover probes /dev/ttyACM0 to /dev/ttyACM9 and returns the first one
// whose USB identity, as reported by the host, is the Maple serial one.
// If list is nil enumerator.GetDetailedPortsList is used.
func Discover(list Lister) (string, error) {
	if list == nil {
		list = enumerator.GetDetailedPortsList
	}
	ports, err := list()
	if err != nil {
		return "", fmt.Errorf("list serial ports: %w", err)
	}
	byName := make(map[string]*enumerator.PortDetails, len(ports))
	for _, p := range ports {
		if p != nil {
			byName[p.Name] = p
		}
	}
	for i := range MaxACM {
		path := fmt.Sprintf("/dev/ttyACM%d", i)
		if isMaple(byName[path]) {
			return path, nil
		}
	}
	return "", ErrNoPort
}

func isMaple(p *enumerator.PortDetails) bool {
	if p == nil || !p.IsUSB {
		return false
	}
	return strings.EqualFold(p.VID, device.Vendor.String()) &&
		strings.EqualFold(p.PID, device.ProductSerial.String())
}
