// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package device

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Default re-enumeration budget. The board usually reappears as a bootloader
// after 300-400 ms.
const (
	DefaultAttempts = 10
	DefaultInterval = 100 * time.Millisecond
)

// Querier reports the current mode of the Maple device (see
// Classifier.Classify).
type Querier interface {
	Classify(verbose bool) (Mode, int)
}

// Waiter waits for the board to reenumerate in the bootloader mode.
type Waiter struct {
	Query    Querier
	Attempts int           // DefaultAttempts if zero
	Interval time.Duration // DefaultInterval if zero
	Log      logrus.FieldLogger
}

// WaitForLoader sleeps for w.Interval and then asks for the device mode, at
// most w.Attempts times. It returns true as soon as the loader mode is
// observed and false if the budget runs out or ctx is done.
func (w *Waiter) WaitForLoader(ctx context.Context) bool {
	attempts := w.Attempts
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	interval := w.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	t := time.NewTimer(interval)
	defer t.Stop()
	for i := 1; i <= attempts; i++ {
		select {
		case <-ctx.Done():
			w.Log.WithError(ctx.Err()).Warn("waiting for bootloader interrupted")
			return false
		case <-t.C:
		}
		mode, _ := w.Query.Classify(false)
		w.Log.WithFields(logrus.Fields{"attempt": i, "mode": mode}).Debug("poll")
		if mode == ModeLoader {
			return true
		}
		t.Reset(interval)
	}
	w.Log.WithField("attempts", attempts).Warn("device did not enter the bootloader mode")
	return false
}
