// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package util

import (
	"io"
	"os"

	"github.com/schollz/progressbar/v3"
)

// NewProgress returns a progress sink that draws a byte progress bar on
// stderr. Rendering errors are ignored.
func NewProgress(descr string, quiet bool) func(cur, max int) {
	return newProgress(os.Stderr, descr, quiet)
}

func newProgress(w io.Writer, descr string, quiet bool) func(cur, max int) {
	if quiet {
		return func(int, int) {}
	}
	var bar *progressbar.ProgressBar
	return func(cur, max int) {
		if bar == nil {
			bar = progressbar.NewOptions(max,
				progressbar.OptionSetWriter(w),
				progressbar.OptionSetWidth(25),
				progressbar.OptionSetDescription(descr),
				progressbar.OptionShowBytes(true),
				progressbar.OptionOnCompletion(func() { io.WriteString(w, "\n") }),
			)
		}
		bar.Set(cur)
	}
}
