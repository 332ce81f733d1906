// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package util

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// NewLogger returns the diagnostic logger. Without -v only warnings and
// errors are printed, -v adds the progress of the mode transition, -v -v the
// details of every USB transaction. If logfile is not empty the log goes to
// the file, rotated after 5 MB.
func NewLogger(verbose int, logfile string) *logrus.Logger {
	var w io.Writer = os.Stderr
	if logfile != "" {
		w = &lumberjack.Logger{
			Filename:   logfile,
			MaxSize:    5, // megabytes
			MaxBackups: 3,
		}
	}
	level := logrus.WarnLevel
	switch {
	case verbose >= 2:
		level = logrus.DebugLevel
	case verbose == 1:
		level = logrus.InfoLevel
	}
	return &logrus.Logger{
		Out:       w,
		Formatter: &logrus.TextFormatter{DisableTimestamp: logfile == ""},
		Hooks:     make(logrus.LevelHooks),
		Level:     level,
	}
}
