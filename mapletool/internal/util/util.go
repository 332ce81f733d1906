// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package util

import (
	"fmt"
	"os"
	"strconv"
)

func Warn(f string, args ...any) {
	fmt.Fprintf(os.Stderr, f+"\n", args...)
}

func Fatal(f string, args ...any) {
	fmt.Fprintf(os.Stderr, f+"\n", args...)
	os.Exit(1)
}

// FatalError prints an error description and exits the program if the
// err != nil.
func FatalErr(what string, err error) {
	if err == nil {
		return
	}
	s := err.Error() + "\n"
	if what != "" {
		s = what + ": " + s
	}
	os.Stderr.WriteString(s)
	os.Exit(1)
}

// Counter is a flag.Value that counts its occurrences on the command line
// (-v -v).
type Counter int

func (c *Counter) String() string {
	if c == nil {
		return "0"
	}
	return strconv.Itoa(int(*c))
}

func (c *Counter) Set(s string) error {
	b, err := strconv.ParseBool(s)
	if err != nil {
		n, err := strconv.Atoi(s)
		if err != nil {
			return err
		}
		*c = Counter(n)
		return nil
	}
	if b {
		*c++
	} else {
		*c = 0
	}
	return nil
}

func (c *Counter) IsBoolFlag() bool { return true }
