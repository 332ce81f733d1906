// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package dfu implements the part of the USB DFU 1.1 protocol spoken by the
// Maple bootloader: a download session on the flash alternate setting and
// the driver that moves a raw firmware image through it.
package dfu

import (
	"fmt"
	"time"
)

type Error struct {
	Op  string
	Err error
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Error() string {
	return "dfu: " + e.Op + ": " + e.Err.Error()
}

func wrapErr(op string, err *error) {
	if *err != nil {
		*err = &Error{op, *err}
	}
}

// StatusCode is the bStatus field of the DFU_GETSTATUS response.
type StatusCode uint8

const StatusOK StatusCode = 0

var statusStr = [...]string{
	0:  "no error",
	1:  "file is not for this target",
	2:  "file fails a vendor-specific verification test",
	3:  "unable to write memory",
	4:  "memory erase function failed",
	5:  "memory erase check failed",
	6:  "program memory function failed",
	7:  "programmed memory failed verification",
	8:  "memory address is out of range",
	9:  "premature DFU_DNLOAD with wLength = 0",
	10: "firmware is corrupt",
	11: "vendor-specific error",
	12: "unexpected USB reset signaling",
	13: "unexpected power on reset",
	14: "unknown error",
	15: "stalled an unexpected request",
}

func (c StatusCode) String() string {
	if int(c) < len(statusStr) {
		return statusStr[c]
	}
	return fmt.Sprintf("status %d", uint8(c))
}

// State is the bState field of the DFU_GETSTATUS response.
type State uint8

// DFU states
const (
	AppIdle           State = 0
	AppDetach         State = 1
	Idle              State = 2
	DnloadSync        State = 3
	Dnbusy            State = 4
	DnloadIdle        State = 5
	ManifestSync      State = 6
	Manifest          State = 7
	ManifestWaitReset State = 8
	UploadIdle        State = 9
	StateError        State = 10
)

var stateStr = [...]string{
	AppIdle:           "app idle",
	AppDetach:         "app detach",
	Idle:              "DFU idle",
	DnloadSync:        "DFU download sync",
	Dnbusy:            "DFU download busy",
	DnloadIdle:        "DFU download idle",
	ManifestSync:      "DFU manifest sync",
	Manifest:          "DFU manifest",
	ManifestWaitReset: "DFU manifest wait reset",
	UploadIdle:        "DFU upload idle",
	StateError:        "DFU error",
}

func (s State) String() string {
	if int(s) < len(stateStr) {
		return stateStr[s]
	}
	return fmt.Sprintf("state %d", uint8(s))
}

// DFU requests
const (
	reqDetach    uint8 = 0x00
	reqDnload    uint8 = 0x01
	reqGetStatus uint8 = 0x03
	reqClrStatus uint8 = 0x04
)

// Status is the decoded DFU_GETSTATUS response.
type Status struct {
	Code        StatusCode
	PollTimeout time.Duration // minimum time before the next GetStatus
	State       State
	StringIndex uint8
}

func parseStatus(b []byte) Status {
	return Status{
		Code:        StatusCode(b[0]),
		PollTimeout: time.Duration(uint(b[1])|uint(b[2])<<8|uint(b[3])<<16) * time.Millisecond,
		State:       State(b[4]),
		StringIndex: b[5],
	}
}

// StatusError reports a DFU_GETSTATUS response with an error status code.
type StatusError struct {
	Status Status
}

func (e *StatusError) Error() string {
	return e.Status.Code.String() + " (" + e.Status.State.String() + ")"
}
