// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dfu

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Target is the part of Session used by Downloader.
type Target interface {
	DownloadBlock(num uint16, p []byte) (int, error)
	GetStatus() (Status, error)
	ClearStatus() error
}

// TransferState is the state of the download state machine.
type TransferState uint8

const (
	TransferIdle TransferState = iota
	SendingBlock
	AwaitingStatus
	SendingZeroLength
	ManifestWait
	Done
	Failed
)

var transferStateStr = [...]string{
	TransferIdle:      "idle",
	SendingBlock:      "sending block",
	AwaitingStatus:    "awaiting status",
	SendingZeroLength: "sending zero-length block",
	ManifestWait:      "manifest wait",
	Done:              "done",
	Failed:            "failed",
}

func (s TransferState) String() string {
	if int(s) < len(transferStateStr) {
		return transferStateStr[s]
	}
	return fmt.Sprintf("TransferState(%d)", uint8(s))
}

var (
	ErrShortWrite = errors.New("short block write")
	ErrBusy       = errors.New("device stays busy")
	ErrManifest   = errors.New("device did not enter manifest wait reset state")
)

// TransferError describes a failed download. Offset is the number of image
// bytes completely sent before the failure.
type TransferError struct {
	Op     string
	Offset int
	Err    error
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("dfu: %s at offset %d: %s", e.Op, e.Offset, e.Err)
}

// Default polling budgets.
const (
	DefaultBusyPolls     = 8
	DefaultManifestPolls = 5
)

// Downloader moves a firmware image to a DFU target. It does not detach or
// reset the device after a successful download: that is up to the caller.
type Downloader struct {
	Target        Target
	Progress      func(sent, total int) // called after every block, may be nil
	Log           logrus.FieldLogger
	BlockSize     int // TransferSize if zero
	BusyPolls     int // DefaultBusyPolls if zero
	ManifestPolls int // DefaultManifestPolls if zero

	state  TransferState
	offset int
	block  uint16 // wBlockNum of the next DFU_DNLOAD
	reason error
}

// State returns the current state of the state machine.
func (d *Downloader) State() TransferState { return d.state }

// Reason returns the reason of the Failed state.
func (d *Downloader) Reason() error { return d.reason }

func (d *Downloader) set(s TransferState) {
	d.state = s
	d.Log.WithFields(logrus.Fields{"state": s, "offset": d.offset, "block": d.block}).Debug("transfer")
}

// send issues one DFU_DNLOAD transaction. Every transaction, the terminating
// one included, gets the next block number.
func (d *Downloader) send(p []byte) (int, error) {
	n, err := d.Target.DownloadBlock(d.block, p)
	d.block++
	return n, err
}

func (d *Downloader) fail(op string, err error) (int, error) {
	d.state = Failed
	d.reason = err
	d.Log.WithError(err).WithField("offset", d.offset).Error("download failed")
	return d.offset, &TransferError{op, d.offset, err}
}

// Download sends img block by block, terminates it with a zero-length block
// and waits for the device to complete manifestation. It returns the number
// of bytes sent. On failure the returned count covers only the blocks the
// device accepted completely and the error is a *TransferError.
func (d *Downloader) Download(ctx context.Context, img []byte) (int, error) {
	bs := d.BlockSize
	if bs <= 0 {
		bs = TransferSize
	}
	d.offset = 0
	d.block = 0
	d.reason = nil
	d.set(TransferIdle)
	total := len(img)
	for d.offset < total {
		if err := ctx.Err(); err != nil {
			return d.fail("Download", err)
		}
		blk := img[d.offset:]
		if len(blk) > bs {
			blk = blk[:bs]
		}
		d.set(SendingBlock)
		n, err := d.send(blk)
		if err != nil {
			return d.fail("Download", err)
		}
		if n != len(blk) {
			return d.fail("Download", fmt.Errorf("%w: %d of %d bytes", ErrShortWrite, n, len(blk)))
		}
		d.offset += n
		d.set(AwaitingStatus)
		if _, err = d.status(ctx); err != nil {
			return d.fail("GetStatus", err)
		}
		if d.Progress != nil {
			d.Progress(d.offset, total)
		}
	}

	d.set(SendingZeroLength)
	if _, err := d.send(nil); err != nil {
		return d.fail("Download", err)
	}
	d.set(AwaitingStatus)
	st, err := d.status(ctx)
	if err != nil {
		return d.fail("GetStatus", err)
	}

	d.set(ManifestWait)
	polls := d.ManifestPolls
	if polls <= 0 {
		polls = DefaultManifestPolls
	}
	for i := 0; st.State != ManifestWaitReset; i++ {
		if i == polls {
			return d.fail("Manifest", fmt.Errorf("%w: %s", ErrManifest, st.State))
		}
		if err = sleep(ctx, st.PollTimeout); err != nil {
			return d.fail("Manifest", err)
		}
		if st, err = d.check(); err != nil {
			return d.fail("Manifest", err)
		}
	}
	d.set(Done)
	return d.offset, nil
}

// check reads the device status and turns an error status into an error.
func (d *Downloader) check() (Status, error) {
	st, err := d.Target.GetStatus()
	if err != nil {
		return st, err
	}
	if st.Code != StatusOK {
		if st.State == StateError {
			if err := d.Target.ClearStatus(); err != nil {
				d.Log.WithError(err).Warn("clearing error status")
			}
		}
		return st, &StatusError{st}
	}
	return st, nil
}

// status is check that also waits out the dfuDNBUSY state.
func (d *Downloader) status(ctx context.Context) (Status, error) {
	polls := d.BusyPolls
	if polls <= 0 {
		polls = DefaultBusyPolls
	}
	for i := 0; ; i++ {
		st, err := d.check()
		if err != nil || st.State != Dnbusy {
			return st, err
		}
		if i == polls {
			return st, ErrBusy
		}
		if err = sleep(ctx, st.PollTimeout); err != nil {
			return st, err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
