// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package firmware loads raw firmware images. The file content is the flash
// image: there is no header, checksum or container.
package firmware

import (
	"errors"
	"fmt"
	"os"
)

// MaxSize is the size of the flash available to user programs.
const MaxSize = 128 * 1024

var (
	ErrTooLarge = errors.New("firmware image too large")
	ErrEmpty    = errors.New("firmware image is empty")
)

// Image is a raw firmware image.
type Image struct {
	Name string
	data []byte
}

func check(size int64) error {
	if size > MaxSize {
		return fmt.Errorf("%w: %d bytes, max %d", ErrTooLarge, size, MaxSize)
	}
	if size == 0 {
		return ErrEmpty
	}
	return nil
}

// New returns an Image that owns data.
func New(name string, data []byte) (*Image, error) {
	if err := check(int64(len(data))); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return &Image{Name: name, data: data}, nil
}

// Load reads the named file. The size is checked before the file is read.
func Load(name string) (*Image, error) {
	fi, err := os.Stat(name)
	if err != nil {
		return nil, err
	}
	if !fi.Mode().IsRegular() {
		return nil, fmt.Errorf("%s: not a regular file", name)
	}
	if err := check(fi.Size()); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, err
	}
	return New(name, data)
}

// Bytes returns the image content. It returns nil after Release.
func (img *Image) Bytes() []byte { return img.data }

// Len returns the image size in bytes.
func (img *Image) Len() int { return len(img.data) }

// Validate reports whether the image fits in the flash.
func (img *Image) Validate() error {
	if err := check(int64(len(img.data))); err != nil {
		return fmt.Errorf("%s: %w", img.Name, err)
	}
	return nil
}

// Release drops the image buffer.
func (img *Image) Release() {
	img.data = nil
}
