// Copyright 2021 The Fuchsia Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package ramdisk emulates a small, fixed set of block devices in memory.
//
// A Registry owns the devices.  Each Device binds one arena.Arena to the
// fixed geometry.Default shape and services transfers either directly through
// the block.Device methods or in batches through Dispatch, which drains a
// host-supplied Queue while holding the device's lock.
package ramdisk

import (
	"github.com/pkg/errors"
)

const (
	// MaxDevices is the number of devices a Registry creates.
	MaxDevices = 2

	// MaxPartitions is the number of minors reserved per device by the host's
	// partitioning layer.  Minor 0 is the whole disk.
	MaxPartitions = 4

	// DefaultPrefix is prepended to the device letter to form its name.
	DefaultPrefix = "ramsd"
)

var (
	// ErrBlockSize indicates that one of the provided arguments is not a
	// multiple of BlockSize().
	ErrBlockSize = errors.New("argument is not a multiple of blocksize")

	// ErrOutOfRange indicates that a transfer reaches past the end of the
	// device.
	ErrOutOfRange = errors.New("range is out of bounds")

	// ErrInvalidArgument indicates a malformed request or ioctl argument.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrPermissionDenied indicates that the ioctl output could not be
	// written because the caller lacks access to it.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrUnsupported is returned for any ioctl other than GetGeometry.
	ErrUnsupported = errors.New("inappropriate ioctl for device")

	// ErrClosed is returned for I/O on a device whose registry has been
	// closed.
	ErrClosed = errors.New("device has been released")
)
