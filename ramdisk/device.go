// Copyright 2021 The Fuchsia Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package ramdisk

import (
	"fmt"
	"os"

	"github.com/golang/glog"
	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"go.fuchsia.dev/ramhd/arena"
	"go.fuchsia.dev/ramhd/block"
	"go.fuchsia.dev/ramhd/geometry"
	"go.fuchsia.dev/ramhd/internal/sync"
)

// IoctlCmd identifies a device control operation.
type IoctlCmd uint32

// GetGeometry asks for the device's geometry.  The value matches the host's
// HDIO_GETGEO.
const GetGeometry IoctlCmd = 0x0301

// GeometryWriter receives the answer to a GetGeometry ioctl on behalf of a
// caller whose memory the device cannot address directly.
type GeometryWriter interface {
	WriteGeometry(geometry.HDGeometry) error
}

// Stats is a snapshot of a device's I/O counters.
type Stats struct {
	Opens        uint64
	Reads        uint64
	Writes       uint64
	BytesRead    uint64
	BytesWritten uint64
	Errors       uint64
}

type counters struct {
	opens        atomic.Uint64
	reads        atomic.Uint64
	writes       atomic.Uint64
	bytesRead    atomic.Uint64
	bytesWritten atomic.Uint64
	errors       atomic.Uint64
}

// Device is one emulated disk.
type Device struct {
	index int
	name  string
	geo   geometry.Geometry

	// mu serializes every access to arena and parts.
	mu    sync.Mutex
	arena *arena.Arena
	parts []*Partition

	// registered is owned by the Registry.
	registered bool

	stats counters
}

var _ block.Device = (*Device)(nil)

func newDevice(index int, prefix string, a *arena.Arena, geo geometry.Geometry) *Device {
	return &Device{
		index: index,
		name:  fmt.Sprintf("%s%c", prefix, 'a'+index),
		geo:   geo,
		arena: a,
	}
}

// Index returns the device's slot in its registry.
func (d *Device) Index() int {
	return d.index
}

// Name returns the name the device is exposed under, e.g. "ramsda".
func (d *Device) Name() string {
	return d.name
}

// FirstMinor returns the first of the MaxPartitions minors reserved for d.
func (d *Device) FirstMinor() int {
	return d.index * MaxPartitions
}

// Geometry returns the device's fixed geometry.
func (d *Device) Geometry() geometry.Geometry {
	return d.geo
}

// Capacity returns the number of sectors on the device.
func (d *Device) Capacity() uint64 {
	return d.geo.TotalSectors()
}

// Open does nothing beyond counting the call; devices are not reference counted.
func (d *Device) Open() error {
	d.stats.opens.Inc()
	return nil
}

// Release does nothing.
func (d *Device) Release() error {
	return nil
}

// Ioctl performs a device control operation.  GetGeometry stores the
// geometry into arg, which must be a non-nil *geometry.HDGeometry or a
// GeometryWriter.  Every other command fails with ErrUnsupported.
func (d *Device) Ioctl(cmd IoctlCmd, arg interface{}) error {
	return ioctl(d.geo, 0, cmd, arg)
}

func ioctl(geo geometry.Geometry, start uint64, cmd IoctlCmd, arg interface{}) error {
	if cmd != GetGeometry {
		return errors.Wrapf(ErrUnsupported, "ioctl %#x", uint32(cmd))
	}

	g := geo.Report(start)
	switch out := arg.(type) {
	case *geometry.HDGeometry:
		if out == nil {
			return errors.Wrap(ErrInvalidArgument, "nil geometry output")
		}
		*out = g
		return nil
	case GeometryWriter:
		if err := out.WriteGeometry(g); err != nil {
			if errors.Is(err, os.ErrPermission) {
				return errors.Wrapf(ErrPermissionDenied, "writing geometry: %v", err)
			}
			return errors.Wrapf(ErrInvalidArgument, "writing geometry: %v", err)
		}
		return nil
	}
	return errors.Wrapf(ErrInvalidArgument, "cannot store geometry in %T", arg)
}

// Stats returns a snapshot of the device's counters.
func (d *Device) Stats() Stats {
	return Stats{
		Opens:        d.stats.opens.Load(),
		Reads:        d.stats.reads.Load(),
		Writes:       d.stats.writes.Load(),
		BytesRead:    d.stats.bytesRead.Load(),
		BytesWritten: d.stats.bytesWritten.Load(),
		Errors:       d.stats.errors.Load(),
	}
}

// translate converts a transfer of n bytes starting at sector into an
// arena-relative offset, rejecting any range that does not fit in the arena.
// d.mu must be held.
func (d *Device) translate(sector uint64, n int) (int64, error) {
	size := uint64(d.arena.Len())
	ss := uint64(d.geo.SectorSize)
	if sector > size/ss {
		return 0, errors.Wrapf(ErrOutOfRange, "sector %d beyond %d sectors", sector, size/ss)
	}
	off := sector * ss
	if uint64(n) > size-off {
		return 0, errors.Wrapf(ErrOutOfRange, "[%v, %v)", off, off+uint64(n))
	}
	return int64(off), nil
}

func (d *Device) check(p []byte, off int64) error {
	bs := d.BlockSize()
	if off%bs != 0 {
		return errors.Wrap(ErrBlockSize, "off")
	}
	if int64(len(p))%bs != 0 {
		return errors.Wrap(ErrBlockSize, "len(p)")
	}
	if off < 0 {
		return errors.Wrapf(ErrOutOfRange, "negative offset %d", off)
	}
	return nil
}

// BlockSize implements block.Device.BlockSize for Device.
func (d *Device) BlockSize() int64 {
	return int64(d.geo.SectorSize)
}

// Size implements block.Device.Size for Device.
func (d *Device) Size() int64 {
	return d.geo.Size()
}

// ReadAt implements block.Device.ReadAt for Device.
func (d *Device) ReadAt(p []byte, off int64) (int, error) {
	if err := d.check(p, off); err != nil {
		return 0, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.transfer(&Request{Device: d, Dir: Read, Sector: uint64(off / d.BlockSize()), Buf: p}); err != nil {
		return 0, err
	}
	return len(p), nil
}

// WriteAt implements block.Device.WriteAt for Device.
func (d *Device) WriteAt(p []byte, off int64) (int, error) {
	if err := d.check(p, off); err != nil {
		return 0, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.transfer(&Request{Device: d, Dir: Write, Sector: uint64(off / d.BlockSize()), Buf: p}); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Flush implements block.Device.Flush for Device.  Storage is volatile, so
// there is nothing to commit.
func (d *Device) Flush() error {
	return nil
}

// Discard implements block.Device.Discard for Device.  Discarded ranges read
// back as zeroes.
func (d *Device) Discard(off, len int64) error {
	if off%d.BlockSize() != 0 || len%d.BlockSize() != 0 {
		return errors.Wrapf(ErrBlockSize, "discard [%v, %v)", off, off+len)
	}
	if off < 0 || len < 0 {
		return errors.Wrapf(ErrOutOfRange, "discard [%v, %v)", off, off+len)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.arena.Released() {
		return ErrClosed
	}
	start, err := d.translate(uint64(off/d.BlockSize()), int(len))
	if err != nil {
		return err
	}
	if glog.V(2) {
		glog.Infof("%s: discarding [%v, %v)\n", d.name, off, off+len)
	}
	d.arena.Zero(start, len)
	return nil
}

// Close implements block.Device.Close for Device.  The device's memory is
// owned by its Registry and stays valid until the Registry is closed.
func (d *Device) Close() error {
	return nil
}

// Path implements block.Device.Path for Device.
func (d *Device) Path() string {
	return d.name
}

// release frees the arena.  Any later I/O fails with ErrClosed.
func (d *Device) release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.arena.Release()
	d.parts = nil
}
