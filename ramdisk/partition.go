// Copyright 2021 The Fuchsia Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package ramdisk

import (
	"fmt"

	"github.com/golang/glog"
	"github.com/pkg/errors"

	"go.fuchsia.dev/ramhd/block"
)

// Partition is a range of sectors of a Device, as laid out by the host's
// partitioning layer.  It implements block.Device relative to its first
// sector; all I/O goes through the parent device and its lock.
type Partition struct {
	dev     *Device
	number  int
	start   uint64
	sectors uint64
}

var _ block.Device = (*Partition)(nil)

// AddPartition exposes sectors [start, start+sectors) of d as the next
// partition.  Partitions may not overlap, must fit on the device, and at most
// MaxPartitions-1 may exist since minor 0 is the whole disk.
func (d *Device) AddPartition(start, sectors uint64) (*Partition, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.arena.Released() {
		return nil, ErrClosed
	}
	if len(d.parts) >= MaxPartitions-1 {
		return nil, errors.Wrapf(ErrInvalidArgument, "%s already has %d partitions", d.name, len(d.parts))
	}
	if sectors == 0 || start >= d.Capacity() || sectors > d.Capacity()-start {
		return nil, errors.Wrapf(ErrOutOfRange, "partition [%d, %d) on %d sectors", start, start+sectors, d.Capacity())
	}
	for _, p := range d.parts {
		if start < p.start+p.sectors && p.start < start+sectors {
			return nil, errors.Wrapf(ErrInvalidArgument, "partition [%d, %d) overlaps %s", start, start+sectors, p.Path())
		}
	}

	p := &Partition{
		dev:     d,
		number:  len(d.parts) + 1,
		start:   start,
		sectors: sectors,
	}
	d.parts = append(d.parts, p)

	if glog.V(1) {
		glog.Infof("%s: added partition %s at sector %d, %d sectors\n", d.name, p.Path(), start, sectors)
	}
	return p, nil
}

// Partitions returns the partitions added to d, in order.
func (d *Device) Partitions() []*Partition {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Partition(nil), d.parts...)
}

// Device returns the disk p belongs to.
func (p *Partition) Device() *Device {
	return p.dev
}

// Minor returns p's minor number.
func (p *Partition) Minor() int {
	return p.dev.FirstMinor() + p.number
}

// Start returns p's first sector on its device.
func (p *Partition) Start() uint64 {
	return p.start
}

// Sectors returns p's length in sectors.
func (p *Partition) Sectors() uint64 {
	return p.sectors
}

// Ioctl is Device.Ioctl, except that GetGeometry reports p's start sector.
func (p *Partition) Ioctl(cmd IoctlCmd, arg interface{}) error {
	return ioctl(p.dev.geo, p.start, cmd, arg)
}

func (p *Partition) check(n int, off int64) error {
	if off < 0 || off+int64(n) > p.Size() {
		return errors.Wrapf(ErrOutOfRange, "[%v, %v) on %s", off, off+int64(n), p.Path())
	}
	return nil
}

func (p *Partition) base() int64 {
	return int64(p.start) * p.BlockSize()
}

// BlockSize implements block.Device.BlockSize for Partition.
func (p *Partition) BlockSize() int64 {
	return p.dev.BlockSize()
}

// Size implements block.Device.Size for Partition.
func (p *Partition) Size() int64 {
	return int64(p.sectors) * p.BlockSize()
}

// ReadAt implements block.Device.ReadAt for Partition.
func (p *Partition) ReadAt(b []byte, off int64) (int, error) {
	if err := p.check(len(b), off); err != nil {
		return 0, err
	}
	return p.dev.ReadAt(b, p.base()+off)
}

// WriteAt implements block.Device.WriteAt for Partition.
func (p *Partition) WriteAt(b []byte, off int64) (int, error) {
	if err := p.check(len(b), off); err != nil {
		return 0, err
	}
	return p.dev.WriteAt(b, p.base()+off)
}

// Flush implements block.Device.Flush for Partition.
func (p *Partition) Flush() error {
	return p.dev.Flush()
}

// Discard implements block.Device.Discard for Partition.
func (p *Partition) Discard(off, len int64) error {
	if err := p.check(int(len), off); err != nil {
		return err
	}
	return p.dev.Discard(p.base()+off, len)
}

// Close implements block.Device.Close for Partition.
func (p *Partition) Close() error {
	return nil
}

// Path implements block.Device.Path for Partition.
func (p *Partition) Path() string {
	return fmt.Sprintf("%s%d", p.dev.name, p.number)
}
