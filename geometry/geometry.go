// Copyright 2021 The Fuchsia Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package geometry describes the cylinder/head/sector shape of an emulated disk.
package geometry

import (
	"math"

	"github.com/pkg/errors"
)

// Fixed shape shared by every emulated device.  These values are part of the
// device's external contract and must not change.
const (
	SectorSize      = 512
	SectorsPerTrack = 16
	Heads           = 4
	Cylinders       = 256

	TotalSectors = SectorsPerTrack * Heads * Cylinders
	DeviceSize   = SectorSize * TotalSectors // 8 MiB
)

// ErrInvalid indicates a geometry with a zero field or a CHS address that
// falls outside of its geometry.
var ErrInvalid = errors.New("invalid geometry")

// Geometry is the logical shape of a device.
type Geometry struct {
	SectorSize      uint32
	SectorsPerTrack uint32
	Heads           uint32
	Cylinders       uint32
}

// Default is the geometry of every device in the registry.
var Default = Geometry{
	SectorSize:      SectorSize,
	SectorsPerTrack: SectorsPerTrack,
	Heads:           Heads,
	Cylinders:       Cylinders,
}

// Validate returns an error if any field of g is zero or too large for
// HDGeometry.
func (g Geometry) Validate() error {
	switch {
	case g.SectorSize == 0:
		return errors.Wrap(ErrInvalid, "sector size is zero")
	case g.SectorsPerTrack == 0:
		return errors.Wrap(ErrInvalid, "sectors per track is zero")
	case g.Heads == 0:
		return errors.Wrap(ErrInvalid, "head count is zero")
	case g.Cylinders == 0:
		return errors.Wrap(ErrInvalid, "cylinder count is zero")
	case g.SectorsPerTrack > math.MaxUint8:
		return errors.Wrapf(ErrInvalid, "%d sectors per track do not fit in a geometry report", g.SectorsPerTrack)
	case g.Heads > math.MaxUint8:
		return errors.Wrapf(ErrInvalid, "%d heads do not fit in a geometry report", g.Heads)
	case g.Cylinders > math.MaxUint16:
		return errors.Wrapf(ErrInvalid, "%d cylinders do not fit in a geometry report", g.Cylinders)
	}
	return nil
}

// TotalSectors returns the number of addressable sectors.
func (g Geometry) TotalSectors() uint64 {
	return uint64(g.SectorsPerTrack) * uint64(g.Heads) * uint64(g.Cylinders)
}

// Size returns the capacity in bytes.
func (g Geometry) Size() int64 {
	return int64(g.TotalSectors()) * int64(g.SectorSize)
}

// HDGeometry is the answer to a get-geometry ioctl.  Field widths follow the
// host's hd_geometry layout.
type HDGeometry struct {
	Heads     uint8
	Sectors   uint8
	Cylinders uint16
	// Start is the first sector of the queried device within its enclosing
	// disk.  It is 0 for a whole disk.
	Start uint64
}

// Report returns the geometry a caller sees for a device starting at start.
// start is supplied by the partition layer and passed through unchanged.
func (g Geometry) Report(start uint64) HDGeometry {
	return HDGeometry{
		Heads:     uint8(g.Heads),
		Sectors:   uint8(g.SectorsPerTrack),
		Cylinders: uint16(g.Cylinders),
		Start:     start,
	}
}

// CHS is a cylinder/head/sector address.  Sectors are 1-based.
type CHS struct {
	C uint32
	H uint32
	S uint32
}

// LBA converts chs to a logical block address in g: (C*HPC + H)*SPT + (S-1).
func (chs CHS) LBA(g Geometry) (uint64, error) {
	if chs.C >= g.Cylinders || chs.H >= g.Heads || chs.S == 0 || chs.S > g.SectorsPerTrack {
		return 0, errors.Wrapf(ErrInvalid, "CHS %d/%d/%d outside of %d/%d/%d",
			chs.C, chs.H, chs.S, g.Cylinders, g.Heads, g.SectorsPerTrack)
	}
	hpc := uint64(g.Heads)
	spt := uint64(g.SectorsPerTrack)
	return (uint64(chs.C)*hpc+uint64(chs.H))*spt + uint64(chs.S-1), nil
}

// CHSOf converts a logical block address to its CHS address in g.
func (g Geometry) CHSOf(lba uint64) (CHS, error) {
	if lba >= g.TotalSectors() {
		return CHS{}, errors.Wrapf(ErrInvalid, "sector %d beyond the last sector %d", lba, g.TotalSectors()-1)
	}
	spt := uint64(g.SectorsPerTrack)
	hpc := uint64(g.Heads)
	return CHS{
		C: uint32(lba / (spt * hpc)),
		H: uint32((lba / spt) % hpc),
		S: uint32(lba%spt) + 1,
	}, nil
}
