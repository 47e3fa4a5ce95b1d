// Copyright 2021 The Fuchsia Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package ramdisk

import (
	"fmt"

	"github.com/golang/glog"
	"github.com/pkg/errors"
)

// Direction is the direction of a transfer.
type Direction int

const (
	// Read copies from the device into the request buffer.
	Read Direction = iota
	// Write copies from the request buffer onto the device.
	Write
)

func (dir Direction) String() string {
	switch dir {
	case Read:
		return "read"
	case Write:
		return "write"
	default:
		return fmt.Sprintf("Direction(%d)", int(dir))
	}
}

// Request is a single transfer handed to a Device by a Queue.  The Queue owns
// the Request; the device only touches it between Fetch and the matching End.
type Request struct {
	// Device is the device the request was queued for.
	Device *Device
	Dir    Direction
	// Sector is the first sector of the transfer.
	Sector uint64
	// Buf is the caller's buffer.  Its length is the transfer size in bytes.
	Buf []byte
}

// Queue is the host's source of pending requests for one device.
type Queue interface {
	// Fetch returns the next pending request, or nil if there is none.
	Fetch() *Request

	// End reports the outcome of the current chunk of req.  It returns true
	// if req has more chunks to transfer, in which case req has been updated
	// in place to describe the next one.
	End(req *Request, err error) bool
}

// Dispatch runs one dispatch cycle: it drains q, transferring each request
// to or from d's arena, until q has nothing left.  d's lock is held for the
// whole cycle.  Dispatch returns the number of chunks serviced.
//
// Failed transfers are reported through q.End and never stop the cycle.
func (d *Device) Dispatch(q Queue) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	n := 0
	req := q.Fetch()
	for req != nil {
		err := d.transfer(req)
		n++
		if !q.End(req, err) {
			req = q.Fetch()
		}
	}

	if glog.V(2) {
		glog.Infof("%s: dispatch cycle serviced %d chunks\n", d.name, n)
	}
	return n
}

// transfer copies one chunk between req.Buf and the arena.  d.mu must be held.
func (d *Device) transfer(req *Request) error {
	err := d.doTransfer(req)
	if err != nil {
		d.stats.errors.Inc()
		glog.Warningf("%s: rejected %v of %d bytes at sector %d: %v\n", d.name, req.Dir, len(req.Buf), req.Sector, err)
	}
	return err
}

func (d *Device) doTransfer(req *Request) error {
	if req.Device != d {
		return errors.Wrapf(ErrInvalidArgument, "request for %s queued on %s", deviceName(req.Device), d.name)
	}
	if d.arena.Released() {
		return ErrClosed
	}

	off, err := d.translate(req.Sector, len(req.Buf))
	if err != nil {
		return err
	}
	n := int64(len(req.Buf))

	if glog.V(2) {
		glog.Infof("%s: %v %d bytes at offset %#x\n", d.name, req.Dir, n, off)
	}

	switch req.Dir {
	case Read:
		copy(req.Buf, d.arena.ReadAt(off, n))
		d.stats.reads.Inc()
		d.stats.bytesRead.Add(uint64(n))
	case Write:
		d.arena.WriteAt(req.Buf, off)
		d.stats.writes.Inc()
		d.stats.bytesWritten.Add(uint64(n))
	default:
		return errors.Wrapf(ErrInvalidArgument, "unknown direction %v", req.Dir)
	}
	return nil
}

func deviceName(d *Device) string {
	if d == nil {
		return "<nil>"
	}
	return d.name
}
