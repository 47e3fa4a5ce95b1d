// Copyright 2021 The Fuchsia Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package arena provides the fixed-length, zero-initialized byte buffer that
// backs the storage of one emulated block device.
package arena

import (
	"github.com/golang/glog"
	"github.com/pkg/errors"
)

// ErrAllocation indicates that the memory for an arena could not be reserved.
var ErrAllocation = errors.New("arena allocation failed")

// Allocator reserves and returns the memory behind arenas.
type Allocator interface {
	// Allocate returns a buffer of exactly n bytes, or an error if the memory
	// cannot be reserved.
	Allocate(n int) ([]byte, error)

	// Free returns a buffer previously obtained from Allocate.
	Free(b []byte)
}

type heap struct{}

func (heap) Allocate(n int) ([]byte, error) {
	return make([]byte, n), nil
}

func (heap) Free([]byte) {}

// Heap is the default Allocator, backed by the Go heap.
var Heap Allocator = heap{}

// Arena owns the raw bytes of a single device.
//
// Arena performs no bounds checking of its own: callers are expected to
// validate offsets against Len() before touching the buffer.
type Arena struct {
	buf   []byte
	alloc Allocator
}

// New reserves n bytes from alloc and zero-fills them.  If alloc is nil, Heap
// is used.  Any failure is returned wrapped around ErrAllocation.
func New(alloc Allocator, n int) (*Arena, error) {
	if alloc == nil {
		alloc = Heap
	}
	if n <= 0 {
		return nil, errors.Wrapf(ErrAllocation, "invalid length %d", n)
	}

	buf, err := alloc.Allocate(n)
	if err != nil {
		return nil, errors.Wrapf(ErrAllocation, "reserving %d bytes: %v", n, err)
	}
	if len(buf) != n {
		alloc.Free(buf)
		return nil, errors.Wrapf(ErrAllocation, "allocator returned %d bytes, want %d", len(buf), n)
	}

	// The allocator may hand back recycled memory.
	for i := range buf {
		buf[i] = 0
	}

	if glog.V(2) {
		glog.Infof("Allocated arena of %d bytes\n", n)
	}
	return &Arena{buf: buf, alloc: alloc}, nil
}

// Allocate is shorthand for New(Heap, n).
func Allocate(n int) (*Arena, error) {
	return New(Heap, n)
}

// Len returns the fixed length of the arena in bytes, or 0 once released.
func (a *Arena) Len() int64 {
	return int64(len(a.buf))
}

// ReadAt returns a view of the n bytes starting at off.  The view aliases the
// arena and must not be retained past the caller's critical section.
func (a *Arena) ReadAt(off, n int64) []byte {
	return a.buf[off : off+n : off+n]
}

// WriteAt copies p into the arena starting at off and returns the number of
// bytes copied.
func (a *Arena) WriteAt(p []byte, off int64) int {
	return copy(a.buf[off:], p)
}

// Zero clears the n bytes starting at off.
func (a *Arena) Zero(off, n int64) {
	b := a.buf[off : off+n]
	for i := range b {
		b[i] = 0
	}
}

// Release returns the arena's memory to its allocator.  Calls after the first
// do nothing.
func (a *Arena) Release() {
	if a.buf == nil {
		return
	}
	if glog.V(2) {
		glog.Infof("Releasing arena of %d bytes\n", len(a.buf))
	}
	a.alloc.Free(a.buf)
	a.buf = nil
}

// Released reports whether Release has been called.
func (a *Arena) Released() bool {
	return a.buf == nil
}
