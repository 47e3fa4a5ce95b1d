// Copyright 2021 The Fuchsia Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package queue is an in-process request source for a ramdisk.Device.
//
// Callers Submit transfers, possibly split into several contiguous segments,
// and Kick the queue to run a dispatch cycle on the device.  Each submission
// returns a Completion that reports the outcome once every segment has been
// serviced or one of them has failed.
package queue

import (
	"github.com/golang/glog"
	"github.com/pkg/errors"

	"go.fuchsia.dev/ramhd/internal/sync"
	"go.fuchsia.dev/ramhd/ramdisk"
)

// ErrClosed is reported for submissions to, or still pending on, a closed Queue.
var ErrClosed = errors.New("queue has been closed")

// Completion reports the outcome of one submission.
type Completion struct {
	done chan struct{}
	err  error
	n    int
}

func newCompletion() *Completion {
	return &Completion{done: make(chan struct{})}
}

func (c *Completion) finish(n int, err error) {
	c.n = n
	c.err = err
	close(c.done)
}

// Done is closed once the submission has completed.
func (c *Completion) Done() <-chan struct{} {
	return c.done
}

// Wait blocks until the submission completes and returns its error.
func (c *Completion) Wait() error {
	<-c.done
	return c.err
}

// Transferred returns the number of bytes moved before completion.  It is
// only meaningful once Done is closed.
func (c *Completion) Transferred() int {
	return c.n
}

type op struct {
	req  ramdisk.Request
	segs [][]byte
	n    int
	c    *Completion
}

// Queue is a FIFO of transfers for a single device.  It implements
// ramdisk.Queue and is safe for concurrent use.
type Queue struct {
	dev *ramdisk.Device

	mu      sync.Mutex
	pending []*op
	cur     *op
	closed  bool
}

var _ ramdisk.Queue = (*Queue)(nil)

// New returns an empty Queue feeding dev.
func New(dev *ramdisk.Device) *Queue {
	return &Queue{dev: dev}
}

// Device returns the device q feeds.
func (q *Queue) Device() *ramdisk.Device {
	return q.dev
}

// Submit queues a transfer starting at sector.  segs are transferred back to
// back; every segment but the last must be a whole number of sectors.
func (q *Queue) Submit(dir ramdisk.Direction, sector uint64, segs ...[]byte) (*Completion, error) {
	if len(segs) == 0 {
		return nil, errors.Wrap(ramdisk.ErrInvalidArgument, "no segments")
	}
	bs := int(q.dev.BlockSize())
	for i, s := range segs[:len(segs)-1] {
		if len(s)%bs != 0 {
			return nil, errors.Wrapf(ramdisk.ErrBlockSize, "segment %d is %d bytes", i, len(s))
		}
	}

	o := &op{
		req:  ramdisk.Request{Device: q.dev, Dir: dir, Sector: sector, Buf: segs[0]},
		segs: segs[1:],
		c:    newCompletion(),
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil, ErrClosed
	}
	q.pending = append(q.pending, o)
	return o.c, nil
}

// Len returns the number of submissions waiting to be fetched.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Kick runs one dispatch cycle on the device and returns the number of
// segments serviced.
func (q *Queue) Kick() int {
	return q.dev.Dispatch(q)
}

// Fetch implements ramdisk.Queue.Fetch for Queue.
func (q *Queue) Fetch() *ramdisk.Request {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.cur != nil {
		return &q.cur.req
	}
	if len(q.pending) == 0 {
		return nil
	}
	q.cur = q.pending[0]
	q.pending[0] = nil
	q.pending = q.pending[1:]
	return &q.cur.req
}

// End implements ramdisk.Queue.End for Queue.
func (q *Queue) End(req *ramdisk.Request, err error) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	o := q.cur
	if o == nil || req != &o.req {
		// panic because this indicates an internal error.
		panic("End called for a request that is not in flight")
	}

	if err == nil {
		o.n += len(req.Buf)
		if len(o.segs) > 0 {
			req.Sector += uint64(len(req.Buf)) / uint64(q.dev.BlockSize())
			req.Buf = o.segs[0]
			o.segs = o.segs[1:]
			return true
		}
	}

	if glog.V(2) {
		glog.Infof("%s: completed %v of %d bytes: %v\n", q.dev.Name(), req.Dir, o.n, err)
	}
	q.cur = nil
	o.c.finish(o.n, err)
	return false
}

// Close fails every submission that has not been fetched yet with ErrClosed
// and rejects later ones.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	for _, o := range q.pending {
		o.c.finish(0, ErrClosed)
	}
	q.pending = nil
}
