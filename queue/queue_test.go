// Copyright 2021 The Fuchsia Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package queue

import (
	"bytes"
	"testing"

	"github.com/pkg/errors"
	"go.uber.org/goleak"
	"golang.org/x/sync/errgroup"

	"go.fuchsia.dev/ramhd/geometry"
	"go.fuchsia.dev/ramhd/ramdisk"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("github.com/golang/glog.(*loggingT).flushDaemon"))
}

func setUp(t *testing.T) *ramdisk.Registry {
	t.Helper()
	r, err := ramdisk.NewRegistry(ramdisk.DefaultConfig())
	if err != nil {
		t.Fatalf("NewRegistry() failed: %v", err)
	}
	t.Cleanup(func() {
		if err := r.Close(); err != nil {
			t.Errorf("Close() failed: %v", err)
		}
	})
	return r
}

func TestSubmitKickWait(t *testing.T) {
	q := New(setUp(t).Device(0))

	want := bytes.Repeat([]byte{0xab}, 512)
	wc, err := q.Submit(ramdisk.Write, 0, want)
	if err != nil {
		t.Fatalf("Submit(write) failed: %v", err)
	}
	got := make([]byte, 512)
	rc, err := q.Submit(ramdisk.Read, 0, got)
	if err != nil {
		t.Fatalf("Submit(read) failed: %v", err)
	}
	zero := make([]byte, 512)
	zc, err := q.Submit(ramdisk.Read, 1, zero)
	if err != nil {
		t.Fatalf("Submit(read) failed: %v", err)
	}
	if got := q.Len(); got != 3 {
		t.Errorf("Len() = %d before Kick, want 3", got)
	}

	if n := q.Kick(); n != 3 {
		t.Errorf("Kick() = %d, want 3", n)
	}
	for _, c := range []*Completion{wc, rc, zc} {
		if err := c.Wait(); err != nil {
			t.Fatalf("transfer failed: %v", err)
		}
		if c.Transferred() != 512 {
			t.Errorf("Transferred() = %d, want 512", c.Transferred())
		}
	}
	if !bytes.Equal(got, want) {
		t.Errorf("sector 0 = %x, want %x", got, want)
	}
	if !bytes.Equal(zero, make([]byte, 512)) {
		t.Errorf("sector 1 = %x, want zeroes", zero)
	}
	if got := q.Len(); got != 0 {
		t.Errorf("Len() = %d after Kick, want 0", got)
	}
}

func TestSegmentedTransfer(t *testing.T) {
	q := New(setUp(t).Device(1))

	segs := [][]byte{
		bytes.Repeat([]byte{1}, 1024),
		bytes.Repeat([]byte{2}, 512),
		bytes.Repeat([]byte{3}, 100),
	}
	c, err := q.Submit(ramdisk.Write, 4, segs...)
	if err != nil {
		t.Fatalf("Submit() failed: %v", err)
	}
	if n := q.Kick(); n != 3 {
		t.Errorf("Kick() = %d, want 3 segments", n)
	}
	if err := c.Wait(); err != nil {
		t.Fatalf("segmented write failed: %v", err)
	}
	if got := c.Transferred(); got != 1636 {
		t.Errorf("Transferred() = %d, want 1636", got)
	}

	got := make([]byte, 1636)
	rc, err := q.Submit(ramdisk.Read, 4, got)
	if err != nil {
		t.Fatalf("Submit() failed: %v", err)
	}
	q.Kick()
	if err := rc.Wait(); err != nil {
		t.Fatalf("read back failed: %v", err)
	}
	if want := bytes.Join(segs, nil); !bytes.Equal(got, want) {
		t.Error("segments were not written back to back")
	}
}

func TestSegmentFailureCompletesRequest(t *testing.T) {
	q := New(setUp(t).Device(0))

	c, err := q.Submit(ramdisk.Write, geometry.TotalSectors-1, make([]byte, 512), make([]byte, 512), make([]byte, 512))
	if err != nil {
		t.Fatalf("Submit() failed: %v", err)
	}
	next, err := q.Submit(ramdisk.Read, 0, make([]byte, 512))
	if err != nil {
		t.Fatalf("Submit() failed: %v", err)
	}

	if n := q.Kick(); n != 3 {
		t.Errorf("Kick() = %d, want 3", n)
	}
	if err := c.Wait(); !errors.Is(err, ramdisk.ErrOutOfRange) {
		t.Errorf("overflowing write = %v, want ErrOutOfRange", err)
	}
	if got := c.Transferred(); got != 512 {
		t.Errorf("Transferred() = %d, want the 512 bytes before the failure", got)
	}
	if err := next.Wait(); err != nil {
		t.Errorf("request after a failed one = %v", err)
	}
}

func TestSubmitErrors(t *testing.T) {
	q := New(setUp(t).Device(0))

	if _, err := q.Submit(ramdisk.Read, 0); !errors.Is(err, ramdisk.ErrInvalidArgument) {
		t.Errorf("Submit(no segments) = %v, want ErrInvalidArgument", err)
	}
	if _, err := q.Submit(ramdisk.Read, 0, make([]byte, 100), make([]byte, 512)); !errors.Is(err, ramdisk.ErrBlockSize) {
		t.Errorf("Submit(short leading segment) = %v, want ErrBlockSize", err)
	}
}

func TestClose(t *testing.T) {
	q := New(setUp(t).Device(0))

	c, err := q.Submit(ramdisk.Write, 0, make([]byte, 512))
	if err != nil {
		t.Fatalf("Submit() failed: %v", err)
	}
	q.Close()
	q.Close()

	select {
	case <-c.Done():
	default:
		t.Fatal("pending submission not completed by Close")
	}
	if err := c.Wait(); !errors.Is(err, ErrClosed) {
		t.Errorf("pending submission = %v, want ErrClosed", err)
	}
	if _, err := q.Submit(ramdisk.Write, 0, make([]byte, 512)); !errors.Is(err, ErrClosed) {
		t.Errorf("Submit() after Close = %v, want ErrClosed", err)
	}
	if n := q.Kick(); n != 0 {
		t.Errorf("Kick() after Close = %d, want 0", n)
	}
}

func TestEndPanicsForUnknownRequest(t *testing.T) {
	r := setUp(t)
	q := New(r.Device(0))
	defer func() {
		if recover() == nil {
			t.Error("End() of a request that was never fetched did not panic")
		}
	}()
	q.End(&ramdisk.Request{Device: r.Device(0)}, nil)
}

// Two callers, each with its own queue, write the same range of the same
// device.  The device lock must keep each write whole.
func TestConcurrentQueuesSerialize(t *testing.T) {
	const size = 512 * 1024
	dev := setUp(t).Device(0)
	patterns := [][]byte{bytes.Repeat([]byte{0x0f}, size), bytes.Repeat([]byte{0xf0}, size)}

	for i := 0; i < 20; i++ {
		var eg errgroup.Group
		for _, p := range patterns {
			p := p
			eg.Go(func() error {
				q := New(dev)
				c, err := q.Submit(ramdisk.Write, 0, p[:size/2], p[size/2:])
				if err != nil {
					return err
				}
				q.Kick()
				return c.Wait()
			})
		}
		if err := eg.Wait(); err != nil {
			t.Fatalf("concurrent write failed: %v", err)
		}

		got := make([]byte, size)
		if _, err := dev.ReadAt(got, 0); err != nil {
			t.Fatalf("ReadAt() failed: %v", err)
		}
		if !bytes.Equal(got, patterns[0]) && !bytes.Equal(got, patterns[1]) {
			t.Fatalf("iteration %d: device holds a mix of both writes", i)
		}
	}
}

// A shared queue kicked from several goroutines services every submission
// exactly once.
func TestSharedQueue(t *testing.T) {
	dev := setUp(t).Device(1)
	q := New(dev)

	var eg errgroup.Group
	for i := 0; i < 16; i++ {
		i := i
		eg.Go(func() error {
			c, err := q.Submit(ramdisk.Write, uint64(i), bytes.Repeat([]byte{byte(i)}, 512))
			if err != nil {
				return err
			}
			q.Kick()
			return c.Wait()
		})
	}
	if err := eg.Wait(); err != nil {
		t.Fatalf("shared queue write failed: %v", err)
	}

	got := make([]byte, 16*512)
	if _, err := dev.ReadAt(got, 0); err != nil {
		t.Fatalf("ReadAt() failed: %v", err)
	}
	for i := 0; i < 16; i++ {
		if !bytes.Equal(got[i*512:(i+1)*512], bytes.Repeat([]byte{byte(i)}, 512)) {
			t.Errorf("sector %d holds the wrong data", i)
		}
	}
	if got := dev.Stats().Writes; got != 16 {
		t.Errorf("Stats().Writes = %d, want 16", got)
	}
}
