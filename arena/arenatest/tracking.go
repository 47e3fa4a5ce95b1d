// Copyright 2021 The Fuchsia Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package arenatest provides an allocation-tracking arena.Allocator for tests.
package arenatest

import (
	"fmt"
	"sync"

	"go.fuchsia.dev/ramhd/arena"
)

// Tracking is an arena.Allocator that counts live allocations and can be
// told to fail a specific allocation.
type Tracking struct {
	// FailAt is the 1-based index of the allocation that should fail.  Zero
	// means never fail.
	FailAt int

	mu     sync.Mutex
	calls  int
	live   int
	frees  int
	failed bool
}

var _ arena.Allocator = (*Tracking)(nil)

// Allocate implements arena.Allocator.Allocate for Tracking.
func (t *Tracking) Allocate(n int) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.calls++
	if t.calls == t.FailAt {
		t.failed = true
		return nil, fmt.Errorf("injected failure on allocation %d", t.calls)
	}
	t.live++
	return make([]byte, n), nil
}

// Free implements arena.Allocator.Free for Tracking.
func (t *Tracking) Free([]byte) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.live--
	t.frees++
}

// Live returns the number of allocations that have not been freed.
func (t *Tracking) Live() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.live
}

// Frees returns the number of calls to Free.
func (t *Tracking) Frees() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.frees
}

// Failed reports whether the injected failure has fired.
func (t *Tracking) Failed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.failed
}
