// Copyright 2021 The Fuchsia Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package namespace keeps the names under which emulated devices are
// discoverable, in name order.
package namespace

import (
	"github.com/golang/glog"
	"github.com/google/btree"
	"github.com/pkg/errors"

	"go.fuchsia.dev/ramhd/internal/sync"
	"go.fuchsia.dev/ramhd/ramdisk"
)

var (
	// ErrExists indicates that a name or minor range is already taken.
	ErrExists = errors.New("already registered")

	// ErrNotFound indicates that no matching device is registered.
	ErrNotFound = errors.New("not registered")
)

const degree = 8

type entry struct {
	name string
	dev  *ramdisk.Device
}

func (e entry) Less(than btree.Item) bool {
	return e.name < than.(entry).name
}

// Tree is an ordered namespace.  It implements ramdisk.Namespace and is safe
// for concurrent use.
type Tree struct {
	mu     sync.RWMutex
	names  *btree.BTree
	minors map[int]string
}

var _ ramdisk.Namespace = (*Tree)(nil)

// New returns an empty Tree.
func New() *Tree {
	return &Tree{
		names:  btree.New(degree),
		minors: make(map[int]string),
	}
}

// Add implements ramdisk.Namespace.Add for Tree.  It reserves the
// ramdisk.MaxPartitions minors starting at d.FirstMinor().
func (t *Tree) Add(d *ramdisk.Device) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.names.Has(entry{name: d.Name()}) {
		return errors.Wrapf(ErrExists, "name %q", d.Name())
	}
	for m := d.FirstMinor(); m < d.FirstMinor()+ramdisk.MaxPartitions; m++ {
		if owner, ok := t.minors[m]; ok {
			return errors.Wrapf(ErrExists, "minor %d held by %q", m, owner)
		}
	}

	t.names.ReplaceOrInsert(entry{name: d.Name(), dev: d})
	for m := d.FirstMinor(); m < d.FirstMinor()+ramdisk.MaxPartitions; m++ {
		t.minors[m] = d.Name()
	}
	if glog.V(1) {
		glog.Infof("Registered %s at minor %d\n", d.Name(), d.FirstMinor())
	}
	return nil
}

// Remove implements ramdisk.Namespace.Remove for Tree.
func (t *Tree) Remove(d *ramdisk.Device) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	item := t.names.Get(entry{name: d.Name()})
	if item == nil || item.(entry).dev != d {
		return errors.Wrapf(ErrNotFound, "device %q", d.Name())
	}

	t.names.Delete(item)
	for m := d.FirstMinor(); m < d.FirstMinor()+ramdisk.MaxPartitions; m++ {
		delete(t.minors, m)
	}
	if glog.V(1) {
		glog.Infof("Unregistered %s\n", d.Name())
	}
	return nil
}

// Lookup returns the device registered under name.
func (t *Tree) Lookup(name string) (*ramdisk.Device, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	item := t.names.Get(entry{name: name})
	if item == nil {
		return nil, false
	}
	return item.(entry).dev, true
}

// ByMinor returns the device owning minor, and the partition number within
// it.  Partition 0 is the whole disk.
func (t *Tree) ByMinor(minor int) (*ramdisk.Device, int, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	name, ok := t.minors[minor]
	if !ok {
		return nil, 0, false
	}
	d := t.names.Get(entry{name: name}).(entry).dev
	return d, minor - d.FirstMinor(), true
}

// Names returns every registered name in ascending order.
func (t *Tree) Names() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	names := make([]string, 0, t.names.Len())
	t.names.Ascend(func(i btree.Item) bool {
		names = append(names, i.(entry).name)
		return true
	})
	return names
}

// Len returns the number of registered devices.
func (t *Tree) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.names.Len()
}
