// Copyright 2021 The Fuchsia Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package ramdisk

import (
	"github.com/golang/glog"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.fuchsia.dev/ramhd/arena"
	"go.fuchsia.dev/ramhd/geometry"
)

// Namespace is where the host exposes devices by name.
type Namespace interface {
	// Add makes d discoverable under d.Name().
	Add(d *Device) error
	// Remove withdraws a device previously added.
	Remove(d *Device) error
}

// Config controls how a Registry builds its devices.  Zero fields take the
// values from DefaultConfig.
type Config struct {
	// Prefix is prepended to each device's letter to form its name.
	Prefix string
	// Count is the number of devices, at most MaxDevices.
	Count int
	// Geometry is the shape shared by every device.
	Geometry geometry.Geometry
	// Allocator reserves device arenas.
	Allocator arena.Allocator
	// Namespace, if set, is told about every device.
	Namespace Namespace
}

// DefaultConfig returns the configuration of a standard registry: MaxDevices
// devices named "ramsda", "ramsdb", ... with geometry.Default, allocated from
// the Go heap and registered nowhere.
func DefaultConfig() Config {
	return Config{
		Prefix:    DefaultPrefix,
		Count:     MaxDevices,
		Geometry:  geometry.Default,
		Allocator: arena.Heap,
	}
}

func (c Config) withDefaults() (Config, error) {
	def := DefaultConfig()
	if c.Prefix == "" {
		c.Prefix = def.Prefix
	}
	if c.Count == 0 {
		c.Count = def.Count
	}
	if c.Geometry == (geometry.Geometry{}) {
		c.Geometry = def.Geometry
	}
	if c.Allocator == nil {
		c.Allocator = def.Allocator
	}

	if c.Count < 0 || c.Count > MaxDevices {
		return c, errors.Wrapf(ErrInvalidArgument, "device count %d not in [1, %d]", c.Count, MaxDevices)
	}
	if err := c.Geometry.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

// Registry owns a fixed set of devices from creation until Close.
type Registry struct {
	devices []*Device
	ns      Namespace
	closed  bool
}

// NewRegistry allocates and registers every device described by cfg.  If any
// step fails, everything created so far is torn down before the error is
// returned; arena failures wrap arena.ErrAllocation.
func NewRegistry(cfg Config) (*Registry, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}

	r := &Registry{ns: cfg.Namespace}
	for i := 0; i < cfg.Count; i++ {
		if err := r.add(i, cfg); err != nil {
			glog.Errorf("Failed to bring up device %d: %v", i, err)
			return nil, multierr.Append(err, r.Close())
		}
	}

	if glog.V(1) {
		glog.Infof("Registry up with %d devices of %d bytes\n", len(r.devices), cfg.Geometry.Size())
	}
	return r, nil
}

func (r *Registry) add(i int, cfg Config) error {
	a, err := arena.New(cfg.Allocator, int(cfg.Geometry.Size()))
	if err != nil {
		return errors.Wrapf(err, "device %d", i)
	}

	d := newDevice(i, cfg.Prefix, a, cfg.Geometry)
	r.devices = append(r.devices, d)

	if r.ns != nil {
		if err := r.ns.Add(d); err != nil {
			return errors.Wrapf(err, "registering %s", d.name)
		}
		d.registered = true
	}

	if glog.V(1) {
		glog.Infof("Created %s: %d sectors, minors [%d, %d)\n", d.name, d.Capacity(), d.FirstMinor(), d.FirstMinor()+MaxPartitions)
	}
	return nil
}

// Device returns the device in slot i, or nil if there is none.
func (r *Registry) Device(i int) *Device {
	if i < 0 || i >= len(r.devices) {
		return nil
	}
	return r.devices[i]
}

// Lookup returns the device named name.
func (r *Registry) Lookup(name string) (*Device, bool) {
	for _, d := range r.devices {
		if d.name == name {
			return d, true
		}
	}
	return nil, false
}

// Devices returns every device in slot order.
func (r *Registry) Devices() []*Device {
	return append([]*Device(nil), r.devices...)
}

// Close withdraws every device from the namespace and releases its memory.
// It must not run concurrently with I/O.  Calls after the first do nothing.
func (r *Registry) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true

	var err error
	for i := len(r.devices) - 1; i >= 0; i-- {
		d := r.devices[i]
		if d.registered {
			if rerr := r.ns.Remove(d); rerr != nil {
				glog.Errorf("Failed to remove %s from namespace: %v", d.name, rerr)
				err = multierr.Append(err, errors.Wrapf(rerr, "removing %s", d.name))
			}
			d.registered = false
		}
		d.release()

		if glog.V(1) {
			glog.Infof("Released %s\n", d.name)
		}
	}
	r.devices = nil
	return err
}
