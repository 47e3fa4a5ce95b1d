// Copyright 2021 The Fuchsia Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"strconv"

	"github.com/golang/glog"
	"github.com/google/subcommands"

	"go.fuchsia.dev/ramhd/queue"
	"go.fuchsia.dev/ramhd/ramdisk"
)

type dumpCmd struct {
	ramhdCmd

	device  string
	sector  uint64
	sectors int
	fill    string
}

func (*dumpCmd) Name() string {
	return "dump"
}

func (*dumpCmd) Usage() string {
	return "dump [flags...]\n\nflags:\n"
}

func (*dumpCmd) Synopsis() string {
	return "optionally fills sectors of a device, then hex dumps them"
}

func (cmd *dumpCmd) SetFlags(f *flag.FlagSet) {
	cmd.SetCommonFlags(f)
	f.StringVar(&cmd.device, "device", ramdisk.DefaultPrefix+"a", "Name of the device to dump.")
	f.Uint64Var(&cmd.sector, "sector", 0, "First sector to dump.")
	f.IntVar(&cmd.sectors, "sectors", 1, "Number of sectors to dump.")
	f.StringVar(&cmd.fill, "fill", "", "If set, a byte value (e.g. 0xab) written over the sectors before dumping.")
}

func (cmd *dumpCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if err := cmd.execute(); err != nil {
		glog.Error(err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func (cmd *dumpCmd) execute() error {
	if cmd.sectors <= 0 {
		return fmt.Errorf("-sectors must be positive")
	}

	r, ns, err := cmd.open()
	if err != nil {
		return err
	}
	defer r.Close()

	d, ok := ns.Lookup(cmd.device)
	if !ok {
		return fmt.Errorf("no device named %q; have %v", cmd.device, ns.Names())
	}
	return cmd.dump(d)
}

func (cmd *dumpCmd) dump(d *ramdisk.Device) error {
	bs := int(d.BlockSize())
	q := queue.New(d)
	defer q.Close()

	if cmd.fill != "" {
		v, err := strconv.ParseUint(cmd.fill, 0, 8)
		if err != nil {
			return fmt.Errorf("invalid -fill %q: %v", cmd.fill, err)
		}
		c, err := q.Submit(ramdisk.Write, cmd.sector, bytes.Repeat([]byte{byte(v)}, cmd.sectors*bs))
		if err != nil {
			return err
		}
		q.Kick()
		if err := c.Wait(); err != nil {
			return fmt.Errorf("failed to fill %s: %v", d.Name(), err)
		}
	}

	buf := make([]byte, cmd.sectors*bs)
	c, err := q.Submit(ramdisk.Read, cmd.sector, buf)
	if err != nil {
		return err
	}
	q.Kick()
	if err := c.Wait(); err != nil {
		return fmt.Errorf("failed to read %s: %v", d.Name(), err)
	}

	geo := d.Geometry()
	for i := 0; i < cmd.sectors; i++ {
		lba := cmd.sector + uint64(i)
		chs, err := geo.CHSOf(lba)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.Output(), "%s sector %d (C/H/S %d/%d/%d):\n", d.Name(), lba, chs.C, chs.H, chs.S)
		fmt.Fprint(cmd.Output(), hex.Dump(buf[i*bs:(i+1)*bs]))
	}
	return nil
}
