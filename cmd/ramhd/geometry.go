// Copyright 2021 The Fuchsia Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package main

import (
	"context"
	"flag"
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/golang/glog"
	"github.com/google/subcommands"
	"github.com/kr/pretty"

	"go.fuchsia.dev/ramhd/geometry"
	"go.fuchsia.dev/ramhd/namespace"
	"go.fuchsia.dev/ramhd/ramdisk"
)

type geometryCmd struct {
	ramhdCmd

	// Print the raw ioctl answer for every device.
	verbose bool
}

func (*geometryCmd) Name() string {
	return "geometry"
}

func (*geometryCmd) Usage() string {
	return "geometry [flags...]\n\nflags:\n"
}

func (*geometryCmd) Synopsis() string {
	return "reports the name, size and geometry of every device"
}

func (cmd *geometryCmd) SetFlags(f *flag.FlagSet) {
	cmd.SetCommonFlags(f)
	f.BoolVar(&cmd.verbose, "v", false, "Print the full get-geometry answer for each device.")
}

func (cmd *geometryCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if err := cmd.execute(); err != nil {
		glog.Error(err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func (cmd *geometryCmd) execute() error {
	r, ns, err := cmd.open()
	if err != nil {
		return err
	}
	defer r.Close()

	return cmd.report(ns)
}

func (cmd *geometryCmd) report(ns *namespace.Tree) error {
	w := tabwriter.NewWriter(cmd.Output(), 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tMINORS\tSECTORS\tSIZE\tC/H/S")
	var raw []geometry.HDGeometry
	for _, name := range ns.Names() {
		d, _ := ns.Lookup(name)
		if err := d.Open(); err != nil {
			return fmt.Errorf("failed to open %s: %v", name, err)
		}
		var g geometry.HDGeometry
		err := d.Ioctl(ramdisk.GetGeometry, &g)
		d.Release()
		if err != nil {
			return fmt.Errorf("failed to get geometry of %s: %v", name, err)
		}
		fmt.Fprintf(w, "%s\t%d-%d\t%d\t%s\t%d/%d/%d\n",
			name, d.FirstMinor(), d.FirstMinor()+ramdisk.MaxPartitions-1,
			d.Capacity(), humanize.IBytes(uint64(d.Size())),
			g.Cylinders, g.Heads, g.Sectors)
		raw = append(raw, g)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if cmd.verbose {
		for i, name := range ns.Names() {
			fmt.Fprintf(cmd.Output(), "%s: %# v\n", name, pretty.Formatter(raw[i]))
		}
	}
	return nil
}
