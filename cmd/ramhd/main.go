// Copyright 2021 The Fuchsia Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// ramhd brings up the emulated RAM disks and drives I/O against them.
package main

import (
	"context"
	"flag"
	"os"

	"github.com/golang/glog"
	"github.com/google/subcommands"
)

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.CommandsCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(&geometryCmd{}, "")
	subcommands.Register(&exerciseCmd{}, "")
	subcommands.Register(&dumpCmd{}, "")

	flag.Parse()
	status := subcommands.Execute(context.Background())
	glog.Flush()
	os.Exit(int(status))
}
