// Copyright 2021 The Fuchsia Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"math/rand"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/golang/glog"
	"github.com/google/subcommands"
	"golang.org/x/sync/errgroup"

	"go.fuchsia.dev/ramhd/queue"
	"go.fuchsia.dev/ramhd/ramdisk"
)

type exerciseCmd struct {
	ramhdCmd

	rounds       int
	chunkSectors int
	maxSectors   int
	seed         int64
}

func (*exerciseCmd) Name() string {
	return "exercise"
}

func (*exerciseCmd) Usage() string {
	return "exercise [flags...]\n\nflags:\n"
}

func (*exerciseCmd) Synopsis() string {
	return "writes random data to every device concurrently and verifies it reads back"
}

func (cmd *exerciseCmd) SetFlags(f *flag.FlagSet) {
	cmd.SetCommonFlags(f)
	f.IntVar(&cmd.rounds, "rounds", 16, "Number of write/verify rounds per device.")
	f.IntVar(&cmd.chunkSectors, "chunk", 8, "Sectors per request segment.")
	f.IntVar(&cmd.maxSectors, "max-sectors", 256, "Largest transfer in sectors.")
	f.Int64Var(&cmd.seed, "seed", 1, "Seed for offsets and data.")
}

func (cmd *exerciseCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if err := cmd.execute(ctx); err != nil {
		glog.Error(err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func (cmd *exerciseCmd) execute(ctx context.Context) error {
	if cmd.rounds <= 0 || cmd.chunkSectors <= 0 || cmd.maxSectors <= 0 {
		return fmt.Errorf("-rounds, -chunk and -max-sectors must be positive")
	}

	r, _, err := cmd.open()
	if err != nil {
		return err
	}
	defer r.Close()

	var mu sync.Mutex
	moved := make(map[string]uint64)

	eg, ctx := errgroup.WithContext(ctx)
	for _, d := range r.Devices() {
		d := d
		eg.Go(func() error {
			n, err := cmd.exercise(ctx, d)
			mu.Lock()
			moved[d.Name()] = n
			mu.Unlock()
			return err
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	for _, d := range r.Devices() {
		st := d.Stats()
		fmt.Fprintf(cmd.Output(), "%s: %d rounds ok, %s moved (%d reads, %d writes, %d errors)\n",
			d.Name(), cmd.rounds, humanize.IBytes(moved[d.Name()]), st.Reads, st.Writes, st.Errors)
	}
	return nil
}

// exercise runs cmd.rounds write/read-back rounds against d and returns the
// number of bytes transferred.
func (cmd *exerciseCmd) exercise(ctx context.Context, d *ramdisk.Device) (uint64, error) {
	rnd := rand.New(rand.NewSource(cmd.seed + int64(d.Index())))
	q := queue.New(d)
	defer q.Close()

	bs := int(d.BlockSize())
	var moved uint64
	for i := 0; i < cmd.rounds; i++ {
		if err := ctx.Err(); err != nil {
			return moved, err
		}

		sectors := rnd.Intn(cmd.maxSectors) + 1
		if uint64(sectors) > d.Capacity() {
			sectors = int(d.Capacity())
		}
		start := uint64(rnd.Int63n(int64(d.Capacity()) - int64(sectors) + 1))

		want := make([]byte, sectors*bs)
		rnd.Read(want)
		got := make([]byte, len(want))

		wc, err := q.Submit(ramdisk.Write, start, split(want, cmd.chunkSectors*bs)...)
		if err != nil {
			return moved, err
		}
		rc, err := q.Submit(ramdisk.Read, start, split(got, cmd.chunkSectors*bs)...)
		if err != nil {
			return moved, err
		}
		q.Kick()

		if err := wc.Wait(); err != nil {
			return moved, fmt.Errorf("%s: write of %d sectors at %d failed: %v", d.Name(), sectors, start, err)
		}
		if err := rc.Wait(); err != nil {
			return moved, fmt.Errorf("%s: read of %d sectors at %d failed: %v", d.Name(), sectors, start, err)
		}
		moved += uint64(wc.Transferred() + rc.Transferred())

		if !bytes.Equal(got, want) {
			return moved, fmt.Errorf("%s: round %d: data read from sector %d differs from data written", d.Name(), i, start)
		}
		if glog.V(1) {
			glog.Infof("%s: round %d: %d sectors at %d verified\n", d.Name(), i, sectors, start)
		}
	}
	return moved, nil
}

// split cuts b into consecutive segments of at most n bytes.
func split(b []byte, n int) [][]byte {
	var segs [][]byte
	for len(b) > n {
		segs = append(segs, b[:n:n])
		b = b[n:]
	}
	return append(segs, b)
}
