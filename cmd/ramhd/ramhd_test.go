// Copyright 2021 The Fuchsia Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package main

import (
	"bytes"
	"context"
	"flag"
	"io/ioutil"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"go.fuchsia.dev/ramhd/ramdisk"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("github.com/golang/glog.(*loggingT).flushDaemon"))
}

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ramhd.yaml")
	if err := ioutil.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestConfig(t *testing.T) {
	tests := []struct {
		name   string
		file   string
		args   []string
		prefix string
		count  int
	}{
		{
			name:   "defaults",
			prefix: ramdisk.DefaultPrefix,
			count:  ramdisk.MaxDevices,
		},
		{
			name:   "file",
			file:   "prefix: hd\ncount: 1\n",
			prefix: "hd",
			count:  1,
		},
		{
			name:   "flags override file",
			file:   "prefix: hd\ncount: 1\n",
			args:   []string{"-prefix", "vd", "-count", "2"},
			prefix: "vd",
			count:  2,
		},
		{
			name:   "partial file",
			file:   "count: 1\n",
			prefix: ramdisk.DefaultPrefix,
			count:  1,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			var cmd ramhdCmd
			f := flag.NewFlagSet("test", flag.ContinueOnError)
			cmd.SetCommonFlags(f)
			args := test.args
			if test.file != "" {
				args = append([]string{"-config", writeConfig(t, test.file)}, args...)
			}
			if err := f.Parse(args); err != nil {
				t.Fatalf("Parse(%q) failed: %v", args, err)
			}
			cfg, err := cmd.config()
			if err != nil {
				t.Fatalf("config() failed: %v", err)
			}
			if cfg.Prefix != test.prefix || cfg.Count != test.count {
				t.Errorf("config() = (%q, %d), want (%q, %d)", cfg.Prefix, cfg.Count, test.prefix, test.count)
			}
		})
	}
}

func TestConfigErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		cmd := ramhdCmd{configPath: filepath.Join(t.TempDir(), "nope.yaml")}
		if _, err := cmd.config(); err == nil {
			t.Error("config() succeeded, want error")
		}
	})
	t.Run("unknown field", func(t *testing.T) {
		cmd := ramhdCmd{configPath: writeConfig(t, "prefix: hd\nsize: 4\n")}
		if _, err := cmd.config(); err == nil {
			t.Error("config() succeeded, want error")
		}
	})
	t.Run("too many devices", func(t *testing.T) {
		cmd := ramhdCmd{count: ramdisk.MaxDevices + 1}
		if _, _, err := cmd.open(); err == nil {
			t.Error("open() succeeded, want error")
		}
	})
}

func TestSetFlags(t *testing.T) {
	t.Run("geometry", func(t *testing.T) {
		var cmd geometryCmd
		f := flag.NewFlagSet(cmd.Name(), flag.ContinueOnError)
		cmd.SetFlags(f)
		if err := f.Parse([]string{"-count", "1", "-prefix", "hd", "-v"}); err != nil {
			t.Fatalf("Parse() failed: %v", err)
		}
		if cmd.count != 1 || cmd.prefix != "hd" || !cmd.verbose {
			t.Errorf("flags = (%d, %q, %t), want (1, \"hd\", true)", cmd.count, cmd.prefix, cmd.verbose)
		}
	})
	t.Run("exercise", func(t *testing.T) {
		var cmd exerciseCmd
		f := flag.NewFlagSet(cmd.Name(), flag.ContinueOnError)
		cmd.SetFlags(f)
		if err := f.Parse([]string{"-count", "2", "-rounds", "3", "-chunk", "4", "-max-sectors", "5", "-seed", "6"}); err != nil {
			t.Fatalf("Parse() failed: %v", err)
		}
		got := []int64{int64(cmd.count), int64(cmd.rounds), int64(cmd.chunkSectors), int64(cmd.maxSectors), cmd.seed}
		if diff := cmp.Diff([]int64{2, 3, 4, 5, 6}, got); diff != "" {
			t.Errorf("flags mismatch (-want +got):\n%s", diff)
		}
	})
	t.Run("dump", func(t *testing.T) {
		var cmd dumpCmd
		f := flag.NewFlagSet(cmd.Name(), flag.ContinueOnError)
		cmd.SetFlags(f)
		if err := f.Parse([]string{"-count", "1", "-device", "ramsda", "-sector", "17", "-sectors", "2", "-fill", "0xab"}); err != nil {
			t.Fatalf("Parse() failed: %v", err)
		}
		if cmd.count != 1 || cmd.device != "ramsda" || cmd.sector != 17 || cmd.sectors != 2 || cmd.fill != "0xab" {
			t.Errorf("flags = %+v", cmd)
		}

		var buf bytes.Buffer
		cmd.output = &buf
		if err := cmd.execute(); err != nil {
			t.Fatalf("execute() failed: %v", err)
		}
		if !strings.Contains(buf.String(), "ramsda sector 18 (C/H/S 0/1/3):") {
			t.Errorf("dump output missing sector 18:\n%s", buf.String())
		}
	})
}

func TestGeometry(t *testing.T) {
	var buf bytes.Buffer
	cmd := geometryCmd{ramhdCmd: ramhdCmd{output: &buf}}
	if err := cmd.execute(); err != nil {
		t.Fatalf("execute() failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	var got [][]string
	for _, l := range lines {
		got = append(got, strings.Fields(l))
	}
	want := [][]string{
		{"NAME", "MINORS", "SECTORS", "SIZE", "C/H/S"},
		{"ramsda", "0-3", "16384", "8.0", "MiB", "256/4/16"},
		{"ramsdb", "4-7", "16384", "8.0", "MiB", "256/4/16"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("geometry output mismatch (-want +got):\n%s", diff)
	}
}

func TestGeometryVerbose(t *testing.T) {
	var buf bytes.Buffer
	cmd := geometryCmd{ramhdCmd: ramhdCmd{output: &buf, count: 1}, verbose: true}
	if err := cmd.execute(); err != nil {
		t.Fatalf("execute() failed: %v", err)
	}
	for _, want := range []string{"ramsda:", "HDGeometry", "Cylinders:", "Start:"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("verbose output does not contain %q:\n%s", want, buf.String())
		}
	}
}

func TestExercise(t *testing.T) {
	var buf bytes.Buffer
	cmd := exerciseCmd{
		ramhdCmd:     ramhdCmd{output: &buf},
		rounds:       8,
		chunkSectors: 3,
		maxSectors:   64,
		seed:         42,
	}
	if err := cmd.execute(context.Background()); err != nil {
		t.Fatalf("execute() failed: %v", err)
	}
	for _, name := range []string{"ramsda: 8 rounds ok", "ramsdb: 8 rounds ok", "0 errors"} {
		if !strings.Contains(buf.String(), name) {
			t.Errorf("output does not contain %q:\n%s", name, buf.String())
		}
	}
}

func TestExerciseCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cmd := exerciseCmd{rounds: 1, chunkSectors: 1, maxSectors: 1}
	cmd.output = ioutil.Discard
	if err := cmd.execute(ctx); err != context.Canceled {
		t.Errorf("execute() = %v, want %v", err, context.Canceled)
	}
}

func TestExerciseBadFlags(t *testing.T) {
	cmd := exerciseCmd{rounds: 0, chunkSectors: 1, maxSectors: 1}
	if err := cmd.execute(context.Background()); err == nil {
		t.Error("execute() succeeded, want error")
	}
}

func TestSplit(t *testing.T) {
	b := make([]byte, 10)
	var got []int
	for _, s := range split(b, 4) {
		got = append(got, len(s))
	}
	if diff := cmp.Diff([]int{4, 4, 2}, got); diff != "" {
		t.Errorf("split() lengths mismatch (-want +got):\n%s", diff)
	}
}

func TestDump(t *testing.T) {
	var buf bytes.Buffer
	cmd := dumpCmd{
		ramhdCmd: ramhdCmd{output: &buf},
		device:   "ramsdb",
		sector:   17,
		sectors:  2,
		fill:     "0xab",
	}
	if err := cmd.execute(); err != nil {
		t.Fatalf("execute() failed: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		"ramsdb sector 17 (C/H/S 0/1/2):",
		"ramsdb sector 18 (C/H/S 0/1/3):",
		"00000000  ab ab ab ab",
		"000001f0  ab ab ab ab",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("dump output does not contain %q", want)
		}
	}
}

func TestDumpZeroed(t *testing.T) {
	var buf bytes.Buffer
	cmd := dumpCmd{ramhdCmd: ramhdCmd{output: &buf}, device: "ramsda", sectors: 1}
	if err := cmd.execute(); err != nil {
		t.Fatalf("execute() failed: %v", err)
	}
	if !strings.Contains(buf.String(), "00000000  00 00 00 00") {
		t.Errorf("fresh device is not zeroed:\n%s", buf.String())
	}
}

func TestDumpErrors(t *testing.T) {
	tests := []struct {
		name string
		cmd  dumpCmd
	}{
		{"unknown device", dumpCmd{device: "ramsdz", sectors: 1}},
		{"zero count", dumpCmd{device: "ramsda", sectors: 0}},
		{"bad fill", dumpCmd{device: "ramsda", sectors: 1, fill: "0x100"}},
		{"past the end", dumpCmd{device: "ramsda", sector: 16383, sectors: 2}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			test.cmd.output = ioutil.Discard
			if err := test.cmd.execute(); err == nil {
				t.Error("execute() succeeded, want error")
			}
		})
	}
}
