// Copyright 2021 The Fuchsia Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package main

import (
	"flag"
	"fmt"
	"io"
	"io/ioutil"
	"os"

	"gopkg.in/yaml.v2"

	"go.fuchsia.dev/ramhd/namespace"
	"go.fuchsia.dev/ramhd/ramdisk"
)

// fileConfig is the layout of the file passed with -config.
type fileConfig struct {
	Prefix string `yaml:"prefix"`
	Count  int    `yaml:"count"`
}

// ramhdCmd holds the flags shared by every subcommand.
type ramhdCmd struct {
	configPath string
	prefix     string
	count      int

	// Where to write results.  Tests substitute a buffer.
	output io.Writer
}

func (cmd *ramhdCmd) SetCommonFlags(f *flag.FlagSet) {
	f.StringVar(&cmd.configPath, "config", "", "YAML file with registry settings (prefix, count). Flags take precedence.")
	f.StringVar(&cmd.prefix, "prefix", "", fmt.Sprintf("Device name prefix (default %q).", ramdisk.DefaultPrefix))
	f.IntVar(&cmd.count, "count", 0, fmt.Sprintf("Number of devices, at most %d (default %d).", ramdisk.MaxDevices, ramdisk.MaxDevices))
}

func (cmd *ramhdCmd) Output() io.Writer {
	if cmd.output == nil {
		return os.Stdout
	}
	return cmd.output
}

// config merges the config file, if any, with the command line.
func (cmd *ramhdCmd) config() (ramdisk.Config, error) {
	cfg := ramdisk.DefaultConfig()
	if cmd.configPath != "" {
		data, err := ioutil.ReadFile(cmd.configPath)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config: %v", err)
		}
		var fc fileConfig
		if err := yaml.UnmarshalStrict(data, &fc); err != nil {
			return cfg, fmt.Errorf("failed to parse config %s: %v", cmd.configPath, err)
		}
		if fc.Prefix != "" {
			cfg.Prefix = fc.Prefix
		}
		if fc.Count != 0 {
			cfg.Count = fc.Count
		}
	}
	if cmd.prefix != "" {
		cfg.Prefix = cmd.prefix
	}
	if cmd.count != 0 {
		cfg.Count = cmd.count
	}
	return cfg, nil
}

// open brings up a registry whose devices are published in a fresh namespace.
func (cmd *ramhdCmd) open() (*ramdisk.Registry, *namespace.Tree, error) {
	cfg, err := cmd.config()
	if err != nil {
		return nil, nil, err
	}
	ns := namespace.New()
	cfg.Namespace = ns
	r, err := ramdisk.NewRegistry(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to bring up devices: %v", err)
	}
	return r, ns, nil
}
