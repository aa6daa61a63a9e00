//  Copyright (c) 2025 Uber Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config hosts the user-facing configuration of the analysis, settable from command-line
// flags or from a TOML file.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"go.uber.org/nullsafe/lattice"
)

// Config is the configuration for one run of the analysis.
type Config struct {
	// UnannotatedParams is the nullability assumed for reference parameters that carry no
	// nullability annotation.
	UnannotatedParams lattice.Nullability
	// Dump makes the driver print the per-instruction frames along with the diagnostics.
	Dump bool
}

// Default returns the default configuration.
func Default() *Config {
	n, err := lattice.ParseNullability(DefaultUnannotatedParams)
	if err != nil {
		panic(fmt.Sprintf("invalid default for unannotated parameters: %v", err))
	}
	return &Config{UnannotatedParams: n}
}

// Flag names.
const (
	UnannotatedParamsFlag = "unannotated-params"
	DumpFlag              = "dump"
)

// RegisterFlags binds the fields of c to flags in fs. The current values of c are the defaults.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.Var((*nullabilityValue)(&c.UnannotatedParams), UnannotatedParamsFlag,
		"Nullability assumed for reference parameters without annotations: nullable, nonnull or null.")
	fs.BoolVar(&c.Dump, DumpFlag, c.Dump, "Print the frame before every instruction.")
}

// fileConfig is the on-disk form of Config. Pointer fields distinguish "absent" from zero values
// so that a file only overrides what it mentions.
type fileConfig struct {
	UnannotatedParams *string `toml:"unannotated-params"`
	Dump              *bool   `toml:"dump"`
}

// Load reads the TOML file at path and applies it on top of c.
func (c *Config) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	var fc fileConfig
	md, err := toml.Decode(string(data), &fc)
	if err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("parse config %s: unknown key %q", path, undecoded[0].String())
	}

	if fc.UnannotatedParams != nil {
		n, err := parseParamNullability(*fc.UnannotatedParams)
		if err != nil {
			return fmt.Errorf("config %s: %w", path, err)
		}
		c.UnannotatedParams = n
	}
	if fc.Dump != nil {
		c.Dump = *fc.Dump
	}
	return nil
}

func parseParamNullability(s string) (lattice.Nullability, error) {
	n, err := lattice.ParseNullability(s)
	if err != nil {
		return lattice.Unknown, err
	}
	if n == lattice.Unknown {
		return lattice.Unknown, errors.New("parameters cannot be assumed UNKNOWN")
	}
	return n, nil
}

// nullabilityValue adapts a lattice.Nullability to flag.Value.
type nullabilityValue lattice.Nullability

func (v *nullabilityValue) String() string { return lattice.Nullability(*v).String() }

func (v *nullabilityValue) Set(s string) error {
	n, err := parseParamNullability(s)
	if err != nil {
		return err
	}
	*v = nullabilityValue(n)
	return nil
}
