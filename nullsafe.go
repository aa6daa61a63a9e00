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

// Package nullsafe implements the top-level entry points of the analysis: diagnosing the
// possible null dereferences of a single JVM method, and dumping the frames the diagnosis is
// based on.
package nullsafe

import (
	"go.uber.org/nullsafe/analyzer"
	"go.uber.org/nullsafe/bytecode"
	"go.uber.org/nullsafe/config"
	"go.uber.org/nullsafe/diagnosis"
	"go.uber.org/nullsafe/frame"
)

// Result holds the frames computed for one method. Both of its views share a single run of the
// analysis.
type Result struct {
	method *bytecode.Method
	frames []*frame.Frame
}

// Analyze runs the analysis on m. A nil conf selects the default configuration. A malformed method
// body yields an *analyzer.MalformedInputError.
//
// Each call owns all of its state, so distinct methods may be analyzed concurrently as long as no
// one mutates them meanwhile.
func Analyze(m *bytecode.Method, conf *config.Config) (*Result, error) {
	if conf == nil {
		conf = config.Default()
	}
	a := analyzer.Analyzer{UnannotatedParams: conf.UnannotatedParams}
	frames, err := a.Analyze(m)
	if err != nil {
		return nil, err
	}
	return &Result{method: m, frames: frames}, nil
}

// Positions returns the positions, in ascending order and without duplicates, of the
// instructions that dereference a value that is null or may be null.
func (r *Result) Positions() []int {
	return diagnosis.Diagnose(r.frames, r.method.Instructions)
}

// Dump returns one human-readable line per instruction showing the frame before it. The format
// carries no compatibility guarantee.
func (r *Result) Dump() []string {
	return diagnosis.DumpFrames(r.frames, r.method.Instructions)
}

// Diagnose is shorthand for Analyze followed by Positions.
func Diagnose(m *bytecode.Method, conf *config.Config) ([]int, error) {
	r, err := Analyze(m, conf)
	if err != nil {
		return nil, err
	}
	return r.Positions(), nil
}

// DumpFrames is shorthand for Analyze followed by Dump.
func DumpFrames(m *bytecode.Method, conf *config.Config) ([]string, error) {
	r, err := Analyze(m, conf)
	if err != nil {
		return nil, err
	}
	return r.Dump(), nil
}
