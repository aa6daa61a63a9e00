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

// Package analyzer implements the fixpoint engine of the nullability analysis. It runs the
// transfer function of package interp over a method's control-flow graph, merging frames at
// join points, until no frame changes.
//
// The engine follows the classic worklist formulation:
//
//  1. The frame before the first instruction is built from the method declaration.
//  2. The first instruction is pending.
//  3. While an instruction is pending, take the one with the lowest position, compute the frame
//     after it, and merge that frame into each successor's frame. A successor whose frame
//     changed (or that had none) becomes pending.
//
// Every instruction covered by an exception handler also flows into the handler's entry, with
// the operand stack replaced by the caught exception. Since values only move up a lattice of
// finite height, each frame changes a bounded number of times and the loop terminates.
package analyzer

import (
	"fmt"

	"go.uber.org/nullsafe/bytecode"
	"go.uber.org/nullsafe/frame"
	"go.uber.org/nullsafe/interp"
	"go.uber.org/nullsafe/lattice"
	"golang.org/x/tools/container/intsets"
)

// Analyzer computes per-instruction frames. The zero value is ready to use.
type Analyzer struct {
	// UnannotatedParams is the nullability given to reference parameters the method declaration
	// says nothing about. lattice.Unknown selects the conservative default, lattice.Nullable.
	UnannotatedParams lattice.Nullability
}

// Analyze returns one frame per instruction of m: frames[i] is the state before instruction i
// executes, or nil if instruction i is unreachable. Any inconsistency aborts the analysis with a
// *MalformedInputError and no frames.
func (a *Analyzer) Analyze(m *bytecode.Method) ([]*frame.Frame, error) {
	insns := m.Instructions
	frames := make([]*frame.Frame, len(insns))
	if len(insns) == 0 {
		return frames, nil
	}

	for _, h := range m.Handlers {
		if h.Start < 0 || h.Start >= h.End || h.End > len(insns) || h.Target < 0 || h.Target >= len(insns) {
			return nil, malformed(m, -1, fmt.Errorf("%w: [%d, %d) -> %d", ErrBadHandler, h.Start, h.End, h.Target))
		}
	}

	entry, err := a.entryFrame(m)
	if err != nil {
		return nil, malformed(m, -1, err)
	}
	frames[0] = entry

	jsrReturns := jsrReturnPoints(insns)
	var pending intsets.Sparse
	pending.Insert(0)

	// flow merges f into the frame before position to.
	flow := func(to int, f *frame.Frame) error {
		if frames[to] == nil {
			frames[to] = f.Copy()
			pending.Insert(to)
			return nil
		}
		changed, err := frames[to].Merge(f)
		if err != nil {
			return err
		}
		if changed {
			pending.Insert(to)
		}
		return nil
	}

	var pos int
	for pending.TakeMin(&pos) {
		in := frames[pos]
		out, err := interp.Step(in, insns[pos])
		if err != nil {
			return nil, malformed(m, pos, err)
		}

		succs, err := successors(insns, pos, jsrReturns)
		if err != nil {
			return nil, malformed(m, pos, err)
		}
		for _, s := range succs {
			if err := flow(s, out); err != nil {
				return nil, malformed(m, pos, fmt.Errorf("merging into %d: %w", s, err))
			}
		}

		for _, h := range m.Handlers {
			if !h.Covers(pos) {
				continue
			}
			hf, err := handlerFrame(in, out)
			if err != nil {
				return nil, malformed(m, pos, err)
			}
			if err := flow(h.Target, hf); err != nil {
				return nil, malformed(m, pos, fmt.Errorf("merging into handler %d: %w", h.Target, err))
			}
		}
	}

	return frames, nil
}

// entryFrame builds the frame before the first instruction: `this` is NonNull, reference
// parameters take their declared nullability (or the configured default), primitive parameters
// are NonNull, and all other locals are unset.
func (a *Analyzer) entryFrame(m *bytecode.Method) (*frame.Frame, error) {
	if m.MaxStack < 0 || m.MaxLocals < 0 {
		return nil, fmt.Errorf("%w: stack %d, locals %d", ErrBadBounds, m.MaxStack, m.MaxLocals)
	}
	mt, err := bytecode.ParseMethodDescriptor(m.Desc)
	if err != nil {
		return nil, err
	}

	unannotated := a.UnannotatedParams
	if unannotated == lattice.Unknown {
		unannotated = lattice.Nullable
	}

	slots := mt.ArgSlots()
	if !m.Static {
		slots++
	}
	if slots > m.MaxLocals {
		return nil, fmt.Errorf("%w: parameters need %d slot(s), max locals %d", frame.ErrLocalOutOfRange, slots, m.MaxLocals)
	}

	f := frame.New(m.MaxLocals, m.MaxStack)
	local := 0
	if !m.Static {
		if err := f.SetLocal(local, lattice.NonNullRef); err != nil {
			return nil, fmt.Errorf("receiver: %w", err)
		}
		local++
	}
	for i, t := range mt.Args {
		v := lattice.Primitive(t.Size())
		if t.IsReference() {
			n := m.ParamNullabilityAt(i)
			if n == lattice.Unknown {
				n = unannotated
			}
			v = lattice.Ref(n)
		}
		if err := f.SetLocal(local, v); err != nil {
			return nil, fmt.Errorf("parameter %d: %w", i, err)
		}
		local += int(t.Size())
	}
	return f, nil
}

// handlerFrame returns the frame flowing from a protected instruction into its handler. The
// instruction may throw before or after updating the locals, so the locals are merged from the
// states before and after it; the stack holds only the caught exception.
func handlerFrame(before, after *frame.Frame) (*frame.Frame, error) {
	hf := before.Copy()
	hf.ClearStack()
	post := after.Copy()
	post.ClearStack()
	if _, err := hf.Merge(post); err != nil {
		return nil, err
	}
	if err := hf.Push(lattice.NonNullRef); err != nil {
		return nil, fmt.Errorf("pushing caught exception: %w", err)
	}
	return hf, nil
}

func malformed(m *bytecode.Method, pos int, err error) *MalformedInputError {
	e := &MalformedInputError{Method: m.String(), Pos: pos, Err: err}
	if pos >= 0 {
		e.Op = m.Instructions[pos].Opcode()
	}
	return e
}
