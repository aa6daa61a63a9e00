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

// Package diagnosis reads the frames computed by the analyzer and reports the instructions that
// dereference a value that is null, or may be null, at that point.
package diagnosis

import (
	"fmt"
	"slices"

	"go.uber.org/nullsafe/bytecode"
	"go.uber.org/nullsafe/frame"
	"go.uber.org/nullsafe/lattice"
)

// ReceiverDepth returns the stack depth (0 is the top) of the reference that insn dereferences,
// or false if insn dereferences nothing:
//
//   - GETFIELD, ARRAYLENGTH, MONITORENTER, MONITOREXIT: the top of the stack.
//   - PUTFIELD: just below the stored value.
//   - INVOKEVIRTUAL, INVOKESPECIAL, INVOKEINTERFACE: just below the arguments, each of which is
//     one stack entry regardless of its size.
func ReceiverDepth(insn bytecode.Instruction) (int, bool) {
	switch insn.Opcode() {
	case bytecode.GETFIELD, bytecode.ARRAYLENGTH, bytecode.MONITORENTER, bytecode.MONITOREXIT:
		return 0, true
	case bytecode.PUTFIELD:
		return 1, true
	case bytecode.INVOKEVIRTUAL, bytecode.INVOKESPECIAL, bytecode.INVOKEINTERFACE:
		mi, ok := insn.(*bytecode.MethodInsn)
		if !ok {
			return 0, false
		}
		mt, err := bytecode.ParseMethodDescriptor(mi.Desc)
		if err != nil {
			return 0, false
		}
		return len(mt.Args), true
	default:
		return 0, false
	}
}

// Receiver returns the value insn dereferences in frame f, or false when insn dereferences
// nothing or the stack is not deep enough to tell.
func Receiver(f *frame.Frame, insn bytecode.Instruction) (lattice.Value, bool) {
	depth, ok := ReceiverDepth(insn)
	if !ok {
		return lattice.Value{}, false
	}
	return f.Peek(depth)
}

// Diagnose returns, in ascending order, the positions of the reachable instructions whose
// receiver is Null or Nullable. frames must be parallel to insns; nil frames (unreachable code)
// are skipped.
func Diagnose(frames []*frame.Frame, insns []bytecode.Instruction) []int {
	var positions []int
	for i, insn := range insns {
		if i >= len(frames) || frames[i] == nil {
			continue
		}
		if v, ok := Receiver(frames[i], insn); ok && v.Nullability.IsViolation() {
			positions = append(positions, i)
		}
	}
	slices.Sort(positions)
	return slices.Compact(positions)
}

// DumpFrames renders one line per instruction: its position, its mnemonic and the frame before
// it ("<unreachable>" for dead code). The format is meant for people and may change.
func DumpFrames(frames []*frame.Frame, insns []bytecode.Instruction) []string {
	lines := make([]string, len(insns))
	for i, insn := range insns {
		state := "<unreachable>"
		if i < len(frames) && frames[i] != nil {
			state = frames[i].String()
		}
		lines[i] = fmt.Sprintf("%03d %-16s %s", i, insn.Opcode(), state)
	}
	return lines
}
