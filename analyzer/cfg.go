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

package analyzer

import (
	"fmt"
	"slices"

	"go.uber.org/nullsafe/bytecode"
)

// successors returns the normal (non-exceptional) control-flow successors of the instruction at
// pos. The graph is never built as a whole; the engine asks for the edges of each instruction as
// it processes it. jsrReturns lists the positions following every JSR, which are the possible
// successors of a RET.
func successors(insns []bytecode.Instruction, pos int, jsrReturns []int) ([]int, error) {
	n := len(insns)
	checked := func(targets ...int) ([]int, error) {
		for _, t := range targets {
			if t < 0 || t >= n {
				return nil, fmt.Errorf("%w: %d (code length %d)", ErrBadTarget, t, n)
			}
		}
		return targets, nil
	}
	next := func() ([]int, error) {
		if pos+1 >= n {
			return nil, ErrFallOff
		}
		return []int{pos + 1}, nil
	}

	switch insn := insns[pos].(type) {
	case *bytecode.JumpInsn:
		switch insn.Op {
		case bytecode.GOTO, bytecode.JSR:
			return checked(insn.Target)
		default:
			if pos+1 >= n {
				return nil, ErrFallOff
			}
			return checked(pos+1, insn.Target)
		}

	case *bytecode.TableSwitchInsn:
		if len(insn.Targets) != insn.Max-insn.Min+1 {
			return nil, fmt.Errorf("%w: tableswitch over [%d, %d] has %d targets",
				ErrBadTarget, insn.Min, insn.Max, len(insn.Targets))
		}
		return checked(switchTargets(insn.Default, insn.Targets)...)

	case *bytecode.LookupSwitchInsn:
		if len(insn.Keys) != len(insn.Targets) {
			return nil, fmt.Errorf("%w: lookupswitch has %d keys and %d targets",
				ErrBadTarget, len(insn.Keys), len(insn.Targets))
		}
		return checked(switchTargets(insn.Default, insn.Targets)...)

	case *bytecode.VarInsn:
		if insn.Op == bytecode.RET {
			return checked(jsrReturns...)
		}
		return next()

	case *bytecode.Insn:
		switch insn.Op {
		case bytecode.IRETURN, bytecode.LRETURN, bytecode.FRETURN, bytecode.DRETURN,
			bytecode.ARETURN, bytecode.RETURN, bytecode.ATHROW:
			return nil, nil
		}
		return next()

	default:
		return next()
	}
}

// switchTargets returns the distinct targets of a switch in ascending order.
func switchTargets(dflt int, targets []int) []int {
	out := append([]int{dflt}, targets...)
	slices.Sort(out)
	return slices.Compact(out)
}

// jsrReturnPoints returns the position following every JSR instruction.
func jsrReturnPoints(insns []bytecode.Instruction) []int {
	var out []int
	for pos, insn := range insns {
		if j, ok := insn.(*bytecode.JumpInsn); ok && j.Op == bytecode.JSR {
			out = append(out, pos+1)
		}
	}
	return out
}
