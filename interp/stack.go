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

package interp

import (
	"fmt"

	"go.uber.org/nullsafe/bytecode"
	"go.uber.org/nullsafe/frame"
	"go.uber.org/nullsafe/lattice"
)

// executeStackOp implements POP, POP2, SWAP and the DUP family. The *2 variants have one form per
// combination of category-1 and category-2 operands, selected by the sizes found on the stack.
func executeStackOp(f *frame.Frame, op bytecode.Opcode) error {
	var (
		pushes []lattice.Value
		err    error
	)
	switch op {
	case bytecode.POP:
		_, err = f.PopSized(1)
		return err

	case bytecode.POP2:
		v1, err := f.Pop()
		if err != nil || v1.Size == 2 {
			return err
		}
		_, err = f.PopSized(1)
		return err

	case bytecode.DUP:
		v1, err := f.PopSized(1)
		if err != nil {
			return err
		}
		pushes = []lattice.Value{v1, v1}

	case bytecode.DUP_X1:
		vs, err := popSized(f, 1, 1)
		if err != nil {
			return err
		}
		pushes = []lattice.Value{vs[0], vs[1], vs[0]}

	case bytecode.DUP_X2:
		pushes, err = dupX2(f)

	case bytecode.DUP2:
		pushes, err = dup2(f)

	case bytecode.DUP2_X1:
		pushes, err = dup2X1(f)

	case bytecode.DUP2_X2:
		pushes, err = dup2X2(f)

	case bytecode.SWAP:
		vs, err := popSized(f, 1, 1)
		if err != nil {
			return err
		}
		pushes = []lattice.Value{vs[0], vs[1]}

	default:
		return fmt.Errorf("%w: %s is not a stack manipulation", ErrNoTransfer, op)
	}
	if err != nil {
		return err
	}

	for _, v := range pushes {
		if err := f.Push(v); err != nil {
			return err
		}
	}
	return nil
}

// popSized pops one value per given size, top first, and returns them in pop order.
func popSized(f *frame.Frame, sizes ...uint8) ([]lattice.Value, error) {
	vs := make([]lattice.Value, len(sizes))
	for i, size := range sizes {
		v, err := f.PopSized(size)
		if err != nil {
			return nil, err
		}
		vs[i] = v
	}
	return vs, nil
}

// The helpers below return the values to push, bottom first. v1 is always the top of the stack
// before the instruction.

func dupX2(f *frame.Frame) ([]lattice.Value, error) {
	v1, err := f.PopSized(1)
	if err != nil {
		return nil, err
	}
	v2, err := f.Pop()
	if err != nil {
		return nil, err
	}
	if v2.Size == 2 {
		return []lattice.Value{v1, v2, v1}, nil
	}
	v3, err := f.PopSized(1)
	if err != nil {
		return nil, err
	}
	return []lattice.Value{v1, v3, v2, v1}, nil
}

func dup2(f *frame.Frame) ([]lattice.Value, error) {
	v1, err := f.Pop()
	if err != nil {
		return nil, err
	}
	if v1.Size == 2 {
		return []lattice.Value{v1, v1}, nil
	}
	v2, err := f.PopSized(1)
	if err != nil {
		return nil, err
	}
	return []lattice.Value{v2, v1, v2, v1}, nil
}

func dup2X1(f *frame.Frame) ([]lattice.Value, error) {
	v1, err := f.Pop()
	if err != nil {
		return nil, err
	}
	if v1.Size == 2 {
		v2, err := f.PopSized(1)
		if err != nil {
			return nil, err
		}
		return []lattice.Value{v1, v2, v1}, nil
	}
	vs, err := popSized(f, 1, 1)
	if err != nil {
		return nil, err
	}
	v2, v3 := vs[0], vs[1]
	return []lattice.Value{v2, v1, v3, v2, v1}, nil
}

func dup2X2(f *frame.Frame) ([]lattice.Value, error) {
	v1, err := f.Pop()
	if err != nil {
		return nil, err
	}
	if v1.Size == 2 {
		v2, err := f.Pop()
		if err != nil {
			return nil, err
		}
		if v2.Size == 2 {
			return []lattice.Value{v1, v2, v1}, nil
		}
		v3, err := f.PopSized(1)
		if err != nil {
			return nil, err
		}
		return []lattice.Value{v1, v3, v2, v1}, nil
	}

	v2, err := f.PopSized(1)
	if err != nil {
		return nil, err
	}
	v3, err := f.Pop()
	if err != nil {
		return nil, err
	}
	if v3.Size == 2 {
		return []lattice.Value{v2, v1, v3, v2, v1}, nil
	}
	v4, err := f.PopSized(1)
	if err != nil {
		return nil, err
	}
	return []lattice.Value{v2, v1, v4, v3, v2, v1}, nil
}
