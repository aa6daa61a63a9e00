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

// Package frame implements the abstract machine state at a program point: an operand stack and
// an array of local variable slots, each holding a lattice.Value.
package frame

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/nullsafe/lattice"
)

// Errors reported when an instruction does not fit the frame it executes in. All of them mean
// the method body is malformed.
var (
	ErrStackUnderflow  = errors.New("operand stack underflow")
	ErrStackOverflow   = errors.New("operand stack overflow")
	ErrLocalOutOfRange = errors.New("local variable index out of range")
	ErrSizeMismatch    = errors.New("value size mismatch")
	ErrUnusableLocal   = errors.New("read of an unset or unusable local variable")
	ErrShapeMismatch   = errors.New("operand stack height mismatch")
)

// Frame is an abstract machine state. The number of local slots and the stack capacity are
// fixed at creation from the method's declared bounds.
//
// The stack holds one entry per value, so a long or double is a single entry of size 2; the
// capacity check counts slots, as the JVM does. In the locals, a category-2 value occupies its
// slot and the next one, which holds lattice.Conflict.
type Frame struct {
	locals []lattice.Value
	stack  []lattice.Value
	// slots is the current stack height in slots (sum of the entry sizes).
	slots    int
	maxStack int
}

// New returns a frame with every local unset and an empty stack.
func New(maxLocals, maxStack int) *Frame {
	f := &Frame{
		locals:   make([]lattice.Value, maxLocals),
		stack:    make([]lattice.Value, 0, maxStack),
		maxStack: maxStack,
	}
	for i := range f.locals {
		f.locals[i] = lattice.Empty
	}
	return f
}

// Copy returns an independent copy of f.
func (f *Frame) Copy() *Frame {
	c := &Frame{
		locals:   make([]lattice.Value, len(f.locals)),
		stack:    make([]lattice.Value, len(f.stack), cap(f.stack)),
		slots:    f.slots,
		maxStack: f.maxStack,
	}
	copy(c.locals, f.locals)
	copy(c.stack, f.stack)
	return c
}

// Locals returns the number of local variable slots.
func (f *Frame) Locals() int { return len(f.locals) }

// Local returns the raw content of local slot i.
func (f *Frame) Local(i int) (lattice.Value, error) {
	if i < 0 || i >= len(f.locals) {
		return lattice.Value{}, fmt.Errorf("%w: %d (max locals %d)", ErrLocalOutOfRange, i, len(f.locals))
	}
	return f.locals[i], nil
}

// LoadLocal returns the value in local slot i, which must hold a value of the given size.
func (f *Frame) LoadLocal(i int, size uint8) (lattice.Value, error) {
	v, err := f.Local(i)
	if err != nil {
		return lattice.Value{}, err
	}
	if v.IsEmpty() || v.IsConflict() {
		return lattice.Value{}, fmt.Errorf("%w: local %d", ErrUnusableLocal, i)
	}
	if v.Size != size {
		return lattice.Value{}, fmt.Errorf("%w: local %d holds a size-%d value, want size %d",
			ErrSizeMismatch, i, v.Size, size)
	}
	return v, nil
}

// SetLocal stores v in local slot i. Storing a category-2 value also claims slot i+1, and
// overwriting either half of a category-2 value makes the other half unusable.
func (f *Frame) SetLocal(i int, v lattice.Value) error {
	if i < 0 || i+int(v.Size) > len(f.locals) {
		return fmt.Errorf("%w: %d (size %d, max locals %d)", ErrLocalOutOfRange, i, v.Size, len(f.locals))
	}
	if i > 0 && f.locals[i-1].Size == 2 {
		f.locals[i-1] = lattice.Conflict
	}
	f.locals[i] = v
	if v.Size == 2 {
		f.locals[i+1] = lattice.Conflict
	}
	return nil
}

// StackSize returns the number of entries on the operand stack.
func (f *Frame) StackSize() int { return len(f.stack) }

// Peek returns the stack entry at the given depth below the top (0 is the top entry). It reports
// false when the stack is not that deep.
func (f *Frame) Peek(depth int) (lattice.Value, bool) {
	top := len(f.stack) - 1
	if depth < 0 || depth > top {
		return lattice.Value{}, false
	}
	return f.stack[top-depth], true
}

// Push pushes v onto the operand stack.
func (f *Frame) Push(v lattice.Value) error {
	if v.Size != 1 && v.Size != 2 {
		return fmt.Errorf("%w: cannot push a size-%d value", ErrSizeMismatch, v.Size)
	}
	if f.slots+int(v.Size) > f.maxStack {
		return fmt.Errorf("%w: max stack %d", ErrStackOverflow, f.maxStack)
	}
	f.stack = append(f.stack, v)
	f.slots += int(v.Size)
	return nil
}

// Pop removes and returns the top stack entry.
func (f *Frame) Pop() (lattice.Value, error) {
	if len(f.stack) == 0 {
		return lattice.Value{}, ErrStackUnderflow
	}
	v := f.stack[len(f.stack)-1]
	f.stack = f.stack[:len(f.stack)-1]
	f.slots -= int(v.Size)
	return v, nil
}

// PopSized removes and returns the top stack entry, which must have the given size.
func (f *Frame) PopSized(size uint8) (lattice.Value, error) {
	v, err := f.Pop()
	if err != nil {
		return lattice.Value{}, err
	}
	if v.Size != size {
		return lattice.Value{}, fmt.Errorf("%w: popped a size-%d value, want size %d", ErrSizeMismatch, v.Size, size)
	}
	return v, nil
}

// PopN pops n entries of size 1.
func (f *Frame) PopN(n int) error {
	for i := 0; i < n; i++ {
		if _, err := f.PopSized(1); err != nil {
			return err
		}
	}
	return nil
}

// ClearStack empties the operand stack.
func (f *Frame) ClearStack() {
	f.stack = f.stack[:0]
	f.slots = 0
}

// Merge joins other into f slot by slot and reports whether f changed. Both frames must have
// the same number of locals and the same stack height; stack entries must agree on their sizes.
func (f *Frame) Merge(other *Frame) (bool, error) {
	if len(f.locals) != len(other.locals) {
		return false, fmt.Errorf("%w: %d locals vs %d locals", ErrShapeMismatch, len(f.locals), len(other.locals))
	}
	if len(f.stack) != len(other.stack) {
		return false, fmt.Errorf("%w: %d vs %d entries", ErrShapeMismatch, len(f.stack), len(other.stack))
	}

	// Validate the stack first so that a failed merge leaves f untouched.
	for i := range f.stack {
		if f.stack[i].Size != other.stack[i].Size {
			return false, fmt.Errorf("%w: stack entry %d has sizes %d and %d",
				ErrSizeMismatch, i, f.stack[i].Size, other.stack[i].Size)
		}
	}

	changed := false
	for i := range f.stack {
		if v := lattice.MergeValues(f.stack[i], other.stack[i]); v != f.stack[i] {
			f.stack[i] = v
			changed = true
		}
	}
	for i := range f.locals {
		if v := lattice.MergeValues(f.locals[i], other.locals[i]); v != f.locals[i] {
			f.locals[i] = v
			changed = true
		}
	}
	return changed, nil
}

// String renders the frame as "[locals] [stack]", e.g. "[NONNULL NULL .] [NULLABLE]".
func (f *Frame) String() string {
	var b strings.Builder
	writeValues(&b, f.locals)
	b.WriteByte(' ')
	writeValues(&b, f.stack)
	return b.String()
}

func writeValues(b *strings.Builder, values []lattice.Value) {
	b.WriteByte('[')
	for i, v := range values {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(v.String())
	}
	b.WriteByte(']')
}
