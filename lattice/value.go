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

package lattice

import "fmt"

// Value is the content of one operand stack entry or one local variable slot: a nullability
// plus the size tag of the underlying JVM value (1 for int, float and references, 2 for long
// and double).
type Value struct {
	Nullability Nullability
	// Size is 1 or 2 for real values. It is 0 only for Conflict.
	Size uint8
}

var (
	// Empty is the content of a local slot that has not been written on any path seen so far.
	Empty = Value{Nullability: Unknown, Size: 1}
	// Conflict is the content of a local slot whose incoming paths disagree on the size of the
	// stored value, and of the upper half of a category-2 local. It is the top of the slot order
	// and absorbs every merge. Reading it is malformed input.
	Conflict = Value{Nullability: Unknown, Size: 0}

	// NullRef is the literal null reference.
	NullRef = Value{Nullability: Null, Size: 1}
	// NonNullRef is a reference known to be non-null (e.g. a fresh allocation).
	NonNullRef = Value{Nullability: NonNull, Size: 1}
	// NullableRef is a reference that may be null (e.g. a method result).
	NullableRef = Value{Nullability: Nullable, Size: 1}
)

// Primitive returns the NonNull value of a primitive of the given size.
func Primitive(size uint8) Value {
	return Value{Nullability: NonNull, Size: size}
}

// Ref returns a size-1 reference value of the given nullability.
func Ref(n Nullability) Value {
	return Value{Nullability: n, Size: 1}
}

// IsConflict reports whether v is the Conflict value.
func (v Value) IsConflict() bool {
	return v.Size == 0
}

// IsEmpty reports whether no value has been stored in the slot holding v.
func (v Value) IsEmpty() bool {
	return v.Nullability == Unknown && v.Size != 0
}

// MergeValues merges two slot values. Values of equal size merge their nullabilities, an empty
// slot is the identity, and a size disagreement between two written slots yields Conflict.
func MergeValues(a, b Value) Value {
	switch {
	case a == b:
		return a
	case a.IsConflict() || b.IsConflict():
		return Conflict
	case a.IsEmpty():
		return b
	case b.IsEmpty():
		return a
	case a.Size != b.Size:
		return Conflict
	default:
		return Value{Nullability: Merge(a.Nullability, b.Nullability), Size: a.Size}
	}
}

func (v Value) String() string {
	switch {
	case v.IsConflict():
		return "-"
	case v.IsEmpty():
		return "."
	case v.Size == 2:
		return fmt.Sprintf("%s/2", v.Nullability)
	default:
		return v.Nullability.String()
	}
}
