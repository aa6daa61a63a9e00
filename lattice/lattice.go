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

// Package lattice defines the nullability lattice that the abstract interpreter computes over,
// together with the sized slot values stored in the operand stack and local variables.
package lattice

import (
	"fmt"
	"strings"
)

// Nullability is the abstract value of a single stack or local slot. The lattice has height
// three:
//
//	    Nullable
//	   /        \
//	Null      NonNull
//	   \        /
//	    Unknown
//
// Unknown is the bottom element and the identity of Merge; it stands for "not analyzed yet" and
// is never reported by the diagnosis pass.
type Nullability uint8

const (
	// Unknown is the bottom element: no information has flowed into the slot yet.
	Unknown Nullability = iota
	// Null marks a value that is definitely the null reference.
	Null
	// NonNull marks a value that is definitely not null. Primitive values are always NonNull.
	NonNull
	// Nullable marks a value that may or may not be null (the top element).
	Nullable
)

func (n Nullability) String() string {
	switch n {
	case Unknown:
		return "UNKNOWN"
	case Null:
		return "NULL"
	case NonNull:
		return "NONNULL"
	case Nullable:
		return "NULLABLE"
	default:
		return "INVALID"
	}
}

// Merge returns the least upper bound of a and b.
func Merge(a, b Nullability) Nullability {
	switch {
	case a == b:
		return a
	case a == Unknown:
		return b
	case b == Unknown:
		return a
	default:
		// Either one side is already Nullable, or the two sides are Null and NonNull.
		return Nullable
	}
}

// LessEq reports whether a is below or equal to b in the lattice order.
func LessEq(a, b Nullability) bool {
	return Merge(a, b) == b
}

// IsViolation reports whether dereferencing a value of nullability n may fail.
func (n Nullability) IsViolation() bool {
	return n == Null || n == Nullable
}

// ParseNullability parses the (case-insensitive) name of a nullability as printed by String.
func ParseNullability(s string) (Nullability, error) {
	for _, n := range []Nullability{Unknown, Null, NonNull, Nullable} {
		if strings.EqualFold(s, n.String()) {
			return n, nil
		}
	}
	return Unknown, fmt.Errorf("unknown nullability %q", s)
}
