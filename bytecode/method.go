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

package bytecode

import "go.uber.org/nullsafe/lattice"

// Handler is one entry of a method's exception table: instructions at positions [Start, End)
// are protected, and control transfers to position Target when one of them throws an exception
// assignable to Type. An empty Type catches everything (finally blocks).
type Handler struct {
	Start  int
	End    int
	Target int
	Type   string
}

// Covers reports whether the instruction at position pos is protected by h.
func (h Handler) Covers(pos int) bool {
	return pos >= h.Start && pos < h.End
}

// Method is a decoded method body together with everything the analysis needs from its
// declaration.
type Method struct {
	// Owner is the internal name of the declaring class, e.g. "com/example/Foo".
	Owner string
	Name  string
	// Desc is the method descriptor, e.g. "(Ljava/lang/String;I)V".
	Desc   string
	Static bool

	// MaxStack and MaxLocals are the bounds declared in the Code attribute.
	MaxStack  int
	MaxLocals int

	Instructions []Instruction
	Handlers     []Handler

	// ParamNullability optionally carries what the reader knows about each declared parameter
	// (e.g. from @Nullable / @NonNull annotations), indexed by parameter, not by local slot.
	// Missing entries and lattice.Unknown mean "no information".
	ParamNullability []lattice.Nullability
}

// String returns the method in Owner.Name+Desc form.
func (m *Method) String() string {
	if m.Owner == "" {
		return m.Name + m.Desc
	}
	return m.Owner + "." + m.Name + m.Desc
}

// ParamNullabilityAt returns the declared nullability of the i-th parameter, or lattice.Unknown.
func (m *Method) ParamNullabilityAt(i int) lattice.Nullability {
	if i < 0 || i >= len(m.ParamNullability) {
		return lattice.Unknown
	}
	return m.ParamNullability[i]
}
