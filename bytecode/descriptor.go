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

import (
	"errors"
	"fmt"
	"strings"
)

// ErrBadDescriptor is returned (wrapped) for field or method descriptors that do not follow the
// class-file grammar.
var ErrBadDescriptor = errors.New("malformed descriptor")

// Sort classifies a descriptor type.
type Sort uint8

// Sorts of descriptor types.
const (
	Void Sort = iota
	Boolean
	Char
	Byte
	Short
	Int
	Float
	Long
	Double
	Array
	Object
)

// Type is a parsed field type (or the return type of a method descriptor).
type Type struct {
	Sort Sort
	// Desc is the original descriptor text of this type, e.g. "J" or "Ljava/lang/String;".
	Desc string
}

// Size returns the number of stack or local slots a value of this type occupies: 0 for void,
// 2 for long and double, 1 otherwise.
func (t Type) Size() uint8 {
	switch t.Sort {
	case Void:
		return 0
	case Long, Double:
		return 2
	default:
		return 1
	}
}

// IsReference reports whether values of this type are object or array references.
func (t Type) IsReference() bool {
	return t.Sort == Object || t.Sort == Array
}

func (t Type) String() string { return t.Desc }

// ParseFieldType parses a complete field descriptor such as "I", "[J" or "Ljava/lang/Object;".
func ParseFieldType(desc string) (Type, error) {
	t, n, err := parseType(desc, 0)
	if err != nil {
		return Type{}, err
	}
	if t.Sort == Void || n != len(desc) {
		return Type{}, fmt.Errorf("%w: field descriptor %q", ErrBadDescriptor, desc)
	}
	return t, nil
}

// MethodType is a parsed method descriptor.
type MethodType struct {
	Args   []Type
	Return Type
}

// ArgSlots returns the number of local or stack slots the arguments occupy, with long and double
// arguments counting twice.
func (m MethodType) ArgSlots() int {
	n := 0
	for _, a := range m.Args {
		n += int(a.Size())
	}
	return n
}

// ParseMethodDescriptor parses a method descriptor such as "(ILjava/lang/String;)V".
func ParseMethodDescriptor(desc string) (MethodType, error) {
	if !strings.HasPrefix(desc, "(") {
		return MethodType{}, fmt.Errorf("%w: method descriptor %q must start with '('", ErrBadDescriptor, desc)
	}

	var mt MethodType
	i := 1
	for {
		if i >= len(desc) {
			return MethodType{}, fmt.Errorf("%w: method descriptor %q has no ')'", ErrBadDescriptor, desc)
		}
		if desc[i] == ')' {
			i++
			break
		}
		t, n, err := parseType(desc, i)
		if err != nil {
			return MethodType{}, err
		}
		if t.Sort == Void {
			return MethodType{}, fmt.Errorf("%w: void parameter in %q", ErrBadDescriptor, desc)
		}
		mt.Args = append(mt.Args, t)
		i = n
	}

	ret, n, err := parseType(desc, i)
	if err != nil {
		return MethodType{}, err
	}
	if n != len(desc) {
		return MethodType{}, fmt.Errorf("%w: trailing characters in %q", ErrBadDescriptor, desc)
	}
	mt.Return = ret
	return mt, nil
}

// parseType parses one type starting at desc[start] and returns it together with the index just
// past it.
func parseType(desc string, start int) (Type, int, error) {
	if start >= len(desc) {
		return Type{}, start, fmt.Errorf("%w: unexpected end of %q", ErrBadDescriptor, desc)
	}

	end := start + 1
	var sort Sort
	switch desc[start] {
	case 'V':
		sort = Void
	case 'Z':
		sort = Boolean
	case 'C':
		sort = Char
	case 'B':
		sort = Byte
	case 'S':
		sort = Short
	case 'I':
		sort = Int
	case 'F':
		sort = Float
	case 'J':
		sort = Long
	case 'D':
		sort = Double
	case 'L':
		semi := strings.IndexByte(desc[start:], ';')
		if semi <= 1 {
			return Type{}, start, fmt.Errorf("%w: unterminated class type in %q", ErrBadDescriptor, desc)
		}
		sort = Object
		end = start + semi + 1
	case '[':
		elem, n, err := parseType(desc, start+1)
		if err != nil {
			return Type{}, start, err
		}
		if elem.Sort == Void {
			return Type{}, start, fmt.Errorf("%w: void array element in %q", ErrBadDescriptor, desc)
		}
		sort = Array
		end = n
	default:
		return Type{}, start, fmt.Errorf("%w: unexpected %q at offset %d of %q",
			ErrBadDescriptor, desc[start], start, desc)
	}
	return Type{Sort: sort, Desc: desc[start:end]}, end, nil
}
