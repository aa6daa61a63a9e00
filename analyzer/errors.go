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
	"errors"
	"fmt"

	"go.uber.org/nullsafe/bytecode"
)

// Errors describing malformed control flow. They are always wrapped in a *MalformedInputError.
var (
	ErrBadTarget  = errors.New("control transfer target out of range")
	ErrFallOff    = errors.New("execution falls off the end of the code")
	ErrBadHandler = errors.New("invalid exception handler range")
	ErrBadBounds  = errors.New("invalid max stack or max locals")
)

// MalformedInputError reports a method body that is inconsistent with its declared bounds or
// descriptors: stack underflow or overflow, an out-of-range local, a descriptor mismatch, a bad
// jump target, and so on. The analysis of the method is aborted and no frames are returned.
type MalformedInputError struct {
	// Method is the method being analyzed, in Owner.Name+Desc form.
	Method string
	// Pos is the position of the offending instruction, or -1 when the method declaration
	// itself (descriptor, bounds, exception table) is at fault.
	Pos int
	// Op is the opcode of the offending instruction; it is meaningless when Pos is -1.
	Op  bytecode.Opcode
	Err error
}

func (e *MalformedInputError) Error() string {
	if e.Pos < 0 {
		return fmt.Sprintf("malformed method %s: %v", e.Method, e.Err)
	}
	return fmt.Sprintf("malformed method %s at instruction %d (%s): %v", e.Method, e.Pos, e.Op, e.Err)
}

func (e *MalformedInputError) Unwrap() error { return e.Err }
