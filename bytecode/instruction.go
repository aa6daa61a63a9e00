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

// Package bytecode models the decoded form of a JVM method body that the analysis consumes: a
// positional instruction sequence, the exception handler table and the method's declared bounds.
// Decoding class files is left to the reader that produces these values.
package bytecode

// An Instruction is one element of a method's instruction sequence. The set of implementations
// is closed (see the unexported marker method), and each implementation carries exactly the
// operands its opcodes need:
//
//   - Insn: zero-operand instructions (arithmetic, stack manipulation, returns, ...)
//   - IntInsn: BIPUSH, SIPUSH, NEWARRAY
//   - VarInsn: xLOAD, xSTORE, RET
//   - IincInsn: IINC
//   - TypeInsn: NEW, ANEWARRAY, CHECKCAST, INSTANCEOF
//   - FieldInsn: GETSTATIC, PUTSTATIC, GETFIELD, PUTFIELD
//   - MethodInsn: INVOKEVIRTUAL, INVOKESPECIAL, INVOKESTATIC, INVOKEINTERFACE
//   - InvokeDynamicInsn: INVOKEDYNAMIC
//   - JumpInsn: conditional branches, GOTO, JSR
//   - LdcInsn: LDC
//   - TableSwitchInsn, LookupSwitchInsn
//   - MultiANewArrayInsn: MULTIANEWARRAY
//
// Jump and switch targets are positions in the same instruction sequence.
type Instruction interface {
	Opcode() Opcode
	isInstruction()
}

// Insn is an instruction without operands.
type Insn struct {
	Op Opcode
}

// IntInsn is an instruction with a single int operand.
type IntInsn struct {
	Op      Opcode
	Operand int
}

// VarInsn loads or stores a local variable, or returns from a subroutine (RET).
type VarInsn struct {
	Op  Opcode
	Var int
}

// IincInsn increments an int local variable.
type IincInsn struct {
	Var  int
	Incr int
}

// TypeInsn takes a type operand: an internal class name, or an array descriptor.
type TypeInsn struct {
	Op   Opcode
	Desc string
}

// FieldInsn reads or writes a static or instance field.
type FieldInsn struct {
	Op    Opcode
	Owner string
	Name  string
	Desc  string
}

// MethodInsn invokes a method.
type MethodInsn struct {
	Op    Opcode
	Owner string
	Name  string
	Desc  string
	Itf   bool
}

// InvokeDynamicInsn invokes a call site bootstrapped at run time.
type InvokeDynamicInsn struct {
	Name string
	Desc string
}

// JumpInsn transfers control to Target, conditionally or not.
type JumpInsn struct {
	Op     Opcode
	Target int
}

// LdcInsn loads a constant from the constant pool.
type LdcInsn struct {
	Kind ConstKind
}

// ConstKind classifies LDC constants; only the size of the pushed value matters to the analysis.
type ConstKind uint8

// Kinds of LDC constants.
const (
	ConstInt ConstKind = iota
	ConstFloat
	ConstLong
	ConstDouble
	ConstString
	ConstClass
	ConstMethodType
	ConstMethodHandle
	ConstDynamic
)

// TableSwitchInsn jumps through a dense table indexed by the int on top of the stack.
type TableSwitchInsn struct {
	Min, Max int
	Default  int
	Targets  []int
}

// LookupSwitchInsn jumps through a sparse key/target table.
type LookupSwitchInsn struct {
	Default int
	Keys    []int
	Targets []int
}

// MultiANewArrayInsn allocates a multi-dimensional array.
type MultiANewArrayInsn struct {
	Desc string
	Dims int
}

// Opcode implementations.

func (i *Insn) Opcode() Opcode             { return i.Op }
func (i *IntInsn) Opcode() Opcode          { return i.Op }
func (i *VarInsn) Opcode() Opcode          { return i.Op }
func (*IincInsn) Opcode() Opcode           { return IINC }
func (i *TypeInsn) Opcode() Opcode         { return i.Op }
func (i *FieldInsn) Opcode() Opcode        { return i.Op }
func (i *MethodInsn) Opcode() Opcode       { return i.Op }
func (*InvokeDynamicInsn) Opcode() Opcode  { return INVOKEDYNAMIC }
func (i *JumpInsn) Opcode() Opcode         { return i.Op }
func (*LdcInsn) Opcode() Opcode            { return LDC }
func (*TableSwitchInsn) Opcode() Opcode    { return TABLESWITCH }
func (*LookupSwitchInsn) Opcode() Opcode   { return LOOKUPSWITCH }
func (*MultiANewArrayInsn) Opcode() Opcode { return MULTIANEWARRAY }

func (*Insn) isInstruction()               {}
func (*IntInsn) isInstruction()            {}
func (*VarInsn) isInstruction()            {}
func (*IincInsn) isInstruction()           {}
func (*TypeInsn) isInstruction()           {}
func (*FieldInsn) isInstruction()          {}
func (*MethodInsn) isInstruction()         {}
func (*InvokeDynamicInsn) isInstruction()  {}
func (*JumpInsn) isInstruction()           {}
func (*LdcInsn) isInstruction()            {}
func (*TableSwitchInsn) isInstruction()    {}
func (*LookupSwitchInsn) isInstruction()   {}
func (*MultiANewArrayInsn) isInstruction() {}
