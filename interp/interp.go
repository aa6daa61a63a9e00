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

// Package interp implements the transfer function of the nullability analysis: the abstract
// semantics of every JVM instruction over frames of lattice values.
//
// ACONST_NULL is the only source of Null, and allocations and constants are NonNull. Every value
// whose origin the analysis cannot see (method results, field reads, elements of reference
// arrays) is Nullable. Primitives are always NonNull. Branch instructions only pop their
// operands, so the frames on both sides of an IFNULL are the same.
package interp

import (
	"errors"
	"fmt"

	"go.uber.org/nullsafe/bytecode"
	"go.uber.org/nullsafe/frame"
	"go.uber.org/nullsafe/lattice"
)

// ErrNoTransfer is returned by Step for an instruction it has no rule for. The frame returned
// alongside it is an unchanged copy of the input.
var ErrNoTransfer = errors.New("no transfer rule for instruction")

// Step returns the frame after executing insn in the state in. The input frame is never
// modified. On ErrNoTransfer the result is a copy of in; on any other error it is nil.
func Step(in *frame.Frame, insn bytecode.Instruction) (*frame.Frame, error) {
	out := in.Copy()
	if err := execute(out, insn); err != nil {
		if errors.Is(err, ErrNoTransfer) {
			return in.Copy(), err
		}
		return nil, err
	}
	return out, nil
}

func execute(f *frame.Frame, insn bytecode.Instruction) error {
	switch insn := insn.(type) {
	case *bytecode.Insn:
		return executeInsn(f, insn.Op)
	case *bytecode.IntInsn:
		return executeIntInsn(f, insn)
	case *bytecode.VarInsn:
		return executeVarInsn(f, insn)
	case *bytecode.IincInsn:
		_, err := f.LoadLocal(insn.Var, 1)
		return err
	case *bytecode.TypeInsn:
		return executeTypeInsn(f, insn)
	case *bytecode.FieldInsn:
		return executeFieldInsn(f, insn)
	case *bytecode.MethodInsn:
		return executeMethodInsn(f, insn)
	case *bytecode.InvokeDynamicInsn:
		mt, err := bytecode.ParseMethodDescriptor(insn.Desc)
		if err != nil {
			return err
		}
		return invoke(f, mt, false /* hasReceiver */)
	case *bytecode.JumpInsn:
		return executeJumpInsn(f, insn)
	case *bytecode.LdcInsn:
		return f.Push(ldcValue(insn.Kind))
	case *bytecode.TableSwitchInsn, *bytecode.LookupSwitchInsn:
		_, err := f.PopSized(1)
		return err
	case *bytecode.MultiANewArrayInsn:
		t, err := bytecode.ParseFieldType(insn.Desc)
		if err != nil {
			return err
		}
		if t.Sort != bytecode.Array || insn.Dims < 1 || insn.Dims > arrayDims(t.Desc) {
			return fmt.Errorf("%w: %d dimensions for %q", bytecode.ErrBadDescriptor, insn.Dims, insn.Desc)
		}
		if err := f.PopN(insn.Dims); err != nil {
			return err
		}
		return f.Push(lattice.NonNullRef)
	default:
		return fmt.Errorf("%w: %T", ErrNoTransfer, insn)
	}
}

// executeInsn handles the zero-operand instructions.
func executeInsn(f *frame.Frame, op bytecode.Opcode) error {
	switch op {
	case bytecode.NOP:
		return nil

	case bytecode.ACONST_NULL:
		return f.Push(lattice.NullRef)

	case bytecode.ICONST_M1, bytecode.ICONST_0, bytecode.ICONST_1, bytecode.ICONST_2,
		bytecode.ICONST_3, bytecode.ICONST_4, bytecode.ICONST_5,
		bytecode.FCONST_0, bytecode.FCONST_1, bytecode.FCONST_2:
		return f.Push(lattice.Primitive(1))
	case bytecode.LCONST_0, bytecode.LCONST_1, bytecode.DCONST_0, bytecode.DCONST_1:
		return f.Push(lattice.Primitive(2))

	// Array loads: index, then array reference.
	case bytecode.IALOAD, bytecode.FALOAD, bytecode.BALOAD, bytecode.CALOAD, bytecode.SALOAD:
		return apply(f, []uint8{1, 1}, 1)
	case bytecode.LALOAD, bytecode.DALOAD:
		return apply(f, []uint8{1, 1}, 2)
	case bytecode.AALOAD:
		if err := f.PopN(2); err != nil {
			return err
		}
		return f.Push(lattice.NullableRef)

	// Array stores: value, index, then array reference.
	case bytecode.IASTORE, bytecode.FASTORE, bytecode.AASTORE, bytecode.BASTORE,
		bytecode.CASTORE, bytecode.SASTORE:
		return apply(f, []uint8{1, 1, 1}, 0)
	case bytecode.LASTORE, bytecode.DASTORE:
		return apply(f, []uint8{2, 1, 1}, 0)

	case bytecode.POP, bytecode.POP2, bytecode.DUP, bytecode.DUP_X1, bytecode.DUP_X2,
		bytecode.DUP2, bytecode.DUP2_X1, bytecode.DUP2_X2, bytecode.SWAP:
		return executeStackOp(f, op)

	case bytecode.IADD, bytecode.ISUB, bytecode.IMUL, bytecode.IDIV, bytecode.IREM,
		bytecode.ISHL, bytecode.ISHR, bytecode.IUSHR, bytecode.IAND, bytecode.IOR, bytecode.IXOR,
		bytecode.FADD, bytecode.FSUB, bytecode.FMUL, bytecode.FDIV, bytecode.FREM:
		return apply(f, []uint8{1, 1}, 1)
	case bytecode.LADD, bytecode.LSUB, bytecode.LMUL, bytecode.LDIV, bytecode.LREM,
		bytecode.LAND, bytecode.LOR, bytecode.LXOR,
		bytecode.DADD, bytecode.DSUB, bytecode.DMUL, bytecode.DDIV, bytecode.DREM:
		return apply(f, []uint8{2, 2}, 2)
	case bytecode.LSHL, bytecode.LSHR, bytecode.LUSHR:
		// The shift distance is an int.
		return apply(f, []uint8{1, 2}, 2)
	case bytecode.INEG, bytecode.FNEG:
		return apply(f, []uint8{1}, 1)
	case bytecode.LNEG, bytecode.DNEG:
		return apply(f, []uint8{2}, 2)

	case bytecode.I2F, bytecode.F2I, bytecode.I2B, bytecode.I2C, bytecode.I2S:
		return apply(f, []uint8{1}, 1)
	case bytecode.I2L, bytecode.I2D, bytecode.F2L, bytecode.F2D:
		return apply(f, []uint8{1}, 2)
	case bytecode.L2I, bytecode.L2F, bytecode.D2I, bytecode.D2F:
		return apply(f, []uint8{2}, 1)
	case bytecode.L2D, bytecode.D2L:
		return apply(f, []uint8{2}, 2)

	case bytecode.LCMP, bytecode.DCMPL, bytecode.DCMPG:
		return apply(f, []uint8{2, 2}, 1)
	case bytecode.FCMPL, bytecode.FCMPG:
		return apply(f, []uint8{1, 1}, 1)

	case bytecode.IRETURN, bytecode.FRETURN, bytecode.ARETURN:
		return apply(f, []uint8{1}, 0)
	case bytecode.LRETURN, bytecode.DRETURN:
		return apply(f, []uint8{2}, 0)
	case bytecode.RETURN:
		return nil

	case bytecode.ARRAYLENGTH:
		return apply(f, []uint8{1}, 1)
	case bytecode.ATHROW, bytecode.MONITORENTER, bytecode.MONITOREXIT:
		return apply(f, []uint8{1}, 0)

	default:
		return fmt.Errorf("%w: %s without operands", ErrNoTransfer, op)
	}
}

// apply pops values of the given sizes (top first) and then pushes a NonNull primitive of size
// push, unless push is 0.
func apply(f *frame.Frame, pops []uint8, push uint8) error {
	for _, size := range pops {
		if _, err := f.PopSized(size); err != nil {
			return err
		}
	}
	if push == 0 {
		return nil
	}
	return f.Push(lattice.Primitive(push))
}

func executeIntInsn(f *frame.Frame, insn *bytecode.IntInsn) error {
	switch insn.Op {
	case bytecode.BIPUSH, bytecode.SIPUSH:
		return f.Push(lattice.Primitive(1))
	case bytecode.NEWARRAY:
		if _, err := f.PopSized(1); err != nil {
			return err
		}
		return f.Push(lattice.NonNullRef)
	default:
		return fmt.Errorf("%w: %s with an int operand", ErrNoTransfer, insn.Op)
	}
}

func executeVarInsn(f *frame.Frame, insn *bytecode.VarInsn) error {
	switch insn.Op {
	case bytecode.ILOAD, bytecode.FLOAD, bytecode.ALOAD:
		return load(f, insn.Var, 1)
	case bytecode.LLOAD, bytecode.DLOAD:
		return load(f, insn.Var, 2)
	case bytecode.ISTORE, bytecode.FSTORE, bytecode.ASTORE:
		return store(f, insn.Var, 1)
	case bytecode.LSTORE, bytecode.DSTORE:
		return store(f, insn.Var, 2)
	case bytecode.RET:
		// The local must hold the return address pushed by JSR.
		_, err := f.LoadLocal(insn.Var, 1)
		return err
	default:
		return fmt.Errorf("%w: %s with a local variable operand", ErrNoTransfer, insn.Op)
	}
}

func load(f *frame.Frame, local int, size uint8) error {
	v, err := f.LoadLocal(local, size)
	if err != nil {
		return err
	}
	return f.Push(v)
}

func store(f *frame.Frame, local int, size uint8) error {
	v, err := f.PopSized(size)
	if err != nil {
		return err
	}
	return f.SetLocal(local, v)
}

func executeTypeInsn(f *frame.Frame, insn *bytecode.TypeInsn) error {
	switch insn.Op {
	case bytecode.NEW:
		return f.Push(lattice.NonNullRef)
	case bytecode.ANEWARRAY:
		if _, err := f.PopSized(1); err != nil {
			return err
		}
		return f.Push(lattice.NonNullRef)
	case bytecode.CHECKCAST:
		// A cast never changes nullability: null passes every CHECKCAST.
		v, err := f.PopSized(1)
		if err != nil {
			return err
		}
		return f.Push(v)
	case bytecode.INSTANCEOF:
		return apply(f, []uint8{1}, 1)
	default:
		return fmt.Errorf("%w: %s with a type operand", ErrNoTransfer, insn.Op)
	}
}

func executeFieldInsn(f *frame.Frame, insn *bytecode.FieldInsn) error {
	t, err := bytecode.ParseFieldType(insn.Desc)
	if err != nil {
		return err
	}

	switch insn.Op {
	case bytecode.GETSTATIC:
		return f.Push(unknownValue(t))
	case bytecode.PUTSTATIC:
		_, err := f.PopSized(t.Size())
		return err
	case bytecode.GETFIELD:
		if _, err := f.PopSized(1); err != nil {
			return err
		}
		return f.Push(unknownValue(t))
	case bytecode.PUTFIELD:
		return apply(f, []uint8{t.Size(), 1}, 0)
	default:
		return fmt.Errorf("%w: %s with a field operand", ErrNoTransfer, insn.Op)
	}
}

func executeMethodInsn(f *frame.Frame, insn *bytecode.MethodInsn) error {
	mt, err := bytecode.ParseMethodDescriptor(insn.Desc)
	if err != nil {
		return err
	}
	if insn.Name == "<init>" && (insn.Op != bytecode.INVOKESPECIAL || mt.Return.Sort != bytecode.Void) {
		return fmt.Errorf("%w: constructor call %s %s.%s%s",
			bytecode.ErrBadDescriptor, insn.Op, insn.Owner, insn.Name, insn.Desc)
	}

	switch insn.Op {
	case bytecode.INVOKEVIRTUAL, bytecode.INVOKESPECIAL, bytecode.INVOKEINTERFACE:
		return invoke(f, mt, true /* hasReceiver */)
	case bytecode.INVOKESTATIC:
		return invoke(f, mt, false /* hasReceiver */)
	default:
		return fmt.Errorf("%w: %s with a method operand", ErrNoTransfer, insn.Op)
	}
}

// invoke pops the arguments (and the receiver, if any) and pushes the result. Nothing is known
// about the callee, so a reference result is Nullable.
func invoke(f *frame.Frame, mt bytecode.MethodType, hasReceiver bool) error {
	for i := len(mt.Args) - 1; i >= 0; i-- {
		if _, err := f.PopSized(mt.Args[i].Size()); err != nil {
			return err
		}
	}
	if hasReceiver {
		if _, err := f.PopSized(1); err != nil {
			return err
		}
	}
	if mt.Return.Sort == bytecode.Void {
		return nil
	}
	return f.Push(unknownValue(mt.Return))
}

func executeJumpInsn(f *frame.Frame, insn *bytecode.JumpInsn) error {
	switch insn.Op {
	case bytecode.IFEQ, bytecode.IFNE, bytecode.IFLT, bytecode.IFGE, bytecode.IFGT, bytecode.IFLE,
		bytecode.IFNULL, bytecode.IFNONNULL:
		return apply(f, []uint8{1}, 0)
	case bytecode.IF_ICMPEQ, bytecode.IF_ICMPNE, bytecode.IF_ICMPLT, bytecode.IF_ICMPGE,
		bytecode.IF_ICMPGT, bytecode.IF_ICMPLE, bytecode.IF_ACMPEQ, bytecode.IF_ACMPNE:
		return apply(f, []uint8{1, 1}, 0)
	case bytecode.GOTO:
		return nil
	case bytecode.JSR:
		// The return address.
		return f.Push(lattice.NonNullRef)
	default:
		return fmt.Errorf("%w: %s with a jump target", ErrNoTransfer, insn.Op)
	}
}

// unknownValue is the value of a field read or a method result of type t.
func unknownValue(t bytecode.Type) lattice.Value {
	if t.IsReference() {
		return lattice.NullableRef
	}
	return lattice.Primitive(t.Size())
}

func ldcValue(kind bytecode.ConstKind) lattice.Value {
	switch kind {
	case bytecode.ConstInt, bytecode.ConstFloat:
		return lattice.Primitive(1)
	case bytecode.ConstLong, bytecode.ConstDouble:
		return lattice.Primitive(2)
	case bytecode.ConstDynamic:
		// Dynamically-computed constants may resolve to null.
		return lattice.NullableRef
	default:
		return lattice.NonNullRef
	}
}

func arrayDims(desc string) int {
	n := 0
	for n < len(desc) && desc[n] == '[' {
		n++
	}
	return n
}
