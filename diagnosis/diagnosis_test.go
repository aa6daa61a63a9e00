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

package diagnosis_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/nullsafe/bytecode"
	"go.uber.org/nullsafe/diagnosis"
	"go.uber.org/nullsafe/frame"
	"go.uber.org/nullsafe/lattice"
)

func TestReceiverDepth(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		insn  bytecode.Instruction
		depth int
		ok    bool
	}{
		{name: "getfield", insn: &bytecode.FieldInsn{Op: bytecode.GETFIELD, Desc: "I"}, depth: 0, ok: true},
		{name: "putfield", insn: &bytecode.FieldInsn{Op: bytecode.PUTFIELD, Desc: "J"}, depth: 1, ok: true},
		{name: "getstatic", insn: &bytecode.FieldInsn{Op: bytecode.GETSTATIC, Desc: "I"}},
		{name: "arraylength", insn: &bytecode.Insn{Op: bytecode.ARRAYLENGTH}, depth: 0, ok: true},
		{name: "monitorexit", insn: &bytecode.Insn{Op: bytecode.MONITOREXIT}, depth: 0, ok: true},
		{name: "athrow", insn: &bytecode.Insn{Op: bytecode.ATHROW}},
		{name: "aaload", insn: &bytecode.Insn{Op: bytecode.AALOAD}},
		{
			name:  "invokevirtual without arguments",
			insn:  &bytecode.MethodInsn{Op: bytecode.INVOKEVIRTUAL, Desc: "()I"},
			depth: 0,
			ok:    true,
		},
		{
			name:  "invokeinterface counts wide arguments once",
			insn:  &bytecode.MethodInsn{Op: bytecode.INVOKEINTERFACE, Desc: "(JLjava/lang/Object;D)V"},
			depth: 3,
			ok:    true,
		},
		{
			name:  "invokespecial",
			insn:  &bytecode.MethodInsn{Op: bytecode.INVOKESPECIAL, Name: "<init>", Desc: "(I)V"},
			depth: 1,
			ok:    true,
		},
		{name: "invokestatic", insn: &bytecode.MethodInsn{Op: bytecode.INVOKESTATIC, Desc: "(I)V"}},
		{name: "bad descriptor", insn: &bytecode.MethodInsn{Op: bytecode.INVOKEVIRTUAL, Desc: "(Q)V"}},
	}
	for _, tt := range tests {
		tt := tt // per-iteration copy; go.mod targets go 1.21
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			depth, ok := diagnosis.ReceiverDepth(tt.insn)
			require.Equal(t, tt.ok, ok)
			require.Equal(t, tt.depth, depth)
		})
	}
}

func TestReceiver(t *testing.T) {
	t.Parallel()

	f := frame.New(0, 4)
	require.NoError(t, f.Push(lattice.NullRef))
	require.NoError(t, f.Push(lattice.Primitive(2)))

	v, ok := diagnosis.Receiver(f, &bytecode.FieldInsn{Op: bytecode.PUTFIELD, Desc: "J"})
	require.True(t, ok)
	require.Equal(t, lattice.NullRef, v)

	// The stack is not deep enough for two arguments and a receiver.
	_, ok = diagnosis.Receiver(f, &bytecode.MethodInsn{Op: bytecode.INVOKEVIRTUAL, Desc: "(II)V"})
	require.False(t, ok)

	_, ok = diagnosis.Receiver(f, &bytecode.Insn{Op: bytecode.POP2})
	require.False(t, ok)
}

func TestDiagnose(t *testing.T) {
	t.Parallel()

	stackFrame := func(vs ...lattice.Value) *frame.Frame {
		f := frame.New(0, 4)
		for _, v := range vs {
			require.NoError(t, f.Push(v))
		}
		return f
	}
	hashCode := &bytecode.MethodInsn{Op: bytecode.INVOKEVIRTUAL, Owner: "java/lang/Object", Name: "hashCode", Desc: "()I"}
	nop := &bytecode.Insn{Op: bytecode.NOP}

	insns := []bytecode.Instruction{nop, nop, nop, hashCode, nop, hashCode, hashCode, hashCode, hashCode}
	frames := []*frame.Frame{
		stackFrame(),                    // 0
		stackFrame(),                    // 1
		stackFrame(),                    // 2
		stackFrame(lattice.NullRef),     // 3: definitely null
		stackFrame(),                    // 4
		stackFrame(lattice.NonNullRef),  // 5: safe
		nil,                             // 6: unreachable
		stackFrame(lattice.NullableRef), // 7: may be null
		stackFrame(),                    // 8: stack too shallow
	}

	got := diagnosis.Diagnose(frames, insns)
	if diff := cmp.Diff([]int{3, 7}, got); diff != "" {
		t.Fatalf("unexpected positions (-want +got):\n%s", diff)
	}

	require.Nil(t, diagnosis.Diagnose(frames[:3], insns[:3]))
	require.Nil(t, diagnosis.Diagnose(nil, nil))
}

func TestDumpFrames(t *testing.T) {
	t.Parallel()

	f := frame.New(1, 1)
	require.NoError(t, f.SetLocal(0, lattice.NonNullRef))
	insns := []bytecode.Instruction{&bytecode.Insn{Op: bytecode.RETURN}, &bytecode.Insn{Op: bytecode.NOP}}

	got := diagnosis.DumpFrames([]*frame.Frame{f, nil}, insns)
	want := []string{
		"000 return           [NONNULL] []",
		"001 nop              <unreachable>",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected dump (-want +got):\n%s", diff)
	}
}

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
