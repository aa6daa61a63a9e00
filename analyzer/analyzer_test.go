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

package analyzer_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/nullsafe/analyzer"
	"go.uber.org/nullsafe/bytecode"
	"go.uber.org/nullsafe/frame"
	"go.uber.org/nullsafe/interp"
	"go.uber.org/nullsafe/jasm"
	"go.uber.org/nullsafe/lattice"
)

func analyze(t *testing.T, src string) (*bytecode.Method, []*frame.Frame) {
	t.Helper()

	m := jasm.MustParseMethod(src)
	var a analyzer.Analyzer
	frames, err := a.Analyze(m)
	require.NoError(t, err)
	require.Len(t, frames, len(m.Instructions))
	return m, frames
}

func TestLoopConverges(t *testing.T) {
	t.Parallel()

	m, frames := analyze(t, `
.method static loop(I)V
.limit stack 2
.limit locals 2
    aconst_null
    astore_1
Loop:
    iload_0
    ifeq Done
    new java/lang/Object
    dup
    invokespecial java/lang/Object/<init>()V
    astore_1
    goto Loop
Done:
    return
.end method
`)
	require.Equal(t, "[NONNULL .] []", frames[0].String())
	require.Equal(t, "[NONNULL NULLABLE] []", frames[2].String())
	require.Equal(t, "[NONNULL NULLABLE] []", frames[9].String())
	require.Equal(t, "[NONNULL NULLABLE] [NONNULL]", frames[5].String())
	requireFixpoint(t, m, frames)
}

func TestHandlerMergesLocals(t *testing.T) {
	t.Parallel()

	m, frames := analyze(t, `
.method static guarded()V
.limit stack 1
.limit locals 1
    aconst_null
    astore_0
Start:
    new java/lang/Object
    astore_0
End:
    return
Handler:
    pop
    aload_0
    invokevirtual java/lang/Object/hashCode()I
    pop
    return
.catch all from Start to End using Handler
.end method
`)
	require.Equal(t, "[NULLABLE] [NONNULL]", frames[5].String())
	require.Equal(t, "[NULLABLE] [NULLABLE]", frames[7].String())
	require.Equal(t, "[NONNULL] []", frames[4].String())
	requireFixpoint(t, m, frames)
}

func TestSubroutine(t *testing.T) {
	t.Parallel()

	m, frames := analyze(t, `
.method static finally()V
.limit stack 1
.limit locals 1
    jsr Sub
    return
Sub:
    astore_0
    ret 0
.end method
`)
	require.Equal(t, "[NONNULL] []", frames[1].String())
	require.Equal(t, "[.] [NONNULL]", frames[2].String())
	requireFixpoint(t, m, frames)
}

func TestUnreachable(t *testing.T) {
	t.Parallel()

	_, frames := analyze(t, `
.method static dead()V
.limit stack 1
    return
    aconst_null
    athrow
.end method
`)
	require.NotNil(t, frames[0])
	require.Nil(t, frames[1])
	require.Nil(t, frames[2])
}

func TestEmptyMethod(t *testing.T) {
	t.Parallel()

	var a analyzer.Analyzer
	frames, err := a.Analyze(&bytecode.Method{Name: "abstract", Desc: "()V"})
	require.NoError(t, err)
	require.Empty(t, frames)
}

func TestEntryFrame(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		a    analyzer.Analyzer
		m    *bytecode.Method
		want string
	}{
		{
			name: "unannotated references are nullable",
			m:    &bytecode.Method{Name: "f", Desc: "(Ljava/lang/String;I)V", MaxLocals: 4},
			want: "[NONNULL NULLABLE NONNULL .] []",
		},
		{
			name: "declared nullability",
			m: &bytecode.Method{
				Name: "f", Desc: "([ILjava/lang/Object;)V", Static: true, MaxLocals: 2,
				ParamNullability: []lattice.Nullability{lattice.NonNull},
			},
			want: "[NONNULL NULLABLE] []",
		},
		{
			name: "configured default",
			a:    analyzer.Analyzer{UnannotatedParams: lattice.NonNull},
			m:    &bytecode.Method{Name: "f", Desc: "(Ljava/lang/Object;)V", Static: true, MaxLocals: 1},
			want: "[NONNULL] []",
		},
		{
			name: "wide parameters",
			m:    &bytecode.Method{Name: "f", Desc: "(JLjava/lang/Object;)V", Static: true, MaxLocals: 3},
			want: "[NONNULL/2 - NULLABLE] []",
		},
	}
	for _, tt := range tests {
		tt := tt // per-iteration copy; go.mod targets go 1.21
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			tt.m.MaxStack = 1
			tt.m.Instructions = []bytecode.Instruction{&bytecode.Insn{Op: bytecode.RETURN}}
			frames, err := tt.a.Analyze(tt.m)
			require.NoError(t, err)
			require.Equal(t, tt.want, frames[0].String())
		})
	}
}

func TestMalformed(t *testing.T) {
	t.Parallel()

	ret := &bytecode.Insn{Op: bytecode.RETURN}
	tests := []struct {
		name    string
		m       *bytecode.Method
		wantErr error
		wantPos int
	}{
		{
			name: "falls off the end",
			m: &bytecode.Method{Desc: "()V", Static: true, MaxStack: 1, Instructions: []bytecode.Instruction{
				&bytecode.Insn{Op: bytecode.ACONST_NULL},
			}},
			wantErr: analyzer.ErrFallOff,
			wantPos: 0,
		},
		{
			name: "jump out of range",
			m: &bytecode.Method{Desc: "()V", Static: true, Instructions: []bytecode.Instruction{
				&bytecode.JumpInsn{Op: bytecode.GOTO, Target: 5}, ret,
			}},
			wantErr: analyzer.ErrBadTarget,
			wantPos: 0,
		},
		{
			name: "tableswitch with missing targets",
			m: &bytecode.Method{Desc: "(I)V", Static: true, MaxLocals: 1, MaxStack: 1, Instructions: []bytecode.Instruction{
				&bytecode.VarInsn{Op: bytecode.ILOAD, Var: 0},
				&bytecode.TableSwitchInsn{Min: 0, Max: 2, Default: 2, Targets: []int{2}},
				ret,
			}},
			wantErr: analyzer.ErrBadTarget,
			wantPos: 1,
		},
		{
			name: "empty handler range",
			m: &bytecode.Method{Desc: "()V", Static: true, Instructions: []bytecode.Instruction{ret},
				Handlers: []bytecode.Handler{{Start: 0, End: 0, Target: 0}}},
			wantErr: analyzer.ErrBadHandler,
			wantPos: -1,
		},
		{
			name:    "negative bounds",
			m:       &bytecode.Method{Desc: "()V", Static: true, MaxStack: -1, Instructions: []bytecode.Instruction{ret}},
			wantErr: analyzer.ErrBadBounds,
			wantPos: -1,
		},
		{
			name:    "bad descriptor",
			m:       &bytecode.Method{Desc: "(Q)V", Static: true, Instructions: []bytecode.Instruction{ret}},
			wantErr: bytecode.ErrBadDescriptor,
			wantPos: -1,
		},
		{
			name:    "parameters exceed max locals",
			m:       &bytecode.Method{Desc: "(J)V", Static: true, MaxLocals: 1, Instructions: []bytecode.Instruction{ret}},
			wantErr: frame.ErrLocalOutOfRange,
			wantPos: -1,
		},
		{
			name:    "receiver and parameters exceed max locals",
			m:       &bytecode.Method{Desc: "(II)V", MaxLocals: 2, Instructions: []bytecode.Instruction{ret}},
			wantErr: frame.ErrLocalOutOfRange,
			wantPos: -1,
		},
		{
			name: "stack underflow",
			m: &bytecode.Method{Desc: "()V", Static: true, Instructions: []bytecode.Instruction{
				&bytecode.Insn{Op: bytecode.POP}, ret,
			}},
			wantErr: frame.ErrStackUnderflow,
			wantPos: 0,
		},
		{
			name: "stack overflow",
			m: &bytecode.Method{Desc: "()V", Static: true, MaxStack: 1, Instructions: []bytecode.Instruction{
				&bytecode.Insn{Op: bytecode.ACONST_NULL}, &bytecode.Insn{Op: bytecode.ACONST_NULL}, ret,
			}},
			wantErr: frame.ErrStackOverflow,
			wantPos: 1,
		},
		{
			name: "unknown instruction",
			m: &bytecode.Method{Desc: "()V", Static: true, Instructions: []bytecode.Instruction{
				&bytecode.Insn{Op: bytecode.Opcode(250)}, ret,
			}},
			wantErr: interp.ErrNoTransfer,
			wantPos: 0,
		},
		{
			name: "stack heights disagree at a join",
			m: &bytecode.Method{Desc: "(I)V", Static: true, MaxLocals: 1, MaxStack: 1, Instructions: []bytecode.Instruction{
				&bytecode.VarInsn{Op: bytecode.ILOAD, Var: 0},
				&bytecode.JumpInsn{Op: bytecode.IFEQ, Target: 3},
				&bytecode.Insn{Op: bytecode.ACONST_NULL},
				ret,
			}},
			wantErr: frame.ErrShapeMismatch,
			wantPos: 2,
		},
	}
	for _, tt := range tests {
		tt := tt // per-iteration copy; go.mod targets go 1.21
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var a analyzer.Analyzer
			frames, err := a.Analyze(tt.m)
			require.Nil(t, frames)
			require.ErrorIs(t, err, tt.wantErr)

			var merr *analyzer.MalformedInputError
			require.True(t, errors.As(err, &merr))
			require.Equal(t, tt.wantPos, merr.Pos)
			if tt.wantPos >= 0 {
				require.Equal(t, tt.m.Instructions[tt.wantPos].Opcode(), merr.Op)
				require.Contains(t, err.Error(), "at instruction")
			}
		})
	}
}

// requireFixpoint checks that one more round of the transfer function changes no frame.
func requireFixpoint(t *testing.T, m *bytecode.Method, frames []*frame.Frame) {
	t.Helper()

	for pos, f := range frames {
		if f == nil {
			continue
		}
		out, err := interp.Step(f, m.Instructions[pos])
		require.NoError(t, err)
		for next := range frames {
			if frames[next] == nil || !flowsTo(m, pos, next) {
				continue
			}
			merged := frames[next].Copy()
			changed, err := merged.Merge(out)
			require.NoError(t, err)
			require.False(t, changed, "frame %d changes when merging the state after %d", next, pos)
		}
	}
}

// flowsTo reports the normal successors that the tests above rely on.
func flowsTo(m *bytecode.Method, from, to int) bool {
	switch insn := m.Instructions[from].(type) {
	case *bytecode.JumpInsn:
		if insn.Target == to {
			return true
		}
		return insn.Op != bytecode.GOTO && insn.Op != bytecode.JSR && to == from+1
	case *bytecode.VarInsn:
		if insn.Op == bytecode.RET {
			return false
		}
	case *bytecode.Insn:
		switch insn.Op {
		case bytecode.RETURN, bytecode.ATHROW:
			return false
		}
	}
	return to == from+1
}

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
