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

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

var _all = []Nullability{Unknown, Null, NonNull, Nullable}

func TestMerge(t *testing.T) {
	t.Parallel()

	tests := []struct {
		a, b, want Nullability
	}{
		{Unknown, Unknown, Unknown},
		{Unknown, Null, Null},
		{NonNull, Unknown, NonNull},
		{Null, Null, Null},
		{Null, NonNull, Nullable},
		{NonNull, Null, Nullable},
		{Nullable, Null, Nullable},
		{NonNull, Nullable, Nullable},
		{Unknown, Nullable, Nullable},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, Merge(tt.a, tt.b), "Merge(%s, %s)", tt.a, tt.b)
	}
}

func TestMergeLaws(t *testing.T) {
	t.Parallel()

	for _, a := range _all {
		require.Equal(t, a, Merge(a, a), "idempotence of %s", a)
		require.Equal(t, a, Merge(Unknown, a), "identity for %s", a)
		require.Equal(t, Nullable, Merge(Nullable, a), "absorption of %s", a)
		for _, b := range _all {
			require.Equal(t, Merge(a, b), Merge(b, a), "commutativity of %s, %s", a, b)
			require.True(t, LessEq(a, Merge(a, b)), "%s <= %s v %s", a, a, b)
			for _, c := range _all {
				require.Equal(t, Merge(Merge(a, b), c), Merge(a, Merge(b, c)), "associativity of %s, %s, %s", a, b, c)
				if LessEq(a, b) {
					require.True(t, LessEq(Merge(a, c), Merge(b, c)), "monotonicity of %s <= %s with %s", a, b, c)
				}
			}
		}
	}
}

func TestLessEq(t *testing.T) {
	t.Parallel()

	require.True(t, LessEq(Unknown, Null))
	require.True(t, LessEq(Null, Nullable))
	require.True(t, LessEq(NonNull, Nullable))
	require.False(t, LessEq(Null, NonNull))
	require.False(t, LessEq(NonNull, Null))
	require.False(t, LessEq(Nullable, NonNull))
}

func TestIsViolation(t *testing.T) {
	t.Parallel()

	require.False(t, Unknown.IsViolation())
	require.True(t, Null.IsViolation())
	require.False(t, NonNull.IsViolation())
	require.True(t, Nullable.IsViolation())
}

func TestParseNullability(t *testing.T) {
	t.Parallel()

	for _, n := range _all {
		got, err := ParseNullability(n.String())
		require.NoError(t, err)
		require.Equal(t, n, got)
	}

	got, err := ParseNullability("nonNull")
	require.NoError(t, err)
	require.Equal(t, NonNull, got)

	_, err = ParseNullability("maybe")
	require.ErrorContains(t, err, `"maybe"`)
	require.Equal(t, "INVALID", Nullability(42).String())
}

func TestMergeValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		a, b Value
		want Value
	}{
		{name: "same", a: NullRef, b: NullRef, want: NullRef},
		{name: "null and nonnull", a: NullRef, b: NonNullRef, want: NullableRef},
		{name: "empty is identity", a: Empty, b: NullRef, want: NullRef},
		{name: "empty is identity on the right", a: Primitive(2), b: Empty, want: Primitive(2)},
		{name: "size clash", a: Primitive(1), b: Primitive(2), want: Conflict},
		{name: "conflict absorbs", a: Conflict, b: NonNullRef, want: Conflict},
		{name: "conflict absorbs empty", a: Empty, b: Conflict, want: Conflict},
		{name: "wide values", a: Primitive(2), b: Primitive(2), want: Primitive(2)},
	}
	for _, tt := range tests {
		tt := tt // per-iteration copy; go.mod targets go 1.21
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			require.Equal(t, tt.want, MergeValues(tt.a, tt.b))
			require.Equal(t, tt.want, MergeValues(tt.b, tt.a))
		})
	}
}

func TestMergeValuesOnlyMovesUp(t *testing.T) {
	t.Parallel()

	values := []Value{Empty, Conflict, NullRef, NonNullRef, NullableRef, Primitive(2)}
	for _, a := range values {
		for _, b := range values {
			m := MergeValues(a, b)
			// a and b are both below their merge: merging either one back in is a no-op.
			require.Equal(t, m, MergeValues(m, a), "%s v %s", a, b)
			require.Equal(t, m, MergeValues(m, b), "%s v %s", a, b)
			for _, c := range values {
				require.Equal(t, MergeValues(MergeValues(a, b), c), MergeValues(a, MergeValues(b, c)),
					"associativity of %s, %s, %s", a, b, c)
			}
		}
	}
}

func TestValuePredicates(t *testing.T) {
	t.Parallel()

	require.True(t, Empty.IsEmpty())
	require.False(t, Empty.IsConflict())
	require.True(t, Conflict.IsConflict())
	require.False(t, Conflict.IsEmpty())
	require.False(t, NullRef.IsEmpty())
	require.Equal(t, Value{Nullability: Nullable, Size: 1}, Ref(Nullable))
}

func TestValueString(t *testing.T) {
	t.Parallel()

	require.Equal(t, ".", Empty.String())
	require.Equal(t, "-", Conflict.String())
	require.Equal(t, "NULL", NullRef.String())
	require.Equal(t, "NONNULL/2", Primitive(2).String())
}

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
