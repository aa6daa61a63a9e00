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

package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/nullsafe/analyzer"
	"go.uber.org/nullsafe/jasm"
)

func TestRunGolden(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	require.NoError(t, run([]string{filepath.Join("testdata", "sample.j")}, &out))

	want, err := os.ReadFile(filepath.Join("testdata", "sample.golden"))
	require.NoError(t, err)
	require.Equal(t, string(want), out.String())
	require.NotContains(t, out.String(), " \n", "clean methods end their line at the colon")
}

func TestRunConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		args []string
		want string
	}{
		{
			name: "config file",
			args: []string{"-config", filepath.Join("testdata", "nonnull.toml")},
			want: "com/example/Sample.length(Ljava/lang/String;)I:\n",
		},
		{
			name: "config file with equals sign",
			args: []string{"--config=" + filepath.Join("testdata", "nonnull.toml")},
			want: "com/example/Sample.length(Ljava/lang/String;)I:\n",
		},
		{
			name: "flags override the config file",
			args: []string{"-config", filepath.Join("testdata", "nonnull.toml"), "-unannotated-params", "nullable"},
			want: "com/example/Sample.length(Ljava/lang/String;)I: 1\n",
		},
	}
	for _, tt := range tests {
		tt := tt // per-iteration copy; go.mod targets go 1.21
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var out bytes.Buffer
			args := append(tt.args, filepath.Join("testdata", "sample.j"))
			require.NoError(t, run(args, &out))
			require.Contains(t, out.String(), tt.want)
			require.Contains(t, out.String(), "com/example/Sample.branch(Z)I: 9\n")
		})
	}
}

func TestRunDump(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	require.NoError(t, run([]string{"-dump", filepath.Join("testdata", "sample.j")}, &out))

	lines := strings.Split(out.String(), "\n")
	require.Equal(t, "com/example/Sample.branch(Z)I: 9", lines[0])
	require.Equal(t, "\t000 aconst_null      [NONNULL .] []", lines[1])
	require.Equal(t, "\t009 invokevirtual    [NONNULL NULLABLE] [NULLABLE]", lines[10])

	// Every method is followed by exactly one dump line per instruction.
	require.Equal(t, "com/example/Sample.length(Ljava/lang/String;)I: 1", lines[12])
}

func TestRunMalformed(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	err := run([]string{filepath.Join("testdata", "malformed.j"), filepath.Join("testdata", "sample.j")}, &out)

	var merr *analyzer.MalformedInputError
	require.True(t, errors.As(err, &merr))
	require.Equal(t, "com/example/Broken.underflow()V", merr.Method)
	require.Equal(t, 1, merr.Pos)

	// The remaining methods and files are still analyzed.
	require.Contains(t, out.String(), "com/example/Broken.fine()V:\n")
	require.Contains(t, out.String(), "com/example/Sample.branch(Z)I: 9\n")
	require.NotContains(t, out.String(), "underflow")
}

func TestRunErrors(t *testing.T) {
	t.Parallel()

	bad := filepath.Join(t.TempDir(), "bad.j")
	require.NoError(t, os.WriteFile(bad, []byte(".method f()V\n frobnicate\n.end method\n"), 0o600))

	var out bytes.Buffer
	err := run([]string{bad}, &out)
	require.ErrorIs(t, err, jasm.ErrSyntax)
	require.ErrorContains(t, err, bad)

	err = run(nil, &out)
	require.ErrorContains(t, err, "no input files")

	err = run([]string{filepath.Join(t.TempDir(), "missing.j")}, &out)
	require.ErrorIs(t, err, os.ErrNotExist)

	err = run([]string{"-config"}, &out)
	require.ErrorContains(t, err, "needs an argument")

	err = run([]string{"-config", filepath.Join(t.TempDir(), "missing.toml"), bad}, &out)
	require.ErrorIs(t, err, os.ErrNotExist)

	require.Empty(t, out.String())
}

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
