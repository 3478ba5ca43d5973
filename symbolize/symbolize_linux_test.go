// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package symbolize

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func selfPath(t *testing.T) string {
	t.Helper()
	exe, err := os.Executable()
	require.NoError(t, err)
	exe, err = filepath.EvalSymlinks(exe)
	require.NoError(t, err)
	return exe
}

func TestResolveSelf(t *testing.T) {
	for _, disableRuntime := range []bool{false, true} {
		s, err := New(Config{DisableRuntimeSymbols: disableRuntime})
		require.NoError(t, err)

		pc := funcPC(TestResolveSelf) + 1
		info, ok := s.Resolve(pc)
		require.True(t, ok)
		assert.Equal(t, selfPath(t), info.Module)
		assert.LessOrEqual(t, info.Base, pc)
		assert.Contains(t, info.Symbol, "symbolize.TestResolveSelf")
	}
}
