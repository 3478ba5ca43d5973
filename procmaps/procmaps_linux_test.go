// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package procmaps

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadSelf(t *testing.T) {
	mappings, err := ReadSelf()
	require.NoError(t, err)
	require.NotEmpty(t, mappings)

	exe, err := os.Executable()
	require.NoError(t, err)
	exe, err = filepath.EvalSymlinks(exe)
	require.NoError(t, err)

	pc := uint64(reflect.ValueOf(TestReadSelf).Pointer())
	mod, ok := NewModules(mappings).Find(pc)
	require.True(t, ok)
	assert.Equal(t, exe, mod.Path)
	assert.LessOrEqual(t, mod.Base, pc)
	assert.True(t, mod.Mapping.IsExecutable())
}
