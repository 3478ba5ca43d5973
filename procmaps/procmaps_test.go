// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package procmaps

import (
	"debug/elf"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

//nolint:lll
var testMappings = `55fe82710000-55fe8273c000 r--p 00000000 fd:01 1068432                    /tmp/usr_bin_seahorse
55fe8273c000-55fe827be000 r-xp 0002c000 fd:01 1068432                    /tmp/usr_bin_seahorse
55fe827be000-55fe82836000 r--p 000ae000 fd:01 1068432                    /tmp/usr_bin_seahorse
55fe8283d000-55fe8283e000 rw-p 0012c000 fd:01 1068432                    /tmp/usr_bin_seahorse
7f63c8c3e000-7f63c8de0000 r-xp 00085000 08:01 1048922                    /tmp/usr_lib_x86_64-linux-gnu_libcrypto.so.1.1 (deleted)
7f63c8eef000-7f63c8fdf000 r-xp 0001c000 1fd:01
7f63c8eef000-7f63c8fdf000 r- 0001c000 1fd:01 1075944
7f63c8eef000 r-xp 0001c000 1fd:01 1075944
7f63c8eef000-7f63c8fdf000 r-xp zzzz 1fd:01 1075944 /tmp/bad_offset
7f8b929f0000-7f8b92a00000 r-xp 00000000 00:00 0
7f8b92a00000-7f8b92a10000 ---p 00000000 00:00 0
7fff5a1fe000-7fff5a200000 r-xp 00000000 00:00 0                          [vdso]
ffffffffff600000-ffffffffff601000 --xp 00000000 00:00 0                  [vsyscall]`

func TestParse(t *testing.T) {
	mappings, numParseErrors, err := Parse(strings.NewReader(testMappings))
	require.NoError(t, err)
	assert.Equal(t, uint32(4), numParseErrors)

	expected := []Mapping{
		{
			Vaddr:  0x55fe82710000,
			Length: 0x2c000,
			Flags:  elf.PF_R,
			Inode:  1068432,
			Path:   "/tmp/usr_bin_seahorse",
		},
		{
			Vaddr:      0x55fe8273c000,
			Length:     0x82000,
			Flags:      elf.PF_R | elf.PF_X,
			FileOffset: 0x2c000,
			Inode:      1068432,
			Path:       "/tmp/usr_bin_seahorse",
		},
		{
			Vaddr:      0x55fe827be000,
			Length:     0x78000,
			Flags:      elf.PF_R,
			FileOffset: 0xae000,
			Inode:      1068432,
			Path:       "/tmp/usr_bin_seahorse",
		},
		{
			Vaddr:      0x55fe8283d000,
			Length:     0x1000,
			Flags:      elf.PF_R | elf.PF_W,
			FileOffset: 0x12c000,
			Inode:      1068432,
			Path:       "/tmp/usr_bin_seahorse",
		},
		{
			Vaddr:      0x7f63c8c3e000,
			Length:     0x1a2000,
			Flags:      elf.PF_R | elf.PF_X,
			FileOffset: 0x85000,
			Inode:      1048922,
			Path:       "/tmp/usr_lib_x86_64-linux-gnu_libcrypto.so.1.1",
		},
		{
			Vaddr:  0x7f8b929f0000,
			Length: 0x10000,
			Flags:  elf.PF_R | elf.PF_X,
		},
		{
			Vaddr:  0x7fff5a1fe000,
			Length: 0x2000,
			Flags:  elf.PF_R | elf.PF_X,
			Path:   VdsoPathName,
		},
	}
	assert.Equal(t, expected, mappings)
}

func TestFieldsN(t *testing.T) {
	var f [3]string
	assert.Equal(t, 0, fieldsN("   ", f[:]))
	assert.Equal(t, 2, fieldsN(" a  b ", f[:]))
	assert.Equal(t, [3]string{"a", "b", ""}, f)
	assert.Equal(t, 3, fieldsN("a b c d  e", f[:]))
	assert.Equal(t, [3]string{"a", "b", "c d  e"}, f)
}

func TestModulesFind(t *testing.T) {
	mappings, _, err := Parse(strings.NewReader(testMappings))
	require.NoError(t, err)
	modules := NewModules(mappings)
	// Anonymous code is not indexed.
	assert.Equal(t, 3, modules.Len())

	tests := map[string]struct {
		addr   uint64
		found  bool
		path   string
		base   uint64
		offset uint64
	}{
		"main executable text": {
			addr:   0x55fe8273c123,
			found:  true,
			path:   "/tmp/usr_bin_seahorse",
			base:   0x55fe82710000,
			offset: 0x2c000,
		},
		"last byte of text": {
			addr:   0x55fe827bdfff,
			found:  true,
			path:   "/tmp/usr_bin_seahorse",
			base:   0x55fe82710000,
			offset: 0x2c000,
		},
		"read only data":  {addr: 0x55fe82710010},
		"first past text": {addr: 0x55fe827be000},
		"shared library": {
			addr:   0x7f63c8c3f000,
			found:  true,
			path:   "/tmp/usr_lib_x86_64-linux-gnu_libcrypto.so.1.1",
			base:   0x7f63c8bb9000,
			offset: 0x85000,
		},
		"anonymous code": {addr: 0x7f8b929f0100},
		"vdso": {
			addr:  0x7fff5a1fe100,
			found: true,
			path:  VdsoPathName,
			base:  0x7fff5a1fe000,
		},
		"null":     {addr: 0},
		"past all": {addr: 0xffffffffffffffff},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			mod, ok := modules.Find(tc.addr)
			require.Equal(t, tc.found, ok)
			if !ok {
				return
			}
			assert.Equal(t, tc.path, mod.Path)
			assert.Equal(t, tc.base, mod.Base)
			assert.Equal(t, tc.offset, mod.Mapping.FileOffset)
		})
	}
}

func TestNilModules(t *testing.T) {
	var modules *Modules
	_, ok := modules.Find(0x1000)
	assert.False(t, ok)
	assert.Zero(t, modules.Len())
	modules.ForEach(func(Module) {
		t.Fatal("unexpected module")
	})
}

func TestModulesForEach(t *testing.T) {
	mappings, _, err := Parse(strings.NewReader(testMappings))
	require.NoError(t, err)
	modules := NewModules(mappings)

	var visited []Module
	modules.ForEach(func(m Module) {
		visited = append(visited, m)
	})
	require.Len(t, visited, modules.Len())
	for i, m := range visited {
		assert.True(t, m.Mapping.IsExecutable())
		assert.LessOrEqual(t, m.Base, m.Mapping.Vaddr)
		if i > 0 {
			assert.Less(t, visited[i-1].Mapping.Vaddr, m.Mapping.Vaddr)
		}
		found, ok := modules.Find(m.Mapping.Vaddr)
		require.True(t, ok)
		assert.Equal(t, m, found)
	}
}
