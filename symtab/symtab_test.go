// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package symtab

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTable() *Table {
	t := New(8)
	t.Add(Symbol{Name: "gamma", Address: 0x3000, Size: 0x100})
	t.Add(Symbol{Name: "alpha", Address: 0x1000, Size: 0x80})
	t.Add(Symbol{Name: "beta", Address: 0x2000})
	t.Add(Symbol{Name: "alpha_alias", Address: 0x1000})
	t.AddSegment(0x0, 0x400000, 0x2000)
	t.AddSegment(0x2000, 0x600000, 0x1000)
	t.Finalize()
	return t
}

func TestLookup(t *testing.T) {
	table := newTestTable()
	assert.Equal(t, 3, table.Len())

	tests := map[string]struct {
		addr  uint64
		name  string
		found bool
	}{
		"before first":         {addr: 0xfff},
		"symbol start":         {addr: 0x1000, name: "alpha", found: true},
		"inside sized":         {addr: 0x107f, name: "alpha", found: true},
		"past sized":           {addr: 0x1080},
		"unsized start":        {addr: 0x2000, name: "beta", found: true},
		"unsized until next":   {addr: 0x2fff, name: "beta", found: true},
		"next symbol boundary": {addr: 0x3000, name: "gamma", found: true},
		"past last":            {addr: 0x3100},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			sym, ok := table.Lookup(tc.addr)
			require.Equal(t, tc.found, ok)
			assert.Equal(t, tc.name, sym.Name)
		})
	}
}

// A return address equal to the start of the following symbol belongs to the
// preceding one once it is moved back into the call instruction.
func TestLookupCallAtEnd(t *testing.T) {
	table := newTestTable()

	sym, ok := table.Lookup(0x3000 - 1)
	require.True(t, ok)
	assert.Equal(t, "beta", sym.Name)

	sym, ok = table.Lookup(0x3000)
	require.True(t, ok)
	assert.Equal(t, "gamma", sym.Name)
}

func TestAddressOfOffset(t *testing.T) {
	table := newTestTable()

	addr, ok := table.AddressOfOffset(0x10)
	require.True(t, ok)
	assert.Equal(t, uint64(0x400010), addr)

	addr, ok = table.AddressOfOffset(0x2010)
	require.True(t, ok)
	assert.Equal(t, uint64(0x600010), addr)

	_, ok = table.AddressOfOffset(0x3000)
	assert.False(t, ok)
}

func TestNilTable(t *testing.T) {
	var table *Table
	_, ok := table.Lookup(0x1000)
	assert.False(t, ok)
	_, ok = table.AddressOfOffset(0)
	assert.False(t, ok)
	assert.Zero(t, table.Len())
}

func TestOpenSelf(t *testing.T) {
	exe, err := os.Executable()
	require.NoError(t, err)

	table, err := Open(exe)
	if err != nil {
		t.Skipf("test binary is not a readable ELF file: %v", err)
	}
	assert.Positive(t, table.Len())
	_, ok := table.AddressOfOffset(0)
	assert.True(t, ok)
}

func TestOpenMissing(t *testing.T) {
	_, err := Open("/nonexistent/backwalk")
	require.Error(t, err)
}
