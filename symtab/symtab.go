// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package symtab provides nearest-preceding symbol lookups over the symbol
// tables of ELF modules.
package symtab // import "go.opentelemetry.io/backwalk/symtab"

import (
	"sort"
)

// Symbol is a named code location.
type Symbol struct {
	Name    string
	Address uint64
	Size    uint64
}

// segment maps a loadable file range to its link-time virtual address.
type segment struct {
	offset uint64
	vaddr  uint64
	size   uint64
}

// Table is a sorted symbol table of one module. After Finalize it is read-only
// and safe for concurrent lookups.
type Table struct {
	symbols  []Symbol
	segments []segment
}

// New returns an empty table with room for capacity symbols.
func New(capacity int) *Table {
	return &Table{
		symbols: make([]Symbol, 0, capacity),
	}
}

// Add a symbol to the table.
func (t *Table) Add(s Symbol) {
	t.symbols = append(t.symbols, s)
}

// AddSegment records that size bytes at file offset are loaded at link-time
// address vaddr.
func (t *Table) AddSegment(offset, vaddr, size uint64) {
	t.segments = append(t.segments, segment{offset: offset, vaddr: vaddr, size: size})
}

// Finalize sorts the table after all symbols are inserted via Add calls.
// Of several symbols at the same address the sized one is kept.
func (t *Table) Finalize() {
	sort.SliceStable(t.symbols, func(i, j int) bool {
		return t.symbols[i].Address < t.symbols[j].Address
	})

	out := t.symbols[:0]
	for _, s := range t.symbols {
		if n := len(out); n > 0 && out[n-1].Address == s.Address {
			if out[n-1].Size == 0 && s.Size != 0 {
				out[n-1] = s
			}
			continue
		}
		out = append(out, s)
	}
	// Drop the overcommitted capacity.
	t.symbols = append([]Symbol(nil), out...)
}

// Len returns the number of symbols in the table.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.symbols)
}

// Lookup returns the symbol at or before addr. A sized symbol only matches
// addresses inside it; a symbol without size matches up to the next symbol.
func (t *Table) Lookup(addr uint64) (Symbol, bool) {
	if t == nil {
		return Symbol{}, false
	}
	i := sort.Search(len(t.symbols), func(i int) bool {
		return t.symbols[i].Address > addr
	})
	if i == 0 {
		return Symbol{}, false
	}
	s := t.symbols[i-1]
	if s.Size != 0 && addr >= s.Address+s.Size {
		return Symbol{}, false
	}
	return s, true
}

// AddressOfOffset translates a file offset into the link-time virtual address
// symbols are expressed in.
func (t *Table) AddressOfOffset(offset uint64) (uint64, bool) {
	if t == nil {
		return 0, false
	}
	for _, seg := range t.segments {
		if offset >= seg.offset && offset < seg.offset+seg.size {
			return seg.vaddr + (offset - seg.offset), true
		}
	}
	return 0, false
}
