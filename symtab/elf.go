// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package symtab // import "go.opentelemetry.io/backwalk/symtab"

import (
	"debug/elf"
	"errors"
	"fmt"

	"go.opentelemetry.io/backwalk/internal/log"
)

// ErrNoSymbols is returned when a module has neither .symtab nor .dynsym.
var ErrNoSymbols = errors.New("no symbols")

// Open reads the code symbols and loadable segments of the ELF file at path.
// Symbols come from .symtab, and from .dynsym for stripped files.
func Open(path string) (*Table, error) {
	ef, err := elf.Open(path)
	if err != nil {
		return nil, err
	}
	defer ef.Close()

	return Read(ef)
}

// Read builds a table from an already opened ELF file.
func Read(ef *elf.File) (*Table, error) {
	syms, err := ef.Symbols()
	if err != nil && !errors.Is(err, elf.ErrNoSymbols) {
		return nil, fmt.Errorf("failed to read .symtab: %w", err)
	}
	if len(syms) == 0 {
		syms, err = ef.DynamicSymbols()
		if err != nil && !errors.Is(err, elf.ErrNoSymbols) {
			return nil, fmt.Errorf("failed to read .dynsym: %w", err)
		}
	}
	if len(syms) == 0 {
		return nil, ErrNoSymbols
	}

	t := New(len(syms))
	for _, prog := range ef.Progs {
		if prog.Type == elf.PT_LOAD && prog.Filesz > 0 {
			t.AddSegment(prog.Off, prog.Vaddr, prog.Filesz)
		}
	}
	for i := range syms {
		s := &syms[i]
		if s.Value == 0 || s.Name == "" || s.Section == elf.SHN_UNDEF {
			continue
		}
		switch elf.ST_TYPE(s.Info) {
		case elf.STT_FUNC, elf.STT_GNU_IFUNC:
		default:
			continue
		}
		t.Add(Symbol{Name: s.Name, Address: s.Value, Size: s.Size})
	}
	t.Finalize()
	log.Debugf("Loaded %d symbols", t.Len())
	return t, nil
}
