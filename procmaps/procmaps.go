// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package procmaps reads the memory mappings of the current process and maps
// code addresses to the loaded module that owns them.
package procmaps // import "go.opentelemetry.io/backwalk/procmaps"

import (
	"bufio"
	"debug/elf"
	"errors"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"go.opentelemetry.io/backwalk/internal/log"
)

// VdsoPathName is the module name reported for the vDSO mapping.
const VdsoPathName = "linux-vdso.so.1"

// selfMapsPath is the mappings file of the calling process.
const selfMapsPath = "/proc/self/maps"

// ErrNoMappings is returned by ReadSelf when no mapping could be parsed.
var ErrNoMappings = errors.New("no mappings")

// Mapping contains information about one memory mapping.
type Mapping struct {
	// Vaddr is the virtual memory start for this mapping.
	Vaddr uint64
	// Length is the length of the mapping.
	Length uint64
	// Flags contains the mapping permissions.
	Flags elf.ProgFlag
	// FileOffset contains for file backed mappings the offset from the file start.
	FileOffset uint64
	// Inode holds the mapped file's inode number.
	Inode uint64
	// Path contains the file name for file backed mappings.
	Path string
}

// End returns the first address past the mapping.
func (m *Mapping) End() uint64 {
	return m.Vaddr + m.Length
}

// Contains reports whether addr lies inside the mapping.
func (m *Mapping) Contains(addr uint64) bool {
	return addr >= m.Vaddr && addr < m.End()
}

func (m *Mapping) IsExecutable() bool {
	return m.Flags&elf.PF_X == elf.PF_X
}

func (m *Mapping) IsAnonymous() bool {
	return m.Path == "" || strings.HasPrefix(m.Path, "/memfd:")
}

func (m *Mapping) IsVDSO() bool {
	return m.Path == VdsoPathName
}

// fieldsN splits s on runs of spaces into at most len(f) fields without
// allocating. The last field receives the unsplit remainder of s.
func fieldsN(s string, f []string) int {
	n := 0
	for n < len(f) {
		s = strings.TrimLeft(s, " \t")
		if s == "" {
			return n
		}
		if n == len(f)-1 {
			f[n] = s
			return n + 1
		}
		end := strings.IndexAny(s, " \t")
		if end < 0 {
			f[n] = s
			return n + 1
		}
		f[n] = s[:end]
		s = s[end:]
		n++
	}
	return n
}

func trimMappingPath(path string) string {
	// See path_with_deleted in linux/fs/d_path.c
	path = strings.TrimSuffix(path, " (deleted)")
	if path == "/dev/zero" {
		return ""
	}
	return path
}

// Parse reads mappings in the /proc/PID/maps format. Malformed lines are
// skipped and counted in the returned number of parse errors.
func Parse(r io.Reader) ([]Mapping, uint32, error) {
	numParseErrors := uint32(0)
	mappings := make([]Mapping, 0, 32)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 256), 8192)

	for scanner.Scan() {
		var fields [6]string

		line := scanner.Text()
		if fieldsN(line, fields[:]) < 5 {
			numParseErrors++
			continue
		}
		start, end, ok := strings.Cut(fields[0], "-")
		if !ok {
			numParseErrors++
			continue
		}

		perms := fields[1]
		if len(perms) < 3 {
			numParseErrors++
			continue
		}
		flags := elf.ProgFlag(0)
		if perms[0] == 'r' {
			flags |= elf.PF_R
		}
		if perms[1] == 'w' {
			flags |= elf.PF_W
		}
		if perms[2] == 'x' {
			flags |= elf.PF_X
		}
		// Ignore non-readable and non-executable mappings
		if flags&(elf.PF_R|elf.PF_X) == 0 {
			continue
		}

		inode, err := strconv.ParseUint(fields[4], 10, 64)
		if err != nil {
			log.Debugf("inode: failed to convert %s to uint64: %v", fields[4], err)
			numParseErrors++
			continue
		}

		var path string
		if inode == 0 {
			switch fields[5] {
			case "[vdso]":
				path = VdsoPathName
			case "":
				// Anonymous executable memory, e.g. JIT code.
			default:
				continue
			}
		} else {
			path = trimMappingPath(fields[5])
		}

		vaddr, err := strconv.ParseUint(start, 16, 64)
		if err != nil {
			log.Debugf("vaddr: failed to convert %s to uint64: %v", start, err)
			numParseErrors++
			continue
		}
		vend, err := strconv.ParseUint(end, 16, 64)
		if err != nil {
			log.Debugf("vend: failed to convert %s to uint64: %v", end, err)
			numParseErrors++
			continue
		}
		if vend < vaddr {
			numParseErrors++
			continue
		}
		fileOffset, err := strconv.ParseUint(fields[2], 16, 64)
		if err != nil {
			log.Debugf("fileOffset: failed to convert %s to uint64: %v", fields[2], err)
			numParseErrors++
			continue
		}

		mappings = append(mappings, Mapping{
			Vaddr:      vaddr,
			Length:     vend - vaddr,
			Flags:      flags,
			FileOffset: fileOffset,
			Inode:      inode,
			Path:       path,
		})
	}
	return mappings, numParseErrors, scanner.Err()
}

// ReadSelf parses the mappings of the calling process.
func ReadSelf() ([]Mapping, error) {
	f, err := os.Open(selfMapsPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	mappings, numParseErrors, err := Parse(f)
	if err != nil {
		return nil, err
	}
	if numParseErrors > 0 {
		log.Debugf("Skipped %d malformed lines in %s", numParseErrors, selfMapsPath)
	}
	if len(mappings) == 0 {
		return nil, ErrNoMappings
	}
	return mappings, nil
}

// Module is a loaded, file backed unit of code.
type Module struct {
	// Path is the file the module was loaded from.
	Path string
	// Base is the address the module's file offset 0 is loaded at.
	Base uint64
	// Mapping is the executable mapping that matched the lookup.
	Mapping Mapping
}

// Modules is an immutable address index over a set of mappings.
// It is safe for concurrent use.
type Modules struct {
	mappings []Mapping
	bases    map[string]uint64
}

// NewModules indexes the file backed executable mappings for lookups.
func NewModules(mappings []Mapping) *Modules {
	m := &Modules{
		mappings: make([]Mapping, 0, len(mappings)),
		bases:    make(map[string]uint64),
	}
	for _, mapping := range mappings {
		if mapping.IsAnonymous() {
			continue
		}
		base := mapping.Vaddr - mapping.FileOffset
		if cur, ok := m.bases[mapping.Path]; !ok || base < cur {
			m.bases[mapping.Path] = base
		}
		if mapping.IsExecutable() {
			m.mappings = append(m.mappings, mapping)
		}
	}
	sort.Slice(m.mappings, func(i, j int) bool {
		return m.mappings[i].Vaddr < m.mappings[j].Vaddr
	})
	return m
}

// Len returns the number of indexed executable mappings.
func (m *Modules) Len() int {
	if m == nil {
		return 0
	}
	return len(m.mappings)
}

// ForEach calls fn for every indexed executable mapping in address order.
func (m *Modules) ForEach(fn func(Module)) {
	if m == nil {
		return
	}
	for _, mapping := range m.mappings {
		fn(Module{
			Path:    mapping.Path,
			Base:    m.bases[mapping.Path],
			Mapping: mapping,
		})
	}
}

// Find returns the module owning addr.
func (m *Modules) Find(addr uint64) (Module, bool) {
	if m == nil {
		return Module{}, false
	}
	i := sort.Search(len(m.mappings), func(i int) bool {
		return m.mappings[i].End() > addr
	})
	if i == len(m.mappings) || !m.mappings[i].Contains(addr) {
		return Module{}, false
	}
	mapping := m.mappings[i]
	return Module{
		Path:    mapping.Path,
		Base:    m.bases[mapping.Path],
		Mapping: mapping,
	}, true
}
