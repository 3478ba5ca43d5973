// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package symbolize maps code addresses of the running process to the module
// that owns them and the nearest preceding symbol.
package symbolize // import "go.opentelemetry.io/backwalk/symbolize"

import (
	"runtime"
	"sync"
	"time"

	"go.opentelemetry.io/backwalk/internal/log"
	"go.opentelemetry.io/backwalk/internal/lrucache"
	"go.opentelemetry.io/backwalk/procmaps"
	"go.opentelemetry.io/backwalk/symtab"
)

const (
	// defaultTableCacheSize is the number of module symbol tables kept loaded.
	defaultTableCacheSize = 64
	// defaultRefreshInterval limits how often an unknown address triggers a
	// re-read of the process mappings.
	defaultRefreshInterval = time.Second
)

// Info is what is known about one code address.
type Info struct {
	// Base is the load address of the owning module.
	Base uintptr
	// Module is the path of the owning module, empty if unknown.
	Module string
	// Symbol is the name of the nearest preceding symbol, empty if unknown.
	Symbol string
}

// Resolver looks up code addresses. Resolve fills in what it can and reports
// whether the owning module was identified. Implementations must be safe for
// concurrent use.
type Resolver interface {
	Resolve(pc uintptr) (Info, bool)
}

// Config configures a Symbolizer.
type Config struct {
	// TableCacheSize is the number of module symbol tables kept in memory.
	TableCacheSize uint32
	// RefreshInterval is the minimum time between two re-reads of the
	// process mappings after a lookup missed.
	RefreshInterval time.Duration
	// DisableRuntimeSymbols skips the Go runtime symbol table and always
	// uses the ELF symbol tables of the modules.
	DisableRuntimeSymbols bool

	readMappings func() ([]procmaps.Mapping, error)
	openTable    func(path string) (*symtab.Table, error)
	now          func() time.Time
}

// Symbolizer resolves addresses of the calling process. Go functions are
// named from the runtime's symbol table, other code from the ELF symbol
// table of its module.
type Symbolizer struct {
	cfg Config

	mu        sync.RWMutex
	modules   *procmaps.Modules
	refreshed time.Time

	tables *lrucache.LRU[string, *symtab.Table]
}

var _ Resolver = (*Symbolizer)(nil)

// New returns a Symbolizer for the calling process.
func New(cfg Config) (*Symbolizer, error) {
	if cfg.TableCacheSize == 0 {
		cfg.TableCacheSize = defaultTableCacheSize
	}
	if cfg.RefreshInterval == 0 {
		cfg.RefreshInterval = defaultRefreshInterval
	}
	if cfg.readMappings == nil {
		cfg.readMappings = procmaps.ReadSelf
	}
	if cfg.openTable == nil {
		cfg.openTable = symtab.Open
	}
	if cfg.now == nil {
		cfg.now = time.Now
	}

	tables, err := lrucache.New[string, *symtab.Table](cfg.TableCacheSize,
		lrucache.HashString)
	if err != nil {
		return nil, err
	}

	return &Symbolizer{
		cfg:    cfg,
		tables: tables,
	}, nil
}

var (
	defaultOnce       sync.Once
	defaultSymbolizer *Symbolizer
)

// Default returns the process wide Symbolizer with the default configuration.
func Default() *Symbolizer {
	defaultOnce.Do(func() {
		s, err := New(Config{})
		if err != nil {
			// Only reachable with an invalid cache size.
			panic(err)
		}
		defaultSymbolizer = s
	})
	return defaultSymbolizer
}

// Resolve implements Resolver.
func (s *Symbolizer) Resolve(pc uintptr) (Info, bool) {
	var info Info
	if !s.cfg.DisableRuntimeSymbols {
		if fn := runtime.FuncForPC(pc); fn != nil {
			info.Symbol = fn.Name()
		}
	}

	mod, ok := s.findModule(uint64(pc))
	if !ok {
		return info, false
	}
	info.Base = uintptr(mod.Base)
	info.Module = mod.Path

	if info.Symbol == "" {
		info.Symbol = s.elfSymbol(mod, uint64(pc))
	}
	return info, true
}

// Refresh re-reads the process mappings, e.g. after loading a shared library.
func (s *Symbolizer) Refresh() error {
	mappings, err := s.cfg.readMappings()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshed = s.cfg.now()
	if err != nil {
		return err
	}
	s.modules = procmaps.NewModules(mappings)
	log.Debugf("Indexed %d executable mappings", s.modules.Len())
	return nil
}

// Reset drops all cached symbol tables and re-reads the process mappings,
// e.g. after a library was replaced on disk and loaded again.
func (s *Symbolizer) Reset() error {
	s.tables.Purge()
	return s.Refresh()
}

// CacheStatistics returns and resets the symbol table cache statistics.
func (s *Symbolizer) CacheStatistics() lrucache.Statistics {
	return s.tables.GetAndResetStatistics()
}

func (s *Symbolizer) findModule(addr uint64) (procmaps.Module, bool) {
	s.mu.RLock()
	modules, refreshed := s.modules, s.refreshed
	s.mu.RUnlock()

	if mod, ok := modules.Find(addr); ok {
		return mod, true
	}
	if !refreshed.IsZero() && s.cfg.now().Sub(refreshed) < s.cfg.RefreshInterval {
		return procmaps.Module{}, false
	}
	if err := s.Refresh(); err != nil {
		log.Warnf("Failed to read process mappings: %v", err)
		return procmaps.Module{}, false
	}

	s.mu.RLock()
	modules = s.modules
	s.mu.RUnlock()
	return modules.Find(addr)
}

func (s *Symbolizer) table(path string) *symtab.Table {
	if t, ok := s.tables.Get(path); ok {
		return t
	}
	t, err := s.cfg.openTable(path)
	if err != nil {
		log.Debugf("Failed to read symbols of %s: %v", path, err)
		// Cache the failure, the file will not grow a symbol table.
		t = nil
	}
	s.tables.Add(path, t)
	return t
}

func (s *Symbolizer) elfSymbol(mod procmaps.Module, pc uint64) string {
	if mod.Mapping.IsVDSO() {
		return ""
	}
	t := s.table(mod.Path)
	if t == nil {
		return ""
	}
	addr, ok := t.AddressOfOffset(pc - mod.Mapping.Vaddr + mod.Mapping.FileOffset)
	if !ok {
		return ""
	}
	sym, ok := t.Lookup(addr)
	if !ok {
		return ""
	}
	return sym.Name
}
