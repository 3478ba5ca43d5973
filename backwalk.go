// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package backwalk captures the call stack of the calling goroutine by
// following saved frame pointers. No DWARF or other unwind tables are used.
// Each return address found is attributed to its loaded module and, when
// available, to the enclosing symbol.
package backwalk // import "go.opentelemetry.io/backwalk"

import (
	"io"
	"os"
	"strconv"
	"sync"
	"unsafe"

	"go.opentelemetry.io/backwalk/internal/log"
	"go.opentelemetry.io/backwalk/symbolize"
	"go.opentelemetry.io/backwalk/unwind"
)

// Unknown is reported for module and symbol names that could not be resolved.
const Unknown = "?"

// debugEnvVar enables printing of every walked frame to stderr.
const debugEnvVar = "BACKWALK_DEBUG"

// Visitor is called by Traverse for every frame, innermost first. addr is the
// return address relative to the load address of its module, or 0 if the
// module is unknown. arg is passed through from Traverse untouched.
// Returning false stops the walk.
type Visitor func(addr uintptr, module, symbol string, arg any) bool

// Walker walks call stacks and resolves the frames it finds. A Walker is
// safe for concurrent use; every walk keeps its state on the walking
// goroutine's stack.
type Walker struct {
	resolver symbolize.Resolver
	demangle DemangleFunc
	debug    io.Writer
}

// Option configures a Walker.
type Option func(*Walker)

// WithResolver sets the resolver used to name frames.
func WithResolver(r symbolize.Resolver) Option {
	return func(w *Walker) {
		w.resolver = r
	}
}

// WithDemangler sets the demangler used when frames are printed. It does not
// change what visitors receive.
func WithDemangler(d DemangleFunc) Option {
	return func(w *Walker) {
		w.demangle = d
	}
}

// WithDebugOutput prints every walked frame to out. A nil out disables the
// output, which otherwise defaults to stderr if BACKWALK_DEBUG is set.
func WithDebugOutput(out io.Writer) Option {
	return func(w *Walker) {
		w.debug = out
	}
}

// New returns a Walker resolving frames with the process wide symbolizer
// unless configured otherwise.
func New(opts ...Option) *Walker {
	w := &Walker{}
	if enabled, _ := strconv.ParseBool(os.Getenv(debugEnvVar)); enabled {
		w.debug = os.Stderr
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.resolver == nil {
		w.resolver = symbolize.Default()
	}
	if w.demangle == nil {
		w.demangle = NoDemangle
	}
	return w
}

var defaultWalker = sync.OnceValue(func() *Walker {
	return New()
})

// Traverse walks the stack of the calling goroutine with the default Walker.
// See Walker.Traverse.
//
//go:noinline
func Traverse(visitor Visitor, arg any) bool {
	return defaultWalker().traverse(framePointer(), visitor, arg)
}

// Traverse calls visitor for every frame from the caller of Traverse up to
// the outermost frame of the goroutine. A nil visitor is allowed; frames are
// then resolved and dropped.
//
// Traverse returns false if the visitor stopped the walk and true otherwise.
// A walk that ends before producing any frame also returns true, so the
// result alone does not tell whether any frame was seen.
//
//go:noinline
func (w *Walker) Traverse(visitor Visitor, arg any) bool {
	return w.traverse(framePointer(), visitor, arg)
}

func (w *Walker) traverse(fp unsafe.Pointer, visitor Visitor, arg any) bool {
	return w.walk(fp, func(f *Frame) bool {
		return visitor == nil || visitor(f.ModuleOffset, f.Module, f.Symbol, arg)
	})
}

// walk steps through the frames above the frame record at fp. fp must belong
// to a function that is active for the duration of the walk.
func (w *Walker) walk(fp unsafe.Pointer, fn func(*Frame) bool) bool {
	var ctx unwind.Context
	ctx.Init(fp)

	depth := 0
	for ; ctx.Step(); depth++ {
		f := w.resolve(ctx.IP())
		if w.debug != nil {
			w.printFrame(depth, &f)
		}
		if !fn(&f) {
			log.Debugf("Walk stopped by visitor after %d frames", depth+1)
			return false
		}
	}
	log.Debugf("Walk reached end of stack after %d frames", depth)
	return true
}

// resolve names the frame with return address ip.
func (w *Walker) resolve(ip uintptr) Frame {
	f := Frame{
		PC:     ip,
		Module: Unknown,
		Symbol: Unknown,
	}
	if ip == 0 {
		return f
	}

	// A return address points behind the call. The byte before it is still
	// inside the calling function, even if the call is its last instruction.
	info, ok := w.resolver.Resolve(ip - 1)
	if ok {
		f.ModuleOffset = ip - info.Base
	}
	if info.Module != "" {
		f.Module = info.Module
	}
	if info.Symbol != "" {
		f.Symbol = info.Symbol
	}
	return f
}

func (w *Walker) printFrame(depth int, f *Frame) {
	if _, err := io.WriteString(w.debug, f.format(depth, w.demangle)+"\n"); err != nil {
		log.Debugf("Failed to print frame: %v", err)
	}
}
