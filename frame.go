// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package backwalk // import "go.opentelemetry.io/backwalk"

import (
	"encoding/binary"
	"fmt"
	"io"
	"unsafe"

	"github.com/zeebo/xxh3"
)

// Frame is one resolved call stack frame.
type Frame struct {
	// PC is the raw return address found on the stack.
	PC uintptr
	// ModuleOffset is PC relative to the load address of Module, or 0 if the
	// module is unknown.
	ModuleOffset uintptr
	// Module is the path of the module owning PC, or Unknown.
	Module string
	// Symbol is the name of the symbol enclosing the call, or Unknown.
	Symbol string
}

func (f *Frame) format(depth int, demangle DemangleFunc) string {
	symbol := f.Symbol
	if demangle != nil {
		if name, ok := demangle(symbol); ok {
			symbol = name
		}
	}
	return fmt.Sprintf("#%2d [0x%08x] %s:%s", depth, f.ModuleOffset, f.Module, symbol)
}

// Trace is a captured call stack, innermost frame first.
type Trace struct {
	Frames []Frame
	// Complete is true if the walk reached the end of the stack.
	Complete bool
}

// Capture records the stack of the calling goroutine with the default Walker.
// See Walker.Capture.
//
//go:noinline
func Capture(maxFrames int) Trace {
	return defaultWalker().capture(framePointer(), maxFrames)
}

// Capture records the frames from the caller of Capture outwards. At most
// maxFrames frames are kept if maxFrames is positive; a truncated trace is
// not Complete.
//
//go:noinline
func (w *Walker) Capture(maxFrames int) Trace {
	return w.capture(framePointer(), maxFrames)
}

func (w *Walker) capture(fp unsafe.Pointer, maxFrames int) Trace {
	var t Trace
	t.Complete = w.walk(fp, func(f *Frame) bool {
		if maxFrames > 0 && len(t.Frames) == maxFrames {
			return false
		}
		t.Frames = append(t.Frames, *f)
		return true
	})
	return t
}

// Hash returns a 64 bit hash over the module relative frame locations. It is
// stable across processes running the same binaries, which makes it usable
// to group identical traces, e.g. crash signatures.
func (t *Trace) Hash() uint64 {
	h := xxh3.New()
	var buf [8]byte
	for i := range t.Frames {
		f := &t.Frames[i]
		_, _ = h.WriteString(f.Module)
		_, _ = h.WriteString(f.Symbol)
		binary.LittleEndian.PutUint64(buf[:], uint64(f.ModuleOffset))
		_, _ = h.Write(buf[:])
	}
	return h.Sum64()
}

// Fprint writes one line per frame to out. Symbol names are passed through
// demangle if it is not nil.
func (t *Trace) Fprint(out io.Writer, demangle DemangleFunc) error {
	for i := range t.Frames {
		if _, err := fmt.Fprintln(out, t.Frames[i].format(i, demangle)); err != nil {
			return err
		}
	}
	if !t.Complete {
		if _, err := fmt.Fprintln(out, "    ..."); err != nil {
			return err
		}
	}
	return nil
}
