// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package unwind implements the frame-pointer walk over the calling goroutine's
// stack. It never consults DWARF or other unwind tables: every step follows
// the saved frame-pointer linkage found in stack memory.
package unwind // import "go.opentelemetry.io/backwalk/unwind"

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// wordSize is the size of a machine word and the required frame pointer alignment.
const wordSize = int(unsafe.Sizeof(uintptr(0)))

// MinFrameAddress is the lowest frame pointer value a step will dereference.
// The kernel never maps the first page, so anything below it is treated as the
// end of the chain. The value is a heuristic safety margin only: it does not
// make arbitrary corrupted values safe to read.
var MinFrameAddress = uintptr(unix.Getpagesize())

// Layout describes where a frame record sits relative to the frame pointer,
// in machine words.
type Layout struct {
	// SavedFP is the word offset of the caller's saved frame pointer.
	SavedFP int
	// ReturnAddress is the word offset of the saved return address.
	ReturnAddress int
}

var (
	// LinkAbove is the layout where the frame pointer addresses the saved
	// frame pointer and the return address is stored one word above it.
	LinkAbove = Layout{SavedFP: 0, ReturnAddress: 1}
	// LinkBelow is the layout where the frame pointer addresses the return
	// address and the saved frame pointer is stored one word below it.
	LinkBelow = Layout{SavedFP: -1, ReturnAddress: 0}
)

// Native is the frame record layout of the architecture this package is
// built for.
var Native = Layout{SavedFP: savedFPSlot, ReturnAddress: returnAddressSlot}

// Context is the state of one walk: the current frame pointer and the return
// address read from the frame record it points to.
//
// A Context refers into the stack it walks. It must live on that same stack
// (a local variable of the function driving the walk) so that the runtime
// adjusts it when the goroutine stack is moved. It must not be shared between
// goroutines.
type Context struct {
	fp     unsafe.Pointer
	ip     uintptr
	layout Layout
}

// Init positions c at the frame whose frame pointer is fp, using the native
// frame layout. The first successful Step yields the return address stored
// in that frame, i.e. a location inside the caller of the frame owning fp.
func (c *Context) Init(fp unsafe.Pointer) {
	c.InitLayout(fp, Native)
}

// InitLayout is like Init but walks frame records laid out as l.
func (c *Context) InitLayout(fp unsafe.Pointer, l Layout) {
	c.fp = fp
	c.ip = 0
	c.layout = l
}

// FramePointer returns the current frame pointer value.
func (c *Context) FramePointer() uintptr {
	if c == nil {
		return 0
	}
	return uintptr(c.fp)
}

// IP returns the return address produced by the last successful Step, or 0 if
// c is nil or has not been stepped yet.
func (c *Context) IP() uintptr {
	if c == nil {
		return 0
	}
	return c.ip
}

// Step advances c to the caller's frame. It returns false, leaving c
// untouched, when the current frame pointer is below MinFrameAddress or not
// word aligned, and when the frame links back to itself. Once Step has
// returned false the walk is over and c must not be stepped again.
//
// A saved frame pointer that could not be a frame record is never stored:
// the return address of the current record is still produced, and the
// following Step ends the walk.
//
//go:nosplit
func (c *Context) Step() bool {
	if c == nil {
		return false
	}
	fp := uintptr(c.fp)
	if !plausible(fp) {
		return false
	}

	savedFP := *(*uintptr)(unsafe.Add(c.fp, c.layout.SavedFP*wordSize))
	ip := *(*uintptr)(unsafe.Add(c.fp, c.layout.ReturnAddress*wordSize))

	// The outermost frame conventionally links to itself.
	if savedFP == fp {
		return false
	}

	if plausible(savedFP) {
		// Load the saved value as a pointer only once it passed the
		// checks. A stack copy rejects small non-nil pointers.
		c.fp = *(*unsafe.Pointer)(unsafe.Add(c.fp, c.layout.SavedFP*wordSize))
	} else {
		c.fp = nil
	}
	c.ip = ip
	return true
}

// plausible reports whether fp passes the floor and alignment checks.
//
//go:nosplit
func plausible(fp uintptr) bool {
	return fp >= MinFrameAddress && fp%uintptr(wordSize) == 0
}
