// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package backwalk // import "go.opentelemetry.io/backwalk"

import "github.com/ianlancetaylor/demangle"

// DemangleFunc turns a raw symbol name into a readable one. It returns false
// if name was left unchanged.
type DemangleFunc func(name string) (string, bool)

// NoDemangle returns every name unchanged.
func NoDemangle(name string) (string, bool) {
	return name, false
}

// Demangle demangles Itanium C++ ABI and Rust symbol names. Go symbol names
// are not mangled and are returned unchanged.
func Demangle(name string) (string, bool) {
	out, err := demangle.ToString(name)
	if err != nil {
		return name, false
	}
	return out, true
}
