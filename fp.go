//go:build amd64 || arm64

// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package backwalk // import "go.opentelemetry.io/backwalk"

import "unsafe"

// framePointer returns the frame pointer register of its caller. It has no
// frame of its own, and calls from within this package reach it without an
// ABI wrapper, so the value is the frame record of the calling function.
func framePointer() unsafe.Pointer
