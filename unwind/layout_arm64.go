//go:build arm64

// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package unwind // import "go.opentelemetry.io/backwalk/unwind"

// Go's arm64 prologue stores LR at 0(RSP) and the caller's R29 at -8(RSP),
// then sets R29 = RSP-8. The record therefore has the same shape as on amd64.
const (
	savedFPSlot       = 0
	returnAddressSlot = 1
)
