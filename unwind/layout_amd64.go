//go:build amd64

// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package unwind // import "go.opentelemetry.io/backwalk/unwind"

// CALL pushes the return address, the prologue pushes RBP and points RBP at it.
const (
	savedFPSlot       = 0
	returnAddressSlot = 1
)
