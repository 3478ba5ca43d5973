//go:build !amd64 && !arm64

// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package unwind // import "go.opentelemetry.io/backwalk/unwind"

// Frame-pointer unwinding is only implemented for amd64 and arm64. Referring to
// an undefined identifier stops the build instead of producing bogus walks.
var _ = frame_pointer_unwinding_requires_amd64_or_arm64
