//go:build tools
// +build tools

// Package tools pins development tool dependencies so `go generate` resolves them from go.mod.
package tools

import (
	// mockgen regenerates internal/mocks from the ports in internal/core.
	_ "go.uber.org/mock/mockgen"
)

// Other development tools (install via `go install`):
//
// Air - Live reload for Go apps
//   Install: go install github.com/air-verse/air@v1.63.0
//   Docs: https://github.com/air-verse/air
