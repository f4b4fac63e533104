//go:build tools
// +build tools

// Package tools documents development tool dependencies.
// These tools are installed globally via `go install` and are not tracked in
// go.mod since they are development tools, not runtime dependencies.
package tools

// Development tools (install via `go install`):
//
// mockgen - generates the gomock doubles under internal/mocks
//   Install: go install go.uber.org/mock/mockgen@v0.6.0
//   Regenerate with: go generate ./internal/mocks
//
// Air - live reload while working on the HTTP service
//   Install: go install github.com/air-verse/air@v1.63.0
