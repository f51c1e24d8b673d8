//go:build tools
// +build tools

// Package tools declares tool dependencies for this module.
//
// These imports are not used at runtime. They keep mockgen, invoked via
// `go generate`, pinned in go.mod so mocks regenerate identically on a
// fresh checkout or in CI.
package chat_relay

import (
	_ "go.uber.org/mock/mockgen"
)
