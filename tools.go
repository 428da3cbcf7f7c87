//go:build tools
// +build tools

// Package tools tracks tool dependencies invoked through go generate (mockgen)
// so they stay pinned in go.mod.
package tools

import (
	_ "go.uber.org/mock/mockgen"
)
