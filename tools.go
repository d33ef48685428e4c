//go:build tools

package tools

// Keeps go mod tidy from dropping dependencies that are only imported
// behind build tags: rod in internal/web/browser_e2e_test.go
// (//go:build browser) and dktest in
// internal/database/session_store_docker_test.go (//go:build docker).

import (
	_ "github.com/dhui/dktest"
	_ "github.com/go-rod/rod"
)
