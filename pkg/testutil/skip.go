// Package testutil holds helpers shared by the package test suites.
package testutil

import (
	"os"
	"testing"
)

// SkipIfShort skips the test when running in short mode.
func SkipIfShort(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
}

// RequireRedis skips the test unless REDIS_URL points at a reachable
// Redis instance; returns the URL otherwise.
func RequireRedis(t *testing.T) string {
	t.Helper()
	SkipIfShort(t)
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("skipping redis integration test (set REDIS_URL to run)")
	}
	return url
}
