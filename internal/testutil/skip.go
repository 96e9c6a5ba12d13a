// Package testutil provides testing utilities.
package testutil

import (
	"os"
	"testing"
)

// RequireEnv returns the value of key, skipping the test when it is unset.
// Use this for tests that talk to a live LangQuest API or bucket.
//
// Run them with, for example:
//
//	LANGQUEST_TEST_STORAGE_URL=https://... go test ./internal/storage/...
func RequireEnv(t *testing.T, key string) string {
	t.Helper()
	v := os.Getenv(key)
	if v == "" {
		t.Skipf("Skipping live test (set %s to run)", key)
	}
	return v
}
