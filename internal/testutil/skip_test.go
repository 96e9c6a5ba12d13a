package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequireEnv_Set(t *testing.T) {
	t.Setenv("LANGQUEST_TEST_VALUE", "x")
	assert.Equal(t, "x", RequireEnv(t, "LANGQUEST_TEST_VALUE"))
}

func TestRequireEnv_UnsetSkips(t *testing.T) {
	t.Setenv("LANGQUEST_TEST_VALUE", "")
	ran := t.Run("inner", func(t *testing.T) {
		RequireEnv(t, "LANGQUEST_TEST_VALUE")
		t.Error("should have been skipped")
	})
	assert.True(t, ran)
}
