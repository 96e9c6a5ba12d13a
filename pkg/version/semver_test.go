package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func withVersion(t *testing.T, v string) {
	t.Helper()
	old := Version
	resetParsedVersion()
	Version = v
	t.Cleanup(func() {
		Version = old
		resetParsedVersion()
	})
}

func TestParsed(t *testing.T) {
	for _, v := range []string{"v1.2.3", "1.2.3", "v1.0.0-beta.1", "v1.0.0+build7"} {
		t.Run(v, func(t *testing.T) {
			withVersion(t, v)
			assert.NotNil(t, Parsed())
			assert.False(t, IsDevBuild())
		})
	}

	for _, v := range []string{"dev", "", "v1.0.0.0"} {
		t.Run("invalid "+v, func(t *testing.T) {
			withVersion(t, v)
			assert.Nil(t, Parsed())
			assert.True(t, IsDevBuild())
		})
	}
}

func TestCompare(t *testing.T) {
	withVersion(t, "v2.1.0")

	assert.Equal(t, 1, Compare("v2.0.9"))
	assert.Equal(t, 0, Compare("2.1.0"))
	assert.Equal(t, -1, Compare("v2.2.0"))
	assert.Equal(t, 0, Compare("garbage"))
}

func TestWrittenByNewer(t *testing.T) {
	withVersion(t, "v2.1.0")
	assert.True(t, WrittenByNewer("v2.2.0"))
	assert.False(t, WrittenByNewer("v2.1.0"))
	assert.False(t, WrittenByNewer("v1.9.0"))
	assert.False(t, WrittenByNewer("dev"))

	withVersion(t, "dev")
	assert.False(t, WrittenByNewer("v9.0.0"))
}

func TestInfo(t *testing.T) {
	withVersion(t, "v1.0.0")
	old := Commit
	Commit = "0123456789abcdef"
	t.Cleanup(func() { Commit = old })

	assert.Contains(t, Info(), "langquest v1.0.0 (0123456)")
	assert.Equal(t, "v1.0.0", Short())
}
