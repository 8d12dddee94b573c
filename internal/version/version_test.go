package version

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func setBuild(t *testing.T, v, c string) {
	t.Helper()
	oldV, oldC := Version, Commit
	t.Cleanup(func() { Version, Commit = oldV, oldC })
	Version, Commit = v, c
}

func TestGetInfo(t *testing.T) {
	info := GetInfo()
	assert.Equal(t, ApplicationName, info.Application)
	assert.Equal(t, runtime.Version(), info.GoVersion)
	assert.Equal(t, runtime.GOOS+"/"+runtime.GOARCH, info.Platform)
}

func TestShortAndString(t *testing.T) {
	t.Run("without commit", func(t *testing.T) {
		setBuild(t, "1.2.0", "unknown")
		assert.Equal(t, "loopcast 1.2.0", Short())
		assert.Contains(t, String(), "loopcast version 1.2.0 (")
		assert.NotContains(t, String(), "commit:")
	})

	t.Run("with commit", func(t *testing.T) {
		setBuild(t, "1.2.0", "0123456789abcdef")
		assert.Equal(t, "loopcast 1.2.0 (01234567)", Short())
		assert.Contains(t, String(), "commit: 01234567")
	})
}

func TestIsSnapshot(t *testing.T) {
	tests := map[string]bool{
		"dev":                    true,
		"1.2.1-SNAPSHOT.abc1234": true,
		"1.2.0":                  false,
	}
	for v, want := range tests {
		t.Run(v, func(t *testing.T) {
			setBuild(t, v, "unknown")
			assert.Equal(t, want, IsSnapshot())
		})
	}
}
