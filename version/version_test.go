package version

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVersion(t *testing.T) {
	version := GetHumanVersion()
	require.NotEmpty(t, version, "version cannot be empty")
	require.Contains(t, version, Version)
}
