package app

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireLock(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "run", "thv-confd.lock")

	first, err := AcquireLock(path)
	require.NoError(t, err)
	assert.FileExists(t, path)

	_, err = AcquireLock(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLocked)

	require.NoError(t, first.Unlock())

	second, err := AcquireLock(path)
	require.NoError(t, err)
	require.NoError(t, second.Unlock())
}
