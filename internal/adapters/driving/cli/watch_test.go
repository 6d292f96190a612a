package cli

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Pg1910/clinical-rag/internal/adapters/driving/watcher"
	"github.com/Pg1910/clinical-rag/internal/core/domain"
)

func TestWatchCmd_Metadata(t *testing.T) {
	flag := watchCmd.Flags().Lookup("debounce")
	require.NotNil(t, flag)
	assert.Equal(t, watcher.DefaultDebounce.String(), flag.DefValue)
	assert.Error(t, watchCmd.Args(watchCmd, []string{}))
}

func TestWatchCmd_InitialBuildFails(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()

	_, err := executeCommand("watch", filepath.Join(t.TempDir(), "absent.csv"))

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Contains(t, err.Error(), "initial build failed")
}

func TestWatchCmd_NotConfigured(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()
	indexService = nil

	_, err := executeCommand("watch", t.TempDir())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "index service not configured")
}
