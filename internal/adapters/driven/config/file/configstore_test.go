package file

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestConfigStore(t *testing.T) (*ConfigStore, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := NewConfigStore(dir)
	require.NoError(t, err)
	return store, dir
}

func TestNewConfigStore_Success(t *testing.T) {
	store, dir := newTestConfigStore(t)
	assert.Equal(t, filepath.Join(dir, "config.toml"), store.Path())
}

func TestNewConfigStore_MkdirAllError(t *testing.T) {
	store, err := NewConfigStore("/dev/null/cannot/create/dirs")
	assert.Error(t, err)
	assert.Nil(t, store)
}

func TestNewConfigStore_LoadCorruptedFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte("not [valid toml"), 0600))

	_, err := NewConfigStore(dir)
	assert.Error(t, err)
}

func TestConfigStore_Getters(t *testing.T) {
	store, _ := newTestConfigStore(t)

	require.NoError(t, store.Set("llm.model", "gemma3:4b"))
	require.NoError(t, store.Set("batch.workers", 8))
	require.NoError(t, store.Set("llm.temperature", 0.2))
	require.NoError(t, store.Set("ingest.strict", true))
	require.NoError(t, store.Set("retrieval.prefixes", []string{"CS", "L"}))

	assert.Equal(t, "gemma3:4b", store.GetString("llm.model"))
	assert.Equal(t, 8, store.GetInt("batch.workers"))
	assert.InDelta(t, 0.2, store.GetFloat("llm.temperature"), 1e-9)
	assert.InDelta(t, 8.0, store.GetFloat("batch.workers"), 1e-9)
	assert.True(t, store.GetBool("ingest.strict"))
	assert.Equal(t, []string{"CS", "L"}, store.GetStringSlice("retrieval.prefixes"))

	// Wrong types read as zero values.
	assert.Empty(t, store.GetString("batch.workers"))
	assert.Zero(t, store.GetInt("llm.model"))
	assert.Zero(t, store.GetFloat("llm.model"))
	assert.False(t, store.GetBool("llm.model"))
	assert.Nil(t, store.GetStringSlice("missing"))
}

func TestConfigStore_SavesNestedTables(t *testing.T) {
	store, _ := newTestConfigStore(t)

	require.NoError(t, store.Set("llm.model", "gemma3:4b"))
	require.NoError(t, store.Set("llm.num_ctx", 16384))
	require.NoError(t, store.Set("data.dir", "/tmp/x"))

	raw, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	assert.Contains(t, string(raw), "[llm]")
	assert.Contains(t, string(raw), "[data]")
	assert.NotContains(t, string(raw), `"llm.model"`)
}

func TestConfigStore_PersistenceAcrossReload(t *testing.T) {
	store, dir := newTestConfigStore(t)

	require.NoError(t, store.Set("llm.model", "gemma3:4b"))
	require.NoError(t, store.Set("gate.pass_threshold", 60))
	require.NoError(t, store.Set("retrieval.lexical_weight", 0.55))

	reloaded, err := NewConfigStore(dir)
	require.NoError(t, err)

	assert.Equal(t, "gemma3:4b", reloaded.GetString("llm.model"))
	assert.Equal(t, 60, reloaded.GetInt("gate.pass_threshold"))
	assert.InDelta(t, 0.55, reloaded.GetFloat("retrieval.lexical_weight"), 1e-9)
}

func TestConfigStore_LoadsHandWrittenFile(t *testing.T) {
	dir := t.TempDir()
	content := `
[llm]
provider = "ollama"
temperature = 1

[budget]
max_retries = 3
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(content), 0600))

	store, err := NewConfigStore(dir)
	require.NoError(t, err)

	assert.Equal(t, "ollama", store.GetString("llm.provider"))
	assert.InDelta(t, 1.0, store.GetFloat("llm.temperature"), 1e-9)
	assert.Equal(t, 3, store.GetInt("budget.max_retries"))
}

func TestConfigStore_Load_EmptyFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), nil, 0600))

	store, err := NewConfigStore(dir)
	require.NoError(t, err)

	_, ok := store.Get("anything")
	assert.False(t, ok)
}

func TestConfigStore_FilePermissions(t *testing.T) {
	store, _ := newTestConfigStore(t)
	require.NoError(t, store.Set("k", "v"))

	info, err := os.Stat(store.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestConfigStore_Concurrency(t *testing.T) {
	store, _ := newTestConfigStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = store.Set("batch.workers", i)
		}()
		go func() {
			defer wg.Done()
			_ = store.GetInt("batch.workers")
		}()
	}
	wg.Wait()
}

func TestNestMap_KeepsCollidingKeyFlat(t *testing.T) {
	nested := nestMap(map[string]any{
		"llm":       "scalar",
		"llm.model": "gemma3:4b",
		"a.b.c":     1,
	})

	a, ok := nested["a"].(map[string]any)
	require.True(t, ok)
	b, ok := a["b"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 1, b["c"])

	assert.Equal(t, "scalar", nested["llm"])
	assert.Equal(t, "gemma3:4b", nested["llm.model"])
}
