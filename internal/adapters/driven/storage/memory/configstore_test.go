package memory

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigStore_SetAndGet(t *testing.T) {
	store := NewConfigStore()

	require.NoError(t, store.Set("llm.model", "gemma3:4b"))

	val, ok := store.Get("llm.model")
	require.True(t, ok)
	assert.Equal(t, "gemma3:4b", val)

	_, ok = store.Get("llm.base_url")
	assert.False(t, ok)
}

func TestConfigStore_TypedGetters(t *testing.T) {
	store := NewConfigStore()
	_ = store.Set("batch.workers", int64(8))
	_ = store.Set("retrieval.lexical_weight", 0.55)
	_ = store.Set("retrieval.top_k", 8)
	_ = store.Set("verbose", true)
	_ = store.Set("rules.path", "/tmp/rules.yaml")
	_ = store.Set("labs", []any{"pt", 3, "ptt"})

	assert.Equal(t, 8, store.GetInt("batch.workers"))
	assert.Equal(t, 0, store.GetInt("retrieval.lexical_weight"))
	assert.InDelta(t, 0.55, store.GetFloat("retrieval.lexical_weight"), 1e-9)
	assert.InDelta(t, 8.0, store.GetFloat("retrieval.top_k"), 1e-9)
	assert.True(t, store.GetBool("verbose"))
	assert.Equal(t, "/tmp/rules.yaml", store.GetString("rules.path"))
	assert.Equal(t, []string{"pt", "ptt"}, store.GetStringSlice("labs"))
}

func TestConfigStore_WrongTypesReturnZero(t *testing.T) {
	store := NewConfigStore()
	_ = store.Set("key", "not a number")

	assert.Equal(t, 0, store.GetInt("key"))
	assert.Zero(t, store.GetFloat("key"))
	assert.False(t, store.GetBool("key"))
	assert.Nil(t, store.GetStringSlice("key"))
	assert.Equal(t, "", store.GetString("missing"))
}

func TestConfigStore_SaveLoadPath(t *testing.T) {
	store := NewConfigStore()

	assert.NoError(t, store.Save())
	assert.NoError(t, store.Load())
	assert.Equal(t, ":memory:", store.Path())
}

func TestConfigStore_Concurrency(t *testing.T) {
	store := NewConfigStore()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			key := fmt.Sprintf("key.%d", n)
			_ = store.Set(key, n)
			assert.Equal(t, n, store.GetInt(key))
		}(i)
	}
	wg.Wait()
}
