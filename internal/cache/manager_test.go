package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/codegraph/internal/models"
	"github.com/rohankatakam/codegraph/internal/storage"
)

func newManager(t *testing.T, store storage.Store, sig string, retry bool) *Manager {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	m, err := NewManager(store, sig, Options{LRUSize: 2, RetryFailed: retry}, logger)
	require.NoError(t, err)
	return m
}

func sampleResult(path string) *models.FileResult {
	return &models.FileResult{
		Module:  models.Module{Name: "pkg.mod", Path: path},
		Classes: []models.Class{{ID: "A", Name: "A", ModulePath: path}},
	}
}

func TestGetPut(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, storage.NewMemoryStore(), "v1", true)

	_, ok := m.Get(ctx, "fp1")
	assert.False(t, ok)

	require.NoError(t, m.Put(ctx, "fp1", sampleResult("/a.py"), nil))
	entry, ok := m.Get(ctx, "fp1")
	require.True(t, ok)
	assert.Equal(t, models.StatusOK, entry.Status)
	assert.Equal(t, "A", entry.Result.Classes[0].ID)

	// callers get independent copies
	entry.Result.Rebase("/b.py", "b", false)
	again, ok := m.Get(ctx, "fp1")
	require.True(t, ok)
	assert.Equal(t, "/a.py", again.Result.Module.Path)

	stats, err := m.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(1), stats.Writes)
	assert.Equal(t, 1, stats.Entries)
}

func TestSignatureMismatchIsMiss(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()

	old := newManager(t, store, "v1", true)
	require.NoError(t, old.Put(ctx, "fp", sampleResult("/a.py"), nil))

	current := newManager(t, store, "v2", true)
	_, ok := current.Get(ctx, "fp")
	assert.False(t, ok)

	stats, err := current.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Stale)
}

func TestFailedEntries(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	failed := &models.FileResult{Module: models.Module{Path: "/bad.py", ParseError: "line 1: syntax"}}

	retry := newManager(t, store, "v1", true)
	require.NoError(t, retry.Put(ctx, "fp", failed, fmt.Errorf("line 1: syntax")))
	_, ok := retry.Get(ctx, "fp")
	assert.False(t, ok, "failed entries are retried by default")

	keep := newManager(t, store, "v1", false)
	entry, ok := keep.Get(ctx, "fp")
	require.True(t, ok)
	assert.Equal(t, models.StatusFailed, entry.Status)
	assert.Equal(t, "line 1: syntax", entry.Error)
}

func TestLRUEvictionFallsBackToStore(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, storage.NewMemoryStore(), "v1", true)

	for i := 0; i < 5; i++ {
		require.NoError(t, m.Put(ctx, fmt.Sprintf("fp%d", i), sampleResult("/a.py"), nil))
	}
	assert.Equal(t, 2, m.front.Len())

	_, ok := m.Get(ctx, "fp0")
	assert.True(t, ok)
}

func TestPrune(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, storage.NewMemoryStore(), "v1", true)
	for _, fp := range []string{"a", "b", "c"} {
		require.NoError(t, m.Put(ctx, fp, sampleResult("/x.py"), nil))
	}

	n, err := m.Prune(ctx, map[string]bool{"b": true})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, ok := m.Get(ctx, "a")
	assert.False(t, ok)
	_, ok = m.Get(ctx, "b")
	assert.True(t, ok)
}

func TestConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, storage.NewMemoryStore(), "v1", true)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			fp := fmt.Sprintf("fp%d", i%4)
			_ = m.Put(ctx, fp, sampleResult("/a.py"), nil)
			m.Get(ctx, fp)
		}(i)
	}
	wg.Wait()

	stats, err := m.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Entries)
	assert.Equal(t, int64(32), stats.Writes)
}
