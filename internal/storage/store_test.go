package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func TestStores(t *testing.T) {
	tests := []struct {
		backend string
		file    string
	}{
		{BackendBolt, "cache.db"},
		{BackendSQLite, "cache.sqlite"},
		{BackendMemory, ""},
	}

	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			ctx := context.Background()
			path := filepath.Join(t.TempDir(), "nested", tt.file)

			s, err := Open(tt.backend, path, quietLogger())
			require.NoError(t, err)
			defer s.Close()

			_, err = s.Get(ctx, "missing")
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, s.Put(ctx, "b", []byte("two")))
			require.NoError(t, s.Put(ctx, "a", []byte("one")))
			require.NoError(t, s.Put(ctx, "a", []byte("uno")))

			got, err := s.Get(ctx, "a")
			require.NoError(t, err)
			assert.Equal(t, []byte("uno"), got)

			keys, err := s.Keys(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"a", "b"}, keys)

			n, err := s.Delete(ctx, []string{"a", "zzz"})
			require.NoError(t, err)
			assert.Equal(t, 1, n)

			keys, err = s.Keys(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"b"}, keys)
		})
	}
}

func TestBoltPersistsAcrossOpen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cache.db")

	s, err := NewBoltStore(path, quietLogger())
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, "fp", []byte("payload")))
	require.NoError(t, s.Close())

	s, err = NewBoltStore(path, quietLogger())
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Get(ctx, "fp")
	require.NoError(t, err)
	assert.Equal(t, "payload", string(got))
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := Open("redis", "", quietLogger())
	assert.Error(t, err)
}

func TestMemoryStoreClosed(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.Close())
	_, err := s.Get(context.Background(), "a")
	assert.ErrorIs(t, err, ErrClosed)
}
