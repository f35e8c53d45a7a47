package cache

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/codegraph/internal/errors"
	"github.com/rohankatakam/codegraph/internal/models"
	"github.com/rohankatakam/codegraph/internal/storage"
)

const shardCount = 64

// CachedResult is one cache entry. Result is path independent in the sense
// that callers rebase it onto the file being processed.
type CachedResult struct {
	Fingerprint string             `json:"fingerprint"`
	Signature   string             `json:"signature"`
	Status      string             `json:"status"` // models.StatusOK or models.StatusFailed
	Error       string             `json:"error,omitempty"`
	Result      *models.FileResult `json:"result"`
	StoredAt    time.Time          `json:"stored_at"`
}

// Options configures a Manager
type Options struct {
	LRUSize     int
	RetryFailed bool
}

// Stats summarizes cache activity for the current process
type Stats struct {
	Hits    int64 `json:"hits" yaml:"hits"`
	Misses  int64 `json:"misses" yaml:"misses"`
	Stale   int64 `json:"stale" yaml:"stale"`
	Writes  int64 `json:"writes" yaml:"writes"`
	Entries int   `json:"entries" yaml:"entries"`
}

// Manager fronts a persistent store with an in-memory LRU. Entries are keyed
// by content fingerprint; locking is sharded by key so distinct files never
// contend and a key has at most one writer.
type Manager struct {
	store       storage.Store
	front       *lru.Cache[string, []byte]
	signature   string
	retryFailed bool
	logger      *logrus.Logger

	shards [shardCount]sync.RWMutex

	hits   atomic.Int64
	misses atomic.Int64
	stale  atomic.Int64
	writes atomic.Int64
}

// NewManager creates a cache manager. signature identifies the extractor
// version and backend selection; entries written under another signature
// are treated as misses.
func NewManager(store storage.Store, signature string, opts Options, logger *logrus.Logger) (*Manager, error) {
	size := opts.LRUSize
	if size <= 0 {
		size = 1
	}
	front, err := lru.New[string, []byte](size)
	if err != nil {
		return nil, fmt.Errorf("create lru: %w", err)
	}
	return &Manager{
		store:       store,
		front:       front,
		signature:   signature,
		retryFailed: opts.RetryFailed,
		logger:      logger,
	}, nil
}

// Signature returns the signature entries are validated against
func (m *Manager) Signature() string {
	return m.signature
}

func (m *Manager) shard(key string) *sync.RWMutex {
	h := fnv.New32a()
	h.Write([]byte(key))
	return &m.shards[h.Sum32()%shardCount]
}

// Get returns a usable entry for fingerprint. Each call decodes a fresh
// copy, so callers may modify the result.
func (m *Manager) Get(ctx context.Context, fingerprint string) (*CachedResult, bool) {
	mu := m.shard(fingerprint)
	mu.RLock()
	data, err := m.load(ctx, fingerprint)
	mu.RUnlock()

	if err != nil {
		if !stderrors.Is(err, storage.ErrNotFound) {
			m.logger.WithError(err).WithField("fingerprint", fingerprint).Warn("cache read failed")
		}
		m.misses.Add(1)
		return nil, false
	}

	var entry CachedResult
	if err := json.Unmarshal(data, &entry); err != nil || entry.Result == nil {
		m.logger.WithField("fingerprint", fingerprint).Warn("discarding undecodable cache entry")
		m.misses.Add(1)
		return nil, false
	}

	if entry.Signature != m.signature {
		m.stale.Add(1)
		m.misses.Add(1)
		return nil, false
	}
	if entry.Status == models.StatusFailed && m.retryFailed {
		m.misses.Add(1)
		return nil, false
	}

	m.hits.Add(1)
	return &entry, true
}

func (m *Manager) load(ctx context.Context, key string) ([]byte, error) {
	if data, ok := m.front.Get(key); ok {
		return data, nil
	}
	data, err := m.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	m.front.Add(key, data)
	return data, nil
}

// Put records the outcome for fingerprint. Failures are stored too, with
// result holding the module entity and its error.
func (m *Manager) Put(ctx context.Context, fingerprint string, result *models.FileResult, parseErr error) error {
	entry := CachedResult{
		Fingerprint: fingerprint,
		Signature:   m.signature,
		Status:      models.StatusOK,
		Result:      result,
		StoredAt:    time.Now().UTC(),
	}
	if parseErr != nil {
		entry.Status = models.StatusFailed
		entry.Error = parseErr.Error()
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, errors.SeverityMedium, "encode cache entry")
	}

	mu := m.shard(fingerprint)
	mu.Lock()
	defer mu.Unlock()

	if err := m.store.Put(ctx, fingerprint, data); err != nil {
		return errors.StorageError(err, "write cache entry")
	}
	m.front.Add(fingerprint, data)
	m.writes.Add(1)
	return nil
}

// Prune deletes every entry whose fingerprint is not in keep
func (m *Manager) Prune(ctx context.Context, keep map[string]bool) (int, error) {
	keys, err := m.store.Keys(ctx)
	if err != nil {
		return 0, errors.StorageError(err, "list cache entries")
	}

	var drop []string
	for _, k := range keys {
		if !keep[k] {
			drop = append(drop, k)
		}
	}
	if len(drop) == 0 {
		return 0, nil
	}

	for _, k := range drop {
		m.front.Remove(k)
	}
	n, err := m.store.Delete(ctx, drop)
	if err != nil {
		return 0, errors.StorageError(err, "prune cache entries")
	}

	m.logger.WithFields(logrus.Fields{
		"removed": n,
		"kept":    len(keys) - n,
	}).Info("pruned cache")
	return n, nil
}

// Stats returns counters for this process and the persisted entry count
func (m *Manager) Stats(ctx context.Context) (Stats, error) {
	s := Stats{
		Hits:   m.hits.Load(),
		Misses: m.misses.Load(),
		Stale:  m.stale.Load(),
		Writes: m.writes.Load(),
	}
	keys, err := m.store.Keys(ctx)
	if err != nil {
		return s, errors.StorageError(err, "list cache entries")
	}
	s.Entries = len(keys)
	return s, nil
}
