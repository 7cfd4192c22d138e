package imagecache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dcrane/planwise/pkg/logger"
	"github.com/dcrane/planwise/pkg/metrics"
)

// DefaultMaxAgeDays is the sweep threshold applied when none is configured.
const DefaultMaxAgeDays = 30

// FileStore persists the cache as a single pretty-printed JSON object keyed by
// image id. Every mutation rewrites the whole file.
//
// A process-level mutex serialises mutations, so concurrent requests within one
// instance cannot clobber each other. The file itself carries no locking: in a
// multi-process deployment two instances sharing the path can still lose cache
// entries to each other. That only costs a database re-read on the next miss,
// but deployments needing more than one process should switch Store to a
// backend with real concurrency control.
type FileStore struct {
	path string
	now  func() time.Time
	log  *zap.Logger

	mu      sync.Mutex
	loaded  bool
	entries map[string]CachedImage
}

var _ Store = (*FileStore)(nil)

// FileStoreOption customises a FileStore.
type FileStoreOption func(*FileStore)

// WithNow overrides the clock, primarily for tests.
func WithNow(now func() time.Time) FileStoreOption {
	return func(s *FileStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewFileStore constructs a FileStore persisting to the supplied path. The
// file and its directory are created on first write.
func NewFileStore(path string, opts ...FileStoreOption) *FileStore {
	s := &FileStore{
		path: path,
		now:  time.Now,
		log:  logger.WithModule("imagecache"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the cached entry for id, if present.
func (s *FileStore) Get(id string) (CachedImage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.load()
	entry, ok := s.entries[id]
	if ok {
		metrics.ImageCacheLookups.WithLabelValues("hit").Inc()
	} else {
		metrics.ImageCacheLookups.WithLabelValues("miss").Inc()
	}
	return entry, ok
}

// Put overwrites the entry for id and persists the map.
func (s *FileStore) Put(id, base64Data, mimeType, filename string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.load()
	s.entries[id] = CachedImage{
		ID:         id,
		Base64Data: base64Data,
		MimeType:   mimeType,
		Filename:   filename,
		CachedAt:   s.now().UTC(),
	}
	s.persist()
}

// Remove deletes the entry for id if present.
func (s *FileStore) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.load()
	if _, ok := s.entries[id]; !ok {
		return
	}
	delete(s.entries, id)
	s.persist()
}

// Sweep drops entries whose CachedAt is older than maxAgeDays.
func (s *FileStore) Sweep(maxAgeDays int) int {
	if maxAgeDays <= 0 {
		maxAgeDays = DefaultMaxAgeDays
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.load()
	cutoff := s.now().AddDate(0, 0, -maxAgeDays)

	removed := 0
	for id, entry := range s.entries {
		if entry.CachedAt.Before(cutoff) {
			delete(s.entries, id)
			removed++
		}
	}

	if removed > 0 {
		s.persist()
		metrics.ImageCacheSweeps.Add(float64(removed))
	}
	return removed
}

// Stats reports entry count and estimated decoded byte size.
func (s *FileStore) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.load()
	stats := Stats{Count: len(s.entries)}
	for _, entry := range s.entries {
		stats.ApproximateSizeBytes += int64(len(entry.Base64Data)) * 3 / 4
	}
	return stats
}

// load reads the cache file on first access. A missing file means an empty
// cache; a corrupt file is logged and treated as empty, left in place until
// the next successful persist overwrites it.
func (s *FileStore) load() {
	if s.loaded {
		return
	}
	s.loaded = true
	s.entries = make(map[string]CachedImage)

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warn("cache file unreadable, starting empty",
				zap.String("path", s.path), zap.Error(err))
		}
		return
	}

	var entries map[string]CachedImage
	if err := json.Unmarshal(data, &entries); err != nil {
		s.log.Warn("cache file corrupt, starting empty",
			zap.String("path", s.path), zap.Error(err))
		return
	}

	s.entries = entries
}

// persist rewrites the whole cache file. Failures are logged and swallowed:
// losing a cache write only degrades the next read to a database fetch.
func (s *FileStore) persist() {
	data, err := json.MarshalIndent(s.entries, "", "  ")
	if err != nil {
		s.log.Warn("cache marshal failed", zap.Error(err))
		return
	}

	if dir := filepath.Dir(s.path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			s.log.Warn("cache directory create failed",
				zap.String("dir", dir), zap.Error(err))
			return
		}
	}

	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		s.log.Warn("cache write failed",
			zap.String("path", s.path), zap.Error(err))
	}
}
