package resolver

import (
	"sync"

	"github.com/rs/zerolog"

	"anischedule/internal/domain"
)

// Cache memoizes title-resolution outcomes for the lifetime of a run. A key
// maps to the winning media record or to an explicit "not found"; the first
// writer for a key wins and later values are logged and dropped, never
// overwritten.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*domain.Media
	logger  zerolog.Logger
}

func NewCache(logger zerolog.Logger) *Cache {
	return &Cache{entries: map[string]*domain.Media{}, logger: logger}
}

// Get returns the cached record (possibly nil for "known not found") and
// whether the key has been resolved at all.
func (c *Cache) Get(key string) (*domain.Media, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.entries[key]
	return m, ok
}

// Put stores the outcome for key unless one already exists.
func (c *Cache) Put(key string, media *domain.Media) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.entries[key]; ok {
		c.logger.Debug().
			Str("key", key).
			Int("existing", mediaID(existing)).
			Int("skipped", mediaID(media)).
			Msg("duplicate cache key, keeping first value")
		return
	}
	c.entries[key] = media
}

// Confirm overwrites key with a record obtained through a trusted fallback
// (direct-ID lookup); unlike Put it replaces a failed first attempt.
func (c *Cache) Confirm(key string, media *domain.Media) {
	if media == nil {
		return
	}
	c.mu.Lock()
	c.entries[key] = media
	c.mu.Unlock()
}

func mediaID(m *domain.Media) int {
	if m == nil {
		return 0
	}
	return m.ID
}
