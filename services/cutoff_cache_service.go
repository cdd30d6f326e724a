package services

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/visatrack/timeline-backend/models"
)

// cutoffCacheEntry is one memoized cutoff pair with expiration.
type cutoffCacheEntry struct {
	pair      models.CutoffPair
	expiresAt time.Time
}

func (entry *cutoffCacheEntry) isExpired() bool {
	return time.Now().After(entry.expiresAt)
}

// CutoffCacheService memoizes resolved cutoff pairs per (country, preference)
// for the session, so changing a duration slider does not re-fetch the
// bulletin. The cache is explicit state owned here, invalidated whenever the
// country or preference changes or the published month rolls over; it is
// deliberately not persisted.
type CutoffCacheService struct {
	resolver   *BulletinResolver
	cache      map[string]*cutoffCacheEntry
	mutex      sync.RWMutex
	defaultTTL time.Duration
}

// NewCutoffCacheService creates a caching wrapper around the resolver.
func NewCutoffCacheService(resolver *BulletinResolver, defaultTTL time.Duration) *CutoffCacheService {
	if defaultTTL <= 0 {
		defaultTTL = 24 * time.Hour
	}

	return &CutoffCacheService{
		resolver:   resolver,
		cache:      make(map[string]*cutoffCacheEntry),
		defaultTTL: defaultTTL,
	}
}

func cutoffCacheKey(country, preference string) string {
	return fmt.Sprintf("%s:%s", strings.ToUpper(country), strings.ToUpper(preference))
}

// GetCutoffs returns the memoized cutoff pair for the key, resolving through
// the bulletin pipeline on a miss. Resolution errors are not cached; the
// next call retries naturally.
func (service *CutoffCacheService) GetCutoffs(country, preference string) (models.CutoffPair, error) {
	key := cutoffCacheKey(country, preference)

	service.mutex.RLock()
	entry, exists := service.cache[key]
	service.mutex.RUnlock()

	if exists && !entry.isExpired() {
		logrus.WithFields(logrus.Fields{
			"component": "CutoffCacheService",
			"cache_key": key,
		}).Debug("Cutoff cache hit")
		return entry.pair, nil
	}

	pair, err := service.resolver.ResolveCutoffs(country, preference)
	if err != nil {
		return models.CutoffPair{}, err
	}

	service.mutex.Lock()
	service.cache[key] = &cutoffCacheEntry{
		pair:      pair,
		expiresAt: time.Now().Add(service.defaultTTL),
	}
	service.mutex.Unlock()

	return pair, nil
}

// Invalidate removes the memoized pair for one (country, preference).
func (service *CutoffCacheService) Invalidate(country, preference string) {
	service.mutex.Lock()
	defer service.mutex.Unlock()

	delete(service.cache, cutoffCacheKey(country, preference))
}

// Clear removes all memoized pairs. The refresh job calls this when the
// published bulletin month changes.
func (service *CutoffCacheService) Clear() {
	service.mutex.Lock()
	defer service.mutex.Unlock()

	service.cache = make(map[string]*cutoffCacheEntry)
}

// Size returns the number of memoized pairs.
func (service *CutoffCacheService) Size() int {
	service.mutex.RLock()
	defer service.mutex.RUnlock()

	return len(service.cache)
}

// CleanupExpired drops expired entries.
func (service *CutoffCacheService) CleanupExpired() int {
	service.mutex.Lock()
	defer service.mutex.Unlock()

	removed := 0
	for key, entry := range service.cache {
		if entry.isExpired() {
			delete(service.cache, key)
			removed++
		}
	}
	return removed
}
