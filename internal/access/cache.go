package access

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/goartstore/meeting-module/internal/domain/model"
)

// Prometheus-метрики кэша владельцев.
var (
	ownerCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mm_owner_cache_hits_total",
		Help: "Общее количество попаданий в LRU-кэш владельцев файлов.",
	})
	ownerCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mm_owner_cache_misses_total",
		Help: "Общее количество промахов LRU-кэша владельцев файлов.",
	})
)

// ownerCache — LRU-кэш соответствия файл → владелец с TTL.
// Кэшируются только найденные владельцы: отсутствие записи не кэшируется,
// чтобы только что загруженный файл был доступен сразу.
type ownerCache struct {
	cache *expirable.LRU[string, int64]
}

func newOwnerCache(maxSize int, ttl time.Duration) *ownerCache {
	return &ownerCache{cache: expirable.NewLRU[string, int64](maxSize, nil, ttl)}
}

func cacheKey(ns model.Namespace, storedName string) string {
	return string(ns) + "/" + storedName
}

func (c *ownerCache) get(ns model.Namespace, storedName string) (int64, bool) {
	owner, ok := c.cache.Get(cacheKey(ns, storedName))
	if ok {
		ownerCacheHitsTotal.Inc()
		return owner, true
	}
	ownerCacheMissesTotal.Inc()
	return 0, false
}

func (c *ownerCache) set(ns model.Namespace, storedName string, owner int64) {
	c.cache.Add(cacheKey(ns, storedName), owner)
}

func (c *ownerCache) remove(ns model.Namespace, storedName string) {
	c.cache.Remove(cacheKey(ns, storedName))
}
