// Пакет service — бизнес-логика sharebox.
// ShareCache — LRU-кэш записей по share token с TTL.
// Обёртка над hashicorp/golang-lru/v2/expirable.
package service

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/goartstore/sharebox/internal/domain/model"
)

// Prometheus-метрики кэша.
var (
	shareCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sb_share_cache_hits_total",
		Help: "Общее количество попаданий в кэш share token.",
	})
	shareCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sb_share_cache_misses_total",
		Help: "Общее количество промахов кэша share token.",
	})
)

// ShareCache — in-memory кэш share token → FileRecord.
// Хранит копии записей: изменения вызывающего кода кэш не затрагивают.
// Инвалидация выполняется при скачивании, редактировании и удалении.
type ShareCache struct {
	cache *expirable.LRU[string, model.FileRecord]
}

// NewShareCache создаёт кэш с указанным максимальным размером и TTL.
func NewShareCache(maxSize int, ttl time.Duration) *ShareCache {
	return &ShareCache{cache: expirable.NewLRU[string, model.FileRecord](maxSize, nil, ttl)}
}

// Get возвращает копию записи по share token.
func (c *ShareCache) Get(token string) (*model.FileRecord, bool) {
	rec, ok := c.cache.Get(token)
	if !ok {
		shareCacheMissesTotal.Inc()
		return nil, false
	}
	shareCacheHitsTotal.Inc()
	return &rec, true
}

// Set сохраняет копию записи под её share token.
func (c *ShareCache) Set(rec *model.FileRecord) {
	c.cache.Add(rec.ShareToken, *rec)
}

// Delete удаляет запись из кэша.
func (c *ShareCache) Delete(token string) {
	c.cache.Remove(token)
}

// Len возвращает количество записей в кэше.
func (c *ShareCache) Len() int {
	return c.cache.Len()
}
