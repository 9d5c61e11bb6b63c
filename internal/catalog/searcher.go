// Package catalog answers product listing queries for the search widget.
package catalog

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"stockmaster/backend/internal/cache"
	"stockmaster/backend/internal/domain"
	"stockmaster/backend/internal/metrics"
	"stockmaster/backend/internal/store"
)

const (
	defaultCacheTTL = 20 * time.Second
	maxQueryRunes   = 100
	cacheKeyPrefix  = "stockmaster:search:"
)

// ProductSource is the part of the repository a Searcher reads.
type ProductSource interface {
	SearchProducts(ctx context.Context, query store.ProductQuery) ([]domain.Product, error)
}

type Searcher struct {
	source   ProductSource
	cache    cache.SearchCache
	cacheTTL time.Duration
	limit    int
	metrics  *metrics.Metrics
}

func NewSearcher(source ProductSource, cacheStore cache.SearchCache, cacheTTL time.Duration, m *metrics.Metrics) *Searcher {
	if cacheStore == nil {
		cacheStore = cache.NoopSearchCache{}
	}
	if cacheTTL <= 0 {
		cacheTTL = defaultCacheTTL
	}
	return &Searcher{
		source:   source,
		cache:    cacheStore,
		cacheTTL: cacheTTL,
		limit:    store.DefaultSearchLimit,
		metrics:  m,
	}
}

// Search returns the active products whose name, code or barcode contains
// text, ordered by name. Cache failures fall through to the repository.
func (s *Searcher) Search(ctx context.Context, text string) ([]domain.Product, error) {
	query := NormalizeQuery(text)
	key := CacheKey(query, s.limit)

	if cached, ok, err := s.cache.Get(ctx, key); err == nil && ok {
		s.metrics.SearchServed(true)
		return cached, nil
	}

	products, err := s.source.SearchProducts(ctx, store.ProductQuery{Text: query, Limit: s.limit})
	if err != nil {
		return nil, err
	}
	if products == nil {
		products = []domain.Product{}
	}
	s.metrics.SearchServed(false)
	_ = s.cache.Set(ctx, key, products, s.cacheTTL)
	return products, nil
}

// NormalizeQuery trims the text, collapses inner whitespace and caps its length.
func NormalizeQuery(text string) string {
	query := strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(query) > maxQueryRunes {
		query = string([]rune(query)[:maxQueryRunes])
	}
	return query
}

func CacheKey(query string, limit int) string {
	hash := sha1.Sum([]byte(strings.ToLower(query) + "|" + strconv.Itoa(limit)))
	return cacheKeyPrefix + hex.EncodeToString(hash[:])
}
