package storage

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/rl1809/timeless/internal/core/domain"
	"github.com/rl1809/timeless/internal/port"
)

// CachedCatalog reads products through the cache and falls back to the
// wrapped reader on a miss. Cache failures never fail a read.
type CachedCatalog struct {
	port.CatalogReader
	cache port.ProductCache
	ttl   time.Duration
	log   zerolog.Logger
}

func NewCachedCatalog(reader port.CatalogReader, cache port.ProductCache, ttl time.Duration, log zerolog.Logger) *CachedCatalog {
	return &CachedCatalog{
		CatalogReader: reader,
		cache:         cache,
		ttl:           ttl,
		log:           log.With().Str("component", "product_cache").Logger(),
	}
}

func (c *CachedCatalog) GetProduct(ctx context.Context, productID int64) (domain.Product, error) {
	p, hit, err := c.cache.GetProduct(ctx, productID)
	if err != nil {
		c.log.Warn().Err(err).Int64("product_id", productID).Msg("product cache read failed")
	}
	if hit {
		return p, nil
	}

	p, err = c.CatalogReader.GetProduct(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}

	if err := c.cache.SetProduct(ctx, p, c.ttl); err != nil {
		c.log.Warn().Err(err).Int64("product_id", productID).Msg("product cache write failed")
	}
	return p, nil
}

var _ port.CatalogReader = (*CachedCatalog)(nil)
