package service

import (
	"context"
	"fmt"
	"time"

	"github.com/scentflow/scentflow-backend/internal/inventory/repository"
	"github.com/scentflow/scentflow-backend/pkg/cache"
	"github.com/scentflow/scentflow-backend/pkg/logger"
)

const dayLayout = "2006-01-02"

// cachedSales is the cached window for one product at one location.
type cachedSales struct {
	From  string                 `json:"from"`
	To    string                 `json:"to"`
	Sales []repository.DailySale `json:"sales"`
}

// CachedSalesHistory is a read-through Redis cache in front of another
// SalesHistoryProvider. Cache failures fall back to the underlying provider.
type CachedSalesHistory struct {
	next   SalesHistoryProvider
	cache  *cache.Client
	ttl    time.Duration
	logger *logger.Logger
}

// NewCachedSalesHistory wraps next with a cache whose entries live for ttl.
func NewCachedSalesHistory(next SalesHistoryProvider, c *cache.Client, ttl time.Duration, log *logger.Logger) *CachedSalesHistory {
	return &CachedSalesHistory{
		next:   next,
		cache:  c,
		ttl:    ttl,
		logger: log.WithComponent("sales_cache"),
	}
}

func salesCacheKey(productID, locationID string) string {
	return fmt.Sprintf("inventory:sales:%s:%s", productID, locationID)
}

// GetDailySales returns the cached window when it covers the same days,
// otherwise loads it from the underlying provider and caches it.
func (c *CachedSalesHistory) GetDailySales(ctx context.Context, productID, locationID string, from, to time.Time) ([]repository.DailySale, error) {
	key := salesCacheKey(productID, locationID)
	fromDay, toDay := from.Format(dayLayout), to.Format(dayLayout)

	var entry cachedSales
	hit, err := c.cache.GetJSON(ctx, key, &entry)
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("sales cache read failed")
	}
	if hit && entry.From == fromDay && entry.To == toDay {
		return entry.Sales, nil
	}

	sales, err := c.next.GetDailySales(ctx, productID, locationID, from, to)
	if err != nil {
		return nil, err
	}

	entry = cachedSales{From: fromDay, To: toDay, Sales: sales}
	if err := c.cache.SetJSON(ctx, key, entry, c.ttl); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("sales cache write failed")
	}
	return sales, nil
}

// Invalidate drops the cached window of a product at a location.
func (c *CachedSalesHistory) Invalidate(ctx context.Context, productID, locationID string) {
	if err := c.cache.Delete(ctx, salesCacheKey(productID, locationID)); err != nil {
		c.logger.Warn().Err(err).Str("product_id", productID).Str("location_id", locationID).Msg("sales cache invalidation failed")
	}
}
