// Package cache decorates the listing store with a Redis read-through cache
// for the catalog's hot path, listing-by-id lookups.
//
// Caching is correctness-safe for write preconditions because the fields
// they depend on (existence, price, publisher) are immutable; mutable
// counters are refreshed by invalidating on every mutation. Redis failures
// degrade to the inner store, never to an error.
package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"dplay/internal/registry/models"
	"dplay/internal/registry/service"
	id "dplay/pkg/domain"
)

// DefaultTTL bounds staleness of cached download/rating counters.
const DefaultTTL = 30 * time.Second

// ListingCache wraps a ListingStore with per-listing Redis entries.
type ListingCache struct {
	inner  service.ListingStore
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

var _ service.ListingStore = (*ListingCache)(nil)

func New(inner service.ListingStore, client *redis.Client, ttl time.Duration, logger *slog.Logger) *ListingCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &ListingCache{inner: inner, client: client, ttl: ttl, logger: logger}
}

func cacheKey(listingID id.ListingID) string {
	return "dplay:listing:" + listingID.String()
}

func (c *ListingCache) FindByID(ctx context.Context, listingID id.ListingID) (*models.Listing, error) {
	raw, err := c.client.Get(ctx, cacheKey(listingID)).Bytes()
	if err == nil {
		var listing models.Listing
		if err := json.Unmarshal(raw, &listing); err == nil {
			return &listing, nil
		}
		// Corrupt entry; fall through and rewrite it.
	} else if err != redis.Nil {
		c.logger.WarnContext(ctx, "listing cache read failed", "listing_id", listingID, "error", err)
	}

	listing, err := c.inner.FindByID(ctx, listingID)
	if err != nil {
		return nil, err
	}
	c.set(ctx, listing)
	return listing, nil
}

func (c *ListingCache) Create(ctx context.Context, listing *models.Listing) error {
	if err := c.inner.Create(ctx, listing); err != nil {
		return err
	}
	c.invalidate(ctx, listing.ID)
	return nil
}

func (c *ListingCache) List(ctx context.Context, category string) ([]*models.Listing, error) {
	return c.inner.List(ctx, category)
}

func (c *ListingCache) Execute(ctx context.Context, listingID id.ListingID,
	validate func(*models.Listing) error, apply func(*models.Listing)) (*models.Listing, error) {
	listing, err := c.inner.Execute(ctx, listingID, validate, apply)
	if err != nil {
		return nil, err
	}
	c.invalidate(ctx, listingID)
	return listing, nil
}

func (c *ListingCache) set(ctx context.Context, listing *models.Listing) {
	raw, err := json.Marshal(listing)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, cacheKey(listing.ID), raw, c.ttl).Err(); err != nil {
		c.logger.WarnContext(ctx, "listing cache write failed", "listing_id", listing.ID, "error", err)
	}
}

func (c *ListingCache) invalidate(ctx context.Context, listingID id.ListingID) {
	if err := c.client.Del(ctx, cacheKey(listingID)).Err(); err != nil {
		c.logger.WarnContext(ctx, "listing cache invalidation failed", "listing_id", listingID, "error", err)
	}
}
