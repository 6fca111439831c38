package listing

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/diagnosis/stays-bookings/pkg/logger"
	"github.com/diagnosis/stays-bookings/services/bookings/internal/domain"
	"github.com/redis/go-redis/v9"
)

// CachedProvider fronts another Provider with a Redis entry per listing that
// lives for ttl. Misses, and any Redis failure, fall through to the source.
type CachedProvider struct {
	source Provider
	client *redis.Client
	ttl    time.Duration
}

func NewCachedProvider(source Provider, client *redis.Client, ttl time.Duration) *CachedProvider {
	return &CachedProvider{source: source, client: client, ttl: ttl}
}

func cacheKey(listingID string) string {
	return "listing:availability:" + listingID
}

func (c *CachedProvider) GetAvailability(ctx context.Context, listingID string) (*domain.Availability, error) {
	raw, err := c.client.Get(ctx, cacheKey(listingID)).Bytes()
	switch {
	case err == nil:
		var a domain.Availability
		if jsonErr := json.Unmarshal(raw, &a); jsonErr == nil {
			return &a, nil
		}
		logger.WarnContext(ctx, "Dropping undecodable listing cache entry", "listing_id", listingID)
	case !errors.Is(err, redis.Nil):
		logger.WarnContext(ctx, "Listing cache read failed", "listing_id", listingID, "error", err)
	}

	a, err := c.source.GetAvailability(ctx, listingID)
	if err != nil {
		return nil, err
	}

	if payload, err := json.Marshal(a); err == nil {
		if err := c.client.Set(ctx, cacheKey(listingID), payload, c.ttl).Err(); err != nil {
			logger.WarnContext(ctx, "Listing cache write failed", "listing_id", listingID, "error", err)
		}
	}
	return a, nil
}

var _ Provider = (*CachedProvider)(nil)
