package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"freelance-market/internal/domain"
	"freelance-market/pkg/logger"

	"github.com/go-redis/redis/v8"
)

// ReputationCache serves seller reputations from Redis and falls back to the
// wrapped provider for misses. Cache failures degrade to the provider.
type ReputationCache struct {
	client redis.UniversalClient
	next   domain.ReputationProvider
	ttl    time.Duration
	log    logger.Logger
}

func NewReputationCache(client redis.UniversalClient, next domain.ReputationProvider, ttl time.Duration, log logger.Logger) *ReputationCache {
	return &ReputationCache{client: client, next: next, ttl: ttl, log: log}
}

func reputationKey(sellerID string) string {
	return fmt.Sprintf("user:%s:reputation", sellerID)
}

func (c *ReputationCache) Reputations(ctx context.Context, sellerIDs []string) (map[string]float64, error) {
	out := make(map[string]float64, len(sellerIDs))
	if len(sellerIDs) == 0 {
		return out, nil
	}

	keys := make([]string, len(sellerIDs))
	for i, id := range sellerIDs {
		keys[i] = reputationKey(id)
	}

	missing := sellerIDs
	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		c.log.Warn("Reputation cache unavailable", "error", err)
	} else {
		missing = nil
		for i, v := range values {
			s, ok := v.(string)
			if !ok {
				missing = append(missing, sellerIDs[i])
				continue
			}
			rep, err := strconv.ParseFloat(s, 64)
			if err != nil {
				missing = append(missing, sellerIDs[i])
				continue
			}
			out[sellerIDs[i]] = rep
		}
	}
	if len(missing) == 0 {
		return out, nil
	}

	fetched, err := c.next.Reputations(ctx, missing)
	if err != nil {
		return nil, err
	}

	pipe := c.client.Pipeline()
	for id, rep := range fetched {
		out[id] = rep
		pipe.Set(ctx, reputationKey(id), strconv.FormatFloat(rep, 'f', -1, 64), c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		c.log.Warn("Failed to cache reputations", "error", err)
	}
	return out, nil
}
