// Package refdata resolves referral hashes to their human labels. The
// mapping is external reference data: read-mostly, consulted once per
// session, cached aggressively. Anything unknown or malformed resolves
// to the organic source rather than an error, since attribution must never
// break a tracked visit.
package refdata

import (
	"context"
	"regexp"
	"time"

	"portfolio-analytics/model"

	"github.com/dgraph-io/ristretto"
	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
)

// Organic is the fallback attribution for direct or unresolvable visits.
var Organic = model.ReferralSource{Hash: "XXX", Name: "organic"}

const mappingKey = "referral_hashes"

// Referral hashes are short uppercase alphanumeric tags stamped into
// shared links.
var hashShape = regexp.MustCompile(`^[A-Z0-9]{3}$`)

// Resolver looks labels up in Redis behind a ristretto cache.
type Resolver struct {
	client *redis.Client
	cache  *ristretto.Cache
	ttl    time.Duration
}

// NewResolver builds a resolver; the cache is sized for the small
// reference set this data is.
func NewResolver(client *redis.Client) (*Resolver, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10_000,
		MaxCost:     1 << 20,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Resolver{
		client: client,
		cache:  cache,
		ttl:    time.Hour,
	}, nil
}

// Lookup resolves a referral hash. Invalid shapes, unknown hashes and
// downstream failures all degrade to Organic.
func (r *Resolver) Lookup(ctx context.Context, hash string) model.ReferralSource {
	if !hashShape.MatchString(hash) {
		return Organic
	}

	if cached, found := r.cache.Get(hash); found {
		if source, ok := cached.(model.ReferralSource); ok {
			return source
		}
	}

	name, err := r.client.HGet(ctx, mappingKey, hash).Result()
	if err == redis.Nil {
		log.Debug().Str("hash", hash).Msg("Unknown referral hash")
		return Organic
	} else if err != nil {
		log.Warn().Err(err).Str("hash", hash).Msg("Referral lookup failed")
		return Organic
	}

	source := model.ReferralSource{Hash: hash, Name: name}
	r.cache.SetWithTTL(hash, source, 1, r.ttl)
	return source
}

// Close releases the cache.
func (r *Resolver) Close() {
	r.cache.Close()
}
