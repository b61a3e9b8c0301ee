package store

import (
	"context"

	"portfolio-analytics/model"

	"github.com/go-redis/redis/v8"
)

// Redis implements DocumentStore on a Redis backend. A document is a
// hash at "{collection}:{id}"; list and set fields live at
// "{collection}:{id}:{field}". Increments use HINCRBY, create-only
// fields HSETNX, union membership SADD, and batches commit through a
// MULTI/EXEC transaction pipeline. Cross-document batches are therefore
// effectively atomic: either every queued command runs or none does,
// though concurrent readers may observe intermediate states.
type Redis struct {
	client *redis.Client
}

// NewRedis wraps an established Redis client.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func (s *Redis) GetUser(ctx context.Context, userID string) (*model.User, error) {
	fields, err := s.client.HGetAll(ctx, UserDoc(userID).Key()).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	return decodeUser(userID, fields)
}

func (s *Redis) GetAggregate(ctx context.Context, urlHash string) (*model.LinkAggregate, error) {
	fields, err := s.client.HGetAll(ctx, LinkDoc(urlHash).Key()).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	return decodeAggregate(urlHash, fields), nil
}

func (s *Redis) UnionAppend(ctx context.Context, doc DocKey, field string, member string) (bool, error) {
	added, err := s.client.SAdd(ctx, doc.Key()+":"+field, member).Result()
	if err != nil {
		return false, err
	}
	return added > 0, nil
}

func (s *Redis) NewBatch() WriteBatch {
	return &redisBatch{pipe: s.client.TxPipeline()}
}

func (s *Redis) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

type redisBatch struct {
	pipe redis.Pipeliner
	err  error // first staging error, surfaced on Commit
}

func (b *redisBatch) MergeSet(doc DocKey, fields map[string]interface{}) {
	for field, value := range fields {
		enc, err := encodeValue(value)
		if err != nil {
			b.stageErr(err)
			continue
		}
		b.pipe.HSet(context.Background(), doc.Key(), field, enc)
	}
}

func (b *redisBatch) SetIfAbsent(doc DocKey, fields map[string]interface{}) {
	for field, value := range fields {
		enc, err := encodeValue(value)
		if err != nil {
			b.stageErr(err)
			continue
		}
		b.pipe.HSetNX(context.Background(), doc.Key(), field, enc)
	}
}

func (b *redisBatch) Increment(doc DocKey, field string, delta int64) {
	b.pipe.HIncrBy(context.Background(), doc.Key(), field, delta)
}

func (b *redisBatch) Append(doc DocKey, field string, value interface{}) {
	enc, err := encodeValue(value)
	if err != nil {
		b.stageErr(err)
		return
	}
	b.pipe.RPush(context.Background(), doc.Key()+":"+field, enc)
}

func (b *redisBatch) Commit(ctx context.Context) error {
	if b.err != nil {
		return b.err
	}
	_, err := b.pipe.Exec(ctx)
	return err
}

func (b *redisBatch) stageErr(err error) {
	if b.err == nil {
		b.err = err
	}
}
