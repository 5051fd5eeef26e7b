package kv

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps one namespace in Redis: values in a hash and the key
// order in a sorted set with equal scores, so ZRANGEBYLEX gives
// lexicographic, prefix-scoped pages.
type RedisStore struct {
	rdb       redis.UniversalClient
	valuesKey string
	indexKey  string
}

// NewRedisStore creates a store for namespace, all Redis keys prefixed by keyPrefix.
func NewRedisStore(rdb redis.UniversalClient, keyPrefix, namespace string) *RedisStore {
	base := namespace
	if keyPrefix != "" {
		base = keyPrefix + ":" + namespace
	}
	return &RedisStore{
		rdb:       rdb,
		valuesKey: base + ":values",
		indexKey:  base + ":keys",
	}
}

// NewRedisNamespaces creates one redis store per namespace on a shared client.
func NewRedisNamespaces(rdb redis.UniversalClient, keyPrefix string) *Namespaces {
	return &Namespaces{
		Playlists:      NewRedisStore(rdb, keyPrefix, NamespacePlaylists),
		PlaylistGroups: NewRedisStore(rdb, keyPrefix, NamespacePlaylistGroups),
		PlaylistItems:  NewRedisStore(rdb, keyPrefix, NamespacePlaylistItems),
	}
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.rdb.HGet(ctx, s.valuesKey, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrapf(err, "redis get %s", key)
	}
	return v, true, nil
}

func (s *RedisStore) Put(ctx context.Context, key, value string) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.valuesKey, key, value)
		pipe.ZAdd(ctx, s.indexKey, redis.Z{Score: 0, Member: key})
		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "redis put %s", key)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HDel(ctx, s.valuesKey, key)
		pipe.ZRem(ctx, s.indexKey, key)
		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "redis delete %s", key)
	}
	return nil
}

func (s *RedisStore) List(ctx context.Context, opts ListOptions) (ListResult, error) {
	limit := opts.limit()

	lo := "-"
	if after := opts.startAfter(); after != "" {
		lo = "(" + after
	} else if opts.Prefix != "" {
		lo = "[" + opts.Prefix
	}
	// keys never contain 0xff, so prefix+0xff bounds the prefix range
	hi := "+"
	if opts.Prefix != "" {
		hi = "[" + opts.Prefix + "\xff"
	}

	keys, err := s.rdb.ZRangeByLex(ctx, s.indexKey, &redis.ZRangeBy{
		Min:   lo,
		Max:   hi,
		Count: int64(limit + 1),
	}).Result()
	if err != nil {
		return ListResult{}, errors.Wrapf(err, "redis list prefix=%q", opts.Prefix)
	}
	return page(keys, limit), nil
}
