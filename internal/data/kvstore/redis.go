package kvstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/ravenmill/tracker-backend/internal/pkg/logger"
)

// RedisStore keeps each collection in one hash and each member set in a
// native redis set. SADD's return value gives SetAddNX real compare-and-set
// semantics, which the idempotency ledger prefers.
type RedisStore struct {
	log *logger.Logger
	rdb *goredis.Client
	ns  string
}

func NewRedisStore(log *logger.Logger, addr, namespace string) (*RedisStore, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, fmt.Errorf("missing redis addr")
	}
	if namespace == "" {
		namespace = "tracker"
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisStore{
		log: log.With("store", "RedisStore"),
		rdb: rdb,
		ns:  namespace,
	}, nil
}

func (s *RedisStore) collKey(collection string) string {
	return s.ns + ":docs:" + collection
}

func (s *RedisStore) setKey(key string) string {
	return s.ns + ":set:" + key
}

func (s *RedisStore) ctrKey(key string) string {
	return s.ns + ":ctr:" + key
}

func (s *RedisStore) Get(ctx context.Context, collection, id string) ([]byte, error) {
	raw, err := s.rdb.HGet(ctx, s.collKey(collection), id).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return raw, nil
}

func (s *RedisStore) Put(ctx context.Context, collection, id string, doc []byte) error {
	return s.rdb.HSet(ctx, s.collKey(collection), id, doc).Err()
}

func (s *RedisStore) Delete(ctx context.Context, collection, id string) error {
	return s.rdb.HDel(ctx, s.collKey(collection), id).Err()
}

func (s *RedisStore) List(ctx context.Context, collection string) (map[string][]byte, error) {
	raw, err := s.rdb.HGetAll(ctx, s.collKey(collection)).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string][]byte, len(raw))
	for id, doc := range raw {
		out[id] = []byte(doc)
	}
	return out, nil
}

func (s *RedisStore) SetAdd(ctx context.Context, key, member string) error {
	return s.rdb.SAdd(ctx, s.setKey(key), member).Err()
}

func (s *RedisStore) SetAddNX(ctx context.Context, key, member string) (bool, error) {
	n, err := s.rdb.SAdd(ctx, s.setKey(key), member).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *RedisStore) SetRemove(ctx context.Context, key, member string) error {
	return s.rdb.SRem(ctx, s.setKey(key), member).Err()
}

func (s *RedisStore) SetContains(ctx context.Context, key, member string) (bool, error) {
	return s.rdb.SIsMember(ctx, s.setKey(key), member).Result()
}

func (s *RedisStore) SetMembers(ctx context.Context, key string) ([]string, error) {
	return s.rdb.SMembers(ctx, s.setKey(key)).Result()
}

func (s *RedisStore) Incr(ctx context.Context, key string) (int64, error) {
	return s.rdb.Incr(ctx, s.ctrKey(key)).Result()
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
