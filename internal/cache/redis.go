package cache

import (
	"context"
	"encoding/json"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const redisOpTimeout = 2 * time.Second

// Redis is a Cache shared between processes. Values are stored as JSON
// under prefix+key and expire after ttl.
type Redis[V any] struct {
	rdb    *goredis.Client
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedis wraps rdb and checks it is reachable.
func NewRedis[V any](ctx context.Context, rdb *goredis.Client, prefix string, ttl time.Duration, logger *zap.Logger) (*Redis[V], error) {
	if rdb == nil {
		return nil, errors.New("redis client is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	pingCtx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return nil, errors.Wrap(err, "ping redis")
	}

	return &Redis[V]{rdb: rdb, prefix: prefix, ttl: ttl, logger: logger}, nil
}

func (r *Redis[V]) Get(key string) (V, bool) {
	var zero V

	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	data, err := r.rdb.Get(ctx, r.prefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			r.logger.Warn("redis cache get failed", zap.String("key", key), zap.Error(err))
		}
		return zero, false
	}

	var v V
	if err := json.Unmarshal(data, &v); err != nil {
		r.logger.Warn("redis cache decode failed", zap.String("key", key), zap.Error(err))
		return zero, false
	}
	return v, true
}

func (r *Redis[V]) Put(key string, value V) {
	data, err := json.Marshal(value)
	if err != nil {
		r.logger.Warn("redis cache encode failed", zap.String("key", key), zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	if err := r.rdb.Set(ctx, r.prefix+key, data, r.ttl).Err(); err != nil {
		r.logger.Warn("redis cache put failed", zap.String("key", key), zap.Error(err))
	}
}
