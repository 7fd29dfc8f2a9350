package favorites

import (
	"context"

	"github.com/kapu/pokedex-go/internal/util"
	"github.com/kapu/pokedex-go/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisStorage keeps favorites in Redis so several shells can share them.
type RedisStorage struct {
	client *redis.Client
	logger *zap.Logger
}

func NewRedisStorage(client *redis.Client, logger *zap.Logger) *RedisStorage {
	return &RedisStorage{client: client, logger: util.OrNop(logger)}
}

func (r *RedisStorage) Load(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		r.logger.Error("Favorites get failed", zap.String("key", key), zap.Error(err))
		return nil, false, errors.NewStorageError("get failed", "get", key, err)
	}
	return data, true, nil
}

func (r *RedisStorage) Save(ctx context.Context, key string, data []byte) error {
	if err := r.client.Set(ctx, key, data, 0).Err(); err != nil {
		r.logger.Error("Favorites set failed", zap.String("key", key), zap.Error(err))
		return errors.NewStorageError("set failed", "set", key, err)
	}
	return nil
}
