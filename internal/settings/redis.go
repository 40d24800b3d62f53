package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const defaultRedisKey = "alchemy:settings"

// NewRedisClient connects to redis and verifies the connection.
func NewRedisClient(ctx context.Context, addr string) (*redis.Client, error) {
	if strings.TrimSpace(addr) == "" {
		return nil, errors.New("settings: redis address is empty")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("settings: ping redis: %w", err)
	}

	return client, nil
}

// RedisStore keeps the settings JSON-encoded under a single key.
type RedisStore struct {
	client *redis.Client
	key    string
	logger *zap.SugaredLogger
}

func NewRedisStore(client *redis.Client, key string, logger *zap.SugaredLogger) *RedisStore {
	if strings.TrimSpace(key) == "" {
		key = defaultRedisKey
	}
	return &RedisStore{client: client, key: key, logger: logger}
}

func (s *RedisStore) Load(ctx context.Context) (Settings, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Default(), nil
		}
		return Default(), fmt.Errorf("settings: redis get: %w", err)
	}

	var loaded Settings
	if err := json.Unmarshal(data, &loaded); err != nil {
		if s.logger != nil {
			s.logger.Warnw("stored settings are corrupt, using defaults", "key", s.key, "error", err)
		}
		return Default(), nil
	}

	return loaded, nil
}

func (s *RedisStore) Save(ctx context.Context, settings Settings) error {
	data, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("settings: encode: %w", err)
	}

	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("settings: redis set: %w", err)
	}

	return nil
}
