package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// CounterStore — хранилище счётчиков с TTL.
type CounterStore interface {
	// Get возвращает значение счётчика; отсутствующий ключ — 0.
	Get(ctx context.Context, key string) (int64, error)
	// Incr увеличивает счётчик на 1 и возвращает новое значение.
	Incr(ctx context.Context, key string) (int64, error)
	// Expire задаёт время жизни ключа.
	Expire(ctx context.Context, key string, ttl time.Duration) error
	// TTL возвращает оставшееся время жизни; отрицательное — TTL не задан
	// или ключа нет.
	TTL(ctx context.Context, key string) (time.Duration, error)
}

// RedisStore — CounterStore поверх Redis.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore подключается к Redis по URL (redis://host:6379/0)
// и проверяет соединение.
func NewRedisStore(ctx context.Context, rawURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("некорректный URL Redis: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ошибка подключения к Redis: %w", err)
	}
	return &RedisStore{client: client}, nil
}

// NewRedisStoreFromClient оборачивает готовый клиент.
func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, key string) (int64, error) {
	val, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, err
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("некорректное значение счётчика %s: %q", key, val)
	}
	return n, nil
}

func (s *RedisStore) Incr(ctx context.Context, key string) (int64, error) {
	return s.client.Incr(ctx, key).Result()
}

func (s *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return s.client.Expire(ctx, key, ttl).Err()
}

func (s *RedisStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	return s.client.TTL(ctx, key).Result()
}

// CheckReady проверяет доступность Redis для health endpoint.
func (s *RedisStore) CheckReady() (status string, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := s.client.Ping(ctx).Err(); err != nil {
		return "fail", fmt.Sprintf("Redis недоступен: %v", err)
	}
	return "ok", "подключение активно"
}

// Close закрывает соединение.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
