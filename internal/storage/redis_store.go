package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/annel0/voxel-world/internal/vec"
	"github.com/annel0/voxel-world/internal/world/block"
)

// RedisConfig содержит настройки подключения к Redis
type RedisConfig struct {
	Addr      string        // Адрес Redis сервера
	Password  string        // Пароль (пустой если не требуется)
	DB        int           // Номер базы данных
	KeyPrefix string        // Префикс для ключей
	TTL       time.Duration // Время жизни записей, 0 = бессрочно
	Timeout   time.Duration // Таймаут одной операции
}

// DefaultRedisConfig возвращает конфигурацию по умолчанию
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Addr:      "localhost:6379",
		KeyPrefix: "voxel:",
		Timeout:   500 * time.Millisecond,
	}
}

// RedisStore хранит чанки в Redis. Подходит как общий кеш чанков для
// нескольких процессов (сервер + зеркала для чтения).
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
	timeout   time.Duration
}

// NewRedisStore подключается к Redis и проверяет соединение
func NewRedisStore(cfg *RedisConfig) (*RedisStore, error) {
	if cfg == nil {
		cfg = DefaultRedisConfig()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 500 * time.Millisecond
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("не удалось подключиться к Redis %s: %w", cfg.Addr, err)
	}

	return &RedisStore{
		client:    client,
		keyPrefix: cfg.KeyPrefix,
		ttl:       cfg.TTL,
		timeout:   cfg.Timeout,
	}, nil
}

// LoadChunk читает чанк из Redis
func (rs *RedisStore) LoadChunk(coord vec.Vec3) ([]block.BlockID, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), rs.timeout)
	defer cancel()

	data, err := rs.client.Get(ctx, chunkKey(rs.keyPrefix, coord)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("ошибка чтения чанка из Redis: %w", err)
	}

	blocks, err := DecodeChunk(data)
	if err != nil {
		return nil, false, err
	}
	return blocks, true, nil
}

// SaveChunk записывает чанк в Redis
func (rs *RedisStore) SaveChunk(coord vec.Vec3, blocks []block.BlockID) error {
	data, err := EncodeChunk(blocks)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), rs.timeout)
	defer cancel()
	if err := rs.client.Set(ctx, chunkKey(rs.keyPrefix, coord), data, rs.ttl).Err(); err != nil {
		return fmt.Errorf("ошибка записи чанка в Redis: %w", err)
	}
	return nil
}

// Close закрывает соединение
func (rs *RedisStore) Close() error {
	return rs.client.Close()
}
