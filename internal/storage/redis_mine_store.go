package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/annel0/plotmines/internal/mine"
	"github.com/go-redis/redis/v8"
)

// RedisConfig содержит настройки подключения к Redis
type RedisConfig struct {
	Addr     string `yaml:"addr"`     // Адрес Redis сервера
	Password string `yaml:"password"` // Пароль (пустой если не требуется)
	DB       int    `yaml:"db"`       // Номер базы данных
	Key      string `yaml:"key"`      // Хеш с шахтами
}

// DefaultRedisConfig возвращает конфигурацию по умолчанию
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr: "localhost:6379",
		Key:  "plotmines:mines",
	}
}

// RedisMineStore хранит шахты в одном хеше: поле = id, значение = JSON
type RedisMineStore struct {
	client *redis.Client
	key    string
}

// NewRedisMineStore подключается к Redis и проверяет соединение
func NewRedisMineStore(cfg RedisConfig) (*RedisMineStore, error) {
	if cfg.Addr == "" {
		cfg.Addr = DefaultRedisConfig().Addr
	}
	if cfg.Key == "" {
		cfg.Key = DefaultRedisConfig().Key
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("не удалось подключиться к Redis: %w", err)
	}

	return &RedisMineStore{client: client, key: cfg.Key}, nil
}

// Load читает все поля хеша
func (s *RedisMineStore) Load(ctx context.Context) ([]mine.Record, error) {
	values, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения шахт из Redis: %w", err)
	}

	records := make([]mine.Record, 0, len(values))
	for id, data := range values {
		r, err := decodeRecord(id, []byte(data))
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}

	return sortedRecords(records), nil
}

// SaveAll атомарно заменяет хеш (MULTI/EXEC)
func (s *RedisMineStore) SaveAll(ctx context.Context, records []mine.Record) error {
	fields := make(map[string]interface{}, len(records))
	for _, r := range records {
		data, err := encodeRecord(r)
		if err != nil {
			return err
		}
		fields[r.ID] = data
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key)
		if len(fields) > 0 {
			pipe.HSet(ctx, s.key, fields)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("ошибка сохранения шахт в Redis: %w", err)
	}
	return nil
}

// Close закрывает клиент Redis
func (s *RedisMineStore) Close() error {
	return s.client.Close()
}
