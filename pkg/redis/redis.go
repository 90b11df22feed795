package redis

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

var ErrCacheMiss = errors.New("cache miss")

type IRedis interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, expiration time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

type redisClient struct {
	client *redis.Client
	log    *logrus.Logger
}

// New connects using REDIS_ADDRESS, REDIS_PASSWORD and REDIS_DB. A failed
// ping is logged but not fatal: go-redis reconnects on the next command.
func New(log *logrus.Logger) IRedis {
	db, _ := strconv.Atoi(os.Getenv("REDIS_DB"))
	redisAddr := os.Getenv("REDIS_ADDRESS")

	log.Infof("Connecting to Redis at %s...", redisAddr)

	client := redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		log.Errorf("Failed to connect to Redis: %v", err)
	} else {
		log.Info("Successfully connected to Redis")
	}

	return &redisClient{client: client, log: log}
}

func (r *redisClient) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		r.log.Debugf("Cache miss for key %s", key)
		return nil, ErrCacheMiss
	} else if err != nil {
		r.log.Errorf("Error reading key %s: %v", key, err)
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return val, nil
}

func (r *redisClient) Set(ctx context.Context, key string, value []byte, expiration time.Duration) error {
	if err := r.client.Set(ctx, key, value, expiration).Err(); err != nil {
		r.log.Errorf("Error setting key %s: %v", key, err)
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	r.log.Debugf("Stored %d bytes at key %s with expiration %v", len(value), key, expiration)
	return nil
}

func (r *redisClient) Delete(ctx context.Context, key string) error {
	result, err := r.client.Del(ctx, key).Result()
	if err != nil {
		r.log.Errorf("Error deleting key %s: %v", key, err)
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	if result == 0 {
		r.log.Debugf("Key %s not found for deletion", key)
	}
	return nil
}

func (r *redisClient) Close() error {
	return r.client.Close()
}
