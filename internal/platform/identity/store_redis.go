// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/taibuivan/motorhub/internal/platform/constants"
)

// # Session Persistence

// Storage persists the serialized provider session under a single key.
type Storage interface {

	/*
		Load returns the stored value.

		Returns:
		  - []byte: Stored value, nil when the key does not exist
		  - error: Connectivity errors
	*/
	Load(ctx context.Context, key string) ([]byte, error)

	// Save overwrites the stored value.
	Save(ctx context.Context, key string, value []byte) error

	// Delete removes the key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// RedisStorage implements [Storage] using Redis.
type RedisStorage struct {
	client *redis.Client
}

// NewRedisStorage creates a new Redis-backed session [Storage].
func NewRedisStorage(client *redis.Client) *RedisStorage {
	return &RedisStorage{client: client}
}

// Load implements [Storage].
func (storage *RedisStorage) Load(ctx context.Context, key string) ([]byte, error) {
	value, err := storage.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis_session_load_failed: %w", err)
	}
	return value, nil
}

// Save implements [Storage].
func (storage *RedisStorage) Save(ctx context.Context, key string, value []byte) error {
	if err := storage.client.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("redis_session_save_failed: %w", err)
	}
	return nil
}

// Delete implements [Storage].
func (storage *RedisStorage) Delete(ctx context.Context, key string) error {
	if err := storage.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis_session_delete_failed: %w", err)
	}
	return nil
}

// # Cross-Process Events

// Notice is a session change announced to sibling processes. It never
// carries tokens; receivers re-read the shared [Storage].
type Notice struct {
	Kind   EventKind `json:"kind"`
	Origin string    `json:"origin"`
}

// Bus distributes [Notice] values between processes sharing one storage key.
type Bus interface {
	// Publish announces a change made by this process.
	Publish(ctx context.Context, notice Notice) error

	// Listen delivers notices to fn until stop is called.
	Listen(ctx context.Context, fn func(Notice)) (stop func(), err error)
}

// RedisBus implements [Bus] with Redis Pub/Sub.
type RedisBus struct {
	client  *redis.Client
	channel string
	logger  *slog.Logger
}

// NewRedisBus creates a [Bus] scoped to a storage key.
func NewRedisBus(client *redis.Client, storageKey string, logger *slog.Logger) *RedisBus {
	return &RedisBus{
		client:  client,
		channel: constants.RedisChannelSessionEvents + storageKey,
		logger:  logger,
	}
}

// Publish implements [Bus].
func (bus *RedisBus) Publish(ctx context.Context, notice Notice) error {
	payload, err := json.Marshal(notice)
	if err != nil {
		return fmt.Errorf("redis_bus_encode_failed: %w", err)
	}
	if err := bus.client.Publish(ctx, bus.channel, payload).Err(); err != nil {
		return fmt.Errorf("redis_bus_publish_failed: %w", err)
	}
	return nil
}

// Listen implements [Bus]. The subscription is confirmed before it returns.
func (bus *RedisBus) Listen(ctx context.Context, fn func(Notice)) (func(), error) {
	pubsub := bus.client.Subscribe(ctx, bus.channel)

	// Wait for the subscription confirmation so no notice published after
	// Listen returns is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis_bus_subscribe_failed: %w", err)
	}

	finished := make(chan struct{})
	go func() {
		defer close(finished)
		for message := range pubsub.Channel() {
			var notice Notice
			if err := json.Unmarshal([]byte(message.Payload), &notice); err != nil {
				bus.logger.Warn("identity_bus_notice_invalid", slog.Any("error", err))
				continue
			}
			fn(notice)
		}
	}()

	stop := func() {
		_ = pubsub.Close()
		<-finished
	}
	return stop, nil
}
