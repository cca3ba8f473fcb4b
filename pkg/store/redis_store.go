// rewrite/pkg/store/redis_store.go

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"rgehrsitz/rewrite/pkg/logging"
)

type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to the Redis server at addr and verifies the
// connection with a PING.
func NewRedisStore(ctx context.Context, addr, password string, db int) (*RedisStore, error) {
	logging.Logger.Info().Str("addr", addr).Int("db", db).Msg("Connecting to Redis")

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return nil, logging.NewError(logging.ErrorTypeStore, "failed to connect to Redis", err,
			map[string]interface{}{"addr": addr})
	}

	logging.Logger.Info().Msg("Successfully connected to Redis")
	return &RedisStore{client: client}, nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Group returns the channel a key's updates are published on.
func Group(key string) string {
	return strings.SplitN(key, ":", 2)[0]
}

// SetVar stores value under key as JSON.
func (s *RedisStore) SetVar(ctx context.Context, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, key, data, 0).Err()
}

// GetVar returns the decoded value of key, or nil when it does not exist.
func (s *RedisStore) GetVar(ctx context.Context, key string) (interface{}, error) {
	data, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		logging.Logger.Debug().Str("key", key).Msg("Variable not found in Redis")
		return nil, nil
	} else if err != nil {
		logging.Logger.Error().Err(err).Str("key", key).Msg("Failed to get variable from Redis")
		return nil, err
	}

	var value interface{}
	if err := json.Unmarshal([]byte(data), &value); err != nil {
		logging.Logger.Error().Err(err).Str("key", key).Str("data", data).Msg("Failed to unmarshal variable data")
		return nil, err
	}
	return value, nil
}

// MGetVars fetches several keys at once. Missing keys map to nil.
func (s *RedisStore) MGetVars(ctx context.Context, keys ...string) (map[string]interface{}, error) {
	if len(keys) == 0 {
		return map[string]interface{}{}, nil
	}
	results, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	vars := make(map[string]interface{}, len(keys))
	for i, result := range results {
		if result == nil {
			vars[keys[i]] = nil
			continue
		}

		var value interface{}
		switch v := result.(type) {
		case string:
			if err := json.Unmarshal([]byte(v), &value); err != nil {
				return nil, fmt.Errorf("key %s: %w", keys[i], err)
			}
		case []byte:
			if err := json.Unmarshal(v, &value); err != nil {
				return nil, fmt.Errorf("key %s: %w", keys[i], err)
			}
		default:
			value = v
		}
		vars[keys[i]] = value
	}
	return vars, nil
}

// Subscribe subscribes to channels and waits for the confirmation.
func (s *RedisStore) Subscribe(ctx context.Context, channels ...string) (*redis.PubSub, error) {
	logging.Logger.Info().Strs("channels", channels).Msg("Subscribing to Redis channels")

	pubsub := s.client.Subscribe(ctx, channels...)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		logging.Logger.Error().Err(err).Msg("Failed to subscribe to Redis channels")
		return nil, err
	}
	return pubsub, nil
}

// SetAndPublishVar stores value and publishes "key=json" on the key's group channel.
func (s *RedisStore) SetAndPublishVar(ctx context.Context, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		logging.Logger.Error().Err(err).Str("key", key).Interface("value", value).Msg("Failed to marshal variable value")
		return err
	}
	if err := s.client.Set(ctx, key, data, 0).Err(); err != nil {
		logging.Logger.Error().Err(err).Str("key", key).Str("data", string(data)).Msg("Failed to set variable in Redis")
		return err
	}

	group := Group(key)
	if err := s.client.Publish(ctx, group, FormatUpdate(key, data)).Err(); err != nil {
		logging.Logger.Error().Err(err).Str("group", group).Str("key", key).Msg("Failed to publish variable update")
		return err
	}
	logging.Logger.Debug().Str("group", group).Str("key", key).Str("data", string(data)).Msg("Published update")
	return nil
}

// ScanVars returns every key matching a glob-style pattern.
func (s *RedisStore) ScanVars(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return keys, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

// FormatUpdate renders an update message.
func FormatUpdate(key string, data []byte) string {
	return key + "=" + string(data)
}

// ParseUpdate splits an update message into its key and decoded value.
func ParseUpdate(payload string) (string, interface{}, error) {
	key, raw, ok := strings.Cut(payload, "=")
	if !ok || key == "" {
		return "", nil, fmt.Errorf("malformed update %q", payload)
	}
	var value interface{}
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return "", nil, fmt.Errorf("update for %s: %w", key, err)
	}
	return key, value, nil
}
