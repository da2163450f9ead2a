// Package redis wraps a rueidis client with the handful of commands the
// conversation store needs. Every key is namespaced under the configured prefix.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/rueidis"

	"github.com/tensorplex-labs/council/internal/config"
)

type Redis struct {
	client rueidis.Client
	cfg    *config.RedisEnvConfig
}

type RedisInterface interface {
	Key(parts ...string) string
	Get(ctx context.Context, key string) (string, error)
	GetMulti(ctx context.Context, keys []string) (map[string]string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	LPush(ctx context.Context, key string, values ...string) error
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	Ping(ctx context.Context) error
	Close()
}

func NewRedis(cfg *config.RedisEnvConfig) (*Redis, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration cannot be nil")
	}
	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress: []string{fmt.Sprintf("%s:%d", cfg.RedisHost, cfg.RedisPort)},
		Username:    cfg.RedisUsername,
		Password:    cfg.RedisPassword,
		SelectDB:    cfg.RedisDB,
	})
	if err != nil {
		return nil, err
	}

	return &Redis{
		client: client,
		cfg:    cfg,
	}, nil
}

// Key joins parts under the configured prefix, e.g. "council:conversation:<id>".
func (r *Redis) Key(parts ...string) string {
	key := r.cfg.RedisKeyPrefix
	for _, p := range parts {
		if key == "" {
			key = p
			continue
		}
		key += ":" + p
	}
	return key
}

// Get returns "" for a missing key.
func (r *Redis) Get(ctx context.Context, key string) (string, error) {
	resp := r.client.Do(ctx, r.client.B().Get().Key(key).Build())
	if err := resp.Error(); err != nil {
		if rueidis.IsRedisNil(err) {
			return "", nil
		}
		return "", err
	}
	return resp.ToString()
}

// GetMulti fetches keys in one MGET; missing keys map to "".
func (r *Redis) GetMulti(ctx context.Context, keys []string) (map[string]string, error) {
	m := make(map[string]string, len(keys))
	if len(keys) == 0 {
		return m, nil
	}
	res := r.client.Do(ctx, r.client.B().Mget().Key(keys...).Build())
	if err := res.Error(); err != nil {
		return nil, err
	}
	msgs, err := res.ToArray()
	if err != nil {
		return nil, err
	}
	for i, k := range keys {
		m[k] = ""
		if i >= len(msgs) || msgs[i].IsNil() {
			continue
		}
		v, err := msgs[i].ToString()
		if err != nil {
			return nil, err
		}
		m[k] = v
	}
	return m, nil
}

func (r *Redis) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl > 0 {
		return r.client.Do(ctx, r.client.B().Set().Key(key).Value(value).Ex(ttl).Build()).Error()
	}
	return r.client.Do(ctx, r.client.B().Set().Key(key).Value(value).Build()).Error()
}

func (r *Redis) LPush(ctx context.Context, key string, values ...string) error {
	if len(values) == 0 {
		return nil
	}
	return r.client.Do(ctx, r.client.B().Lpush().Key(key).Element(values...).Build()).Error()
}

func (r *Redis) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	resp := r.client.Do(ctx, r.client.B().Lrange().Key(key).Start(start).Stop(stop).Build())
	if err := resp.Error(); err != nil {
		if rueidis.IsRedisNil(err) {
			return []string{}, nil
		}
		return nil, err
	}
	return resp.AsStrSlice()
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Do(ctx, r.client.B().Ping().Build()).Error()
}

func (r *Redis) Close() {
	r.client.Close()
}
