package chatstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	model "github.com/okian/queryai/internal/domain/model"
)

const (
	keyPrefix         = "queryai:chat:"
	usersKey          = keyPrefix + "users"
	connectionTimeout = 5 * time.Second
)

// RedisConfig holds the connection settings of the Redis store.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// TTL expires idle conversations; zero keeps them forever.
	TTL time.Duration
}

// Redis stores each conversation as a list of JSON messages and tracks
// active users in a set.
type Redis struct {
	client *redis.Client
	window int
	ttl    time.Duration
}

// NewRedis connects to Redis and verifies the connection.
func NewRedis(ctx context.Context, cfg RedisConfig, opts ...Option) (*Redis, error) {
	if cfg.Addr == "" {
		return nil, ErrEmptyAddr
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, connectionTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return NewRedisFromClient(client, cfg.TTL, opts...), nil
}

// NewRedisFromClient wraps an existing client.
func NewRedisFromClient(client *redis.Client, ttl time.Duration, opts ...Option) *Redis {
	o := buildOptions(opts)
	return &Redis{client: client, window: o.window, ttl: ttl}
}

func convoKey(userID string) string { return keyPrefix + "user:" + userID }

func (r *Redis) Append(ctx context.Context, userID string, msgs ...model.ChatMessage) error {
	if userID == "" {
		return ErrEmptyUserID
	}
	if len(msgs) == 0 {
		return nil
	}
	values := make([]any, len(msgs))
	for i, m := range msgs {
		b, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("encode message: %w", err)
		}
		values[i] = b
	}

	key := convoKey(userID)
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.RPush(ctx, key, values...)
		p.LTrim(ctx, key, int64(-r.window), -1)
		p.SAdd(ctx, usersKey, userID)
		if r.ttl > 0 {
			p.Expire(ctx, key, r.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("append chat history: %w", err)
	}
	return nil
}

func (r *Redis) History(ctx context.Context, userID string) ([]model.ChatMessage, error) {
	raw, err := r.client.LRange(ctx, convoKey(userID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read chat history: %w", err)
	}
	out := make([]model.ChatMessage, 0, len(raw))
	for _, item := range raw {
		var m model.ChatMessage
		if err := json.Unmarshal([]byte(item), &m); err != nil {
			return nil, fmt.Errorf("decode message: %w", err)
		}
		out = append(out, m)
	}
	return out, nil
}

func (r *Redis) Clear(ctx context.Context, userID string) (bool, error) {
	var del *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		del = p.Del(ctx, convoKey(userID))
		p.SRem(ctx, usersKey, userID)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("clear chat history: %w", err)
	}
	return del.Val() > 0, nil
}

// Users returns members of the users set whose conversation has not expired.
// Expired members are pruned.
func (r *Redis) Users(ctx context.Context) ([]string, error) {
	members, err := r.client.SMembers(ctx, usersKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list chat users: %w", err)
	}
	users := make([]string, 0, len(members))
	var stale []any
	for _, id := range members {
		n, err := r.client.Exists(ctx, convoKey(id)).Result()
		if err != nil {
			return nil, fmt.Errorf("list chat users: %w", err)
		}
		if n == 0 {
			stale = append(stale, id)
			continue
		}
		users = append(users, id)
	}
	if len(stale) > 0 {
		_ = r.client.SRem(ctx, usersKey, stale...).Err()
	}
	sort.Strings(users)
	return users, nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
