package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/elys-network/yield-aggregator/internal/types"
	"github.com/go-redis/redis/v8"
)

const (
	MIRROR_KEY          = "yield-aggregator:protocol_snapshot"
	MIRROR_TTL          = time.Hour
	MIRROR_DIAL_TIMEOUT = 5 * time.Second
)

// RedisMirror stores the latest snapshot as JSON under a single key.
type RedisMirror struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRedisMirror connects to addr and verifies the connection with a ping.
func NewRedisMirror(ctx context.Context, addr, password string) (*RedisMirror, error) {
	client := redis.NewClient(&redis.Options{
		Addr:       addr,
		Password:   password,
		MaxRetries: 2,
	})

	pingCtx, cancel := context.WithTimeout(ctx, MIRROR_DIAL_TIMEOUT)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}

	cacheLogger.Info().Str("addr", addr).Msg("Redis snapshot mirror connected")
	return &RedisMirror{client: client, key: MIRROR_KEY, ttl: MIRROR_TTL}, nil
}

func (m *RedisMirror) Load(ctx context.Context) (types.MetricsSnapshot, bool, error) {
	raw, err := m.client.Get(ctx, m.key).Bytes()
	if err == redis.Nil {
		return types.MetricsSnapshot{}, false, nil
	}
	if err != nil {
		return types.MetricsSnapshot{}, false, fmt.Errorf("read mirrored snapshot: %w", err)
	}
	return decodeSnapshot(raw)
}

func (m *RedisMirror) Store(ctx context.Context, snapshot types.MetricsSnapshot) error {
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := m.client.Set(ctx, m.key, raw, m.ttl).Err(); err != nil {
		return fmt.Errorf("write mirrored snapshot: %w", err)
	}
	return nil
}

func (m *RedisMirror) Close() error {
	return m.client.Close()
}

// decodeSnapshot rejects payloads without protocols so an empty key never seeds the cache.
func decodeSnapshot(raw []byte) (types.MetricsSnapshot, bool, error) {
	var snapshot types.MetricsSnapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return types.MetricsSnapshot{}, false, fmt.Errorf("decode mirrored snapshot: %w", err)
	}
	if len(snapshot.Protocols) == 0 {
		return types.MetricsSnapshot{}, false, nil
	}
	return snapshot, true, nil
}
