package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"

	"github.com/vietddude/callguard/internal/resilience/breaker"
	"github.com/vietddude/callguard/internal/resilience/retry"
)

const (
	defaultPrefix  = "callguard"
	defaultTTL     = 24 * time.Hour
	maxTransitions = 100
)

// Transition is one recorded breaker state change.
type Transition struct {
	Endpoint string        `json:"endpoint"`
	From     breaker.State `json:"from"`
	To       breaker.State `json:"to"`
	At       time.Time     `json:"at"`
}

// StoreConfig configures the snapshot store.
type StoreConfig struct {
	// Prefix namespaces every key (default "callguard").
	Prefix string
	// TTL expires snapshots of endpoints that stop reporting (default 24h).
	TTL time.Duration
	// Retry governs transient write failures.
	Retry retry.Config
}

// SnapshotStore publishes breaker snapshots so other processes (the status
// command, other replicas) can see circuit state.
type SnapshotStore struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
	retry  retry.Config
}

// NewSnapshotStore creates a store on top of client.
func NewSnapshotStore(client *Client, cfg StoreConfig) *SnapshotStore {
	if cfg.Prefix == "" {
		cfg.Prefix = defaultPrefix
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultTTL
	}
	if cfg.Retry.BaseDelay <= 0 {
		cfg.Retry.BaseDelay = 100 * time.Millisecond
	}
	if cfg.Retry.MaxDelay <= 0 {
		cfg.Retry.MaxDelay = 2 * time.Second
	}
	return &SnapshotStore{
		rdb:    client.rdb,
		prefix: cfg.Prefix,
		ttl:    cfg.TTL,
		retry:  cfg.Retry,
	}
}

// Key helpers
func (s *SnapshotStore) indexKey() string {
	return fmt.Sprintf("%s:breakers", s.prefix)
}

func (s *SnapshotStore) breakerKey(endpoint string) string {
	return fmt.Sprintf("%s:breaker:%s", s.prefix, endpoint)
}

func (s *SnapshotStore) transitionsKey() string {
	return fmt.Sprintf("%s:transitions", s.prefix)
}

// Publish stores snap, replacing any previous snapshot for the endpoint.
func (s *SnapshotStore) Publish(ctx context.Context, snap breaker.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	return s.withRetry(ctx, func() error {
		_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, s.breakerKey(snap.Endpoint), data, s.ttl)
			pipe.SAdd(ctx, s.indexKey(), snap.Endpoint)
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to publish snapshot for %s: %w", snap.Endpoint, err)
		}
		return nil
	})
}

// RecordTransition appends tr to the capped transition log.
func (s *SnapshotStore) RecordTransition(ctx context.Context, tr Transition) error {
	data, err := json.Marshal(tr)
	if err != nil {
		return fmt.Errorf("failed to marshal transition: %w", err)
	}

	return s.withRetry(ctx, func() error {
		_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.LPush(ctx, s.transitionsKey(), data)
			pipe.LTrim(ctx, s.transitionsKey(), 0, maxTransitions-1)
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to record transition: %w", err)
		}
		return nil
	})
}

// List returns every live snapshot sorted by endpoint. Expired entries are
// dropped from the index.
func (s *SnapshotStore) List(ctx context.Context) ([]breaker.Snapshot, error) {
	endpoints, err := s.rdb.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list endpoints: %w", err)
	}
	if len(endpoints) == 0 {
		return nil, nil
	}
	sort.Strings(endpoints)

	keys := make([]string, len(endpoints))
	for i, ep := range endpoints {
		keys[i] = s.breakerKey(ep)
	}
	values, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshots: %w", err)
	}

	out := make([]breaker.Snapshot, 0, len(values))
	var stale []any
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			stale = append(stale, endpoints[i])
			continue
		}
		var snap breaker.Snapshot
		if err := json.Unmarshal([]byte(raw), &snap); err != nil {
			return nil, fmt.Errorf("failed to decode snapshot for %s: %w", endpoints[i], err)
		}
		out = append(out, snap)
	}

	if len(stale) > 0 {
		if err := s.rdb.SRem(ctx, s.indexKey(), stale...).Err(); err != nil {
			return nil, fmt.Errorf("failed to prune index: %w", err)
		}
	}
	return out, nil
}

// Transitions returns up to n most recent transitions, newest first.
func (s *SnapshotStore) Transitions(ctx context.Context, n int) ([]Transition, error) {
	if n <= 0 || n > maxTransitions {
		n = maxTransitions
	}
	raws, err := s.rdb.LRange(ctx, s.transitionsKey(), 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read transitions: %w", err)
	}

	out := make([]Transition, 0, len(raws))
	for _, raw := range raws {
		var tr Transition
		if err := json.Unmarshal([]byte(raw), &tr); err != nil {
			return nil, fmt.Errorf("failed to decode transition: %w", err)
		}
		out = append(out, tr)
	}
	return out, nil
}

// Delete removes an endpoint's snapshot.
func (s *SnapshotStore) Delete(ctx context.Context, endpoint string) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.breakerKey(endpoint))
		pipe.SRem(ctx, s.indexKey(), endpoint)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete snapshot for %s: %w", endpoint, err)
	}
	return nil
}

func (s *SnapshotStore) withRetry(ctx context.Context, op backoff.Operation) error {
	return backoff.Retry(op, backoff.WithContext(retry.NewPolicy(s.retry), ctx))
}
