package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	apperrors "github.com/ledger-sync/internal/errors"
	"github.com/ledger-sync/internal/types"
	"github.com/redis/go-redis/v9"
)

const (
	// TimestampLayout is the key timestamp format. It is fixed width so that
	// lexicographic key order equals chronological order.
	TimestampLayout = "2006-01-02T15:04:05.000000"

	// keyParseLayout accepts timestamps with or without a fractional part
	keyParseLayout = "2006-01-02T15:04:05.999999999"

	scanBatchSize = 100
)

var (
	keyPattern = regexp.MustCompile(`^(.+):(\d{4}-\d{2}-\d{2}T.+)$`)

	// timestampHead matches the start of a key's timestamp segment. Keys of a
	// longer prefix such as "scrape:a:b" fail it when listing "scrape:a".
	timestampHead = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T`)
)

// Snapshot is the full result of one fetch, stored under a timestamped key
type Snapshot struct {
	Key       string         `json:"key"`
	Prefix    string         `json:"prefix"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   []types.Record `json:"payload"`
}

// SnapshotStore keeps time-bounded snapshots in Redis, one key per cycle
type SnapshotStore struct {
	cache *RedisCache
	ttl   time.Duration
}

// NewSnapshotStore creates a snapshot store whose entries expire after ttl
func NewSnapshotStore(cache *RedisCache, ttl time.Duration) *SnapshotStore {
	return &SnapshotStore{cache: cache, ttl: ttl}
}

// TTL returns the expiry applied to new snapshots
func (s *SnapshotStore) TTL() time.Duration {
	return s.ttl
}

// Key builds the snapshot key for prefix at ts
func Key(prefix string, ts time.Time) string {
	return prefix + ":" + ts.UTC().Format(TimestampLayout)
}

// ParseKey extracts the timestamp from a key written under prefix.
func ParseKey(prefix, key string) (time.Time, error) {
	head := prefix + ":"
	if !strings.HasPrefix(key, head) {
		return time.Time{}, apperrors.NewMalformedSnapshotKeyError(key, fmt.Errorf("missing prefix %q", prefix))
	}

	ts, err := time.ParseInLocation(keyParseLayout, key[len(head):], time.UTC)
	if err != nil {
		return time.Time{}, apperrors.NewMalformedSnapshotKeyError(key, err)
	}
	return ts, nil
}

// Put stores payload as a new snapshot. An existing key is never overwritten.
func (s *SnapshotStore) Put(ctx context.Context, prefix string, ts time.Time, payload []types.Record) (*Snapshot, error) {
	if payload == nil {
		payload = []types.Record{}
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}

	key := Key(prefix, ts)
	ok, err := s.cache.client.SetNX(ctx, key, data, s.ttl).Result()
	if err != nil {
		return nil, apperrors.NewStoreUnavailableError("redis", "put snapshot", err)
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, ErrSnapshotExists)
	}

	return &Snapshot{
		Key:       key,
		Prefix:    prefix,
		Timestamp: ts.UTC(),
		Payload:   payload,
	}, nil
}

// ownsKey reports whether key was written directly under head
func ownsKey(head, key string) bool {
	return strings.HasPrefix(key, head) && timestampHead.MatchString(key[len(head):])
}

// ListKeys returns all live snapshot keys under prefix in ascending order.
// Keys of sources whose prefix extends prefix are not included.
func (s *SnapshotStore) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	head := prefix + ":"
	keys := make([]string, 0)

	iter := s.cache.client.Scan(ctx, 0, escapeGlob(head)+"*", scanBatchSize).Iterator()
	for iter.Next(ctx) {
		if key := iter.Val(); ownsKey(head, key) {
			keys = append(keys, key)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, apperrors.NewStoreUnavailableError("redis", "list snapshots", err)
	}

	sort.Strings(keys)
	return keys, nil
}

// Get loads the snapshot stored at key
func (s *SnapshotStore) Get(ctx context.Context, key string) (*Snapshot, error) {
	data, err := s.cache.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("snapshot %s: %w", key, ErrNotFound)
		}
		return nil, apperrors.NewStoreUnavailableError("redis", "get snapshot", err)
	}

	var payload []types.Record
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("snapshot %s: %w: %v", key, ErrCorruptSnapshot, err)
	}
	if payload == nil {
		payload = []types.Record{}
	}

	snapshot := &Snapshot{Key: key, Payload: payload}
	if m := keyPattern.FindStringSubmatch(key); m != nil {
		snapshot.Prefix = m[1]
		if ts, err := time.ParseInLocation(keyParseLayout, m[2], time.UTC); err == nil {
			snapshot.Timestamp = ts
		}
	}
	return snapshot, nil
}

// Latest returns the most recent snapshot under prefix
func (s *SnapshotStore) Latest(ctx context.Context, prefix string) (*Snapshot, error) {
	keys, err := s.ListKeys(ctx, prefix)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("snapshot for %s: %w", prefix, ErrNotFound)
	}

	key := keys[len(keys)-1]
	ts, err := ParseKey(prefix, key)
	if err != nil {
		return nil, err
	}

	snapshot, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	snapshot.Prefix = prefix
	snapshot.Timestamp = ts
	return snapshot, nil
}

func escapeGlob(s string) string {
	var sb strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			sb.WriteByte('\\')
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
