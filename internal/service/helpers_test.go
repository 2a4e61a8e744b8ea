package service

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ledger-sync/internal/logging"
	"github.com/ledger-sync/internal/notify"
	"github.com/ledger-sync/internal/source"
	"github.com/ledger-sync/internal/storage"
	"github.com/ledger-sync/internal/types"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

// fixedNow is the clock used by every cycle test
var fixedNow = time.Date(2017, 11, 10, 13, 0, 0, 0, time.UTC)

func testLogger() *logging.Logger {
	return logging.NewLoggerWithWriter(logging.LevelDebug, logging.FormatJSON, &bytes.Buffer{})
}

func setupTestSnapshotStore(t *testing.T) (*storage.SnapshotStore, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return storage.NewSnapshotStore(storage.NewRedisCacheFromClient(client), 24*time.Hour), mr
}

type mockSession struct {
	client *mockClient
}

func (s mockSession) Close() error {
	s.client.mu.Lock()
	defer s.client.mu.Unlock()
	s.client.closed++
	return nil
}

// mockClient is a scripted bank gateway
type mockClient struct {
	mu         sync.Mutex
	records    []types.Record
	err        error
	statements map[string][]byte

	calls    int
	closed   int
	from, to time.Time
}

func (c *mockClient) Login(context.Context) (source.Session, error) {
	return mockSession{client: c}, nil
}

func (c *mockClient) ListTransactions(_ context.Context, _ []string, from, to time.Time) ([]types.Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	c.from, c.to = from, to
	return c.records, c.err
}

func (c *mockClient) RecentActivity(context.Context) ([]types.Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return c.records, c.err
}

func (c *mockClient) DownloadStatement(_ context.Context, accountID string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	return c.statements[accountID], nil
}

// recordingNotifier keeps every notification it receives
type recordingNotifier struct {
	mu            sync.Mutex
	notifications []notify.Notification
	err           error
}

func (n *recordingNotifier) Notify(_ context.Context, notification notify.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.notifications = append(n.notifications, notification)
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.notifications)
}
