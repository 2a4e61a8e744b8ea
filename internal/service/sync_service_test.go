package service

import (
	"context"
	"errors"
	"testing"
	"time"

	apperrors "github.com/ledger-sync/internal/errors"
	"github.com/ledger-sync/internal/source"
	"github.com/ledger-sync/internal/storage"
	"github.com/ledger-sync/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTangerine(t *testing.T, client *mockClient) source.Source {
	t.Helper()
	src, err := source.NewMultiAccount(client, source.Options{Name: "tangerine", AccountIDs: []string{"12345"}})
	require.NoError(t, err)
	return src
}

func newSyncService(store SnapshotStore, notifier *recordingNotifier) *SyncService {
	svc := NewSyncService(store, notifier, testLogger())
	svc.SetClock(func() time.Time { return fixedNow })
	return svc
}

func TestDefaultWindow(t *testing.T) {
	from, to := DefaultWindow(time.Date(2017, 11, 10, 23, 59, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2017, 11, 9, 0, 0, 0, 0, time.UTC), from)
	assert.Equal(t, time.Date(2017, 11, 11, 0, 0, 0, 0, time.UTC), to)
}

func TestRunCycle_Bootstrap(t *testing.T) {
	store, _ := setupTestSnapshotStore(t)
	notifier := &recordingNotifier{}
	client := &mockClient{records: []types.Record{
		{"id": 1, "amount": -55.54, "account_id": "12345"},
		{"id": 2, "amount": -10, "account_id": "12345"},
	}}
	ctx := context.Background()

	result, err := newSyncService(store, notifier).RunCycle(ctx, newTangerine(t, client), "foo@example.com")
	require.NoError(t, err)

	assert.Equal(t, time.Date(2017, 11, 9, 0, 0, 0, 0, time.UTC), client.from)
	assert.Equal(t, time.Date(2017, 11, 11, 0, 0, 0, 0, time.UTC), client.to)
	assert.Equal(t, 1, client.closed)

	assert.Equal(t, 0, result.Previous)
	assert.Equal(t, 2, result.New)
	assert.True(t, result.Notified)
	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, "scrape:tangerine:2017-11-10T13:00:00.000000", result.SnapshotKey)

	require.Equal(t, 1, notifier.count())
	n := notifier.notifications[0]
	assert.Equal(t, "foo@example.com", n.Recipient)
	assert.Equal(t, result.RunID, n.RunID)
	require.Len(t, n.Accounts, 1)
	assert.Len(t, n.Accounts[0].Records, 2)
}

func TestRunCycle_OnlyNewRecordsAreNotified(t *testing.T) {
	store, mr := setupTestSnapshotStore(t)
	notifier := &recordingNotifier{}
	ctx := context.Background()

	previousKey := "scrape:tangerine:2017-11-10T12:10:11"
	require.NoError(t, mr.Set(previousKey, `[{"id":1,"amount":-55.54,"account_id":"12345"}]`))

	client := &mockClient{records: []types.Record{
		{"id": 1, "amount": -55.54, "account_id": "12345"},
		{"id": 2, "amount": -10.25, "account_id": "12345"},
	}}

	result, err := newSyncService(store, notifier).RunCycle(ctx, newTangerine(t, client), "foo@example.com")
	require.NoError(t, err)

	assert.Equal(t, previousKey, result.PreviousKey)
	assert.Equal(t, time.Date(2017, 11, 10, 12, 10, 11, 0, time.UTC), client.from)
	assert.Equal(t, 1, result.Previous)
	assert.Equal(t, 2, result.Current)
	assert.Equal(t, 1, result.New)

	require.Equal(t, 1, notifier.count())
	accounts := notifier.notifications[0].Accounts
	require.Len(t, accounts, 1)
	assert.Equal(t, "12345", accounts[0].AccountID)
	require.Len(t, accounts[0].Records, 1)
	assert.Equal(t, float64(2), accounts[0].Records[0]["id"])

	// The new snapshot holds the full current list.
	written, err := store.Get(ctx, result.SnapshotKey)
	require.NoError(t, err)
	assert.Len(t, written.Payload, 2)

	keys, err := store.ListKeys(ctx, "scrape:tangerine")
	require.NoError(t, err)
	assert.Equal(t, []string{previousKey, result.SnapshotKey}, keys)
}

func TestRunCycle_NothingNewSkipsNotification(t *testing.T) {
	store, _ := setupTestSnapshotStore(t)
	notifier := &recordingNotifier{}
	client := &mockClient{records: []types.Record{{"id": "a", "account_id": "12345"}}}
	ctx := context.Background()
	svc := newSyncService(store, notifier)
	src := newTangerine(t, client)

	_, err := svc.RunCycle(ctx, src, "r")
	require.NoError(t, err)

	svc.SetClock(func() time.Time { return fixedNow.Add(time.Hour) })
	result, err := svc.RunCycle(ctx, src, "r")
	require.NoError(t, err)

	assert.Equal(t, 0, result.New)
	assert.False(t, result.Notified)
	assert.Equal(t, 1, notifier.count())
	assert.Equal(t, fixedNow, client.from)
}

func TestRunCycle_ReorderedRecordsAreNotNew(t *testing.T) {
	store, mr := setupTestSnapshotStore(t)
	notifier := &recordingNotifier{}
	require.NoError(t, mr.Set("scrape:tangerine:2017-11-10T12:00:00.000000",
		`[{"id":"a","account_id":"1"},{"id":"b","account_id":"1"}]`))

	client := &mockClient{records: []types.Record{{"account_id": "1", "id": "b"}, {"account_id": "1", "id": "a"}}}

	result, err := newSyncService(store, notifier).RunCycle(context.Background(), newTangerine(t, client), "r")
	require.NoError(t, err)
	assert.Equal(t, 0, result.New)
	assert.Equal(t, 0, notifier.count())
}

func TestRunCycle_GroupsByAccount(t *testing.T) {
	store, _ := setupTestSnapshotStore(t)
	notifier := &recordingNotifier{}
	client := &mockClient{records: []types.Record{
		{"id": 1, "amount": -5, "account_id": "A"},
		{"id": 1, "amount": -5, "account_id": "B"},
	}}

	result, err := newSyncService(store, notifier).RunCycle(context.Background(), newTangerine(t, client), "r")
	require.NoError(t, err)

	require.Len(t, result.Accounts, 2)
	assert.Equal(t, "A", result.Accounts[0].AccountID)
	assert.Len(t, result.Accounts[0].Records, 1)
	assert.Equal(t, "B", result.Accounts[1].AccountID)
	assert.Len(t, result.Accounts[1].Records, 1)
}

func TestRunCycle_SingleAccountBindsAllRecords(t *testing.T) {
	store, _ := setupTestSnapshotStore(t)
	notifier := &recordingNotifier{}
	client := &mockClient{records: []types.Record{{"id": 1, "account_id": "x"}, {"id": 2}}}

	src, err := source.NewSingleAccount(client, source.Options{Name: "rogersbank", AccountIDs: []string{"XXXX1670"}})
	require.NoError(t, err)

	result, err := newSyncService(store, notifier).RunCycle(context.Background(), src, "r")
	require.NoError(t, err)

	require.Len(t, result.Accounts, 1)
	assert.Equal(t, "XXXX1670", result.Accounts[0].AccountID)
	assert.Len(t, result.Accounts[0].Records, 2)
}

func TestRunCycle_MalformedKeyDegradesToEmpty(t *testing.T) {
	store, mr := setupTestSnapshotStore(t)
	notifier := &recordingNotifier{}
	require.NoError(t, mr.Set("scrape:tangerine:2017-11-10Tnoon", `[{"id":1,"account_id":"1"}]`))

	client := &mockClient{records: []types.Record{{"id": 1, "account_id": "1"}}}

	result, err := newSyncService(store, notifier).RunCycle(context.Background(), newTangerine(t, client), "r")
	require.NoError(t, err)

	assert.Equal(t, time.Date(2017, 11, 9, 0, 0, 0, 0, time.UTC), client.from)
	assert.Equal(t, 0, result.Previous)
	assert.Equal(t, 1, result.New)
	assert.True(t, result.Notified)
}

func TestRunCycle_IgnoresNestedSourceKeys(t *testing.T) {
	store, mr := setupTestSnapshotStore(t)
	notifier := &recordingNotifier{}
	ctx := context.Background()

	previousKey := "scrape:tangerine:2017-11-10T12:10:11"
	require.NoError(t, mr.Set(previousKey, `[{"id":1,"account_id":"12345"}]`))
	require.NoError(t, mr.Set("scrape:tangerine:joint:2017-11-10T12:30:00", `[]`))

	client := &mockClient{records: []types.Record{{"id": 1, "account_id": "12345"}}}

	result, err := newSyncService(store, notifier).RunCycle(ctx, newTangerine(t, client), "foo@example.com")
	require.NoError(t, err)

	assert.Equal(t, previousKey, result.PreviousKey)
	assert.Equal(t, 1, result.Previous)
	assert.Equal(t, 0, result.New)
	assert.False(t, result.Notified)
	assert.Equal(t, 0, notifier.count())
}

func TestRunCycle_CorruptPayloadDegradesToEmpty(t *testing.T) {
	store, mr := setupTestSnapshotStore(t)
	notifier := &recordingNotifier{}
	require.NoError(t, mr.Set("scrape:tangerine:2017-11-10T12:00:00.000000", `{broken`))

	client := &mockClient{records: []types.Record{{"id": 1, "account_id": "1"}}}

	result, err := newSyncService(store, notifier).RunCycle(context.Background(), newTangerine(t, client), "r")
	require.NoError(t, err)
	assert.Equal(t, 1, result.New)
}

// expiringStore lists a key whose payload has already expired
type expiringStore struct {
	*storage.SnapshotStore
}

func (s expiringStore) ListKeys(context.Context, string) ([]string, error) {
	return []string{"scrape:tangerine:2017-11-09T12:00:00.000000"}, nil
}

func (s expiringStore) Get(context.Context, string) (*storage.Snapshot, error) {
	return nil, storage.ErrNotFound
}

func TestRunCycle_ExpiredPayloadDegradesToEmpty(t *testing.T) {
	store, _ := setupTestSnapshotStore(t)
	notifier := &recordingNotifier{}
	client := &mockClient{records: []types.Record{{"id": 1, "account_id": "1"}}}

	result, err := newSyncService(expiringStore{store}, notifier).RunCycle(context.Background(), newTangerine(t, client), "r")
	require.NoError(t, err)
	assert.Equal(t, 1, result.New)
	assert.Equal(t, time.Date(2017, 11, 9, 12, 0, 0, 0, time.UTC), client.from)
}

func TestRunCycle_FetchFailureWritesNothing(t *testing.T) {
	store, _ := setupTestSnapshotStore(t)
	notifier := &recordingNotifier{}
	boom := errors.New("gateway timeout")
	client := &mockClient{err: boom}
	ctx := context.Background()

	_, err := newSyncService(store, notifier).RunCycle(ctx, newTangerine(t, client), "r")
	require.ErrorIs(t, err, boom)

	keys, err := store.ListKeys(ctx, "scrape:tangerine")
	require.NoError(t, err)
	assert.Empty(t, keys)
	assert.Equal(t, 0, notifier.count())
	assert.Equal(t, 1, client.closed)
}

func TestRunCycle_StoreUnavailable(t *testing.T) {
	store, mr := setupTestSnapshotStore(t)
	notifier := &recordingNotifier{}
	client := &mockClient{records: []types.Record{{"id": 1}}}
	mr.Close()

	_, err := newSyncService(store, notifier).RunCycle(context.Background(), newTangerine(t, client), "r")
	require.Error(t, err)
	assert.True(t, apperrors.IsStoreUnavailable(err))
	assert.Equal(t, 0, client.calls)
	assert.Equal(t, 0, notifier.count())
}

func TestRunCycle_DateFieldAdaptsNotificationOnly(t *testing.T) {
	store, _ := setupTestSnapshotStore(t)
	notifier := &recordingNotifier{}
	client := &mockClient{records: []types.Record{{"id": 1, "account_id": "1", "posted_date": "2017-11-10"}}}

	src, err := source.NewMultiAccount(client, source.Options{Name: "tangerine", DateField: "posted_date"})
	require.NoError(t, err)
	ctx := context.Background()

	result, err := newSyncService(store, notifier).RunCycle(ctx, src, "r")
	require.NoError(t, err)

	require.Equal(t, 1, notifier.count())
	assert.Equal(t, "2017-11-10", notifier.notifications[0].Accounts[0].Records[0]["date"])

	written, err := store.Get(ctx, result.SnapshotKey)
	require.NoError(t, err)
	_, ok := written.Payload[0]["date"]
	assert.False(t, ok)
}

func TestRunCycle_NotifierFailureKeepsSnapshot(t *testing.T) {
	store, _ := setupTestSnapshotStore(t)
	notifier := &recordingNotifier{err: errors.New("smtp down")}
	client := &mockClient{records: []types.Record{{"id": 1, "account_id": "1"}}}
	ctx := context.Background()

	result, err := newSyncService(store, notifier).RunCycle(ctx, newTangerine(t, client), "r")
	require.Error(t, err)
	require.NotNil(t, result)
	assert.False(t, result.Notified)

	keys, err := store.ListKeys(ctx, "scrape:tangerine")
	require.NoError(t, err)
	assert.Len(t, keys, 1)
}
