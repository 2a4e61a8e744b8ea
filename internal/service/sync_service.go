// Package service implements the sync cycle, the statement importer and the
// statement fan-out to downstream ledgers.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/ledger-sync/internal/errors"
	"github.com/ledger-sync/internal/logging"
	"github.com/ledger-sync/internal/notify"
	"github.com/ledger-sync/internal/source"
	"github.com/ledger-sync/internal/storage"
	"github.com/ledger-sync/internal/types"
)

// SnapshotStore interface for snapshot operations
type SnapshotStore interface {
	ListKeys(ctx context.Context, prefix string) ([]string, error)
	Get(ctx context.Context, key string) (*storage.Snapshot, error)
	Put(ctx context.Context, prefix string, ts time.Time, payload []types.Record) (*storage.Snapshot, error)
}

// CycleResult describes one completed sync cycle
type CycleResult struct {
	RunID       string               `json:"runId"`
	Source      string               `json:"source"`
	PreviousKey string               `json:"previousKey,omitempty"`
	SnapshotKey string               `json:"snapshotKey"`
	From        time.Time            `json:"from"`
	To          time.Time            `json:"to"`
	Previous    int                  `json:"previous"`
	Current     int                  `json:"current"`
	New         int                  `json:"new"`
	Accounts    []types.AccountDelta `json:"accounts"`
	Notified    bool                 `json:"notified"`
}

// SyncService runs snapshot-diff cycles: fetch everything visible, store it
// as a new snapshot, and notify only what the previous snapshot lacked.
type SyncService struct {
	store    SnapshotStore
	notifier notify.Notifier
	logger   *logging.Logger
	now      func() time.Time
}

// NewSyncService creates a new sync service
func NewSyncService(store SnapshotStore, notifier notify.Notifier, logger *logging.Logger) *SyncService {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &SyncService{
		store:    store,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// SetClock replaces the cycle clock
func (s *SyncService) SetClock(now func() time.Time) {
	s.now = now
}

// DefaultWindow returns the bootstrap window for now: the start of
// yesterday to the start of tomorrow, in UTC.
func DefaultWindow(now time.Time) (from, to time.Time) {
	day := truncateDay(now.UTC())
	return day.AddDate(0, 0, -1), day.AddDate(0, 0, 1)
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// RunCycle runs one sync cycle for src. Fetch errors are returned unchanged
// and leave the store untouched.
func (s *SyncService) RunCycle(ctx context.Context, src source.Source, recipient string) (*CycleResult, error) {
	now := s.now().UTC()
	prefix := src.KeyPrefix()
	from, to := DefaultWindow(now)

	result := &CycleResult{
		RunID:  uuid.New().String(),
		Source: src.Name(),
		To:     to,
	}
	logger := s.logger.WithFields(map[string]interface{}{
		"run_id": result.RunID,
		"source": src.Name(),
		"prefix": prefix,
	})
	ctx = logging.WithLogger(ctx, logger)

	keys, err := s.store.ListKeys(ctx, prefix)
	if err != nil {
		return nil, asStoreUnavailable(err, "list snapshots")
	}

	previous := []types.Record{}
	if len(keys) > 0 {
		key := keys[len(keys)-1]
		result.PreviousKey = key

		ts, err := storage.ParseKey(prefix, key)
		if err != nil {
			logger.WithError(err).WithField("key", key).Warn("Could not process snapshot key, treating previous snapshot as empty")
		} else {
			from = ts
			previous, err = s.loadPrevious(ctx, key)
			if err != nil {
				return nil, err
			}
		}
	}
	result.From = from
	result.Previous = len(previous)

	logger.WithFields(map[string]interface{}{
		"from": from.Format(time.RFC3339),
		"to":   to.Format(time.RFC3339),
	}).Info("Fetching records")

	fetched, err := src.FetchWindow(ctx, from, to)
	if err != nil {
		return nil, err
	}
	current, err := types.NormalizeRecords(fetched)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize fetched records: %w", err)
	}
	result.Current = len(current)

	added := Delta(previous, current)
	result.New = len(added)

	snapshot, err := s.store.Put(ctx, prefix, now, current)
	if err != nil {
		if errors.Is(err, storage.ErrSnapshotExists) {
			return nil, fmt.Errorf("failed to store snapshot: %w", err)
		}
		return nil, asStoreUnavailable(err, "put snapshot")
	}
	result.SnapshotKey = snapshot.Key

	groups := src.GroupByAccount(added)
	result.Accounts = adaptGroups(groups, src.DateField())

	if types.TotalRecords(result.Accounts) == 0 {
		logger.WithField("snapshot", snapshot.Key).Info("No new records")
		return result, nil
	}

	err = s.notifier.Notify(ctx, notify.Notification{
		RunID:     result.RunID,
		Source:    src.Name(),
		Recipient: recipient,
		Accounts:  result.Accounts,
	})
	if err != nil {
		return result, fmt.Errorf("failed to notify new records: %w", err)
	}
	result.Notified = true

	logger.WithFields(map[string]interface{}{
		"snapshot": snapshot.Key,
		"new":      result.New,
		"accounts": len(result.Accounts),
	}).Info("Notified new records")

	return result, nil
}

// loadPrevious reads the previous payload. Missing or unreadable payloads
// degrade to an empty set; an unreachable store does not.
func (s *SyncService) loadPrevious(ctx context.Context, key string) ([]types.Record, error) {
	logger := logging.FromContext(ctx).WithField("key", key)

	snapshot, err := s.store.Get(ctx, key)
	switch {
	case err == nil:
		return snapshot.Payload, nil
	case errors.Is(err, storage.ErrNotFound):
		logger.Warn("Previous snapshot expired, treating it as empty")
		return []types.Record{}, nil
	case errors.Is(err, storage.ErrCorruptSnapshot):
		logger.WithError(err).Warn("Previous snapshot is unreadable, treating it as empty")
		return []types.Record{}, nil
	default:
		return nil, asStoreUnavailable(err, "get snapshot")
	}
}

// Delta returns the records of current that do not appear in previous,
// in current's order. Records are equal when every field matches.
func Delta(previous, current []types.Record) []types.Record {
	seen := make(map[string]struct{}, len(previous))
	for _, record := range previous {
		if fp, err := record.Fingerprint(); err == nil {
			seen[fp] = struct{}{}
		}
	}

	added := make([]types.Record, 0)
	for _, record := range current {
		fp, err := record.Fingerprint()
		if err == nil {
			if _, ok := seen[fp]; ok {
				continue
			}
		}
		added = append(added, record)
	}
	return added
}

// adaptGroups copies records for notification, filling "date" from
// dateField when the source declares one.
func adaptGroups(groups []types.AccountDelta, dateField string) []types.AccountDelta {
	if dateField == "" || dateField == "date" {
		return groups
	}

	adapted := make([]types.AccountDelta, 0, len(groups))
	for _, group := range groups {
		records := make([]types.Record, 0, len(group.Records))
		for _, record := range group.Records {
			copied := record.Clone()
			if v, ok := record[dateField]; ok {
				copied["date"] = v
			}
			records = append(records, copied)
		}
		adapted = append(adapted, types.AccountDelta{AccountID: group.AccountID, Records: records})
	}
	return adapted
}

func asStoreUnavailable(err error, operation string) error {
	if apperrors.IsStoreUnavailable(err) {
		return err
	}
	return apperrors.NewStoreUnavailableError("snapshot", operation, err)
}
