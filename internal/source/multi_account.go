package source

import (
	"context"
	"fmt"
	"time"

	"github.com/ledger-sync/internal/types"
)

// MultiAccount fetches a date window across several accounts and groups
// new records by an account field.
type MultiAccount struct {
	client Client
	opts   Options
}

// NewMultiAccount creates a multi-account source. An empty account list
// means every account the gateway exposes.
func NewMultiAccount(client Client, opts Options) (*MultiAccount, error) {
	if client == nil {
		return nil, fmt.Errorf("multi-account source %q: client is required", opts.Name)
	}
	if opts.Name == "" {
		return nil, fmt.Errorf("multi-account source: name is required")
	}
	if opts.GroupField == "" {
		opts.GroupField = DefaultGroupField
	}
	return &MultiAccount{client: client, opts: opts}, nil
}

// Name implements Source
func (s *MultiAccount) Name() string { return s.opts.Name }

// KeyPrefix implements Source
func (s *MultiAccount) KeyPrefix() string { return s.opts.keyPrefix() }

// DateField implements Source
func (s *MultiAccount) DateField() string { return s.opts.DateField }

// FetchWindow implements Source
func (s *MultiAccount) FetchWindow(ctx context.Context, from, to time.Time) ([]types.Record, error) {
	return withSession(ctx, s.client, func() ([]types.Record, error) {
		return s.client.ListTransactions(ctx, s.opts.AccountIDs, from, to)
	})
}

// GroupByAccount groups records by the configured field, keeping groups in
// order of first appearance and records in input order.
func (s *MultiAccount) GroupByAccount(records []types.Record) []types.AccountDelta {
	groups := make([]types.AccountDelta, 0)
	index := make(map[string]int)

	for _, record := range records {
		accountID := record.String(s.opts.GroupField)
		i, ok := index[accountID]
		if !ok {
			i = len(groups)
			index[accountID] = i
			groups = append(groups, types.AccountDelta{AccountID: accountID})
		}
		groups[i].Records = append(groups[i].Records, record)
	}

	return groups
}
