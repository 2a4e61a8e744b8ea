package source

import (
	"context"
	"fmt"
	"time"

	"github.com/ledger-sync/internal/types"
)

// SingleAccount reads the recent activity of exactly one account. The
// gateway decides how far back "recent" reaches, so the window is ignored.
type SingleAccount struct {
	client    Client
	opts      Options
	accountID string
}

// NewSingleAccount creates a single-account source bound to the one
// configured account id.
func NewSingleAccount(client Client, opts Options) (*SingleAccount, error) {
	if client == nil {
		return nil, fmt.Errorf("single-account source %q: client is required", opts.Name)
	}
	if opts.Name == "" {
		return nil, fmt.Errorf("single-account source: name is required")
	}
	if len(opts.AccountIDs) != 1 {
		return nil, fmt.Errorf("single-account source %q: exactly one account id is required, got %d", opts.Name, len(opts.AccountIDs))
	}
	return &SingleAccount{client: client, opts: opts, accountID: opts.AccountIDs[0]}, nil
}

// Name implements Source
func (s *SingleAccount) Name() string { return s.opts.Name }

// KeyPrefix implements Source
func (s *SingleAccount) KeyPrefix() string { return s.opts.keyPrefix() }

// DateField implements Source
func (s *SingleAccount) DateField() string { return s.opts.DateField }

// FetchWindow implements Source
func (s *SingleAccount) FetchWindow(ctx context.Context, _, _ time.Time) ([]types.Record, error) {
	return withSession(ctx, s.client, func() ([]types.Record, error) {
		return s.client.RecentActivity(ctx)
	})
}

// GroupByAccount attributes every record to the configured account
func (s *SingleAccount) GroupByAccount(records []types.Record) []types.AccountDelta {
	if len(records) == 0 {
		return []types.AccountDelta{}
	}
	return []types.AccountDelta{{AccountID: s.accountID, Records: records}}
}
