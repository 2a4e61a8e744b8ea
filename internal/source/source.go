// Package source defines the fetch capability a sync cycle runs against and
// the built-in source variants selected by configuration.
package source

import (
	"context"
	"time"

	"github.com/ledger-sync/internal/types"
)

// DefaultGroupField is the record field multi-account sources group by
const DefaultGroupField = "account_id"

// KeyPrefixBase prefixes the snapshot keys of every source
const KeyPrefixBase = "scrape"

// Session is an authenticated session with a bank gateway. Close must be
// called once the fetch completes, whether it succeeded or not.
type Session interface {
	Close() error
}

// Client is the fetch collaborator used by the built-in sources
type Client interface {
	Login(ctx context.Context) (Session, error)
	ListTransactions(ctx context.Context, accountIDs []string, from, to time.Time) ([]types.Record, error)
	RecentActivity(ctx context.Context) ([]types.Record, error)
}

// Source is the capability a sync cycle needs from a data source
type Source interface {
	// Name identifies the source in logs and notifications
	Name() string
	// KeyPrefix namespaces the source's snapshots
	KeyPrefix() string
	// FetchWindow returns every record visible in [from, to)
	FetchWindow(ctx context.Context, from, to time.Time) ([]types.Record, error)
	// GroupByAccount partitions new records by the account they belong to
	GroupByAccount(records []types.Record) []types.AccountDelta
	// DateField names the record field copied into "date" for notifications;
	// empty means records are notified as fetched
	DateField() string
}

// Options configures a built-in source
type Options struct {
	Name       string
	KeyPrefix  string
	AccountIDs []string
	GroupField string
	DateField  string
}

// DefaultKeyPrefix returns the snapshot key prefix for a source name
func DefaultKeyPrefix(name string) string {
	return KeyPrefixBase + ":" + name
}

func (o Options) keyPrefix() string {
	if o.KeyPrefix != "" {
		return o.KeyPrefix
	}
	return DefaultKeyPrefix(o.Name)
}

// withSession runs fn inside a login session and always releases it
func withSession(ctx context.Context, client Client, fn func() ([]types.Record, error)) (records []types.Record, err error) {
	session, err := client.Login(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := session.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	return fn()
}
