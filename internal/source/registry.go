package source

import (
	"sort"
	"strings"

	"github.com/ledger-sync/internal/config"
	apperrors "github.com/ledger-sync/internal/errors"
)

// Built-in source kinds
const (
	KindMultiAccount  = "multi_account"
	KindSingleAccount = "single_account"
)

// Constructor builds a source around a client
type Constructor func(client Client, opts Options) (Source, error)

type registration struct {
	build    Constructor
	defaults Options
}

// Registry maps configured source kinds to constructors
type Registry struct {
	kinds map[string]registration
}

// NewRegistry returns a registry holding the built-in kinds and bank aliases
func NewRegistry() *Registry {
	r := &Registry{kinds: make(map[string]registration)}

	multi := func(client Client, opts Options) (Source, error) { return NewMultiAccount(client, opts) }
	single := func(client Client, opts Options) (Source, error) { return NewSingleAccount(client, opts) }

	r.Register(KindMultiAccount, multi, Options{})
	r.Register(KindSingleAccount, single, Options{})
	r.Register("tangerine", multi, Options{GroupField: DefaultGroupField, DateField: "posted_date"})
	r.Register("rogersbank", single, Options{})

	return r
}

// Register adds a kind. defaults fill options the job leaves empty.
func (r *Registry) Register(kind string, build Constructor, defaults Options) {
	r.kinds[strings.ToLower(kind)] = registration{build: build, defaults: defaults}
}

// Supports reports whether kind is registered
func (r *Registry) Supports(kind string) bool {
	_, ok := r.kinds[strings.ToLower(kind)]
	return ok
}

// Kinds returns the registered kinds in sorted order
func (r *Registry) Kinds() []string {
	kinds := make([]string, 0, len(r.kinds))
	for kind := range r.kinds {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}

// Build constructs the source described by cfg. Unknown kinds fail with
// UnsupportedSource before the client is used.
func (r *Registry) Build(cfg config.SourceConfig, client Client) (Source, error) {
	reg, ok := r.kinds[strings.ToLower(cfg.Kind)]
	if !ok {
		return nil, apperrors.NewUnsupportedSourceError(cfg.Kind)
	}

	opts := Options{
		Name:       cfg.Name,
		KeyPrefix:  cfg.KeyPrefix,
		AccountIDs: cfg.AccountIDs,
		GroupField: cfg.GroupField,
		DateField:  cfg.DateField,
	}
	if opts.Name == "" {
		opts.Name = strings.ToLower(cfg.Kind)
	}
	if opts.GroupField == "" {
		opts.GroupField = reg.defaults.GroupField
	}
	if opts.DateField == "" {
		opts.DateField = reg.defaults.DateField
	}

	return reg.build(client, opts)
}
