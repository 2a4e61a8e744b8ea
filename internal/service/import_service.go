package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/ledger-sync/internal/errors"
	"github.com/ledger-sync/internal/logging"
	"github.com/ledger-sync/internal/models"
	"github.com/ledger-sync/internal/statement"
	"github.com/ledger-sync/internal/storage"
)

// LedgerStore interface for content-addressed ledger persistence
type LedgerStore interface {
	GetAccount(ctx context.Context, id string) (*models.Account, error)
	CreateAccount(ctx context.Context, account *models.Account) (bool, error)
	UpdateAccount(ctx context.Context, account *models.Account) error
	TransactionExists(ctx context.Context, id string) (bool, error)
	CreateTransaction(ctx context.Context, txn *models.Transaction) (bool, error)
}

// ImportResult summarizes one import call
type ImportResult struct {
	AccountsCreated      int      `json:"accountsCreated"`
	AccountsUpdated      int      `json:"accountsUpdated"`
	TransactionsImported int      `json:"transactionsImported"`
	TransactionsSkipped  int      `json:"transactionsSkipped"`
	AccountIDs           []string `json:"accountIds"`
	ImportedIDs          []string `json:"importedIds"`
}

// ImportService merges parsed statements into the ledger store. Accounts and
// transactions are keyed by content identity, so importing the same
// statement again adds no transactions.
type ImportService struct {
	store  LedgerStore
	parser statement.Parser
	logger *logging.Logger
	now    func() time.Time
}

// NewImportService creates a new import service
func NewImportService(store LedgerStore, parser statement.Parser, logger *logging.Logger) *ImportService {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &ImportService{
		store:  store,
		parser: parser,
		logger: logger,
		now:    time.Now,
	}
}

// SetClock replaces the import clock
func (s *ImportService) SetClock(now func() time.Time) {
	s.now = now
}

// ImportRaw parses raw and imports the resulting statement
func (s *ImportService) ImportRaw(ctx context.Context, raw []byte) (*ImportResult, error) {
	if s.parser == nil {
		return nil, apperrors.NewInternalError("no statement parser configured", nil)
	}
	stmt, err := s.parser.Parse(raw)
	if err != nil {
		return nil, err
	}
	return s.Import(ctx, stmt)
}

// Import merges stmt into the store. It stops at the first store failure;
// work already committed stays committed and a rerun converges.
func (s *ImportService) Import(ctx context.Context, stmt *models.Statement) (*ImportResult, error) {
	if stmt == nil {
		return nil, apperrors.NewInvalidStatementError("statement is empty", nil)
	}

	result := &ImportResult{
		AccountIDs:  make([]string, 0, len(stmt.Accounts)),
		ImportedIDs: make([]string, 0),
	}

	for i := range stmt.Accounts {
		if err := s.importAccount(ctx, &stmt.Accounts[i], result); err != nil {
			return result, err
		}
	}

	s.logger.WithFields(map[string]interface{}{
		"accounts_created":      result.AccountsCreated,
		"accounts_updated":      result.AccountsUpdated,
		"transactions_imported": result.TransactionsImported,
		"transactions_skipped":  result.TransactionsSkipped,
	}).Info("Statement imported")

	return result, nil
}

func (s *ImportService) importAccount(ctx context.Context, sa *models.StatementAccount, result *ImportResult) error {
	now := s.now().UTC()

	account, created, err := s.getOrCreateAccount(ctx, sa, now)
	if err != nil {
		return err
	}
	if created {
		result.AccountsCreated++
	}
	result.AccountIDs = append(result.AccountIDs, account.ID)

	logger := s.logger.WithFields(map[string]interface{}{
		"account": account.ID,
		"number":  account.Number,
	})

	observedAt := sa.BalanceDate
	if observedAt.IsZero() {
		observedAt = now
	}
	account.AppendBalance(observedAt, sa.Balance)
	if err := s.store.UpdateAccount(ctx, account); err != nil {
		return apperrors.NewStoreUnavailableError("ledger", "update account", err)
	}
	result.AccountsUpdated++

	for _, st := range sa.Transactions {
		id := st.Identity()

		exists, err := s.store.TransactionExists(ctx, id)
		if err != nil {
			return apperrors.NewStoreUnavailableError("ledger", "check transaction", err)
		}
		if exists {
			logger.WithError(apperrors.NewDuplicateRecordError("transaction", id)).Info("Transaction already imported, skipping")
			result.TransactionsSkipped++
			continue
		}

		inserted, err := s.store.CreateTransaction(ctx, st.NewTransaction(account.ID, now))
		if err != nil {
			return apperrors.NewStoreUnavailableError("ledger", "create transaction", err)
		}
		if !inserted {
			logger.WithError(apperrors.NewDuplicateRecordError("transaction", id)).Info("Transaction imported concurrently, skipping")
			result.TransactionsSkipped++
			continue
		}

		result.TransactionsImported++
		result.ImportedIDs = append(result.ImportedIDs, id)
	}

	return nil
}

// getOrCreateAccount returns the stored account for sa, creating it with an
// empty history when absent. Lookup failures other than not-found abort.
func (s *ImportService) getOrCreateAccount(ctx context.Context, sa *models.StatementAccount, now time.Time) (*models.Account, bool, error) {
	id := sa.Identity()

	account, err := s.store.GetAccount(ctx, id)
	if err == nil {
		return account, false, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, false, apperrors.NewStoreUnavailableError("ledger", "get account", err)
	}

	inserted, err := s.store.CreateAccount(ctx, sa.NewAccount(now))
	if err != nil {
		return nil, false, apperrors.NewStoreUnavailableError("ledger", "create account", err)
	}

	// Re-read so a concurrent first writer's row wins.
	account, err = s.store.GetAccount(ctx, id)
	if err != nil {
		return nil, false, apperrors.NewStoreUnavailableError("ledger", "get account", fmt.Errorf("after create: %w", err))
	}
	return account, inserted, nil
}
