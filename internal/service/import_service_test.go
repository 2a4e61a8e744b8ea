package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	apperrors "github.com/ledger-sync/internal/errors"
	"github.com/ledger-sync/internal/models"
	"github.com/ledger-sync/internal/statement"
	"github.com/ledger-sync/internal/storage"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryLedger is an in-memory LedgerStore
type memoryLedger struct {
	accounts     map[string]*models.Account
	transactions map[string]*models.Transaction

	getErr      error
	createCalls int
	lostRace    bool
}

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{
		accounts:     make(map[string]*models.Account),
		transactions: make(map[string]*models.Transaction),
	}
}

func (m *memoryLedger) GetAccount(_ context.Context, id string) (*models.Account, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	account, ok := m.accounts[id]
	if !ok {
		return nil, fmt.Errorf("account %s: %w", id, storage.ErrNotFound)
	}
	copied := *account
	copied.History = append([]models.BalanceObservation(nil), account.History...)
	return &copied, nil
}

func (m *memoryLedger) CreateAccount(_ context.Context, account *models.Account) (bool, error) {
	m.createCalls++
	if _, ok := m.accounts[account.ID]; ok {
		return false, nil
	}
	copied := *account
	m.accounts[account.ID] = &copied
	return true, nil
}

func (m *memoryLedger) UpdateAccount(_ context.Context, account *models.Account) error {
	if _, ok := m.accounts[account.ID]; !ok {
		return storage.ErrNotFound
	}
	copied := *account
	m.accounts[account.ID] = &copied
	return nil
}

func (m *memoryLedger) TransactionExists(_ context.Context, id string) (bool, error) {
	_, ok := m.transactions[id]
	return ok, nil
}

func (m *memoryLedger) CreateTransaction(_ context.Context, txn *models.Transaction) (bool, error) {
	if m.lostRace {
		return false, nil
	}
	if _, ok := m.transactions[txn.ID]; ok {
		return false, nil
	}
	m.transactions[txn.ID] = txn
	return true, nil
}

func sampleStatement() *models.Statement {
	date := time.Date(2017, 11, 1, 7, 17, 3, 0, time.UTC)
	return &models.Statement{Accounts: []models.StatementAccount{{
		AccountID:   "12345",
		Currency:    "CAD",
		Number:      "XXXX1670",
		Type:        "CHECKING",
		Balance:     decimal.RequireFromString("1200.50"),
		BalanceDate: time.Date(2017, 11, 10, 0, 0, 0, 0, time.UTC),
		Transactions: []models.StatementTransaction{
			{ID: "1", Amount: decimal.RequireFromString("-55.54"), Date: date, Memo: "BUY STUFF", Payee: "STORE", Type: "debit"},
			{ID: "2", Amount: decimal.RequireFromString("1500"), Date: date, Memo: "PAYROLL", Payee: "ACME", Type: "credit"},
		},
	}}}
}

func newImportService(store LedgerStore) *ImportService {
	svc := NewImportService(store, statement.NewJSONParser(), testLogger())
	svc.SetClock(func() time.Time { return fixedNow })
	return svc
}

func TestImport_CreatesAccountAndTransactions(t *testing.T) {
	ledger := newMemoryLedger()
	svc := newImportService(ledger)

	result, err := svc.Import(context.Background(), sampleStatement())
	require.NoError(t, err)

	assert.Equal(t, 1, result.AccountsCreated)
	assert.Equal(t, 1, result.AccountsUpdated)
	assert.Equal(t, 2, result.TransactionsImported)
	assert.Equal(t, 0, result.TransactionsSkipped)

	accountID := sampleStatement().Accounts[0].Identity()
	assert.Equal(t, []string{accountID}, result.AccountIDs)

	account := ledger.accounts[accountID]
	require.NotNil(t, account)
	assert.Equal(t, "XXXX1670", account.Name)
	require.Len(t, account.History, 1)
	assert.True(t, decimal.RequireFromString("1200.50").Equal(account.History[0].Balance))

	for _, id := range result.ImportedIDs {
		txn := ledger.transactions[id]
		require.NotNil(t, txn)
		assert.Equal(t, accountID, txn.AccountID)
		assert.Contains(t, []string{models.TransactionTypeCredit, models.TransactionTypeDebit}, txn.Type)
	}
}

func TestImport_IsIdempotent(t *testing.T) {
	ledger := newMemoryLedger()
	svc := newImportService(ledger)
	ctx := context.Background()

	_, err := svc.Import(ctx, sampleStatement())
	require.NoError(t, err)
	transactionsAfterFirst := len(ledger.transactions)

	result, err := svc.Import(ctx, sampleStatement())
	require.NoError(t, err)

	assert.Equal(t, 0, result.AccountsCreated)
	assert.Equal(t, 0, result.TransactionsImported)
	assert.Equal(t, 2, result.TransactionsSkipped)
	assert.Equal(t, transactionsAfterFirst, len(ledger.transactions))
	assert.Len(t, ledger.accounts, 1)

	// History grows by one observation per import.
	account := ledger.accounts[sampleStatement().Accounts[0].Identity()]
	assert.Len(t, account.History, 2)
}

func TestImport_LookupFailureAborts(t *testing.T) {
	ledger := newMemoryLedger()
	ledger.getErr = errors.New("connection refused")

	_, err := newImportService(ledger).Import(context.Background(), sampleStatement())
	require.Error(t, err)
	assert.True(t, apperrors.IsStoreUnavailable(err))
	assert.Equal(t, 0, ledger.createCalls)
	assert.Empty(t, ledger.transactions)
}

func TestImport_ConcurrentInsertCountsAsSkipped(t *testing.T) {
	ledger := newMemoryLedger()
	ledger.lostRace = true

	result, err := newImportService(ledger).Import(context.Background(), sampleStatement())
	require.NoError(t, err)
	assert.Equal(t, 0, result.TransactionsImported)
	assert.Equal(t, 2, result.TransactionsSkipped)
}

func TestImport_MissingBalanceDateUsesImportTime(t *testing.T) {
	ledger := newMemoryLedger()
	stmt := sampleStatement()
	stmt.Accounts[0].BalanceDate = time.Time{}

	_, err := newImportService(ledger).Import(context.Background(), stmt)
	require.NoError(t, err)

	account := ledger.accounts[stmt.Accounts[0].Identity()]
	assert.Equal(t, fixedNow, account.History[0].DateTime)
}

func TestImport_NilStatement(t *testing.T) {
	_, err := newImportService(newMemoryLedger()).Import(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsUserError(err))
}

func TestImportRaw(t *testing.T) {
	raw, err := os.ReadFile("../statement/testdata/statement.json")
	require.NoError(t, err)

	ledger := newMemoryLedger()
	svc := newImportService(ledger)

	result, err := svc.ImportRaw(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, 2, result.TransactionsImported)

	result, err = svc.ImportRaw(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, 2, result.TransactionsSkipped)

	_, err = svc.ImportRaw(context.Background(), []byte(`{"accounts": "nope"}`))
	require.Error(t, err)
	assert.Equal(t, 400, apperrors.GetHTTPStatusCode(err))
}
