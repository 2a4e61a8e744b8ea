package storage

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ledger-sync/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerRepository_AccountLifecycle(t *testing.T) {
	db := setupTestPostgres(t)
	repo := NewLedgerRepository(db)
	ctx := testContext(t)

	id := uuid.New().String()
	_, err := repo.GetAccount(ctx, id)
	require.ErrorIs(t, err, ErrNotFound)

	account := &models.Account{
		ID:        id,
		AccountID: "12345",
		Currency:  "CAD",
		Number:    "XXXX1670",
		Type:      "CHECKING",
		Name:      "XXXX1670",
		History:   []models.BalanceObservation{},
	}

	created, err := repo.CreateAccount(ctx, account)
	require.NoError(t, err)
	assert.True(t, created)

	// First write wins.
	created, err = repo.CreateAccount(ctx, &models.Account{ID: id, Name: "other"})
	require.NoError(t, err)
	assert.False(t, created)

	account.AppendBalance(time.Date(2017, 11, 10, 0, 0, 0, 0, time.UTC), decimal.RequireFromString("100.99"))
	require.NoError(t, repo.UpdateAccount(ctx, account))

	stored, err := repo.GetAccount(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "XXXX1670", stored.Name)
	require.Len(t, stored.History, 1)
	assert.True(t, decimal.RequireFromString("100.99").Equal(stored.History[0].Balance))

	err = repo.UpdateAccount(ctx, &models.Account{ID: uuid.New().String()})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLedgerRepository_TransactionsAreInsertedOnce(t *testing.T) {
	db := setupTestPostgres(t)
	repo := NewLedgerRepository(db)
	ctx := testContext(t)

	accountID := uuid.New().String()
	_, err := repo.CreateAccount(ctx, &models.Account{ID: accountID, AccountID: "1"})
	require.NoError(t, err)

	txn := &models.Transaction{
		ID:        uuid.New().String(),
		AccountID: accountID,
		Amount:    "-55.54",
		Date:      time.Date(2017, 11, 1, 7, 17, 3, 0, time.UTC),
		Memo:      "BUY STUFF",
		Name:      "STORE",
		Type:      models.TransactionTypeDebit,
		Checksum:  "sha256:abc",
	}

	exists, err := repo.TransactionExists(ctx, txn.ID)
	require.NoError(t, err)
	assert.False(t, exists)

	inserted, err := repo.CreateTransaction(ctx, txn)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = repo.CreateTransaction(ctx, txn)
	require.NoError(t, err)
	assert.False(t, inserted)

	exists, err = repo.TransactionExists(ctx, txn.ID)
	require.NoError(t, err)
	assert.True(t, exists)

	list, err := repo.ListTransactions(ctx, accountID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "-55.54", list[0].Amount)
	assert.Equal(t, models.TransactionTypeDebit, list[0].Type)
}
