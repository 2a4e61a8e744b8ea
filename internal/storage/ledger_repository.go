package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/ledger-sync/internal/models"
)

// LedgerRepository persists content-addressed accounts and transactions
type LedgerRepository struct {
	db *PostgresDB
}

// NewLedgerRepository creates a new ledger repository
func NewLedgerRepository(db *PostgresDB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// GetAccount retrieves an account by its identity
func (r *LedgerRepository) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	query := `
		SELECT id, account_id, branch_id, currency, financial_institution, number,
		       routing_number, type, name, history, created_at, updated_at
		FROM accounts
		WHERE id = $1
	`

	var account models.Account
	var historyJSON []byte

	err := r.db.Pool().QueryRow(ctx, query, id).Scan(
		&account.ID,
		&account.AccountID,
		&account.BranchID,
		&account.Currency,
		&account.FinancialInstitution,
		&account.Number,
		&account.RoutingNumber,
		&account.Type,
		&account.Name,
		&historyJSON,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("account %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	if len(historyJSON) > 0 {
		if err := json.Unmarshal(historyJSON, &account.History); err != nil {
			return nil, fmt.Errorf("failed to unmarshal history: %w", err)
		}
	}
	if account.History == nil {
		account.History = []models.BalanceObservation{}
	}

	return &account, nil
}

// CreateAccount inserts an account unless one with the same identity
// exists. It reports whether this call inserted the row.
func (r *LedgerRepository) CreateAccount(ctx context.Context, account *models.Account) (bool, error) {
	now := time.Now().UTC()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	account.UpdatedAt = account.CreatedAt

	historyJSON, err := marshalHistory(account.History)
	if err != nil {
		return false, err
	}

	query := `
		INSERT INTO accounts (
			id, account_id, branch_id, currency, financial_institution, number,
			routing_number, type, name, history, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO NOTHING
	`

	tag, err := r.db.Pool().Exec(ctx, query,
		account.ID,
		account.AccountID,
		account.BranchID,
		account.Currency,
		account.FinancialInstitution,
		account.Number,
		account.RoutingNumber,
		account.Type,
		account.Name,
		historyJSON,
		account.CreatedAt,
		account.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to create account: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

// UpdateAccount replaces the mutable fields of an account (name and history)
func (r *LedgerRepository) UpdateAccount(ctx context.Context, account *models.Account) error {
	account.UpdatedAt = time.Now().UTC()

	historyJSON, err := marshalHistory(account.History)
	if err != nil {
		return err
	}

	query := `
		UPDATE accounts
		SET name = $2, history = $3, updated_at = $4
		WHERE id = $1
	`

	tag, err := r.db.Pool().Exec(ctx, query, account.ID, account.Name, historyJSON, account.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("account %s: %w", account.ID, ErrNotFound)
	}

	return nil
}

// TransactionExists reports whether a transaction with this identity is stored
func (r *LedgerRepository) TransactionExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := r.db.Pool().QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM transactions WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check transaction: %w", err)
	}
	return exists, nil
}

// CreateTransaction inserts a transaction unless its identity is already
// stored. It reports whether this call inserted the row.
func (r *LedgerRepository) CreateTransaction(ctx context.Context, txn *models.Transaction) (bool, error) {
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO transactions (id, account_id, amount, date, memo, name, type, checksum, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING
	`

	tag, err := r.db.Pool().Exec(ctx, query,
		txn.ID,
		txn.AccountID,
		txn.Amount,
		txn.Date,
		txn.Memo,
		txn.Name,
		txn.Type,
		txn.Checksum,
		txn.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to create transaction: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

// ListTransactions returns an account's transactions ordered by date
func (r *LedgerRepository) ListTransactions(ctx context.Context, accountID string) ([]*models.Transaction, error) {
	query := `
		SELECT id, account_id, amount, date, memo, name, type, checksum, created_at
		FROM transactions
		WHERE account_id = $1
		ORDER BY date, id
	`

	rows, err := r.db.Pool().Query(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	transactions := make([]*models.Transaction, 0)
	for rows.Next() {
		var txn models.Transaction
		if err := rows.Scan(
			&txn.ID,
			&txn.AccountID,
			&txn.Amount,
			&txn.Date,
			&txn.Memo,
			&txn.Name,
			&txn.Type,
			&txn.Checksum,
			&txn.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		transactions = append(transactions, &txn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transactions: %w", err)
	}

	return transactions, nil
}

func marshalHistory(history []models.BalanceObservation) ([]byte, error) {
	if history == nil {
		history = []models.BalanceObservation{}
	}
	data, err := json.Marshal(history)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal history: %w", err)
	}
	return data, nil
}
