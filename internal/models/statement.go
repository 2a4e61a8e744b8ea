package models

import (
	"time"

	"github.com/ledger-sync/internal/identity"
	"github.com/shopspring/decimal"
)

// Statement is the structured output of a statement parser
type Statement struct {
	Accounts []StatementAccount `json:"accounts"`
}

// StatementAccount is one account section of a statement
type StatementAccount struct {
	AccountID            string                 `json:"account_id"`
	BranchID             string                 `json:"branch_id,omitempty"`
	Currency             string                 `json:"currency"`
	FinancialInstitution string                 `json:"institution,omitempty"`
	Number               string                 `json:"number"`
	RoutingNumber        string                 `json:"routing_number,omitempty"`
	Type                 string                 `json:"type"`
	Balance              decimal.Decimal        `json:"balance"`
	BalanceDate          time.Time              `json:"balance_date"`
	Transactions         []StatementTransaction `json:"transactions"`
}

// StatementTransaction is one transaction line of a statement account
type StatementTransaction struct {
	ID     string          `json:"id"`
	Amount decimal.Decimal `json:"amount"`
	Date   time.Time       `json:"date"`
	Memo   string          `json:"memo"`
	Payee  string          `json:"payee"`
	Type   string          `json:"type"`
}

// SignatureValue implements identity.Signable
func (a StatementAccount) SignatureValue(field string) (interface{}, bool) {
	switch field {
	case "account_id":
		return a.AccountID, true
	case "branch_id":
		return a.BranchID, true
	case "currency":
		return a.Currency, true
	case "financial_institution":
		return a.FinancialInstitution, true
	case "number":
		return a.Number, true
	case "routing_number":
		return a.RoutingNumber, true
	case "type":
		return a.Type, true
	}
	return nil, false
}

// Identity returns the content-derived account ID
func (a StatementAccount) Identity() string {
	return identity.ID(a, identity.AccountFields)
}

// NewAccount builds an empty-history ledger account for this statement account
func (a StatementAccount) NewAccount(now time.Time) *Account {
	return &Account{
		ID:                   a.Identity(),
		AccountID:            a.AccountID,
		BranchID:             a.BranchID,
		Currency:             a.Currency,
		FinancialInstitution: a.FinancialInstitution,
		Number:               a.Number,
		RoutingNumber:        a.RoutingNumber,
		Type:                 a.Type,
		Name:                 a.Number,
		History:              []BalanceObservation{},
		CreatedAt:            now,
		UpdatedAt:            now,
	}
}

// SignatureValue implements identity.Signable. The type is the source-native
// token, not the normalized one.
func (t StatementTransaction) SignatureValue(field string) (interface{}, bool) {
	switch field {
	case "amount":
		return t.Amount, true
	case "date":
		return t.Date, true
	case "memo":
		return t.Memo, true
	case "payee":
		return t.Payee, true
	case "type":
		return t.Type, true
	case "id":
		return t.ID, true
	}
	return nil, false
}

// Identity returns the content-derived transaction ID
func (t StatementTransaction) Identity() string {
	return identity.ID(t, identity.TransactionFields)
}

// Checksum returns the content integrity stamp
func (t StatementTransaction) Checksum() string {
	return identity.Checksum(t, identity.TransactionFields)
}

// NewTransaction builds the ledger transaction owned by accountID
func (t StatementTransaction) NewTransaction(accountID string, now time.Time) *Transaction {
	return &Transaction{
		ID:        t.Identity(),
		AccountID: accountID,
		Amount:    t.Amount.String(),
		Date:      t.Date,
		Memo:      t.Memo,
		Name:      t.Payee,
		Type:      NormalizeTransactionType(t.Type),
		Checksum:  t.Checksum(),
		CreatedAt: now,
	}
}
