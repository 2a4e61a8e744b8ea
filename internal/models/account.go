// Package models provides the persistent ledger models and the parsed
// statement structures they are built from.
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// BalanceObservation is one entry of an account's balance history
type BalanceObservation struct {
	DateTime time.Time       `json:"dateTime"`
	Balance  decimal.Decimal `json:"balance"`
}

// Account is a content-addressed ledger account. ID is derived from the
// account's signature fields, so the same real-world account always maps to
// the same row.
type Account struct {
	ID                   string               `json:"id" db:"id"`
	AccountID            string               `json:"accountId" db:"account_id"`
	BranchID             string               `json:"branchId,omitempty" db:"branch_id"`
	Currency             string               `json:"currency" db:"currency"`
	FinancialInstitution string               `json:"financialInstitution,omitempty" db:"financial_institution"`
	Number               string               `json:"number" db:"number"`
	RoutingNumber        string               `json:"routingNumber,omitempty" db:"routing_number"`
	Type                 string               `json:"type" db:"type"`
	Name                 string               `json:"name" db:"name"`
	History              []BalanceObservation `json:"history" db:"history"`
	CreatedAt            time.Time            `json:"createdAt" db:"created_at"`
	UpdatedAt            time.Time            `json:"updatedAt" db:"updated_at"`
}

// AppendBalance records a balance observation at the end of the history
func (a *Account) AppendBalance(at time.Time, balance decimal.Decimal) {
	a.History = append(a.History, BalanceObservation{DateTime: at, Balance: balance})
}

// LatestBalance returns the most recent balance observation, if any
func (a *Account) LatestBalance() (BalanceObservation, bool) {
	if len(a.History) == 0 {
		return BalanceObservation{}, false
	}
	return a.History[len(a.History)-1], true
}
