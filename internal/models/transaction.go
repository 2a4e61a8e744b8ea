package models

import (
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Normalized transaction types
const (
	TransactionTypeCredit = "CREDIT"
	TransactionTypeDebit  = "DEBIT"
)

var upper = cases.Upper(language.Und)

// Transaction is an immutable, content-addressed ledger transaction
type Transaction struct {
	ID        string    `json:"id" db:"id"`
	AccountID string    `json:"accountId" db:"account_id"`
	Amount    string    `json:"amount" db:"amount"`
	Date      time.Time `json:"date" db:"date"`
	Memo      string    `json:"memo" db:"memo"`
	Name      string    `json:"name" db:"name"` // payee
	Type      string    `json:"type" db:"type"`
	Checksum  string    `json:"checksum" db:"checksum"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// NormalizeTransactionType maps source-native type tokens onto CREDIT/DEBIT,
// upper-casing anything else.
func NormalizeTransactionType(native string) string {
	switch strings.ToLower(strings.TrimSpace(native)) {
	case "credit":
		return TransactionTypeCredit
	case "debit":
		return TransactionTypeDebit
	default:
		return upper.String(strings.TrimSpace(native))
	}
}
