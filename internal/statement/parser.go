// Package statement turns raw statement documents into models.Statement.
package statement

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/ledger-sync/internal/errors"
	"github.com/ledger-sync/internal/models"
	"github.com/shopspring/decimal"
)

// Parser produces a structured statement from a raw blob
type Parser interface {
	Parse(raw []byte) (*models.Statement, error)
}

// dateLayouts are tried in order for every date field
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"20060102150405",
	"20060102",
}

// JSONParser parses the JSON statement document exported by the bank gateway.
type JSONParser struct{}

// NewJSONParser creates a new JSON statement parser
func NewJSONParser() *JSONParser {
	return &JSONParser{}
}

type rawStatement struct {
	Accounts []rawAccount `json:"accounts"`
}

type rawAccount struct {
	AccountID     string           `json:"account_id"`
	BranchID      string           `json:"branch_id"`
	Currency      string           `json:"currency"`
	Institution   string           `json:"institution"`
	Number        string           `json:"number"`
	RoutingNumber string           `json:"routing_number"`
	Type          string           `json:"type"`
	Balance       decimal.Decimal  `json:"balance"`
	BalanceDate   string           `json:"balance_date"`
	Transactions  []rawTransaction `json:"transactions"`
}

type rawTransaction struct {
	ID     json.RawMessage `json:"id"`
	Amount decimal.Decimal `json:"amount"`
	Date   string          `json:"date"`
	Memo   string          `json:"memo"`
	Payee  string          `json:"payee"`
	Type   string          `json:"type"`
}

// Parse implements Parser
func (p *JSONParser) Parse(raw []byte) (*models.Statement, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, apperrors.NewInvalidStatementError("empty document", nil)
	}

	var doc rawStatement
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, apperrors.NewInvalidStatementError("malformed JSON", err)
	}
	if len(doc.Accounts) == 0 {
		return nil, apperrors.NewInvalidStatementError("no accounts", nil)
	}

	stmt := &models.Statement{Accounts: make([]models.StatementAccount, 0, len(doc.Accounts))}
	for i, ra := range doc.Accounts {
		if ra.AccountID == "" && ra.Number == "" {
			return nil, apperrors.NewInvalidStatementError(fmt.Sprintf("account %d has neither account_id nor number", i), nil)
		}

		// A missing balance date is left zero; the importer stamps import time.
		var balanceDate time.Time
		if strings.TrimSpace(ra.BalanceDate) != "" {
			parsed, err := parseDate(ra.BalanceDate)
			if err != nil {
				return nil, apperrors.NewInvalidStatementError(fmt.Sprintf("account %d balance_date", i), err)
			}
			balanceDate = parsed
		}

		acct := models.StatementAccount{
			AccountID:            ra.AccountID,
			BranchID:             ra.BranchID,
			Currency:             strings.ToUpper(ra.Currency),
			FinancialInstitution: ra.Institution,
			Number:               ra.Number,
			RoutingNumber:        ra.RoutingNumber,
			Type:                 ra.Type,
			Balance:              ra.Balance,
			BalanceDate:          balanceDate,
			Transactions:         make([]models.StatementTransaction, 0, len(ra.Transactions)),
		}

		for j, rt := range ra.Transactions {
			date, err := parseDate(rt.Date)
			if err != nil {
				return nil, apperrors.NewInvalidStatementError(fmt.Sprintf("account %d transaction %d date", i, j), err)
			}
			acct.Transactions = append(acct.Transactions, models.StatementTransaction{
				ID:     rawID(rt.ID),
				Amount: rt.Amount,
				Date:   date,
				Memo:   rt.Memo,
				Payee:  rt.Payee,
				Type:   rt.Type,
			})
		}

		stmt.Accounts = append(stmt.Accounts, acct)
	}

	return stmt, nil
}

// rawID accepts ids encoded either as JSON strings or numbers
func rawID(msg json.RawMessage) string {
	if len(msg) == 0 || string(msg) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(msg, &s); err == nil {
		return s
	}
	return string(msg)
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("missing date")
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date format: %q", s)
}
