// Package types provides common type definitions for the ledger sync system.
package types

import (
	"encoding/json"
	"fmt"
)

// JobType identifies what a scheduled job does
type JobType string

const (
	// JobNotifyTransactions runs a snapshot-diff cycle and notifies new records
	JobNotifyTransactions JobType = "notify_transactions"
	// JobUploadStatement downloads statements and posts them to import targets
	JobUploadStatement JobType = "upload_statement"
)

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}

// Record is one transaction-like record as returned by a fetch collaborator.
// Its structure is owned by the source; the sync cycle only compares records
// structurally and reads the account field when grouping.
type Record map[string]interface{}

// Fingerprint returns the canonical JSON encoding of the record. Map keys are
// sorted by encoding/json, so two records with the same fields and values
// always share a fingerprint.
func (r Record) Fingerprint() (string, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("failed to encode record: %w", err)
	}
	return string(b), nil
}

// String returns the value of field as a string, or "" when absent.
func (r Record) String(field string) string {
	v, ok := r[field]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	if f, ok := v.(float64); ok && f == float64(int64(f)) {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprint(v)
}

// Clone returns a shallow copy of the record
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// NormalizeRecords round-trips records through JSON so that values have the
// same Go types they will have after being read back from the snapshot store
// (numbers become float64, nested objects become maps).
func NormalizeRecords(records []Record) ([]Record, error) {
	if records == nil {
		return []Record{}, nil
	}
	b, err := json.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("failed to encode records: %w", err)
	}
	var out []Record
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("failed to decode records: %w", err)
	}
	if out == nil {
		out = []Record{}
	}
	return out, nil
}

// AccountDelta is the ordered list of new records for one account
type AccountDelta struct {
	AccountID string   `json:"accountId"`
	Records   []Record `json:"records"`
}

// TotalRecords counts records across all groups
func TotalRecords(groups []AccountDelta) int {
	n := 0
	for _, g := range groups {
		n += len(g.Records)
	}
	return n
}

// ByAccount flattens groups into a mapping of account id to records
func ByAccount(groups []AccountDelta) map[string][]Record {
	out := make(map[string][]Record, len(groups))
	for _, g := range groups {
		out[g.AccountID] = append(out[g.AccountID], g.Records...)
	}
	return out
}
