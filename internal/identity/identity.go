// Package identity derives deterministic identifiers and checksums for
// financial entities from a fixed, ordered list of signature fields.
//
// Identifiers are storage keys: any change to a field list or to the value
// coercion rules below changes every identifier previously written.
package identity

import (
	"crypto/sha1" // #nosec G505 - identity key, not a security boundary
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ChecksumPrefix tags the hash algorithm used for checksums
const ChecksumPrefix = "sha256:"

// AccountFields is the signature of an account
var AccountFields = []string{
	"account_id",
	"branch_id",
	"currency",
	"financial_institution",
	"number",
	"routing_number",
	"type",
}

// TransactionFields is the signature of a transaction
var TransactionFields = []string{"amount", "date", "memo", "payee", "type", "id"}

// Signable exposes the raw value of a named signature field.
type Signable interface {
	SignatureValue(field string) (interface{}, bool)
}

// Fields is a generic Signable backed by a map
type Fields map[string]interface{}

// SignatureValue implements Signable
func (f Fields) SignatureValue(field string) (interface{}, bool) {
	v, ok := f[field]
	return v, ok
}

// Signature concatenates the coerced values of fields, in order.
func Signature(r Signable, fields []string) string {
	var sb strings.Builder
	for _, field := range fields {
		v, ok := r.SignatureValue(field)
		if !ok {
			continue
		}
		sb.WriteString(Coerce(v))
	}
	return sb.String()
}

// ID returns the SHA-1 hex digest of the record's signature.
func ID(r Signable, fields []string) string {
	sum := sha1.Sum([]byte(Signature(r, fields))) // #nosec G401
	return hex.EncodeToString(sum[:])
}

// Checksum returns the SHA-256 content stamp of the record's signature.
func Checksum(r Signable, fields []string) string {
	sum := sha256.Sum256([]byte(Signature(r, fields)))
	return ChecksumPrefix + hex.EncodeToString(sum[:])
}

// VerifyChecksum reports whether checksum matches the record's current content.
func VerifyChecksum(r Signable, fields []string, checksum string) bool {
	return Checksum(r, fields) == checksum
}

// Coerce converts a signature value to its string form. nil and empty
// pointers become "".
func Coerce(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case *string:
		if val == nil {
			return ""
		}
		return *val
	case decimal.Decimal:
		return val.String()
	case *decimal.Decimal:
		if val == nil {
			return ""
		}
		return val.String()
	case time.Time:
		if val.IsZero() {
			return ""
		}
		return val.Format(time.RFC3339Nano)
	case *time.Time:
		if val == nil || val.IsZero() {
			return ""
		}
		return val.Format(time.RFC3339Nano)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case uint64:
		return strconv.FormatUint(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case bool:
		return strconv.FormatBool(val)
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}
