// Package errors defines the categorized error taxonomy used across the
// sync cycle, the importer and the HTTP API.
package errors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/ledger-sync/internal/types"
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	// CategoryStore represents an unreachable snapshot or ledger store
	CategoryStore ErrorCategory = "store"
	// CategorySnapshot represents snapshot key/payload problems
	CategorySnapshot ErrorCategory = "snapshot"
	// CategoryDuplicate represents records that were already ingested
	CategoryDuplicate ErrorCategory = "duplicate"
	// CategoryDownstream represents failures reported by downstream import targets
	CategoryDownstream ErrorCategory = "downstream"
	// CategoryConfig represents configuration errors such as unknown sources
	CategoryConfig ErrorCategory = "config"
	// CategoryNotFound represents not found errors
	CategoryNotFound ErrorCategory = "not_found"
	// CategoryValidation represents validation errors
	CategoryValidation ErrorCategory = "validation"
	// CategorySystem represents everything else
	CategorySystem ErrorCategory = "system"
)

// Error codes
const (
	CodeStoreUnavailable     = "STORE_UNAVAILABLE"
	CodeMalformedSnapshotKey = "MALFORMED_SNAPSHOT_KEY"
	CodeDuplicateRecord      = "DUPLICATE_RECORD"
	CodeDownstreamImport     = "DOWNSTREAM_IMPORT_FAILURE"
	CodeUnsupportedSource    = "UNSUPPORTED_SOURCE"
	CodeNotFound             = "NOT_FOUND"
	CodeInvalidStatement     = "INVALID_STATEMENT"
	CodeInternal             = "INTERNAL_ERROR"
)

// CategorizedError represents an error with category and HTTP status code
type CategorizedError struct {
	Category   ErrorCategory
	StatusCode int
	Code       string
	Message    string
	Details    map[string]interface{}
	Cause      error
}

// Error implements the error interface
func (e *CategorizedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *CategorizedError) Unwrap() error {
	return e.Cause
}

// ToServiceError converts to a ServiceError for API responses
func (e *CategorizedError) ToServiceError() *types.ServiceError {
	return &types.ServiceError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	}
}

// NewStoreUnavailableError reports that a backing store could not be reached.
func NewStoreUnavailableError(store, operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryStore,
		StatusCode: http.StatusServiceUnavailable,
		Code:       CodeStoreUnavailable,
		Message:    fmt.Sprintf("%s unavailable during %s", store, operation),
		Cause:      cause,
		Details: map[string]interface{}{
			"store":     store,
			"operation": operation,
		},
	}
}

// NewMalformedSnapshotKeyError reports a snapshot key whose timestamp cannot be parsed.
func NewMalformedSnapshotKeyError(key string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategorySnapshot,
		StatusCode: http.StatusUnprocessableEntity,
		Code:       CodeMalformedSnapshotKey,
		Message:    fmt.Sprintf("malformed snapshot key: %s", key),
		Cause:      cause,
		Details: map[string]interface{}{
			"key": key,
		},
	}
}

// NewDuplicateRecordError reports a record whose identity is already stored.
func NewDuplicateRecordError(kind, id string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryDuplicate,
		StatusCode: http.StatusConflict,
		Code:       CodeDuplicateRecord,
		Message:    fmt.Sprintf("%s already exists: %s", kind, id),
		Details: map[string]interface{}{
			"kind": kind,
			"id":   id,
		},
	}
}

// NewDownstreamImportError reports a non-success response from an import target.
func NewDownstreamImportError(endpoint string, statusCode int, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryDownstream,
		StatusCode: http.StatusBadGateway,
		Code:       CodeDownstreamImport,
		Message:    fmt.Sprintf("downstream import to %s failed (status %d)", endpoint, statusCode),
		Cause:      cause,
		Details: map[string]interface{}{
			"endpoint":       endpoint,
			"responseStatus": statusCode,
		},
	}
}

// NewUnsupportedSourceError reports an unknown source selector.
func NewUnsupportedSourceError(kind string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryConfig,
		StatusCode: http.StatusBadRequest,
		Code:       CodeUnsupportedSource,
		Message:    fmt.Sprintf("unsupported source: %s", kind),
		Details: map[string]interface{}{
			"source": kind,
		},
	}
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource string, id string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryNotFound,
		StatusCode: http.StatusNotFound,
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found: %s", resource, id),
		Details: map[string]interface{}{
			"resource": resource,
			"id":       id,
		},
	}
}

// NewInvalidStatementError reports a statement the parser could not accept.
func NewInvalidStatementError(reason string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryValidation,
		StatusCode: http.StatusBadRequest,
		Code:       CodeInvalidStatement,
		Message:    fmt.Sprintf("invalid statement: %s", reason),
		Cause:      cause,
	}
}

// NewInternalError creates an internal error
func NewInternalError(message string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategorySystem,
		StatusCode: http.StatusInternalServerError,
		Code:       CodeInternal,
		Message:    message,
		Cause:      cause,
	}
}

// Categorize categorizes an existing error. Wrapped CategorizedErrors are
// found through the chain; anything else becomes an internal error.
func Categorize(err error) *CategorizedError {
	if err == nil {
		return nil
	}

	var catErr *CategorizedError
	if errors.As(err, &catErr) {
		return catErr
	}

	return NewInternalError("unexpected error", err)
}

func hasCode(err error, code string) bool {
	var catErr *CategorizedError
	return errors.As(err, &catErr) && catErr.Code == code
}

// IsStoreUnavailable reports whether err is (or wraps) a StoreUnavailable error.
func IsStoreUnavailable(err error) bool { return hasCode(err, CodeStoreUnavailable) }

// IsMalformedSnapshotKey reports whether err is (or wraps) a MalformedSnapshotKey error.
func IsMalformedSnapshotKey(err error) bool { return hasCode(err, CodeMalformedSnapshotKey) }

// IsDuplicateRecord reports whether err is (or wraps) a DuplicateRecord error.
func IsDuplicateRecord(err error) bool { return hasCode(err, CodeDuplicateRecord) }

// IsDownstreamImportFailure reports whether err is (or wraps) a DownstreamImportFailure.
func IsDownstreamImportFailure(err error) bool { return hasCode(err, CodeDownstreamImport) }

// IsUnsupportedSource reports whether err is (or wraps) an UnsupportedSource error.
func IsUnsupportedSource(err error) bool { return hasCode(err, CodeUnsupportedSource) }

// IsNotFound reports whether err is (or wraps) a NotFound error.
func IsNotFound(err error) bool { return hasCode(err, CodeNotFound) }

// GetHTTPStatusCode returns the HTTP status code for an error
func GetHTTPStatusCode(err error) int {
	if catErr := Categorize(err); catErr != nil {
		return catErr.StatusCode
	}
	return http.StatusInternalServerError
}

// IsUserError determines if an error is a user error (4xx)
func IsUserError(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}
	return catErr.StatusCode >= 400 && catErr.StatusCode < 500
}
