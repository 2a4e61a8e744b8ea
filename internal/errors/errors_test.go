package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCategorize_FindsWrappedError(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := fmt.Errorf("load previous snapshot: %w", NewStoreUnavailableError("redis", "list keys", cause))

	cat := Categorize(err)
	assert.Equal(t, CategoryStore, cat.Category)
	assert.Equal(t, http.StatusServiceUnavailable, cat.StatusCode)
	assert.True(t, IsStoreUnavailable(err))
	assert.ErrorIs(t, err, cause)
}

func TestCategorize_Plain(t *testing.T) {
	assert.Nil(t, Categorize(nil))

	cat := Categorize(errors.New("boom"))
	assert.Equal(t, CodeInternal, cat.Code)
	assert.Equal(t, http.StatusInternalServerError, GetHTTPStatusCode(errors.New("boom")))
}

func TestPredicates(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
		user  bool
	}{
		{"malformed key", NewMalformedSnapshotKeyError("scrape:x:garbage", nil), IsMalformedSnapshotKey, true},
		{"duplicate", NewDuplicateRecordError("transaction", "abc"), IsDuplicateRecord, true},
		{"downstream", NewDownstreamImportError("http://ledger/import", 500, nil), IsDownstreamImportFailure, false},
		{"unsupported", NewUnsupportedSourceError("hsbc"), IsUnsupportedSource, true},
		{"not found", NewNotFoundError("snapshot", "scrape:x"), IsNotFound, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.check(tt.err))
			assert.False(t, IsStoreUnavailable(tt.err))
			assert.Equal(t, tt.user, IsUserError(tt.err))
		})
	}
}

func TestToServiceError(t *testing.T) {
	svcErr := NewUnsupportedSourceError("hsbc").ToServiceError()
	assert.Equal(t, CodeUnsupportedSource, svcErr.Code)
	assert.Equal(t, "hsbc", svcErr.Details["source"])
}
