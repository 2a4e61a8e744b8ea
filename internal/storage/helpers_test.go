package storage

import (
	"context"
	"testing"
	"time"
)

// testContext bounds a test's store calls
func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}
