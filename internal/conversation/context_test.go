package conversation

import (
	"context"
	"testing"
)

// testContext stands in for t.Context (Go 1.24+): the returned context is
// canceled once the test body has returned, as a test cleanup.
func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}
