package testutil

import (
	"context"
	"testing"
	"time"
)

// ContextWithTimeout creates a context with a test timeout
func ContextWithTimeout(t *testing.T, timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx, cancel
}

// DefaultTestContext creates a context with a 30-second timeout
func DefaultTestContext(t *testing.T) context.Context {
	ctx, _ := ContextWithTimeout(t, 30*time.Second)
	return ctx
}

// SkipIfShort skips the test if running with -short flag
func SkipIfShort(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
}

// PtrString returns a pointer to the string
func PtrString(s string) *string {
	return &s
}

// PtrInt returns a pointer to the int
func PtrInt(i int) *int {
	return &i
}
