package web

import (
	"context"
	"time"
)

// ctxKey represents the type of value for the context key.
type ctxKey int

// KeyValues is how request values or stored/retrieved.
const KeyValues ctxKey = 1

// Values represent state for each request.
type Values struct {
	TraceID    string
	Now        time.Time
	StatusCode int
	Error      bool
}

// testKey is where the test mode value is stored.
const testKey ctxKey = 2

// ContextTestMode returns true if the test mode associated with the context is active.
func ContextTestMode(ctx context.Context) bool {
	testValue := ctx.Value(testKey)
	if testValue == nil {
		return true
	}

	test, ok := testValue.(bool)
	if !ok {
		return true
	}
	return test
}

func ContextWithValues(ctx context.Context, isTest bool) context.Context {
	return context.WithValue(ctx, testKey, isTest)
}
