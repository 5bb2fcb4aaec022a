package core

import (
	"context"
	"fmt"
)

type requestIDKey struct{}

// WithRequestID tags ctx with the ID of the request that asked for a resolution.
// The chain resolver reuses it as the resolution ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFrom returns the request ID carried by ctx, or "".
func RequestIDFrom(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// WithBatchItem derives the ID of one entry of a batch request, so each
// resolution in the batch stays distinct but traceable to its request.
func WithBatchItem(ctx context.Context, index int) context.Context {
	parent := RequestIDFrom(ctx)
	if parent == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, fmt.Sprintf("%s/%d", parent, index))
}
