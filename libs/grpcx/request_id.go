package grpcx

import (
	"context"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/slotbook/libs/httpx"
)

// RequestIDMetadataKey is the gRPC metadata twin of httpx.RequestIDHeader.
const RequestIDMetadataKey = "x-request-id"

// Request ids share the httpx context key so logs look the same on both transports.
func RequestIDFromContext(ctx context.Context) string {
	return httpx.RequestIDFromContext(ctx)
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return httpx.ContextWithRequestID(ctx, id)
}

func NewRequestID() string {
	return uuid.NewString()
}
