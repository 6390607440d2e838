package httpserver

import (
	"context"
	"net/http"

	"github.com/gofrs/uuid/v5"
)

type ctxKey string

const requestIDKey ctxKey = "gn.requestID"

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

// WithRequestID stores the request id in context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromCtx fetches the request id from context.
func RequestIDFromCtx(ctx context.Context) (string, bool) {
	v := ctx.Value(requestIDKey)
	if v == nil {
		return "", false
	}
	id, ok := v.(string)
	return id, ok
}

// RequestID propagates an incoming X-Request-ID or assigns a fresh UUIDv4.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" || len(id) > 128 {
			u, err := uuid.NewV4()
			if err == nil {
				id = u.String()
			}
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(WithRequestID(r.Context(), id)))
	})
}
