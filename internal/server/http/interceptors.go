package httpserver

import (
	"net/http"
	"runtime/debug"
	"time"

	"go.uber.org/zap"
)

// statusRecorder captures the response status for logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	return s.ResponseWriter.Write(b)
}

// Logging returns middleware for structured access logging.
func Logging(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)
			if rec.status == 0 {
				rec.status = http.StatusOK
			}
			rid, _ := RequestIDFromCtx(r.Context())

			// metadata only, never bodies or cookies
			log.Info("http",
				zap.String("method", r.Method),
				zap.String("path", r.URL.EscapedPath()),
				zap.Int("status", rec.status),
				zap.Duration("dur", time.Since(start)),
				zap.String("peer", r.RemoteAddr),
				zap.String("request_id", rid),
			)
		})
	}
}

// Recover returns middleware that turns panics into 500 responses.
func Recover(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if p := recover(); p != nil {
					if p == http.ErrAbortHandler {
						panic(p)
					}
					rid, _ := RequestIDFromCtx(r.Context())
					log.Error("panic",
						zap.Any("reason", p),
						zap.ByteString("stack", debug.Stack()),
						zap.String("path", r.URL.EscapedPath()),
						zap.String("request_id", rid),
					)
					http.Error(w, "internal", http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
