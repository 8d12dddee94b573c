package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/jmylchreest/loopcast/internal/observability"
)

// Recovery converts a panicking handler into a 500 response. Aborted
// handlers keep unwinding so net/http can drop the connection.
func Recovery(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				v := recover()
				if v == nil {
					return
				}
				if err, ok := v.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(v)
				}
				ctx := r.Context()
				logger.ErrorContext(ctx, "handler panicked",
					slog.String("route", r.Method+" "+r.URL.Path),
					slog.String("request_id", observability.RequestIDFromContext(ctx)),
					slog.Any("panic", v),
					slog.String("stack", string(debug.Stack())),
				)
				w.Header().Set("Content-Type", "application/problem+json")
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(`{"title":"Internal Server Error","status":500}`))
			}()
			next.ServeHTTP(w, r)
		})
	}
}
