package middleware

import (
	"net/http"
	"strings"
)

// SkipCompressionForSSE applies compress to everything except event
// streams, which must be flushed unbuffered.
func SkipCompressionForSSE(compress func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		compressed := compress(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.Contains(r.Header.Get("Accept"), "text/event-stream") ||
				strings.HasSuffix(r.URL.Path, "/events/stream") {
				next.ServeHTTP(w, r)
				return
			}
			compressed.ServeHTTP(w, r)
		})
	}
}
