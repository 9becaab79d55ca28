package middleware

import (
	"fmt"
	"net/http"

	"github.com/cloo-solutions/docqa/internal/api"
)

// MaxBodyBytes caps request bodies at limit bytes. Declared lengths over the
// limit are refused up front; chunked bodies are cut off by MaxBytesReader
// and surface as *http.MaxBytesError in the handler.
func MaxBodyBytes(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limit <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body == nil || r.Body == http.NoBody {
				next.ServeHTTP(w, r)
				return
			}
			if r.ContentLength > limit {
				api.Error(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("request body exceeds %d bytes", limit))
				return
			}

			r.Body = http.MaxBytesReader(w, r.Body, limit)
			next.ServeHTTP(w, r)
		})
	}
}
