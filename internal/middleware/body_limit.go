package middleware

import "net/http"

// DefaultMaxBodySize caps JSON request bodies on the ops API.
const DefaultMaxBodySize int64 = 64 << 10

// MaxBodySize limits request bodies to maxBytes. Handlers see a
// *http.MaxBytesError when they read past the limit.
func MaxBodySize(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				http.Error(w, http.StatusText(http.StatusRequestEntityTooLarge), http.StatusRequestEntityTooLarge)
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}
