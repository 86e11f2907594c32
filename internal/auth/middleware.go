package auth

import (
	"crypto/subtle"
	"net/http"
)

// OperatorKeyHeader carries the shared operator API key.
const OperatorKeyHeader = "X-Operator-Key"

// RequireOperatorKey returns middleware that rejects requests without the
// configured operator key.
func RequireOperatorKey(key string) func(http.Handler) http.Handler {
	want := []byte(key)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(OperatorKeyHeader)
			if got == "" {
				unauthorized(w, "missing "+OperatorKeyHeader+" header")
				return
			}
			if len(want) == 0 || subtle.ConstantTimeCompare([]byte(got), want) != 1 {
				unauthorized(w, "invalid operator key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"code":"UNAUTHORIZED","message":"` + msg + `"}`))
}
