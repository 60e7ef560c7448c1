package middleware

import (
	"crypto/subtle"
	"net/http"
)

// NodeAuth returns middleware that authenticates the coordinator to an
// execution node via the X-Node-Token shared secret header. Unlike Auth, an
// empty secret rejects everything: a node must never execute unauthenticated
// close requests.
func NodeAuth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				writeUnauthorized(w, "node authentication not configured")
				return
			}

			token := r.Header.Get("X-Node-Token")
			if token == "" {
				writeUnauthorized(w, "missing node token")
				return
			}
			if subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
				writeUnauthorized(w, "invalid node token")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
