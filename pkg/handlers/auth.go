package handlers

import (
	"crypto/subtle"
	"net/http"
)

// RequireToken guards a handler with the API token, passed as the token
// query parameter.
func RequireToken(token string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		provided := r.URL.Query().Get("token")
		if token == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
			_ = TokenErrorResponse(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}
