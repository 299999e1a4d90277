package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// requireToken guards mutating endpoints with the configured bearer token.
// With no token configured every request passes.
func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		want := s.Config.HTTP.APIToken
		if want == "" {
			next.ServeHTTP(w, r)
			return
		}
		authz := r.Header.Get("Authorization")
		got := ""
		if strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			got = strings.TrimSpace(authz[len("Bearer "):])
		}
		if subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
			writeProblem(w, http.StatusUnauthorized, "Unauthorized", "bearer token required", r.URL.Path)
			return
		}
		next.ServeHTTP(w, r)
	})
}
