package api

import (
	"net/http"
	"strings"

	"github.com/safar/go-retail-backend/internal/auth"
)

// authenticate resolves the principal from the access cookie or bearer
// header. A missing token leaves the request anonymous; a present but
// invalid token is rejected outright.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := ""
		if cookie, err := r.Cookie("access_token"); err == nil {
			token = cookie.Value
		} else if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
			token = strings.TrimPrefix(header, "Bearer ")
		}

		if token != "" {
			principal, err := s.tokens.Verify(token)
			if err != nil {
				respondError(w, http.StatusUnauthorized, "unauthenticated", "missing or invalid token")
				return
			}
			r = r.WithContext(auth.WithPrincipal(r.Context(), principal))
		}

		next.ServeHTTP(w, r)
	})
}

// requireCSRF insists on the CSRF header for mutating requests. The
// webhook route is registered outside this middleware; the payment
// provider cannot send the header.
func requireCSRF(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
			if r.Header.Get("X-CSRF-Token") == "" {
				respondError(w, http.StatusForbidden, "csrf", "missing CSRF token")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
