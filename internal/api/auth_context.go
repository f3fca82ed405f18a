package api

import (
	"net/http"
	"strings"

	"github.com/shelflifeapp/shelflife/internal/auth"
)

// authMiddleware places the bearer token's user in the request context.
// Requests without a usable token continue unchanged; services then fall
// back to the configured identity or answer Unauthorized.
func authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			next.ServeHTTP(w, r)
			return
		}

		claims, err := auth.ParseClaims(header)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}
		userID := claims.User()
		if userID == "" {
			next.ServeHTTP(w, r)
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.WithUserID(r.Context(), userID)))
	})
}
