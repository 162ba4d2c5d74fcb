package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ashureev/roofchat/internal/auth"
	"github.com/ashureev/roofchat/internal/identity"
	"github.com/ashureev/roofchat/internal/store"
)

// StoreFunc resolves the auth storage scope for a request.
type StoreFunc func(*http.Request) store.Store

// LocalStore scopes auth state to the visitor set by identity.Middleware.
func LocalStore(b store.Backend) StoreFunc {
	return func(r *http.Request) store.Store {
		return b.Scope(store.LocalScope(identity.VisitorIDFromContext(r.Context())))
	}
}

func authorized(gate *auth.Gate, local StoreFunc, r *http.Request) bool {
	ok, err := gate.Authorized(r.Context(), local(r))
	if err != nil {
		slog.Error("Auth state lookup failed", "path", r.URL.Path, "error", err)
		return false
	}
	return ok
}

// RequireAuth redirects unauthorized page requests to loginPath.
func RequireAuth(gate *auth.Gate, local StoreFunc, loginPath string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !authorized(gate, local, r) {
				http.Redirect(w, r, loginPath, http.StatusSeeOther)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAuthAPI is like RequireAuth but answers 401 JSON for API endpoints.
func RequireAuthAPI(gate *auth.Gate, local StoreFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !authorized(gate, local, r) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GuestOnly redirects already authorized requests to homePath.
func GuestOnly(gate *auth.Gate, local StoreFunc, homePath string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if authorized(gate, local, r) {
				http.Redirect(w, r, homePath, http.StatusSeeOther)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
