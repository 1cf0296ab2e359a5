package auth

import "net/http"

// loginPath is exempt from the mutation gate so clients can obtain a token
const loginPath = "/api/auth/login"

// RequireForMutations gates state-changing methods behind a valid bearer
// token. Reads stay open; the snapshot data is not sensitive, but building
// and deleting snapshots is operator-only. Disabled stores (nil) pass
// everything through.
func RequireForMutations(store *TokenStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if store == nil || !mutating(r.Method) || r.URL.Path == loginPath {
				next.ServeHTTP(w, r)
				return
			}

			if !store.Validate(BearerToken(r)) {
				http.Error(w, "Missing or invalid bearer token", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func mutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}
