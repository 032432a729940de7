// internal/app/features/ops/routes.go
package ops

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// Routes mounts the operator endpoints (typically under "/ops"). When token
// is non-empty every request must carry it as a bearer token.
func Routes(h *Handler, token string) chi.Router {
	r := chi.NewRouter()
	if token != "" {
		r.Use(requireToken(token))
	}
	r.Get("/tombstones", h.ServeTombstones)
	r.Post("/tombstones/{id}/retry", h.ServeRetry)
	r.Post("/reconcile", h.ServeReconcile)
	return r
}

func requireToken(token string) func(http.Handler) http.Handler {
	want := []byte(token)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(got), want) != 1 {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
