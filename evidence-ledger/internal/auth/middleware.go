package auth

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/Kaaval/Main/evidence-ledger/internal/models"
)

type ctxKey string

const ctxKeyPrincipal ctxKey = "evidence-ledger.principal"

func WithPrincipal(ctx context.Context, p models.Principal) context.Context {
	return context.WithValue(ctx, ctxKeyPrincipal, p)
}

// FromContext returns the principal placed by Middleware, if any.
func FromContext(ctx context.Context) (models.Principal, bool) {
	p, ok := ctx.Value(ctxKeyPrincipal).(models.Principal)
	return p, ok
}

// Middleware authenticates every request and rejects anonymous callers
// with 401.
func (v *Verifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, err := v.Authenticate(r)
		if err != nil {
			log.Printf("[auth] rejected path=%s remote=%s err=%v", r.URL.Path, r.RemoteAddr, err)
			writeError(w, http.StatusUnauthorized, "EVIDENCE_LEDGER_UNAUTHENTICATED", "authentication required")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}

// HasRole reports whether p holds one of roles. Admins hold every role.
func HasRole(p models.Principal, roles ...models.Role) bool {
	if p.IsAdmin() {
		return true
	}
	for _, r := range roles {
		if p.Role == r {
			return true
		}
	}
	return false
}

// RequireRole lets the request through only when the principal in context
// holds one of roles.
func RequireRole(roles ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := FromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "EVIDENCE_LEDGER_UNAUTHENTICATED", "authentication required")
				return
			}
			if !HasRole(p, roles...) {
				log.Printf("[auth] forbidden path=%s principal=%s role=%s", r.URL.Path, p.ID, p.Role)
				writeError(w, http.StatusForbidden, "EVIDENCE_LEDGER_FORBIDDEN", "role not permitted")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg, "code": code})
}
