package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/md-rashed-zaman/slotbook/libs/httpx"
)

var (
	ErrMissingTenant  = errors.New("business_id is required")
	ErrTenantMismatch = errors.New("business_id does not match token")
)

// BusinessHeader is honoured only when token verification is disabled (local runs, trusted gateway).
const BusinessHeader = "X-Business-Id"

type ctxKey int

const ctxKeyPrincipal ctxKey = iota

type Principal struct {
	Subject    string
	BusinessID string
	Role       string
}

func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxKeyPrincipal, p)
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(ctxKeyPrincipal).(Principal)
	return p, ok
}

// ResolveBusinessID reconciles the tenant named by a request with the caller's principal.
func ResolveBusinessID(ctx context.Context, requested string) (string, error) {
	requested = strings.TrimSpace(requested)
	p, ok := PrincipalFromContext(ctx)
	if !ok || p.BusinessID == "" {
		if requested == "" {
			return "", ErrMissingTenant
		}
		return requested, nil
	}
	if requested != "" && requested != p.BusinessID {
		return "", ErrTenantMismatch
	}
	return p.BusinessID, nil
}

// Middleware attaches a Principal to the request context.
// With required=false a missing token is allowed through so public routes can use it.
func Middleware(v *Verifier, required bool) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !v.Enabled() {
				if biz := strings.TrimSpace(r.Header.Get(BusinessHeader)); biz != "" {
					r = r.WithContext(ContextWithPrincipal(r.Context(), Principal{
						BusinessID: biz,
						Role:       r.Header.Get("X-Role"),
					}))
				}
				next.ServeHTTP(w, r)
				return
			}

			raw, ok := bearerToken(r)
			if !ok {
				if required {
					httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid Authorization header")
					return
				}
				next.ServeHTTP(w, r)
				return
			}
			claims, err := v.Verify(raw)
			if err != nil {
				httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "invalid token")
				return
			}
			r = r.WithContext(ContextWithPrincipal(r.Context(), Principal{
				Subject:    claims.Subject,
				BusinessID: claims.BusinessID,
				Role:       claims.Role,
			}))
			next.ServeHTTP(w, r)
		})
	}
}

// RequireRole rejects principals whose role is not listed. Requests without a principal pass
// only when verification is disabled.
func RequireRole(v *Verifier, roles ...string) httpx.Middleware {
	allowed := map[string]struct{}{}
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if !ok {
				if v.Enabled() {
					httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
					return
				}
				next.ServeHTTP(w, r)
				return
			}
			if p.Role != "" || v.Enabled() {
				if _, ok := allowed[p.Role]; !ok {
					httpx.WriteError(w, http.StatusForbidden, "forbidden", "role not permitted")
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// LogAttrs exposes the tenant to access logs.
func LogAttrs(ctx context.Context) []any {
	p, ok := PrincipalFromContext(ctx)
	if !ok {
		return nil
	}
	return []any{"business_id", p.BusinessID, "role", p.Role}
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return "", false
	}
	tok := strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	return tok, tok != ""
}
