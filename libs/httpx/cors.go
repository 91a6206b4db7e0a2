package httpx

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// CORSPolicy configures cross-origin access for the public booking widget.
type CORSPolicy struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAge           time.Duration
}

// WithCORS emits CORS headers for listed origins and answers preflights with 204.
// An empty origin list turns the middleware into a pass-through.
func WithCORS(cfg CORSPolicy) Middleware {
	origins := trimAll(cfg.AllowedOrigins)
	if len(origins) == 0 {
		return func(next http.Handler) http.Handler { return next }
	}

	wildcard := false
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		if o == "*" {
			wildcard = true
			continue
		}
		allowed[strings.ToLower(o)] = struct{}{}
	}

	static := http.Header{}
	if cfg.AllowCredentials {
		static.Set("Access-Control-Allow-Credentials", "true")
	}
	if v := strings.Join(trimAll(cfg.AllowedMethods), ", "); v != "" {
		static.Set("Access-Control-Allow-Methods", v)
	}
	if v := strings.Join(trimAll(cfg.AllowedHeaders), ", "); v != "" {
		static.Set("Access-Control-Allow-Headers", v)
	}
	if v := strings.Join(trimAll(cfg.ExposedHeaders), ", "); v != "" {
		static.Set("Access-Control-Expose-Headers", v)
	}
	if secs := int(cfg.MaxAge / time.Second); secs > 0 {
		static.Set("Access-Control-Max-Age", strconv.Itoa(secs))
	}

	// A credentialed response may not carry "*", so echo the origin instead.
	allowOrigin := func(origin string) (string, bool) {
		if _, ok := allowed[strings.ToLower(origin)]; ok {
			return origin, true
		}
		if wildcard {
			if cfg.AllowCredentials {
				return origin, true
			}
			return "*", true
		}
		return "", false
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			value, ok := allowOrigin(origin)
			if origin == "" || !ok {
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("Access-Control-Allow-Origin", value)
			h.Add("Vary", "Origin")
			for k, v := range static {
				h[k] = v
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
