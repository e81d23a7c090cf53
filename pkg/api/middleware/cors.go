package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/vedmemory/ved/config"
)

// corsPolicy is a CORSConfig with its header values joined once.
type corsPolicy struct {
	origins     map[string]bool
	anyOrigin   bool
	credentials bool
	methods     string
	headers     string
	exposed     string
	maxAge      string
}

func newCORSPolicy(cfg *config.CORSConfig) *corsPolicy {
	p := &corsPolicy{
		origins:     make(map[string]bool, len(cfg.AllowedOrigins)),
		credentials: cfg.AllowCredentials,
		methods:     strings.Join(cfg.AllowedMethods, ", "),
		headers:     strings.Join(cfg.AllowedHeaders, ", "),
		exposed:     strings.Join(cfg.ExposedHeaders, ", "),
	}
	for _, o := range cfg.AllowedOrigins {
		o = strings.TrimSpace(o)
		if o == "*" {
			p.anyOrigin = true
			continue
		}
		p.origins[strings.ToLower(o)] = true
	}
	if cfg.MaxAge > 0 {
		p.maxAge = strconv.Itoa(cfg.MaxAge)
	}
	return p
}

// allowOrigin returns the Access-Control-Allow-Origin value for origin, or
// "" when it is not allowed. A wildcard is echoed back as the origin when
// credentials are on, since browsers reject "*" with credentials.
func (p *corsPolicy) allowOrigin(origin string) string {
	switch {
	case origin == "":
		return ""
	case p.origins[strings.ToLower(origin)]:
		return origin
	case p.anyOrigin && p.credentials:
		return origin
	case p.anyOrigin:
		return "*"
	}
	return ""
}

func setIf(h http.Header, key, value string) {
	if value != "" {
		h.Set(key, value)
	}
}

// CORS answers preflight requests and decorates other responses with the
// configured CORS headers. It is a pass-through when cfg.Enabled is false.
func CORS(cfg *config.CORSConfig) func(http.Handler) http.Handler {
	if cfg == nil || !cfg.Enabled {
		return func(next http.Handler) http.Handler { return next }
	}
	p := newCORSPolicy(cfg)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Add("Vary", "Origin")

			setIf(h, "Access-Control-Allow-Origin", p.allowOrigin(r.Header.Get("Origin")))
			setIf(h, "Access-Control-Allow-Methods", p.methods)
			setIf(h, "Access-Control-Allow-Headers", p.headers)
			setIf(h, "Access-Control-Expose-Headers", p.exposed)
			setIf(h, "Access-Control-Max-Age", p.maxAge)
			if p.credentials {
				h.Set("Access-Control-Allow-Credentials", "true")
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
