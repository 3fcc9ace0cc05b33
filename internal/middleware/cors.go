package middleware

import (
	"net/http"
)

// CORSMiddleware answers cross-origin requests from the dashboard.
// With no configured origins every origin is reflected back.
type CORSMiddleware struct {
	origins  []string
	allowAll bool
}

func NewCORSMiddleware(allowedOrigins ...string) *CORSMiddleware {
	return &CORSMiddleware{
		origins:  allowedOrigins,
		allowAll: len(allowedOrigins) == 0,
	}
}

// Wrap adds the CORS headers and short-circuits preflight requests.
func (c *CORSMiddleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" && c.originAllowed(origin) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS, PATCH")
			h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Max-Age", "86400")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (c *CORSMiddleware) originAllowed(origin string) bool {
	if c.allowAll {
		return true
	}
	for _, allowed := range c.origins {
		if allowed == origin || allowed == "*" {
			return true
		}
	}
	return false
}
