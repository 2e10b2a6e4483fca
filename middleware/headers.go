// Package middleware provides endpoint.Processor implementations for the
// RPC transport: response hardening headers, CORS, and rate limiting.
package middleware

import (
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/mnehpets/rpcdispatch/endpoint"
)

// APIHeaders is a Processor that sets security headers suited to a JSON API
// and, when AllowedOrigins is set, answers CORS for browser clients.
//
// Headers always set:
//   - X-Content-Type-Options: nosniff
//   - Content-Security-Policy: default-src 'none'; frame-ancestors 'none'
//   - Referrer-Policy: no-referrer
//   - Cache-Control: no-store
type APIHeaders struct {
	// AllowedOrigins lists origins allowed to call the API cross-origin.
	// "*" allows any origin. Empty disables CORS headers.
	AllowedOrigins []string
	// MaxAge is how long (in seconds) preflight results may be cached.
	// Default: 3600.
	MaxAge int
}

// Process implements endpoint.Processor.
func (p *APIHeaders) Process(w http.ResponseWriter, r *http.Request, next func(http.ResponseWriter, *http.Request) error) error {
	h := w.Header()
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
	h.Set("Referrer-Policy", "no-referrer")
	h.Set("Cache-Control", "no-store")

	origin := r.Header.Get("Origin")
	if origin == "" || len(p.AllowedOrigins) == 0 {
		return next(w, r)
	}
	if !slices.Contains(p.AllowedOrigins, "*") && !slices.Contains(p.AllowedOrigins, origin) {
		return next(w, r)
	}

	h.Set("Access-Control-Allow-Origin", origin)
	h.Add("Vary", "Origin")

	// Short-circuit CORS preflight requests.
	if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
		maxAge := p.MaxAge
		if maxAge <= 0 {
			maxAge = 3600
		}
		h.Set("Access-Control-Allow-Methods", strings.Join([]string{http.MethodPost, http.MethodOptions}, ", "))
		h.Set("Access-Control-Allow-Headers", "Content-Type")
		h.Set("Access-Control-Max-Age", strconv.Itoa(maxAge))
		return endpoint.Error(http.StatusNoContent, "", nil)
	}
	return next(w, r)
}
