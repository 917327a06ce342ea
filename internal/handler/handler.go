package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"
)

// Pinger is the readiness dependency behind /api/health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// CORSOptions is the cross-origin policy. AllowedOrigins may contain "*".
type CORSOptions struct {
	AllowedOrigins   []string
	FallbackOrigin   string
	AllowCredentials bool
	MaxAge           int
	AllowMethods     []string
	AllowHeaders     []string
}

type Handler struct {
	pinger    Pinger
	cors      CORSOptions
	anyOrigin bool
	allowed   map[string]bool
}

func New(pinger Pinger, cors CORSOptions) *Handler {
	if len(cors.AllowMethods) == 0 {
		cors.AllowMethods = []string{http.MethodPost, http.MethodOptions}
	}
	if len(cors.AllowHeaders) == 0 {
		cors.AllowHeaders = []string{"Content-Type", "Authorization"}
	}
	h := &Handler{pinger: pinger, cors: cors, allowed: make(map[string]bool)}
	for _, o := range cors.AllowedOrigins {
		o = normalizeOrigin(o)
		if o == "*" {
			h.anyOrigin = true
			continue
		}
		if o != "" {
			h.allowed[o] = true
		}
	}
	h.cors.FallbackOrigin = normalizeOrigin(cors.FallbackOrigin)
	return h
}

// CORS applies the origin policy to every response and answers preflight
// requests itself with 204 and no body.
func (h *Handler) CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.setCORSHeaders(w, r)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// allowOrigin resolves Access-Control-Allow-Origin for a request origin.
// A disallowed origin is never echoed; it gets the fallback or nothing.
func (h *Handler) allowOrigin(origin string) string {
	if h.anyOrigin {
		return "*"
	}
	if o := normalizeOrigin(origin); o != "" && h.allowed[o] {
		return o
	}
	return h.cors.FallbackOrigin
}

func (h *Handler) setCORSHeaders(w http.ResponseWriter, r *http.Request) {
	hd := w.Header()
	allow := h.allowOrigin(r.Header.Get("Origin"))
	if !h.anyOrigin {
		hd.Add("Vary", "Origin")
	}
	if allow != "" {
		hd.Set("Access-Control-Allow-Origin", allow)
		if h.cors.AllowCredentials && allow != "*" {
			hd.Set("Access-Control-Allow-Credentials", "true")
		}
	}
	hd.Set("Access-Control-Allow-Methods", strings.Join(h.cors.AllowMethods, ", "))
	hd.Set("Access-Control-Allow-Headers", strings.Join(h.cors.AllowHeaders, ", "))
	if h.cors.MaxAge > 0 {
		hd.Set("Access-Control-Max-Age", strconv.Itoa(h.cors.MaxAge))
	}
}

func normalizeOrigin(o string) string {
	return strings.TrimRight(strings.TrimSpace(o), "/")
}
