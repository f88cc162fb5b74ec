package mw

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"

	"github.com/MrSnakeDoc/wagate/internal/logger"
)

// EnforceHost rejects requests whose Host header matches none of
// allowedHosts. Patterns may be exact ("api.example.com") or wildcards
// ("*.example.com"); ports are ignored on both sides. An empty list
// disables the check.
func EnforceHost(allowedHosts []string, log logger.Logger) func(http.Handler) http.Handler {
	patterns := make([]string, 0, len(allowedHosts))
	for _, h := range allowedHosts {
		if h = normalizeHost(h); h != "" {
			patterns = append(patterns, h)
		}
	}
	if len(patterns) == 0 {
		return func(next http.Handler) http.Handler { return next }
	}

	log.Debug("host filter enabled", logger.Int("hosts", len(patterns)))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			host := normalizeHost(r.Host)
			for _, pattern := range patterns {
				if matchHost(host, pattern) {
					next.ServeHTTP(w, r)
					return
				}
			}

			log.Warn("request rejected by host filter",
				logger.String("host", r.Host),
				logger.String("path", r.URL.Path),
				logger.String("remote_ip", r.RemoteAddr))
			forbidden(w, "host not allowed")
		})
	}
}

// normalizeHost lowercases h and strips any port
func normalizeHost(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	if host, _, err := net.SplitHostPort(h); err == nil {
		return host
	}
	return h
}

// matchHost reports whether host equals pattern or, for "*.example.com",
// is a subdomain of example.com
func matchHost(host, pattern string) bool {
	if host == pattern {
		return true
	}
	if suffix, ok := strings.CutPrefix(pattern, "*"); ok && strings.HasPrefix(suffix, ".") {
		return len(host) > len(suffix) && strings.HasSuffix(host, suffix)
	}
	return false
}

// forbidden writes a 403 in the API error format
func forbidden(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	_ = json.NewEncoder(w).Encode(map[string]map[string]string{
		"error": {"code": "forbidden", "message": msg},
	})
}
