package mw

import (
	"net/http"

	"github.com/MrSnakeDoc/wagate/internal/logger"
	"github.com/MrSnakeDoc/wagate/internal/utils"
)

// AllowOnlyCIDRS rejects clients whose address is outside allowed, a list
// of single IPs and CIDR ranges. With trustProxy the address comes from
// X-Forwarded-For. An empty list disables the check.
func AllowOnlyCIDRS(allowed []string, trustProxy bool, log logger.Logger) func(http.Handler) http.Handler {
	m := utils.NewIPMatcher(allowed)
	if m.IsEmpty() {
		return func(next http.Handler) http.Handler { return next }
	}

	log.Debug("ip filter enabled",
		logger.Int("rules", len(allowed)),
		logger.Bool("trust_proxy", trustProxy))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := utils.ClientIP(r, trustProxy)
			if m.Allow(ip) {
				next.ServeHTTP(w, r)
				return
			}

			log.Warn("request rejected by ip filter",
				logger.String("client_ip", ip),
				logger.String("remote_addr", r.RemoteAddr),
				logger.String("path", r.URL.Path))
			forbidden(w, "client address not allowed")
		})
	}
}
