package deps

import (
	"time"

	"github.com/MrSnakeDoc/wagate/internal/events"
	"github.com/MrSnakeDoc/wagate/internal/gateway"
	"github.com/MrSnakeDoc/wagate/internal/logger"
	redisstore "github.com/MrSnakeDoc/wagate/internal/store/redis"
)

type Deps struct {
	Logger            logger.Logger
	StartTime         time.Time
	Version           string
	Commit            string
	BuildDate         string
	GoVersion         string
	TimeNow           func() time.Time  // for testing, defaults to time.Now
	RequestTimeout    time.Duration     // per-request deadline for non-streaming routes
	AllowedHosts      []string          // Host headers allowed on admin routes
	AllowedCIDRS      []string          // IPs allowed on admin routes
	TrustProxy        bool              // true if running behind a trusted reverse proxy (e.g., cloudflared)
	Gateway           *gateway.Service  // instance lifecycle entry point
	Hub               *events.Hub       // lifecycle event fan-out
	Store             *redisstore.Store // nil when Redis is disabled
	WebhookEnabled    bool              // expose POST /webhook/{name}
	SendRatePerMin    int               // per-IP refill for /message routes
	SendBurst         int               // per-IP burst for /message routes
	EventsRecentMax   int64             // cap for /events/recent
	SeedReloadTrigger chan struct{}     // manual seed reload (nil when no seed file)
}

// Now returns the current time using TimeNow when set
func (d Deps) Now() time.Time {
	if d.TimeNow != nil {
		return d.TimeNow()
	}
	return time.Now()
}
