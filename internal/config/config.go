package config

import (
	"fmt"
	"log"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	ListenPort      string        // ex: ":8080"
	ShutdownTimeout time.Duration // ex: 5s
	RequestTimeout  time.Duration // per-request deadline, covers QR issuance

	LogLevel  string // "debug" | "info" | "warn" | "error"
	PrettyLog bool   // true => zap dev (color), false => zap prod (JSON)

	// Lifecycle
	Transport       string        // "simulated" | "whatsmeow"
	QRTTL           time.Duration // clamped by the registry to [20s, 300s]
	QRSweepInterval time.Duration // 0 => lazy expiry only
	LogoutPolicy    string        // "delete" | "mark"
	ReconnectDelay  time.Duration // constant delay between reconnect attempts

	// QR rendering
	QRWidth      int
	QRMargin     int
	QRForeground string // "#rrggbb"
	QRBackground string // "#rrggbb"
	QRTerminal   bool   // print freshly issued codes to stdout

	// Transports
	SessionDir      string        // whatsmeow device stores
	DeviceName      string        // linked device name shown on the phone, "" => wagate/<version>
	SimAutoConnect  time.Duration // simulated scan/open delay, 0 => manual
	WebhookEnabled  bool          // expose POST /webhook/{name}
	SeedFile        string        // optional YAML of instances to pre-create
	SeedReload      time.Duration // seed file reload interval
	SendRatePerMin  int           // per-IP refill for /message routes
	SendBurst       int           // per-IP burst for /message routes
	EventsRecentMax int64         // cap for /events/recent?count=

	// Redis (optional, disabled when RedisAddr is empty)
	RedisAddr             string        // ex: "localhost:6379"
	RedisUser             string        // optional
	RedisPassword         string        // optional
	RedisPasswordRequired bool          // true => require password, false => allow empty password
	RedisDB               int           // Redis DB number
	RedisStream           string        // event stream key
	RedisStreamMaxLen     int64         // approximate stream cap
	RedisDT               time.Duration // Redis dial timeout (ex: 5s)
	RedisRT               time.Duration // Redis read timeout (ex: 3s)
	RedisWT               time.Duration // Redis write timeout (ex: 3s)
	RedisMaxWait          time.Duration // max wait between retries (ex: 10s)
	RedisPingTimeout      time.Duration // timeout for each ping attempt (ex: 5s)
	RedisPoolSize         int           // Redis connection pool size
	RedisConnectTimeout   time.Duration // Total time to retry connecting (ex: 30s)
	RedisRetryInterval    time.Duration // Initial wait between retries (ex: 2s, grows exponentially)
	RedisWarnThreshold    int           // warn after this many attempts

	AllowedHosts []string // optional, restrict admin routes to specific Host headers
	AllowedCIDRS []string // optional, restrict admin routes to specific IPs (e.g. "1.2.3.4, 10.0.0.0/8")
	TrustProxy   bool     // true => trust X-Forwarded-For headers (e.g. cloudflared)
}

const (
	TransportSimulated = "simulated"
	TransportWhatsmeow = "whatsmeow"
)

func Load() *Config {
	cfg := &Config{
		// Server settings
		ListenPort:      getenv("WAGATE_LISTEN_PORT", ":8080"),
		ShutdownTimeout: mustDuration("WAGATE_SHUTDOWN_TIMEOUT", 5*time.Second),
		RequestTimeout:  mustDuration("WAGATE_REQUEST_TIMEOUT", 45*time.Second),

		// Logging
		LogLevel:  getenv("WAGATE_LOG_LEVEL", "info"),
		PrettyLog: mustBool("WAGATE_PRETTY_LOG", true),

		// Lifecycle
		Transport:       oneOf("WAGATE_TRANSPORT", TransportSimulated, TransportSimulated, TransportWhatsmeow),
		QRTTL:           mustDuration("WAGATE_QR_TTL", 60*time.Second),
		QRSweepInterval: mustDuration("WAGATE_QR_SWEEP_INTERVAL", 0),
		LogoutPolicy:    oneOf("WAGATE_LOGOUT_POLICY", "delete", "delete", "mark"),
		ReconnectDelay:  mustDuration("WAGATE_RECONNECT_DELAY", 5*time.Second),

		// QR rendering
		QRWidth:      getenvInt("WAGATE_QR_WIDTH", 256),
		QRMargin:     getenvInt("WAGATE_QR_MARGIN", 4),
		QRForeground: getenv("WAGATE_QR_FOREGROUND", "#000000"),
		QRBackground: getenv("WAGATE_QR_BACKGROUND", "#ffffff"),
		QRTerminal:   mustBool("WAGATE_QR_TERMINAL", false),

		// Transports and sources
		SessionDir:      getenv("WAGATE_SESSION_DIR", "./sessions"),
		DeviceName:      getenv("WAGATE_DEVICE_NAME", ""),
		SimAutoConnect:  mustDuration("WAGATE_SIM_AUTO_CONNECT", 0),
		WebhookEnabled:  mustBool("WAGATE_WEBHOOK_ENABLED", true),
		SeedFile:        getenv("WAGATE_SEED_FILE", ""),
		SeedReload:      mustDuration("WAGATE_SEED_RELOAD_INTERVAL", time.Hour),
		SendRatePerMin:  getenvInt("WAGATE_SEND_RATE_PER_MIN", 60),
		SendBurst:       getenvInt("WAGATE_SEND_BURST", 10),
		EventsRecentMax: int64(getenvInt("WAGATE_EVENTS_RECENT_MAX", 200)),

		// Redis settings
		RedisAddr:             getenv("WAGATE_REDIS_ADDR", ""),
		RedisUser:             getenv("WAGATE_REDIS_USERNAME", ""),
		RedisPasswordRequired: mustBool("WAGATE_REDIS_PASSWORD_REQUIRED", false),
		RedisPassword:         getenv("WAGATE_REDIS_PASSWORD", ""),
		RedisDB:               getenvInt("WAGATE_REDIS_DB", 0),
		RedisStream:           getenv("WAGATE_REDIS_STREAM", "wagate:events"),
		RedisStreamMaxLen:     int64(getenvInt("WAGATE_REDIS_STREAM_MAXLEN", 1000)),
		RedisDT:               mustDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
		RedisRT:               mustDuration("REDIS_READ_TIMEOUT", 3*time.Second),
		RedisWT:               mustDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		RedisMaxWait:          mustDuration("REDIS_MAX_WAIT", 10*time.Second),
		RedisPingTimeout:      mustDuration("REDIS_PING_TIMEOUT", 5*time.Second),
		RedisPoolSize:         getenvInt("REDIS_POOL_SIZE", 10),
		RedisConnectTimeout:   mustDuration("REDIS_CONNECT_TIMEOUT", 30*time.Second),
		RedisRetryInterval:    mustDuration("REDIS_RETRY_INTERVAL", 2*time.Second),
		RedisWarnThreshold:    getenvInt("REDIS_WARN_THRESHOLD", 3),

		// Access restrictions
		AllowedHosts: splitAndTrim(getenv("WAGATE_ALLOWED_HOSTS", "")),
		AllowedCIDRS: splitAndTrim(getenv("WAGATE_ALLOWED_CIDRS", "")),
		TrustProxy:   mustBool("WAGATE_TRUST_PROXY", false),
	}

	// Validate Redis password configuration
	if cfg.RedisEnabled() && cfg.RedisPasswordRequired && cfg.RedisPassword == "" {
		panic("❌ FATAL: WAGATE_REDIS_PASSWORD is required when WAGATE_REDIS_PASSWORD_REQUIRED=true")
	}
	if cfg.RequestTimeout <= 0 {
		panic("❌ FATAL: WAGATE_REQUEST_TIMEOUT must be positive")
	}
	if cfg.SeedReload <= 0 {
		panic("❌ FATAL: WAGATE_SEED_RELOAD_INTERVAL must be positive")
	}

	// Log config only in debug mode with redacted sensitive fields
	if cfg.LogLevel == "debug" {
		cfgCopy := *cfg
		cfgCopy.RedisPassword = "***REDACTED***"
		if cfg.RedisUser != "" {
			cfgCopy.RedisUser = "***REDACTED***"
		}
		log.Printf("[DEBUG] cfg: %+v\n", cfgCopy)
	}

	return cfg
}

// RedisEnabled reports whether a Redis address was configured
func (c *Config) RedisEnabled() bool {
	return c.RedisAddr != ""
}

// helpers
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// oneOf returns the value of key, which must be one of allowed
func oneOf(key, def string, allowed ...string) string {
	v := strings.ToLower(getenv(key, def))
	if !slices.Contains(allowed, v) {
		panic(fmt.Sprintf("❌ FATAL: Invalid value for %s: %q (allowed: %s)", key, v, strings.Join(allowed, ", ")))
	}
	return v
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func mustBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func mustDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	raw := strings.Split(s, ",")
	parts := make([]string, 0, len(raw))
	for _, part := range raw {
		trimmed := strings.TrimSpace(part)
		// Remove surrounding quotes if present
		trimmed = strings.Trim(trimmed, `"'`)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}
