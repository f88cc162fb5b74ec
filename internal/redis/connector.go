package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/wagate/internal/logger"
	"github.com/MrSnakeDoc/wagate/internal/utils"
)

// ConnectOptions defines Redis connection retry behavior.
type ConnectOptions struct {
	Addr           string        // Redis address (ex: "localhost:6379")
	User           string        // Optional username
	Password       string        // Optional password
	RedisDB        int           // Redis DB number
	DialTimeout    time.Duration // Redis dial timeout
	ReadTimeout    time.Duration // Redis read timeout
	WriteTimeout   time.Duration // Redis write timeout
	PoolSize       int           // Redis connection pool size
	ConnectTimeout time.Duration // Total time allowed for connection attempts (ex: 30s)
	RetryInterval  time.Duration // Initial wait between retries (ex: 2s, grows exponentially)
	MaxWait        time.Duration // max wait between retries (ex: 10s)
	PingTimeout    time.Duration // timeout for each ping attempt (ex: 2s)
	WarnThreshold  int           // warn after this many attempts
}

// connectionLogger handles all Redis connection logging.
type connectionLogger struct {
	logger logger.Logger
}

func (cl *connectionLogger) logConnectionStart(addr string, timeout time.Duration) {
	cl.logger.Info("connecting to redis",
		logger.String("addr", addr),
		logger.Duration("timeout", timeout))
}

func (cl *connectionLogger) logSuccess(addr string, attempts int, elapsed time.Duration) {
	if attempts > 1 {
		cl.logger.Warn("connected to redis after retry",
			logger.String("addr", addr),
			logger.Int("attempts", attempts),
			logger.Duration("elapsed", elapsed))
		return
	}
	cl.logger.Info("connected to redis", logger.String("addr", addr))
}

func (cl *connectionLogger) logRetry(addr string, attempt int, nextRetry time.Duration, warnThreshold int, err error) {
	if attempt <= warnThreshold {
		cl.logger.Warn("redis connection failed, retrying",
			logger.String("addr", addr),
			logger.Int("attempt", attempt),
			logger.Duration("next_retry_in", nextRetry),
			logger.Error(err))
		return
	}
	cl.logger.Error("redis still unavailable - connection attempts failing",
		logger.String("addr", addr),
		logger.Int("attempt", attempt),
		logger.Duration("next_retry_in", nextRetry),
		logger.Error(err))
}

// validateOptions ensures all required configuration values are valid.
func validateOptions(opts ConnectOptions) error {
	switch {
	case opts.Addr == "":
		return fmt.Errorf("redis address is required")
	case opts.ConnectTimeout <= 0:
		return fmt.Errorf("ConnectTimeout must be > 0, got %v", opts.ConnectTimeout)
	case opts.RetryInterval <= 0:
		return fmt.Errorf("RetryInterval must be > 0, got %v", opts.RetryInterval)
	case opts.MaxWait <= 0:
		return fmt.Errorf("MaxWait must be > 0, got %v", opts.MaxWait)
	case opts.PingTimeout <= 0:
		return fmt.Errorf("PingTimeout must be > 0, got %v", opts.PingTimeout)
	case opts.WarnThreshold < 0:
		return fmt.Errorf("WarnThreshold must be >= 0, got %d", opts.WarnThreshold)
	}
	return nil
}

// newBackOff builds the retry schedule: exponential from RetryInterval,
// capped at MaxWait, giving up after ConnectTimeout.
func newBackOff(ctx context.Context, opts ConnectOptions) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = opts.RetryInterval
	b.MaxInterval = opts.MaxWait
	b.MaxElapsedTime = opts.ConnectTimeout
	b.Multiplier = 2
	b.RandomizationFactor = 0
	return backoff.WithContext(b, ctx)
}

// New creates a Redis client and pings it until it answers or
// ConnectTimeout elapses.
func New(ctx context.Context, opts ConnectOptions, log logger.Logger) (*redis.Client, error) {
	if err := validateOptions(opts); err != nil {
		log.Error("invalid redis options", logger.Error(err))
		return nil, err
	}

	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Username:     opts.User,
		Password:     opts.Password,
		DB:           opts.RedisDB,
		DialTimeout:  opts.DialTimeout,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
		PoolSize:     opts.PoolSize,
	})

	cl := &connectionLogger{logger: log}
	cl.logConnectionStart(opts.Addr, opts.ConnectTimeout)

	start := time.Now()
	attempt := 0
	ping := func() error {
		attempt++
		pingCtx, cancel := context.WithTimeout(ctx, opts.PingTimeout)
		defer cancel()
		return client.Ping(pingCtx).Err()
	}
	notify := func(err error, next time.Duration) {
		cl.logRetry(opts.Addr, attempt, next, opts.WarnThreshold, err)
	}

	if err := backoff.RetryNotify(ping, newBackOff(ctx, opts), notify); err != nil {
		utils.Close(client)
		log.Error("redis unavailable - failed to connect after timeout",
			logger.String("addr", opts.Addr),
			logger.Int("attempts", attempt),
			logger.Duration("timeout", opts.ConnectTimeout),
			logger.Error(err))
		return nil, fmt.Errorf("redis unavailable at %s after %d attempts (timeout: %v): %w",
			opts.Addr, attempt, opts.ConnectTimeout, err)
	}

	cl.logSuccess(opts.Addr, attempt, time.Since(start))
	return client, nil
}
