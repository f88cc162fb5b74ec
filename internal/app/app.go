package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/wagate/internal/config"
	"github.com/MrSnakeDoc/wagate/internal/events"
	"github.com/MrSnakeDoc/wagate/internal/gateway"
	"github.com/MrSnakeDoc/wagate/internal/httpserver"
	"github.com/MrSnakeDoc/wagate/internal/httpserver/deps"
	"github.com/MrSnakeDoc/wagate/internal/index"
	"github.com/MrSnakeDoc/wagate/internal/lifecycle"
	"github.com/MrSnakeDoc/wagate/internal/logger"
	"github.com/MrSnakeDoc/wagate/internal/qr"
	"github.com/MrSnakeDoc/wagate/internal/redis"
	"github.com/MrSnakeDoc/wagate/internal/scheduler"
	redisstore "github.com/MrSnakeDoc/wagate/internal/store/redis"
	"github.com/MrSnakeDoc/wagate/internal/transport"
	"github.com/MrSnakeDoc/wagate/internal/transport/simulated"
	"github.com/MrSnakeDoc/wagate/internal/transport/whatsapp"
	"github.com/MrSnakeDoc/wagate/internal/version"
)

type App struct {
	cfg          *config.Config
	logger       logger.Logger
	server       *httpserver.Server
	redisClient  *goredis.Client
	transport    transport.Transport
	gateway      *gateway.Service
	sweeper      *scheduler.QRSweeper
	seedReloader *scheduler.SeedReloader
	forwarder    *scheduler.EventForwarder
	syncer       *scheduler.RedisSyncer
}

func New() *App {
	cfg := config.Load()

	loggerClient := logger.New(cfg.LogLevel, cfg.PrettyLog)

	tr, err := newTransport(cfg, loggerClient)
	if err != nil {
		loggerClient.Errorf("Failed to initialize %s transport: %v", cfg.Transport, err)
		os.Exit(1)
	}

	policy, err := lifecycle.ParseLogoutPolicy(cfg.LogoutPolicy)
	if err != nil {
		loggerClient.Errorf("Invalid logout policy: %v", err)
		os.Exit(1)
	}

	hub := events.NewHub()
	registry := lifecycle.New(index.NewMemoryIndex(), tr, lifecycle.Options{
		QRTTL:        cfg.QRTTL,
		LogoutPolicy: policy,
		Notifier:     hub,
		Hooks:        gateway.Hooks(tr, loggerClient.Named("transport")),
	}, loggerClient.Named("lifecycle"))
	tr.Bind(registry)

	if ttl := registry.QRTTL(); ttl != cfg.QRTTL {
		loggerClient.Warn("qr ttl out of range, clamped",
			logger.Duration("configured", cfg.QRTTL),
			logger.Duration("effective", ttl))
	}

	qrOpts := qr.DefaultOptions()
	qrOpts.Width = cfg.QRWidth
	qrOpts.Margin = cfg.QRMargin
	qrOpts.Foreground = cfg.QRForeground
	qrOpts.Background = cfg.QRBackground
	if err := qrOpts.Validate(); err != nil {
		loggerClient.Errorf("Invalid QR rendering options: %v", err)
		os.Exit(1)
	}

	var terminal io.Writer
	if cfg.QRTerminal {
		terminal = os.Stdout
	}

	// Redis is optional: without it the registry is purely in-memory
	var (
		redisClient *goredis.Client
		store       *redisstore.Store
	)
	if cfg.RedisEnabled() {
		loggerClient.Infof("Connecting to Redis at %s", cfg.RedisAddr)
		redisClient, err = redis.New(context.Background(), redis.ConnectOptions{
			Addr:           cfg.RedisAddr,
			User:           cfg.RedisUser,
			Password:       cfg.RedisPassword,
			RedisDB:        cfg.RedisDB,
			DialTimeout:    cfg.RedisDT,
			ReadTimeout:    cfg.RedisRT,
			WriteTimeout:   cfg.RedisWT,
			PoolSize:       cfg.RedisPoolSize,
			ConnectTimeout: cfg.RedisConnectTimeout,
			RetryInterval:  cfg.RedisRetryInterval,
			MaxWait:        cfg.RedisMaxWait,
			PingTimeout:    cfg.RedisPingTimeout,
			WarnThreshold:  cfg.RedisWarnThreshold,
		}, loggerClient.Named("redis"))
		if err != nil {
			loggerClient.Errorf("Failed to connect to Redis: %v", err)
			os.Exit(1)
		}
		store = redisstore.NewStore(redisClient, redisstore.Options{
			StreamKey:    cfg.RedisStream,
			StreamMaxLen: cfg.RedisStreamMaxLen,
		})
		loggerClient.Info("Redis initialized successfully")
	} else {
		loggerClient.Info("redis not configured, snapshots and event history disabled")
	}

	gwOpts := gateway.Options{QR: qrOpts, Terminal: terminal}
	if store != nil {
		gwOpts.Counter = store
	}
	gw := gateway.New(registry, tr, gwOpts, loggerClient.Named("gateway"))

	var (
		forwarder *scheduler.EventForwarder
		syncer    *scheduler.RedisSyncer
	)
	if store != nil {
		syncer = scheduler.NewRedisSyncer(store, gw.Status, loggerClient)
		forwarder = scheduler.NewEventForwarder(hub, store, gw.Status, loggerClient, 256)
	}

	var sweeper *scheduler.QRSweeper
	if cfg.QRSweepInterval > 0 {
		sweeper = scheduler.NewQRSweeper(registry, loggerClient, cfg.QRSweepInterval)
	}

	var (
		seedReloader *scheduler.SeedReloader
		seedTrigger  chan struct{}
	)
	if cfg.SeedFile != "" {
		loggerClient.Info("seed file configured, initializing seed reloader",
			logger.String("file", cfg.SeedFile))
		seedTrigger = make(chan struct{}, 1)
		seedReloader = scheduler.NewSeedReloader(
			cfg.SeedFile,
			gw,
			loggerClient,
			cfg.SeedReload,
			seedTrigger,
		)
	}

	d := deps.Deps{
		Logger:            loggerClient,
		StartTime:         time.Now(),
		Version:           version.Version,
		Commit:            version.Commit,
		BuildDate:         version.BuildDate,
		GoVersion:         version.GoVersion,
		TimeNow:           time.Now,
		RequestTimeout:    cfg.RequestTimeout,
		AllowedHosts:      cfg.AllowedHosts,
		AllowedCIDRS:      cfg.AllowedCIDRS,
		TrustProxy:        cfg.TrustProxy,
		Gateway:           gw,
		Hub:               hub,
		Store:             store,
		WebhookEnabled:    cfg.WebhookEnabled,
		SendRatePerMin:    cfg.SendRatePerMin,
		SendBurst:         cfg.SendBurst,
		EventsRecentMax:   cfg.EventsRecentMax,
		SeedReloadTrigger: seedTrigger,
	}

	server := httpserver.New(cfg, loggerClient, d)

	return &App{
		cfg:          cfg,
		logger:       loggerClient,
		server:       server,
		redisClient:  redisClient,
		transport:    tr,
		gateway:      gw,
		sweeper:      sweeper,
		seedReloader: seedReloader,
		forwarder:    forwarder,
		syncer:       syncer,
	}
}

// newTransport picks the connection backend once at startup
func newTransport(cfg *config.Config, log logger.Logger) (transport.Transport, error) {
	switch cfg.Transport {
	case config.TransportWhatsmeow:
		deviceName := cfg.DeviceName
		if deviceName == "" {
			deviceName = version.UserAgent()
		}
		tr, err := whatsapp.New(whatsapp.Options{
			SessionDir:     cfg.SessionDir,
			ReconnectDelay: cfg.ReconnectDelay,
			DeviceName:     deviceName,
		}, log.Named("whatsmeow"))
		if err != nil {
			return nil, err
		}
		return tr, nil
	case config.TransportSimulated:
		return simulated.New(simulated.Options{
			AutoConnect:    cfg.SimAutoConnect,
			ReconnectDelay: cfg.ReconnectDelay,
		}, log.Named("simulated")), nil
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}

func (a *App) Run() error {
	a.logger.Infof("🚀 Starting wagate v%s on %s", version.Version, a.cfg.ListenPort)
	a.logger.Infof("wagate %s (commit=%s, built=%s, go=%s, transport=%s)",
		version.Version, version.Commit, version.BuildDate, version.GoVersion, a.gateway.TransportName())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if a.syncer != nil {
		if _, err := a.syncer.Sync(ctx); err != nil {
			a.logger.Warn("failed to clear stale snapshots from redis",
				logger.Error(err))
		}
	}

	// Start the forwarder before seeding so seeded instances reach Redis
	if a.forwarder != nil {
		if err := a.forwarder.Start(ctx); err != nil {
			return fmt.Errorf("failed to start event forwarder: %w", err)
		}
		a.logger.Info("event forwarder started")
	}

	if a.seedReloader != nil {
		if err := a.seedReloader.Start(ctx); err != nil {
			return fmt.Errorf("failed to start seed reloader: %w", err)
		}
		a.logger.Info("seed reloader started",
			logger.Duration("interval", a.cfg.SeedReload))
	}

	if a.sweeper != nil {
		if err := a.sweeper.Start(ctx); err != nil {
			return fmt.Errorf("failed to start qr sweeper: %w", err)
		}
		a.logger.Info("qr sweeper started",
			logger.Duration("interval", a.cfg.QRSweepInterval))
	}

	errCh := make(chan error, 1)
	go func() {
		if err := a.server.Start(); err != nil {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("⏳ Shutting down gracefully...")
	case err := <-errCh:
		return err
	}

	if a.sweeper != nil {
		a.sweeper.Stop()
	}
	if a.seedReloader != nil {
		a.seedReloader.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	if err := a.server.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("failed to stop server: %w", err)
	}

	a.transport.Shutdown()
	a.logger.Info("✅ Connections closed")

	// after the transport so the final disconnects are mirrored
	if a.forwarder != nil {
		a.forwarder.Stop()
	}

	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warnf("failed to close redis: %v", err)
		} else {
			a.logger.Info("✅ Redis closed cleanly")
		}
	}

	a.logger.Info("✅ wagate stopped cleanly")
	_ = a.logger.Sync()
	return nil
}
