package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"tickwatch/internal/config"
	"tickwatch/internal/controllers"
	"tickwatch/internal/logger"
	"tickwatch/internal/middleware"
	"tickwatch/internal/routes"
	"tickwatch/internal/services"
)

const (
	redisConnectTimeout = 5 * time.Second

	// Idle IPs are forgotten after limiterIdleTimeout. It must exceed the time
	// any bucket takes to refill, or forgetting would reset a penalty.
	limiterSweepInterval = time.Minute
	limiterIdleTimeout   = 10 * time.Minute
)

func newServeCmd(flags *flagOverrides) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the tick loop and serve health over HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			loggers, err := logger.NewLoggers(logger.Levels{
				Default: cfg.LogLevel,
				Scopes:  map[string]string{"http": cfg.HTTPLogLevel},
			}, cfg.Development)
			if err != nil {
				return err
			}
			log := loggers.Root()
			defer log.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, log, loggers.For("http"))
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, log, httpLog *zap.Logger) error {
	serverID := cfg.ResolvedServerID()
	log.Info("starting tickwatch",
		zap.Int("server_id", serverID),
		zap.Duration("tick_period", cfg.TickPeriod),
		zap.String("probe", cfg.ProbeMode))

	meter := services.NewTrafficMeter(time.Now())
	var (
		probe     services.Probe             = services.NewSystemProbe()
		transport services.TransportCounters = meter
	)
	if cfg.ProbeMode == config.ProbeModeFixed {
		probe = services.NewFixedProbe()
		transport = services.NewFixedTransport()
	}

	monitor, err := services.NewHealthMonitor(services.HealthConfig{
		TickPeriod:   cfg.TickPeriod,
		ProbeTimeout: cfg.ProbeTimeout,
	}, probe, transport, log)
	if err != nil {
		return err
	}

	sink, closeSink := openHistorySink(cfg, log)
	defer closeSink()

	collector := services.NewCadenceCollector(monitor, sink, serverID, cfg.ExportInterval, cfg.HistoryPoints, log)
	if err := collector.Restore(ctx); err != nil {
		log.Warn("could not restore cadence history", zap.Error(err))
	}
	collector.Start()
	defer collector.Stop()

	auth, err := services.NewAuthService(cfg.JWTSecret, "", cfg.TokenExpiry, log)
	if err != nil {
		return err
	}

	loop := services.NewTickLoop(monitor.TickPeriod(), monitor, nil, log)
	hub := services.NewWebSocketHub(monitor, meter, cfg.BroadcastInterval, log)
	sec := middleware.NewSecurityLogger(log)

	apiLimiter := middleware.NewRateLimiter(rate.Limit(cfg.APIRateLimit), cfg.APIBurst)
	clientLimiter := middleware.NewRateLimiter(rate.Every(cfg.ClientAuthenticatePeriod), cfg.ClientAuthenticateBurst)
	bandwidthLimiter := middleware.NewRateLimiter(rate.Limit(cfg.HTTPBandwidthLimit), cfg.HTTPBandwidthBurst)
	for _, l := range []*middleware.RateLimiter{apiLimiter, clientLimiter, bandwidthLimiter} {
		go l.RunSweeper(ctx, limiterSweepInterval, limiterIdleTimeout)
	}

	if !cfg.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := routes.Router{
		Health:           controllers.NewHealthController(monitor, collector),
		Status:           controllers.NewStatusController(loop),
		WebSocket:        controllers.NewWebSocketController(hub, auth, sec, serverID, log),
		Traffic:          meter,
		APILimiter:       apiLimiter,
		ClientLimiter:    clientLimiter,
		BandwidthLimiter: bandwidthLimiter,
		SecurityLogger:   sec,
		Log:              log,
		HTTPLog:          httpLog,
	}.Engine()

	srv := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go hub.Run(ctx)
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		loop.Run(ctx)
	}()

	serveErr := make(chan error, 1)
	go func() {
		log.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-serveErr:
		if err != nil {
			log.Error("http server failed", zap.Error(err))
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown incomplete", zap.Error(err))
	}
	<-loopDone
	return nil
}

// openHistorySink connects the optional Redis sink. An unreachable Redis is
// logged and the sink kept: stores fail soft until it comes back.
func openHistorySink(cfg *config.Config, log *zap.Logger) (services.HistorySink, func()) {
	if cfg.Redis.URL == "" {
		return nil, func() {}
	}
	sink, err := services.NewRedisHistorySink(cfg.Redis.URL, cfg.Redis.Key, cfg.Redis.MaxLen)
	if err != nil {
		log.Warn("history sink disabled", zap.Error(err))
		return nil, func() {}
	}

	ctx, cancel := context.WithTimeout(context.Background(), redisConnectTimeout)
	defer cancel()
	if err := sink.Ping(ctx); err != nil {
		log.Warn("redis unreachable, will keep retrying on export", zap.Error(err))
	} else {
		log.Info("history sink connected", zap.String("key", cfg.Redis.Key))
	}
	return sink, func() {
		if err := sink.Close(); err != nil {
			log.Warn("closing history sink", zap.Error(err))
		}
	}
}
