package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"peerline/internal/core/domain"
	"peerline/internal/core/ports"
	"peerline/internal/core/services"
	httphandlers "peerline/internal/handlers/http"
	backupinfra "peerline/internal/infrastructure/backup"
	distributedinfra "peerline/internal/infrastructure/distributed"
	"peerline/internal/infrastructure/identity"
	"peerline/internal/infrastructure/media"
	"peerline/internal/infrastructure/middleware"
	"peerline/internal/infrastructure/monitoring"
	"peerline/internal/infrastructure/notify"
	"peerline/internal/infrastructure/reliability"
	repositories "peerline/internal/infrastructure/repositories"
	"peerline/internal/infrastructure/signaling"
	webrtcinfra "peerline/internal/infrastructure/webrtc"
	"peerline/pkg/backup"
	"peerline/pkg/circuitbreaker"
	"peerline/pkg/config"
	"peerline/pkg/distributed"
	"peerline/pkg/logger"
	"peerline/pkg/retry"
	"peerline/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/pion/webrtc/v3"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	startTime := time.Now()

	// Try multiple config paths
	configPaths := []string{
		"configs/config.yaml",
		"./configs/config.yaml",
		"/etc/peerline/config.yaml",
		"config.yaml",
	}

	var cfg *config.Config
	var err error

	for _, path := range configPaths {
		cfg, err = config.Load(path)
		if err == nil {
			break
		}
	}

	if err != nil {
		cfg = config.DefaultConfig()
	}

	zapLogger := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLogger.Sync()

	log := zapLogger.Sugar()

	// Tracing
	tracerProvider, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: "peerline-calld",
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: cfg.Tracing.Environment,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Fatalw("failed to initialize tracing", "error", err)
	}

	// Repositories
	repoFactory, err := repositories.NewRepositoryFactory(cfg, log)
	if err != nil {
		log.Fatalw("failed to create repository factory", "error", err)
	}

	tipRepo := repoFactory.CreateTipRepository()

	// Signaling backend
	var signalingChannel ports.SignalingChannel
	switch cfg.Signaling.Backend {
	case "redis":
		client := repoFactory.RedisClient()
		if client == nil {
			log.Fatalw("signaling backend is redis but redis is not connected")
		}
		signalingChannel = signaling.NewRedisChannel(client, log)
	case "relay":
		signalingChannel = signaling.NewRelayChannel(cfg.Signaling.RelayURL, log)
	default:
		signalingChannel = signaling.NewMemoryChannel(log)
	}
	signalingChannel = reliability.NewSignalingWrapper(
		signalingChannel,
		retry.DefaultConfig(),
		circuitbreaker.DefaultConfig(),
		log,
	)
	log.Infow("signaling backend selected", "backend", cfg.Signaling.Backend)

	// Media capture
	capture := media.NewCapture(media.CaptureConfig{
		AllowAudio:     cfg.Media.AllowAudio,
		AllowVideo:     cfg.Media.AllowVideo,
		VideoFrameRate: cfg.Media.VideoFrameRate,
	}, nil, log)

	// WebRTC transport
	var iceServers []webrtc.ICEServer
	if len(cfg.WebRTC.ICEServers) > 0 {
		for _, s := range cfg.WebRTC.ICEServers {
			iceServers = append(iceServers, webrtc.ICEServer{
				URLs:       s.URLs,
				Username:   s.Username,
				Credential: s.Credential,
			})
		}
	} else {
		iceServers = []webrtc.ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
		}
	}

	connectorConfig := webrtcinfra.Config{ICEServers: iceServers}
	connectorConfig.PortRange.Min = cfg.WebRTC.PortRange.Min
	connectorConfig.PortRange.Max = cfg.WebRTC.PortRange.Max
	connector := webrtcinfra.NewConnector(connectorConfig, log)

	// Services
	collector := monitoring.NewPrometheusCollector()
	notifier := notify.NewLogNotifier(log)
	localIdentity := identity.NewContextIdentity()

	authService := services.NewAuthService(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL)
	callService := services.NewCallService(
		services.ControllerConfig{NegotiationTimeout: cfg.Call.NegotiationTimeout},
		localIdentity,
		signalingChannel,
		capture,
		connector,
		notifier,
		collector,
		log,
	)
	// With Redis available, extend the single-call rule across instances.
	if client := repoFactory.RedisClient(); client != nil {
		callService = distributedinfra.NewLockedCallService(
			callService,
			localIdentity,
			distributed.NewLockManager(client, "peerline:lock:"),
			30*time.Second,
			log,
		)
	}

	tippingService := services.NewTippingService(
		services.TippingConfig{
			MaxAmount:     cfg.Tipping.MaxAmount,
			TotalCacheTTL: cfg.Tipping.TotalCacheTTL,
		},
		tipRepo,
		notifier,
		collector,
		log,
	)

	// Ledger snapshots
	var ledgerScheduler *backupinfra.Scheduler
	if cfg.Backup.Enabled {
		exporter, ok := tipRepo.(backupinfra.LedgerExporter)
		if !ok {
			log.Fatalw("tip repository does not support ledger export")
		}
		storage, err := backup.NewFileStorage(cfg.Backup.Directory)
		if err != nil {
			log.Fatalw("failed to create snapshot storage", "error", err)
		}
		ledgerScheduler = backupinfra.NewScheduler(
			backup.NewSnapshotService(storage, "1.0.0"),
			exporter,
			backupinfra.Config{
				Interval:      cfg.Backup.Interval,
				RetentionDays: cfg.Backup.RetentionDays,
			},
			log,
		)
		go ledgerScheduler.Start(context.Background())
		log.Infow("ledger snapshots enabled", "directory", cfg.Backup.Directory, "interval", cfg.Backup.Interval)
	}

	// HTTP handlers
	authHandler := httphandlers.NewAuthHandler(authService, cfg.Auth.AccessTokenTTL)
	callHandler := httphandlers.NewCallHandler(callService)
	tipHandler := httphandlers.NewTipHandler(tippingService)

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(middleware.RecoveryMiddleware(log))
	router.Use(middleware.ErrorHandlerMiddleware(log))
	router.Use(middleware.RequestLoggingMiddleware(zapLogger))
	router.Use(middleware.TracingMiddleware())
	router.Use(middleware.NewHTTPRateLimitMiddleware(cfg))

	authHandler.SetupRoutes(router)
	callHandler.SetupRoutes(router, middleware.AuthMiddleware(authService))
	tipHandler.SetupRoutes(router, middleware.AuthMiddleware(authService))

	healthChecker := monitoring.NewHealthChecker()
	healthChecker.AddCheck("ledger", func(ctx context.Context) (bool, error) {
		if err := repoFactory.HealthCheck(ctx); err != nil {
			return false, err
		}
		return true, nil
	}, 30*time.Second, 2*time.Second)
	healthChecker.AddCheck("session", func(ctx context.Context) (bool, error) {
		if _, err := callService.Active(ctx); err != nil && !errors.Is(err, domain.ErrNoActiveCall) {
			return false, err
		}
		return true, nil
	}, 30*time.Second, 2*time.Second)

	router.GET("/health", func(c *gin.Context) {
		status := healthChecker.CheckAll(c.Request.Context())
		code := 200
		if !status.Healthy() {
			code = 503
		}
		c.JSON(code, gin.H{
			"status":    status.Status,
			"timestamp": status.Timestamp,
			"uptime":    time.Since(startTime).String(),
			"checks":    status.Checks,
		})
	})

	router.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := repoFactory.HealthCheck(ctx); err != nil {
			c.JSON(503, gin.H{
				"status":       "not_ready",
				"timestamp":    time.Now(),
				"dependencies": "unhealthy",
				"error":        err.Error(),
			})
			return
		}

		c.JSON(200, gin.H{
			"status":       "ready",
			"timestamp":    time.Now(),
			"dependencies": "ok",
		})
	})

	if cfg.Monitoring.PrometheusEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
		log.Info("Prometheus metrics enabled")
	}

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infof("Starting peerline call agent on %s", cfg.Server.Address)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Fatalw("Server failed", "error", err)
	case sig := <-sigChan:
		log.Infow("Received shutdown signal", "signal", sig)
	}

	log.Info("Shutting down peerline call agent...")

	if ledgerScheduler != nil {
		ledgerScheduler.Stop()
	}

	// End an in-flight call before the transports go away.
	if err := callService.End(context.Background()); err == nil {
		log.Info("Active call ended during shutdown")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error during server shutdown", "error", err)
		if closeErr := srv.Close(); closeErr != nil {
			log.Errorw("Error force closing server", "error", closeErr)
		}
	} else {
		log.Info("Server shutdown gracefully")
	}

	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error shutting down tracer provider", "error", err)
	}

	if err := repoFactory.Close(); err != nil {
		log.Errorw("Error closing repository factory", "error", err)
	}

	log.Info("Peerline call agent stopped")
}
