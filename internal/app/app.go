// Package app provides application initialization and lifecycle management.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/garyellow/convobot-go/internal/admin"
	"github.com/garyellow/convobot-go/internal/bot"
	"github.com/garyellow/convobot-go/internal/buildinfo"
	"github.com/garyellow/convobot-go/internal/config"
	"github.com/garyellow/convobot-go/internal/connector"
	"github.com/garyellow/convobot-go/internal/connector/line"
	"github.com/garyellow/convobot-go/internal/connector/rest"
	"github.com/garyellow/convobot-go/internal/ctxutil"
	"github.com/garyellow/convobot-go/internal/genai"
	"github.com/garyellow/convobot-go/internal/i18n"
	"github.com/garyellow/convobot-go/internal/install"
	"github.com/garyellow/convobot-go/internal/logger"
	"github.com/garyellow/convobot-go/internal/metrics"
	"github.com/garyellow/convobot-go/internal/nlp"
	"github.com/garyellow/convobot-go/internal/r2client"
	"github.com/garyellow/convobot-go/internal/ratelimit"
	"github.com/garyellow/convobot-go/internal/readiness"
	"github.com/garyellow/convobot-go/internal/router"
	"github.com/garyellow/convobot-go/internal/script"
	"github.com/garyellow/convobot-go/internal/sentry"
	"github.com/garyellow/convobot-go/internal/snapshot"
	"github.com/garyellow/convobot-go/internal/storage"
	"github.com/garyellow/convobot-go/internal/story"
	"github.com/garyellow/convobot-go/internal/syncmonitor"
)

// Application manages the application lifecycle and dependencies.
type Application struct {
	cfg         *config.Config
	logger      *logger.Logger
	db          *storage.DB
	metrics     *metrics.Metrics
	registry    *prometheus.Registry
	nlp         *nlp.Service
	bots        *install.Registry
	router      *router.Router
	readiness   *readiness.State
	monitor     *syncmonitor.Monitor
	snapshots   *snapshot.Manager // nil when snapshots are disabled
	userLimiter *ratelimit.KeyedLimiter
	declared    []connector.Configuration
	server      *http.Server
	wg          sync.WaitGroup // Track background goroutines for graceful shutdown
}

// Initialize creates and initializes a new application with all dependencies.
// Bots are installed by Run.
func Initialize(ctx context.Context, cfg *config.Config) (*Application, error) {
	log := logger.NewWithOptions(cfg.LogLevel, os.Stdout, logger.Options{
		BetterStackToken:    cfg.BetterStackToken,
		BetterStackEndpoint: cfg.BetterStackEndpoint,
	})

	log = log.WithField("service", "convobot-go")
	if host, err := os.Hostname(); err == nil && host != "" {
		log = log.WithField("instance_id", host)
	}

	// Package-level slog calls in repositories pick up the context handler.
	slog.SetDefault(log.Logger)

	log.WithField("version", buildinfo.Version).Info("Initializing application...")

	if err := sentry.Initialize(sentry.Config{
		Token:       cfg.SentryToken,
		Host:        cfg.SentryHost,
		Environment: cfg.SentryEnvironment,
		Release:     buildinfo.Version,
		SampleRate:  cfg.SentrySampleRate,
	}); err != nil {
		log.WithError(err).Warn("Sentry initialization failed")
	} else if sentry.IsEnabled() {
		log.WithField("host", cfg.SentryHost).Info("Error reporting enabled")
	}

	decls, err := config.LoadDeclarations(cfg.ConnectorsFile)
	if err != nil {
		return nil, fmt.Errorf("declarations: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewBuildInfoCollector(),
	)
	m := metrics.New(registry)

	var snapshots *snapshot.Manager
	if cfg.SnapshotEnabled {
		if snapshots, err = newSnapshotManager(ctx, cfg, m, log); err != nil {
			return nil, err
		}
		restored, err := snapshots.Restore(ctx, cfg.SQLitePath())
		if err != nil {
			return nil, fmt.Errorf("restore snapshot: %w", err)
		}
		if restored {
			log.WithField("path", cfg.SQLitePath()).Info("Database restored before startup")
		}
	}

	db, err := storage.New(ctx, cfg.SQLitePath())
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	log.WithField("path", cfg.SQLitePath()).Info("Database connected")

	var classifier nlp.Classifier
	if chain := genai.NewClassifier(ctx, genai.ConfigFrom(cfg)); chain != nil {
		classifier = chain
	}
	nlpService := nlp.NewService(db, classifier, m, cfg.DefaultLocale)

	labels := i18n.NewProvider(db, cfg.DefaultLocale)
	compiler := script.NewCompiler()
	pipeline := story.NewPipeline(labels, m, log)

	userLimiter := ratelimit.NewKeyedLimiter(ratelimit.KeyedConfig{
		Name:          "user",
		Burst:         cfg.UserRateBurst,
		RefillRate:    cfg.UserRateRefill,
		CleanupPeriod: config.RateLimiterCleanupInterval,
		Metrics:       m,
	})

	connectors := connector.NewRegistry()
	connectors.MustRegister(
		rest.Provider{},
		&line.Provider{
			ChannelSecret: cfg.LineChannelSecret,
			ChannelToken:  cfg.LineChannelToken,
			Logger:        log,
			Metrics:       m,
		},
	)

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(sentry.Middleware())
	engine.Use(securityHeadersMiddleware())
	engine.Use(loggingMiddleware(log))

	ready := readiness.New(cfg.ReadinessGracePeriod)
	surface := router.New(engine, router.Options{
		Gate:     ready.Gate(),
		OnDeploy: ready.MarkInstalled,
	})
	monitor := syncmonitor.New(log)
	monitor.CheckIntegrity = install.CheckIntegrity

	installCfg := install.Config{
		Connectors:   connectors,
		Store:        db,
		Router:       surface,
		Applications: nlpService,
		Dispatchers: func(b *story.Bot) (connector.Dispatcher, error) {
			return bot.NewProcessor(bot.ProcessorConfig{
				Bot:         b,
				Pipeline:    pipeline,
				Parser:      nlpService,
				Dialogs:     db,
				Stories:     db,
				Compiler:    compiler,
				Labels:      labels,
				UserLimiter: userLimiter,
				Logger:      log,
				Metrics:     m,
				Timeout:     cfg.DispatchTimeout,
			}), nil
		},
		Monitor:          monitor,
		DefaultNamespace: cfg.DefaultNamespace,
		DefaultLocale:    cfg.DefaultLocale,
		Metrics:          m,
		Logger:           log,
	}
	if cfg.RestCompanion {
		installCfg.Companion = install.RestCompanion
	}
	bots := install.NewRegistry(installCfg)
	bots.AddBot(bot.DeclaredBots(decls, cfg.DefaultNamespace)...)

	app := &Application{
		cfg:         cfg,
		logger:      log,
		db:          db,
		metrics:     m,
		registry:    registry,
		nlp:         nlpService,
		bots:        bots,
		router:      surface,
		readiness:   ready,
		monitor:     monitor,
		snapshots:   snapshots,
		userLimiter: userLimiter,
		declared:    decls.ToConfigurations(),
	}

	adminService := admin.NewService(admin.Config{
		Configurations: db,
		Stories:        db,
		Dialogs:        db,
		ParseLogs:      db,
		NLP:            nlpService,
		Bots:           bots,
		Compiler:       compiler,
		SelfBaseURL:    "http://127.0.0.1:" + cfg.Port,
		TalkTimeout:    config.TalkRequest,
		Metrics:        m,
		Logger:         log,
	})
	if admin.NewHandler(adminService, cfg.AdminToken, m).Register(engine) {
		log.Info("Admin API enabled")
	} else {
		log.Info("Admin API disabled: no admin token configured")
	}

	operatorAuth := metricsAuthMiddleware(cfg.MetricsUsername, cfg.MetricsPassword)
	engine.GET("/livez", app.livenessCheck)
	engine.HEAD("/livez", app.livenessCheck)
	engine.GET("/readyz", app.readinessCheck)
	engine.HEAD("/readyz", app.readinessCheck)
	engine.GET("/bindings", operatorAuth, app.bindingsCheck)
	engine.GET("/metrics", operatorAuth, gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	app.server = &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           engine,
		ReadHeaderTimeout: config.HTTPRead,
		ReadTimeout:       config.HTTPRead,
		WriteTimeout:      config.HTTPWrite,
		IdleTimeout:       config.HTTPIdle,
	}

	log.WithFields(map[string]any{
		"bots":           len(decls.Bots),
		"connectors":     len(app.declared),
		"classifier":     nlpService.HasClassifier(),
		"rest_companion": cfg.RestCompanion,
		"snapshots":      snapshots != nil,
	}).Info("Initialization complete")
	return app, nil
}

func newSnapshotManager(ctx context.Context, cfg *config.Config, m *metrics.Metrics, log *logger.Logger) (*snapshot.Manager, error) {
	store, err := r2client.New(ctx, r2client.Config{
		Endpoint:    cfg.R2Endpoint,
		AccessKeyID: cfg.R2AccessKeyID,
		SecretKey:   cfg.R2SecretKey,
		Bucket:      cfg.R2BucketName,
	})
	if err != nil {
		return nil, fmt.Errorf("snapshot store: %w", err)
	}
	return snapshot.New(store, snapshot.Config{
		Key:      cfg.SnapshotKey,
		LeaseKey: cfg.SnapshotKey + ".lease",
		TempDir:  cfg.DataDir,
	}, m, log), nil
}

// InstallBots installs every declared bot and deploys the routing surface.
// The NLP healthcheck is attached as the /healthcheck service.
func (a *Application) InstallBots(ctx context.Context) error {
	services := []install.Service{{Name: "healthcheck", Handler: a.healthCheck}}
	if err := a.bots.InstallAll(ctx, services, a.declared); err != nil {
		return err
	}
	a.monitor.SetBaseline(a.declared)
	return nil
}

func (a *Application) livenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "alive",
	})
}

func (a *Application) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), config.ReadinessCheck)
	defer cancel()

	status := a.readiness.Status()
	if !status.Ready {
		a.logger.WithField("elapsed_seconds", status.ElapsedSeconds).
			Debug("Readiness check: installation in progress")
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":    "not ready",
			"reason":    status.Reason,
			"readiness": status,
		})
		return
	}

	if err := a.db.Ping(ctx); err != nil {
		a.logger.WithError(err).Warn("Readiness check failed: database unavailable")
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"reason": "database unavailable",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":     "ready",
		"database":   "connected",
		"readiness":  status,
		"connectors": len(a.router.Bindings()),
		"features":   a.features(),
	})
}

// bindingsCheck lists the mounted connectors next to the active
// configuration set and any drift of the declarations file.
func (a *Application) bindingsCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"bindings": a.router.Bindings(),
		"active":   a.monitor.Status(),
	})
}

// healthCheck delegates to the NLP service.
func (a *Application) healthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), config.HealthCheck)
	defer cancel()

	if err := a.nlp.Healthcheck(ctx); err != nil {
		a.logger.WithError(err).Warn("Health check failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "features": a.features()})
}

func (a *Application) features() map[string]bool {
	return map[string]bool{
		"classifier":     a.nlp.HasClassifier(),
		"rest_companion": a.cfg.RestCompanion,
		"snapshots":      a.snapshots != nil,
		"admin_api":      a.cfg.AdminToken != "",
	}
}

// Run installs the bots, starts the HTTP server and runs background jobs
// until SIGINT/SIGTERM. Routes are only added before the server starts:
// gin does not allow registering routes while serving.
//
// Shutdown order:
//  1. Cancel context so background jobs stop
//  2. Wait for background jobs
//  3. Close the server, connectors and resources
func (a *Application) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.InstallBots(ctx); err != nil {
		a.logger.WithError(err).Error("Bot installation failed")
		a.closeResources(context.Background())
		return fmt.Errorf("install bots: %w", err)
	}

	a.startHTTPServer()
	a.startBackgroundJobs(ctx)

	sig := a.waitForShutdownSignal()
	a.logger.WithField("signal", sig.String()).Info("Received shutdown signal")

	cancel()

	a.logger.Info("Waiting for background jobs to finish...")
	start := time.Now()
	a.wg.Wait()
	a.logger.WithField("duration_ms", time.Since(start).Milliseconds()).
		Info("All background jobs completed")

	return a.shutdown()
}

// startBackgroundJobs starts all background work tracked by the WaitGroup.
// The snapshot schedule runs on its own cron goroutine and is stopped in shutdown.
func (a *Application) startBackgroundJobs(ctx context.Context) {
	if a.cfg.WatchConnectorsFile && a.cfg.ConnectorsFile != "" {
		a.wg.Go(func() {
			if err := a.monitor.Watch(ctx, a.cfg.ConnectorsFile); err != nil {
				a.logger.WithError(err).Warn("Declarations watcher unavailable")
			}
		})
	}

	if a.snapshots != nil {
		if err := a.snapshots.Start(ctx, a.cfg.SnapshotSchedule, a.db); err != nil {
			a.logger.WithError(err).Error("Snapshot schedule not started")
		}
	}
}

// startHTTPServer starts the HTTP server in a goroutine.
func (a *Application) startHTTPServer() {
	go func() {
		a.logger.WithField("port", a.cfg.Port).Info("Starting HTTP server")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.WithError(err).Error("HTTP server error")
		}
	}()
}

// waitForShutdownSignal blocks until SIGINT/SIGTERM is received.
func (a *Application) waitForShutdownSignal() os.Signal {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	return <-quit
}

// shutdown stops accepting requests, waits for connectors still processing
// events, then closes resources. Call it after background jobs have stopped.
func (a *Application) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	a.logger.Info("Stopping HTTP server...")
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.WithError(err).Error("HTTP server shutdown error")
	}

	a.logger.Info("Waiting for connector events to complete...")
	if err := a.router.Shutdown(shutdownCtx); err != nil {
		a.logger.WithError(err).Warn("Connector shutdown timeout")
	}

	if a.snapshots != nil {
		a.snapshots.Stop()
	}

	a.closeResources(shutdownCtx)
	a.logger.Info("Shutdown complete")
	return nil
}

func (a *Application) closeResources(ctx context.Context) {
	a.logger.Info("Closing resources...")

	if err := a.db.Close(); err != nil {
		a.logger.WithError(err).WithField("component", "database").Error("Component close error")
	}
	if a.userLimiter != nil {
		a.userLimiter.Stop()
	}

	sentry.Flush(2 * time.Second)
	if err := a.logger.Shutdown(ctx); err != nil {
		a.logger.WithError(err).Warn("Logger shutdown timed out")
	}
}

// securityHeadersMiddleware adds security headers to responses.
func securityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Header("Content-Security-Policy", "default-src 'none'")
		c.Next()
	}
}

// loggingMiddleware logs HTTP requests with status-based log levels:
// 5xx=Error, 4xx=Warn (404 and 503 are Debug), others Debug.
// 503 is what the readiness gate answers while bots are installed.
func loggingMiddleware(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = c.GetHeader("X-Correlation-ID")
		}
		if requestID != "" {
			c.Request = c.Request.WithContext(ctxutil.WithRequestID(c.Request.Context(), requestID))
		}

		c.Next()

		status := c.Writer.Status()
		entry := log.WithField("http_method", method).
			WithField("http_path", path).
			WithField("http_status", status).
			WithField("duration_ms", time.Since(start).Milliseconds()).
			WithField("client_ip", c.ClientIP())
		if requestID != "" {
			entry = entry.WithRequestID(requestID)
		}
		if len(c.Errors) > 0 {
			entry = entry.WithField("errors", c.Errors.String())
		}

		switch {
		case status == http.StatusServiceUnavailable, status == http.StatusNotFound:
			entry.Debug("HTTP request not served")
		case status >= 500:
			entry.Error("HTTP request failed")
		case status >= 400:
			entry.Warn("HTTP request rejected")
		default:
			entry.Debug("HTTP request completed")
		}
	}
}
