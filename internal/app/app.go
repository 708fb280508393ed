// Package app provides application initialization and lifecycle management.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bissquit/incident-sla/internal/config"
	"github.com/bissquit/incident-sla/internal/domain"
	"github.com/bissquit/incident-sla/internal/escalation"
	"github.com/bissquit/incident-sla/internal/identity/jwt"
	"github.com/bissquit/incident-sla/internal/incidents"
	incidentsmemory "github.com/bissquit/incident-sla/internal/incidents/memory"
	incidentspostgres "github.com/bissquit/incident-sla/internal/incidents/postgres"
	"github.com/bissquit/incident-sla/internal/pkg/ctxlog"
	"github.com/bissquit/incident-sla/internal/pkg/httputil"
	"github.com/bissquit/incident-sla/internal/pkg/metrics"
	"github.com/bissquit/incident-sla/internal/pkg/postgres"
	"github.com/bissquit/incident-sla/internal/scheduler"
	"github.com/bissquit/incident-sla/internal/sla"
	"github.com/bissquit/incident-sla/internal/version"
)

// Job names.
const (
	JobBreachScan    = "sla-breach-scan"
	JobSnapshot      = "sla-open-incidents-snapshot"
	JobDBPoolMetrics = "db-pool-metrics"
)

// App represents the application instance.
type App struct {
	config        *config.Config
	logger        *slog.Logger
	db            *pgxpool.Pool
	repo          incidents.Repository
	scanner       *escalation.Scanner
	scheduler     *scheduler.Scheduler
	server        *http.Server
	metricsServer *http.Server
}

// New creates a new application instance.
func New(cfg *config.Config) (*App, error) {
	logger := initLogger(cfg.Log)
	slog.SetDefault(logger)

	calendar, err := cfg.BusinessCalendar()
	if err != nil {
		return nil, err
	}
	catalog, err := cfg.SLACatalog()
	if err != nil {
		return nil, err
	}
	engine, err := sla.NewEngine(catalog, calendar)
	if err != nil {
		return nil, err
	}

	app := &App{
		config: cfg,
		logger: logger,
	}

	if err := app.setupStorage(); err != nil {
		return nil, err
	}

	dispatcher, err := newDispatcher(cfg.Escalation, logger)
	if err != nil {
		app.closeStorage()
		return nil, fmt.Errorf("setup escalation: %w", err)
	}

	lifecycle := incidents.NewLifecycle(app.repo, dispatcher,
		incidents.WithReopenPolicy(incidents.ReopenPolicy(cfg.SLA.ReopenPolicy)),
		incidents.WithNotifyTimeout(cfg.SLA.NotifyTimeout),
	)
	service := incidents.NewService(app.repo, engine, lifecycle)

	app.scanner = escalation.NewScanner(app.repo, dispatcher, escalation.ScannerConfig{
		ResponseWarningLead:   cfg.Scanner.ResponseWarningLead,
		ResolutionWarningLead: cfg.Scanner.ResolutionWarningLead,
		Workers:               cfg.Scanner.Workers,
		NotifyTimeout:         cfg.Scanner.NotifyTimeout,
	})

	app.scheduler = scheduler.New(scheduler.WithRunTimeout(cfg.Scheduler.RunTimeout))
	if err := app.registerJobs(); err != nil {
		app.closeStorage()
		return nil, fmt.Errorf("register jobs: %w", err)
	}

	router, err := app.setupRouter(service)
	if err != nil {
		app.closeStorage()
		return nil, fmt.Errorf("setup router: %w", err)
	}

	app.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	// Metrics server on separate port
	metricsRouter := chi.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.Handler())

	app.metricsServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.MetricsPort),
		Handler:           metricsRouter,
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return app, nil
}

func (a *App) setupStorage() error {
	switch a.config.Storage.Driver {
	case config.StoragePostgres:
		connectCtx, cancel := context.WithTimeout(context.Background(), a.config.Database.ConnectTimeout)
		defer cancel()

		db, err := postgres.Connect(connectCtx, postgres.Config{
			URL:             a.config.Database.URL,
			MaxOpenConns:    a.config.Database.MaxOpenConns,
			MaxIdleConns:    a.config.Database.MaxIdleConns,
			ConnMaxLifetime: a.config.Database.ConnMaxLifetime,
			ConnectAttempts: a.config.Database.ConnectAttempts,
		})
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		a.db = db
		a.repo = incidentspostgres.NewRepository(db)
	default:
		a.logger.Warn("using in-memory storage, incidents are lost on restart")
		a.repo = incidentsmemory.NewRepository()
	}
	return nil
}

func (a *App) closeStorage() {
	if a.db != nil {
		a.db.Close()
	}
}

func (a *App) registerJobs() error {
	cfg := a.config.Scheduler

	if err := a.scheduler.Register(JobBreachScan, cfg.BreachScanCron, a.runBreachScan); err != nil {
		return err
	}
	if err := a.scheduler.Register(JobSnapshot, cfg.SnapshotCron, a.snapshotOpenIncidents); err != nil {
		return err
	}
	if a.db != nil {
		if err := a.scheduler.Register(JobDBPoolMetrics, cfg.DBMetricsCron, a.recordDBPoolMetrics); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) runBreachScan(ctx context.Context) error {
	_, err := a.scanner.Scan(ctx)
	return err
}

func (a *App) snapshotOpenIncidents(ctx context.Context) error {
	open, err := a.repo.LoadOpenIncidents(ctx)
	if err != nil {
		return fmt.Errorf("load open incidents: %w", err)
	}
	metrics.RecordOpenIncidents(open)
	return nil
}

func (a *App) recordDBPoolMetrics(context.Context) error {
	metrics.RecordDBPoolMetrics(a.db)
	return nil
}

// Run starts the scheduler and the HTTP servers.
func (a *App) Run() error {
	if a.config.Scheduler.Enabled {
		a.scheduler.Start()
	} else {
		a.logger.Warn("scheduler disabled, breaches are only detected on lifecycle transitions")
	}

	// Start metrics server in background
	go func() {
		a.logger.Info("starting metrics server",
			"host", a.config.Server.Host,
			"port", a.config.Server.MetricsPort,
		)
		if err := a.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server error", "error", err)
		}
	}()

	a.logger.Info("starting server",
		"host", a.config.Server.Host,
		"port", a.config.Server.Port,
		"storage", a.config.Storage.Driver,
	)

	if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown stops the scheduler, waits for running jobs, then shuts down
// both servers and closes the database.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down")

	var errs []error

	stopCtx, cancel := context.WithTimeout(ctx, a.config.Scheduler.ShutdownTimeout)
	if err := a.scheduler.Stop(stopCtx); err != nil {
		errs = append(errs, fmt.Errorf("stop scheduler: %w", err))
	}
	cancel()

	// Shutdown both servers in parallel
	var wg sync.WaitGroup
	var mu sync.Mutex

	for name, srv := range map[string]*http.Server{"server": a.server, "metrics server": a.metricsServer} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.Shutdown(ctx); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("shutdown %s: %w", name, err))
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	a.closeStorage()

	return errors.Join(errs...)
}

// Router returns the HTTP handler for testing.
func (a *App) Router() http.Handler {
	return a.server.Handler
}

// Scanner returns the breach scanner. Used by the scan command.
func (a *App) Scanner() *escalation.Scanner {
	return a.scanner
}

// Scheduler returns the job scheduler.
func (a *App) Scheduler() *scheduler.Scheduler {
	return a.scheduler
}

func (a *App) setupRouter(service *incidents.Service) (*chi.Mux, error) {
	r := chi.NewRouter()

	// Metrics middleware must be first to measure full request time
	r.Use(httputil.MetricsMiddleware)

	// CORS must be early to handle preflight requests before other middleware
	r.Use(httputil.CORSMiddleware(a.config.CORS.AllowedOrigins))
	r.Use(middleware.RequestID)
	r.Use(httputil.RequestLoggerMiddleware(a.logger))
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", a.healthzHandler)
	r.Get("/readyz", a.readyzHandler)
	r.Get("/version", a.versionHandler)

	r.Get("/api/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-yaml")
		http.ServeFile(w, r, "api/openapi/openapi.yaml")
	})

	incidentsHandler := incidents.NewHandler(service)
	schedulerHandler := scheduler.NewHandler(a.scheduler)

	var auth *jwt.Authenticator
	if a.config.JWT.SecretKey != "" {
		var err error
		auth, err = jwt.NewAuthenticator(jwt.Config{
			SecretKey:     a.config.JWT.SecretKey,
			Issuer:        a.config.JWT.Issuer,
			TokenDuration: a.config.JWT.TokenDuration,
		})
		if err != nil {
			return nil, fmt.Errorf("create authenticator: %w", err)
		}
	} else {
		a.logger.Warn("jwt secret not set: incident routes are unauthenticated and admin routes are disabled")
	}

	r.Route("/api/v1", func(r chi.Router) {
		if auth == nil {
			incidentsHandler.RegisterRoutes(r)
			return
		}

		r.Group(func(r chi.Router) {
			r.Use(httputil.AuthMiddleware(auth))

			r.Group(func(r chi.Router) {
				r.Use(httputil.RequireRole(domain.RoleOperator))
				incidentsHandler.RegisterRoutes(r)
			})

			r.Group(func(r chi.Router) {
				r.Use(httputil.RequireRole(domain.RoleAdmin))
				schedulerHandler.RegisterRoutes(r)
			})
		})
	})

	return r, nil
}

func (a *App) healthzHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) readyzHandler(w http.ResponseWriter, r *http.Request) {
	if a.db == nil {
		httputil.Text(w, http.StatusOK, "OK")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := a.db.Ping(ctx); err != nil {
		ctxlog.FromContext(r.Context()).Error("readiness check failed", "error", err)
		httputil.Text(w, http.StatusServiceUnavailable, "Database unavailable")
		return
	}

	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) versionHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.JSON(w, http.StatusOK, map[string]string{
		"version":    version.Version,
		"commit":     version.GitCommit,
		"build_date": version.BuildDate,
	})
}

func initLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
