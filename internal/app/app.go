// Package app wires configuration, storage, delivery channels and the HTTP
// server into one runnable process.
package app

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	_ "taskbot/docs"
	"taskbot/internal/bot"
	"taskbot/internal/config"
	"taskbot/internal/events"
	"taskbot/internal/handlers"
	"taskbot/internal/metrics"
	"taskbot/internal/middleware"
	"taskbot/internal/pdf"
	"taskbot/internal/repositories"
	"taskbot/internal/repositories/memory"
	"taskbot/internal/routes"
	"taskbot/internal/scheduler"
	"taskbot/internal/services"
	"taskbot/internal/session"
	"taskbot/internal/storage"
)

type App struct {
	cfg      *config.Config
	logger   *slog.Logger
	loc      *time.Location
	registry *prometheus.Registry
	metrics  *metrics.Metrics

	db        *sql.DB
	gw        *repositories.Gateway
	publisher events.Publisher
	sessions  session.Store
	telegram  *services.TelegramService
	files     *storage.LocalStore

	Users      services.UserService
	Tasks      services.TaskService
	Companies  services.CompanyService
	Queries    services.QueryService
	Dispatcher services.Dispatcher
	Scheduler  *scheduler.Scheduler
	Bot        *bot.Bot

	jwtSecret []byte
	closers   []func() error
	onListen  func(net.Addr)
}

// New builds every component. Optional integrations (Redis, NATS, Telegram,
// SMTP) fall back to local stand-ins when they are not configured.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	a := &App{cfg: cfg, logger: logger, loc: cfg.Location(), registry: prometheus.NewRegistry()}
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = metrics.New(a.registry)

	if err := a.openStorage(); err != nil {
		return nil, err
	}
	a.connectIntegrations(ctx)

	files, err := storage.NewLocalStore(cfg.Files.RootDir, cfg.Files.MaxSize)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.files = files

	var notifier services.Notifier = services.LogNotifier{Logger: logger}
	if a.telegram != nil {
		notifier = a.telegram
	}
	a.Dispatcher = services.NewNotificationService(a.gw, notifier, a.publisher, a.metrics, logger, services.NotificationOptions{
		Timeout:    cfg.Notify.Timeout,
		MaxRetries: cfg.Notify.MaxRetries,
		Location:   a.loc,
	})

	a.Users = services.NewUserService(a.gw.Users, logger)
	a.Tasks = services.NewTaskService(a.gw, a.Dispatcher, files, a.metrics, logger)
	a.Companies = services.NewCompanyService(a.gw, logger)
	a.Queries = services.NewQueryService(a.gw)

	opts := []scheduler.Option{scheduler.WithMetrics(a.metrics)}
	if cfg.Email.SMTPHost != "" && cfg.Email.OverdueDigestTo != "" {
		email := services.NewEmailService(cfg.Email.SMTPHost, cfg.Email.SMTPPort, cfg.Email.SMTPUser, cfg.Email.SMTPPassword, cfg.Email.FromEmail)
		opts = append(opts, scheduler.WithOverdueDigest(email, cfg.Email.OverdueDigestTo, a.loc))
	}
	a.Scheduler = scheduler.New(scheduler.FromConfig(cfg.Scheduler), a.gw.Tasks, a.Dispatcher, logger, opts...)

	if a.telegram != nil {
		a.Bot = bot.New(bot.Deps{
			Sender:     a.telegram,
			Users:      a.Users,
			Tasks:      a.Tasks,
			Companies:  a.Companies,
			Queries:    a.Queries,
			Sessions:   a.sessions,
			SessionTTL: cfg.Redis.SessionTTL,
			Location:   a.loc,
			Logger:     logger,
		})
	}

	a.jwtSecret = []byte(cfg.Auth.JWTSecret)
	if len(a.jwtSecret) == 0 {
		a.jwtSecret = make([]byte, 32)
		if _, err := rand.Read(a.jwtSecret); err != nil {
			a.Close()
			return nil, fmt.Errorf("generate jwt secret: %w", err)
		}
		logger.Warn("auth.jwt_secret is empty, using a random secret; issued tokens end with the process")
	}
	return a, nil
}

func (a *App) openStorage() error {
	switch a.cfg.Database.Driver {
	case config.DriverMemory:
		a.logger.Warn("Using in-memory storage, data is lost on exit")
		a.gw = memory.NewGateway()
		return nil
	default:
		db, err := repositories.Open(a.cfg.Database.DSN, a.cfg.Database.MaxOpenConns)
		if err != nil {
			return err
		}
		a.db = db
		a.closers = append(a.closers, db.Close)
		a.gw = repositories.NewPostgresGateway(db, a.cfg.Database.QueryTimeout)
		return nil
	}
}

func (a *App) connectIntegrations(ctx context.Context) {
	a.publisher = events.Nop{}
	if url := a.cfg.NATS.URL; url != "" {
		p, err := events.Connect(url, a.cfg.NATS.SubjectPrefix)
		if err != nil {
			a.logger.Warn("NATS unavailable, task events are not published", "error", err)
		} else {
			a.publisher = p
			a.closers = append(a.closers, p.Close)
		}
	}

	a.sessions = session.NewMemoryStore(nil)
	if url := a.cfg.Redis.URL; url != "" {
		rs, err := session.NewRedisStore(ctx, url)
		if err != nil {
			a.logger.Warn("Redis unavailable, chat sessions kept in memory", "error", err)
		} else {
			a.sessions = rs
			a.closers = append(a.closers, rs.Close)
		}
	}

	if token := a.cfg.Telegram.Token; token != "" {
		tg, err := services.NewTelegramService(token, a.logger)
		if err != nil {
			a.logger.Warn("Telegram unavailable, notifications go to the log", "error", err)
		} else {
			a.telegram = tg
		}
	} else {
		a.logger.Warn("BOT_TOKEN is empty, notifications go to the log")
	}
}

// Migrate creates the schema. It is a no-op for the memory driver.
func (a *App) Migrate(ctx context.Context) error {
	if a.db == nil {
		return nil
	}
	return repositories.Migrate(ctx, a.db)
}

func (a *App) IssueToken(userID string) (string, error) {
	if a.cfg.Auth.JWTSecret == "" {
		return "", errors.New("auth.jwt_secret (TASKBOT_JWT_SECRET) must be set to issue tokens")
	}
	if _, err := a.Users.GetByID(context.Background(), userID); err != nil {
		return "", err
	}
	return middleware.IssueToken(a.jwtSecret, userID, a.cfg.Auth.TokenTTL, time.Now())
}

func (a *App) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(a.logger))
	router.Use(corsMiddleware())

	fontPath := ""
	if a.cfg.Files.FontDir != "" {
		fontPath = filepath.Join(a.cfg.Files.FontDir, "DejaVuSans.ttf")
	}

	h := routes.Handlers{
		Tasks:     handlers.NewTaskHandler(a.Tasks, a.Queries, a.files, a.cfg.Files.MaxSize, a.loc, a.logger),
		Companies: handlers.NewCompanyHandler(a.Companies, a.Queries, a.logger),
		Users:     handlers.NewUserHandler(a.Users, a.logger),
		Reports:   handlers.NewReportHandler(a.Queries, pdf.NewReportGenerator(fontPath), a.loc, a.logger),
		Metrics:   metrics.Handler(a.registry),
	}
	if a.Bot != nil && a.cfg.Telegram.WebhookSecret != "" {
		h.Integrations = handlers.NewIntegrationsHandler(a.Bot, a.cfg.Telegram.WebhookSecret, a.logger)
	}
	return routes.SetupRoutes(router, h, middleware.AuthMiddleware(a.jwtSecret, a.Users))
}

// Serve runs the HTTP API, the Telegram webhook and the scheduler until ctx
// is done, then shuts them down in that order.
func (a *App) Serve(ctx context.Context, configPath string) error {
	if a.telegram != nil && a.cfg.Telegram.WebhookURL != "" {
		if a.cfg.Telegram.WebhookSecret == "" {
			return errors.New("telegram.webhook_secret is required together with webhook_url")
		}
		if err := a.telegram.SetWebhook(a.cfg.Telegram.WebhookURL + "/integrations/telegram/webhook/" + a.cfg.Telegram.WebhookSecret); err != nil {
			return err
		}
	}

	if a.Bot != nil && a.cfg.Telegram.WebhookURL == "" {
		go a.telegram.Poll(ctx, a.Bot.HandleUpdate)
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", a.cfg.Server.Port))
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	defer ln.Close()
	if a.onListen != nil {
		a.onListen(ln.Addr())
	}
	srv := &http.Server{
		Handler:           a.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()
	defer a.shutdownHTTP(srv)

	if a.cfg.Scheduler.Enabled {
		if err := a.Scheduler.Start(ctx); err != nil {
			return err
		}
		defer a.Scheduler.Stop()
	}
	a.watchConfig(ctx, configPath)

	select {
	case <-ctx.Done():
		return nil
	case err := <-serveErr:
		return err
	}
}

func (a *App) shutdownHTTP(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		a.logger.Error("HTTP shutdown", "error", err)
	}
	a.logger.Info("HTTP server stopped")
}

// RunScheduler runs only the deadline scheduler, for deployments that keep
// it in a separate process.
func (a *App) RunScheduler(ctx context.Context, configPath string) error {
	a.watchConfig(ctx, configPath)
	return a.Scheduler.Run(ctx)
}

func (a *App) watchConfig(ctx context.Context, path string) {
	go func() {
		err := config.Watch(ctx, path, a.logger, func(c *config.Config) {
			a.Scheduler.Update(scheduler.FromConfig(c.Scheduler))
		})
		if err != nil {
			a.logger.Warn("Config hot reload disabled", "error", err)
		}
	}()
}

// Close waits for in-flight notifications, then releases connections in
// reverse order of opening.
func (a *App) Close() error {
	var errs []error
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.Dispatcher.Drain(ctx); err != nil {
		errs = append(errs, err)
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("HTTP request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"took", time.Since(start))
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
