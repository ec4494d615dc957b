package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"marketplace/internal/api"
	"marketplace/internal/auth"
	"marketplace/internal/config"
	"marketplace/internal/database"
	"marketplace/internal/events"
	"marketplace/internal/export"
	"marketplace/internal/logging"
	"marketplace/internal/metrics"
	"marketplace/internal/models"
	"marketplace/internal/notify"
	"marketplace/internal/realtime"
	"marketplace/internal/repository"
	"marketplace/internal/service"
	"marketplace/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type options struct {
	issueFor   string
	export     bool
	exportFrom string
	exportTo   string
}

func main() {
	var opts options
	flag.StringVar(&opts.issueFor, "issue-token", "", "print a bearer token for the given profile id and exit")
	flag.BoolVar(&opts.export, "export", false, "write bookings to an XLSX file under exports.path and exit")
	flag.StringVar(&opts.exportFrom, "from", "", "export start date, YYYY-MM-DD")
	flag.StringVar(&opts.exportTo, "to", "", "export end date, YYYY-MM-DD")
	flag.Parse()

	if err := run(opts); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run(opts options) error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := seedCatalog(ctx, db, logger); err != nil {
		return err
	}

	redisClient := initRedis(ctx, cfg, logger)
	if redisClient != nil {
		defer (func() { _ = repository.Close(redisClient) })()
	}
	sessions := initSessions(redisClient, logger)

	manager := auth.NewManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, config.Duration(cfg.Auth.TokenTTL), sessions)
	profiles := service.NewProfileService(db, manager, logging.Component(logger, "profiles"))

	if opts.export {
		path, err := exportBookings(ctx, db, cfg.Exports.Path, opts.exportFrom, opts.exportTo)
		if err != nil {
			return err
		}
		logger.Info().Str("path", path).Msg("bookings exported")
		return nil
	}

	if opts.issueFor != "" {
		// Sessions only outlive this process when they are stored in redis.
		if redisClient == nil {
			return errors.New("issue-token needs a reachable redis so the running server can see the session")
		}
		token, session, err := profiles.IssueToken(ctx, opts.issueFor)
		if err != nil {
			return fmt.Errorf("issue token for %s: %w", opts.issueFor, err)
		}
		fmt.Printf("%s\n# session %s, role %s, expires %s\n", token, session.ID, session.Role, session.ExpiresAt.Format(time.RFC3339))
		return nil
	}

	startMetrics(ctx, cfg, logger)

	backup := database.NewBackupService(db, cfg.Database.Path, cfg.Backup, logging.Component(logger, "backup"))
	go backup.Start(ctx)

	notifier, err := initNotifier(cfg, logger)
	if err != nil {
		return err
	}
	notifications := worker.NewNotificationWorker(
		db,
		notifier,
		redisClient,
		worker.RetryPolicyFromConfig(cfg.Worker),
		config.Duration(cfg.Worker.PollInterval),
		logging.Component(logger, "notifications"),
	)
	go notifications.Start(ctx)

	reminders, err := worker.NewReminderScheduler(db, db, notifications, cfg.Worker.ReminderTime, logging.Component(logger, "reminders"))
	if err != nil {
		return err
	}
	go reminders.Start(ctx)

	eventBus := events.NewEventBus()
	bookings := service.NewBookingService(db, db, db, eventBus, notifications, logging.Component(logger, "bookings"))
	disputes := service.NewDisputeService(db, bookings, sessions, db, eventBus, notifications, logging.Component(logger, "disputes"))
	wallets := service.NewWalletService(db, bookings, db, eventBus, notifications, logging.Component(logger, "wallet"))

	hub, feed, err := initRealtime(ctx, cfg, eventBus, logger)
	if err != nil {
		return err
	}
	defer feed.Close()

	ready := map[string]api.ReadyCheck{"database": db.Ready}
	if redisClient != nil {
		ready["redis"] = func(ctx context.Context) error { return repository.Ping(ctx, redisClient) }
	}

	router := api.NewRouter(api.Dependencies{
		Cfg: cfg.API,
		Handlers: &api.Handlers{
			Bookings: bookings,
			Disputes: disputes,
			Wallets:  wallets,
			Profiles: profiles,
			Hub:      hub,
		},
		Auth:   manager,
		Ready:  ready,
		Logger: logging.Component(logger, "http"),
	})
	httpServer := api.NewHTTPServer(cfg.API.HTTP, router, logger)

	return serve(ctx, httpServer, config.Duration(cfg.API.HTTP.ShutdownTimeout), logger)
}

// exportBookings writes the date range to dir and returns the file path.
func exportBookings(ctx context.Context, db *database.DB, dir, from, to string) (string, error) {
	for _, d := range []string{from, to} {
		if d == "" {
			continue
		}
		if _, err := time.Parse(models.DateLayout, d); err != nil {
			return "", fmt.Errorf("export date %q must be YYYY-MM-DD", d)
		}
	}
	list, err := db.ListBookings(ctx, models.BookingFilter{From: from, To: to, Limit: 10000})
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create exports dir: %w", err)
	}
	path := filepath.Join(dir, export.FileName(from, to))
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if err := export.WriteBookings(f, list); err != nil {
		_ = f.Close()
		return "", err
	}
	return path, f.Close()
}

func loadConfigAndLogger() (*config.Config, *zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logging.Component(baseLogger, "api-main"), closer, nil
}

// initRedis returns nil when redis is not configured or unreachable; the
// memory stores take over in that case.
func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	client := repository.NewRedisClient(cfg.Redis)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := repository.Ping(pingCtx, client); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = client.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return client
}

func initSessions(client *redis.Client, logger *zerolog.Logger) repository.SessionStore {
	memory := repository.NewMemorySessionRepository()
	if client == nil {
		return memory
	}
	return repository.NewFailoverSessionRepository(
		repository.NewRedisSessionRepository(client),
		memory,
		logging.Component(logger, "sessions"),
	)
}

// initNotifier falls back to logging notifications when telegram is off.
func initNotifier(cfg *config.Config, logger *zerolog.Logger) (worker.Notifier, error) {
	if !cfg.Telegram.Enabled {
		logger.Info().Msg("telegram disabled, notifications are only logged")
		return notify.NewLogNotifier(logging.Component(logger, "notify")), nil
	}
	bot, err := notify.NewBot(cfg.Telegram)
	if err != nil {
		logger.Error().Err(err).Msg("init telegram bot")
		return nil, err
	}
	logger.Info().Str("bot", bot.Self.UserName).Msg("telegram bot connected")
	return notify.NewTelegramNotifier(bot), nil
}

func initRealtime(ctx context.Context, cfg *config.Config, bus *events.EventBus, logger *zerolog.Logger) (*realtime.Hub, *realtime.Feed, error) {
	hub := realtime.NewHub(cfg.API.CORS.AllowedOrigins, logging.Component(logger, "realtime"))
	go hub.Run(ctx)

	feed := realtime.NewFeed(bus, config.Duration(cfg.Realtime.CoalesceWindow), logging.Component(logger, "feed"))
	for _, table := range []string{events.TableBookings, events.TableDisputes, events.TableWallet} {
		if err := feed.Subscribe(table, hub.Publish); err != nil {
			feed.Close()
			return nil, nil, err
		}
	}
	return hub, feed, nil
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	metrics.Register()
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}
	go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, logger)
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}

func serve(ctx context.Context, httpServer *api.HTTPServer, shutdownTimeout time.Duration, logger *zerolog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("http server stopped")
			return err
		}
		return nil
	case <-ctx.Done():
	}
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown")
	}

	logger.Info().Msg("API server stopped")
	return nil
}
