package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/hibiken/asynq"

	"github.com/Proton-105/mintwatch/internal/alert"
	"github.com/Proton-105/mintwatch/internal/database"
	apperrors "github.com/Proton-105/mintwatch/internal/errors"
	"github.com/Proton-105/mintwatch/internal/expiry"
	"github.com/Proton-105/mintwatch/internal/health"
	"github.com/Proton-105/mintwatch/internal/httpapi"
	"github.com/Proton-105/mintwatch/internal/i18n"
	"github.com/Proton-105/mintwatch/internal/idempotency"
	"github.com/Proton-105/mintwatch/internal/jobs"
	"github.com/Proton-105/mintwatch/internal/jobs/handlers"
	"github.com/Proton-105/mintwatch/internal/lifecycle"
	"github.com/Proton-105/mintwatch/internal/notify"
	"github.com/Proton-105/mintwatch/internal/ratelimit"
	"github.com/Proton-105/mintwatch/internal/repository"
	"github.com/Proton-105/mintwatch/internal/user"
	"github.com/Proton-105/mintwatch/internal/usercache"
	"github.com/Proton-105/mintwatch/migrations"
	"github.com/Proton-105/mintwatch/pkg/config"
	"github.com/Proton-105/mintwatch/pkg/graceful"
	"github.com/Proton-105/mintwatch/pkg/logger"
	"github.com/Proton-105/mintwatch/pkg/metrics"
	appredis "github.com/Proton-105/mintwatch/pkg/redis"

	_ "github.com/lib/pq"
)

const (
	recordGaugeInterval = time.Minute
	rateLimitCleanEvery = 10 * time.Minute
	rateLimitMaxKeyAge  = time.Hour
	shutdownGracePeriod = 30 * time.Second
	sentryFlushTimeout  = 2 * time.Second
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "mintwatch: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, v, err := config.Load()
	if err != nil {
		return err
	}

	if cfg.Sentry.Enabled {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.Sentry.DSN,
			Environment: cfg.AppEnv,
			SampleRate:  cfg.Sentry.SampleRate,
		}); err != nil {
			return fmt.Errorf("init sentry: %w", err)
		}
		defer sentry.Flush(sentryFlushTimeout)
	}

	log := logger.New(*cfg)
	slog.SetDefault(log)

	log.Info("starting mintwatch",
		slog.String("env", cfg.AppEnv),
		slog.String("addr", cfg.Server.Addr()),
		slog.String("provider", cfg.Notifier.Provider),
		slog.Bool("jobs", cfg.Jobs.Enabled),
	)

	config.Watch(v, func(next *config.Config) {
		logger.SetLevel(next.Logger.Level)
		log.Info("configuration reloaded", slog.String("log_level", next.Logger.Level))
	}, func(err error) {
		log.Warn("configuration reload rejected", slog.Any("error", err))
	})

	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	if cfg.Database.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("ping database: %w", err)
	}

	if err := database.NewMigrator(db, log).Apply(ctx, migrations.FS, "."); err != nil {
		_ = db.Close()
		return fmt.Errorf("apply migrations: %w", err)
	}
	log.Info("database migrations applied")

	rdb, err := appredis.New(ctx, cfg.Redis)
	if err != nil {
		_ = db.Close()
		return err
	}

	shutdown := lifecycle.NewShutdown(log)
	shutdown.Register(lifecycle.StageClose, "postgres", func(context.Context) error { return db.Close() })
	shutdown.Register(lifecycle.StageClose, "redis", func(context.Context) error { return rdb.Close() })

	errHandler := apperrors.NewHandler(log, cfg.Sentry.Enabled)

	store := usercache.NewCachedStore(
		repository.NewPostgresStore(db, log),
		appredis.NewMetricsClient(rdb),
		cfg.Cache.UserTTL,
		log,
	)

	catalog, err := i18n.Load(cfg.Notifier.Language)
	if err != nil {
		_ = shutdown.Execute(context.Background())
		return fmt.Errorf("load message catalog: %w", err)
	}
	translator := catalog.Translator(cfg.Notifier.Language)
	log.Info("message catalog loaded",
		slog.String("language", translator.Lang()),
		slog.Any("available", catalog.Languages()),
	)

	receipts := idempotency.NewManager(idempotency.NewRedisStore(rdb.Client, log), log, cfg.Idempotency.LockTTL)
	receiptCleaner := idempotency.NewCleaner(rdb.Client, log, cfg.Idempotency.CleanupInterval, cfg.Idempotency.ReceiptTTL)

	dispatcher := notify.NewDispatcher(newSender(cfg.Notifier, log), receipts, translator, notify.Options{
		Provider:    cfg.Notifier.Provider,
		MaxParallel: cfg.Notifier.MaxParallel,
		ReceiptTTL:  cfg.Idempotency.ReceiptTTL,
		Retry: apperrors.RetryPolicy{
			MaxAttempts:    cfg.Notifier.Retry.MaxAttempts,
			InitialBackoff: cfg.Notifier.Retry.InitialBackoff,
			MaxBackoff:     cfg.Notifier.Retry.MaxBackoff,
			Multiplier:     cfg.Notifier.Retry.Multiplier,
			AttemptTimeout: cfg.Notifier.Retry.AttemptTimeout,
		},
		Breaker: apperrors.BreakerSettings{
			ErrorThreshold:      cfg.Notifier.Breaker.ErrorThreshold,
			MinRequests:         cfg.Notifier.Breaker.MinRequests,
			OpenTimeout:         cfg.Notifier.Breaker.OpenTimeout,
			HalfOpenMaxRequests: cfg.Notifier.Breaker.HalfOpenMaxRequests,
		},
	}, log)

	checker := health.NewChecker(log)
	checker.AddCheck("postgres", health.NewDBChecker(db))
	checker.AddCheck("redis", health.NewRedisChecker(rdb.Client))

	var alerter expiry.Alerter
	if cfg.Alert.Enabled {
		bot, err := alert.NewTelegramBot(cfg.Alert.TelegramToken)
		if err != nil {
			_ = shutdown.Execute(context.Background())
			return fmt.Errorf("init alert bot: %w", err)
		}
		alerter = alert.NewTelegramAlerter(bot, cfg.Alert.ChatID, translator, cfg.Alert.MinInterval, log)
		checker.AddOptionalCheck("telegram", health.NewTelegramChecker(bot))
	}

	expiryService := expiry.NewService(store, dispatcher, alerter, expiry.Options{
		UserConcurrency:   cfg.Expiry.UserConcurrency,
		RecordConcurrency: cfg.Expiry.RecordConcurrency,
		Deadline:          cfg.Expiry.Deadline,
	}, log)
	userService := user.NewService(store, log)

	var scanQueue httpapi.ScanEnqueuer
	if cfg.Jobs.Enabled {
		manager, err := startJobs(cfg, expiryService, receiptCleaner, shutdown, log)
		if err != nil {
			_ = shutdown.Execute(context.Background())
			return err
		}
		scanQueue = manager
	} else {
		go receiptCleaner.Run(ctx)
	}

	var (
		limiter ratelimit.Limiter
		rules   *ratelimit.Rules
	)
	if cfg.RateLimit.Enabled {
		memory := ratelimit.NewMemoryLimiter()
		limiter = ratelimit.NewAdaptiveLimiter(ratelimit.NewRedisLimiter(rdb.Client, log), memory, log)
		rules = ratelimit.NewRules(cfg.RateLimit)
		go ratelimit.NewCleaner(rdb.Client, memory, log, rateLimitCleanEvery, rateLimitMaxKeyAge).Run(ctx)
	}

	go metrics.NewRecordCollector(store, log, recordGaugeInterval).Run(ctx)

	probes := lifecycle.NewProbes(checker, log)
	shutdown.Register(lifecycle.StageDrain, "readiness", func(context.Context) error {
		probes.Drain()
		return nil
	})

	router := httpapi.NewRouter(httpapi.Deps{
		Expiry:  expiryService,
		Jobs:    scanQueue,
		Users:   userService,
		Probes:  probes,
		Limiter: limiter,
		Rules:   rules,
		Secret:  cfg.Cron.Secret,
		Errors:  errHandler,
		Log:     log,
	})

	server := graceful.NewServer(log, &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, cfg.Server.ShutdownTimeout)

	serveErr := server.ListenAndServe(ctx)
	if serveErr != nil {
		log.Error("http server stopped", slog.Any("error", serveErr))
	}

	log.Info("mintwatch shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
	defer cancel()

	return errors.Join(serveErr, shutdown.Execute(shutdownCtx))
}

// startJobs runs the asynq worker and scheduler against the shared Redis and registers
// their teardown. The returned manager queues on-demand scans.
func startJobs(cfg *config.Config, runner handlers.Runner, cleaner handlers.Cleaner, shutdown *lifecycle.Shutdown, log *slog.Logger) (jobs.Manager, error) {
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}

	worker := jobs.NewWorker(redisOpt, cfg.Jobs.Queues, cfg.Jobs.Concurrency, log)
	worker.RegisterHandler(jobs.TaskTypeExpiryScan, handlers.NewExpiryScanHandler(runner, log))
	worker.RegisterHandler(jobs.TaskTypeReceiptCleanup, handlers.NewReceiptCleanupHandler(cleaner, log))
	if err := worker.Run(); err != nil {
		return nil, fmt.Errorf("start jobs worker: %w", err)
	}
	shutdown.Register(lifecycle.StageWorkers, "jobs worker", func(context.Context) error {
		worker.Shutdown()
		return nil
	})

	scheduler := jobs.NewScheduler(redisOpt, cfg.Jobs.ExpiryCron, cfg.Idempotency.CleanupInterval, log)
	if err := scheduler.RegisterTasks(); err != nil {
		return nil, fmt.Errorf("register scheduled tasks: %w", err)
	}
	if err := scheduler.Run(); err != nil {
		return nil, fmt.Errorf("start scheduler: %w", err)
	}
	shutdown.Register(lifecycle.StageWorkers, "scheduler", func(context.Context) error {
		scheduler.Shutdown()
		return nil
	})

	manager := jobs.NewManager(redisOpt, log)
	shutdown.Register(lifecycle.StageWorkers, "jobs client", func(context.Context) error {
		return manager.Close()
	})

	return manager, nil
}

func newSender(cfg config.NotifierConfig, log *slog.Logger) notify.Sender {
	if cfg.Provider == "twilio" {
		return notify.NewTwilioSender(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken, cfg.Twilio.From, log)
	}
	return notify.NewLogSender(log)
}
