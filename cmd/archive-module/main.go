// Точка входа Archive Module — архив файлов из групповых чатов.
// Загружает конфигурацию, применяет миграции, подключается к PostgreSQL,
// Redis и Meilisearch, собирает конвейер архивирования и обработку
// запросов, запускает планировщик отчётов, topologymetrics и
// HTTP-сервер (события OneBot + административное API) с graceful shutdown.
package main

import (
	"context"
	"log/slog"
	"os"
	_ "time/tzdata"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/bigkaa/goartstore/archive-module/internal/api/handlers"
	"github.com/bigkaa/goartstore/archive-module/internal/api/middleware"
	"github.com/bigkaa/goartstore/archive-module/internal/config"
	"github.com/bigkaa/goartstore/archive-module/internal/database"
	"github.com/bigkaa/goartstore/archive-module/internal/onebot"
	"github.com/bigkaa/goartstore/archive-module/internal/placement"
	"github.com/bigkaa/goartstore/archive-module/internal/ratelimit"
	"github.com/bigkaa/goartstore/archive-module/internal/repository"
	"github.com/bigkaa/goartstore/archive-module/internal/retry"
	"github.com/bigkaa/goartstore/archive-module/internal/scheduler"
	"github.com/bigkaa/goartstore/archive-module/internal/search"
	"github.com/bigkaa/goartstore/archive-module/internal/server"
	"github.com/bigkaa/goartstore/archive-module/internal/service"
	"github.com/bigkaa/goartstore/archive-module/internal/shortlink"
	"github.com/bigkaa/goartstore/archive-module/internal/watermark"
)

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("Archive Module запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)

	if os.Getenv("AR_DEPHEALTH_GROUP") == "" {
		logger.Warn("AR_DEPHEALTH_GROUP не задана, используется значение по умолчанию",
			slog.String("default", cfg.DephealthGroup),
		)
	}

	// 3. Применение миграций БД
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Подключение к PostgreSQL (pgxpool)
	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// 4.1 Адаптер pgxpool → *sql.DB для topologymetrics
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 5. Repositories
	itemRepo := repository.NewArchivedItemRepository(pool)
	requestRepo := repository.NewPendingRequestRepository(pool)

	// 6. Redis для лимитов (опционально). Без Redis лимиты не действуют.
	var (
		counterStore ratelimit.CounterStore
		redisChecker handlers.ReadinessChecker
	)
	if cfg.RedisURL != "" {
		redisStore, redisErr := ratelimit.NewRedisStore(ctx, cfg.RedisURL)
		if redisErr != nil {
			logger.Warn("Redis недоступен, лимиты запросов отключены",
				slog.String("error", redisErr.Error()),
			)
		} else {
			defer redisStore.Close()
			counterStore = redisStore
			redisChecker = redisStore
			logger.Info("Redis подключён")
		}
	} else {
		logger.Warn("AR_REDIS_URL не задан, лимиты запросов отключены")
	}

	loc := scheduler.LoadLocation(cfg.SchedulerTimezone, logger)
	limiter := ratelimit.New(counterStore, ratelimit.Options{
		DailyLimit:  cfg.QueryDailyLimit,
		ErrorLimit:  cfg.QueryErrorWeeklyLimit,
		DailyPrefix: cfg.QueryDailyKeyPrefix,
		ErrorPrefix: cfg.QueryErrorKeyPrefix,
		Location:    loc,
	}, logger)

	// 7. Поисковый индекс (опционально)
	var backend search.Backend
	if cfg.MeiliEnabled() {
		meili := search.NewMeiliBackend(cfg.MeiliURL, cfg.MeiliAPIKey, cfg.MeiliIndex, cfg.MeiliTimeout, logger)
		if confErr := meili.Configure(ctx); confErr != nil {
			logger.Warn("Не удалось настроить индекс Meilisearch",
				slog.String("error", confErr.Error()),
			)
		}
		backend = meili
	} else {
		logger.Info("Meilisearch не настроен, поиск только по PostgreSQL")
	}
	indexer := search.NewIndexer(backend, logger)

	// 8. Размещение, водяные знаки, короткие ссылки, OneBot
	strategy, err := placement.New(cfg, logger)
	if err != nil {
		logger.Error("Ошибка инициализации хранилища", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Хранилище архива выбрано", slog.Bool("remote", strategy.Remote()))

	stage := watermark.NewStage(watermark.Options{
		Enabled:   cfg.WatermarkEnabled,
		Text:      cfg.WatermarkText,
		TextTimes: cfg.WatermarkTextTimes,
	}, logger)

	shortener := shortlink.New(shortlink.Options{
		Endpoint:  cfg.ShortLinkURL,
		Token:     cfg.ShortLinkToken,
		Bearer:    cfg.ShortLinkBearer,
		Timeout:   cfg.ShortLinkTimeout,
		CacheSize: cfg.ShortLinkCacheSize,
		CacheTTL:  cfg.ShortLinkCacheTTL,
	}, logger)

	bot := onebot.New(onebot.Options{
		BaseURL:     cfg.OneBotURL,
		Token:       cfg.OneBotToken,
		Timeout:     cfg.OneBotTimeout,
		Pin:         retry.Policy{Attempts: cfg.PinAttempts, Delay: cfg.PinDelay},
		TempDir:     cfg.TempDir,
		MaxFileSize: cfg.MaxFileSize,
	}, logger)
	if cfg.OneBotSecret == "" {
		logger.Warn("AR_ONEBOT_SECRET не задан, подпись событий не проверяется")
	}

	// 9. Services
	searchSvc := service.NewSearchService(indexer, itemRepo, cfg.SearchCacheSize, cfg.SearchCacheTTL, logger)
	tracker := service.NewFulfillmentTracker(requestRepo, searchSvc, service.TrackerOptions{
		PollTimeout: cfg.QueryPollingTimeout,
		PollBatch:   cfg.QueryPollingBatch,
		SearchLimit: cfg.QuerySearchLimit,
	}, logger)
	orchestrator := service.NewOrchestrator(itemRepo, strategy, stage, indexer, tracker, searchSvc,
		service.IngestOptions{
			Concurrency:   cfg.IngestConcurrency,
			KeepLocalCopy: cfg.KeepLocalCopy,
		}, logger)
	fileHandler := service.NewFileHandler(orchestrator, bot, bot, cfg.ArchiveContexts, logger)
	requestHandler := service.NewRequestHandler(tracker, searchSvc, limiter, bot, shortener,
		service.RequestOptions{
			Contexts:            cfg.RequestContexts,
			AdminUsers:          cfg.AdminUsers,
			AdminContexts:       cfg.AdminContexts,
			SearchLimit:         cfg.QuerySearchLimit,
			ShortLinkTimeout:    cfg.ReplyShortLinkTimeout,
			MuteInvalidTemplate: cfg.MuteInvalidTemplate,
			MuteDailyLimit:      cfg.MuteDailyLimit,
		}, logger)
	dispatcher := service.NewDispatcher(fileHandler, requestHandler, logger)
	archiveSvc := service.NewArchiveService(itemRepo, requestRepo, indexer, searchSvc, logger)

	// 10. Планировщик периодических задач
	var jobs handlers.JobRunner
	var sched *scheduler.Scheduler
	if cfg.SchedulerEnabled {
		sched = scheduler.New(loc, logger)
		poller := service.NewPoller(tracker, itemRepo, requestRepo, bot, service.PollerOptions{
			AdminContexts: cfg.AdminContexts,
			FeedbackAge:   cfg.QueryFeedbackAge,
			Location:      loc,
		}, logger)
		if err := poller.RegisterJobs(sched); err != nil {
			logger.Error("Ошибка регистрации задач планировщика", slog.String("error", err.Error()))
			os.Exit(1)
		}
		sched.Start()
		jobs = sched
	} else {
		logger.Info("Планировщик отключён (AR_SCHEDULER_ENABLED=false)")
	}

	// 11. topologymetrics — мониторинг зависимостей (PostgreSQL + Meilisearch)
	meiliURL := ""
	if cfg.MeiliEnabled() {
		meiliURL = cfg.MeiliURL
	}
	dephealthSvc, dephealthErr := service.NewDephealthService(service.DephealthOptions{
		ServiceID:     "archive-module",
		Group:         cfg.DephealthGroup,
		DB:            pgDB,
		PgConnURL:     cfg.DatabaseURL(),
		MeiliURL:      meiliURL,
		CheckInterval: cfg.DephealthCheckInterval,
	}, logger)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
		dephealthSvc = nil
	} else if startErr := dephealthSvc.Start(ctx); startErr != nil {
		logger.Warn("Ошибка запуска topologymetrics", slog.String("error", startErr.Error()))
		dephealthSvc = nil
	}

	// 12. JWT middleware (опционально: без JWKS административное API не публикуется)
	var jwtAuth *middleware.JWTAuth
	if cfg.JWTJWKSURL != "" {
		jwtAuth, err = middleware.NewJWTAuth(middleware.JWTOptions{
			JWKSURL:         cfg.JWTJWKSURL,
			CACertPath:      cfg.JWTCACertPath,
			Issuer:          cfg.JWTIssuer,
			Leeway:          cfg.JWTLeeway,
			ClientTimeout:   cfg.JWKSClientTimeout,
			RefreshInterval: cfg.JWKSRefreshInterval,
			AdminGroups:     cfg.RoleAdminGroups,
			ReadonlyGroups:  cfg.RoleReadonlyGroups,
		}, logger)
		if err != nil {
			logger.Error("Ошибка создания JWT middleware", slog.String("error", err.Error()))
			os.Exit(1)
		}
		logger.Info("JWT middleware инициализирован",
			slog.String("jwks_url", cfg.JWTJWKSURL),
			slog.String("issuer", cfg.JWTIssuer),
		)
	}

	// 13. Создание и запуск HTTP-сервера
	srv := server.New(cfg, logger, server.Handlers{
		Health:  handlers.NewHealthHandler(database.NewReadinessChecker(pool), redisChecker),
		Webhook: handlers.NewWebhookHandler(cfg.OneBotSecret, dispatcher, logger),
		Admin:   handlers.NewAdminHandler(tracker, archiveSvc, jobs, logger),
	}, jwtAuth)
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 14. Graceful shutdown фоновых задач
	logger.Info("Останавливаем фоновые задачи...")
	stopCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if sched != nil {
		sched.Stop(stopCtx)
	}
	dispatcher.Wait(stopCtx)
	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}

	logger.Info("Archive Module остановлен", slog.Duration("shutdown_timeout", cfg.ShutdownTimeout))
}
