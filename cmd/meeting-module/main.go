// Точка входа Meeting Module — жизненный цикл встреч и файловое хранилище.
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/bigkaa/goartstore/meeting-module/internal/access"
	"github.com/bigkaa/goartstore/meeting-module/internal/api/handlers"
	"github.com/bigkaa/goartstore/meeting-module/internal/api/middleware"
	"github.com/bigkaa/goartstore/meeting-module/internal/config"
	"github.com/bigkaa/goartstore/meeting-module/internal/database"
	"github.com/bigkaa/goartstore/meeting-module/internal/repository"
	"github.com/bigkaa/goartstore/meeting-module/internal/scheduler"
	"github.com/bigkaa/goartstore/meeting-module/internal/server"
	"github.com/bigkaa/goartstore/meeting-module/internal/service"
	"github.com/bigkaa/goartstore/meeting-module/internal/storage/codec"
	"github.com/bigkaa/goartstore/meeting-module/internal/storage/objectstore"
	"github.com/bigkaa/goartstore/meeting-module/internal/storage/wal"
)

const (
	jwksClientTimeout   = 10 * time.Second
	jwksRefreshInterval = 15 * time.Minute
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
	logger.Info("Meeting Module запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("scheduler", cfg.SchedulerBackend),
		slog.Bool("audit_atomic", cfg.AuditAtomic),
	)

	if os.Getenv("MM_DEPHEALTH_GROUP") == "" {
		logger.Warn("MM_DEPHEALTH_GROUP не задана, используется значение по умолчанию",
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

	// 5. Объектное хранилище, журнал сжатия, кодек
	store, err := objectstore.New(cfg.DataDir)
	if err != nil {
		logger.Error("Ошибка инициализации хранилища", slog.String("error", err.Error()))
		os.Exit(1)
	}

	journal, err := wal.New(cfg.WALDir, logger)
	if err != nil {
		logger.Error("Ошибка инициализации WAL", slog.String("error", err.Error()))
		os.Exit(1)
	}

	fileCodec := codec.New(store, journal, logger)
	// Незавершённые сжатия: откат или фиксация по состоянию файлов
	if _, err := fileCodec.Recover(); err != nil {
		logger.Error("Ошибка восстановления сжатия", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 6. Repositories
	meetingRepo := repository.NewMeetingRepository(pool)
	auditRepo := repository.NewAuditRepository(pool)
	userRepo := repository.NewUserRepository(pool)
	blobOwnerRepo := repository.NewBlobOwnerRepository(pool)

	// 7. Access Gate и файловый сервис
	gate := access.NewGate(blobOwnerRepo, meetingRepo, cfg.OwnerCacheSize, cfg.OwnerCacheTTL, logger)
	fileSvc := service.NewFileService(store, fileCodec, gate, blobOwnerRepo, meetingRepo, service.FileConfig{
		MaxUploadSize:     cfg.MaxUploadSize,
		CompressThreshold: cfg.CompressThreshold,
	}, logger)
	if _, err := fileSvc.ReportStored(); err != nil {
		logger.Warn("Не удалось подсчитать файлы хранилища", slog.String("error", err.Error()))
	}

	// 8. Планировщик отложенного удаления
	var sched scheduler.Scheduler
	switch cfg.SchedulerBackend {
	case config.SchedulerRedis:
		sched = scheduler.NewAsynqScheduler(scheduler.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Workers:  cfg.SchedulerWorkers,
			MaxRetry: cfg.JobMaxRetry,
		}, logger)
	default:
		sched = scheduler.NewLocalScheduler(scheduler.LocalConfig{
			Workers:  cfg.SchedulerWorkers,
			MaxRetry: cfg.JobMaxRetry,
		}, logger)
	}

	// 9. Сервисы жизненного цикла
	var deleteTx service.DeleteTx
	if cfg.AuditAtomic {
		deleteTx = service.NewPgDeleteTx(repository.NewTxRunner(pool))
	}
	deletionSvc := service.NewDeletionService(meetingRepo, auditRepo, fileSvc, sched, deleteTx, service.DeletionConfig{
		Delay:            cfg.DeleteDelay,
		SweepInterval:    cfg.SweepInterval,
		SweepConcurrency: cfg.SweepConcurrency,
	}, logger)
	meetingSvc := service.NewMeetingService(meetingRepo, auditRepo, userRepo, deletionSvc, service.NewLogNotifier(logger), logger)

	// 10. Фоновые процессы
	if err := deletionSvc.Start(ctx); err != nil {
		logger.Error("Ошибка запуска сервиса удаления", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 10.1 topologymetrics — мониторинг зависимостей (PostgreSQL + JWKS)
	dephealthSvc, dephealthErr := service.NewDephealthService(service.DephealthConfig{
		ServiceID:     "meeting-module",
		Group:         cfg.DephealthGroup,
		PgConnURL:     cfg.DatabaseURL(),
		JWKSURL:       cfg.JWKSUrl,
		CheckInterval: cfg.DephealthCheckInterval,
	}, pgDB, logger)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
	} else {
		if startErr := dephealthSvc.Start(ctx); startErr != nil {
			logger.Warn("Ошибка запуска topologymetrics",
				slog.String("error", startErr.Error()),
			)
		} else {
			logger.Info("topologymetrics запущен",
				slog.String("group", cfg.DephealthGroup),
				slog.String("check_interval", cfg.DephealthCheckInterval.String()),
			)
		}
	}

	// 11. Контракт API
	doc, err := handlers.LoadOpenAPI(ctx)
	if err != nil {
		logger.Error("Некорректный OpenAPI контракт", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 12. JWT middleware
	jwtAuth, err := middleware.NewJWTAuth(middleware.JWTAuthConfig{
		JWKSURL:         cfg.JWKSUrl,
		ClientTimeout:   jwksClientTimeout,
		RefreshInterval: jwksRefreshInterval,
		JWTLeeway:       cfg.JWTLeeway,
	}, logger)
	if err != nil {
		logger.Error("Ошибка инициализации JWT", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("JWT аутентификация настроена", slog.String("jwks_url", cfg.JWKSUrl))

	// 13. Создание и запуск HTTP-сервера
	srv := server.New(cfg, logger, server.Handlers{
		Health:   handlers.NewHealthHandler(cfg.DataDir, cfg.WALDir, database.NewReadinessChecker(pool)),
		Files:    handlers.NewFilesHandler(fileSvc, cfg.MaxUploadSize),
		Meetings: handlers.NewMeetingsHandler(meetingSvc),
		OpenAPI:  handlers.NewOpenAPIHandler(doc),
	}, jwtAuth)
	runErr := srv.Run()

	// 14. Graceful shutdown фоновых задач
	logger.Info("Останавливаем фоновые задачи...")
	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}
	deletionSvc.Stop()

	if runErr != nil {
		logger.Error("Ошибка сервера", slog.String("error", runErr.Error()))
		os.Exit(1)
	}
	logger.Info("Meeting Module остановлен")
}
