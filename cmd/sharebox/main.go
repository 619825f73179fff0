// Точка входа sharebox — сервис хранения и раздачи файлов с дедупликацией.
// Загружает конфигурацию, применяет миграции, подключается к PostgreSQL,
// переносит legacy-метаданные, запускает мониторинг зависимостей
// и HTTP-сервер с graceful shutdown.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/bigkaa/goartstore/sharebox/internal/api/handlers"
	"github.com/bigkaa/goartstore/sharebox/internal/config"
	"github.com/bigkaa/goartstore/sharebox/internal/database"
	"github.com/bigkaa/goartstore/sharebox/internal/repository"
	"github.com/bigkaa/goartstore/sharebox/internal/server"
	"github.com/bigkaa/goartstore/sharebox/internal/service"
	"github.com/bigkaa/goartstore/sharebox/internal/storage/contentstore"
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
	logger.Info("sharebox запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("data_dir", cfg.DataDir),
	)

	// 3. Применение миграций БД
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Подключение к PostgreSQL (pgxpool)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// Адаптер pgxpool → *sql.DB для topologymetrics (connection pool mode)
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 5. Content store
	store, err := contentstore.New(cfg.DataDir)
	if err != nil {
		logger.Error("Ошибка инициализации хранилища", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 6. Repositories и services
	txRunner := repository.NewTxRunner(pool)
	fileRepo := repository.NewFileRecordRepository(pool)
	shareCache := service.NewShareCache(cfg.ShareCacheSize, cfg.ShareCacheTTL)

	ingestSvc := service.NewIngestService(txRunner, store, cfg.AllowedExtensions, logger)
	filesSvc := service.NewFileService(fileRepo, store, shareCache, logger)

	// 7. Однократный перенос legacy-метаданных до приёма запросов
	if cfg.LegacyMetadataPath != "" {
		importer := service.NewLegacyImporter(txRunner, store, logger)
		if _, err := importer.Import(ctx, cfg.LegacyMetadataPath); err != nil {
			logger.Warn("Импорт legacy-метаданных не выполнен, запуск продолжается",
				slog.String("error", err.Error()),
			)
		}
	}

	// 8. topologymetrics — мониторинг PostgreSQL
	dephealthSvc, dephealthErr := service.NewDephealthService(
		"sharebox",
		cfg.DephealthGroup,
		pgDB,
		cfg.DatabaseURL(),
		cfg.DephealthCheckInterval,
		logger,
	)
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
			defer dephealthSvc.Stop()
			logger.Info("topologymetrics запущен",
				slog.String("group", cfg.DephealthGroup),
				slog.String("check_interval", cfg.DephealthCheckInterval.String()),
			)
		}
	}

	// 9. HTTP handlers
	healthHandler := handlers.NewHealthHandler(store, database.NewReadinessChecker(pool))
	filesHandler := handlers.NewFilesHandler(ingestSvc, filesSvc, cfg.MaxRequestSize, logger)
	apiHandler := handlers.NewAPIHandler(filesHandler, healthHandler)

	// 10. HTTP-сервер
	srv := server.New(cfg, logger, apiHandler)
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("sharebox остановлен")
}
