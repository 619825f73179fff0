// legacy_import.go — однократный перенос записей из legacy metadata/files.json
// в ledger. Выполняется при старте; ошибки импорта не прерывают запуск.
package service

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/lithammer/shortuuid/v4"

	"github.com/bigkaa/goartstore/sharebox/internal/domain/model"
	"github.com/bigkaa/goartstore/sharebox/internal/repository"
	"github.com/bigkaa/goartstore/sharebox/internal/storage/legacy"
)

// ImportReport — итог импорта legacy-метаданных.
type ImportReport struct {
	// Migrated — количество перенесённых записей
	Migrated int
	// Skipped — записи без blob-а, с существующим id или хэшем
	Skipped int
	// Failed — записи, хэш которых не удалось вычислить
	Failed int
}

// LegacyImporter переносит legacy-записи в ledger.
type LegacyImporter struct {
	ledger Ledger
	store  BlobStore
	logger *slog.Logger
	now    func() time.Time
}

// NewLegacyImporter создаёт импортёр legacy-метаданных.
func NewLegacyImporter(ledger Ledger, store BlobStore, logger *slog.Logger) *LegacyImporter {
	return &LegacyImporter{
		ledger: ledger,
		store:  store,
		logger: logger.With(slog.String("component", "legacy_importer")),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Import переносит записи из legacy-файла path одной транзакцией.
// Отсутствующий файл — не ошибка: возвращается пустой отчёт.
// Повторный запуск ничего не добавляет: записи с существующим id или
// хэшем пропускаются. Ошибка транзакции откатывает весь импорт и
// возвращается вызывающему коду для логирования.
func (imp *LegacyImporter) Import(ctx context.Context, path string) (ImportReport, error) {
	var report ImportReport

	entries, err := legacy.Load(path)
	if err != nil {
		if errors.Is(err, legacy.ErrNotExist) {
			imp.logger.Debug("Legacy-метаданные отсутствуют, импорт не требуется",
				slog.String("path", path),
			)
			return report, nil
		}
		imp.logger.Error("Ошибка чтения legacy-метаданных",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return report, err
	}

	ids := make([]string, 0, len(entries))
	for id := range entries {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	err = imp.ledger.WithFileRecords(ctx, func(repo repository.FileRecordRepository) error {
		report = ImportReport{}
		for _, id := range ids {
			migrated, err := imp.importEntry(ctx, repo, id, entries[id], &report)
			if err != nil {
				return err
			}
			if migrated {
				report.Migrated++
			}
		}
		return nil
	})
	if err != nil {
		imp.logger.Error("Ошибка импорта legacy-метаданных, транзакция откатана",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return ImportReport{}, err
	}

	imp.logger.Info("Импорт legacy-метаданных завершён",
		slog.String("path", path),
		slog.Int("migrated", report.Migrated),
		slog.Int("skipped", report.Skipped),
		slog.Int("failed", report.Failed),
	)
	return report, nil
}

// importEntry переносит одну запись. Возвращает true, если запись вставлена.
// Ошибка возвращается только для сбоев ledger.
func (imp *LegacyImporter) importEntry(ctx context.Context, repo repository.FileRecordRepository, id string, e legacy.Entry, report *ImportReport) (bool, error) {
	log := imp.logger.With(slog.String("file_id", id))

	if !imp.store.Exists(e.Path) {
		log.Debug("Blob legacy-записи отсутствует, пропуск", slog.String("path", e.Path))
		report.Skipped++
		return false, nil
	}

	if _, err := repo.GetByID(ctx, id); err == nil {
		report.Skipped++
		return false, nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return false, mapRepoError(err, "поиск записи %s", id)
	}

	hash := e.Hash
	if hash == "" {
		h, err := imp.store.Hash(e.Path)
		if err != nil {
			log.Warn("Не удалось вычислить хэш legacy-файла",
				slog.String("path", e.Path),
				slog.String("error", err.Error()),
			)
			report.Failed++
			return false, nil
		}
		hash = h
	}

	if _, err := repo.GetByHash(ctx, hash); err == nil {
		log.Debug("Файл с таким хэшем уже есть в ledger, пропуск", slog.String("hash", hash))
		report.Skipped++
		return false, nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return false, mapRepoError(err, "поиск по хэшу")
	}

	createdAt, ok := legacy.ParseUploadDate(e.UploadDate)
	if !ok {
		createdAt = imp.now()
	}

	token, err := imp.shareToken(ctx, repo, e.ShareToken)
	if err != nil {
		return false, err
	}

	physical := e.Filename
	if physical == "" {
		physical = filepath.Base(e.Path)
	}
	originalName := strings.TrimSpace(e.OriginalName)
	if originalName == "" {
		originalName = physical
	}

	size := e.Size
	if size < 0 {
		size = 0
	}

	downloads := e.DownloadCount
	if downloads < 0 {
		downloads = 0
	}

	rec := &model.FileRecord{
		ID:            id,
		OriginalName:  originalName,
		DisplayName:   originalName,
		PhysicalName:  physical,
		StoragePath:   e.Path,
		SizeBytes:     size,
		ContentHash:   hash,
		CreatedAt:     createdAt,
		ShareToken:    token,
		DownloadCount: downloads,
	}
	if err := repo.Insert(ctx, rec); err != nil {
		return false, mapRepoError(err, "вставка legacy-записи %s", id)
	}
	return true, nil
}

// shareToken возвращает legacy-токен, если он задан и свободен,
// иначе новый токен.
func (imp *LegacyImporter) shareToken(ctx context.Context, repo repository.FileRecordRepository, token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return shortuuid.New(), nil
	}
	_, err := repo.GetByShareToken(ctx, token)
	switch {
	case err == nil:
		imp.logger.Warn("Legacy share token уже занят, выдан новый", slog.String("share_token", token))
		return shortuuid.New(), nil
	case errors.Is(err, repository.ErrNotFound):
		return token, nil
	default:
		return "", mapRepoError(err, "поиск по share token")
	}
}
