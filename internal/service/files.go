// files.go — выдача, share-ссылки, список, редактирование и удаление файлов.
// Запись считается живой, только если её blob существует на диске:
// записи без blob-а не видны ни в одной операции чтения.
package service

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/bigkaa/goartstore/sharebox/internal/domain/model"
	"github.com/bigkaa/goartstore/sharebox/internal/repository"
)

// Download — открытый blob и его запись.
// Вызывающий код обязан закрыть File.
type Download struct {
	Record *model.FileRecord
	File   *os.File
}

// FileService — сервис чтения и изменения файлов.
type FileService struct {
	repo   repository.FileRecordRepository
	store  BlobStore
	cache  *ShareCache
	logger *slog.Logger
}

// NewFileService создаёт сервис файлов.
// cache может быть nil — share token тогда всегда ищется в ledger.
func NewFileService(repo repository.FileRecordRepository, store BlobStore, cache *ShareCache, logger *slog.Logger) *FileService {
	return &FileService{
		repo:   repo,
		store:  store,
		cache:  cache,
		logger: logger.With(slog.String("component", "file_service")),
	}
}

// Download открывает blob файла и увеличивает счётчик скачиваний.
// Счётчик коммитится до начала передачи данных. Инкремент выполняется
// как read-modify-write: параллельные скачивания могут терять обновления.
func (s *FileService) Download(ctx context.Context, id string) (*Download, error) {
	d, err := s.download(ctx, id)
	operationsTotal.WithLabelValues("download", resultLabel(err)).Inc()
	return d, err
}

func (s *FileService) download(ctx context.Context, id string) (*Download, error) {
	rec, err := s.getLive(ctx, id)
	if err != nil {
		return nil, err
	}

	f, err := s.store.Open(rec.StoragePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		s.logger.Error("Ошибка открытия blob-а",
			slog.String("file_id", id),
			slog.String("path", rec.StoragePath),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("%w: открытие blob-а %s: %v", ErrIO, id, err)
	}

	rec.DownloadCount++
	if err := s.repo.Update(ctx, rec); err != nil {
		f.Close()
		err = mapRepoError(err, "обновление счётчика %s", id)
		if !errors.Is(err, ErrNotFound) {
			s.logger.Error("Ошибка обновления счётчика скачиваний",
				slog.String("file_id", id),
				slog.String("error", err.Error()),
			)
		}
		return nil, err
	}
	s.invalidate(rec.ShareToken)

	s.logger.Debug("Файл выдан",
		slog.String("file_id", id),
		slog.Int64("download_count", rec.DownloadCount),
	)
	return &Download{Record: rec, File: f}, nil
}

// ResolveShare возвращает живую запись по share token.
// Счётчик скачиваний не изменяется.
func (s *FileService) ResolveShare(ctx context.Context, token string) (*model.FileRecord, error) {
	rec, err := s.resolveShare(ctx, token)
	operationsTotal.WithLabelValues("share", resultLabel(err)).Inc()
	return rec, err
}

func (s *FileService) resolveShare(ctx context.Context, token string) (*model.FileRecord, error) {
	if s.cache != nil {
		if rec, ok := s.cache.Get(token); ok {
			if s.store.Exists(rec.StoragePath) {
				return rec, nil
			}
			s.cache.Delete(token)
			return nil, fmt.Errorf("%w: share token %s", ErrNotFound, token)
		}
	}

	rec, err := s.repo.GetByShareToken(ctx, token)
	if err != nil {
		return nil, s.repoError(err, "поиск по share token")
	}
	if !s.store.Exists(rec.StoragePath) {
		return nil, fmt.Errorf("%w: share token %s", ErrNotFound, token)
	}

	if s.cache != nil {
		s.cache.Set(rec)
	}
	return rec, nil
}

// ListLive возвращает живые записи, от новых к старым.
func (s *FileService) ListLive(ctx context.Context) ([]*model.FileRecord, error) {
	all, err := s.repo.ListAll(ctx)
	if err != nil {
		operationsTotal.WithLabelValues("list", resultError).Inc()
		return nil, s.repoError(err, "список файлов")
	}

	live := make([]*model.FileRecord, 0, len(all))
	for _, rec := range all {
		if s.store.Exists(rec.StoragePath) {
			live = append(live, rec)
		}
	}
	slices.SortStableFunc(live, func(a, b *model.FileRecord) int {
		return cmp.Compare(b.CreatedAt.UnixNano(), a.CreatedAt.UnixNano())
	})

	operationsTotal.WithLabelValues("list", resultSuccess).Inc()
	return live, nil
}

// Edit обновляет отображаемое имя и описание.
// Пустое после обрезки пробелов или слишком длинное имя отклоняется до поиска записи.
func (s *FileService) Edit(ctx context.Context, id, displayName, description string) (*model.FileRecord, error) {
	rec, err := s.edit(ctx, id, displayName, description)
	operationsTotal.WithLabelValues("edit", resultLabel(err)).Inc()
	return rec, err
}

func (s *FileService) edit(ctx context.Context, id, displayName, description string) (*model.FileRecord, error) {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return nil, fmt.Errorf("%w: имя файла обязательно", ErrValidation)
	}
	if utf8.RuneCountInString(displayName) > model.MaxNameLength {
		return nil, fmt.Errorf("%w: имя файла длиннее %d символов", ErrValidation, model.MaxNameLength)
	}

	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, s.repoError(err, "поиск файла %s", id)
	}

	rec.DisplayName = displayName
	rec.Description = strings.TrimSpace(description)
	if err := s.repo.Update(ctx, rec); err != nil {
		return nil, s.repoError(err, "обновление файла %s", id)
	}
	s.invalidate(rec.ShareToken)

	s.logger.Info("Метаданные файла обновлены", slog.String("file_id", id))
	return rec, nil
}

// Delete удаляет blob (без ошибки, если его уже нет) и запись ledger.
func (s *FileService) Delete(ctx context.Context, id string) error {
	err := s.delete(ctx, id)
	operationsTotal.WithLabelValues("delete", resultLabel(err)).Inc()
	return err
}

func (s *FileService) delete(ctx context.Context, id string) error {
	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return s.repoError(err, "поиск файла %s", id)
	}

	if err := s.store.Remove(rec.StoragePath); err != nil {
		s.logger.Warn("Не удалось удалить blob",
			slog.String("file_id", id),
			slog.String("path", rec.StoragePath),
			slog.String("error", err.Error()),
		)
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return s.repoError(err, "удаление записи %s", id)
	}
	s.invalidate(rec.ShareToken)

	s.logger.Info("Файл удалён",
		slog.String("file_id", id),
		slog.String("name", rec.OriginalName),
	)
	return nil
}

// getLive возвращает запись по id, только если её blob существует.
func (s *FileService) getLive(ctx context.Context, id string) (*model.FileRecord, error) {
	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, s.repoError(err, "поиск файла %s", id)
	}
	if !s.store.Exists(rec.StoragePath) {
		return nil, fmt.Errorf("%w: blob файла %s отсутствует", ErrNotFound, id)
	}
	return rec, nil
}

// repoError преобразует ошибку репозитория и логирует внутренние ошибки.
func (s *FileService) repoError(err error, format string, args ...any) error {
	mapped := mapRepoError(err, format, args...)
	if !errors.Is(mapped, ErrNotFound) {
		s.logger.Error("Ошибка ledger", slog.String("error", mapped.Error()))
	}
	return mapped
}

func (s *FileService) invalidate(token string) {
	if s.cache != nil {
		s.cache.Delete(token)
	}
}
