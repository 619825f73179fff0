// ingest.go — загрузка файлов с дедупликацией по SHA-256.
// Порядок для каждого файла: валидация → очистка имени → запись blob-а
// с подсчётом хэша → поиск живой записи с тем же хэшем → вставка или
// удаление дубликата. Все вставки пакета коммитятся одной транзакцией.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/lithammer/shortuuid/v4"

	"github.com/bigkaa/goartstore/sharebox/internal/domain/model"
	"github.com/bigkaa/goartstore/sharebox/internal/repository"
	"github.com/bigkaa/goartstore/sharebox/internal/storage/contentstore"
)

// IngestItem — один загружаемый файл.
type IngestItem struct {
	// Filename — имя файла от клиента (до очистки)
	Filename string
	// Content — содержимое файла
	Content io.Reader
	// DisplayName — отображаемое имя (пусто — используется очищенное имя)
	DisplayName string
	// Description — описание файла
	Description string
}

// ItemResult — результат загрузки одного файла.
// Для дубликата ID, Name, Size и ShareToken относятся к существующей записи.
type ItemResult struct {
	ID         string
	Name       string
	Size       int64
	ShareToken string
	// DuplicateOf — id существующей записи, пусто для новой записи
	DuplicateOf string
	// Message — пояснение для дубликата
	Message string
}

// Duplicate сообщает, что файл распознан как дубликат.
func (r ItemResult) Duplicate() bool {
	return r.DuplicateOf != ""
}

// IngestResult — итог загрузки пакета файлов.
type IngestResult struct {
	Success bool
	Items   []ItemResult
	Message string
}

// IngestService — сервис загрузки файлов.
type IngestService struct {
	ledger  Ledger
	store   BlobStore
	allowed map[string]bool
	// allowedList — исходный список расширений для сообщений об ошибке
	allowedList []string
	logger      *slog.Logger
	now         func() time.Time
}

// NewIngestService создаёт сервис загрузки.
// allowedExtensions — разрешённые расширения в нижнем регистре без точки.
func NewIngestService(ledger Ledger, store BlobStore, allowedExtensions []string, logger *slog.Logger) *IngestService {
	allowed := make(map[string]bool, len(allowedExtensions))
	for _, ext := range allowedExtensions {
		allowed[strings.ToLower(ext)] = true
	}
	return &IngestService{
		ledger:      ledger,
		store:       store,
		allowed:     allowed,
		allowedList: allowedExtensions,
		logger:      logger.With(slog.String("component", "ingest_service")),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// preparedItem — файл, прошедший валидацию.
type preparedItem struct {
	item         IngestItem
	originalName string
}

// Ingest загружает пакет файлов.
// Все имена проверяются до записи первого blob-а: недопустимый файл
// отклоняет весь пакет без побочных эффектов. Ошибка записи или коммита
// откатывает транзакцию; уже записанные blob-ы при этом остаются на диске.
func (s *IngestService) Ingest(ctx context.Context, items []IngestItem) (*IngestResult, error) {
	prepared, err := s.prepare(items)
	if err != nil {
		operationsTotal.WithLabelValues("ingest", resultInvalid).Inc()
		return nil, err
	}

	var (
		results []ItemResult
		written []string
		newSize int64
		dups    int
	)

	err = s.ledger.WithFileRecords(ctx, func(repo repository.FileRecordRepository) error {
		for _, p := range prepared {
			res, path, err := s.ingestOne(ctx, repo, p)
			if path != "" {
				written = append(written, path)
			}
			if err != nil {
				return err
			}
			if res.Duplicate() {
				dups++
			} else {
				newSize += res.Size
			}
			results = append(results, res)
		}
		return nil
	})
	if err != nil {
		operationsTotal.WithLabelValues("ingest", resultLabel(err)).Inc()
		s.logger.Error("Ошибка загрузки файлов, транзакция откатана",
			slog.Int("items", len(prepared)),
			slog.Int("orphan_blobs", len(written)),
			slog.String("error", err.Error()),
		)
		if errors.Is(err, ErrIO) || errors.Is(err, ErrConflict) || errors.Is(err, ErrInternal) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	operationsTotal.WithLabelValues("ingest", resultSuccess).Inc()
	operationsTotal.WithLabelValues("ingest_item", resultSuccess).Add(float64(len(results) - dups))
	operationsTotal.WithLabelValues("ingest_item", resultDuplicate).Add(float64(dups))
	dedupHitsTotal.Add(float64(dups))
	ingestedBytesTotal.Add(float64(newSize))

	s.logger.Info("Файлы загружены",
		slog.Int("items", len(results)),
		slog.Int("duplicates", dups),
		slog.Int64("bytes", newSize),
	)

	return &IngestResult{
		Success: true,
		Items:   results,
		Message: fmt.Sprintf("Загружено файлов: %d", len(results)),
	}, nil
}

// prepare проверяет имена и расширения всех файлов пакета.
func (s *IngestService) prepare(items []IngestItem) ([]preparedItem, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: файлы не переданы", ErrValidation)
	}

	prepared := make([]preparedItem, 0, len(items))
	for _, item := range items {
		if strings.TrimSpace(item.Filename) == "" {
			return nil, fmt.Errorf("%w: пустое имя файла", ErrValidation)
		}
		if !s.allowed[contentstore.Extension(item.Filename)] {
			return nil, fmt.Errorf("%w: %s (разрешены: %s)",
				ErrUnsupportedType, item.Filename, strings.Join(s.allowedList, ", "))
		}

		name := contentstore.SanitizeName(item.Filename)
		if name == "" || !s.allowed[contentstore.Extension(name)] {
			return nil, fmt.Errorf("%w: недопустимое имя файла %q", ErrValidation, item.Filename)
		}

		if utf8.RuneCountInString(strings.TrimSpace(item.DisplayName)) > model.MaxNameLength {
			return nil, fmt.Errorf("%w: отображаемое имя длиннее %d символов", ErrValidation, model.MaxNameLength)
		}

		prepared = append(prepared, preparedItem{item: item, originalName: name})
	}
	return prepared, nil
}

// ingestOne сохраняет один файл. Возвращает путь blob-а, оставшегося
// на диске: при откате транзакции такие blob-ы становятся orphan.
func (s *IngestService) ingestOne(ctx context.Context, repo repository.FileRecordRepository, p preparedItem) (ItemResult, string, error) {
	id := uuid.NewString()
	physical := contentstore.PhysicalName(id, p.originalName)

	wr, err := s.store.Write(p.item.Content, physical)
	if err != nil {
		return ItemResult{}, "", fmt.Errorf("%w: запись blob-а %s: %v", ErrIO, physical, err)
	}

	existing, err := s.findLive(ctx, repo, wr.Hash)
	if err != nil {
		return ItemResult{}, wr.Path, err
	}

	if existing != nil {
		if rmErr := s.store.Remove(wr.Path); rmErr != nil {
			s.logger.Warn("Не удалось удалить blob дубликата",
				slog.String("path", wr.Path),
				slog.String("error", rmErr.Error()),
			)
		}
		s.logger.Debug("Обнаружен дубликат",
			slog.String("filename", p.originalName),
			slog.String("existing_id", existing.ID),
			slog.String("hash", wr.Hash),
		)
		return ItemResult{
			ID:          existing.ID,
			Name:        existing.OriginalName,
			Size:        existing.SizeBytes,
			ShareToken:  existing.ShareToken,
			DuplicateOf: existing.ID,
			Message:     fmt.Sprintf("Дубликат существующего файла: %s", existing.OriginalName),
		}, "", nil
	}

	displayName := strings.TrimSpace(p.item.DisplayName)
	if displayName == "" {
		displayName = p.originalName
	}

	rec := &model.FileRecord{
		ID:           id,
		OriginalName: p.originalName,
		DisplayName:  displayName,
		Description:  strings.TrimSpace(p.item.Description),
		PhysicalName: physical,
		StoragePath:  wr.Path,
		SizeBytes:    wr.Size,
		ContentHash:  wr.Hash,
		CreatedAt:    s.now(),
		ShareToken:   shortuuid.New(),
	}
	if err := repo.Insert(ctx, rec); err != nil {
		return ItemResult{}, wr.Path, mapRepoError(err, "вставка записи %s", id)
	}

	return ItemResult{
		ID:         rec.ID,
		Name:       rec.OriginalName,
		Size:       rec.SizeBytes,
		ShareToken: rec.ShareToken,
	}, wr.Path, nil
}

// findLive возвращает первую запись с данным хэшем, blob которой существует.
// Записи текущей транзакции (ранние файлы пакета) тоже учитываются.
func (s *IngestService) findLive(ctx context.Context, repo repository.FileRecordRepository, hash string) (*model.FileRecord, error) {
	candidates, err := repo.ListByHash(ctx, hash)
	if err != nil {
		return nil, mapRepoError(err, "поиск по хэшу")
	}
	for _, c := range candidates {
		if s.store.Exists(c.StoragePath) {
			return c, nil
		}
	}
	return nil, nil
}
