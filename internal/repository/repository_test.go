package repository

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/bigkaa/goartstore/sharebox/internal/config"
	"github.com/bigkaa/goartstore/sharebox/internal/database"
	"github.com/bigkaa/goartstore/sharebox/internal/domain/model"
)

// setupTestDB запускает PostgreSQL контейнер и применяет миграции.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("Пропуск интеграционного теста: TEST_INTEGRATION не установлена")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		postgres.WithDatabase("sharebox_test"),
		postgres.WithUsername("sharebox"),
		postgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("Не удалось запустить PostgreSQL контейнер: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Ошибка остановки контейнера: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Не удалось получить host контейнера: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Не удалось получить port контейнера: %v", err)
	}

	t.Setenv("SB_DB_HOST", host)
	t.Setenv("SB_DB_PORT", port.Port())
	t.Setenv("SB_DB_NAME", "sharebox_test")
	t.Setenv("SB_DB_USER", "sharebox")
	t.Setenv("SB_DB_PASSWORD", "test-password")
	t.Setenv("SB_DB_SSL_MODE", "disable")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	if err := database.Migrate(cfg, logger); err != nil {
		t.Fatalf("Ошибка миграций: %v", err)
	}

	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("Ошибка подключения к БД: %v", err)
	}
	t.Cleanup(pool.Close)

	return pool
}

// newTestRecord создаёт FileRecord с уникальными id и share token.
func newTestRecord(hash string, createdAt time.Time) *model.FileRecord {
	id := uuid.New().String()
	return &model.FileRecord{
		ID:           id,
		OriginalName: "report.pdf",
		DisplayName:  "report.pdf",
		Description:  "квартальный отчёт",
		PhysicalName: id + "_report.pdf",
		StoragePath:  "/data/" + id + "_report.pdf",
		SizeBytes:    10,
		ContentHash:  hash,
		CreatedAt:    createdAt.UTC().Truncate(time.Microsecond),
		ShareToken:   uuid.New().String(),
	}
}

// TestFileRecordRepository_CRUD проверяет основной жизненный цикл записи.
func TestFileRecordRepository_CRUD(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewFileRecordRepository(pool)

	rec := newTestRecord("hash-crud", time.Now())
	if err := repo.Insert(ctx, rec); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	got, err := repo.GetByID(ctx, rec.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.OriginalName != rec.OriginalName || got.ContentHash != rec.ContentHash || got.SizeBytes != rec.SizeBytes {
		t.Errorf("GetByID вернул %+v, ожидалось %+v", got, rec)
	}
	if !got.CreatedAt.Equal(rec.CreatedAt) {
		t.Errorf("CreatedAt = %v, ожидалось %v", got.CreatedAt, rec.CreatedAt)
	}

	byToken, err := repo.GetByShareToken(ctx, rec.ShareToken)
	if err != nil || byToken.ID != rec.ID {
		t.Fatalf("GetByShareToken: %v, %+v", err, byToken)
	}

	byHash, err := repo.GetByHash(ctx, rec.ContentHash)
	if err != nil || byHash.ID != rec.ID {
		t.Fatalf("GetByHash: %v, %+v", err, byHash)
	}

	rec.DisplayName = "Отчёт Q1"
	rec.Description = ""
	rec.DownloadCount = 3
	if err := repo.Update(ctx, rec); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, _ = repo.GetByID(ctx, rec.ID)
	if got.DisplayName != "Отчёт Q1" || got.Description != "" || got.DownloadCount != 3 {
		t.Errorf("после Update: %+v", got)
	}

	if err := repo.Delete(ctx, rec.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := repo.GetByID(ctx, rec.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("после Delete ожидалась ErrNotFound, получено %v", err)
	}
	if err := repo.Delete(ctx, rec.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("повторный Delete: ожидалась ErrNotFound, получено %v", err)
	}
	if err := repo.Update(ctx, rec); !errors.Is(err, ErrNotFound) {
		t.Errorf("Update удалённой записи: ожидалась ErrNotFound, получено %v", err)
	}
}

// TestFileRecordRepository_NotFound проверяет точечные запросы без результата.
func TestFileRecordRepository_NotFound(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewFileRecordRepository(pool)

	if _, err := repo.GetByID(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByID: ожидалась ErrNotFound, получено %v", err)
	}
	if _, err := repo.GetByHash(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByHash: ожидалась ErrNotFound, получено %v", err)
	}
	if _, err := repo.GetByShareToken(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByShareToken: ожидалась ErrNotFound, получено %v", err)
	}
}

// TestFileRecordRepository_Conflict проверяет уникальность id и share_token.
func TestFileRecordRepository_Conflict(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewFileRecordRepository(pool)

	rec := newTestRecord("hash-conflict", time.Now())
	if err := repo.Insert(ctx, rec); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	sameID := newTestRecord("hash-other", time.Now())
	sameID.ID = rec.ID
	if err := repo.Insert(ctx, sameID); !errors.Is(err, ErrConflict) {
		t.Errorf("повтор id: ожидалась ErrConflict, получено %v", err)
	}

	sameToken := newTestRecord("hash-other", time.Now())
	sameToken.ShareToken = rec.ShareToken
	if err := repo.Insert(ctx, sameToken); !errors.Is(err, ErrConflict) {
		t.Errorf("повтор share_token: ожидалась ErrConflict, получено %v", err)
	}
}

// TestFileRecordRepository_ListByHash проверяет порядок записей с одинаковым хэшем.
func TestFileRecordRepository_ListByHash(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewFileRecordRepository(pool)

	base := time.Now().Add(-time.Hour)
	later := newTestRecord("same", base.Add(time.Minute))
	earlier := newTestRecord("same", base)
	other := newTestRecord("different", base)
	for _, rec := range []*model.FileRecord{later, earlier, other} {
		if err := repo.Insert(ctx, rec); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	list, err := repo.ListByHash(ctx, "same")
	if err != nil {
		t.Fatalf("ListByHash: %v", err)
	}
	if len(list) != 2 || list[0].ID != earlier.ID || list[1].ID != later.ID {
		t.Errorf("ListByHash вернул неожиданный порядок: %+v", list)
	}

	first, err := repo.GetByHash(ctx, "same")
	if err != nil || first.ID != earlier.ID {
		t.Errorf("GetByHash должен вернуть самую раннюю запись: %v, %+v", err, first)
	}

	all, err := repo.ListAll(ctx)
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("ListAll: ожидалось 3 записи, получено %d", len(all))
	}
}

// TestTxRunner_Rollback проверяет откат транзакции при ошибке.
func TestTxRunner_Rollback(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	runner := NewTxRunner(pool)

	rec := newTestRecord("hash-tx", time.Now())
	errBoom := errors.New("boom")

	err := runner.WithFileRecords(ctx, func(repo FileRecordRepository) error {
		if err := repo.Insert(ctx, rec); err != nil {
			return err
		}
		// Запись видна внутри транзакции
		if _, err := repo.GetByHash(ctx, rec.ContentHash); err != nil {
			t.Errorf("запись должна быть видна внутри транзакции: %v", err)
		}
		return errBoom
	})
	if !errors.Is(err, errBoom) {
		t.Fatalf("ожидалась исходная ошибка, получено %v", err)
	}

	if _, err := NewFileRecordRepository(pool).GetByID(ctx, rec.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("после отката запись не должна существовать: %v", err)
	}
}

// TestTxRunner_Commit проверяет коммит транзакции.
func TestTxRunner_Commit(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	runner := NewTxRunner(pool)

	rec := newTestRecord("hash-commit", time.Now())
	err := runner.RunInTx(ctx, func(tx pgx.Tx) error {
		return NewFileRecordRepository(tx).Insert(ctx, rec)
	})
	if err != nil {
		t.Fatalf("RunInTx: %v", err)
	}

	if _, err := NewFileRecordRepository(pool).GetByID(ctx, rec.ID); err != nil {
		t.Errorf("после коммита запись должна существовать: %v", err)
	}
}
