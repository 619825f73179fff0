package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/goartstore/sharebox/internal/domain/model"
)

// FileRecordRepository — интерфейс CRUD для таблицы file_records.
type FileRecordRepository interface {
	// Insert создаёт запись. ErrConflict при совпадении id или share_token.
	Insert(ctx context.Context, f *model.FileRecord) error
	// GetByID возвращает запись по id.
	GetByID(ctx context.Context, id string) (*model.FileRecord, error)
	// GetByHash возвращает самую раннюю запись с данным content_hash.
	GetByHash(ctx context.Context, hash string) (*model.FileRecord, error)
	// ListByHash возвращает все записи с данным content_hash, от ранних к поздним.
	ListByHash(ctx context.Context, hash string) ([]*model.FileRecord, error)
	// GetByShareToken возвращает запись по share token.
	GetByShareToken(ctx context.Context, token string) (*model.FileRecord, error)
	// ListAll возвращает все записи без гарантии порядка.
	ListAll(ctx context.Context) ([]*model.FileRecord, error)
	// Update перезаписывает изменяемые поля (display_name, description, download_count).
	Update(ctx context.Context, f *model.FileRecord) error
	// Delete удаляет запись.
	Delete(ctx context.Context, id string) error
}

// fileColumns — список колонок для SELECT-запросов.
const fileColumns = `id, original_name, display_name, description, physical_name,
	storage_path, size_bytes, content_hash, created_at, share_token, download_count`

// fileRecordRepo — реализация FileRecordRepository.
type fileRecordRepo struct {
	db DBTX
}

// NewFileRecordRepository создаёт репозиторий ledger-а.
// db — *pgxpool.Pool или pgx.Tx.
func NewFileRecordRepository(db DBTX) FileRecordRepository {
	return &fileRecordRepo{db: db}
}

func (r *fileRecordRepo) Insert(ctx context.Context, f *model.FileRecord) error {
	query := `
		INSERT INTO file_records (id, original_name, display_name, description, physical_name,
			storage_path, size_bytes, content_hash, created_at, share_token, download_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := r.db.Exec(ctx, query,
		f.ID, f.OriginalName, f.DisplayName, f.Description, f.PhysicalName,
		f.StoragePath, f.SizeBytes, f.ContentHash, f.CreatedAt, f.ShareToken, f.DownloadCount,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: файл %s или share token уже существует", ErrConflict, f.ID)
		}
		return fmt.Errorf("ошибка вставки файла: %w", err)
	}
	return nil
}

func (r *fileRecordRepo) GetByID(ctx context.Context, id string) (*model.FileRecord, error) {
	query := `SELECT ` + fileColumns + ` FROM file_records WHERE id = $1`
	return r.getOne(ctx, query, id)
}

func (r *fileRecordRepo) GetByHash(ctx context.Context, hash string) (*model.FileRecord, error) {
	query := `SELECT ` + fileColumns + ` FROM file_records
		WHERE content_hash = $1
		ORDER BY created_at ASC, id ASC
		LIMIT 1`
	return r.getOne(ctx, query, hash)
}

func (r *fileRecordRepo) GetByShareToken(ctx context.Context, token string) (*model.FileRecord, error) {
	query := `SELECT ` + fileColumns + ` FROM file_records WHERE share_token = $1`
	return r.getOne(ctx, query, token)
}

func (r *fileRecordRepo) ListByHash(ctx context.Context, hash string) ([]*model.FileRecord, error) {
	query := `SELECT ` + fileColumns + ` FROM file_records
		WHERE content_hash = $1
		ORDER BY created_at ASC, id ASC`
	return r.list(ctx, query, hash)
}

func (r *fileRecordRepo) ListAll(ctx context.Context) ([]*model.FileRecord, error) {
	return r.list(ctx, `SELECT `+fileColumns+` FROM file_records`)
}

// list выполняет запрос нескольких записей.
func (r *fileRecordRepo) list(ctx context.Context, query string, args ...any) ([]*model.FileRecord, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка файлов: %w", err)
	}
	defer rows.Close()

	var result []*model.FileRecord
	for rows.Next() {
		f, err := scanFileRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования файла: %w", err)
		}
		result = append(result, f)
	}
	return result, rows.Err()
}

func (r *fileRecordRepo) Update(ctx context.Context, f *model.FileRecord) error {
	query := `
		UPDATE file_records
		SET display_name = $2, description = $3, download_count = $4
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, f.ID, f.DisplayName, f.Description, f.DownloadCount)
	if err != nil {
		return fmt.Errorf("ошибка обновления файла: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *fileRecordRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM file_records WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("ошибка удаления файла: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// getOne выполняет запрос одной записи, pgx.ErrNoRows → ErrNotFound.
func (r *fileRecordRepo) getOne(ctx context.Context, query string, arg string) (*model.FileRecord, error) {
	f, err := scanFileRecord(r.db.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения файла: %w", err)
	}
	return f, nil
}

// scanFileRecord сканирует строку (Row или Rows) в FileRecord.
func scanFileRecord(row pgx.Row) (*model.FileRecord, error) {
	f := &model.FileRecord{}
	err := row.Scan(
		&f.ID, &f.OriginalName, &f.DisplayName, &f.Description, &f.PhysicalName,
		&f.StoragePath, &f.SizeBytes, &f.ContentHash, &f.CreatedAt, &f.ShareToken, &f.DownloadCount,
	)
	if err != nil {
		return nil, err
	}
	f.CreatedAt = f.CreatedAt.UTC()
	return f, nil
}
