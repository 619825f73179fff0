package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/bigkaa/goartstore/sharebox/internal/repository"
	"github.com/bigkaa/goartstore/sharebox/internal/storage/contentstore"
)

// BlobStore — операции content store, используемые сервисами.
// Реализуется *contentstore.Store.
type BlobStore interface {
	Write(reader io.Reader, name string) (*contentstore.WriteResult, error)
	Hash(path string) (string, error)
	Exists(path string) bool
	Open(path string) (*os.File, error)
	Remove(path string) error
}

// Ledger — транзакционный доступ к ledger.
// Реализуется *repository.TxRunner.
type Ledger interface {
	WithFileRecords(ctx context.Context, fn func(repository.FileRecordRepository) error) error
}

// mapRepoError преобразует ошибки репозитория в ошибки сервисного слоя.
func mapRepoError(err error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%w: %s", ErrNotFound, msg)
	case errors.Is(err, repository.ErrConflict):
		return fmt.Errorf("%w: %s: %v", ErrConflict, msg, err)
	default:
		return fmt.Errorf("%w: %s: %v", ErrInternal, msg, err)
	}
}
