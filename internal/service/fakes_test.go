package service

import (
	"cmp"
	"context"
	"io"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/bigkaa/goartstore/sharebox/internal/domain/model"
	"github.com/bigkaa/goartstore/sharebox/internal/repository"
	"github.com/bigkaa/goartstore/sharebox/internal/storage/contentstore"
)

// fakeRepo — in-memory реализация repository.FileRecordRepository.
type fakeRepo struct {
	mu      sync.Mutex
	records map[string]model.FileRecord
	// insertErr — ошибка, возвращаемая Insert (если задана)
	insertErr error
	// listErr — ошибка, возвращаемая ListAll (если задана)
	listErr error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{records: make(map[string]model.FileRecord)}
}

func (r *fakeRepo) Insert(_ context.Context, f *model.FileRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.insertErr != nil {
		return r.insertErr
	}
	if _, ok := r.records[f.ID]; ok {
		return repository.ErrConflict
	}
	for _, rec := range r.records {
		if rec.ShareToken == f.ShareToken {
			return repository.ErrConflict
		}
	}
	r.records[f.ID] = *f
	return nil
}

func (r *fakeRepo) GetByID(_ context.Context, id string) (*model.FileRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &rec, nil
}

func (r *fakeRepo) GetByHash(ctx context.Context, hash string) (*model.FileRecord, error) {
	list, _ := r.ListByHash(ctx, hash)
	if len(list) == 0 {
		return nil, repository.ErrNotFound
	}
	return list[0], nil
}

func (r *fakeRepo) GetByShareToken(_ context.Context, token string) (*model.FileRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.records {
		if rec.ShareToken == token {
			return &rec, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeRepo) ListByHash(_ context.Context, hash string) ([]*model.FileRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var list []*model.FileRecord
	for _, rec := range r.records {
		if rec.ContentHash == hash {
			list = append(list, &rec)
		}
	}
	sortByCreated(list)
	return list, nil
}

func (r *fakeRepo) ListAll(_ context.Context) ([]*model.FileRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	list := make([]*model.FileRecord, 0, len(r.records))
	for _, rec := range r.records {
		list = append(list, &rec)
	}
	sortByCreated(list)
	return list, nil
}

func (r *fakeRepo) Update(_ context.Context, f *model.FileRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[f.ID]
	if !ok {
		return repository.ErrNotFound
	}
	rec.DisplayName = f.DisplayName
	rec.Description = f.Description
	rec.DownloadCount = f.DownloadCount
	r.records[f.ID] = rec
	return nil
}

func (r *fakeRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.records, id)
	return nil
}

func (r *fakeRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

// sortByCreated упорядочивает записи как ledger: по created_at, затем по id.
func sortByCreated(list []*model.FileRecord) {
	slices.SortFunc(list, func(a, b *model.FileRecord) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

// fakeLedger — транзакции поверх fakeRepo.
// fn работает с копией записей; при ошибке копия отбрасывается.
type fakeLedger struct {
	repo *fakeRepo
	// txCount — количество вызовов WithFileRecords
	txCount int
}

func (l *fakeLedger) WithFileRecords(_ context.Context, fn func(repository.FileRecordRepository) error) error {
	l.txCount++

	l.repo.mu.Lock()
	tx := &fakeRepo{
		records:   maps.Clone(l.repo.records),
		insertErr: l.repo.insertErr,
	}
	l.repo.mu.Unlock()

	if err := fn(tx); err != nil {
		return err
	}

	l.repo.mu.Lock()
	l.repo.records = tx.records
	l.repo.mu.Unlock()
	return nil
}

// testLogger возвращает logger, пишущий в никуда.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestStore создаёт content store во временной директории.
func newTestStore(t *testing.T) *contentstore.Store {
	t.Helper()
	store, err := contentstore.New(t.TempDir())
	if err != nil {
		t.Fatalf("contentstore.New: %v", err)
	}
	return store
}

// counterValue возвращает текущее значение счётчика Prometheus.
func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("Write: %v", err)
	}
	return m.GetCounter().GetValue()
}
