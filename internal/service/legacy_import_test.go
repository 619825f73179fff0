package service

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bigkaa/goartstore/sharebox/internal/domain/model"
	"github.com/bigkaa/goartstore/sharebox/internal/storage/legacy"
)

// writeLegacy сохраняет legacy files.json и возвращает путь к нему.
func writeLegacy(t *testing.T, entries map[string]legacy.Entry) string {
	t.Helper()
	data, err := json.Marshal(entries)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	path := filepath.Join(t.TempDir(), "files.json")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

// writeBlob создаёт legacy blob в директории dir.
func writeBlob(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

// TestLegacyImport проверяет перенос записей и правила пропуска.
func TestLegacyImport(t *testing.T) {
	repo := newFakeRepo()
	ledger := &fakeLedger{repo: repo}
	store := newTestStore(t)
	dir := store.DataDir()
	ctx := context.Background()

	existing := &model.FileRecord{
		ID:          "already-there",
		ContentHash: "hash-known",
		StoragePath: writeBlob(t, dir, "known.txt", "known"),
		ShareToken:  "tok-taken",
		CreatedAt:   time.Now().UTC(),
	}
	if err := repo.Insert(ctx, existing); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	fresh := writeBlob(t, dir, "id1_report.pdf", "report body")
	noHash := writeBlob(t, dir, "id2_notes.txt", "notes body")

	path := writeLegacy(t, map[string]legacy.Entry{
		"id1": {
			OriginalName:  "report.pdf",
			Filename:      "id1_report.pdf",
			Path:          fresh,
			Size:          11,
			Hash:          "hash-report",
			UploadDate:    "2023-03-01T10:20:30.123456",
			ShareToken:    "tok-report",
			DownloadCount: 7,
		},
		"id2": {
			OriginalName: "notes.txt",
			Path:         noHash,
			UploadDate:   "не дата",
			ShareToken:   "tok-taken",
		},
		"id3": {
			OriginalName: "gone.txt",
			Path:         filepath.Join(dir, "gone.txt"),
			Hash:         "hash-gone",
		},
		"already-there": {
			OriginalName: "known.txt",
			Path:         existing.StoragePath,
			Hash:         "hash-other",
		},
		"id4": {
			OriginalName: "known-copy.txt",
			Path:         existing.StoragePath,
			Hash:         "hash-known",
		},
	})

	imp := NewLegacyImporter(ledger, store, testLogger())
	fixedNow := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	imp.now = func() time.Time { return fixedNow }

	report, err := imp.Import(ctx, path)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}

	want := ImportReport{Migrated: 2, Skipped: 3}
	if report != want {
		t.Errorf("report = %+v, ожидалось %+v", report, want)
	}

	r1, err := repo.GetByID(ctx, "id1")
	if err != nil {
		t.Fatalf("id1 не перенесён: %v", err)
	}
	if r1.DisplayName != "report.pdf" || r1.ShareToken != "tok-report" || r1.DownloadCount != 7 || r1.PhysicalName != "id1_report.pdf" {
		t.Errorf("id1: %+v", r1)
	}
	wantDate := time.Date(2023, 3, 1, 10, 20, 30, 123456000, time.UTC)
	if !r1.CreatedAt.Equal(wantDate) {
		t.Errorf("id1 CreatedAt = %v, ожидалось %v", r1.CreatedAt, wantDate)
	}

	r2, err := repo.GetByID(ctx, "id2")
	if err != nil {
		t.Fatalf("id2 не перенесён: %v", err)
	}
	if r2.ContentHash != sha256Hex("notes body") {
		t.Errorf("id2: хэш должен быть вычислен по содержимому, получено %s", r2.ContentHash)
	}
	if r2.ShareToken == "" || r2.ShareToken == "tok-taken" {
		t.Errorf("id2: занятый token должен быть заменён, получено %q", r2.ShareToken)
	}
	if !r2.CreatedAt.Equal(fixedNow) {
		t.Errorf("id2: неразборчивая дата должна заменяться текущим временем, получено %v", r2.CreatedAt)
	}
	if r2.PhysicalName != "id2_notes.txt" {
		t.Errorf("id2: PhysicalName = %q", r2.PhysicalName)
	}

	for _, id := range []string{"id3", "id4"} {
		if _, err := repo.GetByID(ctx, id); err == nil {
			t.Errorf("%s не должен быть перенесён", id)
		}
	}
}

// TestLegacyImport_Idempotent проверяет, что повторный импорт ничего не добавляет.
func TestLegacyImport_Idempotent(t *testing.T) {
	repo := newFakeRepo()
	store := newTestStore(t)
	blob := writeBlob(t, store.DataDir(), "id1_a.txt", "a")
	path := writeLegacy(t, map[string]legacy.Entry{
		"id1": {OriginalName: "a.txt", Path: blob},
	})
	imp := NewLegacyImporter(&fakeLedger{repo: repo}, store, testLogger())

	first, err := imp.Import(context.Background(), path)
	if err != nil || first.Migrated != 1 {
		t.Fatalf("первый импорт: %+v, %v", first, err)
	}
	second, err := imp.Import(context.Background(), path)
	if err != nil {
		t.Fatalf("второй импорт: %v", err)
	}
	if second.Migrated != 0 || second.Skipped != 1 || repo.count() != 1 {
		t.Errorf("второй импорт: %+v, записей %d", second, repo.count())
	}
}

// TestLegacyImport_MissingFile проверяет отсутствие legacy-файла.
func TestLegacyImport_MissingFile(t *testing.T) {
	repo := newFakeRepo()
	ledger := &fakeLedger{repo: repo}
	imp := NewLegacyImporter(ledger, newTestStore(t), testLogger())

	report, err := imp.Import(context.Background(), filepath.Join(t.TempDir(), "files.json"))
	if err != nil {
		t.Fatalf("отсутствующий файл не должен быть ошибкой: %v", err)
	}
	if report != (ImportReport{}) {
		t.Errorf("report = %+v, ожидался пустой", report)
	}
	if ledger.txCount != 0 {
		t.Error("транзакция не должна открываться")
	}
}

// TestLegacyImport_InvalidJSON проверяет повреждённый legacy-файл.
func TestLegacyImport_InvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "files.json")
	os.WriteFile(path, []byte("{broken"), 0o600)
	imp := NewLegacyImporter(&fakeLedger{repo: newFakeRepo()}, newTestStore(t), testLogger())

	if _, err := imp.Import(context.Background(), path); err == nil {
		t.Error("ожидалась ошибка разбора")
	}
}

// TestLegacyImport_LedgerFailure проверяет откат всего импорта.
func TestLegacyImport_LedgerFailure(t *testing.T) {
	repo := newFakeRepo()
	store := newTestStore(t)
	path := writeLegacy(t, map[string]legacy.Entry{
		"id1": {OriginalName: "a.txt", Path: writeBlob(t, store.DataDir(), "a.txt", "a")},
		"id2": {OriginalName: "b.txt", Path: writeBlob(t, store.DataDir(), "b.txt", "b")},
	})
	repo.insertErr = errors.New("disk full")
	imp := NewLegacyImporter(&fakeLedger{repo: repo}, store, testLogger())

	report, err := imp.Import(context.Background(), path)
	if !errors.Is(err, ErrInternal) {
		t.Fatalf("ожидалась ErrInternal, получено %v", err)
	}
	if report != (ImportReport{}) || repo.count() != 0 {
		t.Errorf("после отката report = %+v, записей %d", report, repo.count())
	}
}
