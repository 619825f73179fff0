// Пакет legacy — чтение метаданных прежнего формата хранения
// (metadata/files.json: объект id → запись файла).
package legacy

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// ErrNotExist — legacy-файл метаданных отсутствует (импорт не нужен).
var ErrNotExist = errors.New("legacy-файл метаданных отсутствует")

// maxMetadataFileSize — ограничение размера files.json (64 MB).
const maxMetadataFileSize = 64 << 20

// Entry — запись файла в legacy-формате.
// Поля, отсутствующие в JSON, остаются нулевыми.
type Entry struct {
	OriginalName  string `json:"original_name"`
	Filename      string `json:"filename"`
	Path          string `json:"path"`
	Size          int64  `json:"size"`
	Hash          string `json:"hash"`
	UploadDate    string `json:"upload_date"`
	ShareToken    string `json:"share_token"`
	DownloadCount int64  `json:"download_count"`
}

// Load читает legacy-файл и возвращает записи по их id.
// Если файл не существует, возвращает ErrNotExist.
func Load(path string) (map[string]Entry, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotExist
		}
		return nil, fmt.Errorf("ошибка доступа к %s: %w", path, err)
	}
	if info.Size() > maxMetadataFileSize {
		return nil, fmt.Errorf("размер %s (%d байт) превышает максимум (%d байт)", path, info.Size(), maxMetadataFileSize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения %s: %w", path, err)
	}

	entries := make(map[string]Entry)
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("ошибка разбора %s: %w", path, err)
	}
	return entries, nil
}

// naiveLayouts — форматы ISO 8601 без часового пояса.
var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseUploadDate разбирает дату загрузки legacy-записи.
// Принимает RFC 3339 (в том числе с суффиксом Z) и ISO 8601 без
// часового пояса (трактуется как UTC). Результат всегда в UTC.
func ParseUploadDate(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}

	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t.UTC(), true
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
