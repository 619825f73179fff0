// Пакет contentstore — хранение blob-ов в плоской директории.
// Запись через temp файл с подсчётом SHA-256 на лету, потоковое
// хэширование существующих файлов, проверка существования и удаление.
package contentstore

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// hashBufferSize — размер буфера при потоковом хэшировании.
const hashBufferSize = 64 * 1024

// maxNameLength — ограничение длины очищенного имени (байты).
const maxNameLength = 200

// Store — плоское хранилище blob-ов на диске.
type Store struct {
	// dataDir — директория хранения (SB_DATA_DIR)
	dataDir string
}

// WriteResult — результат записи blob-а.
type WriteResult struct {
	// Path — путь blob-а (dataDir + physical name)
	Path string
	// Size — количество записанных байт
	Size int64
	// Hash — SHA-256 записанного содержимого (hex)
	Hash string
}

// New создаёт Store и при необходимости создаёт директорию.
func New(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию данных %s: %w", dataDir, err)
	}
	return &Store{dataDir: dataDir}, nil
}

// DataDir возвращает путь к директории данных.
func (s *Store) DataDir() string {
	return s.dataDir
}

// Write записывает содержимое reader под именем name.
// Паттерн: temp файл → запись + SHA-256 → fsync → atomic rename.
// При ошибке temp файл удаляется. Одновременная запись под одним
// именем не защищена: имена уникальны за счёт id.
func (s *Store) Write(reader io.Reader, name string) (*WriteResult, error) {
	if name == "" || name != filepath.Base(name) {
		return nil, fmt.Errorf("недопустимое имя blob-а: %q", name)
	}

	fullPath := filepath.Join(s.dataDir, name)
	tmpPath := fullPath + ".tmp"

	f, err := os.Create(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания временного файла: %w", err)
	}

	hasher := sha256.New()
	size, err := io.Copy(f, io.TeeReader(reader, hasher))
	if err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка записи данных: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка fsync: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	if err := os.Rename(tmpPath, fullPath); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка атомарного переименования: %w", err)
	}

	return &WriteResult{
		Path: fullPath,
		Size: size,
		Hash: hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

// Hash вычисляет SHA-256 файла по пути path.
// Чтение блоками фиксированного размера, память не зависит от размера файла.
func (s *Store) Hash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("ошибка открытия файла %s: %w", path, err)
	}
	defer f.Close()

	hasher := sha256.New()
	buf := make([]byte, hashBufferSize)
	if _, err := io.CopyBuffer(hasher, f, buf); err != nil {
		return "", fmt.Errorf("ошибка вычисления хэша %s: %w", path, err)
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// Exists проверяет, что по пути path лежит обычный файл.
func (s *Store) Exists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// Open открывает blob для чтения. Вызывающий код обязан закрыть файл.
func (s *Store) Open(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ошибка открытия файла %s: %w", path, err)
	}
	return f, nil
}

// Remove удаляет blob. Отсутствующий файл ошибкой не считается.
func (s *Store) Remove(path string) error {
	if path == "" {
		return nil
	}
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("ошибка удаления файла %s: %w", path, err)
	}
	return nil
}

// CheckReady проверяет, что директория данных доступна на запись.
// Реализует интерфейс handlers.ReadinessChecker.
func (s *Store) CheckReady() (status string, message string) {
	f, err := os.CreateTemp(s.dataDir, ".ready-*")
	if err != nil {
		return "fail", fmt.Sprintf("директория данных недоступна на запись: %v", err)
	}
	name := f.Name()
	f.Close()
	os.Remove(name)
	return "ok", "директория данных доступна"
}

// PhysicalName формирует имя blob-а на диске: {id}_{name}.
func PhysicalName(id, name string) string {
	return id + "_" + name
}

// SanitizeName очищает имя файла от путей и небезопасных символов.
// Юникод нормализуется в NFC; сохраняются буквы, цифры, '-', '_' и '.',
// пробелы заменяются на '_'. Точки и '_' по краям имени отбрасываются.
// Пустой результат возвращается как есть, решение принимает вызывающий код.
func SanitizeName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(norm.NFC.String(name))
	if name == "." || name == "/" {
		return ""
	}

	var b strings.Builder
	for _, r := range name {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '-', r == '_', r == '.':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune('_')
		}
	}

	result := strings.Trim(b.String(), "._")
	if len(result) > maxNameLength {
		result = truncateKeepExt(result, maxNameLength)
	}
	return result
}

// Extension возвращает расширение (текст после последней точки) в нижнем регистре.
// Для имени без точки возвращается пустая строка.
func Extension(name string) string {
	idx := strings.LastIndex(name, ".")
	if idx < 0 {
		return ""
	}
	return strings.ToLower(name[idx+1:])
}

// truncateKeepExt обрезает имя до limit байт, сохраняя расширение
// и не разрывая многобайтовые символы.
func truncateKeepExt(name string, limit int) string {
	ext := filepath.Ext(name)
	if len(ext) >= limit {
		ext = ""
	}
	base := strings.TrimSuffix(name, ext)
	room := limit - len(ext)
	if len(base) <= room {
		return name
	}
	cut := 0
	for i := range base {
		if i > room {
			break
		}
		cut = i
	}
	return base[:cut] + ext
}
