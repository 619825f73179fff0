// Пакет model — доменные модели sharebox.
// FileRecord — маппинг таблицы file_records.
package model

import "time"

// MaxNameLength — максимальная длина отображаемого имени (символы, VARCHAR(255)).
const MaxNameLength = 255

// FileRecord — запись файла в ledger.
// Изменяемые поля: DisplayName, Description (редактирование) и
// DownloadCount (скачивание). Остальные задаются один раз при загрузке.
type FileRecord struct {
	// ID — UUID файла (генерируется при загрузке)
	ID string
	// OriginalName — очищенное имя файла, как его передал загрузивший
	OriginalName string
	// DisplayName — отображаемое имя (по умолчанию OriginalName)
	DisplayName string
	// Description — описание (может быть пустым)
	Description string
	// PhysicalName — имя blob-а на диске: {id}_{original_name}
	PhysicalName string
	// StoragePath — путь к blob-у в content store
	StoragePath string
	// SizeBytes — размер blob-а в байтах на момент загрузки
	SizeBytes int64
	// ContentHash — SHA-256 содержимого (hex)
	ContentHash string
	// CreatedAt — время загрузки (UTC)
	CreatedAt time.Time
	// ShareToken — публичный идентификатор для share-ссылки
	ShareToken string
	// DownloadCount — количество скачиваний
	DownloadCount int64
}
