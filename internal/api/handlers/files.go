// files.go — HTTP handlers файловых операций sharebox.
// Upload, List, Download, Share, Edit, Delete.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/goartstore/sharebox/internal/api/errors"
	"github.com/bigkaa/goartstore/sharebox/internal/domain/model"
	"github.com/bigkaa/goartstore/sharebox/internal/service"
)

// multipartMemory — объём multipart формы, хранимый в памяти (остальное во временных файлах).
const multipartMemory = 32 << 20

// Ingester — загрузка пакета файлов.
type Ingester interface {
	Ingest(ctx context.Context, items []service.IngestItem) (*service.IngestResult, error)
}

// FileOperations — операции чтения и изменения файлов.
type FileOperations interface {
	Download(ctx context.Context, id string) (*service.Download, error)
	ResolveShare(ctx context.Context, token string) (*model.FileRecord, error)
	ListLive(ctx context.Context) ([]*model.FileRecord, error)
	Edit(ctx context.Context, id, displayName, description string) (*model.FileRecord, error)
	Delete(ctx context.Context, id string) error
}

// FilesHandler — обработчик файловых endpoints.
type FilesHandler struct {
	ingest         Ingester
	files          FileOperations
	maxRequestSize int64
	logger         *slog.Logger
}

// NewFilesHandler создаёт обработчик файловых endpoints.
// maxRequestSize — лимит тела запроса загрузки (SB_MAX_REQUEST_SIZE).
func NewFilesHandler(ingest Ingester, files FileOperations, maxRequestSize int64, logger *slog.Logger) *FilesHandler {
	return &FilesHandler{
		ingest:         ingest,
		files:          files,
		maxRequestSize: maxRequestSize,
		logger:         logger.With(slog.String("component", "files_handler")),
	}
}

// uploadItem — элемент ответа загрузки.
type uploadItem struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	ShareToken  string `json:"share_token"`
	DuplicateOf string `json:"duplicate_of,omitempty"`
	Message     string `json:"message,omitempty"`
}

// uploadResponse — ответ POST /upload.
type uploadResponse struct {
	Success bool         `json:"success"`
	Files   []uploadItem `json:"files,omitempty"`
	Message string       `json:"message,omitempty"`
	Error   string       `json:"error,omitempty"`
}

// fileView — запись в списке файлов.
type fileView struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	OriginalName  string `json:"original_name"`
	Description   string `json:"description"`
	Size          int64  `json:"size"`
	UploadDate    string `json:"upload_date"`
	ShareToken    string `json:"share_token"`
	DownloadCount int64  `json:"download_count"`
}

// shareView — информация о файле по share-ссылке.
type shareView struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Size          int64  `json:"size"`
	UploadDate    string `json:"upload_date"`
	DownloadCount int64  `json:"download_count"`
}

// editRequest — тело POST /edit-file/{id}.
type editRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// resultResponse — ответ изменяющих операций.
type resultResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Upload обрабатывает POST /upload.
// Multipart form: files (один или несколько), file_name и file_description
// (опционально, применяются ко всем файлам пакета).
func (h *FilesHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxRequestSize)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeIngestError(w, fmt.Errorf("%w: максимум %d байт", service.ErrTooLarge, h.maxRequestSize))
			return
		}
		writeUploadError(w, http.StatusBadRequest, fmt.Sprintf("Ошибка парсинга multipart: %s", err.Error()))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		writeUploadError(w, http.StatusBadRequest, "Файлы не переданы")
		return
	}

	displayName := r.FormValue("file_name")
	description := r.FormValue("file_description")

	items := make([]service.IngestItem, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			h.logger.Error("Ошибка открытия части multipart",
				slog.String("filename", fh.Filename),
				slog.String("error", err.Error()),
			)
			closeAll(items)
			writeUploadError(w, http.StatusInternalServerError, "Ошибка загрузки, повторите попытку")
			return
		}
		items = append(items, service.IngestItem{
			Filename:    fh.Filename,
			Content:     f,
			DisplayName: displayName,
			Description: description,
		})
	}
	defer closeAll(items)

	result, err := h.ingest.Ingest(r.Context(), items)
	if err != nil {
		writeIngestError(w, err)
		return
	}

	resp := uploadResponse{
		Success: result.Success,
		Message: result.Message,
		Files:   make([]uploadItem, 0, len(result.Items)),
	}
	for _, it := range result.Items {
		resp.Files = append(resp.Files, uploadItem{
			ID:          it.ID,
			Name:        it.Name,
			Size:        it.Size,
			ShareToken:  it.ShareToken,
			DuplicateOf: it.DuplicateOf,
			Message:     it.Message,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListFiles обрабатывает GET /files.
// Возвращает живые файлы, от новых к старым.
func (h *FilesHandler) ListFiles(w http.ResponseWriter, r *http.Request) {
	records, err := h.files.ListLive(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}

	views := make([]fileView, 0, len(records))
	for _, rec := range records {
		views = append(views, fileView{
			ID:            rec.ID,
			Name:          rec.DisplayName,
			OriginalName:  rec.OriginalName,
			Description:   rec.Description,
			Size:          rec.SizeBytes,
			UploadDate:    formatTime(rec.CreatedAt),
			ShareToken:    rec.ShareToken,
			DownloadCount: rec.DownloadCount,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": views})
}

// DownloadFile обрабатывает GET /download/{id}.
// Поддерживает Range requests (206) и ETag (If-None-Match → 304).
func (h *FilesHandler) DownloadFile(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	d, err := h.files.Download(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	defer d.File.Close()

	stat, err := d.File.Stat()
	if err != nil {
		h.logger.Error("Ошибка получения stat файла",
			slog.String("file_id", id),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Ошибка чтения файла")
		return
	}

	mtype, err := mimetype.DetectReader(d.File)
	if err != nil {
		h.logger.Error("Ошибка определения типа файла",
			slog.String("file_id", id),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Ошибка чтения файла")
		return
	}
	if _, err := d.File.Seek(0, io.SeekStart); err != nil {
		apierrors.InternalError(w, "Ошибка чтения файла")
		return
	}

	name := d.Record.OriginalName
	w.Header().Set("Content-Type", mtype.String())
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	w.Header().Set("ETag", fmt.Sprintf("%q", d.Record.ContentHash))
	w.Header().Set("Accept-Ranges", "bytes")

	http.ServeContent(w, r, name, stat.ModTime(), d.File)
}

// GetShare обрабатывает GET /share/{token}.
// Счётчик скачиваний не изменяется.
func (h *FilesHandler) GetShare(w http.ResponseWriter, r *http.Request) {
	rec, err := h.files.ResolveShare(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, shareView{
		ID:            rec.ID,
		Name:          rec.OriginalName,
		Size:          rec.SizeBytes,
		UploadDate:    formatTime(rec.CreatedAt),
		DownloadCount: rec.DownloadCount,
	})
}

// EditFile обрабатывает POST /edit-file/{id}.
// Тело: {"name": "...", "description": "..."}.
func (h *FilesHandler) EditFile(w http.ResponseWriter, r *http.Request) {
	var req editRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, fmt.Sprintf("Некорректный JSON: %s", err.Error()))
		return
	}

	if _, err := h.files.Edit(r.Context(), chi.URLParam(r, "id"), req.Name, req.Description); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resultResponse{Success: true, Message: "Файл обновлён"})
}

// DeleteFile обрабатывает DELETE /delete/{id}.
func (h *FilesHandler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	if err := h.files.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resultResponse{Success: true, Message: "Файл удалён"})
}

// writeServiceError преобразует ошибку сервисного слоя в HTTP-ответ.
// Детали внутренних ошибок клиенту не передаются.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		apierrors.ValidationError(w, err.Error())
	case errors.Is(err, service.ErrNotFound):
		apierrors.NotFound(w, "Файл не найден")
	case errors.Is(err, service.ErrConflict):
		apierrors.Conflict(w, "Конфликт: запись уже существует")
	default:
		apierrors.InternalError(w, "Внутренняя ошибка сервера")
	}
}

// writeIngestError преобразует ошибку загрузки в ответ {success: false, error}.
// Тексты ошибок валидации и лимита размера передаются клиенту как есть.
func writeIngestError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		writeUploadError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrTooLarge):
		writeUploadError(w, http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, service.ErrConflict):
		writeUploadError(w, http.StatusConflict, "Конфликт при сохранении, повторите загрузку")
	default:
		writeUploadError(w, http.StatusInternalServerError, "Ошибка загрузки, повторите попытку")
	}
}

// writeUploadError записывает ошибку загрузки в формате {success: false, error}.
func writeUploadError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, uploadResponse{Success: false, Error: message})
}

// closeAll закрывает содержимое элементов пакета.
func closeAll(items []service.IngestItem) {
	for _, it := range items {
		if c, ok := it.Content.(io.Closer); ok {
			_ = c.Close()
		}
	}
}

// writeJSON вспомогательная функция для записи JSON-ответа.
func writeJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// formatTime форматирует время для API-ответов.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
