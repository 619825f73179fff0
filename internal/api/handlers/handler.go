// handler.go — APIHandler собирает доменные handlers и регистрирует маршруты.
package handlers

import (
	"github.com/go-chi/chi/v5"
)

// APIHandler — единая точка регистрации всех endpoints.
type APIHandler struct {
	files  *FilesHandler
	health *HealthHandler
}

// NewAPIHandler создаёт единый handler для всех endpoints.
func NewAPIHandler(files *FilesHandler, health *HealthHandler) *APIHandler {
	return &APIHandler{
		files:  files,
		health: health,
	}
}

// RegisterRoutes регистрирует маршруты в router.
func (h *APIHandler) RegisterRoutes(r chi.Router) {
	// --- Файлы ---
	r.Post("/upload", h.files.Upload)
	r.Get("/files", h.files.ListFiles)
	r.Get("/download/{id}", h.files.DownloadFile)
	r.Get("/share/{token}", h.files.GetShare)
	r.Post("/edit-file/{id}", h.files.EditFile)
	r.Delete("/delete/{id}", h.files.DeleteFile)

	// --- Health и метрики ---
	r.Get("/health/live", h.health.HealthLive)
	r.Get("/health/ready", h.health.HealthReady)
	r.Get("/metrics", h.health.GetMetrics)
}
