// metrics.go — Prometheus-метрики сервисного слоя sharebox.
package service

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Результаты операций для лейбла result.
const (
	resultSuccess   = "success"
	resultDuplicate = "duplicate"
	resultNotFound  = "not_found"
	resultInvalid   = "invalid"
	resultError     = "error"
)

var (
	// operationsTotal — количество операций по типу и результату.
	operationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sb_operations_total",
		Help: "Общее количество операций sharebox (по типу и результату).",
	}, []string{"operation", "result"})

	// dedupHitsTotal — количество загрузок, распознанных как дубликат.
	dedupHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sb_dedup_hits_total",
		Help: "Количество загруженных файлов, совпавших по хэшу с существующими.",
	})

	// ingestedBytesTotal — объём сохранённых новых blob-ов.
	ingestedBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sb_ingested_bytes_total",
		Help: "Общий объём новых blob-ов, сохранённых при загрузке (байты).",
	})
)

// resultLabel возвращает лейбл result для ошибки операции.
func resultLabel(err error) string {
	switch {
	case err == nil:
		return resultSuccess
	case errors.Is(err, ErrNotFound):
		return resultNotFound
	case errors.Is(err, ErrValidation):
		return resultInvalid
	default:
		return resultError
	}
}
