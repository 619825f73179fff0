// errors.go — ошибки бизнес-логики сервисного слоя.
package service

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation — ошибка валидации входных данных.
	ErrValidation = errors.New("ошибка валидации")
	// ErrUnsupportedType — расширение файла не входит в список разрешённых.
	ErrUnsupportedType = fmt.Errorf("%w: недопустимый тип файла", ErrValidation)
	// ErrNotFound — файл не найден или его blob отсутствует.
	ErrNotFound = errors.New("файл не найден")
	// ErrConflict — конфликт уникальности при вставке.
	ErrConflict = errors.New("конфликт — запись уже существует")
	// ErrIO — ошибка файловой системы.
	ErrIO = errors.New("ошибка ввода-вывода")
	// ErrTooLarge — размер запроса загрузки превышает SB_MAX_REQUEST_SIZE.
	ErrTooLarge = errors.New("превышен допустимый размер запроса")
	// ErrInternal — прочие внутренние ошибки (детали только в логе).
	ErrInternal = errors.New("внутренняя ошибка")
)
