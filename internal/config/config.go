// Пакет config — загрузка и валидация конфигурации sharebox
// из переменных окружения (опционально — из dotenv-файла).
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// DefaultAllowedExtensions — расширения файлов, разрешённые к загрузке по умолчанию.
var DefaultAllowedExtensions = []string{
	"txt", "pdf", "png", "jpg", "jpeg", "gif", "doc", "docx",
	"xls", "xlsx", "ppt", "pptx", "zip", "rar", "7z", "mp3",
	"mp4", "avi", "mkv", "mov", "csv", "json", "xml", "py",
	"js", "html", "css", "md",
}

// Config содержит все параметры конфигурации sharebox.
type Config struct {
	// Порт HTTP-сервера
	Port int
	// Директория хранения blob-ов (плоская)
	DataDir string
	// Путь к legacy-файлу метаданных (files.json). Пустая строка — импорт отключён.
	LegacyMetadataPath string
	// Максимальный размер тела запроса загрузки в байтах (на запрос, не на файл)
	MaxRequestSize int64
	// Разрешённые расширения файлов (нижний регистр, без точки)
	AllowedExtensions []string

	// Параметры PostgreSQL
	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	DBSSLMode  string
	// Максимальный размер пула подключений
	DBMaxConns int

	// Размер LRU-кэша share token → file id
	ShareCacheSize int
	// TTL записи в кэше share token
	ShareCacheTTL time.Duration

	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// TLS (опционально; либо оба, либо ни одного)
	TLSCert string
	TLSKey  string

	// Таймауты HTTP-сервера
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	// Таймаут graceful shutdown
	ShutdownTimeout time.Duration

	// Интервал проверки зависимостей topologymetrics
	DephealthCheckInterval time.Duration
	// Имя группы в метриках topologymetrics
	DephealthGroup string
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
// Если задана SB_ENV_FILE, сначала подгружается указанный dotenv-файл;
// уже установленные переменные окружения не перезаписываются.
func Load() (*Config, error) {
	if envFile := os.Getenv("SB_ENV_FILE"); envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("SB_ENV_FILE: не удалось загрузить %s: %w", envFile, err)
		}
	}

	cfg := &Config{}
	var err error

	// SB_PORT — порт HTTP-сервера (по умолчанию 8080)
	cfg.Port, err = getEnvInt("SB_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("SB_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("SB_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	cfg.DataDir = getEnvDefault("SB_DATA_DIR", "uploads")
	cfg.LegacyMetadataPath = os.Getenv("SB_LEGACY_METADATA")
	if _, set := os.LookupEnv("SB_LEGACY_METADATA"); !set {
		cfg.LegacyMetadataPath = "metadata/files.json"
	}

	// SB_MAX_REQUEST_SIZE — лимит тела запроса (по умолчанию 500 MB)
	cfg.MaxRequestSize, err = getEnvInt64("SB_MAX_REQUEST_SIZE", 500*1024*1024)
	if err != nil {
		return nil, fmt.Errorf("SB_MAX_REQUEST_SIZE: %w", err)
	}
	if cfg.MaxRequestSize <= 0 {
		return nil, fmt.Errorf("SB_MAX_REQUEST_SIZE: значение должно быть положительным")
	}

	cfg.AllowedExtensions = DefaultAllowedExtensions
	if raw := os.Getenv("SB_ALLOWED_EXTENSIONS"); raw != "" {
		cfg.AllowedExtensions = parseExtensions(raw)
		if len(cfg.AllowedExtensions) == 0 {
			return nil, fmt.Errorf("SB_ALLOWED_EXTENSIONS: список расширений пуст")
		}
	}

	// --- PostgreSQL ---

	cfg.DBHost, err = getEnvRequired("SB_DB_HOST")
	if err != nil {
		return nil, err
	}
	cfg.DBPort, err = getEnvInt("SB_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("SB_DB_PORT: %w", err)
	}
	cfg.DBName, err = getEnvRequired("SB_DB_NAME")
	if err != nil {
		return nil, err
	}
	cfg.DBUser, err = getEnvRequired("SB_DB_USER")
	if err != nil {
		return nil, err
	}
	cfg.DBPassword, err = getEnvRequired("SB_DB_PASSWORD")
	if err != nil {
		return nil, err
	}
	cfg.DBSSLMode = getEnvDefault("SB_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{"disable": true, "require": true, "verify-ca": true, "verify-full": true}
	if !validSSLModes[cfg.DBSSLMode] {
		return nil, fmt.Errorf("SB_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}
	cfg.DBMaxConns, err = getEnvInt("SB_DB_MAX_CONNS", 10)
	if err != nil {
		return nil, fmt.Errorf("SB_DB_MAX_CONNS: %w", err)
	}
	if cfg.DBMaxConns <= 0 {
		return nil, fmt.Errorf("SB_DB_MAX_CONNS: значение должно быть положительным")
	}

	// --- Кэш share token ---

	cfg.ShareCacheSize, err = getEnvInt("SB_SHARE_CACHE_SIZE", 1000)
	if err != nil {
		return nil, fmt.Errorf("SB_SHARE_CACHE_SIZE: %w", err)
	}
	if cfg.ShareCacheSize <= 0 {
		return nil, fmt.Errorf("SB_SHARE_CACHE_SIZE: значение должно быть положительным")
	}
	cfg.ShareCacheTTL, err = getEnvDuration("SB_SHARE_CACHE_TTL", 10*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("SB_SHARE_CACHE_TTL: %w", err)
	}

	// --- Логирование ---

	cfg.LogLevel, err = parseLogLevel(getEnvDefault("SB_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("SB_LOG_LEVEL: %w", err)
	}
	cfg.LogFormat = getEnvDefault("SB_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("SB_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// --- TLS ---

	cfg.TLSCert = os.Getenv("SB_TLS_CERT")
	cfg.TLSKey = os.Getenv("SB_TLS_KEY")
	if (cfg.TLSCert == "") != (cfg.TLSKey == "") {
		return nil, fmt.Errorf("SB_TLS_CERT и SB_TLS_KEY должны задаваться вместе")
	}

	// --- HTTP-таймауты ---

	cfg.HTTPReadTimeout, err = getEnvDuration("SB_HTTP_READ_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("SB_HTTP_READ_TIMEOUT: %w", err)
	}
	// Запись ответа может длиться долго: скачивание файлов до 500 MB
	cfg.HTTPWriteTimeout, err = getEnvDuration("SB_HTTP_WRITE_TIMEOUT", 10*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("SB_HTTP_WRITE_TIMEOUT: %w", err)
	}
	cfg.HTTPIdleTimeout, err = getEnvDuration("SB_HTTP_IDLE_TIMEOUT", 120*time.Second)
	if err != nil {
		return nil, fmt.Errorf("SB_HTTP_IDLE_TIMEOUT: %w", err)
	}
	cfg.ShutdownTimeout, err = getEnvDuration("SB_SHUTDOWN_TIMEOUT", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("SB_SHUTDOWN_TIMEOUT: %w", err)
	}

	// --- topologymetrics ---

	cfg.DephealthCheckInterval, err = getEnvDuration("SB_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("SB_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}
	cfg.DephealthGroup = getEnvDefault("SB_DEPHEALTH_GROUP", "sharebox")

	return cfg, nil
}

// DatabaseDSN возвращает DSN для pgxpool (keyword/value формат).
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s pool_max_conns=%d",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode, c.DBMaxConns,
	)
}

// MigrateURL возвращает URL для golang-migrate (драйвер pgx5).
func (c *Config) MigrateURL() string {
	u := url.URL{
		Scheme:   "pgx5",
		User:     url.UserPassword(c.DBUser, c.DBPassword),
		Host:     fmt.Sprintf("%s:%d", c.DBHost, c.DBPort),
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=" + c.DBSSLMode,
	}
	return u.String()
}

// DatabaseURL возвращает postgres:// URL без пароля.
// Используется только как метка зависимости в topologymetrics.
func (c *Config) DatabaseURL() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.User(c.DBUser),
		Host:   fmt.Sprintf("%s:%d", c.DBHost, c.DBPort),
		Path:   "/" + c.DBName,
	}
	return u.String()
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvInt64 возвращает int64 значение переменной окружения или значение по умолчанию.
func getEnvInt64(key string, defaultVal int64) (int64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 6h)", val)
	}
	return d, nil
}

// parseExtensions разбирает CSV-список расширений: нижний регистр, без точек и пустых элементов.
func parseExtensions(raw string) []string {
	var result []string
	seen := make(map[string]bool)
	for _, part := range strings.Split(raw, ",") {
		ext := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(part), "."))
		if ext == "" || seen[ext] {
			continue
		}
		seen[ext] = true
		result = append(result, ext)
	}
	return result
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
