// Пакет config — загрузка и валидация конфигурации Meeting Module
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/docker/go-units"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Бэкенды планировщика отложенного удаления.
const (
	SchedulerLocal = "local"
	SchedulerRedis = "redis"
)

// Config содержит все параметры конфигурации Meeting Module.
type Config struct {
	// Порт HTTP-сервера
	Port int
	// Корневая директория объектного хранилища
	DataDir string
	// Директория журнала сжатия (WAL)
	WALDir string
	// Максимальный размер загружаемого файла в байтах
	MaxUploadSize int64
	// Порог автоматического сжатия документов в байтах
	CompressThreshold int64

	// Задержка окончательного удаления отменённой встречи
	DeleteDelay time.Duration
	// Интервал восстановительной зачистки (0 — отключена)
	SweepInterval time.Duration
	// Количество встреч, обрабатываемых зачисткой параллельно
	SweepConcurrency int
	// Бэкенд планировщика: local или redis
	SchedulerBackend string
	// Количество воркеров планировщика
	SchedulerWorkers int
	// Максимальное количество повторов задачи удаления
	JobMaxRetry int
	// Адрес Redis для asynq
	RedisAddr string
	// Пароль Redis
	RedisPassword string
	// Номер базы Redis
	RedisDB int

	// Запись аудита и удаление встречи в одной транзакции
	AuditAtomic bool

	// Размер LRU-кэша владельцев файлов
	OwnerCacheSize int
	// TTL записи в кэше владельцев
	OwnerCacheTTL time.Duration

	// PostgreSQL
	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	DBSSLMode  string

	// URL JWKS endpoint для проверки токенов
	JWKSUrl string
	// Допустимое отклонение времени при проверке JWT
	JWTLeeway time.Duration

	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// Интервал проверки зависимостей topologymetrics
	DephealthCheckInterval time.Duration
	// Имя группы в метриках topologymetrics
	DephealthGroup string

	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}

	// MM_PORT — порт HTTP-сервера (по умолчанию 8030)
	port, err := getEnvInt("MM_PORT", 8030)
	if err != nil {
		return nil, fmt.Errorf("MM_PORT: %w", err)
	}
	if port < 1 || port > 65535 {
		return nil, fmt.Errorf("MM_PORT: значение %d вне допустимого диапазона 1-65535", port)
	}
	cfg.Port = port

	// MM_DATA_DIR — обязательный
	cfg.DataDir, err = getEnvRequired("MM_DATA_DIR")
	if err != nil {
		return nil, err
	}

	// MM_WAL_DIR — по умолчанию поддиректория .wal в MM_DATA_DIR
	cfg.WALDir = getEnvDefault("MM_WAL_DIR", filepath.Join(cfg.DataDir, ".wal"))

	// MM_MAX_UPLOAD_SIZE — лимит загрузки (по умолчанию 10MiB)
	cfg.MaxUploadSize, err = getEnvSize("MM_MAX_UPLOAD_SIZE", 10*units.MiB)
	if err != nil {
		return nil, fmt.Errorf("MM_MAX_UPLOAD_SIZE: %w", err)
	}

	// MM_COMPRESS_THRESHOLD — порог автосжатия документов (по умолчанию 1MiB)
	cfg.CompressThreshold, err = getEnvSize("MM_COMPRESS_THRESHOLD", units.MiB)
	if err != nil {
		return nil, fmt.Errorf("MM_COMPRESS_THRESHOLD: %w", err)
	}

	// MM_DELETE_DELAY — задержка окончательного удаления (по умолчанию 30m)
	cfg.DeleteDelay, err = getEnvDuration("MM_DELETE_DELAY", 30*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("MM_DELETE_DELAY: %w", err)
	}
	if cfg.DeleteDelay <= 0 {
		return nil, fmt.Errorf("MM_DELETE_DELAY: значение должно быть положительным")
	}

	// MM_SWEEP_INTERVAL — интервал зачистки (по умолчанию 5m)
	cfg.SweepInterval, err = getEnvDuration("MM_SWEEP_INTERVAL", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("MM_SWEEP_INTERVAL: %w", err)
	}
	if cfg.SweepInterval < 0 {
		return nil, fmt.Errorf("MM_SWEEP_INTERVAL: значение не может быть отрицательным")
	}

	cfg.SweepConcurrency, err = getEnvInt("MM_SWEEP_CONCURRENCY", 4)
	if err != nil {
		return nil, fmt.Errorf("MM_SWEEP_CONCURRENCY: %w", err)
	}
	if cfg.SweepConcurrency < 1 {
		return nil, fmt.Errorf("MM_SWEEP_CONCURRENCY: значение должно быть >= 1")
	}

	// MM_SCHEDULER_BACKEND — local (in-process) или redis (asynq)
	cfg.SchedulerBackend = getEnvDefault("MM_SCHEDULER_BACKEND", SchedulerLocal)
	if cfg.SchedulerBackend != SchedulerLocal && cfg.SchedulerBackend != SchedulerRedis {
		return nil, fmt.Errorf("MM_SCHEDULER_BACKEND: недопустимое значение %q, допустимые: local, redis", cfg.SchedulerBackend)
	}

	cfg.SchedulerWorkers, err = getEnvInt("MM_SCHEDULER_WORKERS", 4)
	if err != nil {
		return nil, fmt.Errorf("MM_SCHEDULER_WORKERS: %w", err)
	}
	if cfg.SchedulerWorkers < 1 {
		return nil, fmt.Errorf("MM_SCHEDULER_WORKERS: значение должно быть >= 1")
	}

	cfg.JobMaxRetry, err = getEnvInt("MM_JOB_MAX_RETRY", 5)
	if err != nil {
		return nil, fmt.Errorf("MM_JOB_MAX_RETRY: %w", err)
	}
	if cfg.JobMaxRetry < 0 {
		return nil, fmt.Errorf("MM_JOB_MAX_RETRY: значение не может быть отрицательным")
	}

	cfg.RedisAddr = getEnvDefault("MM_REDIS_ADDR", "localhost:6379")
	cfg.RedisPassword = getEnvDefault("MM_REDIS_PASSWORD", "")
	cfg.RedisDB, err = getEnvInt("MM_REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("MM_REDIS_DB: %w", err)
	}

	// MM_AUDIT_ATOMIC — аудит и удаление в одной транзакции (по умолчанию false)
	cfg.AuditAtomic, err = getEnvBool("MM_AUDIT_ATOMIC", false)
	if err != nil {
		return nil, fmt.Errorf("MM_AUDIT_ATOMIC: %w", err)
	}

	cfg.OwnerCacheSize, err = getEnvInt("MM_OWNER_CACHE_SIZE", 1024)
	if err != nil {
		return nil, fmt.Errorf("MM_OWNER_CACHE_SIZE: %w", err)
	}
	if cfg.OwnerCacheSize < 1 {
		return nil, fmt.Errorf("MM_OWNER_CACHE_SIZE: значение должно быть >= 1")
	}
	cfg.OwnerCacheTTL, err = getEnvDuration("MM_OWNER_CACHE_TTL", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("MM_OWNER_CACHE_TTL: %w", err)
	}

	// MM_DB_HOST — обязательный
	cfg.DBHost, err = getEnvRequired("MM_DB_HOST")
	if err != nil {
		return nil, err
	}
	cfg.DBPort, err = getEnvInt("MM_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("MM_DB_PORT: %w", err)
	}
	cfg.DBName, err = getEnvRequired("MM_DB_NAME")
	if err != nil {
		return nil, err
	}
	cfg.DBUser, err = getEnvRequired("MM_DB_USER")
	if err != nil {
		return nil, err
	}
	cfg.DBPassword, err = getEnvRequired("MM_DB_PASSWORD")
	if err != nil {
		return nil, err
	}
	cfg.DBSSLMode = getEnvDefault("MM_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{"disable": true, "require": true, "verify-ca": true, "verify-full": true}
	if !validSSLModes[cfg.DBSSLMode] {
		return nil, fmt.Errorf("MM_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}

	// MM_JWKS_URL — обязательный
	cfg.JWKSUrl, err = getEnvRequired("MM_JWKS_URL")
	if err != nil {
		return nil, err
	}
	cfg.JWTLeeway, err = getEnvDuration("MM_JWT_LEEWAY", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("MM_JWT_LEEWAY: %w", err)
	}

	// MM_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("MM_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("MM_LOG_LEVEL: %w", err)
	}

	// MM_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("MM_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("MM_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	cfg.DephealthCheckInterval, err = getEnvDuration("MM_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("MM_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}
	cfg.DephealthGroup = getEnvDefault("MM_DEPHEALTH_GROUP", "meeting-module")

	cfg.ShutdownTimeout, err = getEnvDuration("MM_SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("MM_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// MigrateURL возвращает URL для golang-migrate (драйвер pgx5).
func (c *Config) MigrateURL() string {
	return fmt.Sprintf(
		"pgx5://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// DatabaseURL возвращает URL PostgreSQL без пароля (для меток метрик).
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%d/%s", c.DBHost, c.DBPort, c.DBName)
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

func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное логическое значение: %q", val)
	}
	return b, nil
}

// getEnvSize возвращает размер в байтах. Принимает как число байт,
// так и человекочитаемый формат (10MiB, 1m, 512k).
func getEnvSize(key string, defaultVal int64) (int64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := units.RAMInBytes(val)
	if err != nil {
		return 0, fmt.Errorf("некорректный размер: %q (примеры: 10MiB, 1m, 1048576)", val)
	}
	if n <= 0 {
		return 0, fmt.Errorf("значение должно быть положительным, получено %d", n)
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
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 5m, 1h)", val)
	}
	return d, nil
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
