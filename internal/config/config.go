// Пакет config — загрузка и валидация конфигурации Archive Module
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации Archive Module.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера (диапазон 8040-8049)
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// --- HTTP Server Timeouts ---

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration

	// --- PostgreSQL ---

	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	DBSSLMode  string

	// --- Redis (счётчики лимитов) ---

	// URL Redis (redis://host:6379/0). Пусто — лимитер отключён (fail-open).
	RedisURL string

	// --- Объектное хранилище (S3 / R2) ---

	// Endpoint S3-совместимого хранилища. Пусто — используется локальное хранение.
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3Bucket    string
	S3Region    string
	// Префикс ключей объектов (по умолчанию r2)
	S3PathPrefix string
	// Публичный базовый URL для ссылок на объекты
	S3PublicBaseURL string

	// --- Локальное хранение и приём файлов ---

	// Корневая директория локального архива
	ArchiveDir string
	// Директория временных файлов (загрузки, водяные знаки)
	TempDir string
	// Сохранять ли исходную загруженную копию после размещения
	KeepLocalCopy bool
	// Количество файлов пакета, обрабатываемых параллельно
	IngestConcurrency int
	// Максимальный размер загружаемого файла в байтах
	MaxFileSize int64

	// --- Meilisearch ---

	MeiliURL     string
	MeiliAPIKey  string
	MeiliIndex   string
	MeiliTimeout time.Duration
	// Размер и TTL кэша результатов поиска
	SearchCacheSize int
	SearchCacheTTL  time.Duration

	// --- Водяные знаки ---

	WatermarkEnabled bool
	// Текст водяного знака. Пусто — фраза из встроенного набора.
	WatermarkText string
	// Количество вставок в текстовый файл
	WatermarkTextTimes int

	// --- Сервис коротких ссылок ---

	ShortLinkURL       string
	ShortLinkToken     string
	ShortLinkBearer    bool
	ShortLinkTimeout   time.Duration
	ShortLinkCacheSize int
	ShortLinkCacheTTL  time.Duration

	// --- OneBot (чат-транспорт) ---

	// Базовый URL HTTP API OneBot v11
	OneBotURL string
	// Access token HTTP API
	OneBotToken string
	// Секрет подписи входящих событий (X-Signature)
	OneBotSecret string
	// Таймаут вызовов HTTP API
	OneBotTimeout time.Duration
	// Группы, файлы которых архивируются
	ArchiveContexts []int64
	// Группы, в которых принимаются запросы
	RequestContexts []int64
	// Группы администраторов (отчёты, освобождение от лимитов)
	AdminContexts []int64
	// Пользователи, освобождённые от лимитов
	AdminUsers []int64

	// --- Запросы и лимиты ---

	QueryDailyLimit       int
	QueryErrorWeeklyLimit int
	QueryDailyKeyPrefix   string
	QueryErrorKeyPrefix   string
	QuerySearchLimit      int
	// Возраст, после которого ожидающий запрос закрывается по таймауту
	QueryPollingTimeout time.Duration
	// Максимум ожидающих запросов за один проход опроса
	QueryPollingBatch int
	// Возраст запроса для попадания в ежедневную сводку
	QueryFeedbackAge time.Duration
	// Таймаут сокращения одной ссылки в ответе
	ReplyShortLinkTimeout time.Duration
	// Длительность мута за повторные ошибки шаблона
	MuteInvalidTemplate time.Duration
	// Длительность мута за превышение дневного лимита
	MuteDailyLimit time.Duration

	// --- Планировщик ---

	SchedulerEnabled  bool
	SchedulerTimezone string
	// Попытки и пауза при закреплении сообщения
	PinAttempts int
	PinDelay    time.Duration

	// --- JWT (admin API) ---

	// URL JWKS Keycloak. Пусто — admin API не публикуется.
	JWTJWKSURL          string
	JWTIssuer           string
	JWTLeeway           time.Duration
	JWKSClientTimeout   time.Duration
	JWKSRefreshInterval time.Duration
	JWTCACertPath       string
	RoleAdminGroups     []string
	RoleReadonlyGroups  []string

	// --- topologymetrics ---

	DephealthGroup         string
	DephealthCheckInterval time.Duration

	// --- Graceful shutdown ---

	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения.
// Возвращает ошибку, если обязательные переменные не заданы
// или значения некорректны.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// AR_PORT — порт HTTP-сервера (по умолчанию 8040)
	cfg.Port, err = getEnvInt("AR_PORT", 8040)
	if err != nil {
		return nil, fmt.Errorf("AR_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("AR_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	cfg.LogLevel, err = parseLogLevel(getEnvDefault("AR_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("AR_LOG_LEVEL: %w", err)
	}

	cfg.LogFormat = getEnvDefault("AR_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("AR_LOG_FORMAT: недопустимый формат %q, допустимые: json, text", cfg.LogFormat)
	}

	// --- HTTP Server Timeouts ---

	if cfg.HTTPReadTimeout, err = getEnvDuration("AR_HTTP_READ_TIMEOUT", 30*time.Second); err != nil {
		return nil, fmt.Errorf("AR_HTTP_READ_TIMEOUT: %w", err)
	}
	if cfg.HTTPWriteTimeout, err = getEnvDuration("AR_HTTP_WRITE_TIMEOUT", 60*time.Second); err != nil {
		return nil, fmt.Errorf("AR_HTTP_WRITE_TIMEOUT: %w", err)
	}
	if cfg.HTTPIdleTimeout, err = getEnvDuration("AR_HTTP_IDLE_TIMEOUT", 120*time.Second); err != nil {
		return nil, fmt.Errorf("AR_HTTP_IDLE_TIMEOUT: %w", err)
	}

	// --- PostgreSQL ---

	if cfg.DBHost, err = getEnvRequired("AR_DB_HOST"); err != nil {
		return nil, err
	}
	if cfg.DBPort, err = getEnvInt("AR_DB_PORT", 5432); err != nil {
		return nil, fmt.Errorf("AR_DB_PORT: %w", err)
	}
	if cfg.DBName, err = getEnvRequired("AR_DB_NAME"); err != nil {
		return nil, err
	}
	if cfg.DBUser, err = getEnvRequired("AR_DB_USER"); err != nil {
		return nil, err
	}
	if cfg.DBPassword, err = getEnvRequired("AR_DB_PASSWORD"); err != nil {
		return nil, err
	}
	cfg.DBSSLMode = getEnvDefault("AR_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return nil, fmt.Errorf("AR_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}

	// --- Redis ---

	cfg.RedisURL = getEnvDefault("AR_REDIS_URL", "")

	// --- Объектное хранилище ---

	cfg.S3Endpoint = getEnvDefault("AR_S3_ENDPOINT", "")
	cfg.S3AccessKey = getEnvDefault("AR_S3_ACCESS_KEY", "")
	cfg.S3SecretKey = getEnvDefault("AR_S3_SECRET_KEY", "")
	cfg.S3Bucket = getEnvDefault("AR_S3_BUCKET", "")
	cfg.S3Region = getEnvDefault("AR_S3_REGION", "auto")
	cfg.S3PathPrefix = strings.Trim(getEnvDefault("AR_S3_PATH_PREFIX", "r2"), "/")
	cfg.S3PublicBaseURL = strings.TrimRight(getEnvDefault("AR_S3_PUBLIC_BASE_URL", ""), "/")
	if cfg.S3Enabled() && cfg.S3PublicBaseURL == "" {
		return nil, fmt.Errorf("AR_S3_PUBLIC_BASE_URL: обязательна при заданном AR_S3_ENDPOINT")
	}

	// --- Локальное хранение ---

	cfg.ArchiveDir = getEnvDefault("AR_ARCHIVE_DIR", "/var/lib/archive-module/archive")
	cfg.TempDir = getEnvDefault("AR_TEMP_DIR", filepath.Join(os.TempDir(), "archive-module"))
	if cfg.KeepLocalCopy, err = getEnvBool("AR_ARCHIVE_KEEP_LOCAL_COPY", true); err != nil {
		return nil, fmt.Errorf("AR_ARCHIVE_KEEP_LOCAL_COPY: %w", err)
	}
	if cfg.IngestConcurrency, err = getEnvInt("AR_INGEST_CONCURRENCY", 2); err != nil {
		return nil, fmt.Errorf("AR_INGEST_CONCURRENCY: %w", err)
	}
	if cfg.IngestConcurrency < 1 || cfg.IngestConcurrency > 32 {
		return nil, fmt.Errorf("AR_INGEST_CONCURRENCY: значение %d вне допустимого диапазона 1-32", cfg.IngestConcurrency)
	}
	maxFileSizeMB, err := getEnvInt("AR_MAX_FILE_SIZE_MB", 512)
	if err != nil {
		return nil, fmt.Errorf("AR_MAX_FILE_SIZE_MB: %w", err)
	}
	cfg.MaxFileSize = int64(maxFileSizeMB) << 20

	// --- Meilisearch ---

	cfg.MeiliURL = strings.TrimRight(getEnvDefault("AR_MEILI_URL", ""), "/")
	cfg.MeiliAPIKey = getEnvDefault("AR_MEILI_API_KEY", "")
	cfg.MeiliIndex = getEnvDefault("AR_MEILI_INDEX", "archived_file")
	if cfg.MeiliTimeout, err = getEnvDuration("AR_MEILI_TIMEOUT", 5*time.Second); err != nil {
		return nil, fmt.Errorf("AR_MEILI_TIMEOUT: %w", err)
	}
	if cfg.SearchCacheSize, err = getEnvInt("AR_SEARCH_CACHE_SIZE", 1000); err != nil {
		return nil, fmt.Errorf("AR_SEARCH_CACHE_SIZE: %w", err)
	}
	if cfg.SearchCacheTTL, err = getEnvDuration("AR_SEARCH_CACHE_TTL", time.Minute); err != nil {
		return nil, fmt.Errorf("AR_SEARCH_CACHE_TTL: %w", err)
	}

	// --- Водяные знаки ---

	if cfg.WatermarkEnabled, err = getEnvBool("AR_WATERMARK_ENABLED", true); err != nil {
		return nil, fmt.Errorf("AR_WATERMARK_ENABLED: %w", err)
	}
	cfg.WatermarkText = getEnvDefault("AR_WATERMARK_TEXT", "")
	if cfg.WatermarkTextTimes, err = getEnvInt("AR_WATERMARK_TEXT_TIMES", 3); err != nil {
		return nil, fmt.Errorf("AR_WATERMARK_TEXT_TIMES: %w", err)
	}
	if cfg.WatermarkTextTimes < 1 {
		return nil, fmt.Errorf("AR_WATERMARK_TEXT_TIMES: значение должно быть >= 1")
	}

	// --- Короткие ссылки ---

	cfg.ShortLinkURL = getEnvDefault("AR_SHORTLINK_URL", "")
	cfg.ShortLinkToken = getEnvDefault("AR_SHORTLINK_TOKEN", "")
	if cfg.ShortLinkBearer, err = getEnvBool("AR_SHORTLINK_BEARER", false); err != nil {
		return nil, fmt.Errorf("AR_SHORTLINK_BEARER: %w", err)
	}
	if cfg.ShortLinkTimeout, err = getEnvDuration("AR_SHORTLINK_TIMEOUT", 8*time.Second); err != nil {
		return nil, fmt.Errorf("AR_SHORTLINK_TIMEOUT: %w", err)
	}
	if cfg.ShortLinkCacheSize, err = getEnvInt("AR_SHORTLINK_CACHE_SIZE", 1000); err != nil {
		return nil, fmt.Errorf("AR_SHORTLINK_CACHE_SIZE: %w", err)
	}
	if cfg.ShortLinkCacheTTL, err = getEnvDuration("AR_SHORTLINK_CACHE_TTL", 24*time.Hour); err != nil {
		return nil, fmt.Errorf("AR_SHORTLINK_CACHE_TTL: %w", err)
	}

	// --- OneBot ---

	if cfg.OneBotURL, err = getEnvRequired("AR_ONEBOT_URL"); err != nil {
		return nil, err
	}
	cfg.OneBotURL = strings.TrimRight(cfg.OneBotURL, "/")
	if _, parseErr := url.ParseRequestURI(cfg.OneBotURL); parseErr != nil {
		return nil, fmt.Errorf("AR_ONEBOT_URL: некорректный URL %q", cfg.OneBotURL)
	}
	cfg.OneBotToken = getEnvDefault("AR_ONEBOT_TOKEN", "")
	cfg.OneBotSecret = getEnvDefault("AR_ONEBOT_SECRET", "")
	if cfg.OneBotTimeout, err = getEnvDuration("AR_ONEBOT_TIMEOUT", 15*time.Second); err != nil {
		return nil, fmt.Errorf("AR_ONEBOT_TIMEOUT: %w", err)
	}
	if cfg.ArchiveContexts, err = parseIDList(getEnvDefault("AR_ARCHIVE_GROUPS", "")); err != nil {
		return nil, fmt.Errorf("AR_ARCHIVE_GROUPS: %w", err)
	}
	if cfg.RequestContexts, err = parseIDList(getEnvDefault("AR_QUERY_GROUPS", "")); err != nil {
		return nil, fmt.Errorf("AR_QUERY_GROUPS: %w", err)
	}
	if cfg.AdminContexts, err = parseIDList(getEnvDefault("AR_ADMIN_GROUPS", "")); err != nil {
		return nil, fmt.Errorf("AR_ADMIN_GROUPS: %w", err)
	}
	if cfg.AdminUsers, err = parseIDList(getEnvDefault("AR_ADMIN_USERS", "")); err != nil {
		return nil, fmt.Errorf("AR_ADMIN_USERS: %w", err)
	}

	// --- Запросы и лимиты ---

	if cfg.QueryDailyLimit, err = getEnvInt("AR_QUERY_DAILY_LIMIT", 5); err != nil {
		return nil, fmt.Errorf("AR_QUERY_DAILY_LIMIT: %w", err)
	}
	if cfg.QueryErrorWeeklyLimit, err = getEnvInt("AR_QUERY_ERROR_WEEKLY_LIMIT", 3); err != nil {
		return nil, fmt.Errorf("AR_QUERY_ERROR_WEEKLY_LIMIT: %w", err)
	}
	cfg.QueryDailyKeyPrefix = getEnvDefault("AR_QUERY_DAILY_KEY_PREFIX", "request:daily:")
	cfg.QueryErrorKeyPrefix = getEnvDefault("AR_QUERY_ERROR_KEY_PREFIX", "request:warning:")
	if cfg.QuerySearchLimit, err = getEnvInt("AR_QUERY_SEARCH_LIMIT", 10); err != nil {
		return nil, fmt.Errorf("AR_QUERY_SEARCH_LIMIT: %w", err)
	}
	if cfg.QuerySearchLimit < 1 || cfg.QuerySearchLimit > 100 {
		return nil, fmt.Errorf("AR_QUERY_SEARCH_LIMIT: значение %d вне допустимого диапазона 1-100", cfg.QuerySearchLimit)
	}
	if cfg.QueryPollingTimeout, err = getEnvDurationFallback("AR_QUERY_POLLING_TIMEOUT", 7*24*time.Hour); err != nil {
		return nil, fmt.Errorf("AR_QUERY_POLLING_TIMEOUT: %w", err)
	}
	if cfg.QueryPollingBatch, err = getEnvInt("AR_QUERY_POLLING_BATCH", 300); err != nil {
		return nil, fmt.Errorf("AR_QUERY_POLLING_BATCH: %w", err)
	}
	if cfg.QueryFeedbackAge, err = getEnvDurationFallback("AR_QUERY_FEEDBACK_AGE", 72*time.Hour); err != nil {
		return nil, fmt.Errorf("AR_QUERY_FEEDBACK_AGE: %w", err)
	}
	if cfg.ReplyShortLinkTimeout, err = getEnvDurationFallback("AR_REPLY_SHORTLINK_TIMEOUT", 3*time.Second); err != nil {
		return nil, fmt.Errorf("AR_REPLY_SHORTLINK_TIMEOUT: %w", err)
	}
	if cfg.MuteInvalidTemplate, err = getEnvDurationFallback("AR_MUTE_INVALID_TEMPLATE", 7*24*time.Hour); err != nil {
		return nil, fmt.Errorf("AR_MUTE_INVALID_TEMPLATE: %w", err)
	}
	if cfg.MuteDailyLimit, err = getEnvDurationFallback("AR_MUTE_DAILY_LIMIT", 24*time.Hour); err != nil {
		return nil, fmt.Errorf("AR_MUTE_DAILY_LIMIT: %w", err)
	}

	// --- Планировщик ---

	if cfg.SchedulerEnabled, err = getEnvBool("AR_SCHEDULER_ENABLED", true); err != nil {
		return nil, fmt.Errorf("AR_SCHEDULER_ENABLED: %w", err)
	}
	cfg.SchedulerTimezone = getEnvDefault("AR_SCHEDULER_TIMEZONE", "Asia/Shanghai")
	if cfg.PinAttempts, err = getEnvInt("AR_PIN_ATTEMPTS", 3); err != nil {
		return nil, fmt.Errorf("AR_PIN_ATTEMPTS: %w", err)
	}
	if cfg.PinAttempts < 1 {
		return nil, fmt.Errorf("AR_PIN_ATTEMPTS: значение должно быть >= 1")
	}
	if cfg.PinDelay, err = getEnvDuration("AR_PIN_DELAY", time.Second); err != nil {
		return nil, fmt.Errorf("AR_PIN_DELAY: %w", err)
	}

	// --- JWT ---

	cfg.JWTJWKSURL = getEnvDefault("AR_JWT_JWKS_URL", "")
	cfg.JWTIssuer = getEnvDefault("AR_JWT_ISSUER", "")
	if cfg.JWTLeeway, err = getEnvDuration("AR_JWT_LEEWAY", 5*time.Second); err != nil {
		return nil, fmt.Errorf("AR_JWT_LEEWAY: %w", err)
	}
	if cfg.JWKSClientTimeout, err = getEnvDurationFallback("AR_JWKS_CLIENT_TIMEOUT", 10*time.Second); err != nil {
		return nil, fmt.Errorf("AR_JWKS_CLIENT_TIMEOUT: %w", err)
	}
	if cfg.JWKSRefreshInterval, err = getEnvDurationFallback("AR_JWKS_REFRESH_INTERVAL", 15*time.Minute); err != nil {
		return nil, fmt.Errorf("AR_JWKS_REFRESH_INTERVAL: %w", err)
	}
	cfg.JWTCACertPath = getEnvDefault("AR_JWT_CA_CERT_PATH", "")
	cfg.RoleAdminGroups = parseCSV(getEnvDefault("AR_ROLE_ADMIN_GROUPS", "artsore-admins"))
	cfg.RoleReadonlyGroups = parseCSV(getEnvDefault("AR_ROLE_READONLY_GROUPS", "artsore-viewers"))

	// --- topologymetrics ---

	cfg.DephealthGroup = getEnvDefault("AR_DEPHEALTH_GROUP", "archive")
	if cfg.DephealthCheckInterval, err = getEnvDuration("AR_DEPHEALTH_CHECK_INTERVAL", 15*time.Second); err != nil {
		return nil, fmt.Errorf("AR_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// --- Graceful shutdown ---

	if cfg.ShutdownTimeout, err = getEnvDuration("AR_SHUTDOWN_TIMEOUT", 5*time.Second); err != nil {
		return nil, fmt.Errorf("AR_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// S3Enabled сообщает, заданы ли параметры удалённого хранилища.
func (c *Config) S3Enabled() bool {
	return c.S3Endpoint != "" && c.S3AccessKey != "" && c.S3SecretKey != "" && c.S3Bucket != ""
}

// MeiliEnabled сообщает, задан ли адрес Meilisearch.
func (c *Config) MeiliEnabled() bool {
	return c.MeiliURL != ""
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// DatabaseURL возвращает URL PostgreSQL без пароля (для лейблов topologymetrics).
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s@%s:%d/%s", c.DBUser, c.DBHost, c.DBPort, c.DBName)
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

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

// getEnvDurationFallback возвращает time.Duration из переменной окружения.
// Если переменная не задана, используется fallbackVal.
// Если задана — парсится и валидируется (> 0).
func getEnvDurationFallback(key string, fallbackVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return fallbackVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	if d <= 0 {
		return 0, fmt.Errorf("значение должно быть > 0")
	}
	return d, nil
}

// getEnvBool возвращает булево значение переменной окружения или значение по умолчанию.
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное булево значение: %q (допустимые: true, false, 1, 0)", val)
	}
	return b, nil
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

// parseCSV разбирает строку, разделённую запятыми, на срез строк.
// Пробелы вокруг элементов убираются, пустые элементы игнорируются.
func parseCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// parseIDList разбирает CSV-список числовых идентификаторов чата.
func parseIDList(s string) ([]int64, error) {
	parts := parseCSV(s)
	if len(parts) == 0 {
		return nil, nil
	}
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("некорректный идентификатор %q", p)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
