package config

import (
	"os"
	"strconv"
	"time"
)

// Config содержит все настройки приложения
type Config struct {
	// HTTP API settings
	HTTPPort string

	// Realtime channel settings
	RealtimeURL      string
	ReconnectDelay   time.Duration
	StalenessTimeout time.Duration
	WatchPatientID   string // пациент, наблюдаемый с момента старта ("" — ждать команды)

	// History sync settings
	HistoryBaseURL    string
	RequestDelay      time.Duration
	RequestLookback   time.Duration
	HistoryWindowDays int
	SyncInterval      time.Duration

	// Aggregation settings
	MinIntervalSeconds int64
	MaxIntervals       int64

	// Cache settings
	CacheBackend string // "sqlite" | "redis" | "memory"
	SQLiteDir    string

	// Redis settings
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// Load загружает конфигурацию из переменных окружения с дефолтными значениями
func Load() *Config {
	return &Config{
		HTTPPort: getEnvString("HTTP_PORT", "8080"),

		// Realtime
		RealtimeURL:      getEnvString("REALTIME_URL", "ws://localhost:9090/ws"),
		ReconnectDelay:   getEnvDuration("RECONNECT_DELAY_MS", 3000),
		StalenessTimeout: getEnvDuration("STALENESS_TIMEOUT_MS", 15000),
		WatchPatientID:   getEnvString("WATCH_PATIENT_ID", ""),

		// History
		HistoryBaseURL:    getEnvString("HISTORY_BASE_URL", "http://localhost:9090"),
		RequestDelay:      getEnvDuration("REQUEST_DELAY_MS", 60000),   // минимальная пауза между фетчами
		RequestLookback:   getEnvDuration("REQUEST_LOOKBACK_MS", 300000), // перекрытие для опоздавших сэмплов
		HistoryWindowDays: getEnvInt("HISTORY_WINDOW_DAYS", 30),
		SyncInterval:      getEnvDuration("SYNC_INTERVAL_MS", 60000),

		// Aggregation
		MinIntervalSeconds: getEnvInt64("MIN_INTERVAL_SECONDS", 30),
		MaxIntervals:       getEnvInt64("MAX_INTERVALS", 60),

		// Cache
		CacheBackend: getEnvString("CACHE_BACKEND", "sqlite"),
		SQLiteDir:    getEnvString("SQLITE_DIR", defaultSQLiteDir()),

		// Redis
		RedisAddr:     getEnvString("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnvString("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
	}
}

func defaultSQLiteDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home + "/.vitals-monitory"
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultMS int64) time.Duration {
	return time.Duration(getEnvInt64(key, defaultMS)) * time.Millisecond
}
