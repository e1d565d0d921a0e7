package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config содержит конфигурацию приложения. Создается один раз при старте
// и дальше передается в конструкторы только для чтения.
type Config struct {
	Environment   string
	Server        ServerConfig
	Redis         RedisConfig
	MQTT          MQTTConfig
	MySQL         MySQLConfig
	Airspace      AirspaceConfig
	History       HistoryConfig
	Render        RenderConfig
	Interpolation InterpolationConfig
	Logging       LoggingConfig
	Monitoring    MonitoringConfig
}

// ServerConfig конфигурация HTTP сервера
type ServerConfig struct {
	Address        string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	RateLimitRPS   float64
	RateLimitBurst int
	AllowedOrigins []string
}

// RedisConfig конфигурация Redis
type RedisConfig struct {
	URL          string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	SnapshotTTL  time.Duration
}

// MQTTConfig конфигурация MQTT (источник сетевых событий)
type MQTTConfig struct {
	URL          string
	ClientID     string
	Username     string
	Password     string
	CleanSession bool
	OrderMatters bool
	TopicPrefix  string
}

// MySQLConfig конфигурация MySQL (история сессий, опционально)
type MySQLConfig struct {
	DSN          string
	MaxIdleConns int
	MaxOpenConns int
}

// AirspaceMode вариант контекста воздушного пространства
type AirspaceMode string

const (
	AirspaceModeLocal    AirspaceMode = "local"
	AirspaceModeRemote   AirspaceMode = "remote"
	AirspaceModeDisabled AirspaceMode = "disabled"
)

// AirspaceConfig настройки анализатора и watchdog
type AirspaceConfig struct {
	Mode             AirspaceMode
	AnalyzerInterval time.Duration
	AircraftTimeout  time.Duration
	AtcTimeout       time.Duration
	WatchdogEnabled  bool
	OwnLatitude      float64
	OwnLongitude     float64
	MaxRangeNM       float64
	DigestInterval   time.Duration
	DigestMaxBatch   int
	RemotePoll       time.Duration
}

// HistoryConfig ограничения истории ситуаций и parts на один позывной
type HistoryConfig struct {
	MaxSituationsPerCallsign int
	SituationRetention       time.Duration
	MaxPartsPerCallsign      int
	PartsRetention           time.Duration
	SessionBatchSize         int
	SessionFlushInterval     time.Duration
}

// RenderConfig начальные ограничения отрисовки
type RenderConfig struct {
	MaxAircraft   int     // -1 = без ограничений
	MaxDistanceNM float64 // < 0 = без ограничений
	PartsEnabled  bool
}

// InterpolationConfig глобальные настройки интерполятора
type InterpolationConfig struct {
	ForceFullInterpolation bool
	LogInterpolation       bool
	PartsEnabled           bool
	ChangeCacheSize        int
	ChangeCacheTTL         time.Duration
}

// LoggingConfig настройки логирования
type LoggingConfig struct {
	Level  string
	Format string
	File   string
}

// MonitoringConfig конфигурация мониторинга
type MonitoringConfig struct {
	MetricsEnabled bool
}

// Load загружает конфигурацию из переменных окружения
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Address:        getEnv("SERVER_ADDRESS", ":8091"),
			ReadTimeout:    getDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:   getDuration("SERVER_WRITE_TIMEOUT", 10*time.Second),
			IdleTimeout:    getDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
			RateLimitRPS:   getFloat("SERVER_RATE_LIMIT_RPS", 100),
			RateLimitBurst: getInt("SERVER_RATE_LIMIT_BURST", 200),
			AllowedOrigins: getList("SERVER_ALLOWED_ORIGINS", []string{"*"}),
		},
		Redis: RedisConfig{
			URL:          getEnv("REDIS_URL", "redis://localhost:6379"),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getInt("REDIS_DB", 0),
			PoolSize:     getInt("REDIS_POOL_SIZE", 20),
			MinIdleConns: getInt("REDIS_MIN_IDLE_CONNS", 2),
			SnapshotTTL:  getDuration("REDIS_SNAPSHOT_TTL", 30*time.Second),
		},
		MQTT: MQTTConfig{
			URL:          getEnv("MQTT_URL", "tcp://localhost:1883"),
			ClientID:     getEnv("MQTT_CLIENT_ID", "fsd-airspace"),
			Username:     getEnv("MQTT_USERNAME", ""),
			Password:     getEnv("MQTT_PASSWORD", ""),
			CleanSession: getBool("MQTT_CLEAN_SESSION", true),
			OrderMatters: getBool("MQTT_ORDER_MATTERS", true),
			TopicPrefix:  getEnv("MQTT_TOPIC_PREFIX", "fsd/events"),
		},
		MySQL: MySQLConfig{
			DSN:          getEnv("MYSQL_DSN", ""),
			MaxIdleConns: getInt("MYSQL_MAX_IDLE_CONNS", 5),
			MaxOpenConns: getInt("MYSQL_MAX_OPEN_CONNS", 20),
		},
		Airspace: AirspaceConfig{
			Mode:             AirspaceMode(strings.ToLower(getEnv("AIRSPACE_MODE", string(AirspaceModeLocal)))),
			AnalyzerInterval: getDuration("AIRSPACE_ANALYZER_INTERVAL", 2*time.Second),
			AircraftTimeout:  getDuration("AIRSPACE_AIRCRAFT_TIMEOUT", 15*time.Second),
			AtcTimeout:       getDuration("AIRSPACE_ATC_TIMEOUT", 50*time.Second),
			WatchdogEnabled:  getBool("AIRSPACE_WATCHDOG_ENABLED", true),
			OwnLatitude:      getFloat("AIRSPACE_OWN_LAT", 0),
			OwnLongitude:     getFloat("AIRSPACE_OWN_LON", 0),
			MaxRangeNM:       getFloat("AIRSPACE_MAX_RANGE_NM", 125),
			DigestInterval:   getDuration("AIRSPACE_DIGEST_INTERVAL", time.Second),
			DigestMaxBatch:   getInt("AIRSPACE_DIGEST_MAX_BATCH", 50),
			RemotePoll:       getDuration("AIRSPACE_REMOTE_POLL", time.Second),
		},
		History: HistoryConfig{
			MaxSituationsPerCallsign: getInt("HISTORY_MAX_SITUATIONS", 6),
			SituationRetention:       getDuration("HISTORY_SITUATION_RETENTION", 30*time.Second),
			MaxPartsPerCallsign:      getInt("HISTORY_MAX_PARTS", 20),
			PartsRetention:           getDuration("HISTORY_PARTS_RETENTION", 60*time.Second),
			SessionBatchSize:         getInt("HISTORY_SESSION_BATCH_SIZE", 200),
			SessionFlushInterval:     getDuration("HISTORY_SESSION_FLUSH_INTERVAL", 5*time.Second),
		},
		Render: RenderConfig{
			MaxAircraft:   getInt("RENDER_MAX_AIRCRAFT", -1),
			MaxDistanceNM: getFloat("RENDER_MAX_DISTANCE_NM", -1),
			PartsEnabled:  getBool("RENDER_PARTS_ENABLED", true),
		},
		Interpolation: InterpolationConfig{
			ForceFullInterpolation: getBool("INTERPOLATION_FORCE_FULL", false),
			LogInterpolation:       getBool("INTERPOLATION_LOG", false),
			PartsEnabled:           getBool("INTERPOLATION_PARTS_ENABLED", true),
			ChangeCacheSize:        getInt("INTERPOLATION_CHANGE_CACHE_SIZE", 2048),
			ChangeCacheTTL:         getDuration("INTERPOLATION_CHANGE_CACHE_TTL", 2*time.Minute),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
			File:   getEnv("LOG_FILE", ""),
		},
		Monitoring: MonitoringConfig{
			MetricsEnabled: getBool("METRICS_ENABLED", true),
		},
	}

	// Валидация
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate проверяет корректность конфигурации
func (c *Config) Validate() error {
	switch c.Airspace.Mode {
	case AirspaceModeLocal, AirspaceModeRemote, AirspaceModeDisabled:
	default:
		return fmt.Errorf("AIRSPACE_MODE must be one of local, remote, disabled: %q", c.Airspace.Mode)
	}

	if c.Airspace.Mode == AirspaceModeLocal && c.MQTT.URL == "" {
		return fmt.Errorf("MQTT_URL is required in local mode")
	}

	if c.Airspace.Mode == AirspaceModeRemote && c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required in remote mode")
	}

	if c.Airspace.AnalyzerInterval <= 0 {
		return fmt.Errorf("AIRSPACE_ANALYZER_INTERVAL must be positive")
	}

	if c.Airspace.AircraftTimeout <= 0 || c.Airspace.AtcTimeout <= 0 {
		return fmt.Errorf("AIRSPACE_AIRCRAFT_TIMEOUT and AIRSPACE_ATC_TIMEOUT must be positive")
	}

	if c.Airspace.OwnLatitude < -90 || c.Airspace.OwnLatitude > 90 {
		return fmt.Errorf("AIRSPACE_OWN_LAT out of range: %f", c.Airspace.OwnLatitude)
	}

	if c.Airspace.OwnLongitude < -180 || c.Airspace.OwnLongitude > 180 {
		return fmt.Errorf("AIRSPACE_OWN_LON out of range: %f", c.Airspace.OwnLongitude)
	}

	if c.Airspace.DigestMaxBatch <= 0 {
		return fmt.Errorf("AIRSPACE_DIGEST_MAX_BATCH must be positive")
	}

	if c.History.MaxSituationsPerCallsign < 2 {
		return fmt.Errorf("HISTORY_MAX_SITUATIONS must be at least 2 to interpolate")
	}

	if c.History.MaxPartsPerCallsign < 1 {
		return fmt.Errorf("HISTORY_MAX_PARTS must be positive")
	}

	if c.History.SessionBatchSize <= 0 {
		return fmt.Errorf("HISTORY_SESSION_BATCH_SIZE must be positive")
	}

	return nil
}

// Helper функции для чтения переменных окружения

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	items := make([]string, 0)
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		return defaultValue
	}
	return items
}

// IsProduction проверяет, запущено ли приложение в production
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
