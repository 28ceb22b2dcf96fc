package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/agora/internal/logger"
)

// loadEnv читает .env только вне production (в контейнере/prod конфиг только из env).
// Файл ищется в текущем каталоге и до четырёх уровней вверх; уже заданные переменные не перезаписываются.
func loadEnv() {
	if os.Getenv("APP_ENV") == "production" {
		return
	}
	dir, err := os.Getwd()
	if err != nil {
		return
	}
	for i := 0; i < 5; i++ {
		path := filepath.Join(dir, ".env")
		if err := godotenv.Load(path); err == nil {
			logger.Infof("config: загружен %s", path)
			return
		} else if !errors.Is(err, fs.ErrNotExist) {
			logger.Errorf("config: ошибка чтения %s: %v", path, err)
			return
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return
		}
		dir = parent
	}
}

// Config содержит настройки клиента.
// Приоритет: переменные окружения > YAML-файл > значения по умолчанию.
type Config struct {
	// REST API и push-канал платформы
	APIBaseURL string
	SocketURL  string

	// Локальный control API
	ControlAddr        string
	CORSAllowedOrigins string

	RequestTimeout time.Duration
	// BeaconTimeout: на запросы cancel/end при завершении процесса.
	BeaconTimeout time.Duration

	// Переподключение push-канала
	ReconnectAttempts int
	ReconnectDelay    time.Duration
	ReconnectDelayMax time.Duration

	// SessionExpiry: окно ожидания ответа на приглашение.
	SessionExpiry       time.Duration
	NotificationDismiss time.Duration

	// Username: желаемое имя анонимной сессии. Если пусто, сервер выберет сам.
	Username string

	LogLevel string

	// RedisURL: общий guard для нескольких процессов одной сессии. Если пусто, guard в памяти.
	RedisURL string
}

// yamlConfig: промежуточная структура для парсинга YAML.
type yamlConfig struct {
	APIBaseURL            string `yaml:"api_base_url"`
	SocketURL             string `yaml:"socket_url"`
	ControlAddr           string `yaml:"control_addr"`
	CORSAllowedOrigins    string `yaml:"cors_allowed_origins"`
	RequestTimeout        int    `yaml:"request_timeout"`
	BeaconTimeout         int    `yaml:"beacon_timeout"`
	ReconnectAttempts     int    `yaml:"reconnect_attempts"`
	ReconnectDelayMs      int    `yaml:"reconnect_delay_ms"`
	ReconnectDelayMaxMs   int    `yaml:"reconnect_delay_max_ms"`
	SessionExpirySeconds  int    `yaml:"session_expiry_seconds"`
	NotificationDismissMs int    `yaml:"notification_dismiss_ms"`
	Username              string `yaml:"username"`
	LogLevel              string `yaml:"log_level"`
	RedisURL              string `yaml:"redis_url"`
}

func defaults() yamlConfig {
	return yamlConfig{
		APIBaseURL:            "http://localhost:3001",
		ControlAddr:           "127.0.0.1:8090",
		CORSAllowedOrigins:    "http://localhost:3000",
		RequestTimeout:        15,
		BeaconTimeout:         5,
		ReconnectAttempts:     5,
		ReconnectDelayMs:      1000,
		ReconnectDelayMaxMs:   5000,
		SessionExpirySeconds:  300,
		NotificationDismissMs: 5000,
		LogLevel:              "info",
	}
}

// Load загружает конфигурацию.
// Сначала подгружаются переменные из .env (если есть), затем YAML и env (env имеет приоритет).
func Load() *Config {
	loadEnv()
	yc := defaults()

	// CONFIG_PATH → config/client.yaml
	for _, path := range []string{os.Getenv("CONFIG_PATH"), "config/client.yaml"} {
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if err := yaml.Unmarshal(data, &yc); err != nil {
			logger.Errorf("config: ошибка парсинга %s: %v (используются значения по умолчанию)", path, err)
			yc = defaults()
		} else {
			logger.Infof("config: загружен %s", path)
		}
		break
	}
	return fromYAML(yc)
}

// fromYAML накладывает переменные окружения на значения из файла.
func fromYAML(yc yamlConfig) *Config {
	apiBase := strings.TrimSuffix(envStr("API_BASE_URL", yc.APIBaseURL), "/")
	socketURL := envStr("SOCKET_URL", yc.SocketURL)
	if socketURL == "" {
		socketURL = apiBase
	}

	cfg := &Config{
		APIBaseURL:          apiBase,
		SocketURL:           strings.TrimSuffix(socketURL, "/"),
		ControlAddr:         envStr("CONTROL_ADDR", yc.ControlAddr),
		CORSAllowedOrigins:  envStr("CORS_ALLOWED_ORIGINS", yc.CORSAllowedOrigins),
		RequestTimeout:      time.Duration(envInt("REQUEST_TIMEOUT", yc.RequestTimeout)) * time.Second,
		BeaconTimeout:       time.Duration(envInt("BEACON_TIMEOUT", yc.BeaconTimeout)) * time.Second,
		ReconnectAttempts:   envInt("RECONNECT_ATTEMPTS", yc.ReconnectAttempts),
		ReconnectDelay:      time.Duration(envInt("RECONNECT_DELAY_MS", yc.ReconnectDelayMs)) * time.Millisecond,
		ReconnectDelayMax:   time.Duration(envInt("RECONNECT_DELAY_MAX_MS", yc.ReconnectDelayMaxMs)) * time.Millisecond,
		SessionExpiry:       time.Duration(envInt("SESSION_EXPIRY_SECONDS", yc.SessionExpirySeconds)) * time.Second,
		NotificationDismiss: time.Duration(envInt("NOTIFICATION_DISMISS_MS", yc.NotificationDismissMs)) * time.Millisecond,
		Username:            envStr("AGORA_USERNAME", yc.Username),
		LogLevel:            envStr("LOG_LEVEL", yc.LogLevel),
		RedisURL:            envStr("REDIS_URL", yc.RedisURL),
	}

	if cfg.ReconnectAttempts <= 0 {
		cfg.ReconnectAttempts = 5
	}
	if cfg.SessionExpiry <= 0 {
		cfg.SessionExpiry = 5 * time.Minute
	}
	if os.Getenv("APP_ENV") == "production" && (cfg.CORSAllowedOrigins == "" || cfg.CORSAllowedOrigins == "*") {
		logger.Errorf("config: в production задайте CORS_ALLOWED_ORIGINS (явный список origins, не *)")
	}
	return cfg
}

// AllowedOrigins разбирает CORSAllowedOrigins (через запятую).
func (c *Config) AllowedOrigins() []string {
	var out []string
	for _, o := range strings.Split(c.CORSAllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// envStr возвращает значение переменной окружения или fallback.
func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// envInt возвращает числовое значение переменной окружения или fallback.
func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
