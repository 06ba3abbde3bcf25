package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// AppConfig - корневая структура конфигурации.
// Зеркалит структуру config.yaml.
type AppConfig struct {
	OpenAI          OpenAIConfig    `yaml:"openai"`
	Database        DatabaseConfig  `yaml:"database"`
	Cache           CacheConfig     `yaml:"cache"`
	ImageProcessing ImageProcConfig `yaml:"image_processing"`
	S3              S3Config        `yaml:"s3"`
	Server          ServerConfig    `yaml:"server"`
	App             AppSpecific     `yaml:"app"`
}

// OpenAIConfig - настройки клиента OpenAI Assistants API.
type OpenAIConfig struct {
	BaseURL    string        `yaml:"base_url"`    // Пусто = https://api.openai.com/v1
	RateLimit  int           `yaml:"rate_limit"`  // Запросов в минуту на один API ключ
	BurstLimit int           `yaml:"burst_limit"` // Burst для rate limiter
	Timeout    time.Duration `yaml:"timeout"`     // Timeout одного HTTP запроса
	Poll       PollConfig    `yaml:"poll"`
}

// PollConfig - параметры опроса статуса run.
type PollConfig struct {
	Interval    time.Duration `yaml:"interval"`     // Первая пауза перед опросом
	MaxInterval time.Duration `yaml:"max_interval"` // Потолок для backoff
	Backoff     float64       `yaml:"backoff"`      // Множитель паузы после каждого опроса
	MaxPolls    int           `yaml:"max_polls"`    // Максимум опросов за один цикл ожидания
	StallLimit  int           `yaml:"stall_limit"`  // Сколько раз терпим requires_action без tool calls
}

// DatabaseConfig - где лежат сохранённые ассистенты, креды и история чатов.
type DatabaseConfig struct {
	Driver      string `yaml:"driver"` // "sqlite3" или "postgres"
	DSN         string `yaml:"dsn"`
	AutoMigrate bool   `yaml:"auto_migrate"`
}

// CacheConfig - локальный кэш картинок, которые сгенерировал ассистент.
type CacheConfig struct {
	Dir string `yaml:"dir"`
}

// ImageProcConfig - настройки обработки изображений перед встраиванием в ответ.
type ImageProcConfig struct {
	MaxWidth int `yaml:"max_width"` // 0 = отдаём PNG как есть
	Quality  int `yaml:"quality"`
}

// S3Config - опциональное зеркало кэша картинок в объектном хранилище.
type S3Config struct {
	Enabled   bool   `yaml:"enabled"`
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	AccessKey string `yaml:"access_key"` // Поддерживает ${VAR}
	SecretKey string `yaml:"secret_key"` // Поддерживает ${VAR}
	UseSSL    bool   `yaml:"use_ssl"`
}

// ServerConfig - HTTP поверхность (serve).
type ServerConfig struct {
	Addr        string `yaml:"addr"`
	MetricsPath string `yaml:"metrics_path"`
	Mode        string `yaml:"mode"` // "debug" | "release"
}

// AppSpecific - общие настройки приложения.
type AppSpecific struct {
	Debug   bool   `yaml:"debug"`
	LogsDir string `yaml:"logs_dir"`

	// TracesDir - куда писать JSON трейсы run'ов. Пусто = трейсы выключены.
	TracesDir      string `yaml:"traces_dir"`
	TraceMaxResult int    `yaml:"trace_max_result"` // 0 = 4096 байт
}

// Load читает YAML файл, подставляет ENV переменные и возвращает готовую структуру
// с заполненными дефолтами.
func Load(path string) (*AppConfig, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found at: %s", path)
	}

	rawBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(rawBytes)
}

// Parse разбирает YAML из памяти. Используется Load и тестами.
func Parse(raw []byte) (*AppConfig, error) {
	// os.ExpandEnv заменяет ${VAR} или $VAR на значение из системы.
	contentWithEnv := os.ExpandEnv(string(raw))

	var cfg AppConfig
	if err := yaml.Unmarshal([]byte(contentWithEnv), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse yaml: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Default возвращает конфигурацию без файла: sqlite рядом с кэшем, дефолтный опрос.
func Default() *AppConfig {
	cfg := &AppConfig{}
	cfg.applyDefaults()
	return cfg
}

func (c *AppConfig) applyDefaults() {
	c.OpenAI = c.OpenAI.GetDefaults()
	c.Database = c.Database.GetDefaults()
	c.Cache = c.Cache.GetDefaults()
	c.ImageProcessing = c.ImageProcessing.GetDefaults()
	c.Server = c.Server.GetDefaults()
	if c.App.LogsDir == "" {
		c.App.LogsDir = "."
	}
	if c.App.TraceMaxResult <= 0 {
		c.App.TraceMaxResult = 4096
	}
}

// GetDefaults возвращает дефолтные значения для незаполненных полей.
func (c OpenAIConfig) GetDefaults() OpenAIConfig {
	result := c

	if result.RateLimit == 0 {
		result.RateLimit = 300 // запросов в минуту
	}
	if result.BurstLimit == 0 {
		result.BurstLimit = 10
	}
	if result.Timeout == 0 {
		result.Timeout = 60 * time.Second
	}
	result.Poll = result.Poll.GetDefaults()

	return result
}

// GetDefaults заполняет параметры опроса. 500ms - исходный интервал опроса run.
func (p PollConfig) GetDefaults() PollConfig {
	result := p

	if result.Interval <= 0 {
		result.Interval = 500 * time.Millisecond
	}
	if result.MaxInterval <= 0 {
		result.MaxInterval = 5 * time.Second
	}
	if result.MaxInterval < result.Interval {
		result.MaxInterval = result.Interval
	}
	if result.Backoff < 1 {
		result.Backoff = 1.5
	}
	if result.MaxPolls <= 0 {
		result.MaxPolls = 600
	}
	if result.StallLimit <= 0 {
		result.StallLimit = 5
	}

	return result
}

// GetDefaults для базы: sqlite файл в каталоге приложения.
func (d DatabaseConfig) GetDefaults() DatabaseConfig {
	result := d

	if result.Driver == "" {
		result.Driver = "sqlite3"
	}
	if result.DSN == "" && result.Driver == "sqlite3" {
		result.DSN = filepath.Join(AppHomeDir(), "database.sqlite")
	}

	return result
}

// GetDefaults для кэша: фиксированный пользовательский каталог приложения.
func (c CacheConfig) GetDefaults() CacheConfig {
	result := c
	if result.Dir == "" {
		result.Dir = filepath.Join(AppHomeDir(), "openai-assistant")
	}
	return result
}

// GetDefaults для обработки картинок.
func (i ImageProcConfig) GetDefaults() ImageProcConfig {
	result := i
	if result.Quality <= 0 || result.Quality > 100 {
		result.Quality = 85
	}
	return result
}

// GetDefaults для HTTP сервера.
func (s ServerConfig) GetDefaults() ServerConfig {
	result := s
	if result.Addr == "" {
		result.Addr = ":8080"
	}
	if result.MetricsPath == "" {
		result.MetricsPath = "/metrics"
	}
	if result.Mode == "" {
		result.Mode = "release"
	}
	return result
}

// validate проверяет обязательные поля.
func (c *AppConfig) validate() error {
	switch c.Database.Driver {
	case "sqlite3", "postgres":
	default:
		return fmt.Errorf("database.driver must be 'sqlite3' or 'postgres', got '%s'", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required for driver '%s'", c.Database.Driver)
	}
	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			return fmt.Errorf("s3.bucket is required when s3.enabled")
		}
		if c.S3.Endpoint == "" {
			return fmt.Errorf("s3.endpoint is required when s3.enabled")
		}
	}
	if c.ImageProcessing.MaxWidth < 0 {
		return fmt.Errorf("image_processing.max_width must not be negative")
	}
	return nil
}

// AppHomeDir возвращает ~/.poncho-assistants (или ./.poncho-assistants если HOME недоступен).
func AppHomeDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = "."
	}
	return filepath.Join(home, ".poncho-assistants")
}
