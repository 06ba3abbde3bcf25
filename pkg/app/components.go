// Package app собирает компоненты узла ассистента из конфигурации и даёт
// хост-операции (run, clear, list) для CLI, TUI и HTTP.
//
// Плагинный хост внешний; этот пакет - минимальный хост, чтобы узлом можно было
// пользоваться: он генерирует chat id и записывает историю чата, по которой
// следующий вызов находит свой тред.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ilkoid/poncho-assistants/pkg/assistant"
	"github.com/ilkoid/poncho-assistants/pkg/config"
	"github.com/ilkoid/poncho-assistants/pkg/credentials"
	"github.com/ilkoid/poncho-assistants/pkg/debug"
	"github.com/ilkoid/poncho-assistants/pkg/events"
	"github.com/ilkoid/poncho-assistants/pkg/imagecache"
	openaiapi "github.com/ilkoid/poncho-assistants/pkg/llm/openai"
	"github.com/ilkoid/poncho-assistants/pkg/s3storage"
	"github.com/ilkoid/poncho-assistants/pkg/store"
	"github.com/ilkoid/poncho-assistants/pkg/tools"
	"github.com/ilkoid/poncho-assistants/pkg/utils"
)

// Components содержит все компоненты приложения для переиспользования
// между CLI, TUI и HTTP.
type Components struct {
	Config *config.AppConfig
	DB     *sql.DB

	Assistants  *store.AssistantRepo
	Credentials *store.CredentialRepo
	Messages    *store.ChatMessageRepo

	Tools   *tools.Registry
	Images  *imagecache.Cache
	Clients *openaiapi.Factory
	Metrics *assistant.Metrics
	Node    *assistant.Node
}

// Options - необязательные зависимости Initialize.
type Options struct {
	// Emitter получает события run'ов (TUI). nil = события не нужны.
	Emitter events.Emitter
	// Registerer для prometheus метрик. nil = метрики не собираются.
	Registerer prometheus.Registerer
	// ClientFactory подменяет OpenAI клиентов (тесты). nil = go-openai.
	ClientFactory assistant.ClientFactory
}

// ConfigPathFinder определяет стратегию поиска пути к config.yaml.
type ConfigPathFinder interface {
	FindConfigPath() string
}

// DefaultConfigPathFinder реализует стандартную стратегию поиска config.yaml.
//
// Порядок поиска:
// 1. Флаг --config (если указан)
// 2. Текущая директория (./config.yaml)
// 3. Директория бинарника
// 4. Домашняя директория приложения (~/.poncho-assistants/config.yaml)
type DefaultConfigPathFinder struct {
	ConfigFlag string
}

// FindConfigPath находит путь к config.yaml. Пустая строка - файла нет.
func (f *DefaultConfigPathFinder) FindConfigPath() string {
	if f.ConfigFlag != "" {
		return resolveAbsPath(f.ConfigFlag)
	}

	candidates := []string{"config.yaml"}
	if execPath, err := os.Executable(); err == nil {
		candidates = append(candidates, filepath.Join(filepath.Dir(execPath), "config.yaml"))
	}
	candidates = append(candidates, filepath.Join(config.AppHomeDir(), "config.yaml"))

	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return resolveAbsPath(p)
		}
	}
	return ""
}

func resolveAbsPath(p string) string {
	abs, err := filepath.Abs(p)
	if err != nil {
		return p
	}
	return abs
}

// InitializeConfig загружает конфигурацию. Если файла нет и путь не задан
// явно - работаем на дефолтах.
func InitializeConfig(finder ConfigPathFinder) (*config.AppConfig, string, error) {
	cfgPath := finder.FindConfigPath()
	if cfgPath == "" {
		utils.Info("Config file not found, using defaults")
		return config.Default(), "", nil
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load config from %s: %w", cfgPath, err)
	}
	return cfg, cfgPath, nil
}

// Initialize создаёт и связывает все компоненты приложения.
func Initialize(ctx context.Context, cfg *config.AppConfig, opts Options) (*Components, error) {
	utils.Info("Initializing components",
		"driver", cfg.Database.Driver,
		"cache_dir", cfg.Cache.Dir,
		"s3_mirror", cfg.S3.Enabled)

	// 1. База
	db, err := store.Open(ctx, cfg.Database)
	if err != nil {
		utils.Error("Database open failed", "error", err)
		return nil, err
	}

	c := &Components{
		Config:      cfg,
		DB:          db,
		Assistants:  store.NewAssistantRepo(db),
		Credentials: store.NewCredentialRepo(db),
		Messages:    store.NewChatMessageRepo(db),
	}

	// 2. Кэш картинок и опциональное S3 зеркало
	var mirror s3storage.Uploader
	if cfg.S3.Enabled {
		s3Client, err := s3storage.New(cfg.S3)
		if err != nil {
			db.Close()
			return nil, err
		}
		mirror = s3Client
		utils.Info("S3 mirror initialized", "bucket", cfg.S3.Bucket, "prefix", cfg.S3.Prefix)
	}
	c.Images = imagecache.New(cfg.Cache.Dir, mirror)
	utils.Debug("Image cache ready", "dir", c.Images.Dir(), "mirror", mirror != nil)

	// 3. Встроенные инструменты
	c.Tools = tools.NewRegistry()
	if err := SetupTools(c.Tools); err != nil {
		db.Close()
		return nil, err
	}

	// 4. OpenAI клиенты: один limiter на ключ
	clientFactory := opts.ClientFactory
	if clientFactory == nil {
		c.Clients = openaiapi.NewFactory(cfg.OpenAI)
		clientFactory = func(apiKey string) assistant.API { return c.Clients.ForKey(apiKey) }
	}

	// 5. Метрики
	if opts.Registerer != nil {
		c.Metrics = assistant.NewMetrics(opts.Registerer)
	}

	// 6. Узел
	nodeOpts := []assistant.Option{
		assistant.WithPollPolicy(assistant.PolicyFromConfig(cfg.OpenAI.Poll)),
		assistant.WithRenderer(assistant.NewRenderer(c.Images, cfg.ImageProcessing.MaxWidth, cfg.ImageProcessing.Quality)),
		assistant.WithEmitter(opts.Emitter),
		assistant.WithMetrics(c.Metrics),
	}
	if cfg.App.TracesDir != "" {
		nodeOpts = append(nodeOpts, assistant.WithTraces(debug.RecorderConfig{
			Dir:                cfg.App.TracesDir,
			IncludeToolArgs:    true,
			IncludeToolResults: true,
			MaxResultSize:      cfg.App.TraceMaxResult,
		}))
		utils.Info("Run traces enabled", "dir", cfg.App.TracesDir)
	}
	c.Node = assistant.NewNode(
		c.Assistants,
		c.Messages,
		credentials.NewResolver(c.Credentials),
		clientFactory,
		nodeOpts...,
	)

	utils.Info("Components initialized", "tools", len(c.Tools.List()))
	return c, nil
}

// Close освобождает ресурсы.
func (c *Components) Close() error {
	if c.DB == nil {
		return nil
	}
	return c.DB.Close()
}
