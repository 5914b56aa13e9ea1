package di

import (
	"fmt"
	"net/http"
	"time"

	tgbotapi "github.com/OvyFlash/telegram-bot-api"

	"github.com/ollagram/ollagram/internal/agent"
	"github.com/ollagram/ollagram/internal/ai"
	"github.com/ollagram/ollagram/internal/ai/tools"
	"github.com/ollagram/ollagram/internal/cache"
	"github.com/ollagram/ollagram/internal/config"
	"github.com/ollagram/ollagram/internal/database"
	"github.com/ollagram/ollagram/internal/logger"
	"github.com/ollagram/ollagram/internal/network"
	"github.com/ollagram/ollagram/internal/queue"
	"github.com/ollagram/ollagram/internal/service"
	"github.com/ollagram/ollagram/internal/service/cancel"
	"github.com/ollagram/ollagram/internal/telegram"
)

type Container struct {
	BotClient      telegram.Client
	Logger         logger.Logger
	DB             database.Database
	Cache          cache.Cache
	MemoryCache    *cache.MemoryCache
	Cfg            *config.Config
	Queue          *queue.Queue
	Model          *ai.OllamaClient
	Tools          *agent.Registry
	Orchestrator   *agent.Orchestrator
	History        *service.HistoryStore
	ChatService    *service.ChatService
	TeacherService *service.TeacherService
	Localizer      *service.Localizer
	Cancels        *cancel.Manager
	HttpClient     *http.Client
}

// NewContainer wires everything except the Telegram client, which only the
// bot needs. See WithTelegram.
func NewContainer(cfg *config.Config, l logger.Logger) (*Container, error) {
	db, err := database.NewSQLiteDB(cfg.GetDatabaseDSN(), l)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	memoryCache := cache.NewMemoryCache()
	c := cache.NewMultiLevelCache(memoryCache, cache.NewDBCache(db), 5*time.Minute, l)

	localizer, err := service.NewLocalizer(cfg.Language())
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create localizer: %w", err)
	}

	toolsCfg := cfg.Tools()
	toolsHTTP, err := network.SetupHTTPClient(
		network.NewToolsHTTPClientConfig(cfg.HTTP(), max(toolsCfg.Weather.Timeout, toolsCfg.Currency.Timeout, toolsCfg.Search.Timeout)), l)
	if err != nil {
		db.Close()
		return nil, err
	}
	ollamaCfg := cfg.Ollama()
	modelHTTPCfg := network.NewModelHTTPClientConfig(cfg.HTTP())
	modelHTTPCfg.Timeout = ollamaCfg.Timeout
	modelHTTP, err := network.SetupHTTPClient(modelHTTPCfg, l)
	if err != nil {
		db.Close()
		return nil, err
	}
	model := ai.NewOllamaClient(modelHTTP, ollamaCfg.BaseURL, ollamaCfg.Model, ollamaCfg.Temperature, l)

	agentCfg := cfg.Agent()
	registry := agent.NewRegistry()
	if agentCfg.Enabled {
		if err := tools.Register(registry, tools.Deps{
			HTTPClient: toolsHTTP,
			Cache:      c,
			Config:     toolsCfg,
			Logger:     l.WithField("component", "tools"),
		}); err != nil {
			db.Close()
			return nil, err
		}
	}

	history := service.NewHistoryStore(db, agentCfg.HistoryLimit)
	agentLog := l.WithField("component", "agent")
	parser := agent.NewPrefixParser(agentCfg.ToolPrefix, registry, agentLog)
	execOpts := []agent.ExecutorOption{agent.WithExecutorLogger(agentLog)}
	if !agentCfg.ValidateArguments {
		execOpts = append(execOpts, agent.WithoutValidation())
	}
	orchestrator := agent.NewOrchestrator(model, history, registry, parser,
		agent.NewExecutor(registry, execOpts...),
		agent.Options{
			MaxAttempts:        agentCfg.MaxAttempts,
			Backoff:            agentCfg.Backoff,
			ContinuationPrompt: agentCfg.ContinuationPrompt,
		},
		agentLog,
	)

	return &Container{
		Logger:         l,
		DB:             db,
		Cache:          c,
		MemoryCache:    memoryCache,
		Cfg:            cfg,
		Queue:          queue.NewQueue(db, cfg.Queue().PollInterval, l.WithField("component", "queue")),
		Model:          model,
		Tools:          registry,
		Orchestrator:   orchestrator,
		History:        history,
		ChatService:    service.NewChatService(db, model, l.WithField("component", "chats")),
		TeacherService: service.NewTeacherService(db, agentCfg.SystemPrompt),
		Localizer:      localizer,
		Cancels:        cancel.NewManager(),
		HttpClient:     toolsHTTP,
	}, nil
}

// WithTelegram connects to the Bot API.
func (c *Container) WithTelegram() error {
	tgCfg := c.Cfg.Telegram()
	httpClient, err := network.SetupHTTPClient(network.NewTelegramHTTPClientConfig(c.Cfg.HTTP(), time.Duration(tgCfg.Timeout)*time.Second), c.Logger)
	if err != nil {
		return err
	}
	api, err := tgbotapi.NewBotAPIWithClient(tgCfg.Token, tgbotapi.APIEndpoint, httpClient)
	if err != nil {
		return fmt.Errorf("bot API client initialization error: %w", err)
	}
	api.Debug = tgCfg.Debug
	c.Logger.WithField("username", api.Self.UserName).Info("Bot API initialized")

	c.BotClient = telegram.NewBotClient(api, tgCfg.SendRate, c.Logger.WithField("component", "telegram"))
	return nil
}

func (c *Container) Close() error {
	return c.DB.Close()
}
