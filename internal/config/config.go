package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
)

const envPrefix = "OLLAGRAM_"

const (
	LANGUAGE                  = "lang"
	HTTP_PROXY                = "http.proxy"
	HTTP_NO_PROXY             = "http.no_proxy"
	TELEGRAM_TOKEN            = "telegram.token"
	TELEGRAM_ALLOWED_USERS    = "telegram.allowed_users"
	TELEGRAM_DEBUG            = "telegram.debug"
	TELEGRAM_TIMEOUT          = "telegram.timeout"
	TELEGRAM_SEND_RATE        = "telegram.send_rate"
	OLLAMA_BASE_URL           = "ollama.base_url"
	OLLAMA_MODEL              = "ollama.model"
	OLLAMA_TEMPERATURE        = "ollama.temperature"
	OLLAMA_TIMEOUT            = "ollama.timeout"
	OLLAMA_STREAM             = "ollama.stream"
	AGENT_ENABLED             = "agent.enabled"
	AGENT_TOOL_PREFIX         = "agent.tool_prefix"
	AGENT_MAX_ATTEMPTS        = "agent.max_attempts"
	AGENT_BACKOFF             = "agent.backoff"
	AGENT_HISTORY_LIMIT       = "agent.history_limit"
	AGENT_SYSTEM_PROMPT       = "agent.system_prompt"
	AGENT_CONTINUATION_PROMPT = "agent.continuation_prompt"
	AGENT_VALIDATE_ARGUMENTS  = "agent.validate_arguments"
	TOOLS_ENABLED             = "tools.enabled"
	TOOLS_WEATHER_BASE_URL    = "tools.weather.base_url"
	TOOLS_WEATHER_TIMEOUT     = "tools.weather.timeout"
	TOOLS_CURRENCY_BASE_URL   = "tools.currency.base_url"
	TOOLS_CURRENCY_TIMEOUT    = "tools.currency.timeout"
	TOOLS_CURRENCY_CACHE_TTL  = "tools.currency.cache_ttl"
	TOOLS_SEARCH_MAX_RESULTS  = "tools.search.max_results"
	TOOLS_SEARCH_REGION       = "tools.search.region"
	TOOLS_SEARCH_BASE_URL     = "tools.search.base_url"
	TOOLS_SEARCH_TIMEOUT      = "tools.search.timeout"
	DATABASE_DSN              = "database.dsn"
	LOGGING_LEVEL             = "logging.level"
	LOGGING_FORMAT            = "logging.format"
	LOGGING_WRITE_IN_FILE     = "logging.write_in_file"
	LOGGING_FILE_PATH         = "logging.file_path"
	CLEANUP_SCHEDULE          = "cleanup.schedule"
	CLEANUP_MESSAGE_TTL       = "cleanup.message_ttl"
	QUEUE_ASK_TIMEOUT         = "queue.ask.timeout"
	QUEUE_ASK_MAX_RETRIES     = "queue.ask.max_retries"
	QUEUE_ASK_RETRY_DELAY     = "queue.ask.retry_delay"
	QUEUE_ASK_CONCURRENCY     = "queue.ask.concurrency"
	QUEUE_POLL_INTERVAL       = "queue.poll_interval"
)

var defaultSQLiteParams = map[string]string{
	"_pragma":       "foreign_keys(1)",
	"_journal":      "WAL",
	"_busy_timeout": "10000",
	"_synchronous":  "NORMAL",
}

var ErrMissingToken = fmt.Errorf("telegram token is required")

type Config struct {
	k *koanf.Koanf
}

func defaults() map[string]any {
	return map[string]any{
		LANGUAGE:                  "en",
		HTTP_PROXY:                "",
		TELEGRAM_TOKEN:            "",
		TELEGRAM_DEBUG:            false,
		TELEGRAM_TIMEOUT:          60,
		TELEGRAM_SEND_RATE:        25,
		OLLAMA_BASE_URL:           "http://localhost:11434",
		OLLAMA_MODEL:              "llama3.1:latest",
		OLLAMA_TEMPERATURE:        0.7,
		OLLAMA_TIMEOUT:            3 * time.Minute,
		OLLAMA_STREAM:             false,
		AGENT_ENABLED:             true,
		AGENT_TOOL_PREFIX:         "TOOL:",
		AGENT_MAX_ATTEMPTS:        3,
		AGENT_BACKOFF:             1 * time.Second,
		AGENT_HISTORY_LIMIT:       20,
		AGENT_SYSTEM_PROMPT:       "You are a helpful assistant. Answer in the language of the user.",
		AGENT_CONTINUATION_PROMPT: "",
		AGENT_VALIDATE_ARGUMENTS:  true,
		TOOLS_ENABLED:             []string{"get_weather", "convert_currency", "web_search"},
		TOOLS_WEATHER_BASE_URL:    "https://api.open-meteo.com/v1/forecast",
		TOOLS_WEATHER_TIMEOUT:     10 * time.Second,
		TOOLS_CURRENCY_BASE_URL:   "https://api.nbrb.by/exrates/rates",
		TOOLS_CURRENCY_TIMEOUT:    10 * time.Second,
		TOOLS_CURRENCY_CACHE_TTL:  1 * time.Hour,
		TOOLS_SEARCH_MAX_RESULTS:  3,
		TOOLS_SEARCH_REGION:       "wt-wt",
		TOOLS_SEARCH_BASE_URL:     "https://html.duckduckgo.com/html",
		TOOLS_SEARCH_TIMEOUT:      15 * time.Second,
		DATABASE_DSN:              "ollagram.db",
		LOGGING_LEVEL:             "info",
		LOGGING_FORMAT:            "text",
		LOGGING_WRITE_IN_FILE:     false,
		LOGGING_FILE_PATH:         "ollagram.log",
		CLEANUP_SCHEDULE:          "@hourly",
		CLEANUP_MESSAGE_TTL:       0 * time.Hour,
		QUEUE_ASK_TIMEOUT:         5 * time.Minute,
		QUEUE_ASK_MAX_RETRIES:     0,
		QUEUE_ASK_RETRY_DELAY:     5 * time.Second,
		QUEUE_ASK_CONCURRENCY:     2,
		QUEUE_POLL_INTERVAL:       500 * time.Millisecond,
	}
}

// Load reads defaults, then the first config file found, then OLLAGRAM_* env vars.
// An empty path searches the usual locations.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	for _, p := range configPaths(path) {
		if _, err := os.Stat(p); err != nil {
			if path != "" {
				return nil, fmt.Errorf("config file %s: %w", p, err)
			}
			continue
		}
		if err := k.Load(file.Provider(p), toml.Parser()); err != nil {
			return nil, fmt.Errorf("error loading config %s: %w", p, err)
		}
		break
	}

	// OLLAGRAM_AGENT__MAX_ATTEMPTS -> agent.max_attempts
	err := k.Load(env.Provider(envPrefix, ".", envKey), nil)
	if err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	return &Config{k: k}, nil
}

// Validate checks the settings the bot cannot start without.
func (c *Config) Validate() error {
	if c.k.String(TELEGRAM_TOKEN) == "" {
		return ErrMissingToken
	}
	return nil
}

func (c *Config) Language() string {
	return c.k.String(LANGUAGE)
}

func (c *Config) Telegram() TelegramConfig {
	return TelegramConfig{
		Token:        c.k.String(TELEGRAM_TOKEN),
		AllowedUsers: c.k.Int64s(TELEGRAM_ALLOWED_USERS),
		Debug:        c.k.Bool(TELEGRAM_DEBUG),
		Timeout:      c.k.Int(TELEGRAM_TIMEOUT),
		SendRate:     c.k.Float64(TELEGRAM_SEND_RATE),
	}
}

func (c *Config) Ollama() OllamaConfig {
	return OllamaConfig{
		BaseURL:     strings.TrimRight(c.k.String(OLLAMA_BASE_URL), "/"),
		Model:       c.k.String(OLLAMA_MODEL),
		Temperature: c.k.Float64(OLLAMA_TEMPERATURE),
		Timeout:     c.k.Duration(OLLAMA_TIMEOUT),
		Stream:      c.k.Bool(OLLAMA_STREAM),
	}
}

func (c *Config) Agent() AgentConfig {
	maxAttempts := c.k.Int(AGENT_MAX_ATTEMPTS)
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return AgentConfig{
		Enabled:            c.k.Bool(AGENT_ENABLED),
		ToolPrefix:         c.k.String(AGENT_TOOL_PREFIX),
		MaxAttempts:        maxAttempts,
		Backoff:            c.k.Duration(AGENT_BACKOFF),
		HistoryLimit:       c.k.Int(AGENT_HISTORY_LIMIT),
		SystemPrompt:       c.k.String(AGENT_SYSTEM_PROMPT),
		ContinuationPrompt: c.k.String(AGENT_CONTINUATION_PROMPT),
		ValidateArguments:  c.k.Bool(AGENT_VALIDATE_ARGUMENTS),
	}
}

func (c *Config) Tools() ToolsConfig {
	return ToolsConfig{
		Enabled: c.k.Strings(TOOLS_ENABLED),
		Weather: WeatherToolConfig{
			BaseURL: c.k.String(TOOLS_WEATHER_BASE_URL),
			Timeout: c.k.Duration(TOOLS_WEATHER_TIMEOUT),
		},
		Currency: CurrencyToolConfig{
			BaseURL:  strings.TrimRight(c.k.String(TOOLS_CURRENCY_BASE_URL), "/"),
			Timeout:  c.k.Duration(TOOLS_CURRENCY_TIMEOUT),
			CacheTTL: c.k.Duration(TOOLS_CURRENCY_CACHE_TTL),
		},
		Search: SearchToolConfig{
			MaxResults: c.k.Int(TOOLS_SEARCH_MAX_RESULTS),
			Region:     c.k.String(TOOLS_SEARCH_REGION),
			BaseURL:    c.k.String(TOOLS_SEARCH_BASE_URL),
			Timeout:    c.k.Duration(TOOLS_SEARCH_TIMEOUT),
		},
	}
}

func (c *Config) Log() LoggingConfig {
	return LoggingConfig{
		LogLevel:    c.k.String(LOGGING_LEVEL),
		Format:      c.k.String(LOGGING_FORMAT),
		WriteInFile: c.k.Bool(LOGGING_WRITE_IN_FILE),
		FilePath:    c.k.String(LOGGING_FILE_PATH),
	}
}

func (c *Config) HTTP() HTTPConfig {
	return HTTPConfig{
		proxy:   c.k.String(HTTP_PROXY),
		noProxy: c.k.Strings(HTTP_NO_PROXY),
	}
}

func (c *Config) Cleanup() CleanupConfig {
	return CleanupConfig{
		Schedule:   c.k.String(CLEANUP_SCHEDULE),
		MessageTTL: c.k.Duration(CLEANUP_MESSAGE_TTL),
	}
}

func (c *Config) Queue() QueueConfig {
	return QueueConfig{
		PollInterval: c.k.Duration(QUEUE_POLL_INTERVAL),
		Ask: QueueOptions{
			Timeout:     c.k.Duration(QUEUE_ASK_TIMEOUT),
			MaxRetries:  c.k.Int(QUEUE_ASK_MAX_RETRIES),
			RetryDelay:  c.k.Duration(QUEUE_ASK_RETRY_DELAY),
			Concurrency: max(c.k.Int(QUEUE_ASK_CONCURRENCY), 1),
		},
	}
}

// GetDatabaseDSN returns the configured DSN with default SQLite params
// filled in where the user did not set them.
func (c *Config) GetDatabaseDSN() string {
	return withSQLiteParams(c.k.String(DATABASE_DSN))
}

func withSQLiteParams(dsn string) string {
	path, query, _ := strings.Cut(dsn, "?")

	params := make(map[string]string)
	if query != "" {
		for param := range strings.SplitSeq(query, "&") {
			if key, value, ok := strings.Cut(param, "="); ok {
				params[key] = value
			}
		}
	}
	for k, v := range defaultSQLiteParams {
		if _, exists := params[k]; !exists {
			params[k] = v
		}
	}

	pairs := make([]string, 0, len(params))
	for k, v := range params {
		pairs = append(pairs, k+"="+v)
	}
	sort.Strings(pairs)

	return path + "?" + strings.Join(pairs, "&")
}

func envKey(s string) string {
	return strings.ReplaceAll(
		strings.ToLower(strings.TrimPrefix(s, envPrefix)),
		"__", ".",
	)
}

func configPaths(explicit string) []string {
	if explicit != "" {
		return []string{explicit}
	}

	xdgConfig := os.Getenv("XDG_CONFIG_HOME")
	if xdgConfig == "" {
		home, _ := os.UserHomeDir()
		xdgConfig = filepath.Join(home, ".config")
	}

	return []string{
		"ollagram.toml",
		"config.toml",
		filepath.Join(xdgConfig, "ollagram", "config.toml"),
		"/etc/ollagram/config.toml",
	}
}
